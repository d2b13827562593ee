// Package toolset defines the capability contract for in-process skill code
// and the table of constructors that manifests refer to.
//
// Skills are compiled into the host, so a manifest reference such as
// "toolsets/hello:HelloExtendedToolset" is resolved against constructors
// registered for that skill rather than loaded from disk.
package toolset

import (
	"github.com/ipdelete/agent-base-sub000/pkg/config"
	tooltypes "github.com/ipdelete/agent-base-sub000/pkg/types/tools"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Toolset is an in-process object exposing callable tools to the agent.
type Toolset interface {
	Name() string
	Tools() []tooltypes.Tool
}

// Env is handed to constructors that need more than the shared config.
type Env struct {
	Config *config.Config
	// Skill is the canonical name of the skill owning the toolset.
	Skill string
	// Dir is the skill's directory on disk.
	Dir string
	// Options merges the manifest's toolset_config with the host's
	// skills.toolset_config entry for this skill; host values win.
	Options map[string]any
}

// Decode decodes Options into target, converting loosely typed values such
// as "3" into an int field.
func (e Env) Decode(target any) error {
	if len(e.Options) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		ZeroFields:       false,
		TagName:          "mapstructure",
	})
	if err != nil {
		return errors.Wrap(err, "failed to create toolset options decoder")
	}
	if err := decoder.Decode(e.Options); err != nil {
		return errors.Wrapf(err, "invalid toolset options for skill %s", e.Skill)
	}
	return nil
}

// Constructor signatures accepted by Catalog.Register. Plain function
// literals with the same shapes are accepted too.
type (
	ConfigConstructor      func(*config.Config) Toolset
	ConfigErrorConstructor func(*config.Config) (Toolset, error)
	EnvConstructor         func(Env) (Toolset, error)
)
