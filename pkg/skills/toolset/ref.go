package toolset

import (
	"path"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var typeNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Ref is a parsed "<module-path>:<type-name>" reference. The module path is
// relative to the skill directory.
type Ref struct {
	Module string
	Type   string
}

func (r Ref) String() string {
	return r.Module + ":" + r.Type
}

// ParseRef validates a toolset reference. Dotted module paths
// ("toolsets.hello") are accepted and normalized to slash form.
func ParseRef(raw string) (Ref, error) {
	idx := strings.LastIndex(raw, ":")
	if idx <= 0 || idx == len(raw)-1 {
		return Ref{}, errors.Errorf("toolset reference %q must look like <module-path>:<type-name>", raw)
	}

	module := strings.TrimSpace(raw[:idx])
	typeName := strings.TrimSpace(raw[idx+1:])

	if !typeNamePattern.MatchString(typeName) {
		return Ref{}, errors.Errorf("toolset reference %q has invalid type name %q", raw, typeName)
	}
	if strings.Contains(module, `\`) || strings.HasPrefix(module, "/") {
		return Ref{}, errors.Errorf("toolset reference %q must use a relative module path", raw)
	}

	if !strings.Contains(module, "/") {
		module = strings.ReplaceAll(module, ".", "/")
	}
	for _, segment := range strings.Split(module, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return Ref{}, errors.Errorf("toolset reference %q has invalid module path", raw)
		}
	}

	return Ref{Module: path.Clean(module), Type: typeName}, nil
}
