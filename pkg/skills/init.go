// Package skills wires the skill loader and the script sandbox into the set
// of tools a host agent exposes.
package skills

import (
	"context"

	"github.com/ipdelete/agent-base-sub000/pkg/config"
	"github.com/ipdelete/agent-base-sub000/pkg/logger"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/bundled"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/loader"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/registry"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/sandbox"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/toolset"
	tooltypes "github.com/ipdelete/agent-base-sub000/pkg/types/tools"
	"github.com/pkg/errors"
)

// Runtime is what a host needs after startup.
type Runtime struct {
	Result   *loader.LoadResult
	Sandbox  *sandbox.Sandbox
	Registry *registry.Registry
	// Tools holds the sandbox tools followed by every toolset tool.
	Tools []tooltypes.Tool
}

type options struct {
	registry        *registry.Registry
	catalog         *toolset.Catalog
	register        []func(*toolset.Catalog) error
	skipMaterialize bool
	hostVersion     string
}

type Option func(*options)

// WithRegistry uses r instead of opening cfg.Skills.RegistryPath.
func WithRegistry(r *registry.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithCatalog uses c as the toolset catalog. Bundled toolsets are still
// registered into it.
func WithCatalog(c *toolset.Catalog) Option {
	return func(o *options) { o.catalog = c }
}

// WithToolsets adds host-specific toolset constructors.
func WithToolsets(fn func(*toolset.Catalog) error) Option {
	return func(o *options) { o.register = append(o.register, fn) }
}

// WithoutMaterialize skips writing the embedded skills into the bundled root.
func WithoutMaterialize() Option {
	return func(o *options) { o.skipMaterialize = true }
}

func WithHostVersion(v string) Option {
	return func(o *options) { o.hostVersion = v }
}

// Roots returns the configured skill roots in precedence order: bundled
// first, then the user directory, then any extra directories.
func Roots(cfg *config.Config) []loader.Root {
	roots := []loader.Root{{Path: cfg.Skills.BundledDir, Bundled: true}}
	if cfg.Skills.UserDir != "" {
		roots = append(roots, loader.Root{Path: cfg.Skills.UserDir})
	}
	for _, dir := range cfg.Skills.ExtraDirs {
		if dir != "" {
			roots = append(roots, loader.Root{Path: dir})
		}
	}
	return roots
}

// Initialize runs one load pass over the configured roots and builds the
// sandbox over the resulting script catalog.
func Initialize(ctx context.Context, cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if !o.skipMaterialize && cfg.Skills.BundledDir != "" {
		written, err := bundled.Materialize(ctx, cfg.Skills.BundledDir, false)
		if err != nil {
			return nil, err
		}
		if len(written) > 0 {
			logger.G(ctx).WithField("skills", written).Debug("materialized bundled skills")
		}
	}

	reg := o.registry
	if reg == nil {
		var err error
		reg, err = registry.Open(cfg.Skills.RegistryPath)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open skill registry")
		}
	}

	catalog := o.catalog
	if catalog == nil {
		catalog = toolset.NewCatalog()
	}
	if !catalog.Has(bundled.HelloExtendedSkill, bundled.HelloExtendedRef) {
		if err := bundled.Register(catalog); err != nil {
			return nil, errors.Wrap(err, "failed to register bundled toolsets")
		}
	}
	for _, fn := range o.register {
		if err := fn(catalog); err != nil {
			return nil, errors.Wrap(err, "failed to register toolsets")
		}
	}

	loaderOpts := []loader.Option{
		loader.WithRegistry(reg),
		loader.WithCatalog(catalog),
	}
	if o.hostVersion != "" {
		loaderOpts = append(loaderOpts, loader.WithHostVersion(o.hostVersion))
	}
	result, err := loader.New(cfg, loaderOpts...).LoadEnabled(ctx, Roots(cfg), cfg.Skills.Enabled)
	if err != nil {
		return nil, err
	}

	sb := sandbox.New(result.Scripts, cfg.Sandbox)
	return &Runtime{
		Result:   result,
		Sandbox:  sb,
		Registry: reg,
		Tools:    mergeTools(ctx, sb.Tools(), result.Tools()),
	}, nil
}

// mergeTools keeps the first tool of each name.
func mergeTools(ctx context.Context, groups ...[]tooltypes.Tool) []tooltypes.Tool {
	seen := make(map[string]bool)
	var out []tooltypes.Tool
	for _, group := range groups {
		for _, tool := range group {
			if seen[tool.Name()] {
				logger.G(ctx).WithField("tool", tool.Name()).Warn("tool name already taken, skipping")
				continue
			}
			seen[tool.Name()] = true
			out = append(out, tool)
		}
	}
	return out
}
