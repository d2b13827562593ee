package toolset

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ipdelete/agent-base-sub000/pkg/config"
	"github.com/ipdelete/agent-base-sub000/pkg/logger"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/security"
	"github.com/pkg/errors"
)

// Catalog maps (skill, reference) pairs to constructors. Nothing is
// constructed until Instantiate is called, so skills that are never loaded
// cost nothing beyond their table entry. A Catalog is owned by whoever
// builds it; there is no package-level instance.
type Catalog struct {
	mu           sync.RWMutex
	constructors map[string]any
}

func NewCatalog() *Catalog {
	return &Catalog{constructors: make(map[string]any)}
}

func catalogKey(skill string, ref Ref) string {
	return skill + "/" + ref.String()
}

// Register records ctor for the given skill and reference. ctor is checked
// against the capability contract when it is instantiated, not here, so a
// mismatched constructor only breaks its own skill.
func (c *Catalog) Register(skill, ref string, ctor any) error {
	canonical, err := security.NormalizeName(skill)
	if err != nil {
		return errors.Wrap(err, "invalid skill name for toolset registration")
	}
	parsed, err := ParseRef(ref)
	if err != nil {
		return err
	}
	if ctor == nil {
		return errors.Errorf("nil constructor for %s", ref)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := catalogKey(canonical, parsed)
	if _, exists := c.constructors[key]; exists {
		return errors.Errorf("toolset %s already registered for skill %s", parsed, canonical)
	}
	c.constructors[key] = ctor
	return nil
}

// MustRegister is Register for static registration tables.
func (c *Catalog) MustRegister(skill, ref string, ctor any) {
	if err := c.Register(skill, ref, ctor); err != nil {
		panic(err)
	}
}

// Has reports whether a constructor exists without touching it.
func (c *Catalog) Has(skill, ref string) bool {
	canonical, err := security.NormalizeName(skill)
	if err != nil {
		return false
	}
	parsed, err := ParseRef(ref)
	if err != nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.constructors[catalogKey(canonical, parsed)]
	return ok
}

// Keys lists registered "skill/module:Type" keys in sorted order.
func (c *Catalog) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.constructors))
	for k := range c.constructors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Instantiate resolves ref for env.Skill and constructs the toolset. Missing
// references, constructors with the wrong shape, constructor errors, panics
// and nil results are all returned as errors.
func (c *Catalog) Instantiate(ctx context.Context, ref string, env Env) (ts Toolset, err error) {
	parsed, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}
	skill, err := security.NormalizeName(env.Skill)
	if err != nil {
		return nil, errors.Wrap(err, "invalid skill name")
	}
	env.Skill = skill

	c.mu.RLock()
	ctor, ok := c.constructors[catalogKey(skill, parsed)]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("toolset %s is not available for skill %s", parsed, skill)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.G(ctx).WithField("toolset", parsed.String()).Warnf("toolset constructor panicked: %v", r)
			ts = nil
			err = errors.Errorf("toolset %s panicked during construction: %v", parsed, r)
		}
	}()

	switch fn := ctor.(type) {
	case func(Env) (Toolset, error):
		ts, err = fn(env)
	case EnvConstructor:
		ts, err = fn(env)
	case func(*config.Config) (Toolset, error):
		ts, err = fn(env.Config)
	case ConfigErrorConstructor:
		ts, err = fn(env.Config)
	case func(*config.Config) Toolset:
		ts = fn(env.Config)
	case ConfigConstructor:
		ts = fn(env.Config)
	default:
		return nil, errors.Errorf("toolset %s does not satisfy the toolset contract: unsupported constructor %s", parsed, describe(ctor))
	}

	if err != nil {
		return nil, errors.Wrapf(err, "failed to construct toolset %s", parsed)
	}
	if ts == nil {
		return nil, errors.Errorf("toolset %s constructor returned nil", parsed)
	}
	return ts, nil
}

func describe(v any) string {
	return fmt.Sprintf("%T", v)
}
