package sandbox

import (
	"context"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/ipdelete/agent-base-sub000/pkg/logger"
	"github.com/pkg/errors"
)

// envPolicy decides which variables reach a script. The child starts from
// the configured safe variables; host variables matching the skill's
// permissions.env patterns are added, then caller-supplied values, which
// must also match.
type envPolicy struct {
	safe     []string
	patterns []glob.Glob
}

func newEnvPolicy(ctx context.Context, safe, patterns []string) envPolicy {
	p := envPolicy{safe: safe}
	for _, raw := range patterns {
		g, err := glob.Compile(raw)
		if err != nil {
			logger.G(ctx).WithError(err).WithField("pattern", raw).Warn("ignoring invalid permissions.env pattern")
			continue
		}
		p.patterns = append(p.patterns, g)
	}
	return p
}

func (p envPolicy) allowed(name string) bool {
	for _, g := range p.patterns {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// build returns the child environment sorted by name. A caller variable not
// covered by the patterns is a permission error naming the variable.
func (p envPolicy) build(host []string, caller map[string]string) ([]string, error) {
	hostVars := make(map[string]string, len(host))
	for _, kv := range host {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		hostVars[name] = value
	}

	env := make(map[string]string)
	for _, name := range p.safe {
		if v, ok := hostVars[name]; ok {
			env[name] = v
		}
	}
	for name, value := range hostVars {
		if p.allowed(name) {
			env[name] = value
		}
	}

	callerNames := make([]string, 0, len(caller))
	for name := range caller {
		callerNames = append(callerNames, name)
	}
	sort.Strings(callerNames)
	for _, name := range callerNames {
		if !p.allowed(name) {
			return nil, errors.Errorf("environment variable %s is not allowed by the skill's permissions.env", name)
		}
		env[name] = caller[name]
	}

	out := make([]string, 0, len(env))
	for name, value := range env {
		out = append(out, name+"="+value)
	}
	sort.Strings(out)
	return out, nil
}
