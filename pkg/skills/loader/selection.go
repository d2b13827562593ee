package loader

import (
	"context"
	"strings"

	"github.com/ipdelete/agent-base-sub000/pkg/config"
	"github.com/ipdelete/agent-base-sub000/pkg/logger"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/security"
)

type selectionMode int

const (
	selectNamed selectionMode = iota
	selectAllTrusted
	selectAll
	selectNone
)

// selection is the parsed form of the enabled list.
type selection struct {
	mode  selectionMode
	names map[string]struct{}
}

// parseSelection interprets enabled. "all-untrusted" beats "all"; "none" only
// applies when no skill is named explicitly.
func parseSelection(ctx context.Context, enabled []string) selection {
	sel := selection{mode: selectNamed, names: make(map[string]struct{})}
	var sawAll, sawAllUntrusted bool

	for _, raw := range enabled {
		raw = strings.TrimSpace(raw)
		switch strings.ToLower(raw) {
		case "":
			continue
		case config.EnabledAll:
			sawAll = true
			continue
		case config.EnabledAllUntrusted:
			sawAllUntrusted = true
			continue
		case config.EnabledNone:
			continue
		}

		name, err := security.NormalizeName(raw)
		if err != nil {
			logger.G(ctx).WithError(err).WithField("name", raw).Warn("ignoring invalid name in enabled skills")
			continue
		}
		sel.names[name] = struct{}{}
	}

	switch {
	case sawAllUntrusted:
		sel.mode = selectAll
	case sawAll:
		sel.mode = selectAllTrusted
	case len(sel.names) == 0:
		sel.mode = selectNone
	}
	return sel
}

func (s selection) enabled(canonical string) bool {
	switch s.mode {
	case selectAll, selectAllTrusted:
		return true
	case selectNone:
		return false
	}
	_, ok := s.names[canonical]
	return ok
}
