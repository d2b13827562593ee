// Package security holds the name and path checks every other skill
// component runs before touching disk or executing code.
package security

import (
	"path/filepath"
	"strings"
)

const (
	MaxNameLength = 64

	// ScriptExtension is appended to script names given without one.
	ScriptExtension = ".py"
)

var reservedNames = map[string]struct{}{
	".":           {},
	"..":          {},
	"~":           {},
	"__pycache__": {},
	"--pycache--": {},
}

// NormalizeName returns the canonical form of a skill name: lowercase with
// underscores mapped to hyphens. "Kalshi-Markets" and "kalshi_markets" are
// the same skill.
func NormalizeName(raw string) (string, error) {
	if err := checkName(raw, false); err != nil {
		return "", err
	}
	return canonical(raw), nil
}

// NormalizeScriptName applies the NormalizeName rules, also allowing '.' for
// the extension, and appends
// ScriptExtension when the name has no extension, so "status" and
// "status.py" resolve to the same script.
func NormalizeScriptName(raw string) (string, error) {
	if err := checkName(raw, true); err != nil {
		return "", err
	}
	name := canonical(raw)
	if filepath.Ext(name) == "" {
		name += ScriptExtension
	}
	if len(name) > MaxNameLength {
		return "", invalidName(raw, "name exceeds %d characters", MaxNameLength)
	}
	return name, nil
}

func canonical(raw string) string {
	return strings.ReplaceAll(strings.ToLower(raw), "_", "-")
}

// checkName validates raw. Skill names are limited to letters, digits, '-'
// and '_'; script names may also contain '.'.
func checkName(raw string, allowDot bool) error {
	switch {
	case raw == "":
		return invalidName(raw, "name is empty")
	case len(raw) > MaxNameLength:
		return invalidName(raw, "name exceeds %d characters", MaxNameLength)
	case strings.ContainsAny(raw, `/\`):
		return invalidName(raw, "name contains a path separator")
	case strings.Contains(raw, ".."):
		return invalidName(raw, "name contains '..'")
	case strings.HasPrefix(raw, "."):
		return invalidName(raw, "name starts with '.'")
	case strings.Contains(raw, "~"):
		return invalidName(raw, "name contains '~'")
	}

	for _, r := range raw {
		if !isNameRune(r) && !(allowDot && r == '.') {
			return invalidName(raw, "name contains invalid character %q", r)
		}
	}

	if _, reserved := reservedNames[strings.ToLower(raw)]; reserved {
		return invalidName(raw, "name is reserved")
	}
	if _, reserved := reservedNames[canonical(raw)]; reserved {
		return invalidName(raw, "name is reserved")
	}
	return nil
}

func isNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	}
	return false
}
