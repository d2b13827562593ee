package loader

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ipdelete/agent-base-sub000/pkg/logger"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/manifest"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/security"
	"github.com/pkg/errors"
)

// ScriptsDir is the per-skill directory scanned for runnable scripts.
const ScriptsDir = "scripts"

// ScriptDescriptor identifies one runnable script. Only the name and location
// are recorded; the file is never opened during loading.
type ScriptDescriptor struct {
	SkillCanonicalName  string `json:"skill"`
	ScriptCanonicalName string `json:"script"`
	// FileName is the name on disk, kept for display.
	FileName     string `json:"file_name"`
	AbsolutePath string `json:"path"`
}

// SkillScripts is the catalog entry for one loaded skill.
type SkillScripts struct {
	Skill string
	Dir   string
	// EnvPatterns are the manifest's permissions.env patterns.
	EnvPatterns []string
	Scripts     []ScriptDescriptor
}

// ScriptCatalog indexes the scripts of every loaded skill. It is built once
// per load pass and read-only afterwards.
type ScriptCatalog struct {
	skills map[string]*SkillScripts
}

func newScriptCatalog() *ScriptCatalog {
	return &ScriptCatalog{skills: make(map[string]*SkillScripts)}
}

func (c *ScriptCatalog) add(entry *SkillScripts) {
	c.skills[entry.Skill] = entry
}

// Skills returns every skill in the catalog ordered by canonical name,
// including skills that have no scripts.
func (c *ScriptCatalog) Skills() []*SkillScripts {
	if c == nil {
		return nil
	}
	out := make([]*SkillScripts, 0, len(c.skills))
	for _, s := range c.skills {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Skill < out[j].Skill })
	return out
}

// Skill looks up a skill by any spelling of its name.
func (c *ScriptCatalog) Skill(name string) (*SkillScripts, bool) {
	if c == nil {
		return nil, false
	}
	canonical, err := security.NormalizeName(name)
	if err != nil {
		return nil, false
	}
	s, ok := c.skills[canonical]
	return s, ok
}

// Len returns the number of scripts across all skills.
func (c *ScriptCatalog) Len() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, s := range c.skills {
		n += len(s.Scripts)
	}
	return n
}

// Find returns the descriptor whose canonical name equals canonicalScript.
func (s *SkillScripts) Find(canonicalScript string) (ScriptDescriptor, bool) {
	for _, d := range s.Scripts {
		if d.ScriptCanonicalName == canonicalScript {
			return d, true
		}
	}
	return ScriptDescriptor{}, false
}

// discoverScripts lists the runnable files directly under the skill's
// scripts directory. Symbolic links and subdirectories are never followed.
func (l *Loader) discoverScripts(ctx context.Context, canonical, skillDir string, m *manifest.Manifest) ([]ScriptDescriptor, error) {
	log := logger.G(ctx).WithField("skill", canonical)

	for _, pattern := range m.ScriptsIgnore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, &manifest.Error{
				Kind:  manifest.KindInvalidField,
				Field: "scripts_ignore",
				Path:  m.Path,
				Err:   errors.Errorf("invalid glob pattern %q", pattern),
			}
		}
	}

	var allowed map[string]string
	if m.ExplicitScripts {
		allowed = make(map[string]string, len(m.Scripts))
		for _, raw := range m.Scripts {
			name, err := security.NormalizeScriptName(raw)
			if err != nil {
				return nil, &manifest.Error{Kind: manifest.KindInvalidField, Field: "scripts", Path: m.Path, Err: err}
			}
			allowed[name] = raw
		}
	}

	dir := filepath.Join(skillDir, ScriptsDir)
	info, err := os.Lstat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, failure(ReasonScriptsUnreadable, errors.Wrapf(err, "failed to inspect %s", dir))
	}
	if info.Mode()&os.ModeSymlink != 0 {
		log.WithField("path", dir).Warn("scripts directory is a symbolic link, ignoring it")
		return nil, nil
	}
	if !info.IsDir() {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, failure(ReasonScriptsUnreadable, errors.Wrapf(err, "failed to read %s", dir))
	}

	extensions := make(map[string]struct{})
	for _, ext := range l.cfg.Sandbox.ScriptExtensions() {
		extensions[ext] = struct{}{}
	}

	seen := make(map[string]string)
	var scripts []ScriptDescriptor
	for _, entry := range entries {
		name := entry.Name()
		entryLog := log.WithField("script", name)

		switch {
		case entry.Type()&os.ModeSymlink != 0:
			entryLog.Warn("skipping symbolic link in scripts directory")
			continue
		case entry.IsDir(), !entry.Type().IsRegular():
			continue
		case strings.HasPrefix(name, "."):
			continue
		}

		if _, ok := extensions[strings.ToLower(filepath.Ext(name))]; !ok {
			continue
		}
		if ignored(m.ScriptsIgnore, name) {
			entryLog.Debug("script excluded by scripts_ignore")
			continue
		}

		canonicalScript, err := security.NormalizeScriptName(name)
		if err != nil {
			entryLog.WithError(err).Warn("skipping script with invalid name")
			continue
		}
		if allowed != nil {
			if _, ok := allowed[canonicalScript]; !ok {
				continue
			}
		}
		if first, dup := seen[canonicalScript]; dup {
			entryLog.WithField("kept", first).Warn("script name collides with another script, keeping the first")
			continue
		}
		seen[canonicalScript] = name

		abs, err := filepath.Abs(filepath.Join(dir, name))
		if err != nil {
			return nil, failure(ReasonScriptsUnreadable, errors.Wrapf(err, "failed to resolve %s", name))
		}
		scripts = append(scripts, ScriptDescriptor{
			SkillCanonicalName:  canonical,
			ScriptCanonicalName: canonicalScript,
			FileName:            name,
			AbsolutePath:        abs,
		})
	}

	for name, raw := range allowed {
		if _, ok := seen[name]; !ok {
			log.WithField("script", raw).Warn("script listed in manifest was not found")
		}
	}
	return scripts, nil
}

func ignored(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
