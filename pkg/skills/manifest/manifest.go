// Package manifest parses SKILL.md declaration files. A manifest is a YAML
// front-matter block delimited by "---" lines followed by free-form
// instructions that are carried through untouched.
package manifest

import (
	"bytes"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FileName is the manifest file expected at the top of every skill directory.
const FileName = "SKILL.md"

const (
	MaxNameLength        = 64
	MaxDescriptionLength = 500

	delimiter = "---"
)

var (
	namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	utf8BOM     = []byte{0xEF, 0xBB, 0xBF}
)

// Permissions lists what a skill's scripts may receive from the host.
type Permissions struct {
	Env []string `yaml:"env" json:"env,omitempty"`
}

// Manifest is the validated in-memory form of a SKILL.md file.
type Manifest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version,omitempty"`
	Author      string `json:"author,omitempty"`
	Repository  string `json:"repository,omitempty"`
	License     string `json:"license,omitempty"`
	MinVersion  string `json:"min_version,omitempty"`
	MaxVersion  string `json:"max_version,omitempty"`

	// Toolsets are "<module-path>:<type-name>" references, in declaration order.
	Toolsets []string `json:"toolsets,omitempty"`

	// Scripts is the explicit allow-list. It is only meaningful when
	// ExplicitScripts is true; otherwise scripts are auto-discovered.
	Scripts         []string `json:"scripts,omitempty"`
	ExplicitScripts bool     `json:"explicit_scripts"`
	ScriptsIgnore   []string `json:"scripts_ignore,omitempty"`

	Permissions Permissions `json:"permissions"`

	// ToolsetConfig holds default options handed to the skill's toolsets.
	// Host configuration for the same skill takes precedence.
	ToolsetConfig map[string]any `json:"toolset_config,omitempty"`

	// Extra keeps front-matter keys this version does not understand.
	Extra map[string]any `json:"extra,omitempty"`

	Instructions string `json:"-"`
	Path         string `json:"path"`
}

type frontMatter struct {
	Name          string         `yaml:"name"`
	Description   string         `yaml:"description"`
	Version       string         `yaml:"version"`
	Author        string         `yaml:"author"`
	Repository    string         `yaml:"repository"`
	License       string         `yaml:"license"`
	MinVersion    string         `yaml:"min_version"`
	MaxVersion    string         `yaml:"max_version"`
	Toolsets      []string       `yaml:"toolsets"`
	Scripts       *[]string      `yaml:"scripts"`
	ScriptsIgnore []string       `yaml:"scripts_ignore"`
	Permissions   Permissions    `yaml:"permissions"`
	ToolsetConfig map[string]any `yaml:"toolset_config"`
}

var knownKeys = map[string]struct{}{
	"name": {}, "description": {}, "version": {}, "author": {}, "repository": {},
	"license": {}, "min_version": {}, "max_version": {}, "toolsets": {}, "scripts": {},
	"scripts_ignore": {}, "permissions": {}, "toolset_config": {},
}

// Parse reads and validates the manifest at path. It never writes to disk.
func Parse(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Path: path, Err: errors.Wrap(err, "failed to read manifest")}
	}
	return ParseBytes(path, data)
}

// ParseBytes validates manifest content. path is only used for error
// reporting and is recorded on the result.
func ParseBytes(path string, data []byte) (*Manifest, error) {
	if bytes.HasPrefix(data, utf8BOM) {
		return nil, malformed(path, "manifest must not start with a byte-order mark")
	}
	if !utf8.Valid(data) {
		return nil, malformed(path, "manifest is not valid UTF-8")
	}

	header, body, err := splitFrontMatter(string(data))
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Path: path, Err: err}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(header), &doc); err != nil {
		return nil, &Error{Kind: KindMalformed, Path: path, Err: errors.Wrap(err, "invalid front matter")}
	}

	var (
		fm    frontMatter
		extra map[string]any
	)
	// An empty header decodes to a zero node; validation below reports the
	// missing required fields.
	if doc.Kind != 0 && len(doc.Content) > 0 {
		if doc.Content[0].Kind != yaml.MappingNode {
			return nil, malformed(path, "front matter must be a mapping")
		}
		if err := doc.Content[0].Decode(&fm); err != nil {
			return nil, &Error{Kind: KindMalformed, Path: path, Err: errors.Wrap(err, "invalid front matter")}
		}
		var all map[string]any
		if err := doc.Content[0].Decode(&all); err != nil {
			return nil, &Error{Kind: KindMalformed, Path: path, Err: errors.Wrap(err, "invalid front matter")}
		}
		for k, v := range all {
			if _, ok := knownKeys[k]; ok {
				continue
			}
			if extra == nil {
				extra = make(map[string]any)
			}
			extra[k] = v
		}
	}

	m := &Manifest{
		Name:          strings.TrimSpace(fm.Name),
		Description:   strings.TrimSpace(fm.Description),
		Version:       fm.Version,
		Author:        fm.Author,
		Repository:    fm.Repository,
		License:       fm.License,
		MinVersion:    strings.TrimSpace(fm.MinVersion),
		MaxVersion:    strings.TrimSpace(fm.MaxVersion),
		Toolsets:      fm.Toolsets,
		ScriptsIgnore: fm.ScriptsIgnore,
		Permissions:   fm.Permissions,
		ToolsetConfig: fm.ToolsetConfig,
		Extra:         extra,
		Instructions:  body,
		Path:          path,
	}
	if fm.Scripts != nil {
		m.ExplicitScripts = true
		m.Scripts = *fm.Scripts
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the required identity fields.
func (m *Manifest) Validate() error {
	switch {
	case m.Name == "":
		return invalidField(m.Path, "name", "name is required")
	case len(m.Name) > MaxNameLength:
		return invalidField(m.Path, "name", "name exceeds %d characters", MaxNameLength)
	case !namePattern.MatchString(m.Name):
		return invalidField(m.Path, "name", "name %q may only contain letters, digits, '-' and '_'", m.Name)
	case m.Description == "":
		return invalidField(m.Path, "description", "description is required")
	case utf8.RuneCountInString(m.Description) > MaxDescriptionLength:
		return invalidField(m.Path, "description", "description exceeds %d characters", MaxDescriptionLength)
	}
	return nil
}

// splitFrontMatter returns the text between the opening and closing "---"
// lines and everything after the closing line.
func splitFrontMatter(content string) (string, string, error) {
	lines := strings.SplitAfter(content, "\n")
	if len(lines) == 0 || trimEOL(lines[0]) != delimiter {
		return "", "", errors.New("manifest must begin with a '---' front matter delimiter")
	}

	for i := 1; i < len(lines); i++ {
		if trimEOL(lines[i]) == delimiter {
			header := strings.Join(lines[1:i], "")
			body := strings.Join(lines[i+1:], "")
			return header, body, nil
		}
	}
	return "", "", errors.New("front matter is missing its closing '---' delimiter")
}

func trimEOL(line string) string {
	return strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
}
