//go:build unix

package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ipdelete/agent-base-sub000/pkg/config"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/loader"
	"github.com/stretchr/testify/require"
)

// testConfig runs .py fixtures through sh so the tests do not depend on a
// python3 install.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Sandbox.Interpreters = map[string][]string{
		"py": {"sh"},
		"sh": {"sh"},
	}
	cfg.Sandbox.Timeout = 10 * time.Second
	return cfg
}

// newTestSandbox writes one skill with the given scripts and front matter
// extras, loads it and returns a sandbox over the resulting catalog.
func newTestSandbox(t *testing.T, cfg *config.Config, skill, extraFront string, scripts map[string]string) (*Sandbox, string) {
	t.Helper()
	root := t.TempDir()
	skillDir := filepath.Join(root, skill)
	require.NoError(t, os.MkdirAll(filepath.Join(skillDir, loader.ScriptsDir), 0o755))

	front := "name: " + skill + "\ndescription: test skill\n" + strings.TrimSpace(extraFront)
	content := "---\n" + strings.TrimSpace(front) + "\n---\n# " + skill + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(content), 0o644))
	for name, body := range scripts {
		require.NoError(t, os.WriteFile(filepath.Join(skillDir, loader.ScriptsDir, name), []byte(body), 0o755))
	}

	l := loader.New(cfg)
	result, err := l.LoadEnabled(context.Background(), []loader.Root{{Path: root}}, []string{skill})
	require.NoError(t, err)
	require.Empty(t, result.Failed())

	return New(result.Scripts, cfg.Sandbox), skillDir
}
