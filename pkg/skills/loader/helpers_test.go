package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/invopop/jsonschema"
	"github.com/ipdelete/agent-base-sub000/pkg/config"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/toolset"
	tooltypes "github.com/ipdelete/agent-base-sub000/pkg/types/tools"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

type stubTool struct{ name string }

func (s stubTool) GenerateSchema() *jsonschema.Schema              { return &jsonschema.Schema{Type: "object"} }
func (s stubTool) Name() string                                    { return s.name }
func (s stubTool) Description() string                             { return "stub" }
func (s stubTool) ValidateInput(tooltypes.State, string) error     { return nil }
func (s stubTool) TracingKVs(string) ([]attribute.KeyValue, error) { return nil, nil }
func (s stubTool) Execute(context.Context, tooltypes.State, string) tooltypes.ToolResult {
	return tooltypes.BaseToolResult{Result: s.name}
}

type stubToolset struct {
	name    string
	tools   []string
	options map[string]any
}

func (s *stubToolset) Name() string { return s.name }
func (s *stubToolset) Tools() []tooltypes.Tool {
	out := make([]tooltypes.Tool, 0, len(s.tools))
	for _, n := range s.tools {
		out = append(out, stubTool{name: n})
	}
	return out
}

// countingCtor returns a constructor and a pointer to how often it ran.
func countingCtor(name string, tools ...string) (toolset.EnvConstructor, *int) {
	calls := 0
	return func(env toolset.Env) (toolset.Toolset, error) {
		calls++
		return &stubToolset{name: name, tools: tools, options: env.Options}, nil
	}, &calls
}

type skillSpec struct {
	front   string
	body    string
	scripts map[string]string
}

func writeSkill(t *testing.T, root, dir string, spec skillSpec) string {
	t.Helper()
	skillDir := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(skillDir, 0o755))

	content := "---\n" + strings.TrimSpace(spec.front) + "\n---\n" + spec.body
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(content), 0o644))

	if len(spec.scripts) > 0 {
		require.NoError(t, os.MkdirAll(filepath.Join(skillDir, ScriptsDir), 0o755))
		for name, body := range spec.scripts {
			require.NoError(t, os.WriteFile(filepath.Join(skillDir, ScriptsDir, name), []byte(body), 0o755))
		}
	}
	return skillDir
}

func simpleSkill(name string) skillSpec {
	return skillSpec{front: "name: " + name + "\ndescription: " + name + " skill"}
}

func testConfig() *config.Config {
	return config.Default()
}
