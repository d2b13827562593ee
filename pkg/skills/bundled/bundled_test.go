package bundled

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ipdelete/agent-base-sub000/pkg/config"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/manifest"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/toolset"
	tooltypes "github.com/ipdelete/agent-base-sub000/pkg/types/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames(t *testing.T) {
	assert.Equal(t, []string{HelloExtendedSkill}, Names())
}

func TestMaterialize(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "bundled")

	written, err := Materialize(ctx, dir, false)
	require.NoError(t, err)
	assert.Equal(t, []string{HelloExtendedSkill}, written)

	m, err := manifest.Parse(filepath.Join(dir, HelloExtendedSkill, manifest.FileName))
	require.NoError(t, err)
	assert.Equal(t, HelloExtendedSkill, m.Name)
	assert.Equal(t, []string{HelloExtendedRef}, m.Toolsets)

	script := filepath.Join(dir, HelloExtendedSkill, "scripts", "advanced_greeting.py")
	info, err := os.Stat(script)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100, "script should be executable")

	// existing skills are kept unless forced
	manifestPath := filepath.Join(dir, HelloExtendedSkill, manifest.FileName)
	require.NoError(t, os.WriteFile(manifestPath, []byte("edited"), 0o644))
	written, err = Materialize(ctx, dir, false)
	require.NoError(t, err)
	assert.Empty(t, written)
	data, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	assert.Equal(t, "edited", string(data))

	written, err = Materialize(ctx, dir, true)
	require.NoError(t, err)
	assert.Equal(t, []string{HelloExtendedSkill}, written)
	_, err = manifest.Parse(manifestPath)
	require.NoError(t, err)
}

func TestRegister(t *testing.T) {
	catalog := toolset.NewCatalog()
	require.NoError(t, Register(catalog))
	assert.True(t, catalog.Has(HelloExtendedSkill, HelloExtendedRef))
	assert.Error(t, Register(catalog), "second registration is a duplicate")
}

func TestHelloExtendedToolset(t *testing.T) {
	catalog := toolset.NewCatalog()
	require.NoError(t, Register(catalog))

	ts, err := catalog.Instantiate(context.Background(), HelloExtendedRef, toolset.Env{
		Config:  config.Default(),
		Skill:   HelloExtendedSkill,
		Options: map[string]any{"greeting": "Howdy", "punctuation": "?"},
	})
	require.NoError(t, err)
	require.Len(t, ts.Tools(), 1)

	tool := ts.Tools()[0]
	assert.Equal(t, GreetToolName, tool.Name())
	require.NoError(t, tool.ValidateInput(nil, `{"name":"Ada"}`))
	assert.Error(t, tool.ValidateInput(nil, `{"name":""}`))
	assert.Error(t, tool.ValidateInput(nil, `{"name":"Ada","style":"sarcastic"}`))

	tests := []struct {
		params string
		want   string
	}{
		{`{"name":"Ada"}`, "Howdy, Ada?"},
		{`{"name":"Ada","style":"formal"}`, "Good day, Ada."},
		{`{"name":"Ada","style":"excited"}`, "HOWDY, ADA??"},
	}
	for _, tt := range tests {
		res := tool.Execute(context.Background(), nil, tt.params)
		require.False(t, res.IsError(), res.GetError())
		assert.Equal(t, tt.want, res.GetResult())
	}

	res := tool.Execute(context.Background(), nil, `{}`)
	assert.True(t, res.IsError())

	var meta tooltypes.SkillToolMetadata
	ok := tooltypes.ExtractMetadata(tool.Execute(context.Background(), nil, `{"name":"Bo"}`).StructuredData().Metadata, &meta)
	require.True(t, ok)
	assert.Equal(t, HelloExtendedSkill, meta.Skill)
	assert.Equal(t, "Howdy, Bo?", meta.Output)
}

func TestHelloExtendedToolset_BadOptions(t *testing.T) {
	_, err := NewHelloExtendedToolset(toolset.Env{
		Skill:   HelloExtendedSkill,
		Options: map[string]any{"greeting": []string{"not", "a", "string"}},
	})
	assert.Error(t, err)
}
