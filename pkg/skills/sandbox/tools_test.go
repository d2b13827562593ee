//go:build unix

package sandbox

import (
	"context"
	"testing"

	tooltypes "github.com/ipdelete/agent-base-sub000/pkg/types/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTools_Names(t *testing.T) {
	sb, _ := newTestSandbox(t, testConfig(), "demo", "", map[string]string{"a.sh": "true\n"})

	var names []string
	for _, tool := range sb.Tools() {
		names = append(names, tool.Name())
		assert.NotEmpty(t, tool.Description())
		schema := tool.GenerateSchema()
		require.NotNil(t, schema)
		assert.Equal(t, "object", schema.Type)
	}
	assert.Equal(t, []string{ListScriptsToolName, DescribeScriptToolName, RunScriptToolName}, names)
}

func TestRunScriptTool(t *testing.T) {
	sb, _ := newTestSandbox(t, testConfig(), "demo", "permissions:\n  env:\n    - \"DEMO_*\"\n", map[string]string{
		"hi.sh": "echo \"hi $1 $DEMO_MOOD\"\n",
	})
	tool := &RunScriptTool{sandbox: sb}

	require.Error(t, tool.ValidateInput(nil, `{"skill_name":"demo"}`))
	require.Error(t, tool.ValidateInput(nil, `not json`))
	require.NoError(t, tool.ValidateInput(nil, `{"skill_name":"demo","script_name":"hi.sh"}`))

	kvs, err := tool.TracingKVs(`{"skill_name":"demo","script_name":"hi.sh","args":["x"]}`)
	require.NoError(t, err)
	assert.Len(t, kvs, 4)

	state := &tooltypes.BasicState{Env: map[string]string{"DEMO_MOOD": "happy"}}
	result := tool.Execute(context.Background(), state, `{"skill_name":"demo","script_name":"hi.sh","args":["bob"]}`)
	require.False(t, result.IsError(), result.GetError())
	assert.Contains(t, result.AssistantFacing(), "hi bob happy")

	structured := result.StructuredData()
	assert.Equal(t, RunScriptToolName, structured.ToolName)
	assert.True(t, structured.Success)
	var meta tooltypes.ScriptRunMetadata
	require.True(t, tooltypes.ExtractMetadata(structured.Metadata, &meta))
	assert.Equal(t, "demo", meta.Skill)
	assert.Equal(t, "hi.sh", meta.Script)
	assert.Equal(t, []string{"bob"}, meta.Args)
	assert.Equal(t, 0, meta.ExitCode)
	assert.NotEmpty(t, meta.RunID)
}

func TestRunScriptTool_Failure(t *testing.T) {
	sb, _ := newTestSandbox(t, testConfig(), "demo", "", map[string]string{"bad.sh": "echo oops >&2\nexit 4\n"})
	tool := &RunScriptTool{sandbox: sb}

	result := tool.Execute(context.Background(), nil, `{"skill_name":"demo","script_name":"bad.sh"}`)
	require.True(t, result.IsError())
	assert.Contains(t, result.GetError(), "execution_failed")
	assert.Contains(t, result.AssistantFacing(), "oops")
	assert.False(t, result.StructuredData().Success)
}

func TestListScriptsTool(t *testing.T) {
	sb, _ := newTestSandbox(t, testConfig(), "demo", "", map[string]string{"a.sh": "true\n", "b.py": "true\n"})
	tool := &ListScriptsTool{sandbox: sb}

	result := tool.Execute(context.Background(), nil, `{"skill_name":"demo"}`)
	require.False(t, result.IsError(), result.GetError())

	var meta tooltypes.ScriptListMetadata
	require.True(t, tooltypes.ExtractMetadata(result.StructuredData().Metadata, &meta))
	assert.Equal(t, "demo", meta.Skill)
	assert.Len(t, meta.Scripts, 2)

	result = tool.Execute(context.Background(), nil, `{"skill_name":"ghost"}`)
	assert.True(t, result.IsError())
	assert.Contains(t, result.GetError(), "not_found")
}

func TestDescribeScriptTool(t *testing.T) {
	sb, _ := newTestSandbox(t, testConfig(), "demo", "", map[string]string{"tool.py": "echo \"usage: tool $1\"\n"})
	tool := &DescribeScriptTool{sandbox: sb}

	result := tool.Execute(context.Background(), nil, `{"skill_name":"demo","script_name":"tool"}`)
	require.False(t, result.IsError(), result.GetError())

	var meta tooltypes.ScriptHelpMetadata
	require.True(t, tooltypes.ExtractMetadata(result.StructuredData().Metadata, &meta))
	assert.Equal(t, "usage: tool --help\n", meta.Help)
	assert.Equal(t, "tool.py", meta.Script)
}
