package tools

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredToolResult_ScriptRunRoundTrip(t *testing.T) {
	original := StructuredToolResult{
		ToolName:  "script_run",
		Success:   true,
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Metadata: &ScriptRunMetadata{
			RunID:         "run-1",
			Skill:         "kalshi-markets",
			Script:        "status.py",
			Args:          []string{"--json"},
			Result:        map[string]any{"status": "open"},
			ExecutionTime: 250 * time.Millisecond,
		},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"metadataType":"script_run"`)

	var decoded StructuredToolResult
	require.NoError(t, json.Unmarshal(data, &decoded))

	var meta ScriptRunMetadata
	require.True(t, ExtractMetadata(decoded.Metadata, &meta))
	assert.Equal(t, "status.py", meta.Script)
	assert.Equal(t, map[string]any{"status": "open"}, meta.Result)
	assert.Equal(t, 250*time.Millisecond, meta.ExecutionTime)
	assert.True(t, decoded.Timestamp.Equal(original.Timestamp))
}

func TestStructuredToolResult_UnknownMetadataType(t *testing.T) {
	data := []byte(`{"toolName":"x","success":true,"metadataType":"nope","metadata":{"a":1},"timestamp":"2024-01-01T00:00:00Z"}`)

	var decoded StructuredToolResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Nil(t, decoded.Metadata)
	assert.Equal(t, "x", decoded.ToolName)
}

func TestStructuredToolResult_ErrorWithoutMetadata(t *testing.T) {
	result := StructuredToolResult{ToolName: "script_help", Error: "not found"}

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "metadataType")

	var decoded StructuredToolResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.False(t, decoded.Success)
	assert.Equal(t, "not found", decoded.Error)
}

func TestExtractMetadata(t *testing.T) {
	t.Run("pointer metadata", func(t *testing.T) {
		var meta ScriptListMetadata
		ok := ExtractMetadata(&ScriptListMetadata{Skill: "a"}, &meta)
		assert.True(t, ok)
		assert.Equal(t, "a", meta.Skill)
	})

	t.Run("type mismatch", func(t *testing.T) {
		var meta ScriptHelpMetadata
		assert.False(t, ExtractMetadata(ScriptListMetadata{}, &meta))
	})

	t.Run("nil metadata", func(t *testing.T) {
		var meta ScriptHelpMetadata
		assert.False(t, ExtractMetadata(nil, &meta))
	})

	t.Run("non pointer target", func(t *testing.T) {
		assert.False(t, ExtractMetadata(ScriptHelpMetadata{}, ScriptHelpMetadata{}))
	})
}
