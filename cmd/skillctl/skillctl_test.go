package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/ipdelete/agent-base-sub000/pkg/skills/loader"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvPairs(t *testing.T) {
	env, err := parseEnvPairs([]string{"A=1", "B=x=y", "C="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "x=y", "C": ""}, env)

	env, err = parseEnvPairs(nil)
	require.NoError(t, err)
	assert.Nil(t, env)

	_, err = parseEnvPairs([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseEnvPairs([]string{"=v"})
	assert.Error(t, err)
}

func TestPrintOutcomesJSON(t *testing.T) {
	var buf bytes.Buffer
	err := printOutcomesJSON(&buf, []loader.Outcome{
		{Skill: "good", Status: loader.StatusLoaded, Toolsets: 1, Scripts: 2},
		{Skill: "bad", Status: loader.StatusFailed, Reason: loader.ReasonMalformed, Message: "no front matter"},
	})
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "loaded", rows[0]["status"])
	assert.EqualValues(t, 2, rows[0]["scripts"])
	assert.Equal(t, "malformed", rows[1]["reason"])
}

func TestPrintRunResult(t *testing.T) {
	var buf bytes.Buffer
	err := printRunResult(&buf, &sandbox.Result{Success: true, Output: "hi\n", Summary: "ok"}, false)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", buf.String())

	buf.Reset()
	err = printRunResult(&buf, &sandbox.Result{Success: true, Result: map[string]any{"ok": true}}, false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, buf.String())

	buf.Reset()
	err = printRunResult(&buf, &sandbox.Result{
		Error:      sandbox.ErrExecutionFailed,
		Message:    "script exited with code 2",
		StderrTail: "boom\n",
		ExitCode:   2,
	}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution_failed")
	assert.Contains(t, err.Error(), "boom")

	buf.Reset()
	err = printRunResult(&buf, &sandbox.Result{Error: sandbox.ErrTimeout, Message: "slow"}, true)
	require.Error(t, err)
	assert.Contains(t, buf.String(), `"error": "timeout"`)
}
