// Package tools defines the contract between agent-facing tools and the host
// that invokes them.
package tools

import (
	"context"
	"fmt"

	"github.com/invopop/jsonschema"
	"go.opentelemetry.io/otel/attribute"
)

// Tool is a single callable exposed to the agent. Parameters are passed as a
// JSON object encoded in a string.
type Tool interface {
	GenerateSchema() *jsonschema.Schema
	Name() string
	Description() string
	ValidateInput(state State, parameters string) error
	Execute(ctx context.Context, state State, parameters string) ToolResult
	TracingKVs(parameters string) ([]attribute.KeyValue, error)
}

type ToolResult interface {
	AssistantFacing() string
	IsError() bool
	GetError() string
	GetResult() string
	StructuredData() StructuredToolResult
}

// State carries per-session information available to a tool invocation.
type State interface {
	// CallerEnv returns environment variables the caller wants forwarded to
	// child processes. Tools must still apply their own allowlists.
	CallerEnv() map[string]string
	WorkingDir() string
}

// BasicState is a minimal State used by the CLI and tests.
type BasicState struct {
	Env map[string]string
	Dir string
}

func (s *BasicState) CallerEnv() map[string]string {
	if s == nil {
		return nil
	}
	return s.Env
}

func (s *BasicState) WorkingDir() string {
	if s == nil {
		return ""
	}
	return s.Dir
}

// BaseToolResult is a plain result carrying only text and an error message.
type BaseToolResult struct {
	Result string `json:"result"`
	Error  string `json:"error"`
}

func (t BaseToolResult) AssistantFacing() string {
	return StringifyToolResult(t.Result, t.Error)
}

func (t BaseToolResult) IsError() bool     { return t.Error != "" }
func (t BaseToolResult) GetError() string  { return t.Error }
func (t BaseToolResult) GetResult() string { return t.Result }

func (t BaseToolResult) StructuredData() StructuredToolResult {
	return StructuredToolResult{
		Success: !t.IsError(),
		Error:   t.Error,
	}
}

// StringifyToolResult renders a result for the assistant. The result section
// is always present so an empty output is visible as such.
func StringifyToolResult(result, err string) string {
	out := ""
	if err != "" {
		out = fmt.Sprintf(`<error>
%s
</error>
`, err)
	}
	if result == "" {
		result = "(No output)"
	}
	out += fmt.Sprintf(`<result>
%s
</result>
`, result)
	return out
}
