package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	tooltypes "github.com/ipdelete/agent-base-sub000/pkg/types/tools"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const (
	ListScriptsToolName    = "list_scripts"
	DescribeScriptToolName = "describe_script"
	RunScriptToolName      = "run_script"
)

// Tools returns the three sandbox operations as host tools.
func (s *Sandbox) Tools() []tooltypes.Tool {
	return []tooltypes.Tool{
		&ListScriptsTool{sandbox: s},
		&DescribeScriptTool{sandbox: s},
		&RunScriptTool{sandbox: s},
	}
}

// ListScriptsInput defines the input parameters for list_scripts
type ListScriptsInput struct {
	SkillName string `json:"skill_name,omitempty" jsonschema:"description=Skill to list scripts for. Omit to list every loaded skill"`
}

// DescribeScriptInput defines the input parameters for describe_script
type DescribeScriptInput struct {
	SkillName  string `json:"skill_name" jsonschema:"description=Name of the skill that owns the script"`
	ScriptName string `json:"script_name" jsonschema:"description=Script name with or without the .py extension"`
}

// RunScriptInput defines the input parameters for run_script
type RunScriptInput struct {
	SkillName  string   `json:"skill_name" jsonschema:"description=Name of the skill that owns the script"`
	ScriptName string   `json:"script_name" jsonschema:"description=Script name with or without the .py extension"`
	Args       []string `json:"args,omitempty" jsonschema:"description=Arguments passed to the script verbatim. No shell is involved"`
	WantJSON   bool     `json:"want_json,omitempty" jsonschema:"description=Parse standard output as JSON and return it as structured data"`
}

func decode[T any](parameters string) (T, error) {
	var input T
	if err := json.Unmarshal([]byte(parameters), &input); err != nil {
		return input, errors.Wrap(err, "invalid input")
	}
	return input, nil
}

func requireNames(skill, script string) error {
	if strings.TrimSpace(skill) == "" {
		return errors.New("skill_name is required")
	}
	if strings.TrimSpace(script) == "" {
		return errors.New("script_name is required")
	}
	return nil
}

// ListScriptsTool exposes Sandbox.ListScripts.
type ListScriptsTool struct {
	sandbox *Sandbox
}

func (t *ListScriptsTool) Name() string { return ListScriptsToolName }

func (t *ListScriptsTool) Description() string {
	return `List the runnable scripts bundled with loaded skills.

Scripts are not loaded into context. Use this tool to find out which scripts a skill offers, then describe_script to read a script's usage before calling run_script.`
}

func (t *ListScriptsTool) GenerateSchema() *jsonschema.Schema {
	return tooltypes.GenerateSchema[ListScriptsInput]()
}

func (t *ListScriptsTool) ValidateInput(_ tooltypes.State, parameters string) error {
	_, err := decode[ListScriptsInput](parameters)
	return err
}

func (t *ListScriptsTool) TracingKVs(parameters string) ([]attribute.KeyValue, error) {
	input, err := decode[ListScriptsInput](parameters)
	if err != nil {
		return nil, err
	}
	return []attribute.KeyValue{attribute.String("skill_name", input.SkillName)}, nil
}

func (t *ListScriptsTool) Execute(ctx context.Context, _ tooltypes.State, parameters string) tooltypes.ToolResult {
	input, err := decode[ListScriptsInput](parameters)
	if err != nil {
		return &ScriptToolResult{tool: ListScriptsToolName, res: failed(ErrInvalidName, "%v", err)}
	}
	return &ScriptToolResult{tool: ListScriptsToolName, res: t.sandbox.ListScripts(ctx, input.SkillName)}
}

// DescribeScriptTool exposes Sandbox.DescribeScript.
type DescribeScriptTool struct {
	sandbox *Sandbox
}

func (t *DescribeScriptTool) Name() string { return DescribeScriptToolName }

func (t *DescribeScriptTool) Description() string {
	return `Show the usage text of a skill script by running it with --help.

The script runs in its own directory with a hard timeout. Read the usage before calling run_script with arguments.`
}

func (t *DescribeScriptTool) GenerateSchema() *jsonschema.Schema {
	return tooltypes.GenerateSchema[DescribeScriptInput]()
}

func (t *DescribeScriptTool) ValidateInput(_ tooltypes.State, parameters string) error {
	input, err := decode[DescribeScriptInput](parameters)
	if err != nil {
		return err
	}
	return requireNames(input.SkillName, input.ScriptName)
}

func (t *DescribeScriptTool) TracingKVs(parameters string) ([]attribute.KeyValue, error) {
	input, err := decode[DescribeScriptInput](parameters)
	if err != nil {
		return nil, err
	}
	return []attribute.KeyValue{
		attribute.String("skill_name", input.SkillName),
		attribute.String("script_name", input.ScriptName),
	}, nil
}

func (t *DescribeScriptTool) Execute(ctx context.Context, _ tooltypes.State, parameters string) tooltypes.ToolResult {
	input, err := decode[DescribeScriptInput](parameters)
	if err != nil {
		return &ScriptToolResult{tool: DescribeScriptToolName, res: failed(ErrInvalidName, "%v", err)}
	}
	return &ScriptToolResult{
		tool: DescribeScriptToolName,
		res:  t.sandbox.DescribeScript(ctx, input.SkillName, input.ScriptName),
	}
}

// RunScriptTool exposes Sandbox.RunScript. Caller environment variables
// come from the tool state and are checked against the skill's
// permissions.env patterns.
type RunScriptTool struct {
	sandbox *Sandbox
}

func (t *RunScriptTool) Name() string { return RunScriptToolName }

func (t *RunScriptTool) Description() string {
	return fmt.Sprintf(`Run a skill script and return its output.

# Usage
- Arguments are passed as a literal list; there is no shell, so quoting and pipes have no effect
- At most %d arguments and %d bytes of argument text
- Output beyond %d bytes is truncated
- The script is killed after %s
- Set want_json when the script prints JSON to get a parsed result`,
		t.sandbox.cfg.MaxArgs, t.sandbox.cfg.MaxArgBytes, t.sandbox.cfg.MaxOutputBytes, t.sandbox.cfg.Timeout)
}

func (t *RunScriptTool) GenerateSchema() *jsonschema.Schema {
	return tooltypes.GenerateSchema[RunScriptInput]()
}

func (t *RunScriptTool) ValidateInput(_ tooltypes.State, parameters string) error {
	input, err := decode[RunScriptInput](parameters)
	if err != nil {
		return err
	}
	return requireNames(input.SkillName, input.ScriptName)
}

func (t *RunScriptTool) TracingKVs(parameters string) ([]attribute.KeyValue, error) {
	input, err := decode[RunScriptInput](parameters)
	if err != nil {
		return nil, err
	}
	return []attribute.KeyValue{
		attribute.String("skill_name", input.SkillName),
		attribute.String("script_name", input.ScriptName),
		attribute.Int("args", len(input.Args)),
		attribute.Bool("want_json", input.WantJSON),
	}, nil
}

func (t *RunScriptTool) Execute(ctx context.Context, state tooltypes.State, parameters string) tooltypes.ToolResult {
	input, err := decode[RunScriptInput](parameters)
	if err != nil {
		return &ScriptToolResult{tool: RunScriptToolName, res: failed(ErrInvalidName, "%v", err)}
	}

	var env map[string]string
	if state != nil {
		env = state.CallerEnv()
	}
	res := t.sandbox.RunScript(ctx, RunRequest{
		Skill:    input.SkillName,
		Script:   input.ScriptName,
		Args:     input.Args,
		WantJSON: input.WantJSON,
		Env:      env,
	})
	return &ScriptToolResult{tool: RunScriptToolName, res: res, args: input.Args}
}

// ScriptToolResult adapts a sandbox Result to the host's tool result.
type ScriptToolResult struct {
	tool string
	res  *Result
	args []string
}

// Result returns the underlying sandbox result.
func (r *ScriptToolResult) Result() *Result { return r.res }

func (r *ScriptToolResult) IsError() bool { return !r.res.Success }

func (r *ScriptToolResult) GetError() string {
	if r.res.Success {
		return ""
	}
	return fmt.Sprintf("%s: %s", r.res.Error, r.res.Message)
}

// GetResult returns the JSON encoding of the sandbox result.
func (r *ScriptToolResult) GetResult() string {
	b, err := json.MarshalIndent(r.res, "", "  ")
	if err != nil {
		return r.res.Message
	}
	return string(b)
}

func (r *ScriptToolResult) AssistantFacing() string {
	if !r.res.Success {
		var sb strings.Builder
		if r.res.Output != "" {
			fmt.Fprintf(&sb, "output before failure:\n%s\n", r.res.Output)
		}
		if r.res.StderrTail != "" {
			fmt.Fprintf(&sb, "stderr tail:\n%s\n", r.res.StderrTail)
		}
		return tooltypes.StringifyToolResult(sb.String(), r.GetError())
	}
	return tooltypes.StringifyToolResult(r.GetResult(), "")
}

func (r *ScriptToolResult) StructuredData() tooltypes.StructuredToolResult {
	result := tooltypes.StructuredToolResult{
		ToolName:  r.tool,
		Success:   r.res.Success,
		Timestamp: time.Now(),
	}
	if !r.res.Success {
		result.Error = r.GetError()
	}

	switch r.tool {
	case ListScriptsToolName:
		meta := &tooltypes.ScriptListMetadata{Skill: r.res.Skill}
		for _, l := range r.res.Skills {
			for _, sc := range l.Scripts {
				meta.Scripts = append(meta.Scripts, tooltypes.ScriptInfo{Name: l.Skill + "/" + sc.Name, Path: sc.Path})
			}
		}
		result.Metadata = meta
	case DescribeScriptToolName:
		result.Metadata = &tooltypes.ScriptHelpMetadata{
			Skill:  r.res.Skill,
			Script: r.res.Script,
			Help:   r.res.Output,
		}
	case RunScriptToolName:
		result.Metadata = &tooltypes.ScriptRunMetadata{
			RunID:         r.res.RunID,
			Skill:         r.res.Skill,
			Script:        r.res.Script,
			Args:          r.args,
			ExitCode:      r.res.ExitCode,
			Output:        r.res.Output,
			Result:        r.res.Result,
			Truncated:     r.res.Truncated,
			StderrTail:    r.res.StderrTail,
			ExecutionTime: r.res.Elapsed(),
		}
	}
	return result
}
