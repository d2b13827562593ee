package bundled

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/toolset"
	tooltypes "github.com/ipdelete/agent-base-sub000/pkg/types/tools"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const (
	HelloExtendedSkill = "hello-extended"
	HelloExtendedRef   = "toolsets/hello:HelloExtendedToolset"
	GreetToolName      = "hello_extended_greet"
)

// HelloOptions are read from toolset_config.
type HelloOptions struct {
	Greeting    string `mapstructure:"greeting"`
	Punctuation string `mapstructure:"punctuation"`
}

// HelloExtendedToolset is the in-process half of the hello-extended skill.
type HelloExtendedToolset struct {
	skill   string
	options HelloOptions
}

func NewHelloExtendedToolset(env toolset.Env) (toolset.Toolset, error) {
	opts := HelloOptions{Greeting: "Hello", Punctuation: "!"}
	if err := env.Decode(&opts); err != nil {
		return nil, err
	}
	return &HelloExtendedToolset{skill: env.Skill, options: opts}, nil
}

func (t *HelloExtendedToolset) Name() string { return "HelloExtendedToolset" }

func (t *HelloExtendedToolset) Tools() []tooltypes.Tool {
	return []tooltypes.Tool{&GreetTool{toolset: t}}
}

// GreetInput defines the input parameters for hello_extended_greet
type GreetInput struct {
	Name  string `json:"name" jsonschema:"description=Who to greet"`
	Style string `json:"style,omitempty" jsonschema:"description=Greeting style,enum=casual,enum=formal,enum=excited"`
}

// GreetTool greets someone in one of three styles.
type GreetTool struct {
	toolset *HelloExtendedToolset
}

func (t *GreetTool) Name() string { return GreetToolName }

func (t *GreetTool) Description() string {
	return "Greet a person by name. Styles: casual (default), formal, excited."
}

func (t *GreetTool) GenerateSchema() *jsonschema.Schema {
	return tooltypes.GenerateSchema[GreetInput]()
}

func (t *GreetTool) ValidateInput(_ tooltypes.State, parameters string) error {
	var input GreetInput
	if err := json.Unmarshal([]byte(parameters), &input); err != nil {
		return errors.Wrap(err, "invalid input")
	}
	if strings.TrimSpace(input.Name) == "" {
		return errors.New("name is required")
	}
	switch input.Style {
	case "", "casual", "formal", "excited":
		return nil
	default:
		return errors.Errorf("unknown style %q", input.Style)
	}
}

func (t *GreetTool) TracingKVs(parameters string) ([]attribute.KeyValue, error) {
	var input GreetInput
	if err := json.Unmarshal([]byte(parameters), &input); err != nil {
		return nil, err
	}
	return []attribute.KeyValue{attribute.String("style", input.Style)}, nil
}

func (t *GreetTool) Execute(_ context.Context, state tooltypes.State, parameters string) tooltypes.ToolResult {
	if err := t.ValidateInput(state, parameters); err != nil {
		return &GreetResult{skill: t.toolset.skill, err: err.Error()}
	}
	var input GreetInput
	_ = json.Unmarshal([]byte(parameters), &input)

	return &GreetResult{skill: t.toolset.skill, greeting: t.toolset.greet(input.Name, input.Style)}
}

func (t *HelloExtendedToolset) greet(name, style string) string {
	name = strings.TrimSpace(name)
	o := t.options
	switch style {
	case "formal":
		return fmt.Sprintf("Good day, %s.", name)
	case "excited":
		return fmt.Sprintf("%s, %s%s%s", strings.ToUpper(o.Greeting), strings.ToUpper(name), o.Punctuation, o.Punctuation)
	default:
		return fmt.Sprintf("%s, %s%s", o.Greeting, name, o.Punctuation)
	}
}

// GreetResult is the result of hello_extended_greet
type GreetResult struct {
	skill    string
	greeting string
	err      string
}

func (r *GreetResult) GetResult() string { return r.greeting }
func (r *GreetResult) GetError() string  { return r.err }
func (r *GreetResult) IsError() bool     { return r.err != "" }

func (r *GreetResult) AssistantFacing() string {
	return tooltypes.StringifyToolResult(r.greeting, r.err)
}

func (r *GreetResult) StructuredData() tooltypes.StructuredToolResult {
	return tooltypes.StructuredToolResult{
		ToolName:  GreetToolName,
		Success:   !r.IsError(),
		Error:     r.err,
		Timestamp: time.Now(),
		Metadata:  &tooltypes.SkillToolMetadata{Skill: r.skill, Output: r.greeting},
	}
}
