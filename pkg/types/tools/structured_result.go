package tools

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/pkg/errors"
)

// StructuredToolResult represents a tool's execution result with structured metadata
type StructuredToolResult struct {
	ToolName  string       `json:"toolName"`
	Success   bool         `json:"success"`
	Error     string       `json:"error,omitempty"`
	Metadata  ToolMetadata `json:"metadata,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

type rawStructuredToolResult struct {
	ToolName     string          `json:"toolName"`
	Success      bool            `json:"success"`
	Error        string          `json:"error,omitempty"`
	MetadataType string          `json:"metadataType,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// MarshalJSON tags the metadata with its type so it can be decoded again.
func (s StructuredToolResult) MarshalJSON() ([]byte, error) {
	raw := rawStructuredToolResult{
		ToolName:  s.ToolName,
		Success:   s.Success,
		Error:     s.Error,
		Timestamp: s.Timestamp,
	}

	if s.Metadata != nil {
		raw.MetadataType = s.Metadata.ToolType()
		metadataBytes, err := json.Marshal(s.Metadata)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal metadata")
		}
		raw.Metadata = metadataBytes
	}

	return json.Marshal(raw)
}

var metadataTypeRegistry = map[string]reflect.Type{
	"script_list": reflect.TypeOf(ScriptListMetadata{}),
	"script_help": reflect.TypeOf(ScriptHelpMetadata{}),
	"script_run":  reflect.TypeOf(ScriptRunMetadata{}),
	"skill_tool":  reflect.TypeOf(SkillToolMetadata{}),
}

func (s *StructuredToolResult) UnmarshalJSON(data []byte) error {
	var raw rawStructuredToolResult
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.ToolName = raw.ToolName
	s.Success = raw.Success
	s.Error = raw.Error
	s.Timestamp = raw.Timestamp

	if raw.MetadataType == "" || len(raw.Metadata) == 0 {
		return nil
	}
	metadataType, exists := metadataTypeRegistry[raw.MetadataType]
	if !exists {
		// unknown types are dropped
		return nil
	}

	metadataPtr := reflect.New(metadataType)
	if err := json.Unmarshal(raw.Metadata, metadataPtr.Interface()); err != nil {
		return errors.Wrapf(err, "failed to unmarshal metadata of type %s", raw.MetadataType)
	}
	s.Metadata = metadataPtr.Elem().Interface().(ToolMetadata)
	return nil
}

// ToolMetadata is a marker interface for tool-specific metadata structures
type ToolMetadata interface {
	ToolType() string
}

type ScriptInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

type ScriptListMetadata struct {
	Skill   string       `json:"skill,omitempty"`
	Scripts []ScriptInfo `json:"scripts"`
}

func (m ScriptListMetadata) ToolType() string { return "script_list" }

type ScriptHelpMetadata struct {
	Skill  string `json:"skill"`
	Script string `json:"script"`
	Help   string `json:"help"`
}

func (m ScriptHelpMetadata) ToolType() string { return "script_help" }

type ScriptRunMetadata struct {
	RunID         string        `json:"runId"`
	Skill         string        `json:"skill"`
	Script        string        `json:"script"`
	Args          []string      `json:"args,omitempty"`
	ExitCode      int           `json:"exitCode"`
	Output        string        `json:"output,omitempty"`
	Result        any           `json:"result,omitempty"`
	Truncated     bool          `json:"truncated"`
	StderrTail    string        `json:"stderrTail,omitempty"`
	ExecutionTime time.Duration `json:"executionTime"`
}

func (m ScriptRunMetadata) ToolType() string { return "script_run" }

// SkillToolMetadata describes calls to tools contributed by skill toolsets.
type SkillToolMetadata struct {
	Skill  string `json:"skill"`
	Output string `json:"output"`
}

func (m SkillToolMetadata) ToolType() string { return "skill_tool" }

// ExtractMetadata copies metadata into target, accepting both pointer and
// value metadata. JSON decoding yields values while tools construct pointers.
func ExtractMetadata(metadata ToolMetadata, target any) bool {
	if metadata == nil {
		return false
	}

	targetValue := reflect.ValueOf(target)
	if targetValue.Kind() != reflect.Ptr || targetValue.IsNil() {
		return false
	}

	targetElem := targetValue.Elem()
	metadataValue := reflect.ValueOf(metadata)
	if metadataValue.Kind() == reflect.Ptr && !metadataValue.IsNil() {
		metadataValue = metadataValue.Elem()
	}

	if targetElem.Type() != metadataValue.Type() {
		return false
	}

	targetElem.Set(metadataValue)
	return true
}
