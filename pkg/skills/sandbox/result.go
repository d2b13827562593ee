package sandbox

import (
	"fmt"
	"time"
)

// ErrorKind is the machine-readable failure category of a sandbox call.
type ErrorKind string

const (
	ErrNotFound         ErrorKind = "not_found"
	ErrInvalidName      ErrorKind = "invalid_name"
	ErrArgsTooLarge     ErrorKind = "args_too_large"
	ErrTimeout          ErrorKind = "timeout"
	ErrParseError       ErrorKind = "parse_error"
	ErrExecutionFailed  ErrorKind = "execution_failed"
	ErrPermissionDenied ErrorKind = "permission_denied"
)

// ScriptEntry is one (name, path) pair in a listing.
type ScriptEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// SkillListing is the scripts of one skill.
type SkillListing struct {
	Skill   string        `json:"skill"`
	Scripts []ScriptEntry `json:"scripts"`
}

// Result is returned by every sandbox operation. Failures are values, never
// Go errors, so callers can hand them straight back to the agent.
type Result struct {
	Success bool      `json:"success"`
	Error   ErrorKind `json:"error,omitempty"`
	Message string    `json:"message,omitempty"`

	Skill  string `json:"skill,omitempty"`
	Script string `json:"script,omitempty"`

	// Result holds parsed JSON output when it was requested.
	Result any `json:"result,omitempty"`
	// Output is the raw standard output, the help text for describe, or the
	// non-JSON prefix on parse_error.
	Output    string `json:"output,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
	Summary   string `json:"summary,omitempty"`

	StderrTail string `json:"stderr_tail,omitempty"`
	ExitCode   int    `json:"exit_code"`
	RunID      string `json:"run_id,omitempty"`
	ElapsedMS  int64  `json:"elapsed_ms,omitempty"`

	Skills []SkillListing `json:"skills,omitempty"`
}

// Elapsed returns the measured run time.
func (r *Result) Elapsed() time.Duration {
	return time.Duration(r.ElapsedMS) * time.Millisecond
}

func failed(kind ErrorKind, format string, args ...any) *Result {
	return &Result{Success: false, Error: kind, Message: fmt.Sprintf(format, args...), ExitCode: -1}
}
