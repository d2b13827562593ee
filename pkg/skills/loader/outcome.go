package loader

import (
	"fmt"

	"github.com/ipdelete/agent-base-sub000/pkg/skills/manifest"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/registry"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/security"
	"github.com/pkg/errors"
)

// Status is the result of one skill in a load pass.
type Status string

const (
	StatusLoaded           Status = "loaded"
	StatusSkippedDisabled  Status = "skipped-disabled"
	StatusSkippedUntrusted Status = "skipped-untrusted"
	StatusFailed           Status = "failed"
)

// Reason explains a StatusFailed outcome.
type Reason string

const (
	ReasonMalformed           Reason = "malformed"
	ReasonInvalidField        Reason = "invalid_field"
	ReasonInvalidName         Reason = "invalid_name"
	ReasonPathEscape          Reason = "path_escape"
	ReasonIncompatibleVersion Reason = "incompatible_version"
	ReasonDuplicate           Reason = "duplicate"
	ReasonToolsetLoadError    Reason = "toolset_load_error"
	// ReasonScriptsUnreadable means the manifest was fine but the scripts
	// directory could not be listed.
	ReasonScriptsUnreadable Reason = "scripts_unreadable"
)

// Outcome records what happened to one skill directory.
type Outcome struct {
	// Skill is the canonical name, or the directory name when the manifest
	// could not be read far enough to know it.
	Skill   string
	Dir     string
	Bundled bool
	Status  Status
	Reason  Reason
	Message string

	Manifest *manifest.Manifest
	Toolsets int
	Scripts  int
}

func (o Outcome) String() string {
	if o.Status == StatusFailed {
		return fmt.Sprintf("failed to load: %s", o.Reason)
	}
	return string(o.Status)
}

// reasonFor maps errors from the scan phase onto a failure reason.
func reasonFor(err error) Reason {
	switch manifest.KindOf(err) {
	case manifest.KindMalformed:
		return ReasonMalformed
	case manifest.KindInvalidField:
		return ReasonInvalidField
	}
	switch security.KindOf(err) {
	case security.KindInvalidName:
		return ReasonInvalidName
	case security.KindPathEscape:
		return ReasonPathEscape
	}
	if registry.KindOf(err) == registry.KindDuplicate {
		return ReasonDuplicate
	}

	var le *loadError
	if errors.As(err, &le) {
		return le.reason
	}
	return ReasonMalformed
}

type loadError struct {
	reason Reason
	err    error
}

func (e *loadError) Error() string { return e.err.Error() }
func (e *loadError) Unwrap() error { return e.err }

func failure(reason Reason, err error) error {
	return &loadError{reason: reason, err: err}
}
