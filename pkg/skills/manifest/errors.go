package manifest

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies manifest failures.
type Kind string

const (
	KindMalformed    Kind = "malformed"
	KindInvalidField Kind = "invalid_field"
)

// Error is returned for every manifest that cannot be loaded.
type Error struct {
	Kind  Kind
	Field string
	Path  string
	Err   error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Field != "" {
		msg += fmt.Sprintf(" (%s)", e.Field)
	}
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the manifest error kind carried by err, or "" when err is
// not a manifest error.
func KindOf(err error) Kind {
	var merr *Error
	if errors.As(err, &merr) {
		return merr.Kind
	}
	return ""
}

func malformed(path, msg string) error {
	return &Error{Kind: KindMalformed, Path: path, Err: errors.New(msg)}
}

func invalidField(path, field, format string, args ...any) error {
	return &Error{Kind: KindInvalidField, Field: field, Path: path, Err: errors.Errorf(format, args...)}
}
