package security

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindInvalidName Kind = "invalid_name"
	KindPathEscape  Kind = "path_escape"
)

// Error reports a rejected name or path.
type Error struct {
	Kind   Kind
	Input  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %q: %s", e.Kind, e.Input, e.Reason)
}

// KindOf returns the security error kind carried by err, or "".
func KindOf(err error) Kind {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Kind
	}
	return ""
}

func invalidName(input, format string, args ...any) error {
	return &Error{Kind: KindInvalidName, Input: input, Reason: fmt.Sprintf(format, args...)}
}

func pathEscape(input, root string) error {
	return &Error{Kind: KindPathEscape, Input: input, Reason: "resolves outside " + root}
}
