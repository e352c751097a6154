// Package fault carries the error taxonomy shared by the receipt pipeline.
// Callers branch on Kind, never on message text.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and the HTTP layer.
type Kind string

const (
	KindUnknown     Kind = "unknown"
	KindConfig      Kind = "config"      // missing credentials, fatal
	KindValidation  Kind = "validation"  // user-correctable input
	KindNotFound    Kind = "not_found"   // unknown fileId or record
	KindParse       Kind = "parse"       // model output not valid JSON
	KindProcessing  Kind = "processing"  // remote call or network failure
	KindCommit      Kind = "commit"      // reconciliation precondition failed
	KindUnavailable Kind = "unavailable" // readiness probe failed
)

// Error is a tagged error. Err is optional and reachable through Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a tagged error with a static message.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Errorf creates a tagged error with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error while keeping it unwrappable.
func Wrap(kind Kind, message string, err error) error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of the first tagged error in err's chain,
// or KindUnknown when the chain carries no tag.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether err's chain contains a tagged error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
