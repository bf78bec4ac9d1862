package tserrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the machine-readable classification carried by every service error.
type Kind string

const (
	KindValidation        Kind = "ValidationError"
	KindNotFound          Kind = "NotFound"
	KindConflict          Kind = "ConflictError"
	KindNotReady          Kind = "NotReady"
	KindIngestionFailure  Kind = "IngestionFailure"
	KindOutOfBounds       Kind = "OutOfBounds"
	KindUnsupportedFormat Kind = "UnsupportedFormat"
	KindInternal          Kind = "InternalError"
)

// IngestionCause subtypes an IngestionFailure by its root cause.
type IngestionCause string

const (
	CauseNetwork    IngestionCause = "network"
	CauseFormat     IngestionCause = "format"
	CausePermission IngestionCause = "permission"
	CauseUnknown    IngestionCause = "unknown"
)

// Error carries a kind plus a human-readable reason. The wrapped cause, if
// any, is preserved for logging but not exposed in API responses.
type Error struct {
	Kind    Kind
	Cause   IngestionCause
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: errors.WithStack(err)}
}

// Ingestion builds a categorized ingestion failure recorded on a viewpoint.
func Ingestion(err error, cause IngestionCause, message string) *Error {
	return &Error{Kind: KindIngestionFailure, Cause: cause, Message: message, Err: err}
}

// KindOf extracts the kind from err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func IsNotFound(err error) bool    { return Is(err, KindNotFound) }
func IsConflict(err error) bool    { return Is(err, KindConflict) }
func IsNotReady(err error) bool    { return Is(err, KindNotReady) }
func IsOutOfBounds(err error) bool { return Is(err, KindOutOfBounds) }
func IsValidation(err error) bool  { return Is(err, KindValidation) }
