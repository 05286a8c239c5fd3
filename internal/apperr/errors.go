// Package apperr defines the error-kind taxonomy shared by every component so
// that store, bus, and transport failures never leak raw driver errors across
// a boundary (see spec §7).
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds named in the spec's error handling design.
type Kind string

const (
	AuthInvalid     Kind = "AuthInvalid"
	AuthExpired     Kind = "AuthExpired"
	AuthRevoked     Kind = "AuthRevoked"
	Forbidden       Kind = "Forbidden"
	NotFound        Kind = "NotFound"
	InvalidArgument Kind = "InvalidArgument"
	Conflict        Kind = "Conflict"
	Contended       Kind = "Contended"
	Timeout         Kind = "Timeout"
	Unavailable     Kind = "Unavailable"
	SlowConsumer    Kind = "SlowConsumer"
	Internal        Kind = "Internal"
)

// retryable is the default retry advice per kind, overridable per-Error.
var retryable = map[Kind]bool{
	Timeout:     true,
	Unavailable: true,
	Contended:   true,
}

// Error is the typed error every component boundary returns instead of a raw
// driver/library error.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	cause     error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind with the default retry advice.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Retryable: retryable[kind]}
}

// Wrap attaches a kind and message to an underlying error, hiding its
// concrete type from callers.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Retryable: retryable[kind], cause: cause}
}

// As reports whether err is (or wraps) an *Error and, if so, returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is an *Error, or Internal otherwise.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}

// IsRetryable reports whether err carries retry advice, defaulting to false
// for errors that never passed through New/Wrap.
func IsRetryable(err error) bool {
	if e, ok := As(err); ok {
		return e.Retryable
	}
	return false
}
