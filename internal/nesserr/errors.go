// Package nesserr defines the typed error kinds surfaced across the
// adapter's public API boundary, replacing ad hoc error strings with a
// small enumeration callers can branch on.
package nesserr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error categories the adapter surfaces to callers.
type Kind int

const (
	// Internal is the zero value; it marks failures that fit no other
	// kind, such as a stored row that fails to encode or decode.
	Internal Kind = iota
	// NotFound indicates a named ref is missing, or a hash is unreachable
	// from the ref it was resolved against.
	NotFound
	// AlreadyExists indicates create() was called on an existing ref name.
	AlreadyExists
	// Conflict indicates an expected-HEAD mismatch, a conflicting key on
	// merge/transplant, or exhausted CAS retries.
	Conflict
	// InvalidArgument indicates a caller bug: malformed hash, empty
	// transplant list, or a put+delete of the same key in one attempt.
	InvalidArgument
	// RefLogNotFound indicates a requested ref-log offset is unreachable.
	RefLogNotFound
	// Unavailable indicates a transient failure in the persistence layer.
	Unavailable
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case Conflict:
		return "Conflict"
	case InvalidArgument:
		return "InvalidArgument"
	case RefLogNotFound:
		return "RefLogNotFound"
	case Unavailable:
		return "Unavailable"
	default:
		return "Internal"
	}
}

// Error is the single typed error returned across adapter boundaries.
type Error struct {
	Kind Kind
	Msg  string
	Keys []string // populated for Conflict errors enumerating conflicting keys
	Err  error     // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// WithKeys attaches conflicting keys (merge/transplant conflict reporting)
// and returns the same *Error for chaining.
func (e *Error) WithKeys(keys []string) *Error {
	e.Keys = keys
	return e
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

func IsNotFound(err error) bool        { return Is(err, NotFound) }
func IsAlreadyExists(err error) bool   { return Is(err, AlreadyExists) }
func IsConflict(err error) bool        { return Is(err, Conflict) }
func IsInvalidArgument(err error) bool { return Is(err, InvalidArgument) }
func IsRefLogNotFound(err error) bool  { return Is(err, RefLogNotFound) }
func IsUnavailable(err error) bool     { return Is(err, Unavailable) }
