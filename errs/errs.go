// Package errs defines the engine-wide error taxonomy. Every store and
// operator operation returns one of these kinds, wrapped with context via
// fmt.Errorf("...: %w", err) in the same named-wrapper-struct style used
// throughout this codebase — no panics on user data ever escape the core.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the taxonomy members in spec.md §7.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyExists
	KindSchemaMismatch
	KindOutOfRange
	KindUnsupportedType
	KindCorruption
	KindUnsupportedVersion
	KindStorageIO
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindSchemaMismatch:
		return "SchemaMismatch"
	case KindOutOfRange:
		return "OutOfRange"
	case KindUnsupportedType:
		return "UnsupportedType"
	case KindCorruption:
		return "Corruption"
	case KindUnsupportedVersion:
		return "UnsupportedVersion"
	case KindStorageIO:
		return "StorageIo"
	case KindCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Error is a Kind-tagged error. Use New or Wrap to construct one; use Is to
// test a returned error against a Kind.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// New creates a new Kind-tagged error with a message.
func New(k Kind, msg string) error {
	return &Error{Kind: k, msg: msg}
}

// Newf creates a new Kind-tagged error with a formatted message.
func Newf(k Kind, format string, args ...any) error {
	return &Error{Kind: k, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an existing error.
func Wrap(k Kind, msg string, err error) error {
	return &Error{Kind: k, msg: msg, err: err}
}

// Is reports whether err (or any error it wraps) carries Kind k.
func Is(err error, k Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == k {
			return true
		}
		err = e.err
	}
	return false
}

// KindOf extracts the Kind from err, or KindUnknown if err is not tagged.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
