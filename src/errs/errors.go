// Package errs provides the unified error type used across the registry.
//
// Every subsystem (catalog, store engine, services, server) wraps its
// native errors into *errs.Error before returning them to callers.
// Callers use the Is* predicates to handle errors without caring which
// storage engine produced them.
package errs

import (
	"errors"
	"fmt"
)

// Kind categorises an error without exposing engine-specific codes.
type Kind int

const (
	KindUnknown    Kind = iota
	KindValidation      // malformed registration or record input
	KindConflict        // duplicate database id, unique index violation
	KindNotFound        // unknown database, collection, or record id
	KindConnection      // operation attempted on a database that is not connected
	KindStorage         // underlying engine failure (blocked delete, bad file, ...)
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindConnection:
		return "connection"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all registry subsystems.
type Error struct {
	Kind    Kind
	Message string
	Cause   error // original engine-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an *Error with the given kind and message and no cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf creates an *Error with a formatted message.
func Newf(kind Kind, format string, a ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, a...)}
}

// Wrap creates an *Error with the given kind, message, and underlying cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// IsValidation reports whether err was caused by malformed caller input.
func IsValidation(err error) bool {
	return kindOf(err) == KindValidation
}

// IsConflict reports whether err is a duplicate-id or uniqueness failure.
func IsConflict(err error) bool {
	return kindOf(err) == KindConflict
}

// IsNotFound reports whether err represents a missing database,
// collection, or record.
func IsNotFound(err error) bool {
	return kindOf(err) == KindNotFound
}

// IsConnection reports whether err means the target database was not in
// the active-connection map.
func IsConnection(err error) bool {
	return kindOf(err) == KindConnection
}

// IsStorage reports whether err is a failure of the underlying engine.
func IsStorage(err error) bool {
	return kindOf(err) == KindStorage
}

// kindOf extracts the Kind from any error in the chain.
func kindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
