// internal/core/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain failures so adapters can map them to
// transport status codes without inspecting messages.
type ErrorKind string

const (
	KindValidation   ErrorKind = "VALIDATION"
	KindNotFound     ErrorKind = "NOT_FOUND"
	KindInvalidState ErrorKind = "INVALID_STATE"
	KindStorage      ErrorKind = "STORAGE"
	KindUpstream     ErrorKind = "UPSTREAM"
)

// Sentinels for errors.Is checks against a kind.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrStorage      = &Error{Kind: KindStorage}
	ErrUpstream     = &Error{Kind: KindUpstream}
)

// Error is a kinded domain error
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match when the target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewValidationError builds a validation error
func NewValidationError(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError builds a not-found error for an entity and id
func NewNotFoundError(entity string, id any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %v not found", entity, id)}
}

// NewInvalidStateError builds an invalid state error
func NewInvalidStateError(format string, args ...any) error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

// NewStorageError wraps a persistence failure
func NewStorageError(op string, err error) error {
	return &Error{Kind: KindStorage, Message: op, Err: err}
}

// NewUpstreamError wraps a collaborator failure
func NewUpstreamError(source string, err error) error {
	return &Error{Kind: KindUpstream, Message: source + " unavailable", Err: err}
}

// KindOf returns the kind of the first domain error in the chain, or ""
// when err carries none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
