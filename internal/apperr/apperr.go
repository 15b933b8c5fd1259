// Package apperr defines the error taxonomy shared by the isolation layer,
// the tenant registry and the provisioning flow.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is a machine-readable error class.
type Kind string

const (
	KindValidation         Kind = "VALIDATION"
	KindConflict           Kind = "CONFLICT"
	KindUpstream           Kind = "UPSTREAM"
	KindIsolationViolation Kind = "ISOLATION_VIOLATION"
	KindNotFound           Kind = "NOT_FOUND"
	KindInternal           Kind = "INTERNAL"
)

// Error is the domain error type.
type Error struct {
	Kind    Kind   // Error class
	Message string // Human-readable reason
	Cause   error  // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is comparisons by kind.
var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrUpstream           = &Error{Kind: KindUpstream}
	ErrIsolationViolation = &Error{Kind: KindIsolationViolation}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrInternal           = &Error{Kind: KindInternal}
)

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(message string) *Error { return New(KindValidation, message) }

func Conflict(message string) *Error { return New(KindConflict, message) }

func NotFound(message string) *Error { return New(KindNotFound, message) }

// Upstream reports a rejection or failure of an external system.
func Upstream(message string, cause error) *Error {
	return Wrap(KindUpstream, message, cause)
}

// IsolationViolation reports a tenant-scoped operation attempted without a
// bound tenant context. It always indicates a defect in the caller.
func IsolationViolation(message string) *Error {
	return New(KindIsolationViolation, message)
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error to the status code handlers respond with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show end users. Isolation
// violations and internal errors never leak details.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	switch e.Kind {
	case KindIsolationViolation, KindInternal:
		return "internal error"
	}
	return e.Error()
}
