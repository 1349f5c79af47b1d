// Package errors provides the typed domain errors shared by services, the RPC layer, and the
// REST surface of the Quill server.
//
// Usage:
//
//	// In services - return typed errors
//	if post == nil {
//	    return nil, errors.NotFound("Post not found")
//	}
//
//	// Anywhere - check with errors.Is against a sentinel of the same type
//	if errors.Is(err, errors.ErrConflict) {
//	    ...
//	}
//
//	// At the transport boundary - recover the typed error
//	domainErr := errors.From(err)
//	status := domainErr.HTTPStatus()
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Type is the machine-readable error category returned to callers as data.type.
type Type string

// Error types surfaced in the error envelope.
const (
	TypeValidation         Type = "VALIDATION_ERROR"
	TypeBadRequest         Type = "BAD_REQUEST"
	TypeNotFound           Type = "NOT_FOUND"
	TypeUnauthorized       Type = "UNAUTHORIZED"
	TypeForbidden          Type = "FORBIDDEN"
	TypeConflict           Type = "CONFLICT"
	TypeInternal           Type = "INTERNAL_SERVER_ERROR"
	TypeMethodNotSupported Type = "METHOD_NOT_SUPPORTED"
	TypeUnprocessable      Type = "UNPROCESSABLE_CONTENT"
	TypeTooManyRequests    Type = "TOO_MANY_REQUESTS"
)

// HTTPStatus returns the HTTP status code for an error type.
func (t Type) HTTPStatus() int {
	switch t {
	case TypeValidation, TypeBadRequest:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeUnauthorized:
		return http.StatusUnauthorized
	case TypeForbidden:
		return http.StatusForbidden
	case TypeConflict:
		return http.StatusConflict
	case TypeMethodNotSupported:
		return http.StatusMethodNotAllowed
	case TypeUnprocessable:
		return http.StatusUnprocessableEntity
	case TypeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// RPCCode returns the JSON-RPC style numeric code placed in the envelope's code field.
func (t Type) RPCCode() int {
	switch t {
	case TypeValidation, TypeBadRequest:
		return -32600
	case TypeUnauthorized:
		return -32001
	case TypeForbidden:
		return -32003
	case TypeNotFound:
		return -32004
	case TypeMethodNotSupported:
		return -32005
	case TypeConflict:
		return -32009
	case TypeUnprocessable:
		return -32022
	case TypeTooManyRequests:
		return -32029
	default:
		return -32603
	}
}

// FieldError is a single validation failure. Field "_form" marks whole-object errors.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FormField is the pseudo-field used for errors not attributable to one field.
const FormField = "_form"

// Error is a domain error with a type, message, and optional structured metadata.
type Error struct {
	Type             Type           `json:"type"`
	Message          string         `json:"message"`
	Details          map[string]any `json:"details,omitempty"`
	ValidationErrors []FieldError   `json:"validationErrors,omitempty"`
	cause            error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Type.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Type == t.Type
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Type.HTTPStatus()
}

// WithDetails returns a copy of the error carrying details.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// WithCause returns a copy of the error wrapping err.
func (e *Error) WithCause(err error) *Error {
	cp := *e
	cp.cause = err
	return &cp
}

// Sentinel errors for use with errors.Is().
var (
	ErrValidation      = &Error{Type: TypeValidation, Message: "validation error"}
	ErrBadRequest      = &Error{Type: TypeBadRequest, Message: "bad request"}
	ErrNotFound        = &Error{Type: TypeNotFound, Message: "not found"}
	ErrUnauthorized    = &Error{Type: TypeUnauthorized, Message: "unauthorized"}
	ErrForbidden       = &Error{Type: TypeForbidden, Message: "forbidden"}
	ErrConflict        = &Error{Type: TypeConflict, Message: "conflict"}
	ErrInternal        = &Error{Type: TypeInternal, Message: "internal error"}
	ErrTooManyRequests = &Error{Type: TypeTooManyRequests, Message: "too many requests"}
)

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Type: TypeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Type: TypeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *Error {
	return &Error{Type: TypeUnauthorized, Message: msg}
}

// Forbidden creates a forbidden error.
func Forbidden(msg string) *Error {
	return &Error{Type: TypeForbidden, Message: msg}
}

// Forbiddenf creates a forbidden error with formatted message.
func Forbiddenf(format string, args ...any) *Error {
	return &Error{Type: TypeForbidden, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error from field errors.
func Validation(msg string, fields ...FieldError) *Error {
	return &Error{Type: TypeValidation, Message: msg, ValidationErrors: fields}
}

// FormValidation creates a validation error carrying a single _form message.
func FormValidation(msg string) *Error {
	return Validation("Validation error occurred", FieldError{Field: FormField, Message: msg})
}

// BadRequest creates a bad request error.
func BadRequest(msg string) *Error {
	return &Error{Type: TypeBadRequest, Message: msg}
}

// Conflict creates a conflict error.
func Conflict(msg string) *Error {
	return &Error{Type: TypeConflict, Message: msg}
}

// Conflictf creates a conflict error with formatted message.
func Conflictf(format string, args ...any) *Error {
	return &Error{Type: TypeConflict, Message: fmt.Sprintf(format, args...)}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Type: TypeInternal, Message: msg}
}

// MethodNotSupported creates a method not supported error.
func MethodNotSupported(msg string) *Error {
	return &Error{Type: TypeMethodNotSupported, Message: msg}
}

// Unprocessable creates an unprocessable content error.
func Unprocessable(msg string) *Error {
	return &Error{Type: TypeUnprocessable, Message: msg}
}

// TooManyRequests creates a rate limit error.
func TooManyRequests(msg string) *Error {
	return &Error{Type: TypeTooManyRequests, Message: msg}
}

// Wrap wraps an error with a type and message.
func Wrap(err error, t Type, msg string) *Error {
	return &Error{Type: t, Message: msg, cause: err}
}

// Wrapf wraps an error with a type and formatted message.
func Wrapf(err error, t Type, format string, args ...any) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...), cause: err}
}

// From returns err as a domain error. Errors that carry no type become internal errors
// with a generic message; the original error stays reachable through Unwrap.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return Wrap(err, TypeInternal, "Internal server error")
}
