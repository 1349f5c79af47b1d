package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/quillpress/quill-server/internal/errors"
)

// APIError is a custom error type that implements huma.StatusError.
// It gives REST endpoints the same error vocabulary as the procedure endpoint.
type APIError struct { //nolint:revive // API prefix is intentional for clarity
	status           int
	Type             domainerrors.Type         `json:"type" doc:"Machine-readable error type"`
	Message          string                    `json:"message" doc:"Human-readable error message"`
	ValidationErrors []domainerrors.FieldError `json:"validationErrors,omitempty" doc:"Per-field validation failures"`
	Details          map[string]any            `json:"details,omitempty" doc:"Additional error details"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.status
}

// ContentType returns the content type for the error response.
func (e *APIError) ContentType(_ string) string {
	return "application/json"
}

// RegisterErrorHandler configures huma to use domain errors.
// Call this after creating the huma.API but before registering routes.
func RegisterErrorHandler() {
	huma.NewError = newAPIError
}

func newAPIError(status int, message string, errs ...error) huma.StatusError {
	var fields []domainerrors.FieldError
	for _, err := range errs {
		var domainErr *domainerrors.Error
		if errors.As(err, &domainErr) {
			return fromDomainError(domainErr)
		}

		// huma's own request validation
		var detail *huma.ErrorDetail
		if errors.As(err, &detail) {
			fields = append(fields, domainerrors.FieldError{
				Field:   fieldName(detail.Location),
				Message: detail.Message,
			})
		}
	}

	errType := statusToType(status)
	if len(fields) > 0 {
		// huma reports schema violations as 422; they are plain validation failures here.
		return &APIError{
			status:           http.StatusBadRequest,
			Type:             domainerrors.TypeValidation,
			Message:          "Validation error occurred",
			ValidationErrors: fields,
		}
	}
	if errType == domainerrors.TypeInternal {
		message = "Internal server error"
	}

	return &APIError{
		status:  status,
		Type:    errType,
		Message: message,
	}
}

func fromDomainError(e *domainerrors.Error) *APIError {
	if e.Type == domainerrors.TypeInternal {
		return &APIError{status: e.HTTPStatus(), Type: e.Type, Message: "Internal server error"}
	}
	return &APIError{
		status:           e.HTTPStatus(),
		Type:             e.Type,
		Message:          e.Message,
		ValidationErrors: e.ValidationErrors,
		Details:          e.Details,
	}
}

// fieldName turns a huma location such as "body.contentType" into "contentType".
func fieldName(location string) string {
	for _, prefix := range []string{"body.", "query.", "path.", "header."} {
		if rest, ok := strings.CutPrefix(location, prefix); ok {
			return rest
		}
	}
	if location == "" || location == "body" {
		return domainerrors.FormField
	}
	return location
}

// statusToType maps HTTP status codes to our error types.
func statusToType(status int) domainerrors.Type {
	switch status {
	case http.StatusBadRequest:
		return domainerrors.TypeValidation
	case http.StatusUnauthorized:
		return domainerrors.TypeUnauthorized
	case http.StatusForbidden:
		return domainerrors.TypeForbidden
	case http.StatusNotFound:
		return domainerrors.TypeNotFound
	case http.StatusMethodNotAllowed:
		return domainerrors.TypeMethodNotSupported
	case http.StatusConflict:
		return domainerrors.TypeConflict
	case http.StatusUnprocessableEntity:
		return domainerrors.TypeUnprocessable
	case http.StatusTooManyRequests:
		return domainerrors.TypeTooManyRequests
	default:
		if status >= 400 && status < 500 {
			return domainerrors.TypeBadRequest
		}
		return domainerrors.TypeInternal
	}
}
