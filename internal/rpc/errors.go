package rpc

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5/middleware"

	domainerrors "github.com/quillpress/quill-server/internal/errors"
)

// ErrorShape is the error half of a call response.
type ErrorShape struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Data    ErrorData `json:"data"`
}

// ErrorData carries the machine-readable parts of an error.
type ErrorData struct {
	Type             domainerrors.Type         `json:"type"`
	HTTPStatus       int                       `json:"httpStatus"`
	Path             string                    `json:"path,omitempty"`
	ValidationErrors []domainerrors.FieldError `json:"validationErrors,omitempty"`
	Details          map[string]any            `json:"details,omitempty"`
}

// Formatter turns call errors into ErrorShapes. Internal errors are logged with
// their cause and reported without it.
type Formatter struct {
	logger *slog.Logger
}

// NewFormatter creates a Formatter.
func NewFormatter(logger *slog.Logger) *Formatter {
	return &Formatter{logger: logger}
}

// Format converts err for the procedure at path.
func (f *Formatter) Format(ctx context.Context, path string, err error) ErrorShape {
	e := domainerrors.From(err)

	if e.Type == domainerrors.TypeInternal {
		f.logger.ErrorContext(ctx, "rpc call failed",
			"path", path,
			"request_id", middleware.GetReqID(ctx),
			"error", err,
		)
		e = domainerrors.Internal("Internal server error")
	}

	return ErrorShape{
		Code:    e.Type.RPCCode(),
		Message: e.Message,
		Data: ErrorData{
			Type:             e.Type,
			HTTPStatus:       e.HTTPStatus(),
			Path:             path,
			ValidationErrors: e.ValidationErrors,
			Details:          e.Details,
		},
	}
}
