// Package service implements the business logic behind the blog's procedures.
// Services receive validated input, talk to the store, and return domain errors.
package service

import (
	"errors"
	"strings"

	domainerrors "github.com/quillpress/quill-server/internal/errors"
	"github.com/quillpress/quill-server/internal/store"
	"github.com/quillpress/quill-server/internal/validation"
)

// Deleted is returned by delete operations.
type Deleted struct {
	ID int64 `json:"id"`
}

// Messages shared between services and the RPC guards.
const (
	msgPostNotFound     = "Post not found"
	msgCategoryNotFound = "Category not found"
	msgUserNotFound     = "User not found"
	msgEmptyUpdate      = "At least one field must be provided for update"
)

// notFound replaces the store's generic not-found error with an entity specific message.
func notFound(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return domainerrors.NotFound(msg)
	}
	return err
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

// emptyToNil treats a blank optional string as absent.
func emptyToNil(s *string) *string {
	s = trimPtr(s)
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func formError(msg string) []domainerrors.FieldError {
	return []domainerrors.FieldError{{Field: domainerrors.FormField, Message: msg}}
}

func urlError(field string, value *string) []domainerrors.FieldError {
	if value == nil || validation.IsHTTPURL(*value) {
		return nil
	}
	return []domainerrors.FieldError{{Field: field, Message: "must be a valid http or https URL"}}
}
