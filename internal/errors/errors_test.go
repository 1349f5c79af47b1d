package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestType_HTTPStatus(t *testing.T) {
	tests := []struct {
		typ    Type
		status int
	}{
		{TypeValidation, http.StatusBadRequest},
		{TypeBadRequest, http.StatusBadRequest},
		{TypeNotFound, http.StatusNotFound},
		{TypeUnauthorized, http.StatusUnauthorized},
		{TypeForbidden, http.StatusForbidden},
		{TypeConflict, http.StatusConflict},
		{TypeMethodNotSupported, http.StatusMethodNotAllowed},
		{TypeUnprocessable, http.StatusUnprocessableEntity},
		{TypeTooManyRequests, http.StatusTooManyRequests},
		{TypeInternal, http.StatusInternalServerError},
		{Type("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.status, tt.typ.HTTPStatus())
		})
	}
}

func TestError_IsMatchesByType(t *testing.T) {
	err := NotFound("Post not found")

	assert.True(t, Is(err, ErrNotFound))
	assert.False(t, Is(err, ErrConflict))

	wrapped := fmt.Errorf("load post: %w", err)
	assert.True(t, Is(wrapped, ErrNotFound))
}

func TestError_WithDetailsCopies(t *testing.T) {
	base := Conflict("A record with this value already exists")
	withDetails := base.WithDetails(map[string]any{"constraint": "posts_slug_key"})

	assert.Nil(t, base.Details)
	assert.Equal(t, "posts_slug_key", withDetails.Details["constraint"])
	assert.Equal(t, base.Type, withDetails.Type)
}

func TestFrom(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, From(nil))
	})

	t.Run("typed error is returned as is", func(t *testing.T) {
		in := Forbidden("nope")
		out := From(fmt.Errorf("ctx: %w", in))
		assert.Same(t, in, out)
	})

	t.Run("untyped error becomes internal", func(t *testing.T) {
		cause := New("disk on fire")
		out := From(cause)
		require.NotNil(t, out)
		assert.Equal(t, TypeInternal, out.Type)
		assert.Equal(t, "Internal server error", out.Message)
		assert.ErrorIs(t, out, cause)
	})
}

func TestFormValidation(t *testing.T) {
	err := FormValidation("At least one field must be provided for update")

	assert.Equal(t, TypeValidation, err.Type)
	require.Len(t, err.ValidationErrors, 1)
	assert.Equal(t, FormField, err.ValidationErrors[0].Field)
}
