// Package validation decodes and validates procedure inputs using the validator/v10 library.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	domainerrors "github.com/quillpress/quill-server/internal/errors"
	"github.com/quillpress/quill-server/internal/slug"
)

// Message used for every validation failure envelope.
const failureMessage = "Validation error occurred"

// Normalizer is implemented by inputs that clean themselves (e.g. trim strings) before validation.
type Normalizer interface {
	Normalize()
}

// Checker is implemented by inputs with rules that span fields or the whole object.
// It runs only after tag validation passes.
type Checker interface {
	Check() []domainerrors.FieldError
}

// Validator wraps go-playground/validator with domain error conversion.
type Validator struct {
	v *validator.Validate
}

// New creates a validator configured for our domain.
func New() *Validator {
	v := validator.New()

	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("json")
		if name == "" || name == "-" {
			return fld.Name
		}
		if i := strings.IndexByte(name, ','); i >= 0 {
			return name[:i]
		}
		return name
	})

	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slug.Pattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("httpurl", func(fl validator.FieldLevel) bool {
		return IsHTTPURL(fl.Field().String())
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	// maxbytes bounds the encoded length, where max counts characters.
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		return err == nil && len(fl.Field().String()) <= limit
	})

	return &Validator{v: v}
}

// IsHTTPURL reports whether s is an absolute http or https URL.
func IsHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Validate validates a struct and returns a domain error.
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

// Decode unmarshals raw JSON into dst, normalizes it, and validates it.
// Empty input decodes as null. dst must be a pointer.
func (v *Validator) Decode(raw []byte, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		raw = []byte("null")
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return decodeError(err)
	}

	if n, ok := dst.(Normalizer); ok {
		n.Normalize()
	}

	if isStruct(dst) {
		if err := v.Validate(dst); err != nil {
			return err
		}
	}

	if c, ok := dst.(Checker); ok {
		if fieldErrs := c.Check(); len(fieldErrs) > 0 {
			return domainerrors.Validation(failureMessage, fieldErrs...)
		}
	}

	return nil
}

func isStruct(dst any) bool {
	t := reflect.TypeOf(dst)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t != nil && t.Kind() == reflect.Struct
}

// decodeError converts JSON decoding failures into field or form validation errors.
func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return domainerrors.Validation(failureMessage, domainerrors.FieldError{
			Field:   typeErr.Field,
			Message: "must be a " + jsonKind(typeErr.Type),
		})
	}
	if errors.As(err, &typeErr) {
		return domainerrors.Validation(failureMessage, domainerrors.FieldError{
			Field:   domainerrors.FormField,
			Message: "Expected " + jsonKind(typeErr.Type) + ", received " + typeErr.Value,
		})
	}
	return domainerrors.Validation(failureMessage, domainerrors.FieldError{
		Field:   domainerrors.FormField,
		Message: "Invalid JSON input",
	}).WithCause(err)
}

func jsonKind(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	default:
		return "object"
	}
}

// formatError converts validator errors to domain errors.
func (v *Validator) formatError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	fieldErrors := make([]domainerrors.FieldError, 0, len(validationErrs))
	for _, e := range validationErrs {
		fieldErrors = append(fieldErrors, domainerrors.FieldError{
			Field:   e.Field(),
			Message: v.friendlyMessage(e),
		})
	}

	return domainerrors.Validation(failureMessage, fieldErrors...)
}

//nolint:gocyclo // Switch statement covering validation tags is intentionally exhaustive.
func (v *Validator) friendlyMessage(e validator.FieldError) string {
	isList := e.Kind() == reflect.Slice || e.Kind() == reflect.Array
	isNumber := e.Kind() >= reflect.Int && e.Kind() <= reflect.Float64

	switch e.Tag() {
	case "required", "notblank":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		switch {
		case isList:
			return fmt.Sprintf("must contain at least %s item(s)", e.Param())
		case isNumber:
			return "must be at least " + e.Param()
		}
		return fmt.Sprintf("must be at least %s characters long", e.Param())
	case "max":
		switch {
		case isList:
			return fmt.Sprintf("must contain at most %s item(s)", e.Param())
		case isNumber:
			return "must be at most " + e.Param()
		}
		return fmt.Sprintf("must be at most %s characters long", e.Param())
	case "maxbytes":
		return fmt.Sprintf("must be at most %s bytes long", e.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", e.Param())
	case "slug":
		return "must contain only lowercase letters, numbers, and hyphens, and cannot start or end with a hyphen"
	case "httpurl", "url":
		return "must be a valid http(s) URL"
	case "oneof":
		return "must be one of: " + e.Param()
	case "gt":
		if e.Param() == "0" {
			return "must be a positive integer"
		}
		return "must be greater than " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "lt":
		return "must be less than " + e.Param()
	default:
		return "is invalid"
	}
}
