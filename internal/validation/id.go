package validation

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	domainerrors "github.com/quillpress/quill-server/internal/errors"
)

// ID is a record identifier accepted as a JSON number or a numeric string.
// Values that are not positive integers decode to -1 so that a gt=0 tag or Check rejects them
// with a field-level message instead of a decode failure.
type ID int64

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}

	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*id = -1
			return nil
		}
		raw = strings.TrimSpace(s)
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		*id = -1
		return nil
	}
	*id = ID(n)
	return nil
}

// Int64 returns the identifier as an int64.
func (id ID) Int64() int64 {
	return int64(id)
}

// Check validates a bare top-level ID input.
func (id *ID) Check() []domainerrors.FieldError {
	if *id <= 0 {
		return []domainerrors.FieldError{{Field: domainerrors.FormField, Message: "ID must be a positive integer"}}
	}
	return nil
}

// IDs converts a list of IDs to int64 values.
func IDs(ids []ID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}
