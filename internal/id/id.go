// Package id generates the opaque identifiers Quill hands out: token ids and object storage keys.
// Database rows use integer primary keys and never go through this package.
package id

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Generate creates a prefixed NanoID, e.g. "tok-V1StGXR8_Z5jdHi6B-myT".
// Returns an error if the system has insufficient entropy.
func Generate(prefix string) (string, error) {
	nid, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + nid, nil
}

// MustGenerate is like Generate but panics on failure.
func MustGenerate(prefix string) string {
	v, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return v
}

// ObjectKey builds a storage key such as "avatar/42/0190f7c1-....webp".
// Keys are time-ordered (UUIDv7) so listings under a prefix sort by upload time.
func ObjectKey(kind string, ownerID int64, ext string) (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate object key: %w", err)
	}
	ext = strings.TrimPrefix(ext, ".")
	name := u.String()
	if ext != "" {
		name += "." + ext
	}
	return path.Join(kind, fmt.Sprintf("%d", ownerID), name), nil
}
