// Package auth provides password hashing, token signing and the request identity.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// Both signers use a 256-bit (32-byte) key.
	keyLength = 32
	// Expected hex-encoded length (32 bytes = 64 hex characters).
	keyHexLength = 64
	// Raw secrets shorter than this are refused.
	minSecretLength = 32
)

// ResolveKey returns the 32 byte signing key.
// A configured secret wins: 64 hex characters are decoded, anything else of at least
// 32 characters is hashed with SHA-256. Without a secret the key is loaded from keyPath,
// generating and saving a new one on first start.
func ResolveKey(secret, keyPath string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret != "" {
		if len(secret) == keyHexLength {
			if key, err := hex.DecodeString(secret); err == nil {
				return key, nil
			}
		}
		if len(secret) < minSecretLength {
			return nil, fmt.Errorf("auth secret must be at least %d characters", minSecretLength)
		}
		sum := sha256.Sum256([]byte(secret))
		return sum[:], nil
	}

	if keyPath == "" {
		return nil, errors.New("either an auth secret or a key path is required")
	}
	return LoadOrGenerateKey(keyPath)
}

// LoadOrGenerateKey loads the signing key stored hex-encoded at keyPath.
// If the file doesn't exist, a new key is generated and saved with owner-only permissions.
func LoadOrGenerateKey(keyPath string) ([]byte, error) {
	//#nosec G304 -- Key path comes from operator configuration
	if keyBytes, err := os.ReadFile(keyPath); err == nil {
		keyHex := strings.TrimSpace(string(keyBytes))

		if len(keyHex) != keyHexLength {
			return nil, fmt.Errorf("invalid auth key length: expected %d hex chars, got %d", keyHexLength, len(keyHex))
		}

		key, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid auth key format: not valid hex: %w", err)
		}

		return key, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read auth key: %w", err)
	}

	key := make([]byte, keyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate auth key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("failed to save auth key: %w", err)
	}

	return key, nil
}
