package auth

import (
	"fmt"
	"time"
)

const (
	tokenIssuer   = "quill-server"
	tokenAudience = "quill-client"

	// DefaultTTL is how long issued tokens stay valid.
	DefaultTTL = 24 * time.Hour
)

// Token formats a Signer can produce.
const (
	FormatJWT    = "jwt"
	FormatPaseto = "paseto"
)

// Signer issues and verifies stateless auth tokens.
// Tokens are never persisted; expiry is the only invalidation.
type Signer interface {
	Sign(id Identity) (string, error)
	Verify(token string) Verification
}

// Verification is the outcome of verifying a token: either Verified or Rejected.
type Verification interface {
	verification()
}

// Verified carries the identity recovered from a valid token.
type Verified struct {
	Identity Identity
}

// RejectReason explains why a token was not accepted.
type RejectReason string

const (
	ReasonExpired   RejectReason = "expired"
	ReasonInvalid   RejectReason = "invalid"
	ReasonMalformed RejectReason = "malformed"
)

// Rejected is returned for tokens that cannot be trusted.
type Rejected struct {
	Reason RejectReason
	Err    error
}

func (Verified) verification() {}
func (Rejected) verification() {}

// NewSigner creates a signer for the given format.
func NewSigner(format string, key []byte, ttl time.Duration) (Signer, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	switch format {
	case "", FormatJWT:
		return NewJWTSigner(key, ttl)
	case FormatPaseto:
		return NewPasetoSigner(key, ttl)
	default:
		return nil, fmt.Errorf("unknown token format %q", format)
	}
}
