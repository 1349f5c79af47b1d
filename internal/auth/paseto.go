package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"aidanwoods.dev/go-paseto"

	"github.com/quillpress/quill-server/internal/id"
)

const pasetoHeader = "v4.local."

// PasetoSigner issues PASETO v4.local tokens. Claims are encrypted, so they are
// not readable without the key.
type PasetoSigner struct {
	symmetricKey paseto.V4SymmetricKey
	ttl          time.Duration
	now          func() time.Time
}

// NewPasetoSigner creates a signer from a 32 byte symmetric key.
func NewPasetoSigner(key []byte, ttl time.Duration) (*PasetoSigner, error) {
	if len(key) != keyLength {
		return nil, fmt.Errorf("PASETO v4 key must be exactly %d bytes, got %d", keyLength, len(key))
	}

	symmetricKey, err := paseto.V4SymmetricKeyFromBytes(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create PASETO symmetric key: %w", err)
	}

	return &PasetoSigner{symmetricKey: symmetricKey, ttl: ttl, now: time.Now}, nil
}

// Sign implements Signer.
func (s *PasetoSigner) Sign(ident Identity) (string, error) {
	now := s.now()

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetSubject(fmt.Sprint(ident.UserID))
	token.SetAudience(tokenAudience)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(now.Add(s.ttl))

	tokenID, err := id.Generate("tok")
	if err != nil {
		return "", fmt.Errorf("generate token ID: %w", err)
	}
	token.SetJti(tokenID)

	for key, value := range map[string]any{
		"userId":      ident.UserID,
		"email":       ident.Email,
		"name":        ident.Name,
		"permissions": ident.Permissions,
		"roles":       ident.Roles,
	} {
		if err := token.Set(key, value); err != nil {
			return "", fmt.Errorf("set claim %s: %w", key, err)
		}
	}

	return token.V4Encrypt(s.symmetricKey, nil), nil
}

// pasetoClaims mirrors the claims written by Sign.
type pasetoClaims struct {
	UserID      int64     `json:"userId"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Permissions []string  `json:"permissions"`
	Roles       []string  `json:"roles"`
	Issuer      string    `json:"iss"`
	Audience    string    `json:"aud"`
	IssuedAt    time.Time `json:"iat"`
	NotBefore   time.Time `json:"nbf"`
	Expiration  time.Time `json:"exp"`
}

// Verify implements Signer. Time based checks run against the signer clock.
func (s *PasetoSigner) Verify(tokenString string) Verification {
	if !strings.HasPrefix(tokenString, pasetoHeader) || strings.Count(tokenString, ".") < 2 {
		return Rejected{Reason: ReasonMalformed, Err: errors.New("not a v4.local token")}
	}

	parser := paseto.NewParserWithoutExpiryCheck()
	token, err := parser.ParseV4Local(s.symmetricKey, tokenString, nil)
	if err != nil {
		return Rejected{Reason: ReasonInvalid, Err: err}
	}

	var claims pasetoClaims
	if err := json.Unmarshal(token.ClaimsJSON(), &claims); err != nil {
		return Rejected{Reason: ReasonMalformed, Err: fmt.Errorf("parse claims: %w", err)}
	}

	now := s.now()
	switch {
	case claims.Issuer != tokenIssuer || claims.Audience != tokenAudience:
		return Rejected{Reason: ReasonInvalid, Err: errors.New("unexpected issuer or audience")}
	case claims.Expiration.IsZero() || !now.Before(claims.Expiration):
		return Rejected{Reason: ReasonExpired, Err: errors.New("token has expired")}
	case now.Before(claims.NotBefore):
		return Rejected{Reason: ReasonInvalid, Err: errors.New("token not yet valid")}
	case claims.UserID <= 0:
		return Rejected{Reason: ReasonInvalid, Err: errors.New("token has no subject")}
	}

	return Verified{Identity: Identity{
		UserID:      claims.UserID,
		Email:       claims.Email,
		Name:        claims.Name,
		Permissions: claims.Permissions,
		Roles:       claims.Roles,
		IssuedAt:    claims.IssuedAt,
		ExpiresAt:   claims.Expiration,
	}}
}
