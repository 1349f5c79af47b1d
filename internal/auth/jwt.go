package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quillpress/quill-server/internal/id"
)

// minJWTKeyLength is the smallest accepted HMAC secret (256 bits).
const minJWTKeyLength = 32

// jwtClaims embeds the registered claims plus our identity fields.
type jwtClaims struct {
	jwt.RegisteredClaims
	UserID      int64    `json:"userId"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	Roles       []string `json:"roles"`
}

// JWTSigner issues HS256 JSON Web Tokens.
type JWTSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewJWTSigner creates a signer using the given HMAC secret.
func NewJWTSigner(key []byte, ttl time.Duration) (*JWTSigner, error) {
	if len(key) < minJWTKeyLength {
		return nil, fmt.Errorf("JWT secret must be at least %d bytes, got %d", minJWTKeyLength, len(key))
	}
	return &JWTSigner{key: key, ttl: ttl, now: time.Now}, nil
}

// Sign implements Signer.
func (s *JWTSigner) Sign(ident Identity) (string, error) {
	now := s.now()

	tokenID, err := id.Generate("tok")
	if err != nil {
		return "", fmt.Errorf("generate token ID: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatInt(ident.UserID, 10),
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        tokenID,
		},
		UserID:      ident.UserID,
		Email:       ident.Email,
		Name:        ident.Name,
		Permissions: ident.Permissions,
		Roles:       ident.Roles,
	})

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify implements Signer.
func (s *JWTSigner) Verify(tokenString string) Verification {
	claims := &jwtClaims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return Rejected{Reason: ReasonExpired, Err: err}
	case errors.Is(err, jwt.ErrTokenMalformed):
		return Rejected{Reason: ReasonMalformed, Err: err}
	default:
		return Rejected{Reason: ReasonInvalid, Err: err}
	}

	ident := Identity{
		UserID:      claims.UserID,
		Email:       claims.Email,
		Name:        claims.Name,
		Permissions: claims.Permissions,
		Roles:       claims.Roles,
	}
	if claims.IssuedAt != nil {
		ident.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		ident.ExpiresAt = claims.ExpiresAt.Time
	}
	if ident.UserID <= 0 {
		return Rejected{Reason: ReasonInvalid, Err: errors.New("token has no subject")}
	}
	return Verified{Identity: ident}
}
