package auth

import (
	"net/http"
	"strings"
)

// SessionCookie is promoted to a bearer token when no Authorization header is sent.
const SessionCookie = "session-token"

// ExtractToken returns the bearer token from the request, or "" when there is none.
// The scheme match is case-insensitive.
func ExtractToken(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}

	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}
