package rpc

import (
	"log/slog"
	"net/http"

	"github.com/quillpress/quill-server/internal/auth"
)

// Authenticator resolves the caller of a request from its bearer token or session cookie.
type Authenticator struct {
	signer auth.Signer
	logger *slog.Logger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(signer auth.Signer, logger *slog.Logger) *Authenticator {
	return &Authenticator{signer: signer, logger: logger}
}

// Identify returns the verified identity of the request, or nil for anonymous requests.
// A rejected token is treated as no token.
func (a *Authenticator) Identify(r *http.Request) *auth.Identity {
	token := auth.ExtractToken(r)
	if token == "" {
		return nil
	}

	switch v := a.signer.Verify(token).(type) {
	case auth.Verified:
		ident := v.Identity
		return &ident
	case auth.Rejected:
		attrs := []any{"reason", v.Reason, "path", r.URL.Path}
		if v.Reason == auth.ReasonExpired {
			attrs = append(attrs, "tokenExpired", true)
		} else {
			attrs = append(attrs, "invalidToken", true)
		}
		if v.Err != nil {
			attrs = append(attrs, "error", v.Err)
		}
		a.logger.Debug("token rejected", attrs...)
	}
	return nil
}
