package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"

	"github.com/quillpress/quill-server/internal/auth"
	domainerrors "github.com/quillpress/quill-server/internal/errors"
	"github.com/quillpress/quill-server/internal/ratelimit"
)

// identify attaches the caller's identity to REST operations. Anonymous and
// rejected tokens continue without one; handlers decide whether that is allowed.
func (s *Server) identify(ctx huma.Context, next func(huma.Context)) {
	r, _ := humachi.Unwrap(ctx)
	if ident := s.authn.Identify(r); ident != nil {
		ctx = huma.WithContext(ctx, auth.WithIdentity(ctx.Context(), ident))
	}
	next(ctx)
}

// limit charges REST operations against the same budget as procedures.
// Must run after identify.
func (s *Server) limit(ctx huma.Context, next func(huma.Context)) {
	if s.opts.Limiter == nil {
		next(ctx)
		return
	}

	r, _ := humachi.Unwrap(ctx)
	key := "ip:" + ratelimit.ClientIP(r)
	if ident, ok := auth.IdentityFrom(ctx.Context()); ok {
		key = "user:" + strconv.FormatInt(ident.UserID, 10)
	}

	decision, err := s.opts.Limiter.Hit(ctx.Context(), key)
	if err != nil {
		s.logger.Warn("rate limiter unavailable, allowing request", "key", key, "error", err)
		next(ctx)
		return
	}
	if !decision.Allowed {
		s.logger.Warn("Rate limit exceeded", "key", key, "path", ctx.URL().Path)
		ctx.SetHeader("Retry-After", strconv.Itoa(decision.RetryAfterSeconds()))
		_ = huma.WriteErr(s.api, ctx, http.StatusTooManyRequests, "", domainerrors.TooManyRequests("Rate limit exceeded").
			WithDetails(map[string]any{
				"limitResetAt":      decision.ResetAt.UTC().Format(time.RFC3339),
				"retryAfterSeconds": decision.RetryAfterSeconds(),
				"currentRequests":   decision.Count,
				"maxRequests":       decision.Limit,
			}))
		return
	}
	next(ctx)
}

// requireIdentity returns the caller or UNAUTHORIZED.
func requireIdentity(ctx context.Context) (*auth.Identity, error) {
	ident, ok := auth.IdentityFrom(ctx)
	if !ok {
		return nil, domainerrors.Unauthorized("You must be logged in to perform this action")
	}
	return ident, nil
}
