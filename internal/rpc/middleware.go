package rpc

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	domainerrors "github.com/quillpress/quill-server/internal/errors"
	"github.com/quillpress/quill-server/internal/ratelimit"
)

// Logging logs the start and completion of every call.
func Logging(logger *slog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) (any, error) {
			start := time.Now()
			userID := callerLabel(call)

			logger.Debug("rpc call started",
				"path", call.Path,
				"type", call.Kind,
				"user_id", userID,
				"request_id", middleware.GetReqID(ctx),
			)

			out, err := next(ctx, call)

			attrs := []any{
				"path", call.Path,
				"type", call.Kind,
				"user_id", userID,
				"duration_ms", time.Since(start).Milliseconds(),
				"ok", err == nil,
			}
			if err != nil {
				attrs = append(attrs, "error_type", domainerrors.From(err).Type)
			}
			logger.Info("rpc call completed", attrs...)

			return out, err
		}
	}
}

func callerLabel(call *Call) string {
	if call.Identity == nil {
		return "anonymous"
	}
	return strconv.FormatInt(call.Identity.UserID, 10)
}

// RateLimit enforces a fixed-window budget keyed by user id, or by client IP for
// anonymous callers. A failing limiter backend lets the call through.
func RateLimit(limiter ratelimit.Limiter, logger *slog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) (any, error) {
			key := rateLimitKey(call)

			d, err := limiter.Hit(ctx, key)
			if err != nil {
				logger.Warn("rate limiter unavailable", "key", key, "error", err)
				return next(ctx, call)
			}
			if !d.Allowed {
				logger.Warn("rate limit exceeded", "key", key, "path", call.Path, "count", d.Count)
				return nil, domainerrors.TooManyRequests("Rate limit exceeded").WithDetails(map[string]any{
					"limitResetAt":      d.ResetAt.UTC().Format(time.RFC3339),
					"retryAfterSeconds": d.RetryAfterSeconds(),
					"currentRequests":   d.Count,
					"maxRequests":       d.Limit,
				})
			}
			return next(ctx, call)
		}
	}
}

func rateLimitKey(call *Call) string {
	if call.Identity != nil {
		return "user:" + strconv.FormatInt(call.Identity.UserID, 10)
	}
	if call.Request != nil {
		return "ip:" + ratelimit.ClientIP(call.Request)
	}
	return "anonymous"
}

// Throttle slows repeated calls from one client IP with a token bucket.
// It guards the credential procedures against guessing.
func Throttle(limiter *ratelimit.KeyedRateLimiter) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) (any, error) {
			ip := "anonymous"
			if call.Request != nil {
				ip = ratelimit.ClientIP(call.Request)
			}
			if !limiter.Allow(call.Path + "|" + ip) {
				return nil, domainerrors.TooManyRequests("Too many attempts. Please try again later.")
			}
			return next(ctx, call)
		}
	}
}
