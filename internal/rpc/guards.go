package rpc

import (
	"context"
	"fmt"

	domainerrors "github.com/quillpress/quill-server/internal/errors"
)

const msgLoginRequired = "You must be logged in to perform this action"

func unauthenticated() error {
	return domainerrors.Unauthorized(msgLoginRequired)
}

// RequireAuth rejects anonymous calls.
func RequireAuth() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) (any, error) {
			if call.Identity == nil {
				return nil, unauthenticated()
			}
			return next(ctx, call)
		}
	}
}

// RequirePermission rejects callers whose token lacks permission.
func RequirePermission(permission string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) (any, error) {
			if call.Identity == nil {
				return nil, unauthenticated()
			}
			if !call.Identity.HasPermission(permission) {
				return nil, domainerrors.Forbiddenf("You don't have the required permission: %s", permission).
					WithDetails(map[string]any{
						"requiredPermission": permission,
						"userPermissions":    nonNil(call.Identity.Permissions),
					})
			}
			return next(ctx, call)
		}
	}
}

// RequireRole rejects callers whose token lacks role.
func RequireRole(role string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) (any, error) {
			if call.Identity == nil {
				return nil, unauthenticated()
			}
			if !call.Identity.HasRole(role) {
				return nil, domainerrors.Forbiddenf("You don't have the required role: %s", role).
					WithDetails(map[string]any{
						"requiredRole": role,
						"userRoles":    nonNil(call.Identity.Roles),
					})
			}
			return next(ctx, call)
		}
	}
}

// OwnerLoader resolves the owner of the resource a call targets.
// It returns 0 when the resource has no owner and a NOT_FOUND error when it does not exist.
type OwnerLoader func(ctx context.Context, call *Call) (int64, error)

// OwnerOf adapts a loader over the typed input of the guarded procedure.
func OwnerOf[I any](load func(ctx context.Context, in *I) (int64, error)) OwnerLoader {
	return func(ctx context.Context, call *Call) (int64, error) {
		in, ok := InputAs[I](call)
		if !ok {
			return 0, fmt.Errorf("owner loader for %s: unexpected input %T", call.Path, call.Input)
		}
		return load(ctx, in)
	}
}

// RequireOwner allows the call only when the caller owns the targeted resource.
// Admins pass without a lookup.
func RequireOwner(load OwnerLoader) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) (any, error) {
			if call.Identity == nil {
				return nil, unauthenticated()
			}
			if call.Identity.IsAdmin() {
				return next(ctx, call)
			}

			ownerID, err := load(ctx, call)
			if err != nil {
				return nil, err
			}
			if ownerID == 0 || ownerID != call.Identity.UserID {
				var owner any
				if ownerID != 0 {
					owner = ownerID
				}
				return nil, domainerrors.Forbidden("You don't have permission to access this resource").
					WithDetails(map[string]any{
						"ownerId":     owner,
						"requesterId": call.Identity.UserID,
					})
			}
			return next(ctx, call)
		}
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
