package auth

import (
	"context"
	"slices"
	"time"

	"github.com/quillpress/quill-server/internal/domain"
)

// Identity is the authenticated principal carried inside a signed token.
type Identity struct {
	UserID      int64     `json:"userId"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Permissions []string  `json:"permissions"`
	Roles       []string  `json:"roles"`
	IssuedAt    time.Time `json:"iat"`
	ExpiresAt   time.Time `json:"exp"`
}

// IdentityFor builds the identity for a user with role-derived grants.
// IssuedAt and ExpiresAt are filled in by the signer.
func IdentityFor(u *domain.User) Identity {
	perms, roles := u.Grants()
	return Identity{
		UserID:      u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Permissions: perms,
		Roles:       roles,
	}
}

// HasPermission reports whether the identity carries permission p.
func (i *Identity) HasPermission(p string) bool {
	return slices.Contains(i.Permissions, p)
}

// HasRole reports whether the identity carries role r.
func (i *Identity) HasRole(r string) bool {
	return slices.Contains(i.Roles, r)
}

// IsAdmin reports whether the identity carries the admin role.
func (i *Identity) IsAdmin() bool {
	return i.HasRole(string(domain.RoleAdmin))
}

// ctxKey is the type for context keys to avoid collisions.
type ctxKey struct{}

// WithIdentity stores the identity in context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IdentityFrom returns the identity stored in context, if any.
func IdentityFrom(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(*Identity)
	return id, ok && id != nil
}
