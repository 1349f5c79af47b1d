// Package domain defines the entities of the Quill blog platform and their partial-update shapes.
package domain

import "time"

// Role is the coarse account type stored on a user row.
type Role string

const (
	// RoleAdmin can manage categories and other users.
	RoleAdmin Role = "admin"
	// RoleAuthor can write and manage their own posts.
	RoleAuthor Role = "author"
)

// Permissions carried in issued tokens.
const (
	PermPostsCreate      = "posts:create"
	PermPostsUpdate      = "posts:update"
	PermPostsDelete      = "posts:delete"
	PermCategoriesManage = "categories:manage"
	PermUsersManage      = "users:manage"
)

// User is an account that can author posts.
// Users created through the lightweight authoring flow have no password.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash *string   `json:"-"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"isActive"`
	Bio          *string   `json:"bio"`
	ProfileImage *string   `json:"profileImage"`
	CoverImage   *string   `json:"coverImage"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// IsAdmin returns true if the user has administrative privileges.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// HasPassword reports whether the account has a credential set.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// Grants returns the permissions and roles a token for this user carries.
// Unknown or empty roles are treated as author.
func (u *User) Grants() (permissions, roles []string) {
	permissions = []string{PermPostsCreate, PermPostsUpdate, PermPostsDelete}
	if u.IsAdmin() {
		permissions = append(permissions, PermCategoriesManage, PermUsersManage)
		return permissions, []string{string(RoleAdmin)}
	}
	return permissions, []string{string(RoleAuthor)}
}

// NewUser holds the fields needed to insert a user.
type NewUser struct {
	Name         string
	Email        string
	PasswordHash *string
	Role         Role
	IsActive     bool
}

// UserPatch is a partial update of a user profile.
// Nil pointers leave fields unchanged; Nullable fields can also be cleared.
type UserPatch struct {
	Name         *string
	Email        *string
	Bio          Nullable[string]
	ProfileImage Nullable[string]
	CoverImage   Nullable[string]
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.Name == nil && p.Email == nil && !p.Bio.Set && !p.ProfileImage.Set && !p.CoverImage.Set
}
