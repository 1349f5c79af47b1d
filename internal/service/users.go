package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/quillpress/quill-server/internal/domain"
	domainerrors "github.com/quillpress/quill-server/internal/errors"
	"github.com/quillpress/quill-server/internal/slug"
	"github.com/quillpress/quill-server/internal/store"
	"github.com/quillpress/quill-server/internal/validation"
)

// authorEmailDomain is the domain of addresses derived for lightweight authors.
const authorEmailDomain = "blog.local"

const msgEmailTaken = "Email already registered"

// EmailInput looks a user up by email.
type EmailInput struct {
	Email string `json:"email" validate:"required,email"`
}

// Normalize trims and lowercases the address.
func (in *EmailInput) Normalize() {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
}

// UpdateUserInput is a partial profile update. bio and the image URLs may be null to clear them.
type UpdateUserInput struct {
	ID           validation.ID           `json:"id" validate:"gt=0"`
	Name         *string                 `json:"name" validate:"omitnil,min=1,max=100"`
	Email        *string                 `json:"email" validate:"omitnil,email"`
	Bio          domain.Nullable[string] `json:"bio"`
	ProfileImage domain.Nullable[string] `json:"profileImage"`
	CoverImage   domain.Nullable[string] `json:"coverImage"`
}

// Normalize trims text fields. Blank image URLs count as absent.
func (in *UpdateUserInput) Normalize() {
	in.Name = trimPtr(in.Name)
	if in.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*in.Email))
		in.Email = &e
	}
	if in.Bio.Valid {
		in.Bio.Value = strings.TrimSpace(in.Bio.Value)
	}
	normalizeURL(&in.ProfileImage)
	normalizeURL(&in.CoverImage)
}

// Check rejects no-op updates and validates image URLs.
func (in *UpdateUserInput) Check() []domainerrors.FieldError {
	if in.patch().Empty() {
		return formError(msgEmptyUpdate)
	}
	errs := urlError("profileImage", in.ProfileImage.Ptr())
	return append(errs, urlError("coverImage", in.CoverImage.Ptr())...)
}

func (in *UpdateUserInput) patch() domain.UserPatch {
	return domain.UserPatch{
		Name:         in.Name,
		Email:        in.Email,
		Bio:          in.Bio,
		ProfileImage: in.ProfileImage,
		CoverImage:   in.CoverImage,
	}
}

// CreateOrGetAuthorInput names an author for the lightweight authoring flow.
type CreateOrGetAuthorInput struct {
	Name  string  `json:"name" validate:"notblank,max=100"`
	Email *string `json:"email" validate:"omitnil,email"`
}

// Normalize trims the name and drops a blank email.
func (in *CreateOrGetAuthorInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = emptyToNil(in.Email)
	if in.Email != nil {
		e := strings.ToLower(*in.Email)
		in.Email = &e
	}
}

// UserService manages user profiles.
type UserService struct {
	store  store.Store
	logger *slog.Logger
}

// NewUserService creates a user service.
func NewUserService(st store.Store, logger *slog.Logger) *UserService {
	return &UserService{store: st, logger: logger}
}

// List returns all users ordered by name.
func (s *UserService) List(ctx context.Context) ([]*domain.User, error) {
	return s.store.ListUsers(ctx)
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id int64) (*domain.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, notFound(err, msgUserNotFound)
	}
	return u, nil
}

// GetByEmail returns a user by email, case-insensitively.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, notFound(err, msgUserNotFound)
	}
	return u, nil
}

// Update applies a partial profile update.
func (s *UserService) Update(ctx context.Context, in UpdateUserInput) (*domain.User, error) {
	u, err := s.store.UpdateUser(ctx, in.ID.Int64(), in.patch())
	if err != nil {
		if store.IsConflictOn(err, "email") {
			return nil, domainerrors.Conflict(msgEmailTaken)
		}
		return nil, notFound(err, msgUserNotFound)
	}
	s.logger.Info("user updated", "user_id", u.ID)
	return u, nil
}

// CreateOrGetAuthor returns the user with the given or derived email, creating a
// passwordless author when none exists. Calling it twice with the same name is a no-op.
func (s *UserService) CreateOrGetAuthor(ctx context.Context, in CreateOrGetAuthorInput) (*domain.User, error) {
	email := AuthorEmail(in.Name)
	if in.Email != nil {
		email = *in.Email
	}

	existing, err := s.store.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	u, err := s.store.CreateUser(ctx, &domain.NewUser{
		Name:     in.Name,
		Email:    email,
		Role:     domain.RoleAuthor,
		IsActive: true,
	})
	if err != nil {
		// Lost a race with a concurrent call for the same author.
		if store.IsConflictOn(err, "email") {
			return s.GetByEmail(ctx, email)
		}
		return nil, err
	}

	s.logger.Info("author created", "user_id", u.ID, "email", u.Email)
	return u, nil
}

// Delete removes a user. Their posts remain without an author.
func (s *UserService) Delete(ctx context.Context, id int64) (*Deleted, error) {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return nil, notFound(err, msgUserNotFound)
	}
	s.logger.Info("user deleted", "user_id", id)
	return &Deleted{ID: id}, nil
}

// AuthorEmail derives the placeholder address for a display name,
// e.g. "Jane Q. Doe" becomes "jane.q.doe@blog.local".
func AuthorEmail(name string) string {
	local := strings.ReplaceAll(slug.Normalize(name, 64), "-", ".")
	if local == "" {
		local = "author"
	}
	return local + "@" + authorEmailDomain
}
