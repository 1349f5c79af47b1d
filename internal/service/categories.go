package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/quillpress/quill-server/internal/domain"
	domainerrors "github.com/quillpress/quill-server/internal/errors"
	"github.com/quillpress/quill-server/internal/slug"
	"github.com/quillpress/quill-server/internal/store"
	"github.com/quillpress/quill-server/internal/validation"
)

const maxDescriptionLength = 200

// CreateCategoryInput is the payload for categories.create.
type CreateCategoryInput struct {
	Name        string  `json:"name" validate:"min=2,max=50"`
	Slug        *string `json:"slug" validate:"omitnil,min=2,max=50,slug"`
	Description *string `json:"description" validate:"omitnil,max=200"`
}

// Normalize trims text fields and drops a blank slug.
func (in *CreateCategoryInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = emptyToNil(in.Slug)
	in.Description = trimPtr(in.Description)
}

// UpdateCategoryInput is a partial update for categories.update.
type UpdateCategoryInput struct {
	ID          validation.ID           `json:"id" validate:"gt=0"`
	Name        *string                 `json:"name" validate:"omitnil,min=2,max=50"`
	Slug        *string                 `json:"slug" validate:"omitnil,min=2,max=50,slug"`
	Description domain.Nullable[string] `json:"description"`
}

// Normalize trims text fields.
func (in *UpdateCategoryInput) Normalize() {
	in.Name = trimPtr(in.Name)
	in.Slug = trimPtr(in.Slug)
	if in.Description.Valid {
		in.Description.Value = strings.TrimSpace(in.Description.Value)
	}
}

// Check rejects no-op updates and bounds the description.
func (in *UpdateCategoryInput) Check() []domainerrors.FieldError {
	if in.Name == nil && in.Slug == nil && !in.Description.Set {
		return formError(msgEmptyUpdate)
	}
	if in.Description.Valid && utf8.RuneCountInString(in.Description.Value) > maxDescriptionLength {
		return []domainerrors.FieldError{{
			Field:   "description",
			Message: fmt.Sprintf("must be at most %d characters long", maxDescriptionLength),
		}}
	}
	return nil
}

// CategoryService manages categories.
type CategoryService struct {
	store  store.Store
	slugs  *slug.Resolver
	logger *slog.Logger
}

// NewCategoryService creates a category service.
func NewCategoryService(st store.Store, logger *slog.Logger) *CategoryService {
	return &CategoryService{
		store:  st,
		slugs:  slug.NewResolver(st.CategorySlugOwner, "category", slug.CategoryMaxLength),
		logger: logger,
	}
}

// List returns all categories by name, descending.
func (s *CategoryService) List(ctx context.Context) ([]*domain.Category, error) {
	return s.store.ListCategories(ctx)
}

// Get returns a category by ID.
func (s *CategoryService) Get(ctx context.Context, id int64) (*domain.Category, error) {
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return nil, notFound(err, msgCategoryNotFound)
	}
	return c, nil
}

// GetBySlug returns a category by slug.
func (s *CategoryService) GetBySlug(ctx context.Context, categorySlug string) (*domain.Category, error) {
	c, err := s.store.GetCategoryBySlug(ctx, categorySlug)
	if err != nil {
		return nil, notFound(err, msgCategoryNotFound)
	}
	return c, nil
}

// Create inserts a category with a unique slug derived from slug or name.
func (s *CategoryService) Create(ctx context.Context, in CreateCategoryInput) (*domain.Category, error) {
	source := in.Name
	if in.Slug != nil {
		source = *in.Slug
	}

	c := &domain.Category{Name: in.Name, Description: in.Description}
	err := retryOnSlugConflict(func() error {
		resolved, err := s.slugs.EnsureUnique(ctx, source, 0)
		if err != nil {
			return fmt.Errorf("resolve slug: %w", err)
		}
		c.Slug = resolved
		return s.store.CreateCategory(ctx, c)
	}, s.logger)
	if err != nil {
		return nil, err
	}

	s.logger.Info("category created", "category_id", c.ID, "slug", c.Slug)
	return c, nil
}

// Update applies a partial update, recomputing the slug when name or slug is supplied.
func (s *CategoryService) Update(ctx context.Context, in UpdateCategoryInput) (*domain.Category, error) {
	id := in.ID.Int64()
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	patch := domain.CategoryPatch{
		Name:        in.Name,
		Description: in.Description,
	}

	var source *string
	switch {
	case in.Slug != nil:
		source = in.Slug
	case in.Name != nil:
		source = in.Name
	}

	var c *domain.Category
	err := retryOnSlugConflict(func() error {
		if source != nil {
			resolved, err := s.slugs.EnsureUnique(ctx, *source, id)
			if err != nil {
				return fmt.Errorf("resolve slug: %w", err)
			}
			patch.Slug = &resolved
		}
		var err error
		c, err = s.store.UpdateCategory(ctx, id, patch)
		return err
	}, s.logger)
	if err != nil {
		return nil, notFound(err, msgCategoryNotFound)
	}

	s.logger.Info("category updated", "category_id", c.ID, "slug", c.Slug)
	return c, nil
}

// Delete removes a category and its post links.
func (s *CategoryService) Delete(ctx context.Context, id int64) (*Deleted, error) {
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return nil, notFound(err, msgCategoryNotFound)
	}
	s.logger.Info("category deleted", "category_id", id)
	return &Deleted{ID: id}, nil
}
