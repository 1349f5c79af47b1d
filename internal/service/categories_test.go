package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillpress/quill-server/internal/domain"
	domainerrors "github.com/quillpress/quill-server/internal/errors"
	"github.com/quillpress/quill-server/internal/slug"
	"github.com/quillpress/quill-server/internal/validation"
)

func TestCategoryService_CreateResolvesCollisions(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	first, err := env.categories.Create(ctx, CreateCategoryInput{Name: "Travel"})
	require.NoError(t, err)
	assert.Equal(t, "travel", first.Slug)

	second, err := env.categories.Create(ctx, CreateCategoryInput{Name: "Travel"})
	require.NoError(t, err)
	assert.Equal(t, "travel-1", second.Slug)
}

func TestCategoryService_SlugLengthCeiling(t *testing.T) {
	env := setupTestEnv(t)

	c, err := env.categories.Create(context.Background(), CreateCategoryInput{Name: "Café " + strings.Repeat("x", 60)})
	require.NoError(t, err)
	assert.True(t, slug.Valid(c.Slug, slug.CategoryMaxLength))
	assert.True(t, strings.HasPrefix(c.Slug, "cafe-"))
}

func TestCategoryService_Update(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	c := env.category(t, "Food")

	updated, err := env.categories.Update(ctx, UpdateCategoryInput{
		ID:          validation.ID(c.ID),
		Description: domain.Some("Recipes and restaurants"),
	})
	require.NoError(t, err)
	assert.Equal(t, "food", updated.Slug)
	require.NotNil(t, updated.Description)

	updated, err = env.categories.Update(ctx, UpdateCategoryInput{ID: validation.ID(c.ID), Name: strPtr("Food & Drink")})
	require.NoError(t, err)
	assert.Equal(t, "food-drink", updated.Slug)

	updated, err = env.categories.Update(ctx, UpdateCategoryInput{ID: validation.ID(c.ID), Description: domain.Null[string]()})
	require.NoError(t, err)
	assert.Nil(t, updated.Description)
}

func TestCategoryService_NotFound(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	_, err := env.categories.Get(ctx, 7)
	require.Error(t, err)
	assert.Equal(t, "Category not found", domainerrors.From(err).Message)

	_, err = env.categories.GetBySlug(ctx, "missing")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	_, err = env.categories.Delete(ctx, 7)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestCategoryService_DeleteCascadesLinks(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	keep := env.category(t, "Keep")
	drop := env.category(t, "Drop")

	post, err := env.posts.Create(ctx, 0, postInput("Linked Post", keep.ID, drop.ID))
	require.NoError(t, err)

	deleted, err := env.categories.Delete(ctx, drop.ID)
	require.NoError(t, err)
	assert.Equal(t, drop.ID, deleted.ID)

	got, err := env.posts.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{keep.ID}, categoryIDs(got))
}

func TestCategoryService_ListByNameDescending(t *testing.T) {
	env := setupTestEnv(t)
	env.category(t, "Alpha")
	env.category(t, "Zulu")

	list, err := env.categories.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Zulu", list[0].Name)
}
