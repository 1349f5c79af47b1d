package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"github.com/quillpress/quill-server/internal/content"
	"github.com/quillpress/quill-server/internal/domain"
	domainerrors "github.com/quillpress/quill-server/internal/errors"
	"github.com/quillpress/quill-server/internal/search"
	"github.com/quillpress/quill-server/internal/slug"
	"github.com/quillpress/quill-server/internal/store"
	"github.com/quillpress/quill-server/internal/validation"
)

// Listing bounds for posts.list.
const (
	DefaultPostLimit = 50
	MaxPostLimit     = 100
)

// ListPostsInput narrows posts.list. All fields are optional.
type ListPostsInput struct {
	Published *bool `json:"published"`
	Limit     int   `json:"limit" validate:"min=0,max=100"`
	Offset    int   `json:"offset" validate:"min=0"`
}

// ListByAuthorInput selects one author's posts.
type ListByAuthorInput struct {
	AuthorID validation.ID `json:"authorId" validate:"gt=0"`
}

// SlugInput looks a record up by slug.
type SlugInput struct {
	Slug string `json:"slug" validate:"required"`
}

// Normalize trims the slug.
func (in *SlugInput) Normalize() {
	in.Slug = strings.TrimSpace(in.Slug)
}

// CreatePostInput is the payload for posts.create.
type CreatePostInput struct {
	Title       string          `json:"title" validate:"min=3,max=100"`
	Slug        *string         `json:"slug" validate:"omitnil,min=3,max=100,slug"`
	Content     string          `json:"content" validate:"notblank,min=10"`
	Excerpt     string          `json:"excerpt" validate:"min=1,max=200"`
	CoverImage  *string         `json:"coverImage" validate:"omitnil,httpurl"`
	Published   *bool           `json:"published"`
	AuthorID    *validation.ID  `json:"authorId" validate:"omitnil,gt=0"`
	CategoryIDs []validation.ID `json:"categoryIds" validate:"required,min=1,dive,gt=0"`
}

// Normalize trims text fields and drops blank optional ones.
func (in *CreatePostInput) Normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	in.Excerpt = strings.TrimSpace(in.Excerpt)
	in.Slug = emptyToNil(in.Slug)
	in.CoverImage = emptyToNil(in.CoverImage)
}

// UpdatePostInput is a partial update for posts.update.
// coverImage and authorId may be sent as null to clear them.
type UpdatePostInput struct {
	ID          validation.ID                  `json:"id" validate:"gt=0"`
	Title       *string                        `json:"title" validate:"omitnil,min=3,max=100"`
	Slug        *string                        `json:"slug" validate:"omitnil,min=3,max=100,slug"`
	Content     *string                        `json:"content" validate:"omitnil,notblank,min=10"`
	Excerpt     *string                        `json:"excerpt" validate:"omitnil,min=1,max=200"`
	CoverImage  domain.Nullable[string]        `json:"coverImage"`
	Published   *bool                          `json:"published"`
	AuthorID    domain.Nullable[validation.ID] `json:"authorId"`
	CategoryIDs []validation.ID                `json:"categoryIds" validate:"omitnil,min=1,dive,gt=0"`
}

// Normalize trims text fields. A blank coverImage counts as absent.
func (in *UpdatePostInput) Normalize() {
	in.Title = trimPtr(in.Title)
	in.Slug = trimPtr(in.Slug)
	in.Content = trimPtr(in.Content)
	in.Excerpt = trimPtr(in.Excerpt)
	normalizeURL(&in.CoverImage)
}

// Check rejects no-op updates and validates the nullable fields.
func (in *UpdatePostInput) Check() []domainerrors.FieldError {
	if in.Title == nil && in.Slug == nil && in.Content == nil && in.Excerpt == nil &&
		!in.CoverImage.Set && in.Published == nil && !in.AuthorID.Set && in.CategoryIDs == nil {
		return formError(msgEmptyUpdate)
	}
	errs := urlError("coverImage", in.CoverImage.Ptr())
	if in.AuthorID.Valid && in.AuthorID.Value <= 0 {
		errs = append(errs, domainerrors.FieldError{Field: "authorId", Message: "must be a positive integer"})
	}
	return errs
}

// AssignCategoriesInput replaces a post's categories.
type AssignCategoriesInput struct {
	PostID      validation.ID   `json:"postId" validate:"gt=0"`
	CategoryIDs []validation.ID `json:"categoryIds" validate:"required,min=1,dive,gt=0"`
}

// FilterByCategoryInput lists posts in one category.
type FilterByCategoryInput struct {
	CategorySlug string `json:"categorySlug" validate:"required"`
}

// Normalize trims the slug.
func (in *FilterByCategoryInput) Normalize() {
	in.CategorySlug = strings.TrimSpace(in.CategorySlug)
}

// SearchPostsInput is a full-text query.
type SearchPostsInput struct {
	Query         string `json:"query" validate:"notblank,max=200"`
	Category      string `json:"category" validate:"omitempty,slug"`
	PublishedOnly bool   `json:"publishedOnly"`
	Limit         int    `json:"limit" validate:"min=0,max=100"`
}

// PostService handles post authoring and reading.
type PostService struct {
	store    store.Store
	slugs    *slug.Resolver
	renderer *content.Renderer
	index    *search.SearchIndex
	logger   *slog.Logger
}

// NewPostService creates a post service. index may be nil to disable search.
func NewPostService(st store.Store, renderer *content.Renderer, index *search.SearchIndex, logger *slog.Logger) *PostService {
	if renderer == nil {
		renderer = content.Default()
	}
	return &PostService{
		store:    st,
		slugs:    slug.NewResolver(st.PostSlugOwner, "post", slug.PostMaxLength),
		renderer: renderer,
		index:    index,
		logger:   logger,
	}
}

// List returns posts newest first.
func (s *PostService) List(ctx context.Context, in ListPostsInput) ([]*domain.Post, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = DefaultPostLimit
	}
	return s.store.ListPosts(ctx, domain.PostFilter{
		Published: in.Published,
		Limit:     min(limit, MaxPostLimit),
		Offset:    in.Offset,
	})
}

// ListByAuthor returns one author's posts newest first.
func (s *PostService) ListByAuthor(ctx context.Context, authorID int64) ([]*domain.Post, error) {
	return s.store.ListPosts(ctx, domain.PostFilter{AuthorID: &authorID})
}

// Get returns a post by ID.
func (s *PostService) Get(ctx context.Context, id int64) (*domain.Post, error) {
	p, err := s.store.GetPost(ctx, id)
	if err != nil {
		return nil, notFound(err, msgPostNotFound)
	}
	return p, nil
}

// GetBySlug returns a post by slug.
func (s *PostService) GetBySlug(ctx context.Context, postSlug string) (*domain.Post, error) {
	p, err := s.store.GetPostBySlug(ctx, postSlug)
	if err != nil {
		return nil, notFound(err, msgPostNotFound)
	}
	return p, nil
}

// OwnerOf returns the author of a post, or 0 when it has none.
func (s *PostService) OwnerOf(ctx context.Context, id int64) (int64, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return lo.FromPtr(p.AuthorID), nil
}

// Create inserts a post with a unique slug. The author defaults to callerID.
func (s *PostService) Create(ctx context.Context, callerID int64, in CreatePostInput) (*domain.Post, error) {
	categoryIDs := lo.Uniq(validation.IDs(in.CategoryIDs))
	if err := s.checkCategories(ctx, categoryIDs); err != nil {
		return nil, err
	}

	html, err := s.renderer.Render(in.Content)
	if err != nil {
		return nil, fmt.Errorf("render content: %w", err)
	}

	np := &domain.NewPost{
		Title:       in.Title,
		Content:     in.Content,
		ContentHTML: html,
		Excerpt:     in.Excerpt,
		CoverImage:  in.CoverImage,
		Published:   lo.FromPtr(in.Published),
		CategoryIDs: categoryIDs,
	}
	switch {
	case in.AuthorID != nil:
		np.AuthorID = lo.ToPtr(in.AuthorID.Int64())
	case callerID > 0:
		np.AuthorID = lo.ToPtr(callerID)
	}

	source := in.Title
	if in.Slug != nil {
		source = *in.Slug
	}

	var post *domain.Post
	err = retryOnSlugConflict(func() error {
		resolved, err := s.slugs.EnsureUnique(ctx, source, 0)
		if err != nil {
			return fmt.Errorf("resolve slug: %w", err)
		}
		np.Slug = resolved
		post, err = s.store.CreatePost(ctx, np)
		return err
	}, s.logger)
	if err != nil {
		return nil, err
	}

	s.logger.Info("post created", "post_id", post.ID, "slug", post.Slug, "author_id", lo.FromPtr(post.AuthorID))
	s.indexPost(post)
	return post, nil
}

// Update applies a partial update. The slug is recomputed only when slug or title is supplied,
// and a post always keeps its own slug when the source is unchanged.
func (s *PostService) Update(ctx context.Context, in UpdatePostInput) (*domain.Post, error) {
	id := in.ID.Int64()
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	patch := domain.PostPatch{
		Title:      in.Title,
		Content:    in.Content,
		Excerpt:    in.Excerpt,
		CoverImage: in.CoverImage,
		Published:  in.Published,
	}
	if in.AuthorID.Set {
		patch.AuthorID = domain.Nullable[int64]{Set: true, Valid: in.AuthorID.Valid, Value: in.AuthorID.Value.Int64()}
	}
	if in.CategoryIDs != nil {
		patch.CategoryIDs = lo.Uniq(validation.IDs(in.CategoryIDs))
		if err := s.checkCategories(ctx, patch.CategoryIDs); err != nil {
			return nil, err
		}
	}
	if in.Content != nil {
		html, err := s.renderer.Render(*in.Content)
		if err != nil {
			return nil, fmt.Errorf("render content: %w", err)
		}
		patch.ContentHTML = &html
	}

	var source *string
	switch {
	case in.Slug != nil:
		source = in.Slug
	case in.Title != nil:
		source = in.Title
	}

	var post *domain.Post
	err := retryOnSlugConflict(func() error {
		if source != nil {
			resolved, err := s.slugs.EnsureUnique(ctx, *source, id)
			if err != nil {
				return fmt.Errorf("resolve slug: %w", err)
			}
			patch.Slug = &resolved
		}
		var err error
		post, err = s.store.UpdatePost(ctx, id, patch)
		return err
	}, s.logger)
	if err != nil {
		return nil, notFound(err, msgPostNotFound)
	}

	s.logger.Info("post updated", "post_id", post.ID, "slug", post.Slug)
	s.indexPost(post)
	return post, nil
}

// Delete removes a post. Its category links go with it.
func (s *PostService) Delete(ctx context.Context, id int64) (*Deleted, error) {
	if err := s.store.DeletePost(ctx, id); err != nil {
		return nil, notFound(err, msgPostNotFound)
	}

	s.logger.Info("post deleted", "post_id", id)
	if s.index != nil {
		if err := s.index.DeletePost(id); err != nil {
			s.logger.Warn("failed to remove post from search index", "post_id", id, "error", err)
		}
	}
	return &Deleted{ID: id}, nil
}

// AssignCategories replaces a post's category set in one transaction.
func (s *PostService) AssignCategories(ctx context.Context, in AssignCategoriesInput) (*domain.Post, error) {
	postID := in.PostID.Int64()
	categoryIDs := lo.Uniq(validation.IDs(in.CategoryIDs))
	if err := s.checkCategories(ctx, categoryIDs); err != nil {
		return nil, err
	}
	if err := s.store.SetPostCategories(ctx, postID, categoryIDs); err != nil {
		return nil, notFound(err, msgPostNotFound)
	}

	post, err := s.Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	s.indexPost(post)
	return post, nil
}

// FilterByCategory lists the posts in a category. A category with no posts yields an empty list.
func (s *PostService) FilterByCategory(ctx context.Context, categorySlug string) ([]*domain.Post, error) {
	c, err := s.store.GetCategoryBySlug(ctx, categorySlug)
	if err != nil {
		return nil, notFound(err, msgCategoryNotFound)
	}
	return s.store.ListPostsByCategory(ctx, c.ID)
}

// Search runs a full-text query and returns posts in relevance order.
func (s *PostService) Search(ctx context.Context, in SearchPostsInput) ([]*domain.Post, error) {
	if s.index == nil {
		return nil, domainerrors.Unprocessable("Search is not enabled")
	}

	hits, err := s.index.Search(ctx, search.SearchParams{
		Query:         in.Query,
		Category:      in.Category,
		PublishedOnly: in.PublishedOnly,
		Limit:         in.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("search posts: %w", err)
	}
	if len(hits) == 0 {
		return []*domain.Post{}, nil
	}

	ids := lo.Map(hits, func(h search.Hit, _ int) int64 { return h.PostID })
	posts, err := s.store.ListPosts(ctx, domain.PostFilter{IDs: ids})
	if err != nil {
		return nil, err
	}

	// Restore relevance order; hits for posts deleted since indexing drop out.
	byID := lo.KeyBy(posts, func(p *domain.Post) int64 { return p.ID })
	return lo.FilterMap(ids, func(id int64, _ int) (*domain.Post, bool) {
		p, ok := byID[id]
		return p, ok
	}), nil
}

// SyncSearchIndex rebuilds the index when its document count disagrees with the store.
func (s *PostService) SyncSearchIndex(ctx context.Context) error {
	if s.index == nil {
		return nil
	}
	posts, err := s.store.ListPosts(ctx, domain.PostFilter{})
	if err != nil {
		return fmt.Errorf("list posts for index: %w", err)
	}
	count, err := s.index.DocumentCount()
	if err != nil {
		return fmt.Errorf("count indexed posts: %w", err)
	}
	if count == uint64(len(posts)) {
		return nil
	}
	return s.index.Rebuild(posts)
}

func (s *PostService) checkCategories(ctx context.Context, ids []int64) error {
	found, err := s.store.CountCategories(ctx, ids)
	if err != nil {
		return fmt.Errorf("count categories: %w", err)
	}
	if found != len(ids) {
		return domainerrors.BadRequest("One or more categories do not exist").
			WithDetails(map[string]any{"categoryIds": ids})
	}
	return nil
}

func (s *PostService) indexPost(p *domain.Post) {
	if s.index == nil {
		return
	}
	if err := s.index.IndexPost(p); err != nil {
		s.logger.Warn("failed to index post", "post_id", p.ID, "error", err)
	}
}

// retryOnSlugConflict runs fn and, if it loses a slug race to a concurrent writer,
// runs it exactly once more so the slug is re-resolved against the new state.
func retryOnSlugConflict(fn func() error, logger *slog.Logger) error {
	err := fn()
	if err == nil || !store.IsConflictOn(err, "slug") {
		return err
	}
	logger.Warn("slug taken concurrently, resolving again", "error", err)
	return fn()
}

// normalizeURL trims a nullable URL and treats a blank value as absent.
func normalizeURL(n *domain.Nullable[string]) {
	if !n.Set || !n.Valid {
		return
	}
	n.Value = strings.TrimSpace(n.Value)
	if n.Value == "" {
		*n = domain.Nullable[string]{}
	}
}
