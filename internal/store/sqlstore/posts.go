package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/quillpress/quill-server/internal/domain"
	"github.com/quillpress/quill-server/internal/store"
)

// postColumns must match the scan order in scanPost.
const postColumns = `p.id, p.title, p.slug, p.content, p.content_html, p.excerpt,
	p.cover_image, p.published, p.author_id, p.created_at, p.updated_at`

func scanPost(scanner interface{ Scan(dest ...any) error }) (*domain.Post, error) {
	var (
		p          domain.Post
		coverImage sql.NullString
		authorID   sql.NullInt64
		createdAt  dbTime
		updatedAt  dbTime
	)

	err := scanner.Scan(
		&p.ID,
		&p.Title,
		&p.Slug,
		&p.Content,
		&p.ContentHTML,
		&p.Excerpt,
		&coverImage,
		&p.Published,
		&authorID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.CoverImage = stringPtr(coverImage)
	p.AuthorID = int64Ptr(authorID)
	p.CreatedAt = createdAt.Time
	p.UpdatedAt = updatedAt.Time
	p.Categories = []domain.Category{}

	return &p, nil
}

// CreatePost inserts a post and its category links in one transaction.
func (s *Store) CreatePost(ctx context.Context, np *domain.NewPost) (*domain.Post, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.stamp()
		err := tx.QueryRowContext(ctx, s.rebind(`
			INSERT INTO posts (
				title, slug, content, content_html, excerpt,
				cover_image, published, author_id, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`),
			np.Title,
			np.Slug,
			np.Content,
			np.ContentHTML,
			np.Excerpt,
			nullableString(np.CoverImage),
			np.Published,
			nullableInt64(np.AuthorID),
			now,
			now,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert post: %w", err)
		}

		return s.replaceCategories(ctx, tx, id, np.CategoryIDs)
	})
	if err != nil {
		return nil, store.TranslateError(err)
	}

	return s.GetPost(ctx, id)
}

// GetPost retrieves a post by ID with categories and author.
func (s *Store) GetPost(ctx context.Context, id int64) (*domain.Post, error) {
	return s.getPost(ctx, `WHERE p.id = ?`, id)
}

// GetPostBySlug retrieves a post by slug with categories and author.
func (s *Store) GetPostBySlug(ctx context.Context, slug string) (*domain.Post, error) {
	return s.getPost(ctx, `WHERE p.slug = ?`, slug)
}

func (s *Store) getPost(ctx context.Context, where string, arg any) (*domain.Post, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+postColumns+` FROM posts p `+where), arg)
	p, err := scanPost(row)
	if err != nil {
		return nil, store.TranslateError(err)
	}

	if err := s.hydrate(ctx, s.db, []*domain.Post{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPosts returns posts newest first, narrowed by filter.
func (s *Store) ListPosts(ctx context.Context, filter domain.PostFilter) ([]*domain.Post, error) {
	var (
		conds []string
		args  []any
	)
	if filter.AuthorID != nil {
		conds = append(conds, "p.author_id = ?")
		args = append(args, *filter.AuthorID)
	}
	if filter.Published != nil {
		conds = append(conds, "p.published = ?")
		args = append(args, *filter.Published)
	}
	if filter.IDs != nil {
		if len(filter.IDs) == 0 {
			return []*domain.Post{}, nil
		}
		conds = append(conds, "p.id IN ("+placeholders(len(filter.IDs))+")")
		args = append(args, int64Args(filter.IDs)...)
	}

	query := `SELECT ` + postColumns + ` FROM posts p`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY p.created_at DESC, p.id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, max(filter.Offset, 0))
	}

	return s.queryPosts(ctx, query, args...)
}

// ListPostsByCategory returns the posts linked to a category, newest first.
func (s *Store) ListPostsByCategory(ctx context.Context, categoryID int64) ([]*domain.Post, error) {
	return s.queryPosts(ctx, `
		SELECT `+postColumns+`
		FROM posts p
		JOIN post_categories pc ON pc.post_id = p.id
		WHERE pc.category_id = ?
		ORDER BY p.created_at DESC, p.id DESC`, categoryID)
}

func (s *Store) queryPosts(ctx context.Context, query string, args ...any) ([]*domain.Post, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := []*domain.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	if err := s.hydrate(ctx, s.db, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// hydrate attaches categories and authors to posts with one query each.
func (s *Store) hydrate(ctx context.Context, q querier, posts []*domain.Post) error {
	if len(posts) == 0 {
		return nil
	}

	postIDs := lo.Map(posts, func(p *domain.Post, _ int) int64 { return p.ID })
	categories, err := s.categoriesByPost(ctx, q, postIDs)
	if err != nil {
		return err
	}

	authorIDs := lo.Uniq(lo.FilterMap(posts, func(p *domain.Post, _ int) (int64, bool) {
		if p.AuthorID == nil {
			return 0, false
		}
		return *p.AuthorID, true
	}))
	authors, err := s.usersByID(ctx, q, authorIDs)
	if err != nil {
		return err
	}

	for _, p := range posts {
		if cats, ok := categories[p.ID]; ok {
			p.Categories = cats
		}
		if p.AuthorID != nil {
			p.Author = authors[*p.AuthorID]
		}
	}
	return nil
}

// UpdatePost applies a partial update. When CategoryIDs is non-nil the category set is
// replaced in the same transaction.
func (s *Store) UpdatePost(ctx context.Context, id int64, patch domain.PostPatch) (*domain.Post, error) {
	var set setList
	if patch.Title != nil {
		set.add("title", *patch.Title)
	}
	if patch.Slug != nil {
		set.add("slug", *patch.Slug)
	}
	if patch.Content != nil {
		set.add("content", *patch.Content)
	}
	if patch.ContentHTML != nil {
		set.add("content_html", *patch.ContentHTML)
	}
	if patch.Excerpt != nil {
		set.add("excerpt", *patch.Excerpt)
	}
	if patch.CoverImage.Set {
		set.add("cover_image", nullableString(patch.CoverImage.Ptr()))
	}
	if patch.Published != nil {
		set.add("published", *patch.Published)
	}
	if patch.AuthorID.Set {
		set.add("author_id", nullableInt64(patch.AuthorID.Ptr()))
	}
	set.add("updated_at", s.stamp())

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.rebind(`UPDATE posts SET `+set.clause()+` WHERE id = ?`), append(set.args, id)...)
		if err != nil {
			return fmt.Errorf("update post: %w", err)
		}
		if err := rowsAffected(res); err != nil {
			return err
		}
		if patch.CategoryIDs != nil {
			return s.replaceCategories(ctx, tx, id, patch.CategoryIDs)
		}
		return nil
	})
	if err != nil {
		return nil, store.TranslateError(err)
	}

	return s.GetPost(ctx, id)
}

// DeletePost removes a post. Its category links cascade.
func (s *Store) DeletePost(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM posts WHERE id = ?`), id)
	if err != nil {
		return store.TranslateError(fmt.Errorf("delete post: %w", err))
	}
	return rowsAffected(res)
}

// SetPostCategories replaces all categories for a post in a single transaction.
// On failure the previous set is left untouched.
func (s *Store) SetPostCategories(ctx context.Context, postID int64, categoryIDs []int64) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM posts WHERE id = ?`), postID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("lookup post: %w", err)
		}
		return s.replaceCategories(ctx, tx, postID, categoryIDs)
	})
	return store.TranslateError(err)
}

// replaceCategories deletes existing post_categories rows and inserts the new set.
func (s *Store) replaceCategories(ctx context.Context, tx *sql.Tx, postID int64, categoryIDs []int64) error {
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM post_categories WHERE post_id = ?`), postID); err != nil {
		return fmt.Errorf("delete post_categories: %w", err)
	}

	for _, categoryID := range lo.Uniq(categoryIDs) {
		_, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO post_categories (post_id, category_id)
			VALUES (?, ?)`),
			postID,
			categoryID,
		)
		if err != nil {
			return fmt.Errorf("insert post_category: %w", err)
		}
	}
	return nil
}

// PostSlugOwner returns the ID of the post using slug, if any.
func (s *Store) PostSlugOwner(ctx context.Context, slug string) (int64, bool, error) {
	return s.slugOwner(ctx, `SELECT id FROM posts WHERE slug = ?`, slug)
}
