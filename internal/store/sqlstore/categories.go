package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/quillpress/quill-server/internal/domain"
	"github.com/quillpress/quill-server/internal/store"
)

const categoryColumns = `id, name, slug, description`

func scanCategory(scanner interface{ Scan(dest ...any) error }) (*domain.Category, error) {
	var (
		c           domain.Category
		description sql.NullString
	)
	if err := scanner.Scan(&c.ID, &c.Name, &c.Slug, &description); err != nil {
		return nil, err
	}
	c.Description = stringPtr(description)
	return &c, nil
}

// CreateCategory inserts a new category and sets its ID.
func (s *Store) CreateCategory(ctx context.Context, c *domain.Category) error {
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO categories (name, slug, description)
		VALUES (?, ?, ?)
		RETURNING id`),
		c.Name,
		c.Slug,
		nullableString(c.Description),
	).Scan(&c.ID)
	if err != nil {
		return store.TranslateError(fmt.Errorf("insert category: %w", err))
	}
	return nil
}

// GetCategory retrieves a category by ID.
func (s *Store) GetCategory(ctx context.Context, id int64) (*domain.Category, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+categoryColumns+` FROM categories WHERE id = ?`), id)
	c, err := scanCategory(row)
	if err != nil {
		return nil, store.TranslateError(err)
	}
	return c, nil
}

// GetCategoryBySlug retrieves a category by its slug.
func (s *Store) GetCategoryBySlug(ctx context.Context, slug string) (*domain.Category, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+categoryColumns+` FROM categories WHERE slug = ?`), slug)
	c, err := scanCategory(row)
	if err != nil {
		return nil, store.TranslateError(err)
	}
	return c, nil
}

// ListCategories returns all categories by name, descending.
func (s *Store) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY name DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []*domain.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return categories, nil
}

// UpdateCategory applies a partial update and returns the stored row.
func (s *Store) UpdateCategory(ctx context.Context, id int64, patch domain.CategoryPatch) (*domain.Category, error) {
	var set setList
	if patch.Name != nil {
		set.add("name", *patch.Name)
	}
	if patch.Slug != nil {
		set.add("slug", *patch.Slug)
	}
	if patch.Description.Set {
		set.add("description", nullableString(patch.Description.Ptr()))
	}
	if set.empty() {
		return s.GetCategory(ctx, id)
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE categories SET `+set.clause()+` WHERE id = ?`), append(set.args, id)...)
	if err != nil {
		return nil, store.TranslateError(fmt.Errorf("update category: %w", err))
	}
	if err := rowsAffected(res); err != nil {
		return nil, err
	}
	return s.GetCategory(ctx, id)
}

// DeleteCategory removes a category. Post links cascade.
func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM categories WHERE id = ?`), id)
	if err != nil {
		return store.TranslateError(fmt.Errorf("delete category: %w", err))
	}
	return rowsAffected(res)
}

// CountCategories returns how many of the distinct ids exist.
func (s *Store) CountCategories(ctx context.Context, ids []int64) (int, error) {
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*) FROM categories WHERE id IN (`+placeholders(len(ids))+`)`),
		int64Args(ids)...,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	return n, nil
}

// CategorySlugOwner returns the ID of the category using slug, if any.
func (s *Store) CategorySlugOwner(ctx context.Context, slug string) (int64, bool, error) {
	return s.slugOwner(ctx, `SELECT id FROM categories WHERE slug = ?`, slug)
}

func (s *Store) slugOwner(ctx context.Context, query, slug string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(query), slug).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("lookup slug: %w", err)
	}
	return id, true, nil
}

// categoriesByPost loads the categories linked to each post, ordered by name.
func (s *Store) categoriesByPost(ctx context.Context, q querier, postIDs []int64) (map[int64][]domain.Category, error) {
	out := make(map[int64][]domain.Category, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}

	rows, err := q.QueryContext(ctx, s.rebind(`
		SELECT pc.post_id, c.id, c.name, c.slug, c.description
		FROM post_categories pc
		JOIN categories c ON c.id = pc.category_id
		WHERE pc.post_id IN (`+placeholders(len(postIDs))+`)
		ORDER BY c.name, c.id`),
		int64Args(postIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query post categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			postID      int64
			c           domain.Category
			description sql.NullString
		)
		if err := rows.Scan(&postID, &c.ID, &c.Name, &c.Slug, &description); err != nil {
			return nil, fmt.Errorf("scan post category: %w", err)
		}
		c.Description = stringPtr(description)
		out[postID] = append(out[postID], c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}
