package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/quillpress/quill-server/internal/domain"
	"github.com/quillpress/quill-server/internal/store"
)

// userColumns is the ordered list of columns selected in user queries.
// Must match the scan order in scanUser.
const userColumns = `id, name, email, password_hash, role, is_active,
	bio, profile_image, cover_image, created_at, updated_at`

// scanUser scans a sql.Row (or sql.Rows via its Scan method) into a domain.User.
func scanUser(scanner interface{ Scan(dest ...any) error }) (*domain.User, error) {
	var (
		u            domain.User
		passwordHash sql.NullString
		role         string
		bio          sql.NullString
		profileImage sql.NullString
		coverImage   sql.NullString
		createdAt    dbTime
		updatedAt    dbTime
	)

	err := scanner.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&passwordHash,
		&role,
		&u.IsActive,
		&bio,
		&profileImage,
		&coverImage,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.PasswordHash = stringPtr(passwordHash)
	u.Role = domain.Role(role)
	u.Bio = stringPtr(bio)
	u.ProfileImage = stringPtr(profileImage)
	u.CoverImage = stringPtr(coverImage)
	u.CreatedAt = createdAt.Time
	u.UpdatedAt = updatedAt.Time

	return &u, nil
}

// CreateUser inserts a new user and returns the stored row.
// A duplicate email surfaces as a CONFLICT.
func (s *Store) CreateUser(ctx context.Context, nu *domain.NewUser) (*domain.User, error) {
	role := nu.Role
	if role == "" {
		role = domain.RoleAuthor
	}
	now := s.stamp()

	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO users (name, email, password_hash, role, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		nu.Name,
		strings.TrimSpace(nu.Email),
		nullableString(nu.PasswordHash),
		string(role),
		nu.IsActive,
		now,
		now,
	).Scan(&id)
	if err != nil {
		return nil, store.TranslateError(fmt.Errorf("insert user: %w", err))
	}

	return s.GetUser(ctx, id)
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	u, err := scanUser(row)
	if err != nil {
		return nil, store.TranslateError(err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email. Matching is case-insensitive.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+userColumns+` FROM users WHERE lower(email) = lower(?)`),
		strings.TrimSpace(email))
	u, err := scanUser(row)
	if err != nil {
		return nil, store.TranslateError(err)
	}
	return u, nil
}

// ListUsers returns all users ordered by name.
func (s *Store) ListUsers(ctx context.Context) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return collectUsers(rows)
}

// usersByID loads the users with the given IDs keyed by ID.
func (s *Store) usersByID(ctx context.Context, q querier, ids []int64) (map[int64]*domain.User, error) {
	out := make(map[int64]*domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := q.QueryContext(ctx, s.rebind(`
		SELECT `+userColumns+` FROM users WHERE id IN (`+placeholders(len(ids))+`)`),
		int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query authors: %w", err)
	}
	users, err := collectUsers(rows)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func collectUsers(rows *sql.Rows) ([]*domain.User, error) {
	defer rows.Close()

	users := []*domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return users, nil
}

// UpdateUser applies a partial update and returns the stored row.
func (s *Store) UpdateUser(ctx context.Context, id int64, patch domain.UserPatch) (*domain.User, error) {
	var set setList
	if patch.Name != nil {
		set.add("name", *patch.Name)
	}
	if patch.Email != nil {
		set.add("email", strings.TrimSpace(*patch.Email))
	}
	if patch.Bio.Set {
		set.add("bio", nullableString(patch.Bio.Ptr()))
	}
	if patch.ProfileImage.Set {
		set.add("profile_image", nullableString(patch.ProfileImage.Ptr()))
	}
	if patch.CoverImage.Set {
		set.add("cover_image", nullableString(patch.CoverImage.Ptr()))
	}
	if set.empty() {
		return s.GetUser(ctx, id)
	}
	set.add("updated_at", s.stamp())

	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE users SET `+set.clause()+` WHERE id = ?`), append(set.args, id)...)
	if err != nil {
		return nil, store.TranslateError(fmt.Errorf("update user: %w", err))
	}
	if err := rowsAffected(res); err != nil {
		return nil, err
	}

	return s.GetUser(ctx, id)
}

// DeleteUser removes a user. Their posts are kept with no author.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return store.TranslateError(fmt.Errorf("delete user: %w", err))
	}
	return rowsAffected(res)
}
