package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	domainerrors "github.com/quillpress/quill-server/internal/errors"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when a row does not exist. Services replace it
	// with an entity specific message.
	ErrNotFound = domainerrors.NotFound("resource not found")
)

// Postgres SQLSTATE codes we translate.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

var sqliteUniqueColumn = regexp.MustCompile(`UNIQUE constraint failed: ([\w.]+)`)

// TranslateError maps driver errors onto the domain taxonomy.
// Unique violations become CONFLICT, foreign key violations BAD_REQUEST and missing
// rows ErrNotFound. Anything else is returned unchanged.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	var domainErr *domainerrors.Error
	if errors.As(err, &domainErr) {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound.WithCause(err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return conflict(pgErr.ConstraintName, err)
		case pgForeignKeyViolation:
			return foreignKey(err)
		}
		return err
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		constraint := ""
		if m := sqliteUniqueColumn.FindStringSubmatch(msg); m != nil {
			constraint = m[1]
		}
		return conflict(constraint, err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return foreignKey(err)
	}

	return err
}

func conflict(constraint string, cause error) error {
	e := domainerrors.Conflict("A record with this value already exists").WithCause(cause)
	if constraint != "" {
		e = e.WithDetails(map[string]any{"constraint": constraint})
	}
	return e
}

func foreignKey(cause error) error {
	return domainerrors.BadRequest("Referenced record does not exist").WithCause(cause)
}

// IsConflictOn reports whether err is a CONFLICT raised by the named column or constraint.
// Matching is by substring so both "posts.slug" and "posts_slug_key" match "slug".
func IsConflictOn(err error, column string) bool {
	var e *domainerrors.Error
	if !errors.As(err, &e) || e.Type != domainerrors.TypeConflict {
		return false
	}
	c, _ := e.Details["constraint"].(string)
	return strings.Contains(c, column)
}
