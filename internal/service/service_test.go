package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quillpress/quill-server/internal/auth"
	"github.com/quillpress/quill-server/internal/domain"
	"github.com/quillpress/quill-server/internal/search"
	"github.com/quillpress/quill-server/internal/store/sqlite"
	"github.com/quillpress/quill-server/internal/store/sqlstore"
	"github.com/quillpress/quill-server/internal/validation"
)

type testEnv struct {
	store      *sqlstore.Store
	index      *search.SearchIndex
	posts      *PostService
	categories *CategoryService
	users      *UserService
	auth       *AuthService
	signer     auth.Signer
}

func tickingClock() func() time.Time {
	t := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	st, err := sqlite.Open(filepath.Join(t.TempDir(), "quill.db"), logger, sqlstore.WithClock(tickingClock()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	index, err := search.NewSearchIndex(search.Options{Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	signer, err := auth.NewJWTSigner([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	require.NoError(t, err)
	hasher, err := auth.NewHasher(auth.HasherBcrypt, 4)
	require.NoError(t, err)

	return &testEnv{
		store:      st,
		index:      index,
		posts:      NewPostService(st, nil, index, logger),
		categories: NewCategoryService(st, logger),
		users:      NewUserService(st, logger),
		auth:       NewAuthService(st, hasher, signer, true, logger),
		signer:     signer,
	}
}

func (e *testEnv) category(t *testing.T, name string) *domain.Category {
	t.Helper()
	c, err := e.categories.Create(context.Background(), CreateCategoryInput{Name: name})
	require.NoError(t, err)
	return c
}

func (e *testEnv) author(t *testing.T, name string) *domain.User {
	t.Helper()
	u, err := e.users.CreateOrGetAuthor(context.Background(), CreateOrGetAuthorInput{Name: name})
	require.NoError(t, err)
	return u
}

func postInput(title string, categoryIDs ...int64) CreatePostInput {
	ids := make([]validation.ID, len(categoryIDs))
	for i, id := range categoryIDs {
		ids[i] = validation.ID(id)
	}
	return CreatePostInput{
		Title:       title,
		Content:     "Some **markdown** body text.",
		Excerpt:     "A short excerpt",
		CategoryIDs: ids,
	}
}

func categoryIDs(p *domain.Post) []int64 {
	ids := make([]int64, 0, len(p.Categories))
	for _, c := range p.Categories {
		ids = append(ids, c.ID)
	}
	return ids
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
