package postgres

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrations, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	body, err := fs.ReadFile(migrations, "migrations/"+entries[0].Name())
	require.NoError(t, err)
	assert.Contains(t, string(body), "-- +goose Up")
	assert.Contains(t, string(body), "CREATE TABLE post_categories")
}

func TestOpen_InvalidURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	_, err := Open(context.Background(), Config{URL: "://not a url"}, logger)
	assert.Error(t, err)
}

func TestOpen_GivesUpWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	_, err := Open(ctx, Config{
		URL:           "postgres://nobody@127.0.0.1:1/quill?connect_timeout=1",
		RetryAttempts: 5,
		RetryInterval: time.Second,
	}, logger)
	assert.Error(t, err)
}
