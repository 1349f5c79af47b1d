// Package store defines the persistence interface for the Quill server.
package store

import (
	"context"

	"github.com/quillpress/quill-server/internal/domain"
)

// Store defines the interface for all persistence operations.
// Reads of posts always include their categories and author.
type Store interface {
	// Lifecycle
	Close() error
	Ping(ctx context.Context) error

	// Users
	CreateUser(ctx context.Context, u *domain.NewUser) (*domain.User, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
	UpdateUser(ctx context.Context, id int64, patch domain.UserPatch) (*domain.User, error)
	DeleteUser(ctx context.Context, id int64) error

	// Categories
	CreateCategory(ctx context.Context, c *domain.Category) error
	GetCategory(ctx context.Context, id int64) (*domain.Category, error)
	GetCategoryBySlug(ctx context.Context, slug string) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]*domain.Category, error)
	UpdateCategory(ctx context.Context, id int64, patch domain.CategoryPatch) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
	CountCategories(ctx context.Context, ids []int64) (int, error)
	CategorySlugOwner(ctx context.Context, slug string) (int64, bool, error)

	// Posts
	CreatePost(ctx context.Context, p *domain.NewPost) (*domain.Post, error)
	GetPost(ctx context.Context, id int64) (*domain.Post, error)
	GetPostBySlug(ctx context.Context, slug string) (*domain.Post, error)
	ListPosts(ctx context.Context, filter domain.PostFilter) ([]*domain.Post, error)
	ListPostsByCategory(ctx context.Context, categoryID int64) ([]*domain.Post, error)
	UpdatePost(ctx context.Context, id int64, patch domain.PostPatch) (*domain.Post, error)
	DeletePost(ctx context.Context, id int64) error
	SetPostCategories(ctx context.Context, postID int64, categoryIDs []int64) error
	PostSlugOwner(ctx context.Context, slug string) (int64, bool, error)
}
