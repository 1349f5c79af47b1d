// Package main provides a tool to seed a Quill database with starter content.
//
// It creates an administrator, a passwordless demo author and the default
// categories, then publishes a welcome post. Existing rows are left alone, so
// the tool can be run repeatedly.
//
// Usage:
//
//	SEED_ADMIN_PASSWORD=changeme go run ./cmd/seed
//	go run ./cmd/seed --admin-email=owner@example.com --skip-post
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/samber/do/v2"
	"github.com/samber/lo"

	"github.com/quillpress/quill-server/internal/auth"
	"github.com/quillpress/quill-server/internal/di/providers"
	"github.com/quillpress/quill-server/internal/domain"
	"github.com/quillpress/quill-server/internal/logger"
	domainerrors "github.com/quillpress/quill-server/internal/errors"
	"github.com/quillpress/quill-server/internal/service"
	"github.com/quillpress/quill-server/internal/validation"
)

var (
	adminName  = flag.String("admin-name", "Administrator", "Display name of the admin account")
	adminEmail = flag.String("admin-email", "admin@quill.local", "Email of the admin account")
	skipPost   = flag.Bool("skip-post", false, "Do not publish the welcome post")
)

var defaultCategories = []struct {
	name        string
	description string
}{
	{"Engineering", "Notes from building things"},
	{"Design", "Interfaces, typography and craft"},
	{"Announcements", "News about this blog"},
}

func main() {
	flag.Parse()

	injector := do.New()
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideHasher)
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideSearchIndex)
	do.Provide(injector, providers.ProvidePostService)
	do.Provide(injector, providers.ProvideCategoryService)
	do.Provide(injector, providers.ProvideUserService)

	log := do.MustInvoke[*logger.Logger](injector)
	defer func() {
		if err := injector.Shutdown(); err != nil {
			log.Error("Shutdown error", "error", err)
		}
	}()

	storeHandle, err := do.Invoke[*providers.StoreHandle](injector)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	hasher := do.MustInvoke[auth.Hasher](injector)
	users := do.MustInvoke[*service.UserService](injector)
	categories := do.MustInvoke[*service.CategoryService](injector)
	posts := do.MustInvoke[*service.PostService](injector)

	ctx := context.Background()

	admin, err := seedAdmin(ctx, storeHandle, hasher)
	if err != nil {
		log.Fatalf("Failed to seed admin: %v", err)
	}

	author, err := users.CreateOrGetAuthor(ctx, service.CreateOrGetAuthorInput{Name: "Demo Author"})
	if err != nil {
		log.Fatalf("Failed to seed demo author: %v", err)
	}
	fmt.Printf("Demo author: %s (id %d, passwordless)\n", author.Email, author.ID)

	var seeded []validation.ID
	for _, c := range defaultCategories {
		cat, err := seedCategory(ctx, categories, c.name, c.description)
		if err != nil {
			log.Fatalf("Failed to seed category %q: %v", c.name, err)
		}
		seeded = append(seeded, validation.ID(cat.ID))
	}
	fmt.Printf("Categories: %d ready\n", len(seeded))

	if *skipPost {
		return
	}

	if _, err := posts.GetBySlug(ctx, "welcome-to-quill"); err == nil {
		fmt.Println("Welcome post already exists")
		return
	} else if !isNotFound(err) {
		log.Fatalf("Failed to look up welcome post: %v", err)
	}

	published := true
	post, err := posts.Create(ctx, admin.ID, service.CreatePostInput{
		Title:       "Welcome to Quill",
		Content:     "Quill is up and running. Sign in, create a category and start writing.",
		Excerpt:     "Your new blog is ready.",
		Published:   &published,
		CategoryIDs: seeded[len(seeded)-1:],
	})
	if err != nil {
		log.Fatalf("Failed to create welcome post: %v", err)
	}
	fmt.Printf("Welcome post: /%s (id %d)\n", post.Slug, post.ID)
}

// seedAdmin returns the existing admin account or creates one. The password is
// read from SEED_ADMIN_PASSWORD; without it the admin can only sign in when
// passwordless login is enabled.
func seedAdmin(ctx context.Context, st *providers.StoreHandle, hasher auth.Hasher) (*domain.User, error) {
	existing, err := st.GetUserByEmail(ctx, *adminEmail)
	if err == nil {
		fmt.Printf("Admin: %s already exists (id %d)\n", existing.Email, existing.ID)
		return existing, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	var hash *string
	if password := os.Getenv("SEED_ADMIN_PASSWORD"); password != "" {
		h, err := hasher.Hash(password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		hash = &h
	} else {
		fmt.Println("SEED_ADMIN_PASSWORD not set, creating admin without a password")
	}

	admin, err := st.CreateUser(ctx, &domain.NewUser{
		Name:         *adminName,
		Email:        *adminEmail,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		IsActive:     true,
	})
	if err != nil {
		return nil, err
	}
	fmt.Printf("Admin: %s created (id %d)\n", admin.Email, admin.ID)
	return admin, nil
}

// seedCategory returns the category with the given name, creating it when missing.
func seedCategory(ctx context.Context, categories *service.CategoryService, name, description string) (*domain.Category, error) {
	all, err := categories.List(ctx)
	if err != nil {
		return nil, err
	}
	if existing, ok := lo.Find(all, func(c *domain.Category) bool { return c.Name == name }); ok {
		return existing, nil
	}
	return categories.Create(ctx, service.CreateCategoryInput{Name: name, Description: &description})
}

func isNotFound(err error) bool {
	var domainErr *domainerrors.Error
	return errors.As(err, &domainErr) && domainErr.Type == domainerrors.TypeNotFound
}
