// Package di provides dependency injection configuration for the Quill server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/quillpress/quill-server/internal/auth"
	"github.com/quillpress/quill-server/internal/config"
	"github.com/quillpress/quill-server/internal/di/providers"
	"github.com/quillpress/quill-server/internal/logger"
	"github.com/quillpress/quill-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Auth layer
	do.Provide(injector, providers.ProvideAuthKey)
	do.Provide(injector, providers.ProvideSigner)
	do.Provide(injector, providers.ProvideHasher)

	// Database layer
	do.Provide(injector, providers.ProvideStore)

	// Search and storage
	do.Provide(injector, providers.ProvideSearchIndex)
	do.Provide(injector, providers.ProvideUploads)

	// Business services
	do.Provide(injector, providers.ProvidePostService)
	do.Provide(injector, providers.ProvideCategoryService)
	do.Provide(injector, providers.ProvideUserService)
	do.Provide(injector, providers.ProvideAuthService)

	// Workers
	do.Provide(injector, providers.ProvideRateLimits)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and starts the HTTP server.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[providers.AuthKey](injector)
	_ = do.MustInvoke[auth.Signer](injector)
	_ = do.MustInvoke[auth.Hasher](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*providers.UploadsHandle](injector)

	// Business services
	_ = do.MustInvoke[*service.PostService](injector)
	_ = do.MustInvoke[*service.CategoryService](injector)
	_ = do.MustInvoke[*service.UserService](injector)
	_ = do.MustInvoke[*service.AuthService](injector)

	// Workers
	_ = do.MustInvoke[*providers.RateLimitHandle](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	// Bring the search index in line with the database
	if do.MustInvoke[*providers.SearchIndexHandle](injector).SearchIndex != nil {
		providers.SyncSearchIndex(injector)
	}

	return nil
}
