package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/quillpress/quill-server/internal/config"
	"github.com/quillpress/quill-server/internal/logger"
	"github.com/quillpress/quill-server/internal/search"
	"github.com/quillpress/quill-server/internal/service"
)

// SearchIndexHandle wraps the search index with shutdown capability.
// SearchIndex is nil when search is disabled.
type SearchIndexHandle struct {
	*search.SearchIndex
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	if h.SearchIndex == nil {
		return nil
	}
	return h.Close()
}

// ProvideSearchIndex provides the Bleve search index.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Search.Enabled {
		log.Info("Search disabled")
		return &SearchIndexHandle{}, nil
	}

	index, err := search.NewSearchIndex(search.Options{
		DataPath: cfg.Search.IndexPath,
		Logger:   log.Logger,
	})
	if err != nil {
		return nil, err
	}

	docCount, _ := index.DocumentCount()
	log.Info("Search index initialized", "documents", docCount, "path", cfg.Search.IndexPath)

	return &SearchIndexHandle{SearchIndex: index}, nil
}

// SyncSearchIndex brings the index in line with the store in the background.
// Should be called after all services are wired.
func SyncSearchIndex(i do.Injector) {
	posts := do.MustInvoke[*service.PostService](i)
	log := do.MustInvoke[*logger.Logger](i)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		start := time.Now()
		if err := posts.SyncSearchIndex(ctx); err != nil {
			log.Error("Search index sync failed", "error", err)
			return
		}
		log.Info("Search index in sync", "duration", time.Since(start))
	}()
}
