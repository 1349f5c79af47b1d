package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// DefaultLimit and MaxLimit bound the number of hits returned.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// SearchParams configures a search query.
type SearchParams struct {
	Query         string
	Category      string // Category slug filter
	PublishedOnly bool
	Limit         int
}

// Hit is a matching post ID with its relevance score.
type Hit struct {
	PostID int64
	Score  float64
}

// Search returns matching post IDs in descending score order.
func (s *SearchIndex) Search(ctx context.Context, params SearchParams) ([]Hit, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(buildSearchQuery(params), limit, 0, false)
	req.SortBy([]string{"-_score", "-created_at"})

	result, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		id, err := strconv.ParseInt(h.ID, 10, 64)
		if err != nil {
			s.logger.Warn("skipping search hit with foreign id", "id", h.ID)
			continue
		}
		hits = append(hits, Hit{PostID: id, Score: h.Score})
	}
	return hits, nil
}

// buildSearchQuery matches the text across fields, boosted towards the title,
// and ANDs any filters.
func buildSearchQuery(params SearchParams) query.Query {
	var queries []query.Query

	if text := strings.TrimSpace(params.Query); text != "" {
		titleMatch := bleve.NewMatchQuery(text)
		titleMatch.SetField("title")
		titleMatch.SetBoost(3.0)

		excerptMatch := bleve.NewMatchQuery(text)
		excerptMatch.SetField("excerpt")
		excerptMatch.SetBoost(2.0)

		contentMatch := bleve.NewMatchQuery(text)
		contentMatch.SetField("content")

		authorMatch := bleve.NewMatchQuery(text)
		authorMatch.SetField("author")
		authorMatch.SetBoost(0.8)

		// Typo tolerance on titles
		fuzzy := bleve.NewFuzzyQuery(strings.ToLower(text))
		fuzzy.SetFuzziness(1)
		fuzzy.SetField("title")
		fuzzy.SetBoost(0.5)

		textQueries := []query.Query{titleMatch, excerptMatch, contentMatch, authorMatch, fuzzy}

		// Prefix query for search-as-you-type (minimum 2 chars)
		if len(text) >= 2 && !strings.Contains(text, " ") {
			prefix := bleve.NewPrefixQuery(strings.ToLower(text))
			prefix.SetField("title")
			prefix.SetBoost(0.5)
			textQueries = append(textQueries, prefix)
		}

		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	if params.Category != "" {
		cq := bleve.NewTermQuery(params.Category)
		cq.SetField("categories")
		queries = append(queries, cq)
	}

	if params.PublishedOnly {
		pq := bleve.NewTermQuery("true")
		pq.SetField("published")
		queries = append(queries, pq)
	}

	switch len(queries) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return queries[0]
	default:
		return bleve.NewConjunctionQuery(queries...)
	}
}
