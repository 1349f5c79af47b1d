// Package search provides full-text search over posts using Bleve.
package search

import (
	"strconv"

	"github.com/quillpress/quill-server/internal/domain"
)

// PostDocument is the indexed form of a post.
// Author name and category slugs are denormalized so one query covers them.
type PostDocument struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Excerpt    string   `json:"excerpt"`
	Content    string   `json:"content"`
	Author     string   `json:"author,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Published  string   `json:"published"`
	CreatedAt  int64    `json:"created_at"`
}

// DocumentID returns the index key for a post.
func DocumentID(postID int64) string {
	return strconv.FormatInt(postID, 10)
}

// PostToDocument converts a post to its search document.
func PostToDocument(p *domain.Post) *PostDocument {
	doc := &PostDocument{
		ID:        DocumentID(p.ID),
		Title:     p.Title,
		Excerpt:   p.Excerpt,
		Content:   p.Content,
		Published: strconv.FormatBool(p.Published),
		CreatedAt: p.CreatedAt.Unix(),
	}
	if p.Author != nil {
		doc.Author = p.Author.Name
	}
	for _, c := range p.Categories {
		doc.Categories = append(doc.Categories, c.Slug)
	}
	return doc
}

// ToMap converts the document to a map so field names match the mapping.
func (d *PostDocument) ToMap() map[string]any {
	m := map[string]any{
		"id":         d.ID,
		"title":      d.Title,
		"excerpt":    d.Excerpt,
		"content":    d.Content,
		"published":  d.Published,
		"created_at": float64(d.CreatedAt),
	}
	if d.Author != "" {
		m["author"] = d.Author
	}
	if len(d.Categories) > 0 {
		m["categories"] = d.Categories
	}
	return m
}
