// Package content renders post bodies from markdown to sanitized HTML.
package content

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer converts markdown to HTML that is safe to embed in a page.
// It is safe for concurrent use.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

var (
	defaultRenderer *Renderer
	defaultOnce     sync.Once
)

// NewRenderer creates a renderer with GitHub flavored markdown and a UGC sanitizing policy.
func NewRenderer() *Renderer {
	policy := bluemonday.UGCPolicy()
	policy.RequireNoFollowOnLinks(true)
	policy.AddTargetBlankToFullyQualifiedLinks(true)

	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			// Raw HTML passes through goldmark and is cleaned by the policy.
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
		policy: policy,
	}
}

// Default returns a shared renderer.
func Default() *Renderer {
	defaultOnce.Do(func() {
		defaultRenderer = NewRenderer()
	})
	return defaultRenderer
}

// Render converts markdown source to sanitized HTML.
func (r *Renderer) Render(source string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return r.policy.Sanitize(buf.String()), nil
}

// PlainText strips all markup, leaving the readable text of rendered HTML.
func PlainText(renderedHTML string) string {
	return bluemonday.StrictPolicy().Sanitize(renderedHTML)
}
