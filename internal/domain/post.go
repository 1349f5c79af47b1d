package domain

import "time"

// Post is a blog entry with its category set and author resolved.
type Post struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Content     string     `json:"content"`
	ContentHTML string     `json:"contentHtml"`
	Excerpt     string     `json:"excerpt"`
	CoverImage  *string    `json:"coverImage"`
	Published   bool       `json:"published"`
	AuthorID    *int64     `json:"authorId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Categories  []Category `json:"categories"`
	Author      *User      `json:"author,omitempty"`
}

// OwnedBy reports whether userID authored the post.
func (p *Post) OwnedBy(userID int64) bool {
	return p.AuthorID != nil && *p.AuthorID == userID
}

// NewPost holds the fields needed to insert a post.
type NewPost struct {
	Title       string
	Slug        string
	Content     string
	ContentHTML string
	Excerpt     string
	CoverImage  *string
	Published   bool
	AuthorID    *int64
	CategoryIDs []int64
}

// PostPatch is a partial update of a post. CategoryIDs nil means unchanged.
type PostPatch struct {
	Title       *string
	Slug        *string
	Content     *string
	ContentHTML *string
	Excerpt     *string
	CoverImage  Nullable[string]
	Published   *bool
	AuthorID    Nullable[int64]
	CategoryIDs []int64
}

// PostFilter narrows post listings.
type PostFilter struct {
	AuthorID  *int64
	Published *bool
	IDs       []int64
	Limit     int
	Offset    int
}
