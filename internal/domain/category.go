package domain

// Category groups posts. Slugs are globally unique.
type Category struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description *string `json:"description"`
}

// CategoryPatch is a partial update of a category.
type CategoryPatch struct {
	Name        *string
	Slug        *string
	Description Nullable[string]
}
