// Package slug turns titles and names into URL-safe identifiers and resolves collisions
// against already persisted slugs.
package slug

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// PostMaxLength is the length ceiling for post slugs.
	PostMaxLength = 100
	// CategoryMaxLength is the length ceiling for category slugs.
	CategoryMaxLength = 50

	// DefaultAttempts bounds the numbered-suffix loop before the timestamp fallback.
	DefaultAttempts = 100

	// minBaseLength is the shortest normalized base accepted before falling back.
	minBaseLength = 2
)

var (
	// Matches runs of anything that is not a lowercase ASCII letter or digit.
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

	// Pattern is the shape every persisted slug must have.
	Pattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

// Normalize converts source into a slug of at most maxLen bytes.
// "Crème Brûlée!" -> "creme-brulee".
// "  Hello   World  " -> "hello-world".
// "東京" -> "" (letters outside ASCII that do not decompose are dropped as separators).
func Normalize(source string, maxLen int) string {
	// Decompose and strip combining marks so accented letters keep their base letter.
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	s, _, err := transform.String(t, source)
	if err != nil {
		s = source
	}

	s = strings.ToLower(s)
	s = nonAlphanumeric.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	return truncate(s, maxLen)
}

// Valid reports whether s matches Pattern and fits in maxLen.
func Valid(s string, maxLen int) bool {
	return len(s) <= maxLen && Pattern.MatchString(s)
}

// Fallback synthesizes a base for sources that normalize to nothing usable.
func Fallback(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixMilli(), rand.IntN(1000))
}

// truncate cuts s to maxLen bytes and re-trims a trailing hyphen left by the cut.
func truncate(s string, maxLen int) string {
	if maxLen > 0 && len(s) > maxLen {
		s = strings.TrimRight(s[:maxLen], "-")
	}
	return s
}

// LookupFunc reports the id of the record currently holding slug, if any.
type LookupFunc func(ctx context.Context, slug string) (ownerID int64, found bool, err error)

// Resolver produces slugs that are unique among the records visible to its lookup.
type Resolver struct {
	lookup   LookupFunc
	prefix   string
	maxLen   int
	attempts int
	now      func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithAttempts overrides the suffix attempt bound.
func WithAttempts(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// WithClock overrides the time source used by the exhaustion fallback.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver creates a resolver for one entity type.
func NewResolver(lookup LookupFunc, prefix string, maxLen int, opts ...Option) *Resolver {
	r := &Resolver{
		lookup:   lookup,
		prefix:   prefix,
		maxLen:   maxLen,
		attempts: DefaultAttempts,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureUnique returns a slug derived from source that no other record holds.
// A slug held by excludeID counts as free, so re-saving a record keeps its slug.
// Pass excludeID <= 0 when creating.
//
// Exhausting the attempt bound is not an error: the result then carries the last
// eight digits of the current nanosecond timestamp. Only lookup failures are returned.
func (r *Resolver) EnsureUnique(ctx context.Context, source string, excludeID int64) (string, error) {
	base := Normalize(source, r.maxLen)
	if len(base) < minBaseLength {
		base = truncate(Fallback(r.prefix), r.maxLen)
	}

	candidate := base
	for n := 1; n <= r.attempts; n++ {
		ownerID, found, err := r.lookup(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("lookup slug %q: %w", candidate, err)
		}
		if !found || (excludeID > 0 && ownerID == excludeID) {
			return candidate, nil
		}
		candidate = withSuffix(base, strconv.Itoa(n), r.maxLen)
	}

	stamp := strconv.FormatInt(r.now().UnixNano(), 10)
	if len(stamp) > 8 {
		stamp = stamp[len(stamp)-8:]
	}
	return withSuffix(base, stamp, r.maxLen), nil
}

// withSuffix appends "-suffix" to base, shortening base so the result fits maxLen.
func withSuffix(base, suffix string, maxLen int) string {
	room := maxLen - len(suffix) - 1
	if room < 1 {
		room = 1
	}
	return truncate(base, room) + "-" + suffix
}
