package ratelimit

import (
	"context"
	"time"
)

// DefaultWindow is the length of a fixed counting window.
const DefaultWindow = time.Minute

// Decision is the outcome of counting one request.
type Decision struct {
	Allowed    bool
	Count      int
	Limit      int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter counts requests per key in fixed windows aligned to window boundaries.
type Limiter interface {
	Hit(ctx context.Context, key string) (Decision, error)
}

// windowBounds returns the start and end of the window containing now.
func windowBounds(now time.Time, window time.Duration) (start, end time.Time) {
	start = now.Truncate(window)
	return start, start.Add(window)
}

func decide(count, limit int, now, resetAt time.Time) Decision {
	d := Decision{
		Allowed: count <= limit,
		Count:   count,
		Limit:   limit,
		ResetAt: resetAt,
	}
	if !d.Allowed {
		d.RetryAfter = resetAt.Sub(now)
	}
	return d
}

// RetryAfterSeconds rounds the wait up to whole seconds, never below one.
func (d Decision) RetryAfterSeconds() int {
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	return max(secs, 1)
}
