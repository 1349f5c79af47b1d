package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter keeps window counters in process memory.
// Counters are not shared across instances.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*counter
	limit   int
	window  time.Duration
	now     func() time.Time
}

type counter struct {
	start time.Time
	count int
}

// NewMemoryLimiter allows limit requests per key per window.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryLimiter{
		windows: make(map[string]*counter),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Hit implements Limiter.
func (m *MemoryLimiter) Hit(_ context.Context, key string) (Decision, error) {
	now := m.now()
	start, end := windowBounds(now, m.window)

	m.mu.Lock()
	c, ok := m.windows[key]
	if !ok || !c.start.Equal(start) {
		c = &counter{start: start}
		m.windows[key] = c
	}
	c.count++
	count := c.count
	m.mu.Unlock()

	return decide(count, m.limit, now, end), nil
}

// Sweep removes counters whose window has ended and returns how many were dropped.
func (m *MemoryLimiter) Sweep() int {
	current, _ := windowBounds(m.now(), m.window)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, c := range m.windows {
		if c.start.Before(current) {
			delete(m.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}
