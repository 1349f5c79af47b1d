package ratelimit

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// keyedIdle is how long an unused login bucket is kept.
const keyedIdle = 10 * time.Minute

// Sweeper periodically evicts stale limiter state.
type Sweeper struct {
	cron *cron.Cron
}

// NewSweeper schedules eviction for the in-memory limiters. Nil limiters are skipped.
func NewSweeper(logger *slog.Logger, window *MemoryLimiter, keyed ...*KeyedRateLimiter) (*Sweeper, error) {
	c := cron.New()

	_, err := c.AddFunc("@every 1m", func() {
		removed := 0
		if window != nil {
			removed += window.Sweep()
		}
		for _, k := range keyed {
			if k != nil {
				removed += k.Sweep(keyedIdle)
			}
		}
		if removed > 0 {
			logger.Debug("rate limiter sweep", "removed", removed)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule rate limiter sweep: %w", err)
	}

	return &Sweeper{cron: c}, nil
}

// Start begins running scheduled sweeps in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
