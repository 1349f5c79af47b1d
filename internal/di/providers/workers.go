package providers

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/do/v2"

	"github.com/quillpress/quill-server/internal/config"
	"github.com/quillpress/quill-server/internal/logger"
	"github.com/quillpress/quill-server/internal/ratelimit"
)

// RateLimitHandle holds the request budget and login throttle along with the
// resources backing them.
type RateLimitHandle struct {
	Limiter ratelimit.Limiter
	Login   *ratelimit.KeyedRateLimiter

	redis   *redis.Client
	sweeper *ratelimit.Sweeper
}

// Shutdown implements do.Shutdownable.
func (h *RateLimitHandle) Shutdown() error {
	if h.sweeper != nil {
		h.sweeper.Stop()
	}
	if h.redis != nil {
		return h.redis.Close()
	}
	return nil
}

// ProvideRateLimits provides the per-caller request limiter and the login throttle.
// The in-memory state is swept on a cron schedule; the Redis backend expires its own keys.
func ProvideRateLimits(i do.Injector) (*RateLimitHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	handle := &RateLimitHandle{
		Login: ratelimit.New(cfg.RateLimit.LoginRPS, cfg.RateLimit.LoginBurst),
	}

	var memory *ratelimit.MemoryLimiter
	switch cfg.RateLimit.Backend {
	case config.RateLimitRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		client, err := ratelimit.OpenRedis(ctx, cfg.RateLimit.RedisURL)
		if err != nil {
			return nil, err
		}
		handle.redis = client
		handle.Limiter = ratelimit.NewRedisLimiter(client, cfg.RateLimit.RequestsPerMinute, time.Minute)
	default:
		memory = ratelimit.NewMemoryLimiter(cfg.RateLimit.RequestsPerMinute, time.Minute)
		handle.Limiter = memory
	}

	sweeper, err := ratelimit.NewSweeper(log.Logger, memory, handle.Login)
	if err != nil {
		_ = handle.Shutdown()
		return nil, err
	}
	sweeper.Start()
	handle.sweeper = sweeper

	log.Info("Rate limiting enabled",
		"backend", cfg.RateLimit.Backend,
		"requests_per_minute", cfg.RateLimit.RequestsPerMinute,
		"login_rps", cfg.RateLimit.LoginRPS,
		"login_burst", cfg.RateLimit.LoginBurst,
	)

	return handle, nil
}
