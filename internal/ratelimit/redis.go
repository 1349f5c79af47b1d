package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "quill:ratelimit:"

// redisCounter increments a window counter and sets its expiry in one round trip.
type redisCounter interface {
	IncrWindow(ctx context.Context, key string, expireAt time.Time) (int64, error)
}

// RedisLimiter shares window counters across server instances through Redis.
type RedisLimiter struct {
	counter redisCounter
	limit   int
	window  time.Duration
	now     func() time.Time
}

// NewRedisLimiter allows limit requests per key per window using client.
func NewRedisLimiter(client redis.UniversalClient, limit int, window time.Duration) *RedisLimiter {
	return newRedisLimiter(&pipelineCounter{client: client}, limit, window)
}

func newRedisLimiter(c redisCounter, limit int, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisLimiter{counter: c, limit: limit, window: window, now: time.Now}
}

// Hit implements Limiter. Keys embed the window start so each window starts from zero.
func (r *RedisLimiter) Hit(ctx context.Context, key string) (Decision, error) {
	now := r.now()
	start, end := windowBounds(now, r.window)

	redisKey := redisKeyPrefix + key + ":" + strconv.FormatInt(start.Unix(), 10)
	count, err := r.counter.IncrWindow(ctx, redisKey, end)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit counter: %w", err)
	}

	return decide(int(count), r.limit, now, end), nil
}

// pipelineCounter runs INCR and PEXPIREAT in a MULTI/EXEC pipeline.
type pipelineCounter struct {
	client redis.UniversalClient
}

func (p *pipelineCounter) IncrWindow(ctx context.Context, key string, expireAt time.Time) (int64, error) {
	var incr *redis.IntCmd
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.PExpireAt(ctx, key, expireAt)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// OpenRedis connects to the Redis server at url and verifies it with PING.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
