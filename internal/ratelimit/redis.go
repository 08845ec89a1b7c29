package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// allowScript increments the counter for a key and sets its expiry on first
// use, atomically, so concurrent replicas cannot double-admit around the
// limit. Returns the count after increment and the remaining window in ms.
var allowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {count, ttl}
`)

// RedisLimiter enforces a single shared budget per key across all service
// replicas. State lives in Redis; the Lua script keeps the
// read-increment-expire cycle atomic.
//
// On Redis failure the limiter fails open: admission control protects the
// backend from abuse, and dropping all traffic during a Redis outage would
// convert a partial failure into a full one. Failures are logged.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	logger *slog.Logger
}

// NewRedisLimiter creates a Redis-backed limiter. The prefix namespaces
// counter keys so several limiter instances can share one database.
func NewRedisLimiter(client *redis.Client, prefix string, limit int, window time.Duration, logger *slog.Logger) *RedisLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
		logger: logger,
	}
}

func (rl *RedisLimiter) key(key string) string {
	return "ratelimit:" + rl.prefix + ":" + key
}

// Allow records a request for key if the shared budget permits it
func (rl *RedisLimiter) Allow(ctx context.Context, key string) bool {
	result, err := allowScript.Run(ctx, rl.client, []string{rl.key(key)}, rl.window.Milliseconds()).Int64Slice()
	if err != nil || len(result) != 2 {
		rl.logger.Warn("rate limiter redis check failed, allowing request",
			"key", key, "error", err)
		return true
	}
	return result[0] <= int64(rl.limit)
}

// Status reports the current state for key without recording a request
func (rl *RedisLimiter) Status(ctx context.Context, key string) Status {
	now := time.Now()

	pipe := rl.client.Pipeline()
	getCmd := pipe.Get(ctx, rl.key(key))
	ttlCmd := pipe.PTTL(ctx, rl.key(key))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		rl.logger.Warn("rate limiter redis status failed", "key", key, "error", err)
		return Status{Allowed: true, Remaining: rl.limit, ResetAt: now}
	}

	count, err := getCmd.Int()
	if err != nil {
		count = 0
	}

	remaining := rl.limit - count
	if remaining < 0 {
		remaining = 0
	}

	resetAt := now
	if ttl, err := ttlCmd.Result(); err == nil && ttl > 0 {
		resetAt = now.Add(ttl)
	}

	return Status{
		Allowed:   count < rl.limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
