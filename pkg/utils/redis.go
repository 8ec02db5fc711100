package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig controls redis client behavior.
// Keep it config-driven; defaults should be safe and conservative.
type RedisConfig struct {
	Addr string

	// Basic timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Pool tuning
	PoolSize        int
	MinIdleConns    int
	PoolTimeout     time.Duration
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	PingTimeout time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	out := c
	if out.DialTimeout <= 0 {
		out.DialTimeout = 3 * time.Second
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 2 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 2 * time.Second
	}
	if out.PoolSize <= 0 {
		out.PoolSize = 20
	}
	if out.MinIdleConns < 0 {
		out.MinIdleConns = 0
	}
	if out.PoolTimeout <= 0 {
		out.PoolTimeout = 4 * time.Second
	}
	if out.ConnMaxIdleTime <= 0 {
		out.ConnMaxIdleTime = 5 * time.Minute
	}
	if out.ConnMaxLifetime <= 0 {
		out.ConnMaxLifetime = 30 * time.Minute
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 2 * time.Second
	}
	return out
}

// OpenRedis initializes a Redis client and validates connectivity via PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		PoolTimeout:     cfg.PoolTimeout,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

var loginAttemptScript = redis.NewScript(`
-- KEYS[1] = attempt counter key
-- ARGV[1] = window_ms (int)
--
-- Fixed window: the first attempt opens the window, later ones only count.
-- Returns {attempts, remaining_window_ms}.
local current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  -- Key survived without a TTL (e.g. written by hand); re-arm it.
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// LoginLimiter caps failed sign-in attempts per key inside a fixed window.
//
// Safety properties:
// - Counting and expiry are one atomic Lua call.
// - The TTL guarantees a locked-out key frees itself even if Reset never runs.
type LoginLimiter struct {
	rdb    *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// LimitDecision is the outcome of one Allow call.
type LimitDecision struct {
	Allowed    bool
	Attempts   int
	RetryAfter time.Duration
}

func NewLoginLimiter(rdb *redis.Client, prefix string, limit int, window time.Duration) (*LoginLimiter, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be > 0")
	}
	if prefix == "" {
		prefix = "login_attempts"
	}
	return &LoginLimiter{rdb: rdb, prefix: prefix, limit: limit, window: window}, nil
}

func (l *LoginLimiter) key(k string) string { return l.prefix + ":" + k }

// Allow counts one attempt for key and reports whether it is within the limit.
func (l *LoginLimiter) Allow(ctx context.Context, key string) (LimitDecision, error) {
	if key == "" {
		return LimitDecision{}, fmt.Errorf("key is required")
	}
	res, err := loginAttemptScript.Run(ctx, l.rdb, []string{l.key(key)}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return LimitDecision{}, err
	}
	if len(res) != 2 {
		return LimitDecision{}, fmt.Errorf("unexpected limiter reply: %v", res)
	}
	d := LimitDecision{Attempts: int(res[0]), Allowed: res[0] <= int64(l.limit)}
	if !d.Allowed {
		d.RetryAfter = time.Duration(res[1]) * time.Millisecond
	}
	return d, nil
}

// Reset clears the counter for key, typically after a successful sign-in.
func (l *LoginLimiter) Reset(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}
	return l.rdb.Del(ctx, l.key(key)).Err()
}
