// Package ratelimiter implements a Redis-backed token bucket shared by all
// worker replicas that talk to the same upstream provider.
package ratelimiter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Limiter interface {
	Allow(ctx context.Context, key string, cost int64) (allowed bool, retryAfter time.Duration, err error)
}

type BucketConfig struct {
	Capacity   int64
	RefillRate float64
}

func NewBucketConfigFromPerMinute(perMinute int) BucketConfig {
	if perMinute <= 0 {
		return BucketConfig{}
	}
	return BucketConfig{
		Capacity:   int64(perMinute),
		RefillRate: float64(perMinute) / 60.0,
	}
}

type RedisLuaLimiter struct {
	redis   redis.Scripter
	buckets map[string]BucketConfig
	script  *redis.Script
	prefix  string
	now     func() time.Time
	mu      sync.RWMutex
}

// NewRedisLuaLimiter returns nil when rdb is nil; a nil limiter allows everything.
func NewRedisLuaLimiter(rdb redis.Scripter, buckets map[string]BucketConfig) *RedisLuaLimiter {
	if rdb == nil {
		return nil
	}
	copied := make(map[string]BucketConfig, len(buckets))
	for k, v := range buckets {
		copied[k] = v
	}
	return &RedisLuaLimiter{
		redis:   rdb,
		buckets: copied,
		script:  redis.NewScript(luaTokenBucketScript),
		prefix:  "rate:",
		now:     time.Now,
	}
}

// Redis truncates Lua numbers to integers on return, so retry_after is sent back in milliseconds.
const luaTokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local tokens = capacity
local last_refill = now

local data = redis.call("HMGET", key, "tokens", "last_refill")
if data[1] then
  tokens = tonumber(data[1])
end
if data[2] then
  last_refill = tonumber(data[2])
end

local delta = math.max(0, now - last_refill)
tokens = math.min(capacity, tokens + delta * refill_rate)

local allowed = 0
local retry_after_ms = 0

if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
elseif refill_rate > 0 then
  retry_after_ms = math.ceil((cost - tokens) / refill_rate * 1000)
end

redis.call("HSET", key, "tokens", tostring(tokens), "last_refill", tostring(now))
redis.call("EXPIRE", key, math.ceil(capacity / refill_rate) + 60)

return { allowed, retry_after_ms }
`

// Allow takes cost tokens from the bucket configured for key. Unknown keys and
// Redis failures fail open so that provider-side 429 handling still applies.
func (l *RedisLuaLimiter) Allow(ctx context.Context, key string, cost int64) (bool, time.Duration, error) {
	if l == nil || l.redis == nil {
		return true, 0, nil
	}
	l.mu.RLock()
	cfg, ok := l.buckets[key]
	l.mu.RUnlock()
	if !ok || cfg.Capacity <= 0 || cfg.RefillRate <= 0 {
		return true, 0, nil
	}
	if cost <= 0 {
		cost = 1
	}

	nowSec := float64(l.now().UnixNano()) / 1e9
	res, err := l.script.Run(ctx, l.redis, []string{l.prefix + key}, cfg.Capacity, cfg.RefillRate, nowSec, cost).Result()
	if err != nil {
		slog.Error("redis rate limiter script error", slog.String("key", key), slog.Any("error", err))
		return true, 0, err
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		slog.Error("redis rate limiter unexpected script result", slog.String("key", key), slog.Any("result", res))
		return true, 0, nil
	}

	allowed := toInt64(vals[0]) == 1
	retryAfter := time.Duration(toInt64(vals[1])) * time.Millisecond
	return allowed, retryAfter, nil
}

// SetBucketConfig updates or creates the bucket configuration for key.
// It is safe for concurrent use.
func (l *RedisLuaLimiter) SetBucketConfig(key string, cfg BucketConfig) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[key] = cfg
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}
