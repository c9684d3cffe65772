package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	redisOpDurationMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rollcall_otp_cache_op_duration_ms",
		Help:    "Latency of OTP cache operations against Redis in milliseconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
	}, []string{"op"})
)

// incrementBelowScript returns {incremented, count}. KEYS[1] counter,
// ARGV[1] limit, ARGV[2] ttl in ms.
var incrementBelowScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local raw = redis.call("GET", KEYS[1])
local n = 0
if raw then
  n = tonumber(raw)
  if n == nil or n < 0 or n ~= math.floor(n) then
    return {0, limit}
  end
end
if n >= limit then
  return {0, n}
end
n = redis.call("INCR", KEYS[1])
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return {1, n}
`)

// RedisCache is the production Cache for multi-instance deployments where all
// instances must agree on live codes and resend counters.
type RedisCache struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed cache. The client lifecycle is managed by the caller.
func NewRedis(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func observe(op string, start time.Time) {
	redisOpDurationMs.WithLabelValues(op).Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}

// Set uses SET with expiry so value and TTL are written atomically.
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	defer observe("set", time.Now())
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	defer observe("get", time.Now())
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	defer observe("delete", time.Now())
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	defer observe("exists", time.Now())
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// TTL maps Redis' negative replies (-2 missing, -1 no expiry) to absent.
// Keys written through this cache always carry an expiry.
func (c *RedisCache) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	defer observe("ttl", time.Now())
	d, err := c.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, false, err
	}
	if d < 0 {
		return 0, false, nil
	}
	return d, true, nil
}

// IncrementBelow runs the check and the increment in one Lua script, so
// every instance sharing the server sees a single budget.
func (c *RedisCache) IncrementBelow(ctx context.Context, key string, limit int, ttl time.Duration) (int, bool, error) {
	defer observe("increment_below", time.Now())
	res, err := incrementBelowScript.Run(ctx, c.client, []string{key}, limit, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, false, err
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("increment script returned %d values", len(res))
	}
	return int(res[1]), res[0] == 1, nil
}
