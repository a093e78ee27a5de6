package ratelimit

import (
	"context"
	"errors"
	"time"

	"trajectoryd/internal/domain"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces limiter counters so a shared redis instance never
// collides with other tenants' keys.
const keyPrefix = "trajectoryd:ratelimit:"

type redisLimiter struct {
	client *redis.Client
	now    func() time.Time
}

// redisAllowScript increments the window counter and repairs a missing
// expiry: if the PEXPIRE after the first INCR was lost, the counter would
// otherwise throttle forever.
var redisAllowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 or redis.call("PTTL", KEYS[1]) < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`)

func NewRedisLimiter(addr, password string, db int, now func() time.Time) (domain.RateLimiter, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	if now == nil {
		now = time.Now
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &redisLimiter{client: client, now: now}, nil
}

func (r *redisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	windowMillis := window.Milliseconds()
	if windowMillis <= 0 {
		windowMillis = 1000
	}
	result, err := redisAllowScript.Run(ctx, r.client, []string{limiterKey(key)}, windowMillis).Result()
	if err != nil {
		return domain.RateLimitDecision{}, err
	}
	count, ttlMillis, err := parseAllowReply(result)
	if err != nil {
		return domain.RateLimitDecision{}, err
	}

	resetAt := r.now()
	if ttlMillis > 0 {
		resetAt = resetAt.Add(time.Duration(ttlMillis) * time.Millisecond)
	}
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateLimitDecision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

func limiterKey(key string) string {
	return keyPrefix + key
}

func parseAllowReply(result any) (count, ttlMillis int64, err error) {
	values, ok := result.([]any)
	if !ok || len(values) < 2 {
		return 0, 0, errors.New("unexpected redis rate limit response")
	}
	count, ok = values[0].(int64)
	if !ok {
		return 0, 0, errors.New("invalid redis counter response")
	}
	ttlMillis, _ = values[1].(int64)
	return count, ttlMillis, nil
}
