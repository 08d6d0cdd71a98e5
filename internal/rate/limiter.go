package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps Redis transport failures so callers can
	// route them through the strict/relaxed degradation policy.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Decision is the outcome of an admission check. RetryAfter is populated
// only when Permitted is false.
type Decision struct {
	Permitted  bool
	Count      int64
	RetryAfter time.Duration
}

// Config holds the fixed-window budget: Capacity requests per Window,
// tracked per (identity, action) key.
type Config struct {
	Capacity int
	Window   time.Duration
}

// Limiter enforces fixed-window rate limits on Redis counters. The
// increment is atomic (INCR), so concurrent callers never under-count.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{redis: redisClient, config: cfg}
}

// Allow consumes one unit of the (identity, action) window and reports
// whether the call is admitted. Denials carry the remaining window TTL as
// the retry hint.
func (l *Limiter) Allow(ctx context.Context, identity, action string) (Decision, error) {
	key := windowKey(identity, action)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: the TTL is set only by the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count <= int64(l.config.Capacity) {
		return Decision{Permitted: true, Count: count}, nil
	}

	retryAfter, err := l.redis.PTTL(ctx, key).Result()
	if err != nil || retryAfter < 0 {
		retryAfter = l.config.Window
	}
	return Decision{Permitted: false, Count: count, RetryAfter: retryAfter}, nil
}

// Reset clears the (identity, action) window. Called after a successful
// login so earlier failures stop counting against the user.
func (l *Limiter) Reset(ctx context.Context, identity, action string) error {
	if err := l.redis.Del(ctx, windowKey(identity, action)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Peek returns the current counter without consuming a unit. Missing keys
// read as zero and do not reveal whether the identity exists.
func (l *Limiter) Peek(ctx context.Context, identity, action string) (int64, error) {
	count, err := l.redis.Get(ctx, windowKey(identity, action)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}

func windowKey(identity, action string) string {
	return "rl:" + action + ":" + identity
}
