package rate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter approximates the shared window with in-process token buckets
// when Redis is unreachable in relaxed mode. It is per-instance, so a
// horizontally scaled deployment enforces a looser aggregate limit; that is
// the accepted cost of failing open.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*localBucket
	config  Config
}

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter creates a fallback limiter with the same budget shape as
// the Redis limiter.
func NewLocalLimiter(cfg Config) *LocalLimiter {
	return &LocalLimiter{
		buckets: make(map[string]*localBucket),
		config:  cfg,
	}
}

// Allow consumes one unit from the (identity, action) bucket.
func (l *LocalLimiter) Allow(_ context.Context, identity, action string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.evictStale(now)

	key := windowKey(identity, action)
	bucket, ok := l.buckets[key]
	if !ok {
		per := rate.Every(l.config.Window / time.Duration(max(l.config.Capacity, 1)))
		bucket = &localBucket{limiter: rate.NewLimiter(per, l.config.Capacity)}
		l.buckets[key] = bucket
	}
	bucket.lastSeen = now

	if bucket.limiter.Allow() {
		return Decision{Permitted: true}
	}

	reservation := bucket.limiter.Reserve()
	retryAfter := reservation.Delay()
	reservation.Cancel()
	return Decision{Permitted: false, RetryAfter: retryAfter}
}

// Reset drops the (identity, action) bucket.
func (l *LocalLimiter) Reset(_ context.Context, identity, action string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, windowKey(identity, action))
}

// evictStale prevents unbounded growth while Redis stays down. Buckets idle
// for two windows have fully refilled anyway.
func (l *LocalLimiter) evictStale(now time.Time) {
	cutoff := now.Add(-2 * l.config.Window)
	for key, bucket := range l.buckets {
		if bucket.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
