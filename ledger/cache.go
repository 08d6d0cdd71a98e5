package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ledger:"

// CachedStore layers a Redis mirror over a durable Store. The mirror is a
// read-through/write-through accelerant for reuse checks; the durable store
// stays authoritative and the ledger check is never skipped.
//
// Strict mode gates Insert and Rotate on mirror availability so an outage
// surfaces as ErrUnavailable instead of silently degrading. Relaxed mode
// falls back to durable-only operation and reports Degraded.
type CachedStore struct {
	durable  Store
	redis    *redis.Client
	strict   bool
	degraded atomic.Bool
}

var _ Store = (*CachedStore)(nil)

// NewCachedStore wraps durable with a Redis mirror.
func NewCachedStore(durable Store, client *redis.Client, strict bool) *CachedStore {
	return &CachedStore{durable: durable, redis: client, strict: strict}
}

// Degraded reports whether the mirror is currently unreachable in relaxed
// mode. Cleared by the next successful mirror operation.
func (s *CachedStore) Degraded() bool {
	return s.degraded.Load()
}

// Insert implements Store.
func (s *CachedStore) Insert(ctx context.Context, entry *Entry) error {
	if err := s.gate(ctx); err != nil {
		return err
	}
	if err := s.durable.Insert(ctx, entry); err != nil {
		return err
	}
	s.mirror(ctx, entry)
	return nil
}

// Get implements Store. Mirror hits skip the durable round trip; misses and
// mirror failures fall through to the durable store.
func (s *CachedStore) Get(ctx context.Context, jti string) (*Entry, error) {
	if data, err := s.redis.Get(ctx, keyPrefix+jti).Bytes(); err == nil {
		var entry Entry
		if json.Unmarshal(data, &entry) == nil {
			s.degraded.Store(false)
			return &entry, nil
		}
	} else if err != redis.Nil {
		s.markDegraded()
	}

	entry, err := s.durable.Get(ctx, jti)
	if err != nil {
		return nil, err
	}
	s.mirror(ctx, entry)
	return entry, nil
}

// Rotate implements Store. A mirror hit on an already-rotated or revoked
// parent short-circuits to ErrConflict before touching the durable store;
// the durable conditional transition remains the arbiter for everything
// else.
func (s *CachedStore) Rotate(ctx context.Context, parentJTI string, child *Entry) (*Entry, error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}

	if data, err := s.redis.Get(ctx, keyPrefix+parentJTI).Bytes(); err == nil {
		var cached Entry
		if json.Unmarshal(data, &cached) == nil && cached.Status != StatusActive {
			return nil, ErrConflict
		}
	}

	parent, err := s.durable.Rotate(ctx, parentJTI, child)
	if err != nil {
		return nil, err
	}

	// Mirror both sides of the transition together.
	_, perr := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if data, err := json.Marshal(parent); err == nil {
			pipe.Set(ctx, keyPrefix+parent.JTI, data, mirrorTTL(parent.ExpiresAt, child.CreatedAt))
		}
		if data, err := json.Marshal(child); err == nil {
			pipe.Set(ctx, keyPrefix+child.JTI, data, mirrorTTL(child.ExpiresAt, child.CreatedAt))
		}
		return nil
	})
	if perr != nil {
		s.markDegraded()
	} else {
		s.degraded.Store(false)
	}

	return parent, nil
}

// RevokeLineage implements Store. Mirror keys of revoked entries are dropped
// so later reads resolve against the durable store.
func (s *CachedStore) RevokeLineage(ctx context.Context, rootJTI string, at time.Time) ([]string, error) {
	revoked, err := s.durable.RevokeLineage(ctx, rootJTI, at)
	if err != nil {
		return nil, err
	}
	if len(revoked) > 0 {
		keys := make([]string, len(revoked))
		for i, jti := range revoked {
			keys[i] = keyPrefix + jti
		}
		if err := s.redis.Del(ctx, keys...).Err(); err != nil {
			s.markDegraded()
		}
	}
	return revoked, nil
}

// SweepExpired implements Store. Mirror keys carry their own TTLs and expire
// on their own.
func (s *CachedStore) SweepExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.durable.SweepExpired(ctx, cutoff)
}

// gate enforces strict-mode availability: token issuance and rotation must
// not proceed while the mirror is down.
func (s *CachedStore) gate(ctx context.Context) error {
	if !s.strict {
		return nil
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *CachedStore) mirror(ctx context.Context, entry *Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, keyPrefix+entry.JTI, data, mirrorTTL(entry.ExpiresAt, time.Now())).Err(); err != nil {
		s.markDegraded()
		return
	}
	s.degraded.Store(false)
}

func (s *CachedStore) markDegraded() {
	if !s.strict {
		s.degraded.Store(true)
	}
}

func mirrorTTL(expiresAt, now time.Time) time.Duration {
	ttl := expiresAt.Sub(now)
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}
