package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-node development.
// Not durable; a restart loses all lineage state.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

// Insert implements Store.
func (s *MemoryStore) Insert(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[entry.JTI]; ok {
		return ErrConflict
	}
	s.entries[entry.JTI] = entry.Clone()
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, jti string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[jti]
	if !ok {
		return nil, ErrNotFound
	}
	return entry.Clone(), nil
}

// Rotate implements Store. The mutex makes the check-and-transition atomic,
// matching the conditional UPDATE of the Postgres store.
func (s *MemoryStore) Rotate(_ context.Context, parentJTI string, child *Entry) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.entries[parentJTI]
	if !ok {
		return nil, ErrNotFound
	}
	if parent.Status != StatusActive {
		return nil, ErrConflict
	}
	if !parent.ExpiresAt.IsZero() && !child.CreatedAt.Before(parent.ExpiresAt) {
		return nil, ErrExpired
	}

	parent.Status = StatusRotated
	parent.RotatedAt = child.CreatedAt

	child.ParentJTI = parent.JTI
	child.RootJTI = parent.RootJTI
	s.entries[child.JTI] = child.Clone()

	return parent.Clone(), nil
}

// RevokeLineage implements Store.
func (s *MemoryStore) RevokeLineage(_ context.Context, rootJTI string, at time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var revoked []string
	for jti, entry := range s.entries {
		if entry.RootJTI != rootJTI || entry.Status == StatusRevoked {
			continue
		}
		entry.Status = StatusRevoked
		entry.RevokedAt = at
		revoked = append(revoked, jti)
	}
	return revoked, nil
}

// SweepExpired implements Store.
func (s *MemoryStore) SweepExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for jti, entry := range s.entries {
		if entry.ExpiresAt.Before(cutoff) {
			delete(s.entries, jti)
			purged++
		}
	}
	return purged, nil
}
