package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu      sync.Mutex
	byRoot  map[string]*Record
	ordered []*Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byRoot: make(map[string]*Record)}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *rec
	s.byRoot[rec.RootJTI] = &clone
	s.ordered = append(s.ordered, &clone)
	return nil
}

// Touch implements Store.
func (s *MemoryStore) Touch(_ context.Context, rootJTI string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.byRoot[rootJTI]; ok {
		rec.LastSeenAt = at
	}
	return nil
}

// Revoke implements Store.
func (s *MemoryStore) Revoke(_ context.Context, rootJTI string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.byRoot[rootJTI]; ok && rec.Active {
		rec.Active = false
		rec.LastSeenAt = at
	}
	return nil
}

// RecentForUser implements Store.
func (s *MemoryStore) RecentForUser(_ context.Context, userID string, n int) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recent []*Record
	for _, rec := range s.ordered {
		if rec.UserID == userID {
			clone := *rec
			recent = append(recent, &clone)
		}
	}
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})
	if n > 0 && len(recent) > n {
		recent = recent[:n]
	}
	return recent, nil
}

// Get returns a single record by lineage root.
func (s *MemoryStore) Get(_ context.Context, rootJTI string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byRoot[rootJTI]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *rec
	return &clone, nil
}
