package sentinel

import (
	"context"
	"sync"
	"time"
)

// MemoryCredentialStore is the in-memory CredentialStore for tests and the
// examples. Emails are expected pre-normalized by the engine.
type MemoryCredentialStore struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryCredentialStore) Create(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[user.Email]; exists {
		return ErrDuplicateEmail
	}
	s.byID[user.ID] = user.Clone()
	s.byEmail[user.Email] = user.ID
	return nil
}

func (s *MemoryCredentialStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryCredentialStore) FindByID(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user.Clone(), nil
}

func (s *MemoryCredentialStore) UpdateRoles(_ context.Context, id string, newRoles []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}

	if hasRole(user.Roles, RoleAdmin) && !hasRole(newRoles, RoleAdmin) && s.activeAdminsLocked(id) == 0 {
		return ErrLastAdmin
	}

	user.Roles = append([]string(nil), newRoles...)
	return nil
}

// activeAdminsLocked counts active admins other than excludeID. Callers
// hold the write lock.
func (s *MemoryCredentialStore) activeAdminsLocked(excludeID string) int {
	count := 0
	for id, user := range s.byID {
		if id != excludeID && user.Active && hasRole(user.Roles, RoleAdmin) {
			count++
		}
	}
	return count
}

func (s *MemoryCredentialStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	return s.mutate(id, func(u *User) { u.PasswordHash = passwordHash })
}

func (s *MemoryCredentialStore) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	if !active && user.Active && hasRole(user.Roles, RoleAdmin) && s.activeAdminsLocked(id) == 0 {
		return ErrLastAdmin
	}
	user.Active = active
	return nil
}

func (s *MemoryCredentialStore) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	return s.mutate(id, func(u *User) { u.LastLoginAt = at })
}

func (s *MemoryCredentialStore) mutate(id string, fn func(*User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	fn(user)
	return nil
}
