// Package session tracks one record per refresh-token lineage: the device
// fingerprint seen at login, last activity, and active/revoked state.
// Records are never deleted; revocation flips the active flag and the row
// stays for audit.
//
// # Architecture boundaries
//
// This package stores and queries session rows. It does NOT interpret
// tokens or decide anomaly severity; the Engine feeds recent records to
// the anomaly heuristic and decides what to do with the answer.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no session matches the lookup key.
	ErrNotFound = errors.New("session: not found")
	// ErrUnavailable is returned when the backing store cannot be reached.
	ErrUnavailable = errors.New("session: store unavailable")
)

// Record is one login's session state, keyed by the lineage root JTI.
type Record struct {
	ID         string
	UserID     string
	RootJTI    string
	IP         string
	UserAgent  string
	DeviceHash string
	CreatedAt  time.Time
	LastSeenAt time.Time
	Active     bool
}

// Fingerprint derives the stored device hash from the user agent and an
// optional client-supplied component.
func Fingerprint(userAgent, clientHash string) string {
	sum := sha256.Sum256([]byte(userAgent + "\x00" + clientHash))
	return hex.EncodeToString(sum[:])
}

// Store persists session records.
type Store interface {
	// Create writes a new active record.
	Create(ctx context.Context, rec *Record) error

	// Touch bumps last-seen for the record owning rootJTI. Best effort:
	// last-writer-wins, and a missing record is not an error.
	Touch(ctx context.Context, rootJTI string, at time.Time) error

	// Revoke marks the record owning rootJTI inactive. Idempotent.
	Revoke(ctx context.Context, rootJTI string, at time.Time) error

	// Get returns the record owning rootJTI, or ErrNotFound.
	Get(ctx context.Context, rootJTI string) (*Record, error)

	// RecentForUser returns up to n records for the user, newest first.
	RecentForUser(ctx context.Context, userID string, n int) ([]*Record, error)
}
