// Package ledger is the durable record of refresh-token lifecycle state.
// Every refresh token's JTI maps to exactly one Entry; rotation chains are
// linked through parent and root pointers so a whole lineage can be revoked
// with a single indexed write.
//
// # Architecture boundaries
//
// The ledger never inspects token signatures and never decides policy. It
// answers two questions atomically: "is this JTI still active" and "who wins
// a concurrent rotation". The Engine translates the answers into reuse
// detection and revocation.
package ledger

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a ledger entry. Transitions are
// active → rotated and active|rotated → revoked; revoked is terminal.
type Status string

const (
	// StatusActive marks the single usable entry of a lineage.
	StatusActive Status = "active"
	// StatusRotated marks an entry superseded by a child JTI.
	StatusRotated Status = "rotated"
	// StatusRevoked is terminal. Revoked entries never become usable again.
	StatusRevoked Status = "revoked"
)

var (
	// ErrNotFound is returned when a JTI has no ledger entry.
	ErrNotFound = errors.New("ledger: entry not found")
	// ErrConflict is returned when a conditional transition loses: the entry
	// exists but is no longer active. The caller treats this as reuse.
	ErrConflict = errors.New("ledger: entry not active")
	// ErrExpired is returned when an entry is past its expiry timestamp.
	ErrExpired = errors.New("ledger: entry expired")
	// ErrUnavailable is returned when the backing store cannot be reached.
	ErrUnavailable = errors.New("ledger: store unavailable")
)

// Entry is the durable state of one refresh token. ParentJTI is empty for
// lineage roots; RootJTI equals JTI for roots and is inherited by every
// descendant. Zero time values mean "not yet".
type Entry struct {
	JTI       string    `json:"jti"`
	UserID    string    `json:"user_id"`
	Status    Status    `json:"status"`
	ParentJTI string    `json:"parent_jti,omitempty"`
	RootJTI   string    `json:"root_jti"`
	CreatedAt time.Time `json:"created_at"`
	RotatedAt time.Time `json:"rotated_at,omitempty"`
	RevokedAt time.Time `json:"revoked_at,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

// Store persists ledger entries. Implementations must make Rotate a
// conditional atomic transition: of two concurrent rotations from the same
// parent, exactly one succeeds and the other observes ErrConflict.
type Store interface {
	// Insert writes a new root entry. The entry must have Status active and
	// RootJTI equal to JTI.
	Insert(ctx context.Context, entry *Entry) error

	// Get returns the entry for jti, or ErrNotFound.
	Get(ctx context.Context, jti string) (*Entry, error)

	// Rotate marks parentJTI rotated and inserts child in one atomic step.
	// The child inherits the parent's RootJTI; the store fills it in along
	// with ParentJTI. Returns the parent entry as of the transition.
	// Fails with ErrNotFound (no such parent), ErrConflict (parent not
	// active), or ErrExpired (parent past expiry).
	Rotate(ctx context.Context, parentJTI string, child *Entry) (*Entry, error)

	// RevokeLineage marks every non-revoked entry sharing rootJTI as revoked
	// and returns the affected JTIs. Idempotent: revoking an already fully
	// revoked lineage returns an empty slice and no error.
	RevokeLineage(ctx context.Context, rootJTI string, at time.Time) ([]string, error)

	// SweepExpired deletes entries whose expiry is before cutoff. Storage
	// hygiene only; expiry is always checked lazily at read time.
	SweepExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
