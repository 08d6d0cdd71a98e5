package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Schema is the DDL for the ledger table. Callers run migrations themselves;
// this is the shape the store expects.
const Schema = `
create table if not exists refresh_ledger (
	jti        text primary key,
	user_id    text not null,
	status     text not null,
	parent_jti text,
	root_jti   text not null,
	created_at timestamptz not null,
	rotated_at timestamptz,
	revoked_at timestamptz,
	expires_at timestamptz not null
);
create index if not exists refresh_ledger_root_idx on refresh_ledger (root_jti);
create index if not exists refresh_ledger_expires_idx on refresh_ledger (expires_at);
`

// PGStore implements Store on PostgreSQL via database/sql.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Insert implements Store.
func (s *PGStore) Insert(ctx context.Context, entry *Entry) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_ledger(jti, user_id, status, parent_jti, root_jti, created_at, expires_at)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		entry.JTI, entry.UserID, entry.Status, nullable(entry.ParentJTI), entry.RootJTI,
		entry.CreatedAt, entry.ExpiresAt,
	)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// Get implements Store.
func (s *PGStore) Get(ctx context.Context, jti string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`select jti, user_id, status, parent_jti, root_jti, created_at, rotated_at, revoked_at, expires_at
		 from refresh_ledger where jti=$1`, jti)
	return scanEntry(row)
}

// Rotate implements Store. The parent transition is a single conditional
// UPDATE guarded on status and expiry; RowsAffected decides the winner under
// concurrency. The child insert rides in the same transaction so a failed
// commit leaves the parent active.
func (s *PGStore) Rotate(ctx context.Context, parentJTI string, child *Entry) (*Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable(err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`update refresh_ledger set status=$1, rotated_at=$2
		 where jti=$3 and status=$4 and expires_at > $2`,
		StatusRotated, child.CreatedAt, parentJTI, StatusActive,
	)
	if err != nil {
		return nil, unavailable(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, unavailable(err)
	}
	if affected == 0 {
		return nil, s.classifyRotateLoss(ctx, parentJTI, child.CreatedAt)
	}

	row := tx.QueryRowContext(ctx,
		`select jti, user_id, status, parent_jti, root_jti, created_at, rotated_at, revoked_at, expires_at
		 from refresh_ledger where jti=$1`, parentJTI)
	parent, err := scanEntry(row)
	if err != nil {
		return nil, err
	}

	child.ParentJTI = parent.JTI
	child.RootJTI = parent.RootJTI
	if _, err := tx.ExecContext(ctx,
		`insert into refresh_ledger(jti, user_id, status, parent_jti, root_jti, created_at, expires_at)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		child.JTI, child.UserID, child.Status, child.ParentJTI, child.RootJTI,
		child.CreatedAt, child.ExpiresAt,
	); err != nil {
		return nil, unavailable(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable(err)
	}
	return parent, nil
}

// classifyRotateLoss distinguishes why the conditional UPDATE matched zero
// rows: missing entry, expired entry, or an entry already moved past active.
func (s *PGStore) classifyRotateLoss(ctx context.Context, jti string, now time.Time) error {
	entry, err := s.Get(ctx, jti)
	if err != nil {
		return err
	}
	if entry.Status == StatusActive && !entry.ExpiresAt.After(now) {
		return ErrExpired
	}
	return ErrConflict
}

// RevokeLineage implements Store.
func (s *PGStore) RevokeLineage(ctx context.Context, rootJTI string, at time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`update refresh_ledger set status=$1, revoked_at=$2
		 where root_jti=$3 and status <> $1
		 returning jti`,
		StatusRevoked, at, rootJTI,
	)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var revoked []string
	for rows.Next() {
		var jti string
		if err := rows.Scan(&jti); err != nil {
			return nil, unavailable(err)
		}
		revoked = append(revoked, jti)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return revoked, nil
}

// SweepExpired implements Store.
func (s *PGStore) SweepExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from refresh_ledger where expires_at < $1`, cutoff)
	if err != nil {
		return 0, unavailable(err)
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return purged, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		entry     Entry
		parentJTI sql.NullString
		rotatedAt sql.NullTime
		revokedAt sql.NullTime
	)
	if err := row.Scan(&entry.JTI, &entry.UserID, &entry.Status, &parentJTI, &entry.RootJTI,
		&entry.CreatedAt, &rotatedAt, &revokedAt, &entry.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}
	entry.ParentJTI = parentJTI.String
	entry.RotatedAt = rotatedAt.Time
	entry.RevokedAt = revokedAt.Time
	return &entry, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
