package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Schema is the DDL for the sessions table.
const Schema = `
create table if not exists sessions (
	id           text primary key,
	user_id      text not null,
	root_jti     text not null unique,
	ip           text not null default '',
	user_agent   text not null default '',
	device_hash  text not null default '',
	created_at   timestamptz not null,
	last_seen_at timestamptz not null,
	active       boolean not null default true
);
create index if not exists sessions_user_idx on sessions (user_id, created_at desc);
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

// Create implements Store.
func (s *PGStore) Create(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx,
		`insert into sessions(id, user_id, root_jti, ip, user_agent, device_hash, created_at, last_seen_at, active)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rec.ID, rec.UserID, rec.RootJTI, rec.IP, rec.UserAgent, rec.DeviceHash,
		rec.CreatedAt, rec.LastSeenAt, rec.Active,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Touch implements Store.
func (s *PGStore) Touch(ctx context.Context, rootJTI string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update sessions set last_seen_at=$1 where root_jti=$2`, at, rootJTI)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Revoke implements Store.
func (s *PGStore) Revoke(ctx context.Context, rootJTI string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update sessions set active=false, last_seen_at=$1 where root_jti=$2 and active`, at, rootJTI)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RecentForUser implements Store.
func (s *PGStore) RecentForUser(ctx context.Context, userID string, n int) ([]*Record, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`select id, user_id, root_jti, ip, user_agent, device_hash, created_at, last_seen_at, active
		 from sessions where user_id=$1 order by created_at desc limit $2`, userID, n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var recent []*Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.RootJTI, &rec.IP, &rec.UserAgent,
			&rec.DeviceHash, &rec.CreatedAt, &rec.LastSeenAt, &rec.Active); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		recent = append(recent, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return recent, nil
}

// Get returns a single record by lineage root.
func (s *PGStore) Get(ctx context.Context, rootJTI string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, root_jti, ip, user_agent, device_hash, created_at, last_seen_at, active
		 from sessions where root_jti=$1`, rootJTI)

	var rec Record
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.RootJTI, &rec.IP, &rec.UserAgent,
		&rec.DeviceHash, &rec.CreatedAt, &rec.LastSeenAt, &rec.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &rec, nil
}
