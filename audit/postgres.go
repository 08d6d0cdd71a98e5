package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sentinelauth/sentinel/internal/ids"
)

// Schema is the DDL for the audit table. Append-only: the store never
// updates or deletes rows.
const Schema = `
create table if not exists audit_events (
	id         text primary key,
	occurred_at timestamptz not null,
	event_type text not null,
	user_id    text,
	ip         text,
	success    boolean not null,
	error      text,
	metadata   jsonb
);
create index if not exists audit_events_time_idx on audit_events (occurred_at desc);
create index if not exists audit_events_type_idx on audit_events (event_type, occurred_at desc);
`

// PGStore records events in PostgreSQL and serves the query surface. It
// implements Sink, so it can sit behind a Dispatcher directly or inside a
// MultiSink next to a JSON writer.
type PGStore struct {
	db *sql.DB
}

var _ Sink = (*PGStore)(nil)

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Emit implements Sink. Append failures are swallowed: audit delivery must
// never fail an authentication operation.
func (s *PGStore) Emit(ctx context.Context, event Event) {
	_ = s.Append(ctx, event)
}

// Append writes one event row.
func (s *PGStore) Append(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = ids.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	var meta []byte
	if len(event.Metadata) > 0 {
		meta, _ = json.Marshal(event.Metadata)
	}

	_, err := s.db.ExecContext(ctx,
		`insert into audit_events(id, occurred_at, event_type, user_id, ip, success, error, metadata)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		event.ID, event.Timestamp, event.EventType,
		nullable(event.UserID), nullable(event.IP), event.Success, nullable(event.Error), meta,
	)
	if err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

// Query returns events since the cutoff, newest first, optionally filtered
// by event type. limit <= 0 applies a default of 500.
func (s *PGStore) Query(ctx context.Context, since time.Time, eventType string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 500
	}

	query := `select id, occurred_at, event_type, user_id, ip, success, error, metadata
		 from audit_events where occurred_at >= $1`
	args := []any{since}
	if eventType != "" {
		query += ` and event_type = $2`
		args = append(args, eventType)
	}
	query += fmt.Sprintf(` order by occurred_at desc limit %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event   Event
			userID  sql.NullString
			ip      sql.NullString
			errText sql.NullString
			meta    []byte
		)
		if err := rows.Scan(&event.ID, &event.Timestamp, &event.EventType,
			&userID, &ip, &event.Success, &errText, &meta); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		event.UserID = userID.String
		event.IP = ip.String
		event.Error = errText.String
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &event.Metadata)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
