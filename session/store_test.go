package session

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func record(root, userID string, created time.Time) *Record {
	return &Record{
		ID:         "sess-" + root,
		UserID:     userID,
		RootJTI:    root,
		IP:         "10.0.0.1",
		UserAgent:  "cli/1.0",
		DeviceHash: Fingerprint("cli/1.0", ""),
		CreatedAt:  created,
		LastSeenAt: created,
		Active:     true,
	}
}

func TestMemoryRecentForUserNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 4; i++ {
		rec := record(string(rune('a'+i)), "u1", base.Add(time.Duration(i)*time.Minute))
		if err := store.Create(ctx, rec); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if err := store.Create(ctx, record("other", "u2", base)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	recent, err := store.RecentForUser(ctx, "u1", 3)
	if err != nil {
		t.Fatalf("RecentForUser: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("got %d records, want 3", len(recent))
	}
	for i := 1; i < len(recent); i++ {
		if recent[i].CreatedAt.After(recent[i-1].CreatedAt) {
			t.Fatal("records not ordered newest first")
		}
	}
}

func TestMemoryRevokeIsIdempotentAndRetains(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Create(ctx, record("root", "u1", time.Now())); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Revoke(ctx, "root", time.Now()); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := store.Revoke(ctx, "root", time.Now()); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}

	rec, err := store.Get(ctx, "root")
	if err != nil {
		t.Fatalf("Get after revoke: %v", err)
	}
	if rec.Active {
		t.Fatal("expected revoked session to be inactive")
	}
}

func TestMemoryTouchUpdatesLastSeen(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	created := time.Now().Add(-time.Hour)

	if err := store.Create(ctx, record("root", "u1", created)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	bump := time.Now()
	if err := store.Touch(ctx, "root", bump); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	// Touching an unknown root is a no-op, not an error.
	if err := store.Touch(ctx, "missing", bump); err != nil {
		t.Fatalf("Touch(missing): %v", err)
	}

	rec, err := store.Get(ctx, "root")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !rec.LastSeenAt.Equal(bump) {
		t.Fatalf("last seen = %v, want %v", rec.LastSeenAt, bump)
	}
}

func TestFingerprintFoldsClientHash(t *testing.T) {
	plain := Fingerprint("cli/1.0", "")
	withHash := Fingerprint("cli/1.0", "device-123")
	if plain == withHash {
		t.Fatal("client hash must change the fingerprint")
	}
	if plain != Fingerprint("cli/1.0", "") {
		t.Fatal("fingerprint must be deterministic")
	}
}

func TestPGRecentForUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewPGStore(db)

	now := time.Now()
	cols := []string{"id", "user_id", "root_jti", "ip", "user_agent", "device_hash", "created_at", "last_seen_at", "active"}
	mock.ExpectQuery("select (.+) from sessions").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("s2", "u1", "r2", "10.0.0.2", "cli/2.0", "h2", now, now, true).
			AddRow("s1", "u1", "r1", "10.0.0.1", "cli/1.0", "h1", now.Add(-time.Hour), now.Add(-time.Hour), true))

	recent, err := store.RecentForUser(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("RecentForUser: %v", err)
	}
	if len(recent) != 2 || recent[0].RootJTI != "r2" {
		t.Fatalf("unexpected result: %+v", recent)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRevokeOnlyActiveRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewPGStore(db)

	mock.ExpectExec("update sessions set active=false").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Revoke(context.Background(), "r1", time.Now()); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
