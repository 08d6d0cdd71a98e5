package sentinel

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func testUser(id, email string, roles ...string) *User {
	if len(roles) == 0 {
		roles = []string{RoleUser}
	}
	return &User{
		ID:           id,
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2Fs$aGFzaA",
		Roles:        roles,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestMemoryCreateRejectsDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCredentialStore()

	if err := store.Create(ctx, testUser("u1", "a@example.com")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, testUser("u2", "a@example.com")); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("duplicate error = %v, want ErrDuplicateEmail", err)
	}
}

func TestMemoryUpdateRolesLastAdminGuard(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCredentialStore()

	if err := store.Create(ctx, testUser("u1", "a@example.com", RoleUser, RoleAdmin)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.UpdateRoles(ctx, "u1", []string{RoleUser}); !errors.Is(err, ErrLastAdmin) {
		t.Fatalf("error = %v, want ErrLastAdmin", err)
	}
	if err := store.SetActive(ctx, "u1", false); !errors.Is(err, ErrLastAdmin) {
		t.Fatalf("deactivate error = %v, want ErrLastAdmin", err)
	}

	if err := store.Create(ctx, testUser("u2", "b@example.com", RoleUser, RoleAdmin)); err != nil {
		t.Fatalf("Create second admin: %v", err)
	}
	if err := store.UpdateRoles(ctx, "u1", []string{RoleUser}); err != nil {
		t.Fatalf("demote with backup admin: %v", err)
	}
}

func TestMemoryCloneIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCredentialStore()
	if err := store.Create(ctx, testUser("u1", "a@example.com")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	got.Roles[0] = "tampered"

	again, _ := store.FindByID(ctx, "u1")
	if again.Roles[0] != RoleUser {
		t.Fatal("store state must not share slices with callers")
	}
}

func TestPGCreateMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	store := NewPGCredentialStore(db)

	mock.ExpectExec(regexp.QuoteMeta(`insert into users`)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	err = store.Create(context.Background(), testUser("u1", "a@example.com"))
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("error = %v, want ErrDuplicateEmail", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGUpdateRolesLastAdminRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	store := NewPGCredentialStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`select roles from users where id = $1 for update`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"roles"}).AddRow([]byte(`["user","admin"]`)))
	mock.ExpectQuery(regexp.QuoteMeta(`select count(*) from users where active and roles @> '["admin"]'::jsonb and id <> $1`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectRollback()

	err = store.UpdateRoles(context.Background(), "u1", []string{RoleUser})
	if !errors.Is(err, ErrLastAdmin) {
		t.Fatalf("error = %v, want ErrLastAdmin", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGUpdateRolesCommitsWithBackupAdmin(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	store := NewPGCredentialStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`select roles from users where id = $1 for update`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"roles"}).AddRow([]byte(`["user","admin"]`)))
	mock.ExpectQuery(regexp.QuoteMeta(`select count(*)`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta(`update users set roles = $1 where id = $2`)).
		WithArgs([]byte(`["user"]`), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.UpdateRoles(context.Background(), "u1", []string{RoleUser}); err != nil {
		t.Fatalf("UpdateRoles: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGFindByEmailNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	store := NewPGCredentialStore(db)

	mock.ExpectQuery(regexp.QuoteMeta(`select id, email, password, roles, active, created_at, last_login from users where email = $1`)).
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password", "roles", "active", "created_at", "last_login"}))

	if _, err := store.FindByEmail(context.Background(), "ghost@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("error = %v, want ErrUserNotFound", err)
	}
}

func TestPGSetActiveGuardsLastAdmin(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	store := NewPGCredentialStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`select roles, active from users where id = $1 for update`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"roles", "active"}).AddRow([]byte(`["user","admin"]`), true))
	mock.ExpectQuery(regexp.QuoteMeta(`select count(*)`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectRollback()

	if err := store.SetActive(context.Background(), "u1", false); !errors.Is(err, ErrLastAdmin) {
		t.Fatalf("error = %v, want ErrLastAdmin", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
