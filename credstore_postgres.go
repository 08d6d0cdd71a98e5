package sentinel

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// UsersSchema is the reference DDL for the Postgres credential store.
// Migrations are owned by the caller.
const UsersSchema = `
create table if not exists users (
    id          text primary key,
    email       text not null unique,
    password    text not null,
    roles       jsonb not null default '["user"]',
    active      boolean not null default true,
    created_at  timestamptz not null,
    last_login  timestamptz
);
`

// PGCredentialStore is the Postgres CredentialStore. It expects a *sql.DB
// opened with the pgx stdlib driver.
type PGCredentialStore struct {
	db *sql.DB
}

// NewPGCredentialStore wraps db. The users table must already exist.
func NewPGCredentialStore(db *sql.DB) *PGCredentialStore {
	return &PGCredentialStore{db: db}
}

func (s *PGCredentialStore) Create(ctx context.Context, user *User) error {
	roles, err := json.Marshal(user.Roles)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`insert into users (id, email, password, roles, active, created_at) values ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.PasswordHash, roles, user.Active, user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return storeUnavailable(err)
	}
	return nil
}

func (s *PGCredentialStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, `select id, email, password, roles, active, created_at, last_login from users where email = $1`, email)
}

func (s *PGCredentialStore) FindByID(ctx context.Context, id string) (*User, error) {
	return s.findOne(ctx, `select id, email, password, roles, active, created_at, last_login from users where id = $1`, id)
}

func (s *PGCredentialStore) findOne(ctx context.Context, query, arg string) (*User, error) {
	row := s.db.QueryRowContext(ctx, query, arg)

	var (
		user      User
		roles     []byte
		lastLogin sql.NullTime
	)
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &roles, &user.Active, &user.CreatedAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, storeUnavailable(err)
	}
	if err := json.Unmarshal(roles, &user.Roles); err != nil {
		return nil, fmt.Errorf("decode roles for %s: %w", user.ID, err)
	}
	if lastLogin.Valid {
		user.LastLoginAt = lastLogin.Time
	}
	return &user, nil
}

// UpdateRoles replaces the role set. The last-admin guard runs inside the
// same transaction as the update: taking admin away from the only active
// admin fails with ErrLastAdmin.
func (s *PGCredentialStore) UpdateRoles(ctx context.Context, id string, newRoles []string) error {
	encoded, err := json.Marshal(newRoles)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeUnavailable(err)
	}
	defer tx.Rollback()

	var current []byte
	err = tx.QueryRowContext(ctx, `select roles from users where id = $1 for update`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return storeUnavailable(err)
	}

	var currentRoles []string
	if err := json.Unmarshal(current, &currentRoles); err != nil {
		return fmt.Errorf("decode roles for %s: %w", id, err)
	}

	if hasRole(currentRoles, RoleAdmin) && !hasRole(newRoles, RoleAdmin) {
		var others int
		err = tx.QueryRowContext(ctx,
			`select count(*) from users where active and roles @> '["admin"]'::jsonb and id <> $1`, id,
		).Scan(&others)
		if err != nil {
			return storeUnavailable(err)
		}
		if others == 0 {
			return ErrLastAdmin
		}
	}

	if _, err := tx.ExecContext(ctx, `update users set roles = $1 where id = $2`, encoded, id); err != nil {
		return storeUnavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return storeUnavailable(err)
	}
	return nil
}

func (s *PGCredentialStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.execOnUser(ctx, `update users set password = $1 where id = $2`, passwordHash, id)
}

// SetActive flips the account flag. Deactivating the only active admin is
// refused with ErrLastAdmin, checked in the same transaction.
func (s *PGCredentialStore) SetActive(ctx context.Context, id string, active bool) error {
	if active {
		return s.execOnUser(ctx, `update users set active = $1 where id = $2`, active, id)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeUnavailable(err)
	}
	defer tx.Rollback()

	var (
		roles     []byte
		wasActive bool
	)
	err = tx.QueryRowContext(ctx, `select roles, active from users where id = $1 for update`, id).Scan(&roles, &wasActive)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return storeUnavailable(err)
	}

	var currentRoles []string
	if err := json.Unmarshal(roles, &currentRoles); err != nil {
		return fmt.Errorf("decode roles for %s: %w", id, err)
	}

	if wasActive && hasRole(currentRoles, RoleAdmin) {
		var others int
		err = tx.QueryRowContext(ctx,
			`select count(*) from users where active and roles @> '["admin"]'::jsonb and id <> $1`, id,
		).Scan(&others)
		if err != nil {
			return storeUnavailable(err)
		}
		if others == 0 {
			return ErrLastAdmin
		}
	}

	if _, err := tx.ExecContext(ctx, `update users set active = false where id = $1`, id); err != nil {
		return storeUnavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return storeUnavailable(err)
	}
	return nil
}

func (s *PGCredentialStore) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.execOnUser(ctx, `update users set last_login = $1 where id = $2`, at, id)
}

func (s *PGCredentialStore) execOnUser(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storeUnavailable(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeUnavailable(err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func storeUnavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
