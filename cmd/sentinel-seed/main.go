// Command sentinel-seed bootstraps the first admin account. It is
// idempotent: rerunning against a database that already has the admin
// promotes or reactivates it instead of failing.
//
// Configuration comes from the environment (a .env file is honored):
//
//	DATABASE_URL      Postgres DSN (required)
//	ADMIN_EMAIL       admin account email (required)
//	ADMIN_PASSWORD    admin account password (required)
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	sentinel "github.com/sentinelauth/sentinel"
	"github.com/sentinelauth/sentinel/audit"
	"github.com/sentinelauth/sentinel/internal/ids"
	"github.com/sentinelauth/sentinel/ledger"
	"github.com/sentinelauth/sentinel/password"
	"github.com/sentinelauth/sentinel/session"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("sentinel-seed: %v", err)
	}
}

func run() error {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	email := os.Getenv("ADMIN_EMAIL")
	pass := os.Getenv("ADMIN_PASSWORD")
	if dsn == "" || email == "" || pass == "" {
		return errors.New("DATABASE_URL, ADMIN_EMAIL, and ADMIN_PASSWORD are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	for _, schema := range []string{sentinel.UsersSchema, ledger.Schema, session.Schema, audit.Schema} {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	store := sentinel.NewPGCredentialStore(db)
	hasher, err := password.NewHasher(password.DefaultConfig())
	if err != nil {
		return err
	}

	existing, err := store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return promote(ctx, store, existing)
	case errors.Is(err, sentinel.ErrUserNotFound):
	default:
		return err
	}

	hash, err := hasher.Hash(pass)
	if err != nil {
		return err
	}

	admin := &sentinel.User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Roles:        []string{sentinel.RoleUser, sentinel.RoleAdmin},
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.Create(ctx, admin); err != nil {
		return err
	}

	log.Printf("created admin %s (%s)", admin.Email, admin.ID)
	return nil
}

// promote makes sure an existing account carries the admin role and is
// active. The password is left untouched.
func promote(ctx context.Context, store *sentinel.PGCredentialStore, user *sentinel.User) error {
	changed := false

	if !user.HasRole(sentinel.RoleAdmin) {
		roles := append(user.Roles, sentinel.RoleAdmin)
		if err := store.UpdateRoles(ctx, user.ID, roles); err != nil {
			return err
		}
		changed = true
	}
	if !user.Active {
		if err := store.SetActive(ctx, user.ID, true); err != nil {
			return err
		}
		changed = true
	}

	if changed {
		log.Printf("promoted existing account %s (%s)", user.Email, user.ID)
	} else {
		log.Printf("admin %s already provisioned", user.Email)
	}
	return nil
}
