package sentinel

import (
	"context"
	"time"
)

// Role names. Every user carries RoleUser; RoleAdmin gates role mutations
// and account administration.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is a credential-store record. PasswordHash is the PHC-encoded
// argon2id string and never leaves the engine.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	LastLoginAt  time.Time `json:"last_login_at,omitempty"`
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers cannot mutate store state.
func (u *User) Clone() *User {
	out := *u
	out.Roles = append([]string(nil), u.Roles...)
	return &out
}

// TokenPair is the result of Login and Refresh.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// AccessIdentity is the verified identity extracted from an access token by
// Authorize. Roles is the snapshot minted into the token, not a live read.
type AccessIdentity struct {
	UserID    string
	Roles     []string
	JTI       string
	ExpiresAt time.Time
}

// CredentialStore persists user records. Implementations must return
// ErrDuplicateEmail on unique-email conflicts, ErrUserNotFound for unknown
// ids or emails, and ErrLastAdmin when UpdateRoles or SetActive would
// leave zero active admins; the admin count check must be transactional
// with the update.
type CredentialStore interface {
	Create(ctx context.Context, user *User) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	UpdateRoles(ctx context.Context, id string, roles []string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetActive(ctx context.Context, id string, active bool) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// Alert describes a suspicious login for the notifier hook.
type Alert struct {
	UserID    string
	Email     string
	IP        string
	UserAgent string
	Severity  Severity
	At        time.Time
}

// Notifier receives anomaly alerts at or above the configured severity
// threshold. Calls are fire-and-forget from the engine's perspective;
// implementations own their retries and timeouts.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Health reports engine liveness. Status is "ok" or "degraded"; the flags
// name the dependency behind a degraded report.
type Health struct {
	Status          string `json:"status"`
	DB              bool   `json:"db"`
	Redis           bool   `json:"redis"`
	LedgerDegraded  bool   `json:"ledger_degraded,omitempty"`
	LimiterFallback bool   `json:"limiter_fallback,omitempty"`
}
