package sentinel

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sentinelauth/sentinel/audit"
	"github.com/sentinelauth/sentinel/internal/ids"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new account with the base role. No tokens are issued;
// the caller logs in separately.
func (e *Engine) Register(ctx context.Context, email, plainPassword string) (*User, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	email = normalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return nil, fmt.Errorf("%w: malformed email", ErrValidation)
	}
	if len(plainPassword) < e.config.Password.MinLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, e.config.Password.MinLength)
	}

	hash, err := e.hasher.Hash(plainPassword)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Roles:        []string{RoleUser},
		Active:       true,
		CreatedAt:    e.clock(),
	}
	if err := e.creds.Create(ctx, user); err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricRegister)
	e.emitAudit(ctx, audit.EventRegister, user.ID, true, "", func() map[string]string {
		return map[string]string{"email": email}
	})

	out := user.Clone()
	out.PasswordHash = ""
	return out, nil
}

// ChangePassword rotates the password after verifying the current one.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	if len(newPassword) < e.config.Password.MinLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, e.config.Password.MinLength)
	}

	user, err := e.creds.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	match, err := e.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil || !match {
		return ErrInvalidCredentials
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.creds.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	e.emitAudit(ctx, audit.EventUserUpdate, userID, true, "", func() map[string]string {
		return map[string]string{"change": "password"}
	})
	return nil
}

// SetActive flips the account flag. Admin only. The store refuses
// deactivating the last active admin so the deployment cannot lock itself
// out.
func (e *Engine) SetActive(ctx context.Context, actorID, userID string, active bool) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	if err := e.requireAdmin(ctx, actorID); err != nil {
		return err
	}

	if err := e.creds.SetActive(ctx, userID, active); err != nil {
		return err
	}

	e.emitAudit(ctx, audit.EventUserUpdate, userID, true, "", func() map[string]string {
		return map[string]string{"change": "active", "active": boolString(active), "actor": actorID}
	})
	return nil
}

func (e *Engine) requireAdmin(ctx context.Context, actorID string) error {
	actor, err := e.creds.FindByID(ctx, actorID)
	if err != nil {
		return err
	}
	if !actor.HasRole(RoleAdmin) || !actor.Active {
		return ErrInsufficientRole
	}
	return nil
}
