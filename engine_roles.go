package sentinel

import (
	"context"
	"fmt"
	"strings"

	"github.com/sentinelauth/sentinel/audit"
)

// GrantRole adds a role to the target user. Admin only; granting a role
// the user already holds succeeds without a write.
func (e *Engine) GrantRole(ctx context.Context, actorID, userID, role string) error {
	return e.mutateRoles(ctx, actorID, userID, role, true)
}

// RevokeRole removes a role from the target user. Admin only. The base
// role cannot be removed, and removing admin from the last active admin
// fails with ErrLastAdmin.
func (e *Engine) RevokeRole(ctx context.Context, actorID, userID, role string) error {
	return e.mutateRoles(ctx, actorID, userID, role, false)
}

func (e *Engine) mutateRoles(ctx context.Context, actorID, userID, role string, grant bool) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return fmt.Errorf("%w: role is required", ErrValidation)
	}
	if !grant && role == RoleUser {
		return fmt.Errorf("%w: the base role cannot be removed", ErrValidation)
	}

	if err := e.requireAdmin(ctx, actorID); err != nil {
		return err
	}

	target, err := e.creds.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	oldRoles := append([]string(nil), target.Roles...)
	newRoles := applyRoleChange(oldRoles, role, grant)
	if equalRoles(oldRoles, newRoles) {
		return nil
	}

	if err := e.creds.UpdateRoles(ctx, userID, newRoles); err != nil {
		return err
	}

	e.metrics.Inc(MetricRoleChange)
	e.emitAudit(ctx, audit.EventRoleChange, userID, true, "", func() map[string]string {
		return map[string]string{
			"actor": actorID,
			"role":  role,
			"op":    roleOpName(grant),
			"old":   strings.Join(oldRoles, ","),
			"new":   strings.Join(newRoles, ","),
		}
	})
	return nil
}

func applyRoleChange(roles []string, role string, grant bool) []string {
	if grant {
		if hasRole(roles, role) {
			return roles
		}
		return append(append([]string(nil), roles...), role)
	}

	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if r != role {
			out = append(out, r)
		}
	}
	return out
}

func equalRoles(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func roleOpName(grant bool) string {
	if grant {
		return "grant"
	}
	return "revoke"
}
