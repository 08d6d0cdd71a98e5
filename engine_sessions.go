package sentinel

import (
	"context"
	"errors"

	"github.com/sentinelauth/sentinel/audit"
	"github.com/sentinelauth/sentinel/ledger"
	"github.com/sentinelauth/sentinel/session"
)

// Sessions lists the most recent session records for a user, newest first.
// Users may list their own; anything else requires the admin role.
func (e *Engine) Sessions(ctx context.Context, actorID, userID string, n int) ([]*session.Record, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	if actorID != userID {
		if err := e.requireAdmin(ctx, actorID); err != nil {
			return nil, err
		}
	}
	if n <= 0 {
		n = e.config.Anomaly.RecentSessions
	}

	records, err := e.sessions.RecentForUser(ctx, userID, n)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	return records, nil
}

// RevokeSession revokes one session and the refresh lineage behind it, so
// any refresh token from that lineage stops working. The session owner may
// revoke their own; anything else requires the admin role.
func (e *Engine) RevokeSession(ctx context.Context, actorID, rootJTI string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	rec, err := e.sessions.Get(ctx, rootJTI)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		return storeUnavailable(err)
	}
	if rec.UserID != actorID {
		if err := e.requireAdmin(ctx, actorID); err != nil {
			return err
		}
	}

	now := e.clock()
	if _, err := e.ledger.RevokeLineage(ctx, rootJTI, now); err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return storeUnavailable(err)
	}
	if err := e.sessions.Revoke(ctx, rootJTI, now); err != nil {
		return storeUnavailable(err)
	}

	e.emitAudit(ctx, audit.EventSessionRevoked, rec.UserID, true, "", func() map[string]string {
		return map[string]string{"root_jti": rootJTI, "actor": actorID}
	})
	return nil
}
