package sentinel

import (
	"context"

	"github.com/sentinelauth/sentinel/audit"
)

// emitAudit forwards one event to the dispatcher. The metadata closure is
// only invoked when auditing is enabled, so hot paths pay nothing for map
// construction while audit is off.
func (e *Engine) emitAudit(ctx context.Context, eventType, userID string, success bool, errText string, metadata func() map[string]string) {
	if e.audits == nil {
		return
	}

	event := audit.Event{
		Timestamp: e.clock(),
		EventType: eventType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Error:     errText,
	}
	if metadata != nil {
		event.Metadata = metadata()
	}

	e.audits.Emit(ctx, event)
}
