package sentinel

import (
	"context"
	"time"
)

// alertTimeout bounds how long a notifier call may run in the background.
const alertTimeout = 5 * time.Second

// fireAlert hands an anomalous login to the notifier when the severity
// clears the configured threshold. Fire-and-forget: a slow or failing
// notifier never delays the login response.
func (e *Engine) fireAlert(user *User, ip, userAgent string, severity Severity) {
	if e.notifier == nil || severity == SeverityNone || severity < e.config.Anomaly.NotifyThreshold {
		return
	}

	alert := Alert{
		UserID:    user.ID,
		Email:     user.Email,
		IP:        ip,
		UserAgent: userAgent,
		Severity:  severity,
		At:        e.clock(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
		defer cancel()
		_ = e.notifier.Notify(ctx, alert)
	}()
}
