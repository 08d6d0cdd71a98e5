// Package sentry implements the engine's Notifier over the Sentry SDK.
// Anomalous logins at or above the configured threshold surface as Sentry
// events with the login metadata attached as tags.
package sentry

import (
	"context"
	"errors"
	"time"

	sentrygo "github.com/getsentry/sentry-go"

	sentinel "github.com/sentinelauth/sentinel"
)

// Notifier forwards anomaly alerts to Sentry.
type Notifier struct {
	hub          *sentrygo.Hub
	flushTimeout time.Duration
}

var _ sentinel.Notifier = (*Notifier)(nil)

// New initializes a Sentry client for the given DSN.
func New(dsn string) (*Notifier, error) {
	if dsn == "" {
		return nil, errors.New("sentry: dsn is required")
	}

	client, err := sentrygo.NewClient(sentrygo.ClientOptions{
		Dsn: dsn,
	})
	if err != nil {
		return nil, err
	}

	hub := sentrygo.NewHub(client, sentrygo.NewScope())
	return &Notifier{hub: hub, flushTimeout: 2 * time.Second}, nil
}

// Notify reports one anomalous login. The engine calls this off the login
// path, so a blocking flush here is acceptable.
func (n *Notifier) Notify(ctx context.Context, alert sentinel.Alert) error {
	event := sentrygo.NewEvent()
	event.Level = severityLevel(alert.Severity)
	event.Message = "anomalous login detected"
	event.Timestamp = alert.At
	event.User = sentrygo.User{ID: alert.UserID, Email: alert.Email, IPAddress: alert.IP}
	event.Tags = map[string]string{
		"severity":   alert.Severity.String(),
		"user_agent": alert.UserAgent,
	}

	n.hub.CaptureEvent(event)

	deadline := n.flushTimeout
	if d, ok := ctx.Deadline(); ok {
		if until := time.Until(d); until < deadline {
			deadline = until
		}
	}
	if !n.hub.Flush(deadline) {
		return errors.New("sentry: flush timed out")
	}
	return nil
}

func severityLevel(s sentinel.Severity) sentrygo.Level {
	switch s {
	case sentinel.SeverityHigh:
		return sentrygo.LevelError
	case sentinel.SeverityMedium:
		return sentrygo.LevelWarning
	default:
		return sentrygo.LevelInfo
	}
}
