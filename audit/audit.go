// Package audit implements the append-only security event log: the event
// model, delivery sinks, an async dispatcher, and a Postgres recorder with
// a bounded query surface.
//
// # Architecture boundaries
//
// This package owns event buffering, delivery, and storage. It does NOT
// decide which events to emit or what severity to attach; that is the
// Engine's responsibility.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event types recorded by the engine.
const (
	EventRegister        = "register"
	EventLoginSuccess    = "login_success"
	EventLoginFailure    = "login_failure"
	EventTokenRefresh    = "token_refresh"
	EventTokenReuse      = "token_reuse_detected"
	EventLogout          = "logout"
	EventRoleChange      = "role_change"
	EventSessionRevoked  = "session_revoked"
	EventUserUpdate      = "user_update"
	EventLimiterFailOpen = "rate_limiter_fail_open"
	EventLedgerDegraded  = "ledger_degraded"
	EventAnomalousLogin  = "anomalous_login"
)

// Event is one append-only audit record. UserID is empty for pre-auth
// events such as failed logins on unknown emails.
type Event struct {
	ID        string            `json:"id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// MultiSink fans an event out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(ctx, event)
		}
	}
}
