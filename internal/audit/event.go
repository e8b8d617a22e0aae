package audit

import (
	"context"
	"time"
)

// Event is the audit record emitted by the engine. Events never carry codes,
// reset secrets, session tokens or password material.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	AccountID string            `json:"account_id,omitempty"`
	Email     string            `json:"email,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink consumes events. The dispatcher calls Emit from a single goroutine,
// but sinks shared between dispatchers must synchronize themselves.
type Sink interface {
	Emit(ctx context.Context, event Event)
}
