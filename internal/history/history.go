package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart EventType = "start"
	EventStop  EventType = "stop"
	EventExit  EventType = "exit"
)

// Event records one script lifecycle transition for audit purposes.
// This is an append-only trail, not a recovery mechanism: the instance
// table itself stays in memory only.
type Event struct {
	Type       EventType `json:"type"`
	ScriptName string    `json:"script_name"`
	PID        int       `json:"pid"`
	OccurredAt time.Time `json:"occurred_at"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for lifecycle events. Implementations must be
// safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
