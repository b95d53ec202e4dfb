package models

import "time"

// Event types recorded in the kettle event log.
const (
	EventConnect   = "CONNECT"
	EventCommand   = "COMMAND"
	EventDegraded  = "DEGRADED"
	EventRecovered = "RECOVERED"
	EventError     = "ERROR"
)

// KettleEvent is a single log entry.
type KettleEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // CONNECT | COMMAND | DEGRADED | RECOVERED | ERROR
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
