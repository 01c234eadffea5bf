package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of event flowing through the bus.
type EventType string

const (
	// StockResolved fires when the resolution dispatcher finishes fetching
	// and merging a fetch level into a stock's record.
	StockResolved EventType = "STOCK_RESOLVED"

	// ResolutionFailed fires when a fetch attempt for a stock errors out,
	// including the attempt that pushes a stock past the poisoned threshold.
	ResolutionFailed EventType = "RESOLUTION_FAILED"

	// RealtimeRecordAppended fires when the real-time poller appends a new
	// tick to a symbol's in-memory record vector.
	RealtimeRecordAppended EventType = "REALTIME_RECORD_APPENDED"

	// AlertTriggered fires when an alert evaluator's expression turns truthy
	// on a tick of the round-robin scheduler.
	AlertTriggered EventType = "ALERT_TRIGGERED"

	// BackupCompleted fires when the nightly backup job finishes uploading
	// a snapshot, successfully or not.
	BackupCompleted EventType = "BACKUP_COMPLETED"

	// JobFailed fires when a scheduled job returns an error.
	JobFailed EventType = "JOB_FAILED"

	// ErrorOccurred is the generic error-reporting event, kept for parity
	// with ad-hoc failures that don't warrant their own type.
	ErrorOccurred EventType = "ERROR_OCCURRED"
)

// Event is the wire/log shape of an emitted event: legacy map-based data,
// kept so log lines and the SSE stream can render any event without
// knowing its concrete payload type.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Module    string                 `json:"module"`
	Data      map[string]interface{} `json:"data"`
}

// NewEventID generates the random identifier stamped on every emitted
// Event, shared with internal/server's request-id middleware so both
// request and event correlation ids come from the same generator.
func NewEventID() string {
	return uuid.NewString()
}
