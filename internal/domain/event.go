package domain

import (
	"strings"
	"time"
)

// Telemetry levels reported by the event source.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Processor run states reported by the event source.
const (
	ProcessorRunning = "running"
	ProcessorStopped = "stopped"
)

// TelemetryEvent is a single row read from the external telemetry store.
// The store owns the schema; rows are never written back.
type TelemetryEvent struct {
	Timestamp      time.Time `json:"timestamp"`
	RuntimeID      string    `json:"runtime_id"`
	ProcessorID    string    `json:"processor_id,omitempty"`
	Level          string    `json:"level"`
	Message        string    `json:"message"`
	ByteSize       *int64    `json:"byte_size,omitempty"`
	QueueTimeMS    *float64  `json:"queue_time_ms,omitempty"`
	ProcessorState string    `json:"processor_state,omitempty"`
}

// IsError reports whether the event carries an error-level record.
func (e TelemetryEvent) IsError() bool {
	return strings.EqualFold(e.Level, LevelError)
}

// RuntimeSpan reports the first and last event timestamps ever seen for a runtime.
type RuntimeSpan struct {
	RuntimeID string    `json:"runtime_id"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}
