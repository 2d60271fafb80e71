package domain

import "time"

// TrendPoint is one runtime × time-bucket cell of the error trend series.
// MaxQueueMin carries the worst queue delay observed in the bucket so the
// error and delay trends share one series.
type TrendPoint struct {
	BucketStart time.Time     `json:"bucket_start"`
	BucketSpan  time.Duration `json:"bucket_span"`
	RuntimeID   string        `json:"runtime_id"`
	ErrorCount  int64         `json:"error_count"`
	MaxQueueMin float64       `json:"max_queue_min"`
}

// ErrorProducer ranks a runtime by error volume within a window.
type ErrorProducer struct {
	RuntimeID  string    `json:"runtime_id"`
	ErrorCount int64     `json:"error_count"`
	LastError  time.Time `json:"last_error"`
}

// QueueMetric reports worst-case congestion for one runtime connection.
type QueueMetric struct {
	RuntimeID       string  `json:"runtime_id"`
	ProcessorID     string  `json:"processor_id"`
	Connection      string  `json:"connection"` // "runtime | processor" display key
	PeakQueuedMiB   float64 `json:"peak_queued_mib"`
	QueueTimeP95Min float64 `json:"queue_time_p95_min"`
	Samples         int64   `json:"samples"`
}

// HeatmapCell is one cell of the 7×24 day-of-week × hour-of-day error grid.
type HeatmapCell struct {
	Weekday    time.Weekday `json:"weekday"`
	Hour       int          `json:"hour"`
	ErrorCount int64        `json:"error_count"`
}

// RuntimeStatus is one runtime inventory row.
type RuntimeStatus struct {
	RuntimeID string    `json:"runtime_id"`
	Internal  bool      `json:"internal"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	IsActive  bool      `json:"is_active"`
}

// StoppedProcessor identifies a processor whose latest reported state
// within the window is stopped.
type StoppedProcessor struct {
	RuntimeID   string    `json:"runtime_id"`
	ProcessorID string    `json:"processor_id"`
	LastReport  time.Time `json:"last_report"`
}

// ErrorLogEntry is a single error message for drill-down views.
type ErrorLogEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	RuntimeID   string    `json:"runtime_id"`
	ProcessorID string    `json:"processor_id"`
	Message     string    `json:"message"`
}

// ProcessorErrorShare ranks a processor's contribution to one runtime's errors.
type ProcessorErrorShare struct {
	ProcessorID string  `json:"processor_id"`
	ErrorCount  int64   `json:"error_count"`
	Share       float64 `json:"share"` // percent of the runtime's errors
}
