package domain

import (
	"fmt"
	"time"
)

// TimeWindow bounds a telemetry query. The interval is open at Start and
// closed at End so that a trailing window ending at "now" includes events
// stamped exactly now.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate rejects degenerate windows.
func (w TimeWindow) Validate() error {
	if !w.Start.Before(w.End) {
		return fmt.Errorf("%w: window start %s must precede end %s", ErrInvalidConfiguration, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	return nil
}

// Duration returns the window length.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	return t.After(w.Start) && !t.After(w.End)
}

// WindowEnding returns a trailing window of length d ending at now.
func WindowEnding(now time.Time, d time.Duration) TimeWindow {
	return TimeWindow{Start: now.Add(-d), End: now}
}

// WindowQuantum is the alignment step for trailing-window ends. Cache
// keys embed the window bounds, so captures taken inside one step must
// derive identical bounds or the result cache never repeats a key.
const WindowQuantum = 30 * time.Second

// AlignedWindowEnding returns a trailing window of length d whose end
// is now truncated to WindowQuantum. The span stays exact; only the end
// snaps, so a reading is at most one quantum older than the clock.
func AlignedWindowEnding(now time.Time, d time.Duration) TimeWindow {
	end := now.Truncate(WindowQuantum)
	return TimeWindow{Start: end.Add(-d), End: end}
}

// Window presets offered on the configuration surface.
var windowPresets = map[string]time.Duration{
	"1h":   time.Hour,
	"6h":   6 * time.Hour,
	"24h":  24 * time.Hour,
	"168h": 168 * time.Hour,
}

// PresetDuration resolves a named window preset.
func PresetDuration(name string) (time.Duration, bool) {
	d, ok := windowPresets[name]
	return d, ok
}

const (
	shortWindowBucket = 30 * time.Minute
	longWindowBucket  = 24 * time.Hour
)

// BucketSpan is the trend bucketing policy: windows up to a day get
// half-hour buckets, longer windows roll up to day buckets to keep the
// series point count bounded.
func BucketSpan(w TimeWindow) time.Duration {
	if w.Duration() <= 24*time.Hour {
		return shortWindowBucket
	}
	return longWindowBucket
}
