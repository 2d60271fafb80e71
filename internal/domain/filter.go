package domain

import (
	"fmt"
	"sort"
	"strings"
)

// FilterSet scopes every aggregation to the operator's current selection.
type FilterSet struct {
	RuntimeIDs      []string `json:"runtime_ids,omitempty"` // empty selects all runtimes
	IncludeInternal bool     `json:"include_internal"`
	ProcessorFilter string   `json:"processor_filter,omitempty"`
	MessageFilter   string   `json:"message_filter,omitempty"`
}

// Normalized returns a copy with runtime IDs trimmed, deduplicated and
// sorted so equal selections derive equal cache keys.
func (f FilterSet) Normalized() FilterSet {
	out := f
	out.ProcessorFilter = strings.TrimSpace(f.ProcessorFilter)
	out.MessageFilter = strings.TrimSpace(f.MessageFilter)
	if len(f.RuntimeIDs) == 0 {
		out.RuntimeIDs = nil
		return out
	}
	seen := make(map[string]struct{}, len(f.RuntimeIDs))
	ids := make([]string, 0, len(f.RuntimeIDs))
	for _, id := range f.RuntimeIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		ids = nil
	}
	out.RuntimeIDs = ids
	return out
}

// MatchesRuntime reports whether the selection admits the runtime.
func (f FilterSet) MatchesRuntime(id string) bool {
	if len(f.RuntimeIDs) == 0 {
		return true
	}
	for _, want := range f.RuntimeIDs {
		if want == id {
			return true
		}
	}
	return false
}

// Default alerting thresholds.
const (
	DefaultErrorCountThreshold = 5
	DefaultErrorWindowMinutes  = 30
	DefaultInactivityHours     = 24
)

// ThresholdConfig holds the operator-tunable alerting thresholds.
type ThresholdConfig struct {
	ErrorCountThreshold int     `json:"error_count_threshold"`
	ErrorWindowMinutes  int     `json:"error_window_minutes"`
	BackpressureMinMiB  float64 `json:"backpressure_min_mib"`
	QueueTimeMinMinutes float64 `json:"queue_time_min_minutes"`
	InactivityHours     int     `json:"inactivity_hours"`
}

// DefaultThresholds returns the documented threshold defaults.
func DefaultThresholds() ThresholdConfig {
	return ThresholdConfig{
		ErrorCountThreshold: DefaultErrorCountThreshold,
		ErrorWindowMinutes:  DefaultErrorWindowMinutes,
		BackpressureMinMiB:  0,
		QueueTimeMinMinutes: 0,
		InactivityHours:     DefaultInactivityHours,
	}
}

// Validate rejects negative thresholds and a sub-hour inactivity cutoff.
func (t ThresholdConfig) Validate() error {
	if t.ErrorCountThreshold < 0 {
		return fmt.Errorf("%w: error count threshold must be non-negative", ErrInvalidConfiguration)
	}
	if t.ErrorWindowMinutes < 0 {
		return fmt.Errorf("%w: error window minutes must be non-negative", ErrInvalidConfiguration)
	}
	if t.BackpressureMinMiB < 0 {
		return fmt.Errorf("%w: backpressure threshold must be non-negative", ErrInvalidConfiguration)
	}
	if t.QueueTimeMinMinutes < 0 {
		return fmt.Errorf("%w: queue time threshold must be non-negative", ErrInvalidConfiguration)
	}
	if t.InactivityHours < 1 {
		return fmt.Errorf("%w: inactivity hours must be at least 1", ErrInvalidConfiguration)
	}
	return nil
}
