package analysis

import (
	"fmt"
	"sort"

	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/internal/domain"
)

// backpressureEscalation is the multiple of the backpressure threshold
// past which a warning becomes critical. With a zero threshold the
// escalation never fires: any strictly positive volume is already a
// warning and ten times zero is still zero.
const backpressureEscalation = 10

// MetricsBundle carries the aggregates the detector evaluates.
type MetricsBundle struct {
	RecentErrors      []domain.ErrorProducer
	QueueMetrics      []domain.QueueMetric
	StoppedProcessors []domain.StoppedProcessor
	Inventory         []domain.RuntimeStatus
}

// Report separates alert-severity issues from the informational stale
// runtime list, which is never mixed into the issue ordering.
type Report struct {
	Issues []domain.Issue         `json:"issues"`
	Stale  []domain.RuntimeStatus `json:"stale_runtimes"`
}

// Detect applies the threshold rule table to the bundle. Each rule is an
// independent predicate, so one runtime can raise several issue kinds.
// All comparisons are strictly greater-than: a reading exactly at a
// threshold does not fire, and a zero threshold means "any nonzero".
// Output ordering is the presentation contract: critical before warning,
// evidence magnitude non-increasing inside a severity.
func Detect(bundle MetricsBundle, thresholds domain.ThresholdConfig) Report {
	issues := make([]domain.Issue, 0)

	for _, p := range bundle.RecentErrors {
		if p.ErrorCount > int64(thresholds.ErrorCountThreshold) {
			issues = append(issues, domain.Issue{
				Severity: domain.SeverityCritical,
				Kind:     domain.IssueHighErrorRate,
				Subject:  p.RuntimeID,
				Evidence: map[string]float64{
					"error_count":    float64(p.ErrorCount),
					"window_minutes": float64(thresholds.ErrorWindowMinutes),
				},
				Magnitude:         float64(p.ErrorCount),
				Detail:            fmt.Sprintf("%d errors in the last %d minutes", p.ErrorCount, thresholds.ErrorWindowMinutes),
				RecommendedAction: "Inspect this runtime's failing processors and recent error log.",
			})
		}
	}

	for _, sp := range bundle.StoppedProcessors {
		issues = append(issues, domain.Issue{
			Severity: domain.SeverityWarning,
			Kind:     domain.IssueStoppedProcessor,
			Subject:  sp.RuntimeID + " | " + sp.ProcessorID,
			Evidence: map[string]float64{
				"stopped": 1,
			},
			Magnitude:         1,
			Detail:            fmt.Sprintf("processor %s in runtime %s is stopped", sp.ProcessorID, sp.RuntimeID),
			RecommendedAction: "Verify whether the stop is intentional; restart the processor in the flow configuration if not.",
		})
	}

	for _, q := range bundle.QueueMetrics {
		if q.PeakQueuedMiB > thresholds.BackpressureMinMiB {
			severity := domain.SeverityWarning
			if thresholds.BackpressureMinMiB > 0 && q.PeakQueuedMiB > backpressureEscalation*thresholds.BackpressureMinMiB {
				severity = domain.SeverityCritical
			}
			issues = append(issues, domain.Issue{
				Severity: severity,
				Kind:     domain.IssueBackpressure,
				Subject:  q.Connection,
				Evidence: map[string]float64{
					"peak_queued_mib": q.PeakQueuedMiB,
					"threshold_mib":   thresholds.BackpressureMinMiB,
				},
				Magnitude:         q.PeakQueuedMiB,
				Detail:            fmt.Sprintf("%.1f MiB queued at %s", q.PeakQueuedMiB, q.Connection),
				RecommendedAction: "Identify the consuming processor on this connection; it may need more resources or be failing.",
			})
		}
		if q.QueueTimeP95Min > thresholds.QueueTimeMinMinutes {
			issues = append(issues, domain.Issue{
				Severity: domain.SeverityWarning,
				Kind:     domain.IssueSlowQueue,
				Subject:  q.Connection,
				Evidence: map[string]float64{
					"queue_time_p95_min": q.QueueTimeP95Min,
					"threshold_min":      thresholds.QueueTimeMinMinutes,
				},
				Magnitude:         q.QueueTimeP95Min,
				Detail:            fmt.Sprintf("p95 queue time %.1f minutes at %s", q.QueueTimeP95Min, q.Connection),
				RecommendedAction: "The downstream component cannot keep up; check it for errors or scale it.",
			})
		}
	}

	stale := make([]domain.RuntimeStatus, 0)
	for _, rt := range bundle.Inventory {
		if !rt.IsActive {
			stale = append(stale, rt)
		}
	}

	sortIssues(issues)
	return Report{Issues: issues, Stale: stale}
}

// sortIssues orders by severity, then magnitude descending, with
// deterministic tie-breaks so repeated detection runs agree exactly.
func sortIssues(issues []domain.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Severity != issues[j].Severity {
			return issues[i].Severity.Less(issues[j].Severity)
		}
		if issues[i].Magnitude != issues[j].Magnitude {
			return issues[i].Magnitude > issues[j].Magnitude
		}
		if issues[i].Subject != issues[j].Subject {
			return issues[i].Subject < issues[j].Subject
		}
		return issues[i].Kind < issues[j].Kind
	})
}
