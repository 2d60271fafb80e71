package domain

// Severity orders issues for the presentation layer.
type Severity string

// Supported severities, highest first.
const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
)

// rank maps severities to their sort order.
func (s Severity) rank() int {
	if s == SeverityCritical {
		return 0
	}
	return 1
}

// Less reports whether s sorts before other.
func (s Severity) Less(other Severity) bool {
	return s.rank() < other.rank()
}

// IssueKind enumerates the detector rules.
type IssueKind string

// Detector rule identifiers.
const (
	IssueHighErrorRate    IssueKind = "HIGH_ERROR_RATE"
	IssueStoppedProcessor IssueKind = "STOPPED_PROCESSOR"
	IssueBackpressure     IssueKind = "BACKPRESSURE"
	IssueSlowQueue        IssueKind = "SLOW_QUEUE"
	IssueStaleRuntime     IssueKind = "STALE_RUNTIME"
)

// Issue is one actionable alert. Issues are recomputed every analysis
// cycle and never mutated after creation.
type Issue struct {
	Severity          Severity           `json:"severity"`
	Kind              IssueKind          `json:"kind"`
	Subject           string             `json:"subject"`
	Evidence          map[string]float64 `json:"evidence"`
	Magnitude         float64            `json:"magnitude"` // ordering key within a severity
	Detail            string             `json:"detail"`
	RecommendedAction string             `json:"recommended_action"`
}
