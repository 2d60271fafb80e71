package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/internal/domain"
)

// DefaultWindow is the trailing window a fresh session starts with.
const DefaultWindow = 24 * time.Hour

// Snapshot is one internally consistent analysis result set: every
// table and issue in it was derived from the same window, filter and
// threshold triple.
type Snapshot struct {
	SessionID         string                    `json:"session_id"`
	GeneratedAt       time.Time                 `json:"generated_at"`
	Window            domain.TimeWindow         `json:"window"`
	Filters           domain.FilterSet          `json:"filters"`
	Thresholds        domain.ThresholdConfig    `json:"thresholds"`
	Trend             []domain.TrendPoint       `json:"error_trend"`
	TopProducers      []domain.ErrorProducer    `json:"top_error_producers"`
	QueueMetrics      []domain.QueueMetric      `json:"queue_metrics"`
	Heatmap           []domain.HeatmapCell      `json:"heatmap"`
	Inventory         []domain.RuntimeStatus    `json:"inventory"`
	StoppedProcessors []domain.StoppedProcessor `json:"stopped_processors"`
	Issues            []domain.Issue            `json:"issues"`
	Stale             []domain.RuntimeStatus    `json:"stale_runtimes"`
}

// Session holds one operator's filter selection and orchestrates rule
// and detector runs under it. Configuration setters validate first and
// replace atomically; a rejected update leaves the session untouched.
type Session struct {
	id    string
	rules *Rules
	now   func() time.Time

	mu         sync.Mutex
	span       time.Duration      // trailing window length
	custom     *domain.TimeWindow // set when the operator pinned an absolute window
	filters    domain.FilterSet
	thresholds domain.ThresholdConfig
	createdAt  time.Time
}

// NewSession creates a session with the documented defaults.
func NewSession(rules *Rules, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{
		id:         uuid.NewString(),
		rules:      rules,
		now:        now,
		span:       DefaultWindow,
		filters:    domain.FilterSet{},
		thresholds: domain.DefaultThresholds(),
		createdAt:  now().UTC(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// SetWindowDuration selects a trailing window of length d.
func (s *Session) SetWindowDuration(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: window duration must be positive", domain.ErrInvalidConfiguration)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.span = d
	s.custom = nil
	return nil
}

// SetWindow pins an absolute window.
func (s *Session) SetWindow(w domain.TimeWindow) error {
	if err := w.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.custom = &w
	return nil
}

// SetFilters replaces the filter selection. Filter changes need no cache
// invalidation: keys embed the parameters, so a new selection simply
// reads new entries.
func (s *Session) SetFilters(f domain.FilterSet) {
	normalized := f.Normalized()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = normalized
}

// SetThresholds replaces the alerting thresholds after validation.
func (s *Session) SetThresholds(t domain.ThresholdConfig) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thresholds = t
	return nil
}

// Config returns the current window, filters and thresholds as one
// atomic capture.
func (s *Session) Config() (domain.TimeWindow, domain.FilterSet, domain.ThresholdConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.windowLocked(), s.filters, s.thresholds
}

// windowLocked derives the effective window. Trailing windows snap to
// the alignment quantum so successive refreshes inside one step reuse
// the same cache keys instead of re-querying the source.
func (s *Session) windowLocked() domain.TimeWindow {
	if s.custom != nil {
		return *s.custom
	}
	return domain.AlignedWindowEnding(s.now().UTC(), s.span)
}

// Refresh runs every aggregation rule and the detector against a single
// capture of the configuration. Any rule failure aborts the refresh so
// the caller can keep its prior snapshot.
func (s *Session) Refresh(ctx context.Context) (*Snapshot, error) {
	window, filters, thresholds := s.Config()

	trend, err := s.rules.ErrorTrend(ctx, window, filters)
	if err != nil {
		return nil, fmt.Errorf("error trend: %w", err)
	}
	top, err := s.rules.TopErrorProducers(ctx, window, filters)
	if err != nil {
		return nil, fmt.Errorf("top error producers: %w", err)
	}
	queues, err := s.rules.QueueMetrics(ctx, window, filters, thresholds)
	if err != nil {
		return nil, fmt.Errorf("queue metrics: %w", err)
	}
	heatmap, err := s.rules.Heatmap(ctx, window, filters)
	if err != nil {
		return nil, fmt.Errorf("heatmap: %w", err)
	}
	inventory, err := s.rules.Inventory(ctx, filters, thresholds.InactivityHours)
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	stopped, err := s.rules.StoppedProcessors(ctx, window, filters)
	if err != nil {
		return nil, fmt.Errorf("stopped processors: %w", err)
	}
	recent, err := s.rules.RecentErrorCounts(ctx, filters, thresholds)
	if err != nil {
		return nil, fmt.Errorf("recent error counts: %w", err)
	}

	report := Detect(MetricsBundle{
		RecentErrors:      recent,
		QueueMetrics:      queues,
		StoppedProcessors: stopped,
		Inventory:         inventory,
	}, thresholds)

	return &Snapshot{
		SessionID:         s.id,
		GeneratedAt:       s.now().UTC(),
		Window:            window,
		Filters:           filters,
		Thresholds:        thresholds,
		Trend:             trend,
		TopProducers:      top,
		QueueMetrics:      queues,
		Heatmap:           heatmap,
		Inventory:         inventory,
		StoppedProcessors: stopped,
		Issues:            report.Issues,
		Stale:             report.Stale,
	}, nil
}

// ErrorLog runs the drill-down error log under the session configuration.
func (s *Session) ErrorLog(ctx context.Context, limit int) ([]domain.ErrorLogEntry, error) {
	window, filters, _ := s.Config()
	return s.rules.ErrorLog(ctx, window, filters, limit)
}

// ProcessorBreakdown runs the per-runtime processor drill-down under the
// session window.
func (s *Session) ProcessorBreakdown(ctx context.Context, runtimeID string) ([]domain.ProcessorErrorShare, error) {
	window, _, _ := s.Config()
	return s.rules.ProcessorErrorBreakdown(ctx, window, runtimeID)
}

// Manager tracks live operator sessions by ID.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	rules    *Rules
	now      func() time.Time
}

// NewManager constructs an empty session registry.
func NewManager(rules *Rules, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		sessions: make(map[string]*Session),
		rules:    rules,
		now:      now,
	}
}

// Create registers a new session.
func (m *Manager) Create() *Session {
	s := NewSession(m.rules, m.now)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID()] = s
	return s
}

// Get looks up a session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove drops a session; the operator-facing reset.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// List returns the live sessions.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}
