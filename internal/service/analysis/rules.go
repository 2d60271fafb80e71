package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/internal/domain"
	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/internal/repository"
)

const (
	topProducerLimit   = 10
	processorBreakdown = 10
	defaultLogLimit    = 200
	msPerMinute        = 60000.0
	bytesPerMiB        = 1024 * 1024
)

// Rules is the aggregation rule library. Every rule reads the event
// source (normally through the result cache) and shapes the rows under
// the given window and filters; rules hold no state between calls.
type Rules struct {
	source          repository.EventSource
	internalRuntime func(string) bool
	now             func() time.Time
}

// NewRules constructs the rule library. internalRuntime classifies a
// runtime ID as internal; the matching convention is configuration, not
// something the rules know about.
func NewRules(source repository.EventSource, internalRuntime func(string) bool, now func() time.Time) *Rules {
	if internalRuntime == nil {
		internalRuntime = func(string) bool { return false }
	}
	if now == nil {
		now = time.Now
	}
	return &Rules{source: source, internalRuntime: internalRuntime, now: now}
}

// InternalClassifier builds the internal-runtime predicate from the
// user runtime naming prefix: runtimes without the prefix are internal.
func InternalClassifier(userPrefix string) func(string) bool {
	return func(id string) bool {
		return !strings.HasPrefix(id, userPrefix)
	}
}

// events reads the window and applies the filter selection. Internal
// runtimes are dropped here, before any aggregation, so excluded rows
// never contribute to a count even transiently.
func (r *Rules) events(ctx context.Context, window domain.TimeWindow, filter domain.FilterSet) ([]domain.TelemetryEvent, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	f := filter.Normalized()
	rows, err := r.source.ListEvents(ctx, window, f.RuntimeIDs)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]domain.TelemetryEvent, 0, len(rows))
	for _, e := range rows {
		if !f.IncludeInternal && r.internalRuntime(e.RuntimeID) {
			continue
		}
		if !f.MatchesRuntime(e.RuntimeID) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// ErrorTrend buckets error counts by runtime × time bucket. The bucket
// width follows domain.BucketSpan, so long windows produce day buckets
// instead of an unbounded point count. Each bucket also carries the
// worst queue delay seen inside it.
func (r *Rules) ErrorTrend(ctx context.Context, window domain.TimeWindow, filter domain.FilterSet) ([]domain.TrendPoint, error) {
	events, err := r.events(ctx, window, filter)
	if err != nil {
		return nil, err
	}
	span := domain.BucketSpan(window)

	type bucketKey struct {
		runtime string
		start   time.Time
	}
	buckets := make(map[bucketKey]*domain.TrendPoint)
	for _, e := range events {
		k := bucketKey{runtime: e.RuntimeID, start: e.Timestamp.Truncate(span)}
		pt := buckets[k]
		if pt == nil {
			pt = &domain.TrendPoint{BucketStart: k.start, BucketSpan: span, RuntimeID: e.RuntimeID}
			buckets[k] = pt
		}
		if e.IsError() {
			pt.ErrorCount++
		}
		if e.QueueTimeMS != nil {
			if minutes := *e.QueueTimeMS / msPerMinute; minutes > pt.MaxQueueMin {
				pt.MaxQueueMin = minutes
			}
		}
	}

	out := make([]domain.TrendPoint, 0, len(buckets))
	for _, pt := range buckets {
		out = append(out, *pt)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BucketStart.Equal(out[j].BucketStart) {
			return out[i].BucketStart.Before(out[j].BucketStart)
		}
		return out[i].RuntimeID < out[j].RuntimeID
	})
	return out, nil
}

// TopErrorProducers ranks runtimes by error count within the window,
// descending, ties broken by the most recent error. Runtimes without
// errors never appear; the list is truncated to the top ten.
func (r *Rules) TopErrorProducers(ctx context.Context, window domain.TimeWindow, filter domain.FilterSet) ([]domain.ErrorProducer, error) {
	events, err := r.events(ctx, window, filter)
	if err != nil {
		return nil, err
	}
	producers := errorProducers(events)
	if len(producers) > topProducerLimit {
		producers = producers[:topProducerLimit]
	}
	return producers, nil
}

// errorProducers counts errors per runtime and orders the result by
// count descending, last error descending, runtime ID ascending.
func errorProducers(events []domain.TelemetryEvent) []domain.ErrorProducer {
	counts := make(map[string]*domain.ErrorProducer)
	for _, e := range events {
		if !e.IsError() {
			continue
		}
		p := counts[e.RuntimeID]
		if p == nil {
			p = &domain.ErrorProducer{RuntimeID: e.RuntimeID}
			counts[e.RuntimeID] = p
		}
		p.ErrorCount++
		if e.Timestamp.After(p.LastError) {
			p.LastError = e.Timestamp
		}
	}
	out := make([]domain.ErrorProducer, 0, len(counts))
	for _, p := range counts {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ErrorCount != out[j].ErrorCount {
			return out[i].ErrorCount > out[j].ErrorCount
		}
		if !out[i].LastError.Equal(out[j].LastError) {
			return out[i].LastError.After(out[j].LastError)
		}
		return out[i].RuntimeID < out[j].RuntimeID
	})
	return out
}

// QueueMetrics aggregates per-connection byte volume and queue delay.
// Peak bytes surface pile-ups; queue time uses p95 rather than a mean so
// worst-case delay is visible. Only connections strictly above at least
// one configured threshold are returned.
func (r *Rules) QueueMetrics(ctx context.Context, window domain.TimeWindow, filter domain.FilterSet, thresholds domain.ThresholdConfig) ([]domain.QueueMetric, error) {
	events, err := r.events(ctx, window, filter)
	if err != nil {
		return nil, err
	}

	type connKey struct {
		runtime   string
		processor string
	}
	type connAgg struct {
		peakBytes  int64
		queueTimes []float64
		samples    int64
	}
	conns := make(map[connKey]*connAgg)
	for _, e := range events {
		if e.ByteSize == nil && e.QueueTimeMS == nil {
			continue
		}
		k := connKey{runtime: e.RuntimeID, processor: e.ProcessorID}
		agg := conns[k]
		if agg == nil {
			agg = &connAgg{}
			conns[k] = agg
		}
		agg.samples++
		if e.ByteSize != nil && *e.ByteSize > agg.peakBytes {
			agg.peakBytes = *e.ByteSize
		}
		if e.QueueTimeMS != nil {
			agg.queueTimes = append(agg.queueTimes, *e.QueueTimeMS)
		}
	}

	out := make([]domain.QueueMetric, 0, len(conns))
	for k, agg := range conns {
		m := domain.QueueMetric{
			RuntimeID:     k.runtime,
			ProcessorID:   k.processor,
			Connection:    k.runtime + " | " + k.processor,
			PeakQueuedMiB: float64(agg.peakBytes) / bytesPerMiB,
			Samples:       agg.samples,
		}
		if len(agg.queueTimes) > 0 {
			sorted := append([]float64(nil), agg.queueTimes...)
			sort.Float64s(sorted)
			m.QueueTimeP95Min = percentile(sorted, 0.95) / msPerMinute
		}
		if m.PeakQueuedMiB > thresholds.BackpressureMinMiB || m.QueueTimeP95Min > thresholds.QueueTimeMinMinutes {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PeakQueuedMiB != out[j].PeakQueuedMiB {
			return out[i].PeakQueuedMiB > out[j].PeakQueuedMiB
		}
		if out[i].QueueTimeP95Min != out[j].QueueTimeP95Min {
			return out[i].QueueTimeP95Min > out[j].QueueTimeP95Min
		}
		return out[i].Connection < out[j].Connection
	})
	return out, nil
}

// heatmapDays fixes the grid row order, Monday first.
var heatmapDays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// Heatmap buckets errors into a dense 7×24 day-of-week × hour-of-day
// grid over the full window. Cells without errors are present with a
// zero count; bucket-span adaptation does not apply here.
func (r *Rules) Heatmap(ctx context.Context, window domain.TimeWindow, filter domain.FilterSet) ([]domain.HeatmapCell, error) {
	events, err := r.events(ctx, window, filter)
	if err != nil {
		return nil, err
	}
	var grid [7][24]int64
	for _, e := range events {
		if !e.IsError() {
			continue
		}
		grid[int(e.Timestamp.Weekday())][e.Timestamp.Hour()]++
	}
	out := make([]domain.HeatmapCell, 0, 7*24)
	for _, day := range heatmapDays {
		for hour := 0; hour < 24; hour++ {
			out = append(out, domain.HeatmapCell{
				Weekday:    day,
				Hour:       hour,
				ErrorCount: grid[int(day)][hour],
			})
		}
	}
	return out, nil
}

// Inventory returns one row per runtime ever seen, with first/last seen
// timestamps and an activity flag derived from the inactivity cutoff.
func (r *Rules) Inventory(ctx context.Context, filter domain.FilterSet, inactivityHours int) ([]domain.RuntimeStatus, error) {
	spans, err := r.source.ListRuntimeSpans(ctx)
	if err != nil {
		return nil, fmt.Errorf("list runtime spans: %w", err)
	}
	f := filter.Normalized()
	cutoff := r.now().Add(-time.Duration(inactivityHours) * time.Hour)

	out := make([]domain.RuntimeStatus, 0, len(spans))
	for _, span := range spans {
		internal := r.internalRuntime(span.RuntimeID)
		if !f.IncludeInternal && internal {
			continue
		}
		if !f.MatchesRuntime(span.RuntimeID) {
			continue
		}
		out = append(out, domain.RuntimeStatus{
			RuntimeID: span.RuntimeID,
			Internal:  internal,
			FirstSeen: span.FirstSeen,
			LastSeen:  span.LastSeen,
			IsActive:  span.LastSeen.After(cutoff),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuntimeID < out[j].RuntimeID })
	return out, nil
}

// StoppedProcessors finds processors whose latest state report within
// the window is stopped. Earlier stopped reports superseded by a running
// report do not count.
func (r *Rules) StoppedProcessors(ctx context.Context, window domain.TimeWindow, filter domain.FilterSet) ([]domain.StoppedProcessor, error) {
	events, err := r.events(ctx, window, filter)
	if err != nil {
		return nil, err
	}
	type procKey struct {
		runtime   string
		processor string
	}
	type procState struct {
		state string
		at    time.Time
	}
	latest := make(map[procKey]procState)
	for _, e := range events {
		if e.ProcessorState == "" || e.ProcessorID == "" {
			continue
		}
		k := procKey{runtime: e.RuntimeID, processor: e.ProcessorID}
		if cur, ok := latest[k]; !ok || e.Timestamp.After(cur.at) {
			latest[k] = procState{state: e.ProcessorState, at: e.Timestamp}
		}
	}
	out := make([]domain.StoppedProcessor, 0)
	for k, st := range latest {
		if st.state != domain.ProcessorStopped {
			continue
		}
		out = append(out, domain.StoppedProcessor{
			RuntimeID:   k.runtime,
			ProcessorID: k.processor,
			LastReport:  st.at,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RuntimeID != out[j].RuntimeID {
			return out[i].RuntimeID < out[j].RuntimeID
		}
		return out[i].ProcessorID < out[j].ProcessorID
	})
	return out, nil
}

// RecentErrorCounts counts errors per runtime in the trailing alert
// window; this feeds the high-error-rate detector rule. A zero-minute
// window yields an empty result.
func (r *Rules) RecentErrorCounts(ctx context.Context, filter domain.FilterSet, thresholds domain.ThresholdConfig) ([]domain.ErrorProducer, error) {
	if thresholds.ErrorWindowMinutes <= 0 {
		return []domain.ErrorProducer{}, nil
	}
	window := domain.AlignedWindowEnding(r.now().UTC(), time.Duration(thresholds.ErrorWindowMinutes)*time.Minute)
	events, err := r.events(ctx, window, filter)
	if err != nil {
		return nil, err
	}
	return errorProducers(events), nil
}

// ErrorLog returns error messages newest first, narrowed by the filter
// set's processor and message drill-down fields.
func (r *Rules) ErrorLog(ctx context.Context, window domain.TimeWindow, filter domain.FilterSet, limit int) ([]domain.ErrorLogEntry, error) {
	events, err := r.events(ctx, window, filter)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultLogLimit
	}
	f := filter.Normalized()
	out := make([]domain.ErrorLogEntry, 0)
	for _, e := range events {
		if !e.IsError() {
			continue
		}
		if f.ProcessorFilter != "" && e.ProcessorID != f.ProcessorFilter {
			continue
		}
		if f.MessageFilter != "" && !strings.Contains(strings.ToLower(e.Message), strings.ToLower(f.MessageFilter)) {
			continue
		}
		out = append(out, domain.ErrorLogEntry{
			Timestamp:   e.Timestamp,
			RuntimeID:   e.RuntimeID,
			ProcessorID: e.ProcessorID,
			Message:     e.Message,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ProcessorErrorBreakdown ranks the top error-producing processors
// within one runtime and reports each processor's share of the
// runtime's errors.
func (r *Rules) ProcessorErrorBreakdown(ctx context.Context, window domain.TimeWindow, runtimeID string) ([]domain.ProcessorErrorShare, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	rows, err := r.source.ListEvents(ctx, window, []string{runtimeID})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	counts := make(map[string]int64)
	var total int64
	for _, e := range rows {
		if !e.IsError() || e.ProcessorID == "" {
			continue
		}
		counts[e.ProcessorID]++
		total++
	}
	out := make([]domain.ProcessorErrorShare, 0, len(counts))
	for id, count := range counts {
		out = append(out, domain.ProcessorErrorShare{
			ProcessorID: id,
			ErrorCount:  count,
			Share:       float64(count) / float64(total) * 100,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ErrorCount != out[j].ErrorCount {
			return out[i].ErrorCount > out[j].ErrorCount
		}
		return out[i].ProcessorID < out[j].ProcessorID
	})
	if len(out) > processorBreakdown {
		out = out[:processorBreakdown]
	}
	return out, nil
}

// percentile interpolates the p-quantile of a sorted sample.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return values[0]
	}
	if p >= 1 {
		return values[len(values)-1]
	}
	pos := p * float64(len(values)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return values[lower]
	}
	weight := pos - float64(lower)
	return values[lower]*(1-weight) + values[upper]*weight
}
