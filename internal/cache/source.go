package cache

import (
	"context"

	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/internal/domain"
	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/internal/repository"
)

// CachedSource memoizes event source responses. Keys embed the query
// shape and every parameter, so distinct windows or runtime selections
// always read their own entries.
type CachedSource struct {
	source repository.EventSource
	cache  *Cache
}

// NewSource wraps source with the cache.
func NewSource(source repository.EventSource, c *Cache) *CachedSource {
	return &CachedSource{source: source, cache: c}
}

var _ repository.EventSource = (*CachedSource)(nil)

// ListEvents serves event rows from the cache while fresh.
func (c *CachedSource) ListEvents(ctx context.Context, window domain.TimeWindow, runtimeIDs []string) ([]domain.TelemetryEvent, error) {
	key := Key("list_events", window.Start, window.End, runtimeIDs)
	return GetOrCompute(ctx, c.cache, key, func() ([]domain.TelemetryEvent, error) {
		return c.source.ListEvents(ctx, window, runtimeIDs)
	})
}

// ListRuntimeSpans serves the runtime history from the cache while fresh.
func (c *CachedSource) ListRuntimeSpans(ctx context.Context) ([]domain.RuntimeSpan, error) {
	key := Key("runtime_spans")
	return GetOrCompute(ctx, c.cache, key, func() ([]domain.RuntimeSpan, error) {
		return c.source.ListRuntimeSpans(ctx)
	})
}

// Ping is never cached.
func (c *CachedSource) Ping(ctx context.Context) error {
	return c.source.Ping(ctx)
}
