package repository

import (
	"context"

	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/internal/domain"
)

// EventSource reads telemetry rows from the external event store. The
// store is a collaborator: queries are parameterized and read-only, and
// no schema validation happens here; malformed rows fail the call.
type EventSource interface {
	// ListEvents returns events inside the window, optionally restricted
	// to the given runtime IDs (nil or empty selects all runtimes).
	ListEvents(ctx context.Context, window domain.TimeWindow, runtimeIDs []string) ([]domain.TelemetryEvent, error)
	// ListRuntimeSpans returns first/last-seen timestamps per runtime
	// over the store's full history.
	ListRuntimeSpans(ctx context.Context) ([]domain.RuntimeSpan, error)
	// Ping verifies the source is reachable.
	Ping(ctx context.Context) error
}
