package postgres

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/internal/domain"
	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/internal/repository"
)

// Source implements repository.EventSource on PostgreSQL.
type Source struct {
	pool  *pgxpool.Pool
	table string
}

// identifierPattern admits plain and schema-qualified table names only;
// the table name is spliced into query text, not bound as a parameter.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// New constructs a Source reading from the given events table.
func New(pool *pgxpool.Pool, table string) (*Source, error) {
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid events table name %q", table)
	}
	return &Source{pool: pool, table: table}, nil
}

var _ repository.EventSource = (*Source)(nil)

// ListEvents returns telemetry rows inside the window, optionally
// restricted to the given runtime IDs.
func (s *Source) ListEvents(ctx context.Context, window domain.TimeWindow, runtimeIDs []string) ([]domain.TelemetryEvent, error) {
	query := fmt.Sprintf(`SELECT timestamp, runtime_id, COALESCE(processor_id, ''), level, message, byte_size, queue_time_ms, COALESCE(processor_state, '')
		FROM %s WHERE timestamp > $1 AND timestamp <= $2`, s.table)
	args := []any{window.Start, window.End}
	if len(runtimeIDs) > 0 {
		query += ` AND runtime_id = ANY($3)`
		args = append(args, runtimeIDs)
	}
	query += ` ORDER BY timestamp`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.TelemetryEvent, 0)
	for rows.Next() {
		var e domain.TelemetryEvent
		if err := rows.Scan(&e.Timestamp, &e.RuntimeID, &e.ProcessorID, &e.Level, &e.Message, &e.ByteSize, &e.QueueTimeMS, &e.ProcessorState); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}

// ListRuntimeSpans returns first/last-seen timestamps per runtime over the
// full history of the events table.
func (s *Source) ListRuntimeSpans(ctx context.Context) ([]domain.RuntimeSpan, error) {
	query := fmt.Sprintf(`SELECT runtime_id, MIN(timestamp), MAX(timestamp)
		FROM %s WHERE runtime_id <> '' GROUP BY runtime_id ORDER BY runtime_id`, s.table)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query runtime spans: %w", err)
	}
	defer rows.Close()

	spans := make([]domain.RuntimeSpan, 0)
	for rows.Next() {
		var span domain.RuntimeSpan
		if err := rows.Scan(&span.RuntimeID, &span.FirstSeen, &span.LastSeen); err != nil {
			return nil, fmt.Errorf("scan runtime span: %w", err)
		}
		spans = append(spans, span)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read runtime spans: %w", err)
	}
	return spans, nil
}

// Ping verifies the database connection.
func (s *Source) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
