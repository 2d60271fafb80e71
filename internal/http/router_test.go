package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/internal/cache"
	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/internal/domain"
	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/internal/service/analysis"
	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/internal/ws"
)

var routerBase = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

type fixedSource struct {
	events []domain.TelemetryEvent
	spans  []domain.RuntimeSpan
	health error
}

func (s *fixedSource) ListEvents(_ context.Context, window domain.TimeWindow, _ []string) ([]domain.TelemetryEvent, error) {
	out := make([]domain.TelemetryEvent, 0, len(s.events))
	for _, e := range s.events {
		if window.Contains(e.Timestamp) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fixedSource) ListRuntimeSpans(context.Context) ([]domain.RuntimeSpan, error) {
	return s.spans, nil
}

func (s *fixedSource) Ping(context.Context) error { return s.health }

func newTestRouter(t *testing.T, src *fixedSource) *Router {
	t.Helper()
	return newTestRouterWithLogger(t, src, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestRouterWithLogger(t *testing.T, src *fixedSource, log *slog.Logger) *Router {
	t.Helper()
	queryCache := cache.New(cache.NewMemoryStore(), cache.DefaultTTL, log)
	cached := cache.NewSource(src, queryCache)
	rules := analysis.NewRules(cached, analysis.InternalClassifier("runtime-"), func() time.Time { return routerBase })
	sessions := analysis.NewManager(rules, func() time.Time { return routerBase })
	hub := ws.NewHub()
	r := NewRouter(log, sessions, queryCache, hub, NewMemoryRateLimiter(), "test-secret", time.Hour, 200, src.Ping)
	t.Cleanup(r.Close)
	return r
}

func openSession(t *testing.T, r *Router) (string, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/session", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating session, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		SessionID string `json:"session_id"`
		Token     string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode session response: %v", err)
	}
	if payload.SessionID == "" || payload.Token == "" {
		t.Fatalf("expected session id and token, got %s", rec.Body.String())
	}
	return payload.SessionID, payload.Token
}

func authed(method, target, token string, body []byte) *http.Request {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	src := &fixedSource{
		events: []domain.TelemetryEvent{
			{Timestamp: routerBase.Add(-10 * time.Minute), RuntimeID: "runtime-a", Level: domain.LevelError, Message: "boom"},
		},
		spans: []domain.RuntimeSpan{
			{RuntimeID: "runtime-a", FirstSeen: routerBase.Add(-48 * time.Hour), LastSeen: routerBase.Add(-10 * time.Minute)},
		},
	}
	r := newTestRouter(t, src)
	sessionID, token := openSession(t, r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authed(http.MethodGet, "/dashboard", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from dashboard, got %d: %s", rec.Code, rec.Body.String())
	}
	var snapshot analysis.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.SessionID != sessionID {
		t.Fatalf("snapshot session %q does not match %q", snapshot.SessionID, sessionID)
	}
	if len(snapshot.TopProducers) != 1 || snapshot.TopProducers[0].RuntimeID != "runtime-a" {
		t.Fatalf("unexpected top producers %+v", snapshot.TopProducers)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, authed(http.MethodDelete, "/session", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 removing session, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, authed(http.MethodGet, "/dashboard", token, nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after session removal, got %d", rec.Code)
	}
}

func TestDashboardRequiresToken(t *testing.T) {
	r := newTestRouter(t, &fixedSource{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, authed(http.MethodGet, "/dashboard", "not-a-jwt", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a malformed token, got %d", rec.Code)
	}
}

func TestSessionWindowPreset(t *testing.T) {
	r := newTestRouter(t, &fixedSource{})
	_, token := openSession(t, r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authed(http.MethodPut, "/session/window", token, []byte(`{"preset":"6h"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 applying preset, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Window domain.TimeWindow `json:"window"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode window response: %v", err)
	}
	if payload.Window.Duration() != 6*time.Hour {
		t.Fatalf("expected a 6h window, got %v", payload.Window.Duration())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, authed(http.MethodPut, "/session/window", token, []byte(`{"preset":"99h"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown preset, got %d", rec.Code)
	}
}

func TestSessionThresholdValidationOverHTTP(t *testing.T) {
	r := newTestRouter(t, &fixedSource{})
	_, token := openSession(t, r)

	rec := httptest.NewRecorder()
	body := []byte(`{"error_count_threshold":-1,"inactivity_hours":24}`)
	r.ServeHTTP(rec, authed(http.MethodPut, "/session/thresholds", token, body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative threshold, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	body = []byte(`{"error_count_threshold":3,"error_window_minutes":15,"inactivity_hours":12}`)
	r.ServeHTTP(rec, authed(http.MethodPut, "/session/thresholds", token, body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for valid thresholds, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCacheClearEndpoint(t *testing.T) {
	r := newTestRouter(t, &fixedSource{})
	_, token := openSession(t, r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authed(http.MethodPost, "/cache/clear", token, nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 clearing cache, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/cache/clear", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 clearing cache without a session, got %d", rec.Code)
	}
}

func TestSessionRateLimitOverHTTP(t *testing.T) {
	r := newTestRouter(t, &fixedSource{})
	_, token := openSession(t, r)

	for i := 0; i < rateLimitCacheClear; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, authed(http.MethodPost, "/cache/clear", token, nil))
		if rec.Code != http.StatusAccepted {
			t.Fatalf("request %d: expected 202, got %d: %s", i+1, rec.Code, rec.Body.String())
		}
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authed(http.MethodPost, "/cache/clear", token, nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 past the session limit, got %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("expected zero remaining, got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestAuditLogCarriesSessionID(t *testing.T) {
	var logs bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&logs, nil))
	r := newTestRouterWithLogger(t, &fixedSource{}, log)
	sessionID, token := openSession(t, r)

	logs.Reset()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authed(http.MethodGet, "/dashboard", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from dashboard, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(logs.String(), `"session_id":"`+sessionID+`"`) {
		t.Fatalf("expected the request log to carry the session id, got %s", logs.String())
	}
}

func TestErrorLogEndpoint(t *testing.T) {
	src := &fixedSource{
		events: []domain.TelemetryEvent{
			{Timestamp: routerBase.Add(-10 * time.Minute), RuntimeID: "runtime-a", ProcessorID: "proc-1", Level: domain.LevelError, Message: "connection refused"},
			{Timestamp: routerBase.Add(-5 * time.Minute), RuntimeID: "runtime-a", ProcessorID: "proc-2", Level: domain.LevelError, Message: "timeout"},
		},
	}
	r := newTestRouter(t, src)
	_, token := openSession(t, r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authed(http.MethodGet, "/errors?limit=1", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from error log, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Entries []domain.ErrorLogEntry `json:"entries"`
		Limit   int                    `json:"limit"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error log: %v", err)
	}
	if payload.Limit != 1 || len(payload.Entries) != 1 {
		t.Fatalf("expected the limit applied, got %+v", payload)
	}
	if payload.Entries[0].Message != "timeout" {
		t.Fatalf("expected the newest error first, got %+v", payload.Entries[0])
	}
}

func TestProcessorBreakdownEndpoint(t *testing.T) {
	src := &fixedSource{
		events: []domain.TelemetryEvent{
			{Timestamp: routerBase.Add(-10 * time.Minute), RuntimeID: "runtime-a", ProcessorID: "proc-1", Level: domain.LevelError, Message: "boom"},
		},
	}
	r := newTestRouter(t, src)
	_, token := openSession(t, r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authed(http.MethodGet, "/errors/processors", token, nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without runtime_id, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, authed(http.MethodGet, "/errors/processors?runtime_id=runtime-a", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from breakdown, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Processors []domain.ProcessorErrorShare `json:"processors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode breakdown: %v", err)
	}
	if len(payload.Processors) != 1 || payload.Processors[0].ProcessorID != "proc-1" {
		t.Fatalf("unexpected breakdown %+v", payload.Processors)
	}
}

func TestHealthzReflectsSourceHealth(t *testing.T) {
	src := &fixedSource{}
	r := newTestRouter(t, src)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 when the source is up, got %d", rec.Code)
	}

	src.health = errors.New("connection refused")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the source is down, got %d", rec.Code)
	}
}

func TestMemoryRateLimiterWindow(t *testing.T) {
	rl := NewMemoryRateLimiter()
	defer rl.Close()

	for i := 0; i < 3; i++ {
		if d := rl.Allow("ip:test", 3, time.Minute); !d.allowed {
			t.Fatalf("request %d should pass under the limit", i+1)
		}
	}
	if d := rl.Allow("ip:test", 3, time.Minute); d.allowed {
		t.Fatalf("fourth request must be rejected")
	}
	if d := rl.Allow("ip:other", 3, time.Minute); !d.allowed {
		t.Fatalf("limits are keyed, other key must pass")
	}
}
