package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/internal/cache"
	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/internal/domain"
	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/internal/service/analysis"
	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/internal/ws"
	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/pkg/jwt"
)

// Router wires HTTP endpoints to the analysis services.
type Router struct {
	mux           *http.ServeMux
	logger        *slog.Logger
	sessions      *analysis.Manager
	cache         *cache.Cache
	hub           *ws.Hub
	upgrader      websocket.Upgrader
	limiter       RateLimiter
	sessionSecret string
	sessionTTL    time.Duration
	errorLogLimit int
	sourceHealth  func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault     = time.Minute
	rateWindowRealtime    = 30 * time.Second
	rateLimitSessionOpen  = 10
	rateLimitSessionWrite = 60
	rateLimitRead         = 120
	rateLimitStream       = 30
	rateLimitCacheClear   = 12
	healthCheckTimeout    = 2 * time.Second
	sseHeartbeatInterval  = 15 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, sessions *analysis.Manager, queryCache *cache.Cache, hub *ws.Hub, limiter RateLimiter, sessionSecret string, sessionTTL time.Duration, errorLogLimit int, sourceHealth func(context.Context) error) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		sessions: sessions,
		cache:    queryCache,
		hub:      hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:       limiter,
		sessionSecret: strings.TrimSpace(sessionSecret),
		sessionTTL:    sessionTTL,
		errorLogLimit: errorLogLimit,
		sourceHealth:  sourceHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit(r.instrument("/healthz", r.handleHealthz)))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/session", r.audit(r.instrument("/session", r.withRateLimit("/session", rateLimitSessionOpen, rateWindowDefault, r.handleSession))))
	r.mux.HandleFunc("/session/window", r.audit(r.instrument("/session/window", r.handlerSessionRate("/session/window", rateLimitSessionWrite, rateWindowDefault, r.handleSessionWindow))))
	r.mux.HandleFunc("/session/filters", r.audit(r.instrument("/session/filters", r.handlerSessionRate("/session/filters", rateLimitSessionWrite, rateWindowDefault, r.handleSessionFilters))))
	r.mux.HandleFunc("/session/thresholds", r.audit(r.instrument("/session/thresholds", r.handlerSessionRate("/session/thresholds", rateLimitSessionWrite, rateWindowDefault, r.handleSessionThresholds))))
	r.mux.HandleFunc("/dashboard", r.audit(r.instrument("/dashboard", r.handlerSessionRate("/dashboard", rateLimitRead, rateWindowDefault, r.handleDashboard))))
	r.mux.HandleFunc("/errors", r.audit(r.instrument("/errors", r.handlerSessionRate("/errors", rateLimitRead, rateWindowDefault, r.handleErrors))))
	r.mux.HandleFunc("/errors/processors", r.audit(r.instrument("/errors/processors", r.handlerSessionRate("/errors/processors", rateLimitRead, rateWindowDefault, r.handleErrorProcessors))))
	r.mux.HandleFunc("/cache/clear", r.audit(r.instrument("/cache/clear", r.handlerSessionRate("/cache/clear", rateLimitCacheClear, rateWindowDefault, r.handleCacheClear))))
	r.mux.HandleFunc("/ws/dashboard", r.audit(r.handlerSessionRate("/ws/dashboard", rateLimitStream, rateWindowRealtime, r.handleDashboardWS)))
	r.mux.HandleFunc("/sse/dashboard", r.audit(r.handlerSessionRate("/sse/dashboard", rateLimitStream, rateWindowRealtime, r.handleDashboardSSE)))
}

// handlerSessionRate authenticates the session and applies a per-session rate limit.
func (r *Router) handlerSessionRate(route string, limit int, window time.Duration, next http.HandlerFunc) http.HandlerFunc {
	return r.requireSession(func(w http.ResponseWriter, req *http.Request) {
		session, ok := sessionFromContext(req.Context())
		if !ok {
			r.sessionContextMissing(w, req)
			return
		}
		decision := r.limiter.Allow("session:"+session.ID(), limit, window)
		r.applyRateHeaders(w, limit, decision)
		if !decision.allowed {
			r.recordRateLimitHit(route)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, req)
	})
}

func (r *Router) handleSession(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPost:
		session := r.sessions.Create()
		token, err := jwt.GenerateToken(session.ID(), r.sessionSecret, r.sessionTTL)
		if err != nil {
			r.sessions.Remove(session.ID())
			r.logger.Error("session token generation failed", "error", err)
			writeError(w, http.StatusInternalServerError, "could not issue session token")
			return
		}
		window, filters, thresholds := session.Config()
		writeJSON(w, http.StatusCreated, map[string]any{
			"session_id": session.ID(),
			"token":      token,
			"created_at": session.CreatedAt().UTC().Format(time.RFC3339Nano),
			"window":     window,
			"filters":    filters,
			"thresholds": thresholds,
		})
	case http.MethodDelete:
		_, session, ok := r.ensureSession(w, req)
		if !ok {
			return
		}
		r.sessions.Remove(session.ID())
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleSessionWindow(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	session, ok := sessionFromContext(req.Context())
	if !ok {
		r.sessionContextMissing(w, req)
		return
	}
	var payload struct {
		Preset          string     `json:"preset"`
		DurationMinutes int        `json:"duration_minutes"`
		Start           *time.Time `json:"start"`
		End             *time.Time `json:"end"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	var err error
	switch {
	case payload.Preset != "":
		d, known := domain.PresetDuration(payload.Preset)
		if !known {
			writeError(w, http.StatusBadRequest, "unknown window preset")
			return
		}
		err = session.SetWindowDuration(d)
	case payload.DurationMinutes != 0:
		err = session.SetWindowDuration(time.Duration(payload.DurationMinutes) * time.Minute)
	case payload.Start != nil && payload.End != nil:
		err = session.SetWindow(domain.TimeWindow{Start: *payload.Start, End: *payload.End})
	default:
		writeError(w, http.StatusBadRequest, "preset, duration_minutes or start/end required")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	window, _, _ := session.Config()
	writeJSON(w, http.StatusOK, map[string]any{"window": window})
}

func (r *Router) handleSessionFilters(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	session, ok := sessionFromContext(req.Context())
	if !ok {
		r.sessionContextMissing(w, req)
		return
	}
	var payload domain.FilterSet
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	session.SetFilters(payload)
	_, filters, _ := session.Config()
	writeJSON(w, http.StatusOK, map[string]any{"filters": filters})
}

func (r *Router) handleSessionThresholds(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	session, ok := sessionFromContext(req.Context())
	if !ok {
		r.sessionContextMissing(w, req)
		return
	}
	var payload domain.ThresholdConfig
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := session.SetThresholds(payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	_, _, thresholds := session.Config()
	writeJSON(w, http.StatusOK, map[string]any{"thresholds": thresholds})
}

func (r *Router) handleDashboard(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	session, ok := sessionFromContext(req.Context())
	if !ok {
		r.sessionContextMissing(w, req)
		return
	}
	snapshot, err := session.Refresh(req.Context())
	if err != nil {
		r.logger.Error("dashboard refresh failed", "session_id", session.ID(), "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (r *Router) handleErrors(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	session, ok := sessionFromContext(req.Context())
	if !ok {
		r.sessionContextMissing(w, req)
		return
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	if limit <= 0 || limit > r.errorLogLimit {
		limit = r.errorLogLimit
	}
	entries, err := session.ErrorLog(req.Context(), limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "limit": limit})
}

func (r *Router) handleErrorProcessors(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	session, ok := sessionFromContext(req.Context())
	if !ok {
		r.sessionContextMissing(w, req)
		return
	}
	runtimeID := strings.TrimSpace(req.URL.Query().Get("runtime_id"))
	if runtimeID == "" {
		writeError(w, http.StatusBadRequest, "runtime_id query parameter required")
		return
	}
	shares, err := session.ProcessorBreakdown(req.Context(), runtimeID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runtime_id": runtimeID, "processors": shares})
}

func (r *Router) handleCacheClear(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if err := r.cache.Clear(req.Context()); err != nil {
		r.logger.Error("cache clear failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cleared"})
}

func (r *Router) handleDashboardWS(w http.ResponseWriter, req *http.Request) {
	session, ok := sessionFromContext(req.Context())
	if !ok {
		r.sessionContextMissing(w, req)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	if snapshot, err := session.Refresh(req.Context()); err == nil {
		if payload, err := json.Marshal(snapshot); err == nil {
			_ = client.Send(payload)
		}
	}
	r.hub.Register(session.ID(), client)
	go func() {
		defer func() {
			r.hub.Unregister(session.ID(), client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleDashboardSSE(w http.ResponseWriter, req *http.Request) {
	session, ok := sessionFromContext(req.Context())
	if !ok {
		r.sessionContextMissing(w, req)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	if snapshot, err := session.Refresh(req.Context()); err == nil {
		if payload, err := json.Marshal(snapshot); err == nil {
			_ = client.Send(payload)
		}
	}
	r.hub.Register(session.ID(), client)
	defer func() {
		r.hub.Unregister(session.ID(), client)
		client.Close()
	}()

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.sourceHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.sourceHealth(ctx); err != nil {
			status = "degraded"
			components["event_source"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["event_source"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if session, ok := sessionFromContext(ctx); ok {
			fields = append(fields, "session_id", session.ID())
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) sessionContextMissing(w http.ResponseWriter, req *http.Request) {
	r.logger.Error("session context missing", "path", req.URL.Path)
	writeError(w, http.StatusInternalServerError, "session context missing")
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
