package analysis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/internal/ws"
)

const defaultRefreshInterval = 30 * time.Second

// Refresher periodically refreshes every live session and fans the
// resulting snapshots out to stream subscribers. The result cache keeps
// the periodic tick from multiplying event source load.
type Refresher struct {
	manager  *Manager
	hub      *ws.Hub
	interval time.Duration
	logger   *slog.Logger
}

// NewRefresher constructs a Refresher.
func NewRefresher(manager *Manager, hub *ws.Hub, interval time.Duration, logger *slog.Logger) *Refresher {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	if hub == nil {
		hub = ws.NewHub()
	}
	if logger != nil {
		logger = logger.With("component", "refresher")
	}
	return &Refresher{manager: manager, hub: hub, interval: interval, logger: logger}
}

// Hub exposes the snapshot stream hub.
func (r *Refresher) Hub() *ws.Hub {
	return r.hub
}

// Run ticks until the context is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	if r.logger != nil {
		r.logger.Info("snapshot refresher started", "interval", r.interval)
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if r.logger != nil {
				r.logger.Info("snapshot refresher stopped")
			}
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Refresher) tick(ctx context.Context) {
	for _, session := range r.manager.List() {
		snapshot, err := session.Refresh(ctx)
		if err != nil {
			// Subscribers keep their prior snapshot on a failed cycle.
			if r.logger != nil {
				r.logger.Warn("session refresh failed", "session_id", session.ID(), "error", err)
			}
			continue
		}
		payload, err := json.Marshal(snapshot)
		if err != nil {
			if r.logger != nil {
				r.logger.Warn("snapshot marshal failed", "session_id", session.ID(), "error", err)
			}
			continue
		}
		r.hub.Broadcast(session.ID(), payload)
	}
}
