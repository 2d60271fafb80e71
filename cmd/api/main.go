package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/internal/cache"
	httpx "github.com/sf-ghc-rreddy/OpenflowHealthDashboard/internal/http"
	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/internal/repository/postgres"
	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/internal/service/analysis"
	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/internal/ws"
	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/pkg/config"
	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/pkg/logger"
)

func main() {
	cfg := config.LoadDashboardConfig()
	log := logger.New("dashboard", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}

	source, err := postgres.New(pool, cfg.EventsTable)
	if err != nil {
		log.Error("invalid events table", "table", cfg.EventsTable, "error", err)
		os.Exit(1)
	}

	var store cache.Store = cache.NewMemoryStore()
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		redisStore, err := cache.NewRedisStore(addr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Warn("redis cache unavailable, using in-memory store", "error", err)
		} else {
			store = redisStore
			defer redisStore.Close()
		}
	}
	queryCache := cache.New(store, cfg.CacheTTL, log)
	cachedSource := cache.NewSource(source, queryCache)

	rules := analysis.NewRules(cachedSource, analysis.InternalClassifier(cfg.UserRuntimePrefix), time.Now)
	sessions := analysis.NewManager(rules, time.Now)

	hub := ws.NewHub()
	refresher := analysis.NewRefresher(sessions, hub, cfg.RefreshInterval, log)
	go refresher.Run(ctx)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RedisPassword, cfg.RedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, sessions, queryCache, hub, limiter, cfg.SessionSecret, cfg.SessionTTL, cfg.ErrorLogLimit, source.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("dashboard server starting", "addr", cfg.Addr, "env", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("dashboard server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
