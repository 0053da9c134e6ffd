// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command web is the entry point for the Evently web gateway.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to Redis (optional, persists the session).
//  4. Connect to PostgreSQL and run migrations (optional, persists channel cursors).
//  5. Wire the session store and the realtime channel.
//  6. Wire the route table, views and HTTP handlers.
//  7. Restore the previous session and start automatic renewal.
//  8. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/evently/internal/api"
	"github.com/taibuivan/evently/internal/channel"
	"github.com/taibuivan/evently/internal/inbox"
	"github.com/taibuivan/evently/internal/platform/config"
	"github.com/taibuivan/evently/internal/platform/constants"
	"github.com/taibuivan/evently/internal/platform/migration"
	pgstore "github.com/taibuivan/evently/internal/platform/postgres"
	redisstore "github.com/taibuivan/evently/internal/platform/redis"
	"github.com/taibuivan/evently/internal/platform/sec"
	"github.com/taibuivan/evently/internal/router"
	"github.com/taibuivan/evently/internal/session"
	"github.com/taibuivan/evently/internal/view"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", "evently-web"))
	slog.SetDefault(log)

	log.Info("[Evently] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", "evently-web"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.Bool("redis", cfg.RedisURL != ""),
		slog.Bool("postgres", cfg.DatabaseURL != ""),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// Lives until shutdown; cancels the channel and the renewal loop.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// ── 3. Redis ──────────────────────────────────────────────────────────
	var (
		rdb       *redis.Client
		persister session.Persister
	)
	if cfg.RedisURL != "" {
		rdb, err = redisstore.NewClient(startupCtx, cfg.RedisURL, log)
		must(log, err, "connect to redis")
		defer func() {
			log.Info("closing redis client")
			if cerr := rdb.Close(); cerr != nil {
				log.Error("redis close error", slog.Any("error", cerr))
			}
		}()

		instance, _ := os.Hostname()
		persister = session.NewRedisPersister(rdb, instance)
	}

	// ── 4. PostgreSQL ─────────────────────────────────────────────────────
	var (
		pool    *pgxpool.Pool
		cursors channel.CursorStore = channel.NewMemoryCursorStore()
	)
	if cfg.DatabaseURL != "" {
		pool, err = pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
		must(log, err, "connect to postgres")
		defer func() {
			log.Info("closing postgres pool")
			pool.Close()
		}()

		must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")
		cursors = channel.NewPostgresCursorStore(pool)
	}

	// ── 5. Session & Channel ──────────────────────────────────────────────
	var inspector session.Inspector
	if cfg.JWTPubKeyPath != "" {
		publicKey, err := sec.LoadPublicKey(cfg.JWTPubKeyPath)
		must(log, err, "load jwt public key")
		inspector = sec.NewTokenInspector(publicKey)
	}

	sessionAPI := session.NewHTTPClient(cfg.SessionAPIURL, nil)
	store := session.NewStore(sessionAPI, session.Options{
		Persister: persister,
		Inspector: inspector,
		Logger:    log,
	})

	manager := channel.NewManager(channel.NewWSDialer(cfg.ChannelURL), cursors, channel.Config{
		MaxAttempts: cfg.ChannelMaxAttempts,
		BaseDelay:   cfg.ChannelBaseDelay,
		MaxDelay:    cfg.ChannelMaxDelay,
	}, log)

	box := inbox.New(cfg.InboxThreadLimit)
	stopFollowing := manager.Follow(appCtx, store, func(principal *sec.Principal) {
		box.Attach(manager, principal)
	})
	defer stopFollowing()

	// ── 6. HTTP Handlers ──────────────────────────────────────────────────
	table, err := router.AppTable()
	must(log, err, "build route table")

	views := view.NewRegistry().
		Provide(view.Messages, box.Provide)

	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckSessionAPI: sessionAPI.Ping,
		CheckDatabase:   pgstore.Checker(pool),
		CheckCache:      redisstore.Checker(rdb),
		ChannelState:    manager.State,
	}, log)

	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Session:   session.NewHandler(store),
		Live:      api.NewLiveHandler(manager, store, cfg.OriginAllowed, log),
		Pages:     router.NewHandler(table, store, views, view.JSONRenderer{}),
	}

	server := api.NewServer(appCtx, cfg, log, store, handlers)

	// ── 7. Session Restore ────────────────────────────────────────────────
	// An unreachable Session API leaves the gateway logged out, not down.
	if err := store.Restore(startupCtx); err != nil {
		log.Warn("session_restore_failed", slog.Any("error", err))
	}
	go store.RunAutoRefresh(appCtx, cfg.RefreshLead, constants.AutoRefreshInterval)

	// ── 8. Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	// The session stays persisted; only the live connection is dropped.
	manager.Disconnect()
	appCancel()

	log.Info("server stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
