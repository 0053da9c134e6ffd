// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command sandbox runs a local Session API and realtime channel server for
// developing the web gateway without the production backends.
//
// Point the gateway at it with:
//
//	SESSION_API_URL=http://localhost:9090
//	CHANNEL_URL=ws://localhost:9090/ws
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/taibuivan/evently/internal/platform/config"
	"github.com/taibuivan/evently/internal/platform/constants"
	"github.com/taibuivan/evently/internal/platform/sec"
	"github.com/taibuivan/evently/internal/sandbox"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	level := slog.LevelInfo

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.LoadSandbox()
	if err == nil && cfg.Debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With(slog.String("app", "evently-sandbox"))
	slog.SetDefault(log)
	must(log, err, "load configuration")

	// ── 3. Sandbox ────────────────────────────────────────────────────────
	box, err := sandbox.New(cfg, log)
	must(log, err, "build sandbox")

	log.Info("sandbox_ready",
		slog.String("port", cfg.ServerPort),
		slog.String("attendee", sandbox.SeedEmails[sec.RoleAttendee]),
		slog.String("organizer", sandbox.SeedEmails[sec.RoleOrganizer]),
		slog.Int("replay_retention", cfg.ReplayRetention),
	)

	// ── 4. HTTP Server ────────────────────────────────────────────────────
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           box.Routes(),
		ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		IdleTimeout:       constants.DefaultIdleTimeout,
	}

	// ── 5. Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("sandbox stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
