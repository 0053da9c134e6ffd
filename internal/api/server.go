// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package api wires together the HTTP router, middleware chain, and all
handlers of the web gateway into a runnable [http.Server].

Architecture:

  - This package is the topmost Presentation layer boundary.
  - It acts as the central composition root for the HTTP transport framework (chi router).
  - Only this package, cmd/web and the sandbox are allowed to import net/http server primitives.

Routes:

  - /health, /ready: probes.
  - /session: login, logout, refresh and state of the process-wide session.
  - /live: websocket feed of the realtime channel (authenticated).
  - everything else: application pages resolved by the route table.
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taibuivan/evently/internal/platform/config"
	"github.com/taibuivan/evently/internal/platform/constants"
	"github.com/taibuivan/evently/internal/platform/middleware"
	"github.com/taibuivan/evently/internal/router"
	"github.com/taibuivan/evently/internal/session"
)

// # Server Definitions

// Server wraps the chi router and the [http.Server].
//
// It is constructed once in main.go with all dependencies injected.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *slog.Logger
}

// # Handler Registry

// Handlers groups all HTTP handler sets.
type Handlers struct {
	// Liveness is the /health handler, 200 while the process is alive.
	Liveness http.HandlerFunc

	// Readiness is the /ready handler, 200 when all deps are healthy.
	Readiness http.HandlerFunc

	// Session serves the session endpoints used by the login pages.
	Session *session.Handler

	// Live streams the realtime channel to the browser.
	Live *LiveHandler

	// Pages serves the application's route table.
	Pages *router.Handler
}

// # Server Initialization

// NewServer constructs the chi router with the full middleware chain and
// registers all route groups.
func NewServer(context context.Context, cfg *config.Config, log *slog.Logger, principals middleware.PrincipalSource, h Handlers) *Server {
	r := chi.NewRouter()

	// # Middleware Chain
	// Global middleware applied in order of execution.
	r.Use(router.NormalizePath)
	r.Use(middleware.RequestID())
	r.Use(middleware.Authenticate(principals))
	r.Use(middleware.StructuredLogger(log))
	r.Use(middleware.RateLimit(context))
	r.Use(middleware.PanicRecovery(log))
	r.Use(middleware.CORS(cfg))
	r.Use(chimw.CleanPath)

	// # Fallback
	// One policy for every unmatched path and method, at any depth.
	var fallback http.HandlerFunc
	if h.Pages != nil {
		fallback = h.Pages.Fallback
		r.NotFound(fallback)
		r.MethodNotAllowed(fallback)
	}

	// # Realtime Feed
	// Long-lived; kept outside the request timeout.
	if h.Live != nil {
		r.With(middleware.RequirePrincipal).Get("/live", h.Live.ServeHTTP)
	}

	r.Group(func(timed chi.Router) {
		timed.Use(chimw.Timeout(constants.GlobalRequestTimeout))

		// # Infrastructure Endpoints
		// Unauthenticated health probes for container orchestration.
		timed.Get("/health", h.Liveness)
		timed.Get("/ready", h.Readiness)

		// # Session
		sessionRoutes := h.Session.Routes()
		if fallback != nil {
			sessionRoutes.NotFound(fallback)
			sessionRoutes.MethodNotAllowed(fallback)
		}
		timed.Mount("/session", sessionRoutes)

		// # Application Pages
		// The route table owns every remaining path, including the fallback.
		timed.Mount("/", h.Pages.Routes())
	})

	return &Server{
		router: r,
		log:    log,
		httpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           r,
			ReadTimeout:       constants.DefaultReadTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		},
	}
}

// Handler exposes the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// # Server Lifecycle

// ListenAndServe starts the HTTP server.
//
// It blocks until the server is closed or an error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info("server starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	context, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(context)
}
