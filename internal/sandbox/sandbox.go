// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package sandbox is a local stand-in for the upstream Session API and realtime
channel server, for development and end-to-end tests of the web gateway.

Routes:

  - POST /api/v1/auth/login, /refresh, /logout: the Session API.
  - POST /api/v1/publish: publishes a message as the bearer's user.
  - GET /ws: the channel (auth frame, ready, message, ack, replay).
  - HEAD/GET /: reachability probe.

Two accounts are seeded, see [SeedEmails]. State lives in memory and is lost
on restart.
*/
package sandbox

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/evently/internal/platform/config"
	"github.com/taibuivan/evently/internal/platform/constants"
	"github.com/taibuivan/evently/internal/platform/middleware"
	requestutil "github.com/taibuivan/evently/internal/platform/request"
	"github.com/taibuivan/evently/internal/platform/respond"
	"github.com/taibuivan/evently/internal/platform/sec"
)

// generatedKeyBits is the size of the signing key made when none is configured.
const generatedKeyBits = 2048

// Sandbox bundles the sandbox services.
type Sandbox struct {
	Accounts *AccountStore
	Auth     *AuthService
	Hub      *Hub

	logger *slog.Logger
}

// New builds a sandbox from cfg.
func New(cfg *config.SandboxConfig, logger *slog.Logger) (*Sandbox, error) {

	// ── 1. Signing Key ──
	var (
		key *rsa.PrivateKey
		err error
	)
	if cfg.JWTPrivateKeyPath != "" {
		key, err = sec.LoadPrivateKey(cfg.JWTPrivateKeyPath)
	} else {
		key, err = rsa.GenerateKey(rand.Reader, generatedKeyBits)
	}
	if err != nil {
		return nil, fmt.Errorf("sandbox_signing_key_failed: %w", err)
	}

	// ── 2. Accounts ──
	accounts, err := NewAccountStore(cfg.SeedPassword)
	if err != nil {
		return nil, fmt.Errorf("sandbox_seed_failed: %w", err)
	}

	// ── 3. Services ──
	issuer := sec.NewTokenIssuer(key, constants.AuthIssuer)
	auth := NewAuthService(accounts, NewGrantStore(), issuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	return &Sandbox{
		Accounts: accounts,
		Auth:     auth,
		Hub:      NewHub(auth, cfg.ReplayRetention, logger),
		logger:   logger,
	}, nil
}

// Routes returns the sandbox root router.
func (s *Sandbox) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID())
	router.Use(middleware.StructuredLogger(s.logger))
	router.Use(middleware.PanicRecovery(s.logger))

	router.Get("/", s.probe)
	router.Head("/", s.probe)

	router.Mount("/api/v1/auth", NewAuthHandler(s.Auth).Routes())
	router.Post("/api/v1/publish", s.publish)
	router.Get("/ws", s.Hub.ServeHTTP)

	return router
}

func (s *Sandbox) probe(writer http.ResponseWriter, _ *http.Request) {
	respond.OK(writer, map[string]any{
		"status":    "ok",
		"connected": s.Hub.Connected(),
	})
}

/*
publish handles POST /api/v1/publish.

The bearer token names the sender. Recipients restrict the audience; the
sender always sees its own message.

Response:
  - 201: channel.Message
  - 400: Unknown topic or missing thread
  - 401: Missing or invalid bearer token
*/
func (s *Sandbox) publish(writer http.ResponseWriter, request *http.Request) {
	bearer, err := requestutil.RequiredBearerToken(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	claims, err := s.Auth.Authenticate(bearer)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input PublishInput
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}
	input.SenderID = claims.UserID

	message, err := s.Hub.Publish(input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Status(writer, http.StatusCreated, message)
}
