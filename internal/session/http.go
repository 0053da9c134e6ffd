// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/evently/internal/platform/apperr"
	"github.com/taibuivan/evently/internal/platform/constants"
	"github.com/taibuivan/evently/internal/platform/respond"
	requestutil "github.com/taibuivan/evently/internal/platform/request"
	"github.com/taibuivan/evently/internal/platform/sec"
	"github.com/taibuivan/evently/internal/platform/validate"
)

// Handler exposes the session store to the login pages.
type Handler struct {
	store *Store
}

// NewHandler constructs a new [Handler] for store.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// Routes returns a [chi.Router] with the session endpoints.
//
// # Endpoints
//   - GET  /         : Current principal and loading flag.
//   - POST /login    : Signs in and returns the principal.
//   - POST /logout   : Signs out (idempotent).
//   - POST /refresh  : Silently renews the session.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", handler.current)
	router.Post("/login", handler.login)
	router.Post("/logout", handler.logout)
	router.Post("/refresh", handler.refresh)

	return router
}

// stateResponse is the payload of GET /session.
type stateResponse struct {
	Principal *sec.Principal `json:"principal"`
	Pending   bool           `json:"pending"`
}

func (handler *Handler) current(writer http.ResponseWriter, request *http.Request) {
	respond.OK(writer, stateResponse{
		Principal: handler.store.CurrentPrincipal(),
		Pending:   handler.store.Pending(),
	})
}

// login handles POST /session/login.
//
// # Returns
//   - 200 with the principal on success.
//   - 400 for malformed input.
//   - 401 AUTHENTICATION_FAILED for rejected credentials.
//   - 502 NETWORK_ERROR when the Session API is unreachable.
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {

	// ── 1. Payload Extraction ─────────────────────────────────────────────
	var input Credentials
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 2. Boundary Validation ────────────────────────────────────────────
	v := &validate.Validator{}
	v.Required("email", input.Email).
		Email("email", input.Email).
		Required("password", input.Password).
		MaxLen("password", input.Password, constants.MaxPasswordLength).
		SignInRole("role", input.Role)
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 3. Store Mutation ─────────────────────────────────────────────────
	principal, err := handler.store.Login(request.Context(), input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, principal)
}

func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	if err := handler.store.Logout(request.Context()); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.NoContent(writer)
}

// refresh handles POST /session/refresh. A session that could not be renewed
// answers 401 SESSION_EXPIRED so the page can send the user to login.
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	if err := handler.store.Refresh(request.Context()); err != nil {
		respond.Error(writer, request, err)
		return
	}

	principal := handler.store.CurrentPrincipal()
	if !principal.Authenticated() {
		respond.Error(writer, request, apperr.SessionExpired(nil))
		return
	}

	respond.OK(writer, principal)
}
