// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/evently/internal/platform/ctxutil"
	requestutil "github.com/taibuivan/evently/internal/platform/request"
	"github.com/taibuivan/evently/internal/platform/respond"
	"github.com/taibuivan/evently/internal/view"
)

// PendingReporter reports whether a session mutation is in flight.
type PendingReporter interface {
	Pending() bool
}

// Handler serves the route table over HTTP.
//
// The principal is read from the request context (see middleware.Authenticate)
// so one request sees one identity throughout.
type Handler struct {
	table    *Table
	session  PendingReporter
	views    *view.Registry
	renderer view.Renderer
}

// NewHandler creates a page handler. session and views may be nil; renderer
// defaults to [view.JSONRenderer].
func NewHandler(table *Table, session PendingReporter, views *view.Registry, renderer view.Renderer) *Handler {
	if renderer == nil {
		renderer = view.JSONRenderer{}
	}
	return &Handler{table: table, session: session, views: views, renderer: renderer}
}

// Routes mounts every descriptor on a chi router. Unmatched paths and
// methods render the fallback view.
func (h *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(NormalizePath)

	for _, descriptor := range h.table.descriptors {
		router.Get(descriptor.Pattern, h.serve(descriptor))
	}
	router.NotFound(h.Fallback)
	router.MethodNotAllowed(h.Fallback)

	return router
}

func (h *Handler) serve(descriptor Descriptor) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		match := Match{
			Path:       request.URL.Path,
			Found:      true,
			Descriptor: descriptor,
			Params:     params(chi.RouteContext(request.Context())),
		}
		h.write(writer, request, Evaluate(match, requestutil.Principal(request), h.pending()))
	}
}

// Fallback renders the under-construction view with 404. Routers mounted next
// to the table use it for their own unmatched paths and methods.
func (h *Handler) Fallback(writer http.ResponseWriter, request *http.Request) {
	h.write(writer, request, Evaluate(Match{Path: request.URL.Path}, nil, false))
}

func (h *Handler) pending() bool {
	return h.session != nil && h.session.Pending()
}

// write turns an outcome into a response.
func (h *Handler) write(writer http.ResponseWriter, request *http.Request, outcome Outcome) {
	logger := ctxutil.GetLogger(request.Context())
	logger.DebugContext(request.Context(), "route_resolved",
		slog.String("path", outcome.Path),
		slog.String("outcome", outcome.Kind.String()),
		slog.String("view", string(outcome.View)),
	)

	switch outcome.Kind {

	// ── 1. Gate Refused ───────────────────────────────────────────────────
	case RedirectLogin, RedirectNoAccess:
		respond.Redirect(writer, outcome.Target, outcome)

	// ── 2. Session Mutation In Flight ─────────────────────────────────────
	case Loading:
		writer.Header().Set("Retry-After", "1")
		h.render(writer, request, http.StatusAccepted, outcome)

	// ── 3. Unknown Path ───────────────────────────────────────────────────
	case Fallback:
		h.render(writer, request, http.StatusNotFound, outcome)

	// ── 4. Render ─────────────────────────────────────────────────────────
	default:
		h.render(writer, request, http.StatusOK, outcome)
	}
}

func (h *Handler) render(writer http.ResponseWriter, request *http.Request, status int, outcome Outcome) {
	principal := requestutil.Principal(request)
	if outcome.Kind != Allow {
		principal = nil
	}

	model, err := h.views.Build(request.Context(), outcome.View, outcome.Path, outcome.Params, principal)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	h.renderer.Render(writer, request, status, model)
}

// NormalizePath rewrites the request path to NFC. It must run before routing
// starts, so the server installs it ahead of any Mount.
func NormalizePath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		normalized := Normalize(request.URL.Path)
		if normalized != request.URL.Path {
			request.URL.Path = normalized
			request.URL.RawPath = ""
		}
		next.ServeHTTP(writer, request)
	})
}
