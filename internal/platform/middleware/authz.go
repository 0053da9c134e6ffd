// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"net/http"

	"github.com/taibuivan/evently/internal/platform/apperr"
	"github.com/taibuivan/evently/internal/platform/ctxutil"
	"github.com/taibuivan/evently/internal/platform/respond"
	"github.com/taibuivan/evently/internal/platform/sec"
)

// PrincipalSource yields the current principal of the process-wide session.
//
// # Why an interface?
//
// Defining PrincipalSource here decouples the middleware from the session
// store implementation, so tests can hand in a fixed principal.
type PrincipalSource interface {
	CurrentPrincipal() *sec.Principal
}

// Authenticate attaches a snapshot of the current principal to the request.
//
// # Flow
//  1. Read the principal from [PrincipalSource] (never blocks).
//  2. If nobody is signed in, the request proceeds as anonymous.
//  3. Otherwise inject the snapshot into the context for downstream use.
//
// The snapshot is taken once so every handler in the chain sees the same
// identity even if a refresh lands mid-request.
func Authenticate(source PrincipalSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			principal := source.CurrentPrincipal()

			// ── 1. Anonymous Access ───────────────────────────────────────────
			if !principal.Authenticated() {
				next.ServeHTTP(writer, request)
				return
			}

			// ── 2. Context Injection ──────────────────────────────────────────
			ctx := ctxutil.WithPrincipal(request.Context(), principal)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// RequirePrincipal blocks requests that are not authenticated.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate]. Page routes do not use
// it; they go through the access gate so anonymous visitors are redirected
// instead of rejected.
func RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if !GetPrincipal(request).Authenticated() {
			respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// GetPrincipal retrieves the principal snapshot attached by [Authenticate].
// It returns nil for anonymous requests.
func GetPrincipal(request *http.Request) *sec.Principal {
	return ctxutil.GetPrincipal(request.Context())
}
