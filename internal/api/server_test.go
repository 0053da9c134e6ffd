// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/evently/internal/api"
	"github.com/taibuivan/evently/internal/platform/config"
	"github.com/taibuivan/evently/internal/platform/sec"
	"github.com/taibuivan/evently/internal/router"
	"github.com/taibuivan/evently/internal/session"
	"github.com/taibuivan/evently/internal/view"
)

// offlineAPI is a Session API that is never reachable.
type offlineAPI struct{}

func (offlineAPI) Login(context.Context, session.Credentials) (*sec.Principal, error) {
	return nil, errors.New("offline")
}

func (offlineAPI) Refresh(context.Context, string) (*session.Renewal, error) {
	return nil, errors.New("offline")
}

func (offlineAPI) Logout(context.Context, *sec.Principal) error { return nil }

// newServer builds the gateway router with its real middleware chain.
func newServer(t *testing.T) http.Handler {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	table, err := router.AppTable()
	require.NoError(t, err)

	store := session.NewStore(offlineAPI{}, session.Options{Logger: quiet})
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{}, quiet)
	cfg := &config.Config{ServerPort: "0", Environment: "development"}

	server := api.NewServer(ctx, cfg, quiet, store, api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Session:   session.NewHandler(store),
		Pages:     router.NewHandler(table, store, nil, nil),
	})
	return server.Handler()
}

/*
TestServer_FallbackEverywhere verifies that unmatched paths and methods render the
under-construction view at any depth, including under the session endpoints.
*/
func TestServer_FallbackEverywhere(t *testing.T) {
	handler := newServer(t)

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"unknown top level", http.MethodGet, "/nonexistent"},
		{"unknown deep", http.MethodGet, "/nonexistent/deep/path"},
		{"under session", http.MethodGet, "/session/nonexistent/deep"},
		{"below session login", http.MethodPost, "/session/login/x"},
		{"wrong method on session login", http.MethodGet, "/session/login"},
		{"wrong method on health", http.MethodPost, "/health"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, http.StatusNotFound, recorder.Code)
			assert.Contains(t, recorder.Header().Get("Content-Type"), "application/json")

			var body struct {
				Data view.Model `json:"data"`
			}
			require.NoError(t, json.NewDecoder(recorder.Body).Decode(&body))
			assert.Equal(t, view.UnderConstruction, body.Data.View)
		})
	}
}

/*
TestServer_KnownRoutes verifies that real endpoints are not swallowed by the fallback.
*/
func TestServer_KnownRoutes(t *testing.T) {
	handler := newServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"liveness", http.MethodGet, "/health", http.StatusOK},
		{"session state", http.MethodGet, "/session", http.StatusOK},
		{"public page", http.MethodGet, "/categories", http.StatusOK},
		{"protected page", http.MethodGet, "/messages", http.StatusSeeOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, recorder.Code)
		})
	}
}
