// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package router_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/evently/internal/access"
	"github.com/taibuivan/evently/internal/dashboard"
	"github.com/taibuivan/evently/internal/platform/ctxutil"
	"github.com/taibuivan/evently/internal/platform/sec"
	"github.com/taibuivan/evently/internal/router"
	"github.com/taibuivan/evently/internal/view"
)

var (
	attendee  = &sec.Principal{ID: "u-1", Role: sec.RoleAttendee}
	organizer = &sec.Principal{ID: "u-2", Role: sec.RoleOrganizer}
)

func appTable(t *testing.T) *router.Table {
	t.Helper()
	table, err := router.AppTable()
	require.NoError(t, err)
	return table
}

// # Table

/*
TestNewTable_KeepsFirstDuplicate verifies that a repeated pattern keeps its first descriptor.
*/
func TestNewTable_KeepsFirstDuplicate(t *testing.T) {
	table, err := router.NewTable([]router.Descriptor{
		{Pattern: "/messages", Requirement: access.AnyAuthenticated(), View: view.Messages},
		{Pattern: "/messages", Requirement: access.Public(), View: view.Home},
	})
	require.NoError(t, err)

	assert.Len(t, table.Descriptors(), 1)
	match := table.Resolve("/messages")
	require.True(t, match.Found)
	assert.Equal(t, view.Messages, match.Descriptor.View)
}

/*
TestNewTable_Invalid verifies that unroutable tables are reported instead of panicking.
*/
func TestNewTable_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		descriptors []router.Descriptor
	}{
		{"relative_pattern", []router.Descriptor{{Pattern: "messages", View: view.Messages}}},
		{"no_view", []router.Descriptor{{Pattern: "/messages"}}},
		{"duplicate_param_key", []router.Descriptor{{Pattern: "/events/{id}/{id}", View: view.EventManagement}}},
		{"unclosed_param", []router.Descriptor{{Pattern: "/events/{id", View: view.EventManagement}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := router.NewTable(tt.descriptors)
			assert.Error(t, err)
		})
	}
}

/*
TestResolve_LiteralBeatsParam verifies that a literal segment wins over a parameter.
*/
func TestResolve_LiteralBeatsParam(t *testing.T) {
	table, err := router.NewTable([]router.Descriptor{
		{Pattern: "/{id}", Requirement: access.Public(), View: view.EventDetails},
		{Pattern: "/messages", Requirement: access.AnyAuthenticated(), View: view.Messages},
	})
	require.NoError(t, err)

	assert.Equal(t, view.Messages, table.Resolve("/messages").Descriptor.View)

	match := table.Resolve("/e-42")
	assert.Equal(t, view.EventDetails, match.Descriptor.View)
	assert.Equal(t, map[string]string{"id": "e-42"}, match.Params)
}

/*
TestResolve_Fallback verifies that unknown paths of any shape resolve without error.
*/
func TestResolve_Fallback(t *testing.T) {
	table := appTable(t)

	for _, path := range []string{"/nonexistent/deep/path", "/events", "/events/1/extra", "/%zz", "/messages/", "/login/admin"} {
		t.Run(path, func(t *testing.T) {
			outcome := table.Navigate(path, organizer, false)
			assert.Equal(t, router.Fallback, outcome.Kind)
			assert.Equal(t, view.UnderConstruction, outcome.View)
		})
	}
}

/*
TestResolve_Normalization verifies that decomposed Unicode resolves like its composed form.
*/
func TestResolve_Normalization(t *testing.T) {
	table, err := router.NewTable([]router.Descriptor{
		{Pattern: "/caf\u00e9", Requirement: access.Public(), View: view.Categories},
	})
	require.NoError(t, err)

	assert.True(t, table.Resolve("/cafe\u0301").Found)
	assert.Equal(t, "/", router.Normalize(""))
	assert.Equal(t, "/messages", router.Normalize("messages"))
}

// # Outcomes

/*
TestNavigate_Scenarios verifies the navigation scenarios of the application table.
*/
func TestNavigate_Scenarios(t *testing.T) {
	table := appTable(t)

	tests := []struct {
		name      string
		path      string
		principal *sec.Principal
		kind      router.Kind
		view      view.ID
		target    string
	}{
		{"organizer_on_attendee_dashboard", "/attendee-dashboard", organizer, router.RedirectNoAccess, "", "/no-access"},
		{"anonymous_profile", "/profile", nil, router.RedirectLogin, "", "/login"},
		{"organizer_dashboard", "/organizer-dashboard", organizer, router.Allow, view.OrganizerDashboard, ""},
		{"anonymous_revenue_goes_to_organizer_login", "/revenue", nil, router.RedirectLogin, "", "/login/organizer"},
		{"anonymous_event_details_goes_to_attendee_login", "/event-details/e-1", nil, router.RedirectLogin, "", "/login/attendee"},
		{"dispatch_attendee", "/dashboard", attendee, router.Allow, view.AttendeeDashboard, ""},
		{"dispatch_organizer", "/dashboard", organizer, router.Allow, view.OrganizerDashboard, ""},
		{"dispatch_unknown_role", "/dashboard", &sec.Principal{ID: "u-9", Role: "admin"}, router.Allow, view.NoAccess, ""},
		{"public_home", "/", nil, router.Allow, view.Home, ""},
		{"public_calendar_signed_in", "/calendar", attendee, router.Allow, view.Calendar, ""},
		{"login_chooser", "/login", nil, router.Allow, view.LoginChooser, ""},
		{"attendee_messages", "/messages", attendee, router.Allow, view.Messages, ""},
		{"attendee_create_event", "/create-event", attendee, router.RedirectNoAccess, "", "/no-access"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := table.Navigate(tt.path, tt.principal, false)
			assert.Equal(t, tt.kind, outcome.Kind)
			assert.Equal(t, tt.view, outcome.View)
			assert.Equal(t, tt.target, outcome.Target)
		})
	}

	assert.Equal(t, view.OrganizerDashboard, dashboard.Dispatch(organizer))
}

/*
TestNavigate_Loading verifies that protected routes wait while a session mutation is in flight.
*/
func TestNavigate_Loading(t *testing.T) {
	table := appTable(t)

	assert.Equal(t, router.Loading, table.Navigate("/profile", nil, true).Kind)
	assert.Equal(t, router.Allow, table.Navigate("/", nil, true).Kind)
	assert.Equal(t, router.Allow, table.Navigate("/profile", attendee, true).Kind)
	assert.Equal(t, router.Fallback, table.Navigate("/nowhere", nil, true).Kind)
}

/*
TestNavigate_EveryProtectedRoute verifies that no non-public route admits an anonymous visitor.
*/
func TestNavigate_EveryProtectedRoute(t *testing.T) {
	for _, descriptor := range router.AppRoutes() {
		if descriptor.Requirement.IsPublic() {
			continue
		}
		decision := access.Decide(descriptor.Requirement, nil)
		assert.Equal(t, access.RedirectLogin, decision.Kind, descriptor.Pattern)
	}
}

// # HTTP

type pending bool

func (p pending) Pending() bool { return bool(p) }

type envelope struct {
	Data json.RawMessage `json:"data"`
}

func serve(t *testing.T, handler http.Handler, path string, principal *sec.Principal) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(http.MethodGet, path, nil)
	if principal != nil {
		request = request.WithContext(ctxutil.WithPrincipal(request.Context(), principal))
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeModel(t *testing.T, recorder *httptest.ResponseRecorder) view.Model {
	t.Helper()
	var body envelope
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&body))

	var model view.Model
	require.NoError(t, json.Unmarshal(body.Data, &model))
	return model
}

/*
TestHandler_Outcomes verifies the HTTP mapping of every outcome kind.
*/
func TestHandler_Outcomes(t *testing.T) {
	handler := router.NewHandler(appTable(t), pending(false), nil, nil).Routes()

	t.Run("allow", func(t *testing.T) {
		recorder := serve(t, handler, "/events/e-7", organizer)
		require.Equal(t, http.StatusOK, recorder.Code)

		model := decodeModel(t, recorder)
		assert.Equal(t, view.EventManagement, model.View)
		assert.Equal(t, "e-7", model.Params["eventId"])
		require.NotNil(t, model.Principal)
		assert.Equal(t, "u-2", model.Principal.ID)
	})

	t.Run("redirect_login", func(t *testing.T) {
		recorder := serve(t, handler, "/tickets", nil)
		assert.Equal(t, http.StatusSeeOther, recorder.Code)
		assert.Equal(t, "/login", recorder.Header().Get("Location"))
	})

	t.Run("redirect_no_access", func(t *testing.T) {
		recorder := serve(t, handler, "/revenue", attendee)
		assert.Equal(t, http.StatusSeeOther, recorder.Code)
		assert.Equal(t, "/no-access", recorder.Header().Get("Location"))
	})

	t.Run("fallback", func(t *testing.T) {
		recorder := serve(t, handler, "/nonexistent/deep/path", organizer)
		require.Equal(t, http.StatusNotFound, recorder.Code)

		model := decodeModel(t, recorder)
		assert.Equal(t, view.UnderConstruction, model.View)
		assert.Nil(t, model.Principal)
	})

	t.Run("method_not_allowed_is_fallback", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodPost, "/profile", nil)
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})
}

/*
TestHandler_Loading verifies the 202 answer while the session is busy.
*/
func TestHandler_Loading(t *testing.T) {
	handler := router.NewHandler(appTable(t), pending(true), nil, nil).Routes()

	recorder := serve(t, handler, "/profile", nil)
	assert.Equal(t, http.StatusAccepted, recorder.Code)
	assert.Equal(t, "1", recorder.Header().Get("Retry-After"))
	assert.Equal(t, view.Loading, decodeModel(t, recorder).View)
}

/*
TestHandler_Provider verifies that registered providers fill the view payload.
*/
func TestHandler_Provider(t *testing.T) {
	views := view.NewRegistry().
		Provide(view.Messages, func(_ context.Context, principal *sec.Principal, _ map[string]string) (any, error) {
			return map[string]string{"owner": principal.ID}, nil
		}).
		Provide(view.Tickets, func(context.Context, *sec.Principal, map[string]string) (any, error) {
			return nil, errors.New("ticket service down")
		})
	handler := router.NewHandler(appTable(t), nil, views, nil).Routes()

	recorder := serve(t, handler, "/messages", attendee)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, map[string]any{"owner": "u-1"}, decodeModel(t, recorder).Data)

	recorder = serve(t, handler, "/tickets", attendee)
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
}
