// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package view identifies the application's pages and renders their models.

Page layout is owned by the browser bundle; the gateway only decides which
view a request resolves to and hands the bundle a [Model] describing it.

# Rendering

A [Renderer] turns a model into a response. [JSONRenderer] writes the model in
the standard success envelope, which is what the single-page bundle consumes.

# Data

Views that need server-side state (the Messages inbox) register a [Provider]
in a [Registry]; every other view renders with an empty payload.
*/
package view

import (
	"context"
	"fmt"
	"net/http"

	"github.com/taibuivan/evently/internal/platform/respond"
	"github.com/taibuivan/evently/internal/platform/sec"
)

// ID names a view.
type ID string

// # Public Views

const (
	Home              ID = "home"
	SignupAttendee    ID = "signup_attendee"
	SignupOrganizer   ID = "signup_organizer"
	Onboarding        ID = "onboarding"
	Categories        ID = "categories"
	LoginChooser      ID = "login_chooser"
	LoginAttendee     ID = "login_attendee"
	LoginOrganizer    ID = "login_organizer"
	NoAccess          ID = "no_access"
	Calendar          ID = "calendar"
	UnderConstruction ID = "under_construction"
	Loading           ID = "loading"
)

// # Organizer Views

const (
	OrganizerDashboard ID = "organizer_dashboard"
	CreateEvent        ID = "create_event"
	EventManagement    ID = "event_management"
	Revenue            ID = "revenue"
)

// # Attendee Views

const (
	AttendeeDashboard ID = "attendee_dashboard"
	EventDetails      ID = "event_details"
)

// # Shared Views

const (
	Messages ID = "messages"
	Tickets  ID = "tickets"
	Settings ID = "settings"
	Profile  ID = "profile"
)

var titles = map[ID]string{
	Home:               "Evently",
	SignupAttendee:     "Sign up as attendee",
	SignupOrganizer:    "Sign up as organizer",
	Onboarding:         "Welcome",
	Categories:         "Categories",
	LoginChooser:       "Sign in",
	LoginAttendee:      "Attendee sign in",
	LoginOrganizer:     "Organizer sign in",
	NoAccess:           "No access",
	Calendar:           "Calendar",
	UnderConstruction:  "Under construction",
	Loading:            "Loading",
	OrganizerDashboard: "Organizer dashboard",
	CreateEvent:        "Create event",
	EventManagement:    "Manage event",
	Revenue:            "Revenue",
	AttendeeDashboard:  "Attendee dashboard",
	EventDetails:       "Event details",
	Messages:           "Messages",
	Tickets:            "Tickets",
	Settings:           "Settings",
	Profile:            "Profile",
}

// Title returns the human readable page title of id.
func (id ID) Title() string {
	if title, ok := titles[id]; ok {
		return title
	}
	return string(id)
}

// Known reports whether id is one of the declared views.
func (id ID) Known() bool {
	_, ok := titles[id]
	return ok
}

// # Model

// Model is everything the browser bundle needs to draw a page.
type Model struct {
	View      ID                `json:"view"`
	Title     string            `json:"title"`
	Path      string            `json:"path"`
	Params    map[string]string `json:"params,omitempty"`
	Principal *sec.Principal    `json:"principal,omitempty"`
	Data      any               `json:"data,omitempty"`
}

// Provider supplies the payload of a view for principal.
type Provider func(ctx context.Context, principal *sec.Principal, params map[string]string) (any, error)

// Registry maps views to their providers. It is filled at startup and only
// read afterwards.
type Registry struct {
	providers map[ID]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[ID]Provider)}
}

// Provide registers provider for id, replacing any previous one.
func (r *Registry) Provide(id ID, provider Provider) *Registry {
	r.providers[id] = provider
	return r
}

// Build assembles the model of id. A nil registry builds payload-free models.
func (r *Registry) Build(ctx context.Context, id ID, path string, params map[string]string, principal *sec.Principal) (Model, error) {
	model := Model{
		View:      id,
		Title:     id.Title(),
		Path:      path,
		Params:    params,
		Principal: principal.Clone(),
	}

	if r == nil {
		return model, nil
	}
	provider, ok := r.providers[id]
	if !ok {
		return model, nil
	}

	data, err := provider(ctx, principal, params)
	if err != nil {
		return Model{}, fmt.Errorf("view_provider_failed: %s: %w", id, err)
	}
	model.Data = data
	return model, nil
}

// # Rendering

// Renderer writes a model as an HTTP response.
type Renderer interface {
	Render(writer http.ResponseWriter, request *http.Request, status int, model Model)
}

// JSONRenderer renders models in the standard success envelope.
type JSONRenderer struct{}

// Render implements [Renderer].
func (JSONRenderer) Render(writer http.ResponseWriter, _ *http.Request, status int, model Model) {
	respond.Status(writer, status, model)
}
