// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package router

import (
	"github.com/taibuivan/evently/internal/access"
	"github.com/taibuivan/evently/internal/dashboard"
	"github.com/taibuivan/evently/internal/platform/constants"
	"github.com/taibuivan/evently/internal/platform/sec"
	"github.com/taibuivan/evently/internal/view"
)

// AppRoutes returns the route table of the Evently web application.
func AppRoutes() []Descriptor {
	public := access.Public()
	signedIn := access.AnyAuthenticated()
	organizer := access.Roles(sec.RoleOrganizer)
	attendee := access.Roles(sec.RoleAttendee)

	return []Descriptor{
		// ── Public ────────────────────────────────────────────────────────────
		{Pattern: "/", Requirement: public, View: view.Home},
		{Pattern: "/signup/attendee", Requirement: public, View: view.SignupAttendee},
		{Pattern: "/signup/organizer", Requirement: public, View: view.SignupOrganizer},
		{Pattern: "/onboarding", Requirement: public, View: view.Onboarding},
		{Pattern: "/categories", Requirement: public, View: view.Categories},
		{Pattern: constants.PathLogin, Requirement: public, View: view.LoginChooser},
		{Pattern: constants.PathLoginPrefix + "attendee", Requirement: public, View: view.LoginAttendee},
		{Pattern: constants.PathLoginPrefix + "organizer", Requirement: public, View: view.LoginOrganizer},
		{Pattern: constants.PathNoAccess, Requirement: public, View: view.NoAccess},
		{Pattern: "/calendar", Requirement: public, View: view.Calendar},

		// ── Role Dispatch ─────────────────────────────────────────────────────
		{Pattern: constants.PathDashboard, Requirement: signedIn, Dispatch: dashboard.Dispatch},

		// ── Organizer ─────────────────────────────────────────────────────────
		{Pattern: "/organizer-dashboard", Requirement: organizer, View: view.OrganizerDashboard},
		{Pattern: "/create-event", Requirement: organizer, View: view.CreateEvent},
		{Pattern: "/events/{eventId}", Requirement: organizer, View: view.EventManagement},
		{Pattern: "/revenue", Requirement: organizer, View: view.Revenue},

		// ── Attendee ──────────────────────────────────────────────────────────
		{Pattern: "/attendee-dashboard", Requirement: attendee, View: view.AttendeeDashboard},
		{Pattern: "/event-details/{eventId}", Requirement: attendee, View: view.EventDetails},

		// ── Any Signed-In Role ────────────────────────────────────────────────
		{Pattern: "/messages", Requirement: signedIn, View: view.Messages},
		{Pattern: "/tickets", Requirement: signedIn, View: view.Tickets},
		{Pattern: "/settings", Requirement: signedIn, View: view.Settings},
		{Pattern: "/profile", Requirement: signedIn, View: view.Profile},
	}
}

// AppTable builds the application's route table.
func AppTable() (*Table, error) {
	return NewTable(AppRoutes())
}
