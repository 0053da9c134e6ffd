// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package dashboard picks the landing view of a signed-in principal.
package dashboard

import (
	"github.com/taibuivan/evently/internal/platform/sec"
	"github.com/taibuivan/evently/internal/view"
)

// Dispatch returns the dashboard of principal's role. Anything that is not a
// signed-in attendee or organizer gets the no-access view.
func Dispatch(principal *sec.Principal) view.ID {
	if !principal.Authenticated() {
		return view.NoAccess
	}

	switch principal.Role {
	case sec.RoleAttendee:
		return view.AttendeeDashboard
	case sec.RoleOrganizer:
		return view.OrganizerDashboard
	case sec.RoleUnauthenticated:
		return view.NoAccess
	default:
		return view.NoAccess
	}
}
