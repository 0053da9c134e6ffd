// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package dashboard_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/evently/internal/dashboard"
	"github.com/taibuivan/evently/internal/platform/sec"
	"github.com/taibuivan/evently/internal/view"
)

/*
TestDispatch verifies one view per role and the fail-closed arm.
*/
func TestDispatch(t *testing.T) {
	tests := []struct {
		name      string
		principal *sec.Principal
		want      view.ID
	}{
		{"attendee", &sec.Principal{ID: "u-1", Role: sec.RoleAttendee}, view.AttendeeDashboard},
		{"organizer", &sec.Principal{ID: "u-2", Role: sec.RoleOrganizer}, view.OrganizerDashboard},
		{"nil", nil, view.NoAccess},
		{"unauthenticated", &sec.Principal{ID: "u-3", Role: sec.RoleUnauthenticated}, view.NoAccess},
		{"unknown_role", &sec.Principal{ID: "u-4", Role: sec.UserRole("superuser")}, view.NoAccess},
		{"missing_id", &sec.Principal{Role: sec.RoleOrganizer}, view.NoAccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dashboard.Dispatch(tt.principal))
		})
	}
}
