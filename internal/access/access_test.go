// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package access_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/evently/internal/access"
	"github.com/taibuivan/evently/internal/platform/sec"
)

var (
	attendee  = &sec.Principal{ID: "u-1", Role: sec.RoleAttendee}
	organizer = &sec.Principal{ID: "u-2", Role: sec.RoleOrganizer}
	stranger  = &sec.Principal{ID: "u-3", Role: sec.UserRole("admin")}
	anonymous = &sec.Principal{ID: "u-4", Role: sec.RoleUnauthenticated}
)

/*
TestDecide verifies the decision table across requirements and principals.
*/
func TestDecide(t *testing.T) {
	tests := []struct {
		name        string
		requirement access.Requirement
		principal   *sec.Principal
		want        access.Decision
	}{
		{"public_anonymous", access.Public(), nil, access.Decision{Kind: access.Allow}},
		{"public_signed_in", access.Public(), organizer, access.Decision{Kind: access.Allow}},

		{"any_nil", access.AnyAuthenticated(), nil, access.Decision{Kind: access.RedirectLogin, Target: "/login"}},
		{"any_unauthenticated_role", access.AnyAuthenticated(), anonymous, access.Decision{Kind: access.RedirectLogin, Target: "/login"}},
		{"any_attendee", access.AnyAuthenticated(), attendee, access.Decision{Kind: access.Allow}},
		{"any_unknown_role", access.AnyAuthenticated(), stranger, access.Decision{Kind: access.Allow}},

		{"zero_value_fails_closed", access.Requirement{}, nil, access.Decision{Kind: access.RedirectLogin, Target: "/login"}},
		{"empty_roles_is_any", access.Roles(), attendee, access.Decision{Kind: access.Allow}},

		{"single_role_login_page", access.Roles(sec.RoleAttendee), nil, access.Decision{Kind: access.RedirectLogin, Target: "/login/attendee"}},
		{"organizer_login_page", access.Roles(sec.RoleOrganizer), nil, access.Decision{Kind: access.RedirectLogin, Target: "/login/organizer"}},
		{"multi_role_chooser", access.Roles(sec.RoleAttendee, sec.RoleOrganizer), nil, access.Decision{Kind: access.RedirectLogin, Target: "/login"}},

		{"organizer_on_attendee_route", access.Roles(sec.RoleAttendee), organizer, access.Decision{Kind: access.RedirectNoAccess, Target: "/no-access"}},
		{"unknown_role_denied", access.Roles(sec.RoleAttendee, sec.RoleOrganizer), stranger, access.Decision{Kind: access.RedirectNoAccess, Target: "/no-access"}},
		{"organizer_allowed", access.Roles(sec.RoleOrganizer), organizer, access.Decision{Kind: access.Allow}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, access.Decide(tt.requirement, tt.principal))
		})
	}
}

/*
TestDecide_Properties verifies the three universal properties over every role combination.
*/
func TestDecide_Properties(t *testing.T) {
	roles := []sec.UserRole{sec.RoleAttendee, sec.RoleOrganizer, sec.UserRole("admin")}
	sets := [][]sec.UserRole{
		{sec.RoleAttendee},
		{sec.RoleOrganizer},
		{sec.RoleAttendee, sec.RoleOrganizer},
		{sec.UserRole("admin")},
	}

	for _, set := range sets {
		requirement := access.Roles(set...)

		assert.Equal(t, access.RedirectLogin, access.Decide(requirement, nil).Kind, "anonymous on %s", requirement)

		for _, role := range roles {
			principal := &sec.Principal{ID: "u", Role: role}
			got := access.Decide(requirement, principal).Kind

			want := access.RedirectNoAccess
			for _, allowed := range set {
				if allowed == role {
					want = access.Allow
				}
			}
			assert.Equal(t, want, got, "%s on %s", role, requirement)
		}
	}
}

/*
TestRequirement_Roles verifies that role sets are deduplicated and copied.
*/
func TestRequirement_Roles(t *testing.T) {
	requirement := access.Roles(sec.RoleOrganizer, sec.RoleOrganizer)
	assert.Equal(t, []sec.UserRole{sec.RoleOrganizer}, requirement.Allowed())

	allowed := requirement.Allowed()
	allowed[0] = sec.RoleAttendee
	assert.Equal(t, access.Decision{Kind: access.Allow}, access.Decide(requirement, organizer))

	assert.Equal(t, "roles(organizer)", requirement.String())
	assert.Equal(t, "public", access.Public().String())
	assert.Equal(t, "authenticated", access.Requirement{}.String())
	assert.False(t, access.Requirement{}.IsPublic())
}
