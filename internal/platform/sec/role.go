// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

// # User Roles

// UserRole represents the kind of account a principal signed in with.
//
// Roles are not hierarchical: an organizer is not a superset of an attendee.
// Route access is granted by set membership only.
type UserRole string

const (
	// Buys tickets, browses and follows events
	RoleAttendee UserRole = "attendee"

	// Creates and manages events, sees revenue
	RoleOrganizer UserRole = "organizer"

	// Placeholder role of an anonymous visitor
	RoleUnauthenticated UserRole = "unauthenticated"
)

// # Role Parsing

// SignInRoles lists the roles a user may sign in as, in chooser order.
func SignInRoles() []UserRole {
	return []UserRole{RoleAttendee, RoleOrganizer}
}

// ParseRole maps a wire value to a [UserRole]. Unknown values are returned
// verbatim so downstream dispatch can fail closed on them.
func ParseRole(value string) UserRole {
	return UserRole(value)
}

// CanSignIn reports whether the role identifies an authenticated account.
func (r UserRole) CanSignIn() bool {
	switch r {
	case RoleAttendee, RoleOrganizer:
		return true
	default:
		return false
	}
}

// String returns the wire representation of the role.
func (r UserRole) String() string {
	return string(r)
}
