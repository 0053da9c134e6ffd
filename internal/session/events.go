// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import "github.com/taibuivan/evently/internal/platform/sec"

// # Session Events

// EventKind enumerates the lifecycle transitions of the session.
type EventKind int

const (
	// EventLoggedIn is emitted after a successful login or restore.
	EventLoggedIn EventKind = iota + 1

	// EventLoggedOut is emitted after an explicit logout.
	EventLoggedOut

	// EventRefreshed is emitted after the access token was silently renewed.
	EventRefreshed

	// EventExpired is emitted when silent renewal failed and the session was dropped.
	EventExpired
)

// String returns the snake_case name used in logs.
func (k EventKind) String() string {
	switch k {
	case EventLoggedIn:
		return "logged_in"
	case EventLoggedOut:
		return "logged_out"
	case EventRefreshed:
		return "refreshed"
	case EventExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Event describes one session transition.
//
// Principal is a copy: the new principal for LoggedIn and Refreshed, the
// departing one for LoggedOut and Expired. Err is set for Expired only and
// carries an [apperr.CodeSessionExpired] error.
type Event struct {
	Kind      EventKind
	Principal *sec.Principal
	Err       error
}

// Listener receives session events synchronously, in emission order.
//
// Listeners run while the store holds its mutation slot, so they must not
// call Login, Logout, Refresh or Restore themselves.
type Listener func(Event)
