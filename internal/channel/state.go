// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package channel

// # Connection State

// State is the lifecycle state of the realtime connection.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateReconnecting
)

// String returns the snake_case name used in logs and on the live feed.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// transitions lists every legal move. Closed is reachable from every other
// state (explicit disconnect or exhausted retry budget).
var transitions = map[State][]State{
	StateClosed:       {StateConnecting},
	StateConnecting:   {StateOpen, StateClosed},
	StateOpen:         {StateReconnecting, StateClosed},
	StateReconnecting: {StateOpen, StateClosed},
}

// CanTransition reports whether the state machine allows from → to.
func CanTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
