// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import "time"

// # Principal

// Principal is the authenticated identity of the current user.
//
// It is created by a successful login, replaced on token refresh and dropped on
// logout or expiry. Only the session store mutates it; everyone else receives
// copies.
type Principal struct {
	ID   string   `json:"id"`
	Name string   `json:"name,omitempty"`
	Role UserRole `json:"role"`

	// Credentials never leave the process.
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`

	ExpiresAt time.Time `json:"expires_at"`
}

// Authenticated reports whether p identifies a signed-in account.
// A nil principal is anonymous.
func (p *Principal) Authenticated() bool {
	return p != nil && p.ID != "" && p.Role != RoleUnauthenticated && p.Role != ""
}

// Expired reports whether the access token is past its expiry at now.
// A zero expiry never expires.
func (p *Principal) Expired(now time.Time) bool {
	if p == nil {
		return true
	}
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// Clone returns an independent copy of p (nil-safe).
func (p *Principal) Clone() *Principal {
	if p == nil {
		return nil
	}
	copied := *p
	return &copied
}
