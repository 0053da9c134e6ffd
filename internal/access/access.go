// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package access decides whether a principal may open a route.

[Decide] is a pure function of a route's [Requirement] and the current
principal. It never fails: every input resolves to exactly one [Decision].

# Requirements

A requirement is always explicit:

  - Public: anyone, signed in or not.
  - AnyAuthenticated: any signed-in principal, whatever the role.
  - Roles: signed-in principals whose role is in the set.

The zero Requirement is treated as AnyAuthenticated so that a route declared
without a requirement is never exposed by accident.
*/
package access

import (
	"slices"
	"strings"

	"github.com/taibuivan/evently/internal/platform/constants"
	"github.com/taibuivan/evently/internal/platform/sec"
	"github.com/taibuivan/evently/pkg/slice"
)

// # Requirements

type scope uint8

const (
	scopeUnset scope = iota
	scopePublic
	scopeAuthenticated
	scopeRoles
)

// Requirement is the access rule of a route.
type Requirement struct {
	scope scope
	roles []sec.UserRole
}

// Public allows everyone.
func Public() Requirement {
	return Requirement{scope: scopePublic}
}

// AnyAuthenticated allows every signed-in principal.
func AnyAuthenticated() Requirement {
	return Requirement{scope: scopeAuthenticated}
}

// Roles allows signed-in principals holding one of roles.
// Called with no roles it is AnyAuthenticated.
func Roles(roles ...sec.UserRole) Requirement {
	if len(roles) == 0 {
		return AnyAuthenticated()
	}

	return Requirement{scope: scopeRoles, roles: slice.Unique(roles)}
}

// IsPublic reports whether the requirement admits anonymous visitors.
func (r Requirement) IsPublic() bool {
	return r.scope == scopePublic
}

// Allowed returns a copy of the role set; nil unless built with [Roles].
func (r Requirement) Allowed() []sec.UserRole {
	return slices.Clone(r.roles)
}

// String renders the requirement for logs.
func (r Requirement) String() string {
	switch r.scope {
	case scopePublic:
		return "public"
	case scopeRoles:
		return "roles(" + strings.Join(slice.Map(r.roles, sec.UserRole.String), ",") + ")"
	default:
		return "authenticated"
	}
}

// # Decisions

// Kind is the outcome of an access check.
type Kind uint8

const (
	Allow Kind = iota
	RedirectLogin
	RedirectNoAccess
)

func (k Kind) String() string {
	switch k {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectNoAccess:
		return "redirect_no_access"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name in JSON.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Decision is the outcome of [Decide]. Target is empty for Allow.
type Decision struct {
	Kind   Kind   `json:"kind"`
	Target string `json:"target,omitempty"`
}

// Decide evaluates requirement against principal. A nil or unauthenticated
// principal is anonymous.
func Decide(requirement Requirement, principal *sec.Principal) Decision {
	if requirement.scope == scopePublic {
		return Decision{Kind: Allow}
	}

	if !principal.Authenticated() {
		return Decision{Kind: RedirectLogin, Target: LoginTarget(requirement)}
	}

	if requirement.scope == scopeRoles && !slices.Contains(requirement.roles, principal.Role) {
		return Decision{Kind: RedirectNoAccess, Target: constants.PathNoAccess}
	}

	return Decision{Kind: Allow}
}

// LoginTarget is the sign-in page for requirement: the role's own login page
// when exactly one role qualifies, the chooser otherwise.
func LoginTarget(requirement Requirement) string {
	if requirement.scope == scopeRoles && len(requirement.roles) == 1 && requirement.roles[0].CanSignIn() {
		return constants.PathLoginPrefix + requirement.roles[0].String()
	}
	return constants.PathLogin
}
