// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package router maps request paths to views behind the access gate.

# Matching

The route [Table] is an ordered list of [Descriptor] values fixed at startup.
Matching is delegated to chi's radix tree, so a literal segment always beats a
parameter at the same position ("/messages" over "/{id}"). A path that matches
nothing resolves to the fallback view; resolution never fails.

# Outcomes

[Evaluate] combines a match with the current principal:

  - Allow: render the descriptor's view (or the dispatched dashboard).
  - RedirectLogin / RedirectNoAccess: the access gate refused.
  - Fallback: no descriptor matched.
  - Loading: a session mutation is in flight and nobody is signed in yet.
*/
package router

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/unicode/norm"

	"github.com/taibuivan/evently/internal/access"
	"github.com/taibuivan/evently/internal/platform/sec"
	"github.com/taibuivan/evently/internal/view"
)

// Descriptor binds a path pattern to a view and its access requirement.
//
// Dispatch, when set, chooses the view from the principal instead of View.
type Descriptor struct {
	Pattern     string
	Requirement access.Requirement
	View        view.ID
	Dispatch    func(*sec.Principal) view.ID
}

// Table is an immutable, ordered route table.
type Table struct {
	descriptors []Descriptor
	byPattern   map[string]int
	matcher     *chi.Mux
}

// NewTable builds a table from descriptors. A repeated pattern keeps its
// first entry. Patterns chi cannot route (duplicate parameter keys, bad
// syntax) are reported as an error.
func NewTable(descriptors []Descriptor) (table *Table, err error) {
	table = &Table{
		byPattern: make(map[string]int, len(descriptors)),
		matcher:   chi.NewMux(),
	}

	// chi reports malformed patterns by panicking
	defer func() {
		if recovered := recover(); recovered != nil {
			table, err = nil, fmt.Errorf("router_table_invalid: %v", recovered)
		}
	}()

	noop := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	for _, descriptor := range descriptors {
		if !strings.HasPrefix(descriptor.Pattern, "/") {
			return nil, fmt.Errorf("router_table_invalid: pattern %q must start with /", descriptor.Pattern)
		}
		if descriptor.View == "" && descriptor.Dispatch == nil {
			return nil, fmt.Errorf("router_table_invalid: pattern %q has no view", descriptor.Pattern)
		}
		if _, seen := table.byPattern[descriptor.Pattern]; seen {
			continue
		}

		table.byPattern[descriptor.Pattern] = len(table.descriptors)
		table.descriptors = append(table.descriptors, descriptor)
		table.matcher.Get(descriptor.Pattern, noop)
	}

	return table, nil
}

// Descriptors returns a copy of the table in declaration order.
func (t *Table) Descriptors() []Descriptor {
	return append([]Descriptor(nil), t.descriptors...)
}

// Match is the result of [Table.Resolve].
type Match struct {
	Path       string
	Found      bool
	Descriptor Descriptor
	Params     map[string]string
}

// Resolve finds the descriptor of path. It never fails; an unmatched path
// yields a Match with Found == false.
func (t *Table) Resolve(path string) Match {
	path = Normalize(path)
	match := Match{Path: path}

	routeCtx := chi.NewRouteContext()
	pattern := t.matcher.Find(routeCtx, http.MethodGet, path)
	index, ok := t.byPattern[pattern]
	if !ok {
		return match
	}

	match.Found = true
	match.Descriptor = t.descriptors[index]
	match.Params = params(routeCtx)
	return match
}

// Normalize returns the NFC form of path with an implied leading slash, so
// equivalent Unicode spellings of a segment resolve alike.
func Normalize(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return norm.NFC.String(path)
}

func params(routeCtx *chi.Context) map[string]string {
	keys := routeCtx.URLParams.Keys
	if len(keys) == 0 {
		return nil
	}

	result := make(map[string]string, len(keys))
	for i, key := range keys {
		if key == "*" {
			continue
		}
		result[key] = routeCtx.URLParams.Values[i]
	}
	return result
}

// # Outcomes

// Kind is a navigation outcome.
type Kind uint8

const (
	Allow Kind = iota
	RedirectLogin
	RedirectNoAccess
	Fallback
	Loading
)

func (k Kind) String() string {
	switch k {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectNoAccess:
		return "redirect_no_access"
	case Fallback:
		return "fallback"
	case Loading:
		return "loading"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name in JSON.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Outcome is what a navigation resolves to.
type Outcome struct {
	Kind   Kind              `json:"kind"`
	View   view.ID           `json:"view,omitempty"`
	Target string            `json:"target,omitempty"`
	Path   string            `json:"path"`
	Params map[string]string `json:"params,omitempty"`
}

// Evaluate decides the outcome of match for principal. pending reports
// whether a session mutation is in flight.
func Evaluate(match Match, principal *sec.Principal, pending bool) Outcome {
	outcome := Outcome{Path: match.Path, Params: match.Params}

	if !match.Found {
		outcome.Kind = Fallback
		outcome.View = view.UnderConstruction
		return outcome
	}

	descriptor := match.Descriptor

	// No decision on stale data while a login or refresh is in flight
	if pending && !descriptor.Requirement.IsPublic() && !principal.Authenticated() {
		outcome.Kind = Loading
		outcome.View = view.Loading
		return outcome
	}

	decision := access.Decide(descriptor.Requirement, principal)
	switch decision.Kind {
	case access.RedirectLogin:
		outcome.Kind = RedirectLogin
		outcome.Target = decision.Target
	case access.RedirectNoAccess:
		outcome.Kind = RedirectNoAccess
		outcome.Target = decision.Target
	default:
		outcome.Kind = Allow
		outcome.View = descriptor.View
		if descriptor.Dispatch != nil {
			outcome.View = descriptor.Dispatch(principal)
		}
	}
	return outcome
}

// Navigate resolves path and evaluates it in one step.
func (t *Table) Navigate(path string, principal *sec.Principal, pending bool) Outcome {
	return Evaluate(t.Resolve(path), principal, pending)
}
