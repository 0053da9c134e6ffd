// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package session holds the process-wide authenticated principal.

The [Store] is the single source of truth for who is signed in. Everyone else
(the access gate, the realtime channel, HTTP handlers) reads copies through
[Store.CurrentPrincipal] or reacts to [Event] notifications; only the store's
own operations mutate the principal.

Concurrency:

  - Reads never block: the principal lives behind an atomic pointer.
  - Mutations (Login, Logout, Refresh, Restore) are serialized through a single
    in-flight slot. A second caller waits for the first to finish.
  - Concurrent Refresh calls share one upstream request.
  - A caller whose context is cancelled stops waiting, but the mutation it
    started still completes against a detached context.
*/
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"github.com/taibuivan/evently/internal/platform/apperr"
	"github.com/taibuivan/evently/internal/platform/constants"
	"github.com/taibuivan/evently/internal/platform/sec"
)

// Inspector reads the claims of an access token.
type Inspector interface {
	Inspect(token string) (*sec.AuthClaims, error)
}

const (
	// refreshAttempts bounds upstream refresh calls that fail with a network error.
	refreshAttempts = 3

	defaultRetryDelay = 250 * time.Millisecond
)

// Options configures optional collaborators of a [Store].
type Options struct {
	// Persister keeps the session across restarts. Nil keeps it in memory only.
	Persister Persister

	// Inspector cross-checks principals against their access token claims. Nil skips the check.
	Inspector Inspector

	Logger *slog.Logger

	// RetryDelay is the first backoff delay between network-failed refresh attempts.
	RetryDelay time.Duration
}

// Store owns the principal and its lifecycle.
type Store struct {
	api        API
	persister  Persister
	inspector  Inspector
	logger     *slog.Logger
	retryDelay time.Duration

	current atomic.Pointer[sec.Principal]
	pending atomic.Int32
	slot    chan struct{}
	refresh singleflight.Group

	mu        sync.Mutex
	listeners []listenerEntry
	nextID    uint64
}

type listenerEntry struct {
	id       uint64
	listener Listener
}

// NewStore creates a logged-out store backed by api.
func NewStore(api API, options Options) *Store {
	if options.Persister == nil {
		options.Persister = NewMemoryPersister()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.RetryDelay <= 0 {
		options.RetryDelay = defaultRetryDelay
	}

	return &Store{
		api:        api,
		persister:  options.Persister,
		inspector:  options.Inspector,
		logger:     options.Logger.With(slog.String("component", "session")),
		retryDelay: options.RetryDelay,
		slot:       make(chan struct{}, 1),
	}
}

// # Reads

// CurrentPrincipal returns a copy of the signed-in principal, or nil.
// It never blocks and may lag behind an in-flight refresh.
func (s *Store) CurrentPrincipal() *sec.Principal {
	return s.current.Load().Clone()
}

// Pending reports whether a mutation is running or queued.
func (s *Store) Pending() bool {
	return s.pending.Load() > 0
}

// Subscribe registers listener for every subsequent event.
// The returned function removes it and is safe to call more than once.
func (s *Store) Subscribe(listener Listener) (cancel func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry{id: id, listener: listener})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for index, entry := range s.listeners {
			if entry.id == id {
				s.listeners = append(s.listeners[:index:index], s.listeners[index+1:]...)
				return
			}
		}
	}
}

// # Mutations

// Login authenticates credentials and replaces the current principal.
//
// Failures are [apperr.CodeAuthenticationFailed] for rejected credentials and
// [apperr.CodeNetwork] when the Session API cannot be reached. Signing in while
// another principal is active emits LoggedOut for it before LoggedIn.
func (s *Store) Login(ctx context.Context, credentials Credentials) (*sec.Principal, error) {
	var signedIn *sec.Principal

	err := s.run(ctx, func(opCtx context.Context) error {

		// ── 1. Upstream Authentication ────────────────────────────────────
		principal, err := s.api.Login(opCtx, credentials)
		if err != nil {
			return err
		}

		principal, err = s.reconcile(principal)
		if err != nil {
			return err
		}

		// ── 2. State Transition ───────────────────────────────────────────
		previous := s.current.Swap(principal)
		if previous.Authenticated() {
			s.emit(Event{Kind: EventLoggedOut, Principal: previous.Clone()})
		}

		s.save(opCtx, principal)
		s.logger.Info("session_logged_in",
			slog.String("user_id", principal.ID),
			slog.String("role", principal.Role.String()),
		)

		// ── 3. Notification ───────────────────────────────────────────────
		s.emit(Event{Kind: EventLoggedIn, Principal: principal.Clone()})

		signedIn = principal.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return signedIn, nil
}

// Logout drops the principal and revokes it upstream on a best-effort basis.
// Logging out while logged out is a no-op and emits nothing.
func (s *Store) Logout(ctx context.Context) error {
	return s.run(ctx, func(opCtx context.Context) error {
		previous := s.current.Swap(nil)
		if !previous.Authenticated() {
			return nil
		}

		if err := s.api.Logout(opCtx, previous); err != nil {
			s.logger.Warn("session_upstream_logout_failed", slog.Any("error", err))
		}

		s.forget(opCtx)
		s.logger.Info("session_logged_out", slog.String("user_id", previous.ID))
		s.emit(Event{Kind: EventLoggedOut, Principal: previous.Clone()})
		return nil
	})
}

// Refresh silently renews the access token.
//
// A failed renewal drops the principal and emits Expired; it is not returned.
// The only error Refresh returns is the caller's own context error. Concurrent
// calls share one upstream request.
func (s *Store) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	result := s.refresh.DoChan("refresh", func() (any, error) {
		return nil, s.execute(ctx, s.renewCurrent)
	})

	select {
	case outcome := <-result:
		return outcome.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Restore renews a persisted session, if any, and emits LoggedIn on success.
// A persisted session that can no longer be renewed is discarded quietly.
func (s *Store) Restore(ctx context.Context) error {
	return s.run(ctx, func(opCtx context.Context) error {
		saved, err := s.persister.Load(opCtx)
		if err != nil {
			return fmt.Errorf("session_restore_failed: %w", err)
		}
		if saved == nil || saved.RefreshToken == "" {
			return nil
		}

		renewal, err := s.renew(opCtx, saved.RefreshToken)
		if err == nil {
			saved, err = s.reconcile(apply(saved, renewal))
		}
		if err != nil {
			s.forget(opCtx)
			s.logger.Info("session_restore_discarded", slog.Any("error", err))
			return nil
		}

		s.current.Store(saved)
		s.save(opCtx, saved)
		s.logger.Info("session_restored", slog.String("user_id", saved.ID))
		s.emit(Event{Kind: EventLoggedIn, Principal: saved.Clone()})
		return nil
	})
}

// # Automatic Renewal

// DueForRefresh reports whether the principal expires within lead of now.
func (s *Store) DueForRefresh(now time.Time, lead time.Duration) bool {
	principal := s.current.Load()
	if !principal.Authenticated() {
		return false
	}
	return principal.Expired(now.Add(lead))
}

// RunAutoRefresh renews the session lead before it expires, checking every
// interval, until ctx is done.
func (s *Store) RunAutoRefresh(ctx context.Context, lead, interval time.Duration) {
	if interval <= 0 {
		interval = constants.AutoRefreshInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if s.DueForRefresh(now, lead) {
				_ = s.Refresh(ctx)
			}
		}
	}
}

// # Internals

// renewCurrent performs one refresh of the current principal. Runs inside the slot.
func (s *Store) renewCurrent(ctx context.Context) error {
	current := s.current.Load()
	if !current.Authenticated() {
		return nil
	}

	renewal, err := s.renew(ctx, current.RefreshToken)
	var next *sec.Principal
	if err == nil {
		next, err = s.reconcile(apply(current, renewal))
	}

	if err != nil {
		s.current.Store(nil)
		s.forget(ctx)
		s.logger.Warn("session_refresh_failed",
			slog.String("user_id", current.ID),
			slog.Any("error", err),
		)
		s.emit(Event{Kind: EventExpired, Principal: current.Clone(), Err: apperr.SessionExpired(err)})
		return nil
	}

	s.current.Store(next)
	s.save(ctx, next)
	s.logger.Debug("session_refreshed", slog.Time("expires_at", next.ExpiresAt))
	s.emit(Event{Kind: EventRefreshed, Principal: next.Clone()})
	return nil
}

// renew calls the upstream refresh, retrying network failures only.
func (s *Store) renew(ctx context.Context, refreshToken string) (*Renewal, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryDelay

	return backoff.Retry(ctx, func() (*Renewal, error) {
		renewal, err := s.api.Refresh(ctx, refreshToken)
		if err != nil && !apperr.HasCode(err, apperr.CodeNetwork) {
			return nil, backoff.Permanent(err)
		}
		return renewal, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(refreshAttempts))
}

// apply returns a copy of principal carrying the renewed credentials.
func apply(principal *sec.Principal, renewal *Renewal) *sec.Principal {
	next := principal.Clone()
	next.AccessToken = renewal.AccessToken
	if renewal.RefreshToken != "" {
		next.RefreshToken = renewal.RefreshToken
	}
	next.ExpiresAt = renewal.ExpiresAt
	return next
}

// reconcile fills gaps in principal from its token claims and rejects tokens
// issued to somebody else.
func (s *Store) reconcile(principal *sec.Principal) (*sec.Principal, error) {
	if s.inspector == nil {
		return principal, nil
	}

	claims, err := s.inspector.Inspect(principal.AccessToken)
	if err != nil {
		return nil, apperr.AuthenticationFailed("Access token was rejected").WithCause(err)
	}

	if claims.UserID != "" && principal.ID != "" && claims.UserID != principal.ID {
		return nil, apperr.AuthenticationFailed("Access token does not match the signed-in account")
	}

	next := principal.Clone()
	if next.ID == "" {
		next.ID = claims.UserID
	}
	if next.Name == "" {
		next.Name = claims.Name
	}
	if next.Role == "" {
		next.Role = sec.ParseRole(claims.Role)
	}
	if next.ExpiresAt.IsZero() && claims.ExpiresAt != nil {
		next.ExpiresAt = claims.ExpiresAt.Time
	}
	return next, nil
}

func (s *Store) save(ctx context.Context, principal *sec.Principal) {
	if err := s.persister.Save(ctx, principal); err != nil {
		s.logger.Warn("session_persist_failed", slog.Any("error", err))
	}
}

func (s *Store) forget(ctx context.Context) {
	if err := s.persister.Clear(ctx); err != nil {
		s.logger.Warn("session_persist_clear_failed", slog.Any("error", err))
	}
}

// emit delivers event to a snapshot of the listeners, outside the lock.
func (s *Store) emit(event Event) {
	s.mu.Lock()
	listeners := make([]Listener, len(s.listeners))
	for index, entry := range s.listeners {
		listeners[index] = entry.listener
	}
	s.mu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// run executes op in the slot and waits for it unless ctx is cancelled first.
func (s *Store) run(ctx context.Context, op func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.execute(ctx, op)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execute blocks until the slot is free, then runs op under a detached context.
func (s *Store) execute(parent context.Context, op func(context.Context) error) error {
	s.pending.Add(1)
	defer s.pending.Add(-1)

	s.slot <- struct{}{}
	defer func() { <-s.slot }()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), constants.SessionAPITimeout)
	defer cancel()

	return op(ctx)
}
