// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/evently/internal/platform/apperr"
	"github.com/taibuivan/evently/internal/platform/sec"
	"github.com/taibuivan/evently/internal/session"
)

// fakeAPI is a scripted Session API. When gate is non-nil, Login and Refresh
// signal entered and block until gate is closed.
type fakeAPI struct {
	mu           sync.Mutex
	loginCalls   int
	refreshCalls int
	logoutCalls  int
	loginErr     error
	refreshErr   error
	gate         chan struct{}
	entered      chan struct{}
}

func (f *fakeAPI) wait() {
	if f.gate == nil {
		return
	}
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	<-f.gate
}

func (f *fakeAPI) Login(_ context.Context, credentials session.Credentials) (*sec.Principal, error) {
	f.mu.Lock()
	f.loginCalls++
	err := f.loginErr
	f.mu.Unlock()

	f.wait()
	if err != nil {
		return nil, err
	}
	role := credentials.Role
	if role == "" {
		role = sec.RoleAttendee
	}
	return &sec.Principal{
		ID:           "u-" + credentials.Email,
		Role:         role,
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeAPI) Refresh(_ context.Context, _ string) (*session.Renewal, error) {
	f.mu.Lock()
	f.refreshCalls++
	calls := f.refreshCalls
	err := f.refreshErr
	f.mu.Unlock()

	f.wait()
	if err != nil {
		return nil, err
	}
	return &session.Renewal{
		AccessToken: "access-renewed",
		ExpiresAt:   time.Now().Add(time.Duration(calls+1) * time.Hour),
	}, nil
}

func (f *fakeAPI) Logout(_ context.Context, _ *sec.Principal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	return nil
}

func (f *fakeAPI) counts() (login, refresh, logout int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls, f.refreshCalls, f.logoutCalls
}

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	events []session.Event
}

func (r *recorder) listen(event session.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) kinds() []session.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]session.EventKind, 0, len(r.events))
	for _, event := range r.events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}

func (r *recorder) last() session.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func newStore(api session.API, persister session.Persister) (*session.Store, *recorder) {
	store := session.NewStore(api, session.Options{Persister: persister, RetryDelay: time.Millisecond})
	events := &recorder{}
	store.Subscribe(events.listen)
	return store, events
}

var organizer = session.Credentials{Email: "ada@evently.test", Password: "secret", Role: sec.RoleOrganizer}

/*
TestStore_Login verifies that a successful login publishes a copy of the principal.
*/
func TestStore_Login(t *testing.T) {
	persister := session.NewMemoryPersister()
	store, events := newStore(&fakeAPI{}, persister)

	principal, err := store.Login(context.Background(), organizer)
	require.NoError(t, err)
	assert.Equal(t, sec.RoleOrganizer, principal.Role)
	assert.Equal(t, []session.EventKind{session.EventLoggedIn}, events.kinds())

	// Mutating the returned copy never touches the store
	principal.Role = sec.RoleAttendee
	assert.Equal(t, sec.RoleOrganizer, store.CurrentPrincipal().Role)

	saved, err := persister.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", saved.RefreshToken)
	assert.False(t, store.Pending())
}

/*
TestStore_LoginRejected verifies that bad credentials surface as an authentication error and change nothing.
*/
func TestStore_LoginRejected(t *testing.T) {
	store, events := newStore(&fakeAPI{loginErr: apperr.AuthenticationFailed("Invalid credentials")}, nil)

	principal, err := store.Login(context.Background(), organizer)
	assert.Nil(t, principal)
	assert.True(t, apperr.HasCode(err, apperr.CodeAuthenticationFailed))
	assert.Nil(t, store.CurrentPrincipal())
	assert.Empty(t, events.kinds())
}

/*
TestStore_LoginReplacesPrincipal verifies LoggedOut precedes LoggedIn when switching accounts.
*/
func TestStore_LoginReplacesPrincipal(t *testing.T) {
	store, events := newStore(&fakeAPI{}, nil)

	_, err := store.Login(context.Background(), organizer)
	require.NoError(t, err)
	_, err = store.Login(context.Background(), session.Credentials{Email: "bob", Password: "x", Role: sec.RoleAttendee})
	require.NoError(t, err)

	assert.Equal(t, []session.EventKind{session.EventLoggedIn, session.EventLoggedOut, session.EventLoggedIn}, events.kinds())
	assert.Equal(t, "u-bob", store.CurrentPrincipal().ID)
}

/*
TestStore_LogoutIdempotent verifies that a second logout emits nothing and calls nobody.
*/
func TestStore_LogoutIdempotent(t *testing.T) {
	api := &fakeAPI{}
	store, events := newStore(api, nil)

	_, err := store.Login(context.Background(), organizer)
	require.NoError(t, err)

	require.NoError(t, store.Logout(context.Background()))
	require.NoError(t, store.Logout(context.Background()))

	assert.Nil(t, store.CurrentPrincipal())
	assert.Equal(t, []session.EventKind{session.EventLoggedIn, session.EventLoggedOut}, events.kinds())

	_, _, logouts := api.counts()
	assert.Equal(t, 1, logouts)
}

/*
TestStore_Refresh verifies that a renewal keeps the identity and replaces the token.
*/
func TestStore_Refresh(t *testing.T) {
	store, events := newStore(&fakeAPI{}, nil)

	_, err := store.Login(context.Background(), organizer)
	require.NoError(t, err)

	require.NoError(t, store.Refresh(context.Background()))

	current := store.CurrentPrincipal()
	assert.Equal(t, "access-renewed", current.AccessToken)
	assert.Equal(t, "refresh-1", current.RefreshToken)
	assert.Equal(t, session.EventRefreshed, events.last().Kind)
}

/*
TestStore_RefreshExpired verifies that a rejected renewal logs out and reports SessionExpired without an error.
*/
func TestStore_RefreshExpired(t *testing.T) {
	api := &fakeAPI{}
	persister := session.NewMemoryPersister()
	store, events := newStore(api, persister)

	_, err := store.Login(context.Background(), organizer)
	require.NoError(t, err)

	api.mu.Lock()
	api.refreshErr = apperr.AuthenticationFailed("Refresh token was rejected")
	api.mu.Unlock()

	require.NoError(t, store.Refresh(context.Background()))

	assert.Nil(t, store.CurrentPrincipal())
	last := events.last()
	assert.Equal(t, session.EventExpired, last.Kind)
	assert.True(t, apperr.HasCode(last.Err, apperr.CodeSessionExpired))

	saved, err := persister.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, saved)

	// Rejections are not retried
	_, refreshes, _ := api.counts()
	assert.Equal(t, 1, refreshes)
}

/*
TestStore_RefreshNetworkRetries verifies that network failures are retried a bounded number of times.
*/
func TestStore_RefreshNetworkRetries(t *testing.T) {
	api := &fakeAPI{}
	store, events := newStore(api, nil)

	_, err := store.Login(context.Background(), organizer)
	require.NoError(t, err)

	api.mu.Lock()
	api.refreshErr = apperr.Network(errors.New("connection refused"))
	api.mu.Unlock()

	require.NoError(t, store.Refresh(context.Background()))

	_, refreshes, _ := api.counts()
	assert.Equal(t, 3, refreshes)
	assert.Equal(t, session.EventExpired, events.last().Kind)
}

/*
TestStore_RefreshCoalesced verifies that concurrent refreshes share one upstream call.
*/
func TestStore_RefreshCoalesced(t *testing.T) {
	api := &fakeAPI{}
	store, events := newStore(api, nil)

	_, err := store.Login(context.Background(), organizer)
	require.NoError(t, err)

	api.mu.Lock()
	api.gate = make(chan struct{})
	api.entered = make(chan struct{}, 1)
	api.mu.Unlock()

	var group sync.WaitGroup
	for range 5 {
		group.Add(1)
		go func() {
			defer group.Done()
			assert.NoError(t, store.Refresh(context.Background()))
		}()
	}

	<-api.entered
	assert.True(t, store.Pending())
	time.Sleep(50 * time.Millisecond)
	close(api.gate)
	group.Wait()

	_, refreshes, _ := api.counts()
	assert.Equal(t, 1, refreshes)
	assert.Equal(t, []session.EventKind{session.EventLoggedIn, session.EventRefreshed}, events.kinds())
}

/*
TestStore_CancelledCaller verifies that a cancelled caller stops waiting while the login still lands.
*/
func TestStore_CancelledCaller(t *testing.T) {
	api := &fakeAPI{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	store, events := newStore(api, nil)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := store.Login(ctx, organizer)
		result <- err
	}()

	<-api.entered
	cancel()
	assert.ErrorIs(t, <-result, context.Canceled)
	assert.True(t, store.Pending())

	close(api.gate)
	require.Eventually(t, func() bool { return store.CurrentPrincipal().Authenticated() }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !store.Pending() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []session.EventKind{session.EventLoggedIn}, events.kinds())
}

/*
TestStore_MutationsSerialized verifies that a logout issued during a pending login runs after it.
*/
func TestStore_MutationsSerialized(t *testing.T) {
	api := &fakeAPI{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	store, events := newStore(api, nil)

	loginDone := make(chan error, 1)
	go func() {
		_, err := store.Login(context.Background(), organizer)
		loginDone <- err
	}()
	<-api.entered

	logoutDone := make(chan error, 1)
	go func() {
		logoutDone <- store.Logout(context.Background())
	}()

	// The logout cannot complete while the login holds the slot
	select {
	case <-logoutDone:
		t.Fatal("logout finished before the pending login")
	case <-time.After(30 * time.Millisecond):
	}

	close(api.gate)
	require.NoError(t, <-loginDone)
	require.NoError(t, <-logoutDone)

	assert.Nil(t, store.CurrentPrincipal())
	assert.Equal(t, []session.EventKind{session.EventLoggedIn, session.EventLoggedOut}, events.kinds())
}

/*
TestStore_Restore verifies that a persisted session is renewed and announced as LoggedIn.
*/
func TestStore_Restore(t *testing.T) {
	persister := session.NewMemoryPersister()
	require.NoError(t, persister.Save(context.Background(), &sec.Principal{
		ID: "u-1", Role: sec.RoleAttendee, AccessToken: "stale", RefreshToken: "refresh-1",
	}))

	store, events := newStore(&fakeAPI{}, persister)
	require.NoError(t, store.Restore(context.Background()))

	current := store.CurrentPrincipal()
	require.NotNil(t, current)
	assert.Equal(t, "u-1", current.ID)
	assert.Equal(t, "access-renewed", current.AccessToken)
	assert.Equal(t, []session.EventKind{session.EventLoggedIn}, events.kinds())
}

/*
TestStore_RestoreDiscarded verifies that an unrenewable persisted session is dropped quietly.
*/
func TestStore_RestoreDiscarded(t *testing.T) {
	persister := session.NewMemoryPersister()
	require.NoError(t, persister.Save(context.Background(), &sec.Principal{ID: "u-1", Role: sec.RoleAttendee, RefreshToken: "revoked"}))

	store, events := newStore(&fakeAPI{refreshErr: apperr.AuthenticationFailed("revoked")}, persister)
	require.NoError(t, store.Restore(context.Background()))

	assert.Nil(t, store.CurrentPrincipal())
	assert.Empty(t, events.kinds())

	saved, _ := persister.Load(context.Background())
	assert.Nil(t, saved)
}

// fixedInspector returns the same claims for every token.
type fixedInspector struct {
	claims *sec.AuthClaims
}

func (f fixedInspector) Inspect(string) (*sec.AuthClaims, error) {
	return f.claims, nil
}

/*
TestStore_InspectorMismatch verifies that a token issued to another account is rejected.
*/
func TestStore_InspectorMismatch(t *testing.T) {
	store := session.NewStore(&fakeAPI{}, session.Options{
		Inspector: fixedInspector{claims: &sec.AuthClaims{UserID: "someone-else", Role: "organizer"}},
	})

	_, err := store.Login(context.Background(), organizer)
	assert.True(t, apperr.HasCode(err, apperr.CodeAuthenticationFailed))
	assert.Nil(t, store.CurrentPrincipal())
}

/*
TestStore_DueForRefresh covers the auto-refresh trigger window.
*/
func TestStore_DueForRefresh(t *testing.T) {
	store, _ := newStore(&fakeAPI{}, nil)
	now := time.Now()
	assert.False(t, store.DueForRefresh(now, time.Minute))

	_, err := store.Login(context.Background(), organizer)
	require.NoError(t, err)

	assert.False(t, store.DueForRefresh(now, time.Minute))
	assert.True(t, store.DueForRefresh(now, 2*time.Hour))
}

/*
TestStore_SubscribeCancel verifies that a cancelled listener receives nothing further.
*/
func TestStore_SubscribeCancel(t *testing.T) {
	store := session.NewStore(&fakeAPI{}, session.Options{})
	events := &recorder{}
	cancel := store.Subscribe(events.listen)
	cancel()
	cancel()

	_, err := store.Login(context.Background(), organizer)
	require.NoError(t, err)
	assert.Empty(t, events.kinds())
}
