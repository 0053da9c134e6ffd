// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/taibuivan/evently/internal/platform/apperr"
	"github.com/taibuivan/evently/internal/platform/sec"
	"github.com/taibuivan/evently/pkg/uuidv7"
)

// # Accounts

// Account is a sandbox user.
type Account struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	Name         string       `json:"name"`
	Role         sec.UserRole `json:"role"`
	PasswordHash string       `json:"-"`
}

// SeedEmails are the accounts every sandbox starts with.
var SeedEmails = map[sec.UserRole]string{
	sec.RoleAttendee:  "attendee@evently.test",
	sec.RoleOrganizer: "organizer@evently.test",
}

// AccountStore keeps accounts in memory, keyed by lower-cased email.
type AccountStore struct {
	mu      sync.RWMutex
	byEmail map[string]*Account
	byID    map[string]*Account
}

// NewAccountStore creates a store seeded with one attendee and one organizer
// sharing password.
func NewAccountStore(password string) (*AccountStore, error) {
	store := &AccountStore{
		byEmail: make(map[string]*Account),
		byID:    make(map[string]*Account),
	}

	seeds := []struct {
		role sec.UserRole
		name string
	}{
		{sec.RoleAttendee, "Avery Attendee"},
		{sec.RoleOrganizer, "Oren Organizer"},
	}
	for _, seed := range seeds {
		if _, err := store.Create(SeedEmails[seed.role], password, seed.name, seed.role); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// Create registers a new account.
func (store *AccountStore) Create(email, password, name string, role sec.UserRole) (*Account, error) {
	if !role.CanSignIn() {
		return nil, apperr.ValidationError("Role cannot sign in", apperr.FieldError{Field: "role", Message: "must be attendee or organizer"})
	}

	hashedPassword, err := sec.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("sandbox_account_hash_failed: %w", err)
	}

	key := strings.ToLower(strings.TrimSpace(email))

	store.mu.Lock()
	defer store.mu.Unlock()

	if _, exists := store.byEmail[key]; exists {
		return nil, apperr.ValidationError("Email is already registered")
	}

	account := &Account{
		ID:           uuidv7.New(),
		Email:        key,
		Name:         name,
		Role:         role,
		PasswordHash: hashedPassword,
	}
	store.byEmail[key] = account
	store.byID[account.ID] = account
	return account, nil
}

// FindByEmail returns the account registered under email.
func (store *AccountStore) FindByEmail(_ context.Context, email string) (*Account, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	account, ok := store.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, apperr.NotFound("Account")
	}
	copied := *account
	return &copied, nil
}

// FindByID returns the account with id.
func (store *AccountStore) FindByID(_ context.Context, id string) (*Account, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	account, ok := store.byID[id]
	if !ok {
		return nil, apperr.NotFound("Account")
	}
	copied := *account
	return &copied, nil
}

// # Refresh Grants

// grant is a stored refresh token. Only its hash is kept.
type grant struct {
	userID    string
	expiresAt time.Time
}

// GrantStore tracks live refresh tokens.
type GrantStore struct {
	mu     sync.Mutex
	grants map[string]grant
	now    func() time.Time
}

// NewGrantStore creates an empty grant store.
func NewGrantStore() *GrantStore {
	return &GrantStore{grants: make(map[string]grant), now: time.Now}
}

// Put stores the hash of refreshToken.
func (store *GrantStore) Put(refreshToken, userID string, expiresAt time.Time) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.grants[sec.HashToken(refreshToken)] = grant{userID: userID, expiresAt: expiresAt}
}

// Take removes refreshToken and returns its owner. Expired and unknown tokens
// report false.
func (store *GrantStore) Take(refreshToken string) (string, bool) {
	store.mu.Lock()
	defer store.mu.Unlock()

	tokenHash := sec.HashToken(refreshToken)
	stored, ok := store.grants[tokenHash]
	if !ok {
		return "", false
	}
	delete(store.grants, tokenHash)

	if !store.now().Before(stored.expiresAt) {
		return "", false
	}
	return stored.userID, true
}
