// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"sync"
	"time"

	"github.com/taibuivan/evently/internal/platform/sec"
)

// Persister keeps the signed-in session across process restarts.
//
// Load returns (nil, nil) when nothing is stored.
type Persister interface {
	Save(ctx context.Context, principal *sec.Principal) error
	Load(ctx context.Context) (*sec.Principal, error)
	Clear(ctx context.Context) error
}

// record is the stored form of a principal. Unlike [sec.Principal] it keeps the tokens.
type record struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Role         string    `json:"role"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func toRecord(principal *sec.Principal) record {
	return record{
		ID:           principal.ID,
		Name:         principal.Name,
		Role:         principal.Role.String(),
		AccessToken:  principal.AccessToken,
		RefreshToken: principal.RefreshToken,
		ExpiresAt:    principal.ExpiresAt,
	}
}

func (r record) principal() *sec.Principal {
	return &sec.Principal{
		ID:           r.ID,
		Name:         r.Name,
		Role:         sec.ParseRole(r.Role),
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    r.ExpiresAt,
	}
}

// MemoryPersister keeps the session in process memory. It is the default when
// no Redis is configured, and what tests use.
type MemoryPersister struct {
	mu    sync.Mutex
	saved *sec.Principal
}

// NewMemoryPersister creates an empty in-memory persister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

func (m *MemoryPersister) Save(_ context.Context, principal *sec.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = principal.Clone()
	return nil
}

func (m *MemoryPersister) Load(_ context.Context) (*sec.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved.Clone(), nil
}

func (m *MemoryPersister) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = nil
	return nil
}
