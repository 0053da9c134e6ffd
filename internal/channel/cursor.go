// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package channel

import (
	"context"
	"sync"
)

// CursorStore remembers the last delivered sequence number per user and thread,
// so replays after a restart start where delivery stopped.
type CursorStore interface {
	Load(ctx context.Context, userID string) (map[string]uint64, error)
	Save(ctx context.Context, userID, threadID string, seq uint64) error
}

// MemoryCursorStore keeps cursors for the lifetime of the process.
type MemoryCursorStore struct {
	mu      sync.Mutex
	cursors map[string]map[string]uint64
}

// NewMemoryCursorStore creates an empty store.
func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{cursors: make(map[string]map[string]uint64)}
}

func (m *MemoryCursorStore) Load(_ context.Context, userID string) (map[string]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[string]uint64, len(m.cursors[userID]))
	for threadID, seq := range m.cursors[userID] {
		result[threadID] = seq
	}
	return result, nil
}

// Save never moves a cursor backwards.
func (m *MemoryCursorStore) Save(_ context.Context, userID, threadID string, seq uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	threads, ok := m.cursors[userID]
	if !ok {
		threads = make(map[string]uint64)
		m.cursors[userID] = threads
	}
	if seq > threads[threadID] {
		threads[threadID] = seq
	}
	return nil
}
