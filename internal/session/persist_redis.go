// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/evently/internal/platform/constants"
	"github.com/taibuivan/evently/internal/platform/sec"
)

// RedisPersister stores the session as one JSON value with a TTL.
type RedisPersister struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisPersister creates a persister under the gateway's session namespace.
// instance distinguishes gateways sharing one Redis.
func NewRedisPersister(client *redis.Client, instance string) *RedisPersister {
	return &RedisPersister{
		client: client,
		key:    constants.RedisPrefixSession + instance,
		ttl:    constants.SessionPersistTTL,
	}
}

// Save implements [Persister].
func (p *RedisPersister) Save(ctx context.Context, principal *sec.Principal) error {
	if principal == nil {
		return p.Clear(ctx)
	}

	payload, err := json.Marshal(toRecord(principal))
	if err != nil {
		return fmt.Errorf("session_persist_encode_failed: %w", err)
	}

	if err := p.client.Set(ctx, p.key, payload, p.ttl).Err(); err != nil {
		return fmt.Errorf("session_persist_save_failed: %w", err)
	}
	return nil
}

// Load implements [Persister].
func (p *RedisPersister) Load(ctx context.Context) (*sec.Principal, error) {
	payload, err := p.client.Get(ctx, p.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session_persist_load_failed: %w", err)
	}

	var stored record
	if err := json.Unmarshal(payload, &stored); err != nil {
		// A corrupt entry is as good as none.
		_ = p.client.Del(ctx, p.key).Err()
		return nil, nil
	}
	return stored.principal(), nil
}

// Clear implements [Persister].
func (p *RedisPersister) Clear(ctx context.Context) error {
	if err := p.client.Del(ctx, p.key).Err(); err != nil {
		return fmt.Errorf("session_persist_clear_failed: %w", err)
	}
	return nil
}
