// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package ctxutil carries per-request values (correlation id, logger,
// principal snapshot) through [context.Context].
//
// Keys are an unexported type so no other package can read or overwrite them.
package ctxutil

import (
	"context"
	"log/slog"

	"github.com/taibuivan/evently/internal/platform/sec"
)

type key uint8

const (
	requestIDKey key = iota
	loggerKey
	principalKey
)

// lookup returns the typed value stored under k, or the zero value.
func lookup[T any](ctx context.Context, k key) (T, bool) {
	value, ok := ctx.Value(k).(T)
	return value, ok
}

// # Request Tracing

// WithRequestID attaches the correlation id of the request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the correlation id, or "" outside a request.
func GetRequestID(ctx context.Context) string {
	id, _ := lookup[string](ctx, requestIDKey)
	return id
}

// # Structured Logging

// WithLogger attaches the request-scoped logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// GetLogger returns the request-scoped logger, falling back to [slog.Default].
func GetLogger(ctx context.Context) *slog.Logger {
	if logger, ok := lookup[*slog.Logger](ctx, loggerKey); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// # Identity

// WithPrincipal attaches the principal snapshot taken when the request arrived.
// Later session changes do not alter it.
func WithPrincipal(ctx context.Context, principal *sec.Principal) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// GetPrincipal returns the principal snapshot, or nil for anonymous requests.
func GetPrincipal(ctx context.Context) *sec.Principal {
	principal, _ := lookup[*sec.Principal](ctx, principalKey)
	return principal
}
