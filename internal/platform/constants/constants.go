// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, rate limits, navigation targets and cross-cutting
keys that are shared between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Rate Limiting: Burst capacities and IP tracking TTLs.
  - Navigation: Login and no-access redirect targets.
  - Realtime: Channel keepalive timing.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "evently-web"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Rate Limiting

const (
	// DefaultRateLimitRPS is the requests per second allowed per IP.
	DefaultRateLimitRPS = 100.0

	// DefaultRateLimitBurst is the maximum burst allowed for the rate limiter.
	DefaultRateLimitBurst = 150

	// RateLimitCleanupInterval is how often old IP entries are removed from memory.
	RateLimitCleanupInterval = 1 * time.Minute

	// RateLimitClientTTL is how long a client must be idle before its entry is deleted.
	RateLimitClientTTL = 3 * time.Minute
)

// # Authentication

const (
	// AuthIssuer is the standard 'iss' claim in JWTs.
	AuthIssuer = "evently.app"

	// SessionAPITimeout bounds every call to the upstream Session API.
	SessionAPITimeout = 10 * time.Second

	// SessionPersistTTL is how long a persisted session survives without renewal.
	SessionPersistTTL = 30 * 24 * time.Hour

	// AutoRefreshInterval is how often the auto-refresh loop checks expiry.
	AutoRefreshInterval = 15 * time.Second
)

// # Navigation Targets

const (
	// PathLogin is the generic login chooser.
	PathLogin = "/login"

	// PathLoginPrefix prefixes role-specific login pages (e.g. /login/attendee).
	PathLoginPrefix = "/login/"

	// PathNoAccess is rendered when the principal's role is not permitted.
	PathNoAccess = "/no-access"

	// PathDashboard is the role-dispatched landing page after login.
	PathDashboard = "/dashboard"
)

// # Realtime Channel

const (
	// ChannelWriteTimeout bounds a single frame write.
	ChannelWriteTimeout = 10 * time.Second

	// ChannelPongTimeout is how long the connection may stay silent before it is considered lost.
	ChannelPongTimeout = 60 * time.Second

	// ChannelPingInterval is how often keepalive pings are sent.
	ChannelPingInterval = 30 * time.Second

	// ChannelHandshakeTimeout bounds the websocket upgrade.
	ChannelHandshakeTimeout = 10 * time.Second

	// CursorSaveTimeout bounds a single cursor persistence call.
	CursorSaveTimeout = 2 * time.Second

	// LiveSendBuffer is the per-browser outbound queue of the live feed.
	LiveSendBuffer = 64
)

// # JSON Field Identifiers

const (
	FieldData    = "data"
	FieldError   = "error"
	FieldCode    = "code"
	FieldDetails = "details"
	FieldMessage = "message"
	FieldStatus  = "status"
	FieldApp     = "app"
	FieldVersion = "version"
	FieldChecks  = "checks"
)

// # Input Limits

const (
	// MaxPasswordLength matches the 72 bytes bcrypt hashes without truncation.
	MaxPasswordLength = 72

	// MaxThreadIDLength bounds channel thread identifiers.
	MaxThreadIDLength = 128
)

// # HTTP Headers

const (
	HeaderXRequestID    = "X-Request-ID"
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderOrigin        = "Origin"
	HeaderAuthorization = "Authorization"

	// BearerPrefix precedes the access token in the Authorization header.
	BearerPrefix = "Bearer "
)

// # Database Schemas

const (
	SchemaRealtime = "realtime"
)

// # Redis Prefixes (Cache Taxonomy)

const (
	RedisPrefixSession = "evently:session:"
)
