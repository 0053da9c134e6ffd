// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (SessionStore, ChannelManager) via constructors.
  - Zero Hidden State: No global variables are used to store config.

Two schemas live here: [Config] for the web gateway and [SandboxConfig] for the
local Session API / channel sandbox.
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Evently web gateway.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Upstream Session API (login / refresh / logout)
	SessionAPIURL string `env:"SESSION_API_URL,required,notEmpty"`

	// Upstream realtime channel (websocket)
	ChannelURL string `env:"CHANNEL_URL,required,notEmpty"`

	// JWTPubKeyPath optionally verifies access token signatures. When empty,
	// claims are read without verification.
	JWTPubKeyPath string `env:"JWT_PUBLIC_KEY_PATH"`

	// Key-Value Cache (Redis), used to persist the session across restarts
	RedisURL string `env:"REDIS_URL"`

	// Relational Database (PostgreSQL), used to persist channel cursors
	DatabaseURL string `env:"DATABASE_URL"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Realtime channel retry budget
	ChannelMaxAttempts int           `env:"CHANNEL_MAX_ATTEMPTS" envDefault:"8"`
	ChannelBaseDelay   time.Duration `env:"CHANNEL_BASE_DELAY"   envDefault:"1s"`
	ChannelMaxDelay    time.Duration `env:"CHANNEL_MAX_DELAY"    envDefault:"30s"`

	// RefreshLead is how long before expiry the session is silently renewed.
	RefreshLead time.Duration `env:"REFRESH_LEAD" envDefault:"1m"`

	// InboxThreadLimit caps the messages kept per thread for the Messages view.
	InboxThreadLimit int `env:"INBOX_THREAD_LIMIT" envDefault:"200"`

	// Cross-Origin Resource Sharing
	AllowedOriginSuffix string `env:"ALLOWED_ORIGIN_SUFFIX" envDefault:"evently.app"`
}

// SandboxConfig holds the configuration of the local Session API and channel sandbox.
type SandboxConfig struct {
	ServerPort  string `env:"SANDBOX_PORT" envDefault:"9090"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// AccessTokenTTL is the lifetime of issued access tokens.
	AccessTokenTTL time.Duration `env:"SANDBOX_ACCESS_TOKEN_TTL" envDefault:"15m"`

	// RefreshTokenTTL is the lifetime of issued refresh tokens.
	RefreshTokenTTL time.Duration `env:"SANDBOX_REFRESH_TOKEN_TTL" envDefault:"720h"`

	// ReplayRetention is the number of messages retained per thread for replay.
	ReplayRetention int `env:"SANDBOX_REPLAY_RETENTION" envDefault:"500"`

	// SeedPassword is the password of the seeded attendee and organizer accounts.
	SeedPassword string `env:"SANDBOX_SEED_PASSWORD" envDefault:"evently-sandbox"`

	// JWTPrivateKeyPath signs access tokens. When empty a key is generated at startup.
	JWTPrivateKeyPath string `env:"JWT_PRIVATE_KEY_PATH"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadSandbox parses environment variables into a [SandboxConfig] struct.
func LoadSandbox() (*SandboxConfig, error) {
	cfg := &SandboxConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse sandbox environment variables: %w", err)
	}
	return cfg, nil
}

// validate rejects combinations the struct tags cannot express.
func (c *Config) validate() error {
	if c.ChannelMaxAttempts < 1 {
		return fmt.Errorf("config: CHANNEL_MAX_ATTEMPTS must be at least 1, got %d", c.ChannelMaxAttempts)
	}
	if c.ChannelBaseDelay <= 0 || c.ChannelMaxDelay < c.ChannelBaseDelay {
		return fmt.Errorf("config: channel delays must satisfy 0 < CHANNEL_BASE_DELAY <= CHANNEL_MAX_DELAY")
	}
	if !strings.HasPrefix(c.ChannelURL, "ws://") && !strings.HasPrefix(c.ChannelURL, "wss://") {
		return fmt.Errorf("config: CHANNEL_URL must use the ws:// or wss:// scheme")
	}
	return nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// OriginAllowed reports whether a non-development origin may call the gateway.
func (c *Config) OriginAllowed(origin string) bool {
	return c.AllowedOriginSuffix != "" && strings.HasSuffix(origin, c.AllowedOriginSuffix)
}
