// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package config loads controller configuration from the process
// environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the controller's runtime configuration.
type Config struct {
	// Host is the bind host for the HTTP server.
	Host string

	// Port is the bind port for the HTTP server.
	Port int

	// Debug enables verbose logging.
	Debug bool

	// AuthSecret signs issued bearer tokens. An empty secret disables auth
	// entirely.
	AuthSecret string

	// AuthTokenExpiration is the token TTL. Non-positive means no expiry.
	AuthTokenExpiration time.Duration

	// CollectorAddr is the external batch-system collector address.
	CollectorAddr string

	// CacheTimeout is the minimum interval between snapshot refreshes.
	CacheTimeout time.Duration

	// CollectorQueryCmd is the subprocess invoked to query the collector for
	// jobs, when the CollectorAdapter implementation is used.
	CollectorQueryCmd string

	// TokenFetchCmd is the subprocess invoked to fetch a startd token.
	TokenFetchCmd string

	// ClientIdleTTL, if positive, drops a site from the registry after it
	// has gone this long without an upsert. Zero (the default) never drops
	// a site, per the spec's "no eviction" design note.
	ClientIdleTTL time.Duration
}

// NewDefault returns a Config populated with sensible defaults, then
// overlaid with whatever is present in the process environment.
func NewDefault() *Config {
	c := &Config{
		Host:                "0.0.0.0",
		Port:                8080,
		Debug:               false,
		AuthSecret:          "",
		AuthTokenExpiration: time.Hour,
		CollectorAddr:       "",
		CacheTimeout:        60 * time.Second,
		CollectorQueryCmd:   "",
		TokenFetchCmd:       "",
		ClientIdleTTL:       0,
	}
	c.Load()
	return c
}

// Load overlays environment variables onto c, leaving fields untouched when
// their variable is unset or unparsable.
func (c *Config) Load() {
	if v := os.Getenv("GLIDEIN_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("GLIDEIN_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			c.Port = i
		}
	}
	if v := os.Getenv("GLIDEIN_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
	if v := os.Getenv("GLIDEIN_AUTH_SECRET"); v != "" {
		c.AuthSecret = v
	}
	if v := os.Getenv("GLIDEIN_AUTH_TOKEN_EXPIRATION"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			c.AuthTokenExpiration = time.Duration(i) * time.Second
		}
	}
	if v := os.Getenv("GLIDEIN_COLLECTOR_ADDR"); v != "" {
		c.CollectorAddr = v
	}
	if v := os.Getenv("GLIDEIN_CACHE_TIMEOUT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			c.CacheTimeout = time.Duration(i) * time.Second
		}
	}
	if v := os.Getenv("GLIDEIN_COLLECTOR_QUERY_CMD"); v != "" {
		c.CollectorQueryCmd = v
	}
	if v := os.Getenv("GLIDEIN_TOKEN_FETCH_CMD"); v != "" {
		c.TokenFetchCmd = v
	}
	if v := os.Getenv("GLIDEIN_CLIENT_IDLE_TTL"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			c.ClientIdleTTL = time.Duration(i) * time.Second
		}
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.CacheTimeout <= 0 {
		return ErrInvalidCacheTimeout
	}
	return nil
}

// AuthEnabled reports whether bearer-token authentication is active.
func (c *Config) AuthEnabled() bool {
	return c.AuthSecret != ""
}
