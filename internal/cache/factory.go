// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"time"
)

// Config selects and tunes the cache backend.
type Config struct {
	// RedisURL enables the Redis backend when non-empty.
	RedisURL string

	// Prefix namespaces Redis keys.
	Prefix string

	// DefaultTTL applies when a Set passes zero.
	DefaultTTL time.Duration

	// MaxSize caps memory-cache entries (0 = unlimited).
	MaxSize int

	// CleanupInterval is the memory-cache expiry sweep interval.
	CleanupInterval time.Duration
}

// DefaultConfig returns the memory-backend defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:      5 * time.Minute,
		MaxSize:         10000,
		CleanupInterval: time.Minute,
	}
}

// New creates the configured backend: Redis when a URL is set, otherwise
// in-memory. A Redis connection failure is returned, not silently
// downgraded, so a misconfigured deployment is visible at startup.
func New(cfg Config) (Cacher, error) {
	if cfg.RedisURL != "" {
		opts := DefaultRedisCacheOptions()
		opts.URL = cfg.RedisURL
		if cfg.Prefix != "" {
			opts.Prefix = cfg.Prefix
		}
		if cfg.DefaultTTL > 0 {
			opts.DefaultTTL = cfg.DefaultTTL
		}
		return NewRedisCache(opts)
	}

	return NewMemoryCache(MemoryCacheOptions{
		DefaultTTL:      cfg.DefaultTTL,
		MaxSize:         cfg.MaxSize,
		CleanupInterval: cfg.CleanupInterval,
	}), nil
}
