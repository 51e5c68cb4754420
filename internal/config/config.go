// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBPath     string `env:"FIELDOPS_DB_PATH" envDefault:"./data/fieldops.db"`
	ServerHost string `env:"FIELDOPS_SERVER_HOST" envDefault:"localhost"`
	ServerPort int    `env:"FIELDOPS_SERVER_PORT" envDefault:"8080"`
	Env        string `env:"FIELDOPS_ENV" envDefault:"development"`
	LogLevel   string `env:"FIELDOPS_LOG_LEVEL" envDefault:"info"`

	// Upstream backend configuration
	BackendURL   string        `env:"FIELDOPS_BACKEND_URL,required"`   // Base URL of the main REST backend
	BackendToken string        `env:"FIELDOPS_BACKEND_TOKEN,required"` // Bearer token for upstream requests
	HTTPTimeout  time.Duration `env:"FIELDOPS_HTTP_TIMEOUT" envDefault:"30s"`

	// Outbox sync configuration
	SyncBatchSize    int    `env:"FIELDOPS_SYNC_BATCH_SIZE" envDefault:"50"`            // Rows per sync batch
	SyncSchedule     string `env:"FIELDOPS_SYNC_SCHEDULE" envDefault:"* * * * *"`       // Cron spec for automatic sync
	SnapshotSchedule string `env:"FIELDOPS_SNAPSHOT_SCHEDULE" envDefault:"*/5 * * * *"` // Cron spec for list snapshot refresh

	// Cache configuration
	RedisURL     string `env:"FIELDOPS_REDIS_URL"`                           // Optional Redis URL for distributed caching
	CachePrefix  string `env:"FIELDOPS_CACHE_PREFIX" envDefault:"fieldops:"` // Redis key prefix
	CacheTTL     int    `env:"FIELDOPS_CACHE_TTL" envDefault:"300"`          // Default cache TTL in seconds
	CacheMaxSize int    `env:"FIELDOPS_CACHE_MAX_SIZE" envDefault:"10000"`   // Max memory cache entries

	// GeoIP configuration
	GeoIPDBPath string `env:"FIELDOPS_GEOIP_DB_PATH"` // Path to GeoLite2-Country.mmdb file

	// Geofence configuration
	PointRadius float64 `env:"FIELDOPS_POINT_RADIUS" envDefault:"25"` // Display buffer for bare points, meters

	// Seeding configuration
	DoSeed bool `env:"FIELDOPS_DO_SEED" envDefault:"false"` // Enable default org/API key seeding
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// GeoIPEnabled returns true if GeoIP database is configured.
func (c Config) GeoIPEnabled() bool {
	return c.GeoIPDBPath != ""
}

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	u, err := url.Parse(cfg.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("FIELDOPS_BACKEND_URL must be an absolute URL, got %q", cfg.BackendURL)
	}

	if cfg.SyncBatchSize <= 0 {
		return nil, fmt.Errorf("FIELDOPS_SYNC_BATCH_SIZE must be positive, got %d", cfg.SyncBatchSize)
	}
	if cfg.PointRadius <= 0 {
		return nil, fmt.Errorf("FIELDOPS_POINT_RADIUS must be positive, got %v", cfg.PointRadius)
	}

	return cfg, nil
}
