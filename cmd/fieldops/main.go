// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/olegiv/fieldops-go/internal/backend"
	"github.com/olegiv/fieldops-go/internal/cache"
	"github.com/olegiv/fieldops-go/internal/config"
	"github.com/olegiv/fieldops-go/internal/geofence"
	"github.com/olegiv/fieldops-go/internal/geoip"
	"github.com/olegiv/fieldops-go/internal/handler/api"
	"github.com/olegiv/fieldops-go/internal/logging"
	"github.com/olegiv/fieldops-go/internal/outbox"
	"github.com/olegiv/fieldops-go/internal/overview"
	"github.com/olegiv/fieldops-go/internal/scheduler"
	"github.com/olegiv/fieldops-go/internal/snapshot"
	"github.com/olegiv/fieldops-go/internal/store"
	"github.com/olegiv/fieldops-go/internal/version"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

func main() {
	// Parse CLI flags
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "fieldops - field operations sync service\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  FIELDOPS_BACKEND_URL      Base URL of the main REST backend (required)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  FIELDOPS_BACKEND_TOKEN    Bearer token for upstream requests (required)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  FIELDOPS_DB_PATH          SQLite database path (default: ./data/fieldops.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  FIELDOPS_SERVER_PORT      Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  FIELDOPS_ENV              Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  FIELDOPS_REDIS_URL        Redis URL for distributed snapshot caching (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  FIELDOPS_GEOIP_DB_PATH    GeoLite2-Country.mmdb path (optional)\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if *showVersion {
		info := version.Info{Version: appVersion, GitCommit: appGitCommit, BuildTime: appBuildTime}
		fmt.Println(info.String())
		os.Exit(0)
	}

	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	versionInfo := &version.Info{
		Version:   appVersion,
		GitCommit: appGitCommit,
		BuildTime: appBuildTime,
	}

	// Setup logger
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Ensure data directory exists
	dbDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	// Initialize database
	slog.Info("initializing database", "path", cfg.DBPath)
	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}(db)

	slog.Info("running database migrations")
	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database ready")

	// Upgrade logger to also write WARN and ERROR logs to the event log table
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	eventLogHandler := logging.NewEventLogHandler(textHandler, db)
	logger = slog.New(eventLogHandler)
	slog.SetDefault(logger)
	slog.Info("event log integration enabled", "min_level", "warn")

	// Seed the default org and API key if requested
	ctx := context.Background()
	if err := store.Seed(ctx, db, cfg.DoSeed); err != nil {
		return fmt.Errorf("seeding database: %w", err)
	}

	// Snapshot cache: Redis when configured, in-process memory otherwise
	snapCache, err := cache.New(cache.Config{
		RedisURL:   cfg.RedisURL,
		Prefix:     cfg.CachePrefix,
		DefaultTTL: time.Duration(cfg.CacheTTL) * time.Second,
		MaxSize:    cfg.CacheMaxSize,
	})
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}
	defer func() {
		if err := snapCache.Close(); err != nil {
			slog.Error("error closing cache", "error", err)
		}
	}()
	slog.Info("cache initialized", "redis", cfg.UseRedisCache())

	// GeoIP country lookup for device context (optional)
	geo := geoip.NewLookup()
	if cfg.GeoIPEnabled() {
		if err := geo.Init(cfg.GeoIPDBPath); err != nil {
			slog.Warn("geoip disabled", "path", cfg.GeoIPDBPath, "error", err)
		} else {
			slog.Info("geoip enabled", "path", cfg.GeoIPDBPath)
			defer func() { _ = geo.Close() }()
		}
	}

	// Upstream backend client and domain services
	client := backend.New(cfg.BackendURL, cfg.BackendToken, cfg.HTTPTimeout, logger)
	queries := store.New(db)
	outboxSvc := outbox.NewService(queries, client, int64(cfg.SyncBatchSize), logger)
	overviewSvc := overview.NewService(client, logger)
	snapshots := snapshot.NewStore(snapCache, client, time.Duration(cfg.CacheTTL)*time.Second, logger)

	// Background jobs: outbox delivery, snapshot refresh, log retention
	sched := scheduler.New(db, outboxSvc, snapshots, geo, scheduler.Config{
		SyncSchedule:     cfg.SyncSchedule,
		SnapshotSchedule: cfg.SnapshotSchedule,
	}, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	apiHandler := api.NewHandler(api.HandlerConfig{
		DB:        db,
		Backend:   client,
		Outbox:    outboxSvc,
		Overview:  overviewSvc,
		Snapshots: snapshots,
		Geo:       geo,
		FenceOpts: geofence.Options{PointsAsCircles: true, PointRadius: cfg.PointRadius},
		Logger:    logger,
	})

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(chimw.GetHead) // Handle HEAD requests for uptime monitoring

	r.Mount("/api/v1", apiHandler.Routes(db))
	slog.Info("REST API v1 mounted at /api/v1")

	// Create server with appropriate timeouts
	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		slog.Info("starting server",
			"addr", cfg.ServerAddr(),
			"env", cfg.Env,
			"version", versionInfo.Version,
			"commit", versionInfo.GitCommit)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
