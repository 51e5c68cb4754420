// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler runs the background jobs: periodic outbox delivery,
// snapshot refresh, event log retention and GeoIP database reload.
package scheduler

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/olegiv/fieldops-go/internal/geoip"
	"github.com/olegiv/fieldops-go/internal/outbox"
	"github.com/olegiv/fieldops-go/internal/snapshot"
	"github.com/olegiv/fieldops-go/internal/store"
)

// EventRetention is how long event log rows are kept.
const EventRetention = 30 * 24 * time.Hour

// jobTimeout bounds one run of any scheduled job.
const jobTimeout = 5 * time.Minute

// Config holds the cron schedules, validated at startup.
type Config struct {
	// SyncSchedule drives outbox delivery passes.
	SyncSchedule string
	// SnapshotSchedule drives list snapshot refreshes.
	SnapshotSchedule string
}

// Scheduler owns the cron runner and the jobs it drives.
type Scheduler struct {
	queries   *store.Queries
	outbox    *outbox.Service
	snapshots *snapshot.Store
	geo       *geoip.Lookup
	cron      *cron.Cron
	cfg       Config
	logger    *slog.Logger
}

// New creates a scheduler. geo may be nil when GeoIP is not configured.
func New(db *sql.DB, ob *outbox.Service, snapshots *snapshot.Store, geo *geoip.Lookup, cfg Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		queries:   store.New(db),
		outbox:    ob,
		snapshots: snapshots,
		geo:       geo,
		cron:      cron.New(),
		cfg:       cfg,
		logger:    logger,
	}
}

// Start registers the jobs and begins the cron runner.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.SyncSchedule, s.runOutboxSync); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.cfg.SnapshotSchedule, s.runSnapshotRefresh); err != nil {
		return err
	}
	// Purge old event log rows nightly.
	if _, err := s.cron.AddFunc("0 3 * * *", s.runEventPurge); err != nil {
		return err
	}
	if s.geo != nil && s.geo.IsEnabled() {
		// Pick up replaced GeoIP database files.
		if _, err := s.cron.AddFunc("0 * * * *", s.runGeoIPReload); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		"jobs", len(s.cron.Entries()),
		"sync_schedule", s.cfg.SyncSchedule,
		"snapshot_schedule", s.cfg.SnapshotSchedule)
	return nil
}

// Stop gracefully stops the scheduler, waiting for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// runOutboxSync replays queued events for every org that has any.
func (s *Scheduler) runOutboxSync() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	orgs, err := s.queries.ListOutboxOrgs(ctx)
	if err != nil {
		s.logger.Error("listing orgs with queued events", "category", "outbox", "error", err)
		return
	}

	for _, org := range orgs {
		result, err := s.outbox.Sync(ctx, org)
		if err != nil {
			s.logger.Error("scheduled outbox sync", "category", "outbox", "org_id", org, "error", err)
			continue
		}
		if result.Scanned > 0 {
			s.logger.Info("scheduled outbox sync",
				"category", "outbox",
				"org_id", org,
				"scanned", result.Scanned,
				"synced", result.Synced,
				"failed", result.Failed)
		}
	}
}

// runSnapshotRefresh refreshes cached list snapshots for every org that
// holds an active API key.
func (s *Scheduler) runSnapshotRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	orgs, err := s.queries.ListActiveAPIKeyOrgs(ctx)
	if err != nil {
		s.logger.Error("listing orgs for snapshot refresh", "category", "sync", "error", err)
		return
	}

	for _, org := range orgs {
		refreshed, failed := s.snapshots.RefreshAll(ctx, org)
		if failed > 0 {
			s.logger.Warn("scheduled snapshot refresh incomplete",
				"category", "sync",
				"org_id", org,
				"refreshed", refreshed,
				"failed", failed)
		}
	}
}

func (s *Scheduler) runEventPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	cutoff := time.Now().Add(-EventRetention)
	if err := s.queries.DeleteOldEvents(ctx, cutoff); err != nil {
		s.logger.Error("purging old events", "error", err)
		return
	}
	s.logger.Debug("event log purged", "cutoff", cutoff)
}

func (s *Scheduler) runGeoIPReload() {
	if err := s.geo.Reload(); err != nil {
		s.logger.Error("reloading geoip database", "error", err)
	}
}
