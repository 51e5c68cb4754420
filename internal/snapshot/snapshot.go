// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package snapshot serves cached copies of backend list collections so
// field devices can prime their offline storage in one round trip even
// when the main backend is slow or briefly down.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/olegiv/fieldops-go/internal/cache"
)

// ListTypes are the collections devices persist locally.
var ListTypes = []string{
	"projects", "tasks", "assets", "vehicles", "inspections",
	"documents", "groups", "users", "definitions",
}

// ValidListType reports whether devices may request this list.
func ValidListType(listType string) bool {
	for _, t := range ListTypes {
		if t == listType {
			return true
		}
	}
	return false
}

// Fetcher pulls one raw collection from the backend.
type Fetcher interface {
	FetchList(ctx context.Context, orgID, listType string) ([]map[string]any, error)
}

// Snapshot is one cached collection copy.
type Snapshot struct {
	ListType  string           `json:"list_type"`
	OrgID     string           `json:"org_id"`
	FetchedAt time.Time        `json:"fetched_at"`
	Records   []map[string]any `json:"records"`
}

// Store keeps per-org, per-list snapshots in the cache backend.
type Store struct {
	typed   *cache.TypedCache[Snapshot]
	fetcher Fetcher
	logger  *slog.Logger
}

func NewStore(backend cache.Cacher, fetcher Fetcher, ttl time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		typed:   cache.NewTypedCache[Snapshot](backend, ttl),
		fetcher: fetcher,
		logger:  logger,
	}
}

func key(orgID, listType string) string {
	return "snapshot:" + orgID + ":" + listType
}

// Get returns the cached snapshot, fetching from the backend on miss.
func (s *Store) Get(ctx context.Context, orgID, listType string) (*Snapshot, error) {
	if !ValidListType(listType) {
		return nil, fmt.Errorf("snapshot: unknown list type %q", listType)
	}
	return s.typed.GetOrSet(ctx, key(orgID, listType), func() (*Snapshot, error) {
		return s.fetch(ctx, orgID, listType)
	})
}

// Refresh fetches a fresh copy and replaces the cached one.
func (s *Store) Refresh(ctx context.Context, orgID, listType string) (*Snapshot, error) {
	if !ValidListType(listType) {
		return nil, fmt.Errorf("snapshot: unknown list type %q", listType)
	}
	snap, err := s.fetch(ctx, orgID, listType)
	if err != nil {
		return nil, err
	}
	if err := s.typed.Set(ctx, key(orgID, listType), snap); err != nil {
		s.logger.Warn("snapshot cache write failed",
			"list", listType, "org_id", orgID, "error", err)
	}
	return snap, nil
}

// RefreshAll refreshes every list type for the org. A failing list is
// logged and skipped; the stale snapshot stays served until it expires.
func (s *Store) RefreshAll(ctx context.Context, orgID string) (refreshed, failed int) {
	for _, listType := range ListTypes {
		if ctx.Err() != nil {
			return refreshed, failed
		}
		if _, err := s.Refresh(ctx, orgID, listType); err != nil {
			failed++
			s.logger.Warn("snapshot refresh failed",
				"list", listType, "org_id", orgID, "error", err)
			continue
		}
		refreshed++
	}
	return refreshed, failed
}

// Invalidate drops the cached snapshot for one list.
func (s *Store) Invalidate(ctx context.Context, orgID, listType string) error {
	return s.typed.Delete(ctx, key(orgID, listType))
}

func (s *Store) fetch(ctx context.Context, orgID, listType string) (*Snapshot, error) {
	records, err := s.fetcher.FetchList(ctx, orgID, listType)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		ListType:  listType,
		OrgID:     orgID,
		FetchedAt: time.Now().UTC(),
		Records:   records,
	}, nil
}
