// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/olegiv/fieldops-go/internal/model"
)

// DefaultOrgID is the org the seed key is scoped to.
const DefaultOrgID = "org-default"

// Seed creates an initial API key when the database is empty and seeding is
// enabled. The raw key is logged once; it is not recoverable afterwards.
func Seed(ctx context.Context, db *sql.DB, doSeed bool) error {
	if !doSeed {
		return nil
	}

	queries := New(db)

	count, err := queries.CountAPIKeys(ctx)
	if err != nil {
		return fmt.Errorf("counting api keys: %w", err)
	}
	if count > 0 {
		slog.Info("api keys already exist, skipping seed")
		return nil
	}

	rawKey, prefix, err := model.GenerateAPIKey()
	if err != nil {
		return fmt.Errorf("generating api key: %w", err)
	}

	key, err := queries.CreateAPIKey(ctx, CreateAPIKeyParams{
		Name:        "default",
		OrgID:       DefaultOrgID,
		KeyHash:     model.HashAPIKey(rawKey),
		KeyPrefix:   prefix,
		Permissions: model.PermissionsToJSON(model.AllPermissions()),
		CreatedAt:   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("creating default api key: %w", err)
	}

	slog.Info("created default api key",
		"id", key.ID,
		"org_id", key.OrgID,
		"key", rawKey,
	)

	return nil
}
