// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/olegiv/fieldops-go/internal/model"
)

const apiKeyColumns = `id, name, org_id, key_hash, key_prefix, permissions,
	last_used_at, expires_at, is_active, created_at, updated_at`

// CreateAPIKeyParams holds the fields for a new API key.
type CreateAPIKeyParams struct {
	Name        string
	OrgID       string
	KeyHash     string
	KeyPrefix   string
	Permissions string
	ExpiresAt   sql.NullTime
	CreatedAt   time.Time
}

// CreateAPIKey stores a new API key record.
func (q *Queries) CreateAPIKey(ctx context.Context, arg CreateAPIKeyParams) (model.APIKey, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO api_keys (name, org_id, key_hash, key_prefix, permissions, expires_at, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		arg.Name, arg.OrgID, arg.KeyHash, arg.KeyPrefix, arg.Permissions, arg.ExpiresAt, arg.CreatedAt, arg.CreatedAt,
	)
	if err != nil {
		return model.APIKey{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.APIKey{}, err
	}
	return q.GetAPIKeyByID(ctx, id)
}

// GetAPIKeyByID returns an API key by id.
func (q *Queries) GetAPIKeyByID(ctx context.Context, id int64) (model.APIKey, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE id = ?`, id)
	return scanAPIKey(row)
}

// GetAPIKeyByHash returns an API key by its SHA-256 hash.
func (q *Queries) GetAPIKeyByHash(ctx context.Context, keyHash string) (model.APIKey, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = ?`, keyHash)
	return scanAPIKey(row)
}

// CountAPIKeys returns the total number of API keys.
func (q *Queries) CountAPIKeys(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_keys`).Scan(&n)
	return n, err
}

// ListActiveAPIKeyOrgs returns the distinct orgs that hold an active key.
func (q *Queries) ListActiveAPIKeyOrgs(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT DISTINCT org_id FROM api_keys
		WHERE is_active = 1 AND org_id != ''
		ORDER BY org_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var orgs []string
	for rows.Next() {
		var org string
		if err := rows.Scan(&org); err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// UpdateAPIKeyLastUsed records the time an API key was last seen.
func (q *Queries) UpdateAPIKeyLastUsed(ctx context.Context, id int64, lastUsedAt time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, lastUsedAt, id)
	return err
}

func scanAPIKey(row rowScanner) (model.APIKey, error) {
	var k model.APIKey
	err := row.Scan(
		&k.ID, &k.Name, &k.OrgID, &k.KeyHash, &k.KeyPrefix, &k.Permissions,
		&k.LastUsedAt, &k.ExpiresAt, &k.IsActive, &k.CreatedAt, &k.UpdatedAt,
	)
	return k, err
}
