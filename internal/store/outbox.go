// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/olegiv/fieldops-go/internal/model"
)

const outboxColumns = `id, uid, event_type, org_id, user_id, entity_ref,
	payload, file_uris, sync_status, attempts, last_error, created_at, updated_at`

// CreateOutboxEventParams holds the fields for a new outbox row.
type CreateOutboxEventParams struct {
	UID       string
	EventType string
	OrgID     string
	UserID    sql.NullInt64
	EntityRef sql.NullString
	Payload   string
	FileURIs  string
	CreatedAt time.Time
}

// CreateOutboxEvent appends a pending outbox row and returns it.
func (q *Queries) CreateOutboxEvent(ctx context.Context, arg CreateOutboxEventParams) (model.OutboxEvent, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO offline_events (uid, event_type, org_id, user_id, entity_ref, payload, file_uris, sync_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		arg.UID, arg.EventType, arg.OrgID, arg.UserID, arg.EntityRef,
		arg.Payload, arg.FileURIs, model.OutboxStatusPending, arg.CreatedAt, arg.CreatedAt,
	)
	if err != nil {
		return model.OutboxEvent{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.OutboxEvent{}, err
	}
	return q.GetOutboxEvent(ctx, id)
}

// GetOutboxEvent returns a single outbox row by id.
func (q *Queries) GetOutboxEvent(ctx context.Context, id int64) (model.OutboxEvent, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+outboxColumns+` FROM offline_events WHERE id = ?`, id)
	return scanOutboxEvent(row)
}

// ListPendingOutboxEvents returns up to limit undelivered rows (pending and
// failed, so manual retries pick failures up again) in insertion order.
func (q *Queries) ListPendingOutboxEvents(ctx context.Context, orgID string, limit int64) ([]model.OutboxEvent, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+outboxColumns+` FROM offline_events
		WHERE org_id = ? AND sync_status IN (?, ?)
		ORDER BY created_at, id
		LIMIT ?`,
		orgID, model.OutboxStatusPending, model.OutboxStatusFailed, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectOutboxEvents(rows)
}

// ListOutboxEventsByStatus returns rows for an org filtered by status,
// newest first, for operator listings.
func (q *Queries) ListOutboxEventsByStatus(ctx context.Context, orgID, status string, limit, offset int64) ([]model.OutboxEvent, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+outboxColumns+` FROM offline_events
		WHERE org_id = ? AND sync_status = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		orgID, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectOutboxEvents(rows)
}

// ListOutboxEvents returns rows for an org regardless of status, newest first.
func (q *Queries) ListOutboxEvents(ctx context.Context, orgID string, limit, offset int64) ([]model.OutboxEvent, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+outboxColumns+` FROM offline_events
		WHERE org_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		orgID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectOutboxEvents(rows)
}

// ListLastOutboxEventsByType returns the most recent n rows of one event
// type (operator debug view, e.g. the last biometric enrollments).
func (q *Queries) ListLastOutboxEventsByType(ctx context.Context, orgID, eventType string, limit int64) ([]model.OutboxEvent, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+outboxColumns+` FROM offline_events
		WHERE org_id = ? AND event_type = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		orgID, eventType, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectOutboxEvents(rows)
}

// ListOutboxOrgs returns the orgs that currently have undelivered events.
func (q *Queries) ListOutboxOrgs(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT DISTINCT org_id FROM offline_events
		WHERE sync_status IN (?, ?)
		ORDER BY org_id`,
		model.OutboxStatusPending, model.OutboxStatusFailed)
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

// CountOutboxEventsByStatus returns the number of rows per status for an org.
func (q *Queries) CountOutboxEventsByStatus(ctx context.Context, orgID, status string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM offline_events WHERE org_id = ? AND sync_status = ?`,
		orgID, status).Scan(&n)
	return n, err
}

// MarkOutboxEventSynced transitions a row to synced.
func (q *Queries) MarkOutboxEventSynced(ctx context.Context, id int64, now time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE offline_events
		SET sync_status = ?, attempts = attempts + 1, last_error = NULL, updated_at = ?
		WHERE id = ?`,
		model.OutboxStatusSynced, now, id)
	return err
}

// MarkOutboxEventFailed records a failed delivery attempt. The row is kept:
// failed rows remain eligible for manual retry and are never deleted.
func (q *Queries) MarkOutboxEventFailed(ctx context.Context, id int64, lastError string, now time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE offline_events
		SET sync_status = ?, attempts = attempts + 1, last_error = ?, updated_at = ?
		WHERE id = ?`,
		model.OutboxStatusFailed, sql.NullString{String: lastError, Valid: lastError != ""}, now, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutboxEvent(row rowScanner) (model.OutboxEvent, error) {
	var e model.OutboxEvent
	err := row.Scan(
		&e.ID, &e.UID, &e.EventType, &e.OrgID, &e.UserID, &e.EntityRef,
		&e.Payload, &e.FileURIs, &e.SyncStatus, &e.Attempts, &e.LastError,
		&e.CreatedAt, &e.UpdatedAt,
	)
	return e, err
}

func collectOutboxEvents(rows *sql.Rows) ([]model.OutboxEvent, error) {
	var events []model.OutboxEvent
	for rows.Next() {
		e, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
