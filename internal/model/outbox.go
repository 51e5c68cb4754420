// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"database/sql"
	"time"
)

// Outbox sync statuses
const (
	OutboxStatusPending = "pending"
	OutboxStatusSynced  = "synced"
	OutboxStatusFailed  = "failed"
)

// Outbox event types
const (
	OutboxTypeBiometricEnroll = "biometric-enroll"
	OutboxTypeAssetCreate     = "asset-create"
	OutboxTypeAssetLog        = "asset-log"
	OutboxTypeClocking        = "clocking"
	OutboxTypeInspection      = "inspection-submit"
)

// ValidOutboxEventType reports whether s is a well-formed event type tag:
// lowercase words of letters and digits joined by single hyphens, like
// "asset-create" or "site-note". The set is open; new device app versions
// introduce tags the server has never seen.
func ValidOutboxEventType(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	prevHyphen := true // rejects a leading hyphen
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			prevHyphen = false
		case c == '-':
			if prevHyphen {
				return false
			}
			prevHyphen = true
		default:
			return false
		}
	}
	return !prevHyphen
}

// OutboxEvent is a durable record of a user-initiated mutation captured while
// the device may have been offline. Rows are append-only: an event is never
// deleted before it has been synced upstream.
//
// UID is a client-visible idempotency key, generated at insert time and sent
// with every delivery attempt so the backend can deduplicate retries.
type OutboxEvent struct {
	ID         int64
	UID        string
	EventType  string
	OrgID      string
	UserID     sql.NullInt64
	EntityRef  sql.NullString
	Payload    string // JSON, opaque structured data
	FileURIs   string // JSON array of local file references pending upload
	SyncStatus string
	Attempts   int64
	LastError  sql.NullString
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsPending reports whether the event still awaits delivery.
func (e *OutboxEvent) IsPending() bool {
	return e.SyncStatus == OutboxStatusPending
}

// ValidOutboxStatus reports whether s is a recognized sync status.
func ValidOutboxStatus(s string) bool {
	switch s {
	case OutboxStatusPending, OutboxStatusSynced, OutboxStatusFailed:
		return true
	}
	return false
}
