// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("FIELDOPS_BACKEND_URL", "https://api.example.com")
	t.Setenv("FIELDOPS_BACKEND_TOKEN", "test-token")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DBPath != "./data/fieldops.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.ServerAddr() != "localhost:8080" {
		t.Errorf("ServerAddr = %q", cfg.ServerAddr())
	}
	if !cfg.IsDevelopment() {
		t.Error("expected development mode by default")
	}
	if cfg.UseRedisCache() {
		t.Error("redis must be off by default")
	}
	if cfg.SyncBatchSize != 50 {
		t.Errorf("SyncBatchSize = %d, want 50", cfg.SyncBatchSize)
	}
	if cfg.PointRadius != 25 {
		t.Errorf("PointRadius = %v, want 25", cfg.PointRadius)
	}
}

func TestLoad_MissingBackendURL(t *testing.T) {
	t.Setenv("FIELDOPS_BACKEND_TOKEN", "test-token")
	t.Setenv("FIELDOPS_BACKEND_URL", "")

	if _, err := Load(); err == nil {
		t.Error("expected error without backend URL")
	}
}

func TestLoad_RelativeBackendURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("FIELDOPS_BACKEND_URL", "/not-absolute")

	if _, err := Load(); err == nil {
		t.Error("expected error for relative backend URL")
	}
}

func TestLoad_InvalidBatchSize(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("FIELDOPS_SYNC_BATCH_SIZE", "-1")

	if _, err := Load(); err == nil {
		t.Error("expected error for negative batch size")
	}
}
