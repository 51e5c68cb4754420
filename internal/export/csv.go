// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package export writes backend collections as downloadable files for the
// dashboard's export buttons.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/olegiv/fieldops-go/internal/backend"
)

// ClockingsCSV writes clocking records as RFC 4180 CSV, header row first.
func ClockingsCSV(w io.Writer, records []map[string]any) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"id", "user_id", "user_name", "task_id", "direction", "at"}); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, rec := range records {
		c := backend.ClockingFromRecord(rec)
		at := ""
		if !c.At.IsZero() {
			at = c.At.UTC().Format(time.RFC3339)
		}
		if err := cw.Write([]string{c.ID, c.UserID, c.UserName, c.TaskID, c.Direction, at}); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// VehiclesCSV writes vehicle records as RFC 4180 CSV, header row first.
func VehiclesCSV(w io.Writer, records []map[string]any) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"id", "name", "registration", "status"}); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, rec := range records {
		v := backend.VehicleFromRecord(rec)
		if err := cw.Write([]string{v.ID, v.Name, v.Registration, v.Status}); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
