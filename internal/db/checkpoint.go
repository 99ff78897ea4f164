package db

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/parking.report/internal/occupancy"
)

// SaveOccupancy replaces the stored in-progress occupancies with cps.
func (db *DB) SaveOccupancy(ctx context.Context, cps []occupancy.Checkpoint) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin checkpoint transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM occupancy_checkpoints"); err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}

	now := formatTime(time.Now())
	for _, cp := range cps {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO occupancy_checkpoints (space_number, occupied_since, updated_at) VALUES (?, ?, ?)",
			cp.SpaceID, formatTime(cp.OccupiedSince), now,
		); err != nil {
			return fmt.Errorf("failed to save checkpoint for space %d: %w", cp.SpaceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkpoints: %w", err)
	}
	return nil
}

// LoadOccupancy returns the stored in-progress occupancies ordered by space.
func (db *DB) LoadOccupancy(ctx context.Context) ([]occupancy.Checkpoint, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT space_number, occupied_since FROM occupancy_checkpoints ORDER BY space_number")
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	var cps []occupancy.Checkpoint
	for rows.Next() {
		var (
			cp    occupancy.Checkpoint
			since string
		)
		if err := rows.Scan(&cp.SpaceID, &since); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		if cp.OccupiedSince, err = parseTime(since); err != nil {
			return nil, err
		}
		cps = append(cps, cp)
	}
	return cps, rows.Err()
}
