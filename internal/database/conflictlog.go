package database

import (
	"context"
	"time"

	"washplan/internal/models"
)

// ConflictLogStore appends detected conflicts for later analysis. Writes are
// fire-and-forget from the engine's point of view.
type ConflictLogStore struct {
	db *DB
}

// Record persists one conflict occurrence.
func (s *ConflictLogStore) Record(ctx context.Context, conflict models.SchedulingConflict, customerID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conflict_log (kind, message, requested_time, conflicting_booking_id, resource_id, customer_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(conflict.Kind), conflict.Message, conflict.RequestedTime,
		conflict.ConflictingBookingID, conflict.ResourceID, customerID, time.Now(),
	)
	return err
}

// CountByKind aggregates logged conflicts per kind over a window, feeding
// the daily report.
func (s *ConflictLogStore) CountByKind(ctx context.Context, from, to time.Time) (map[models.ConflictKind]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(1) FROM conflict_log
		WHERE created_at >= ? AND created_at < ?
		GROUP BY kind`,
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.ConflictKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[models.ConflictKind(kind)] = n
	}
	return counts, rows.Err()
}
