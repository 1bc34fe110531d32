package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"washplan/internal/models"
)

// CapacityStore implements scheduling.CapacityAllocationStore on SQLite.
// Reserve and Release run inside transactions; the guarded UPDATE on
// allocated_count is what keeps two concurrent reservations from both
// slipping past the maximum.
type CapacityStore struct {
	db *DB
}

// Get returns the allocation for the key, nil when no booking has touched
// the day yet.
func (s *CapacityStore) Get(ctx context.Context, date time.Time, resourceID int64, mode models.ServiceMode) (*models.CapacityAllocation, error) {
	var alloc models.CapacityAllocation
	var modeStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, date, resource_id, mode, max_capacity, allocated_count, updated_at
		FROM capacity_allocations
		WHERE date = ? AND resource_id = ? AND mode = ?`,
		date, resourceID, string(mode),
	).Scan(&alloc.ID, &alloc.Date, &alloc.ResourceID, &modeStr,
		&alloc.MaxCapacity, &alloc.AllocatedCount, &alloc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	alloc.Mode = models.ServiceMode(modeStr)

	rows, err := s.db.QueryContext(ctx,
		"SELECT booking_id FROM capacity_allocation_bookings WHERE allocation_id = ? ORDER BY booking_id",
		alloc.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		alloc.BookingIDs = append(alloc.BookingIDs, id)
	}
	return &alloc, rows.Err()
}

// Reserve creates the allocation row on first use and seats the booking.
// Returns false without mutation when the counter is full; a booking that
// already holds a seat for the day is a no-op success.
func (s *CapacityStore) Reserve(ctx context.Context, date time.Time, resourceID int64, mode models.ServiceMode, maxCapacity int, bookingID int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin reserve: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO capacity_allocations (date, resource_id, mode, max_capacity, allocated_count, updated_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT(date, resource_id, mode) DO NOTHING`,
		date, resourceID, string(mode), maxCapacity, time.Now(),
	); err != nil {
		return false, err
	}

	var allocID int64
	if err := tx.QueryRowContext(ctx,
		"SELECT id FROM capacity_allocations WHERE date = ? AND resource_id = ? AND mode = ?",
		date, resourceID, string(mode),
	).Scan(&allocID); err != nil {
		return false, err
	}

	var held int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM capacity_allocation_bookings WHERE allocation_id = ? AND booking_id = ?",
		allocID, bookingID,
	).Scan(&held); err != nil {
		return false, err
	}
	if held > 0 {
		return true, nil
	}

	// The guard on allocated_count is the atomicity point: a full counter
	// matches zero rows and the reservation fails cleanly.
	res, err := tx.ExecContext(ctx, `
		UPDATE capacity_allocations
		SET allocated_count = allocated_count + 1, updated_at = ?
		WHERE id = ? AND allocated_count < max_capacity`,
		time.Now(), allocID,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO capacity_allocation_bookings (allocation_id, booking_id) VALUES (?, ?)",
		allocID, bookingID,
	); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// Release removes the booking's seat and decrements the counter. Returns
// false when the booking held nothing, so repeated cancels are harmless.
func (s *CapacityStore) Release(ctx context.Context, date time.Time, resourceID int64, bookingID int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin release: %w", err)
	}
	defer tx.Rollback()

	var allocID int64
	err = tx.QueryRowContext(ctx, `
		SELECT ab.allocation_id
		FROM capacity_allocation_bookings ab
		JOIN capacity_allocations a ON a.id = ab.allocation_id
		WHERE ab.booking_id = ? AND a.date = ? AND a.resource_id = ?`,
		bookingID, date, resourceID,
	).Scan(&allocID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM capacity_allocation_bookings WHERE allocation_id = ? AND booking_id = ?",
		allocID, bookingID,
	); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE capacity_allocations
		SET allocated_count = MAX(allocated_count - 1, 0), updated_at = ?
		WHERE id = ?`,
		time.Now(), allocID,
	); err != nil {
		return false, err
	}
	return true, tx.Commit()
}
