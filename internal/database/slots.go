package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/mattn/go-sqlite3"

	"washplan/internal/models"
	"washplan/internal/scheduling"
)

// SlotStore implements scheduling.TimeSlotStore on SQLite.
type SlotStore struct {
	db *DB
}

const slotColumns = `id, resource_id, start_time, end_time, status, booking_id, block_reason, created_at, updated_at`

// FindAvailable returns Available slots intersecting [from, to), optionally
// narrowed to resources and a minimum duration.
func (s *SlotStore) FindAvailable(ctx context.Context, from, to time.Time, resourceIDs []int64, minDuration time.Duration) ([]models.TimeSlot, error) {
	query := "SELECT " + slotColumns + ` FROM time_slots
		WHERE status = 'available' AND start_time < ? AND end_time > ?`
	args := []interface{}{to, from}

	if len(resourceIDs) > 0 {
		query += " AND resource_id IN (" + placeholders(len(resourceIDs)) + ")"
		for _, id := range resourceIDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY start_time"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []models.TimeSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		if minDuration > 0 && slot.Duration() < minDuration {
			continue
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// CheckOverlap returns Booked and Blocked slots intersecting [from, to),
// optionally narrowed to one resource and excluding one booking's own slot.
func (s *SlotStore) CheckOverlap(ctx context.Context, from, to time.Time, resourceID *int64, excludeBookingID *int64) ([]models.TimeSlot, error) {
	query := "SELECT " + slotColumns + ` FROM time_slots
		WHERE status IN ('booked', 'blocked') AND start_time < ? AND end_time > ?`
	args := []interface{}{to, from}

	if resourceID != nil {
		query += " AND resource_id = ?"
		args = append(args, *resourceID)
	}
	if excludeBookingID != nil {
		query += " AND (booking_id IS NULL OR booking_id != ?)"
		args = append(args, *excludeBookingID)
	}
	query += " ORDER BY start_time"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []models.TimeSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// Create persists a slot. The unique key on (resource, start, end) turns a
// concurrent duplicate insert into scheduling.ErrDuplicateSlot.
func (s *SlotStore) Create(ctx context.Context, slot *models.TimeSlot) error {
	now := time.Now()
	if slot.Status == "" {
		slot.Status = models.SlotAvailable
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO time_slots (resource_id, start_time, end_time, status, booking_id, block_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		slot.ResourceID, slot.StartTime, slot.EndTime, string(slot.Status),
		slot.BookingID, nullString(slot.BlockReason), now, now,
	)
	if err != nil {
		if sqliteErr, ok := err.(sqlite3.Error); ok && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return scheduling.ErrDuplicateSlot
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	slot.ID = id
	slot.CreatedAt = now
	slot.UpdatedAt = now
	return nil
}

// UpdateStatus transitions a slot, linking or clearing its booking.
func (s *SlotStore) UpdateStatus(ctx context.Context, id int64, status models.SlotStatus, bookingID *int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE time_slots SET status = ?, booking_id = ?, updated_at = ?
		WHERE id = ?`,
		string(status), bookingID, time.Now(), id,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &scheduling.NotFoundError{Entity: "time slot", ID: id}
	}
	return nil
}

// FindByBooking returns the slot a booking currently occupies, nil if none.
func (s *SlotStore) FindByBooking(ctx context.Context, bookingID int64) (*models.TimeSlot, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+slotColumns+" FROM time_slots WHERE booking_id = ? AND status = 'booked' LIMIT 1",
		bookingID,
	)
	slot, err := scanSlot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// BlockWindow marks every slot on the resource intersecting [from, to) as
// Blocked for maintenance, creating a covering slot when none exist yet.
func (s *SlotStore) BlockWindow(ctx context.Context, resourceID int64, from, to time.Time, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE time_slots SET status = 'blocked', block_reason = ?, updated_at = ?
		WHERE resource_id = ? AND status = 'available' AND start_time < ? AND end_time > ?`,
		reason, time.Now(), resourceID, to, from,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	slot := &models.TimeSlot{
		ResourceID:  resourceID,
		StartTime:   from,
		EndTime:     to,
		Status:      models.SlotBlocked,
		BlockReason: reason,
	}
	if err := s.Create(ctx, slot); err != nil && err != scheduling.ErrDuplicateSlot {
		return err
	}
	return nil
}

func scanSlot(row rowScanner) (models.TimeSlot, error) {
	var slot models.TimeSlot
	var bookingID sql.NullInt64
	var blockReason sql.NullString
	var status string
	if err := row.Scan(&slot.ID, &slot.ResourceID, &slot.StartTime, &slot.EndTime,
		&status, &bookingID, &blockReason, &slot.CreatedAt, &slot.UpdatedAt); err != nil {
		return models.TimeSlot{}, err
	}
	slot.Status = models.SlotStatus(status)
	if bookingID.Valid {
		id := bookingID.Int64
		slot.BookingID = &id
	}
	slot.BlockReason = blockReason.String
	return slot, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := "?"
	for i := 1; i < n; i++ {
		out += ", ?"
	}
	return out
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
