package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"washplan/internal/models"
)

// HoursStore implements scheduling.BusinessHoursStore on SQLite.
type HoursStore struct {
	db *DB
}

// GetAll returns the weekly hours keyed by day of week, breaks included.
func (s *HoursStore) GetAll(ctx context.Context) (map[int]models.BusinessHours, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, day_of_week, open_time, close_time, is_closed, updated_at
		FROM business_hours`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hours := make(map[int]models.BusinessHours)
	for rows.Next() {
		var h models.BusinessHours
		if err := rows.Scan(&h.ID, &h.DayOfWeek, &h.OpenTime, &h.CloseTime, &h.IsClosed, &h.UpdatedAt); err != nil {
			return nil, err
		}
		hours[h.DayOfWeek] = h
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	breakRows, err := s.db.QueryContext(ctx, `
		SELECT day_of_week, break_start, break_end
		FROM business_hour_breaks
		ORDER BY day_of_week, break_start`)
	if err != nil {
		return nil, err
	}
	defer breakRows.Close()

	for breakRows.Next() {
		var day int
		var br models.BreakPeriod
		if err := breakRows.Scan(&day, &br.Start, &br.End); err != nil {
			return nil, err
		}
		h, ok := hours[day]
		if !ok {
			continue
		}
		h.Breaks = append(h.Breaks, br)
		hours[day] = h
	}
	return hours, breakRows.Err()
}

// Upsert replaces one day's hours and its break list.
func (s *HoursStore) Upsert(ctx context.Context, h *models.BusinessHours) error {
	if h == nil {
		return fmt.Errorf("hours is nil")
	}
	if h.DayOfWeek < 1 || h.DayOfWeek > 7 {
		return fmt.Errorf("day_of_week out of range: %d", h.DayOfWeek)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO business_hours (day_of_week, open_time, close_time, is_closed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(day_of_week) DO UPDATE SET
			open_time = excluded.open_time,
			close_time = excluded.close_time,
			is_closed = excluded.is_closed,
			updated_at = excluded.updated_at`,
		h.DayOfWeek, h.OpenTime, h.CloseTime, h.IsClosed, now, now,
	)
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx,
		"DELETE FROM business_hour_breaks WHERE day_of_week = ?", h.DayOfWeek,
	); err != nil {
		return err
	}
	for _, br := range h.Breaks {
		if _, err = tx.ExecContext(ctx,
			"INSERT INTO business_hour_breaks (day_of_week, break_start, break_end) VALUES (?, ?, ?)",
			h.DayOfWeek, br.Start, br.End,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetOverride returns the override for a date, nil when none exists.
func (s *HoursStore) GetOverride(ctx context.Context, date time.Time) (*models.ScheduleOverride, error) {
	var o models.ScheduleOverride
	var openTime, closeTime, reason sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, date, is_closed, open_time, close_time, reason, updated_at
		FROM schedule_overrides
		WHERE date(date) = date(?)
		LIMIT 1`,
		date,
	).Scan(&o.ID, &o.Date, &o.IsClosed, &openTime, &closeTime, &reason, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o.OpenTime = openTime.String
	o.CloseTime = closeTime.String
	o.Reason = reason.String
	return &o, nil
}

// UpsertOverride creates or updates the override for a date.
func (s *HoursStore) UpsertOverride(ctx context.Context, o *models.ScheduleOverride) error {
	if o == nil {
		return fmt.Errorf("override is nil")
	}

	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule_overrides (date, is_closed, open_time, close_time, reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			is_closed = excluded.is_closed,
			open_time = excluded.open_time,
			close_time = excluded.close_time,
			reason = excluded.reason,
			updated_at = excluded.updated_at`,
		models.DayKey(o.Date), o.IsClosed, o.OpenTime, o.CloseTime, o.Reason, now, now,
	)
	return err
}
