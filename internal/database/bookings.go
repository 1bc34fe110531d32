package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"washplan/internal/models"
	"washplan/internal/scheduling"
)

// BookingStore implements scheduling.BookingDirectory on SQLite.
type BookingStore struct {
	db *DB
}

const bookingColumns = `id, reference, customer_id, resource_id, vehicle_size, required_equipment,
	mode, location_lat, location_lng, start_time, end_time, status, priority, reminder_sent,
	created_at, updated_at`

// Create persists a new booking, assigning a reference when the caller
// passed none.
func (s *BookingStore) Create(ctx context.Context, b *models.Booking) error {
	if b.Reference == "" {
		b.Reference = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = models.BookingPending
	}
	now := time.Now()
	var lat, lng interface{}
	if b.Location != nil {
		lat, lng = b.Location.Lat, b.Location.Lng
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO bookings (reference, customer_id, resource_id, vehicle_size, required_equipment,
			mode, location_lat, location_lng, start_time, end_time, status, priority, reminder_sent,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Reference, b.CustomerID, b.ResourceID, int(b.VehicleSize), joinTags(b.RequiredEquipment),
		string(b.Mode), lat, lng, b.StartTime, b.EndTime, string(b.Status), b.Priority, b.ReminderSent, now, now,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = id
	b.CreatedAt = now
	b.UpdatedAt = now
	return nil
}

// GetByID loads one booking.
func (s *BookingStore) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id = ?", id)
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, &scheduling.NotFoundError{Entity: "booking", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetByReference loads a booking by its customer-facing reference.
func (s *BookingStore) GetByReference(ctx context.Context, ref string) (*models.Booking, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE reference = ?", ref)
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, &scheduling.NotFoundError{Entity: "booking", ID: 0}
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Update rewrites the mutable booking fields. The reference never changes.
func (s *BookingStore) Update(ctx context.Context, b *models.Booking) error {
	var lat, lng interface{}
	if b.Location != nil {
		lat, lng = b.Location.Lat, b.Location.Lng
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE bookings SET resource_id = ?, vehicle_size = ?, required_equipment = ?,
			mode = ?, location_lat = ?, location_lng = ?, start_time = ?, end_time = ?,
			status = ?, priority = ?, reminder_sent = ?, updated_at = ?
		WHERE id = ?`,
		b.ResourceID, int(b.VehicleSize), joinTags(b.RequiredEquipment),
		string(b.Mode), lat, lng, b.StartTime, b.EndTime,
		string(b.Status), b.Priority, b.ReminderSent, time.Now(), b.ID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &scheduling.NotFoundError{Entity: "booking", ID: b.ID}
	}
	return nil
}

// ListForDay returns bookings starting within the day, ordered by start
// time. Canceled bookings are included so the report can show churn.
func (s *BookingStore) ListForDay(ctx context.Context, day time.Time) ([]models.Booking, error) {
	start := models.DayKey(day)
	end := start.AddDate(0, 0, 1)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE start_time >= ? AND start_time < ? ORDER BY start_time",
		start, end,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// ListUpcomingUnreminded returns active bookings starting within the window
// whose customer has not been reminded yet.
func (s *BookingStore) ListUpcomingUnreminded(ctx context.Context, within time.Duration) ([]models.Booking, error) {
	now := time.Now()
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE reminder_sent = 0
		  AND status IN ('pending', 'confirmed')
		  AND start_time > ? AND start_time <= ?
		ORDER BY start_time`,
		now, now.Add(within),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// MarkReminderSent flags the booking so the next reminder sweep skips it.
func (s *BookingStore) MarkReminderSent(ctx context.Context, bookingID int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE bookings SET reminder_sent = 1, updated_at = ? WHERE id = ?",
		time.Now(), bookingID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &scheduling.NotFoundError{Entity: "booking", ID: bookingID}
	}
	return nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var equipment, mode, status string
	var lat, lng sql.NullFloat64
	var size int
	if err := row.Scan(&b.ID, &b.Reference, &b.CustomerID, &b.ResourceID, &size, &equipment,
		&mode, &lat, &lng, &b.StartTime, &b.EndTime, &status, &b.Priority,
		&b.ReminderSent, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.VehicleSize = models.VehicleSize(size)
	b.RequiredEquipment = splitTags(equipment)
	b.Mode = models.ServiceMode(mode)
	b.Status = models.BookingStatus(status)
	if lat.Valid && lng.Valid {
		b.Location = &models.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
	}
	return &b, nil
}
