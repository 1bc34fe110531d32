// Package database implements the scheduling store interfaces on SQLite.
package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sql.DB for the scheduling backend.
type DB struct {
	*sql.DB
	path string
}

// NewDB opens the database at path and runs migrations.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{DB: db, path: path}, nil
}

// Path returns the database file location.
func (db *DB) Path() string { return db.path }

// Hours returns the business-hours store.
func (db *DB) Hours() *HoursStore { return &HoursStore{db: db} }

// Resources returns the resource catalog store.
func (db *DB) Resources() *ResourceStore { return &ResourceStore{db: db} }

// Slots returns the time-slot store.
func (db *DB) Slots() *SlotStore { return &SlotStore{db: db} }

// Capacity returns the capacity-allocation store.
func (db *DB) Capacity() *CapacityStore { return &CapacityStore{db: db} }

// ConflictLog returns the analytics conflict log.
func (db *DB) ConflictLog() *ConflictLogStore { return &ConflictLogStore{db: db} }

// Bookings returns the booking directory.
func (db *DB) Bookings() *BookingStore { return &BookingStore{db: db} }

func createTables(db *sql.DB) error {
	queries := []string{
		// Weekly business hours, one row per day of week (1 = Monday).
		`CREATE TABLE IF NOT EXISTS business_hours (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			day_of_week INTEGER UNIQUE NOT NULL,
			open_time TEXT NOT NULL,
			close_time TEXT NOT NULL,
			is_closed BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS business_hour_breaks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			day_of_week INTEGER NOT NULL,
			break_start TEXT NOT NULL,
			break_end TEXT NOT NULL
		)`,

		// Per-date overrides: closed days and special hours.
		`CREATE TABLE IF NOT EXISTS schedule_overrides (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date DATETIME NOT NULL,
			is_closed BOOLEAN NOT NULL DEFAULT 0,
			open_time TEXT,
			close_time TEXT,
			reason TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(date)
		)`,

		// Fixed bays and mobile teams share one table, discriminated by kind.
		`CREATE TABLE IF NOT EXISTS resources (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			name TEXT,
			bay_number INTEGER,
			active BOOLEAN NOT NULL DEFAULT 1,
			equipment TEXT NOT NULL DEFAULT '',
			max_vehicle_size INTEGER,
			covered BOOLEAN NOT NULL DEFAULT 0,
			has_power BOOLEAN NOT NULL DEFAULT 0,
			team_size INTEGER,
			service_radius_km REAL,
			max_vehicles_per_day INTEGER,
			base_lat REAL,
			base_lng REAL,
			hourly_rate REAL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Bay numbers are unique among active bays only; a retired bay's
		// number may be reused.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_resources_bay_number
			ON resources(bay_number) WHERE kind = 'fixed_bay' AND active = 1`,

		// Slots are only ever status-transitioned, never deleted. The unique
		// key is the enforcement point against duplicate-slot races.
		`CREATE TABLE IF NOT EXISTS time_slots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			resource_id INTEGER NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'available',
			booking_id INTEGER,
			block_reason TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(resource_id, start_time, end_time),
			FOREIGN KEY (resource_id) REFERENCES resources(id)
		)`,

		`CREATE TABLE IF NOT EXISTS capacity_allocations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date DATETIME NOT NULL,
			resource_id INTEGER NOT NULL,
			mode TEXT NOT NULL,
			max_capacity INTEGER NOT NULL,
			allocated_count INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(date, resource_id, mode),
			FOREIGN KEY (resource_id) REFERENCES resources(id)
		)`,

		`CREATE TABLE IF NOT EXISTS capacity_allocation_bookings (
			allocation_id INTEGER NOT NULL,
			booking_id INTEGER NOT NULL,
			UNIQUE(allocation_id, booking_id),
			FOREIGN KEY (allocation_id) REFERENCES capacity_allocations(id)
		)`,

		`CREATE TABLE IF NOT EXISTS conflict_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			message TEXT NOT NULL,
			requested_time DATETIME NOT NULL,
			conflicting_booking_id INTEGER,
			resource_id INTEGER,
			customer_id INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reference TEXT UNIQUE NOT NULL,
			customer_id INTEGER NOT NULL,
			resource_id INTEGER NOT NULL,
			vehicle_size INTEGER NOT NULL DEFAULT 2,
			required_equipment TEXT NOT NULL DEFAULT '',
			mode TEXT NOT NULL DEFAULT 'stationary',
			location_lat REAL,
			location_lng REAL,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			priority INTEGER NOT NULL DEFAULT 0,
			reminder_sent INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (resource_id) REFERENCES resources(id)
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_resources_active ON resources(active, kind)`,
		`CREATE INDEX IF NOT EXISTS idx_time_slots_window ON time_slots(resource_id, start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_time_slots_status ON time_slots(status)`,
		`CREATE INDEX IF NOT EXISTS idx_time_slots_booking ON time_slots(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_capacity_key ON capacity_allocations(date, resource_id, mode)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_resource_time ON bookings(resource_id, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_conflict_log_kind ON conflict_log(kind, created_at)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// joinTags and splitTags serialize equipment tag sets as comma-separated
// text.
func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
