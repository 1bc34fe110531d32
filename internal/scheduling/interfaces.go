package scheduling

import (
	"context"
	"time"

	"washplan/internal/models"
)

// BusinessHoursStore provides the weekly schedule and per-date overrides.
type BusinessHoursStore interface {
	// GetAll returns hours keyed by day of week (1 = Monday .. 7 = Sunday).
	GetAll(ctx context.Context) (map[int]models.BusinessHours, error)
	Upsert(ctx context.Context, hours *models.BusinessHours) error

	// GetOverride returns the override for a date, or nil if none.
	GetOverride(ctx context.Context, date time.Time) (*models.ScheduleOverride, error)
	UpsertOverride(ctx context.Context, o *models.ScheduleOverride) error
}

// ResourceStore is the catalog of schedulable resources.
type ResourceStore interface {
	// ListEligible returns active resources matching the criteria. A resource
	// that errors during eligibility evaluation is skipped, not fatal.
	ListEligible(ctx context.Context, c models.EligibilityCriteria) ([]models.Resource, error)
	GetByID(ctx context.Context, id int64) (models.Resource, error)
	Create(ctx context.Context, r models.Resource) (int64, error)
	Update(ctx context.Context, r models.Resource) error
	Deactivate(ctx context.Context, id int64) error
}

// TimeSlotStore persists generated slots and answers overlap queries.
type TimeSlotStore interface {
	// FindAvailable returns Available slots intersecting the window, optionally
	// narrowed to resourceIDs and a minimum duration.
	FindAvailable(ctx context.Context, from, to time.Time, resourceIDs []int64, minDuration time.Duration) ([]models.TimeSlot, error)

	// CheckOverlap returns Booked and Blocked slots intersecting [from, to),
	// optionally narrowed to one resource. Slots linked to excludeBookingID
	// are omitted (used when re-validating a reschedule).
	CheckOverlap(ctx context.Context, from, to time.Time, resourceID *int64, excludeBookingID *int64) ([]models.TimeSlot, error)

	// Create persists a slot; ErrDuplicateSlot if (resource, start, end)
	// already exists.
	Create(ctx context.Context, slot *models.TimeSlot) error

	UpdateStatus(ctx context.Context, id int64, status models.SlotStatus, bookingID *int64) error

	// FindByBooking returns the slot currently linked to a booking, nil if none.
	FindByBooking(ctx context.Context, bookingID int64) (*models.TimeSlot, error)
}

// CapacityAllocationStore is the serialization boundary for per-(date,
// resource, mode) counters. Reserve and Release must be atomic: two
// concurrent Reserve calls for the same key must never both succeed past
// maxCapacity.
type CapacityAllocationStore interface {
	Get(ctx context.Context, date time.Time, resourceID int64, mode models.ServiceMode) (*models.CapacityAllocation, error)

	// Reserve lazily creates the allocation row with maxCapacity and adds the
	// booking; returns false without mutation when the counter is full. A
	// booking that already holds a seat on the key is a no-op success.
	Reserve(ctx context.Context, date time.Time, resourceID int64, mode models.ServiceMode, maxCapacity int, bookingID int64) (bool, error)

	// Release removes the booking and decrements; returns false when the
	// booking was not present (idempotent no-op).
	Release(ctx context.Context, date time.Time, resourceID int64, bookingID int64) (bool, error)
}

// ConflictLogStore records conflicts for analytics. Fire-and-forget: callers
// log failures and move on.
type ConflictLogStore interface {
	Record(ctx context.Context, conflict models.SchedulingConflict, customerID int64) error
}

// BookingDirectory reads and moves existing bookings. Owned by the booking
// feature; the engine only consumes it during displacement.
type BookingDirectory interface {
	GetByID(ctx context.Context, id int64) (*models.Booking, error)
	Update(ctx context.Context, b *models.Booking) error
}

// NotificationPort informs customers about displacement outcomes.
// Best-effort: implementations must not block scheduling and errors are
// logged, never propagated.
type NotificationPort interface {
	NotifyRescheduled(ctx context.Context, bookingID int64, oldTime, newTime time.Time) error
	NotifyBayChanged(ctx context.Context, bookingID int64, newResourceID int64) error
}
