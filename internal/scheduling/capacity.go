package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"washplan/internal/metrics"
	"washplan/internal/models"
)

// Allocator is the authority for "is this resource full today". It maintains
// per-(date, resource, mode) counters, created lazily on first use. Atomicity
// of Reserve/Release lives at the store boundary so two concurrent allocations
// for the same key can never both succeed past capacity.
type Allocator struct {
	allocations CapacityAllocationStore
	resources   ResourceStore
	logger      zerolog.Logger
}

// NewAllocator creates a capacity allocator.
func NewAllocator(allocations CapacityAllocationStore, resources ResourceStore, logger zerolog.Logger) *Allocator {
	return &Allocator{
		allocations: allocations,
		resources:   resources,
		logger:      logger.With().Str("component", "capacity_allocator").Logger(),
	}
}

// Allocate reserves one capacity unit for the booking. Returns false without
// mutation when the resource is full that day; a full counter is a normal
// outcome, not an error.
func (a *Allocator) Allocate(ctx context.Context, date time.Time, resourceID int64, mode models.ServiceMode, bookingID int64) (bool, error) {
	resource, err := a.resources.GetByID(ctx, resourceID)
	if err != nil {
		return false, fmt.Errorf("resolve resource %d: %w", resourceID, err)
	}

	ok, err := a.allocations.Reserve(ctx, models.DayKey(date), resourceID, mode, resource.DailyCapacity(), bookingID)
	if err != nil {
		return false, fmt.Errorf("reserve capacity: %w", err)
	}

	if ok {
		metrics.IncCapacity("allocate", "ok")
		a.logger.Debug().
			Int64("resource_id", resourceID).
			Int64("booking_id", bookingID).
			Str("date", models.DayKey(date).Format("2006-01-02")).
			Msg("capacity allocated")
	} else {
		metrics.IncCapacity("allocate", "full")
	}
	return ok, nil
}

// Release frees the booking's capacity unit. Idempotent: releasing a booking
// that holds nothing returns false and changes nothing.
func (a *Allocator) Release(ctx context.Context, date time.Time, resourceID int64, bookingID int64) (bool, error) {
	ok, err := a.allocations.Release(ctx, models.DayKey(date), resourceID, bookingID)
	if err != nil {
		return false, fmt.Errorf("release capacity: %w", err)
	}

	if ok {
		metrics.IncCapacity("release", "ok")
	} else {
		metrics.IncCapacity("release", "noop")
	}
	return ok, nil
}

// Usage returns the current allocation for a key, or nil when none exists yet.
func (a *Allocator) Usage(ctx context.Context, date time.Time, resourceID int64, mode models.ServiceMode) (*models.CapacityAllocation, error) {
	return a.allocations.Get(ctx, models.DayKey(date), resourceID, mode)
}

// IsFull reports whether the resource has no remaining capacity on the date.
// A missing allocation means nothing is booked yet.
func (a *Allocator) IsFull(ctx context.Context, date time.Time, resourceID int64, mode models.ServiceMode) (bool, error) {
	alloc, err := a.allocations.Get(ctx, models.DayKey(date), resourceID, mode)
	if err != nil {
		return false, err
	}
	if alloc == nil {
		return false, nil
	}
	return alloc.IsFull(), nil
}
