package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"washplan/internal/models"
)

// Booker seats, vacates and moves bookings, keeping the slot ledger and
// capacity counters consistent. Each operation is its own atomic unit: a
// cancelled multi-booking sequence leaves every completed move valid.
type Booker struct {
	detector  *Detector
	allocator *Allocator
	slots     TimeSlotStore
	bookings  BookingDirectory
	logger    zerolog.Logger
}

// NewBooker creates the booking lifecycle service.
func NewBooker(detector *Detector, allocator *Allocator, slots TimeSlotStore, bookings BookingDirectory, logger zerolog.Logger) *Booker {
	return &Booker{
		detector:  detector,
		allocator: allocator,
		slots:     slots,
		bookings:  bookings,
		logger:    logger.With().Str("component", "booker").Logger(),
	}
}

// Confirm re-validates the booking and seats it: capacity reserved, slot
// transitioned to Booked, status confirmed. Conflicts (including a full
// resource) come back as data; the booking is left untouched.
func (b *Booker) Confirm(ctx context.Context, bookingID int64) ([]models.SchedulingConflict, error) {
	booking, err := b.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("load booking: %w", err)
	}

	conflicts, err := b.detector.CheckConflicts(ctx, ConflictCheck{
		StartTime:         booking.StartTime,
		Duration:          booking.Duration(),
		RequiredEquipment: booking.RequiredEquipment,
		VehicleSize:       booking.VehicleSize,
		Location:          booking.Location,
		Mode:              booking.Mode,
		CustomerID:        booking.CustomerID,
		ResourceID:        &booking.ResourceID,
		ExcludeBookingID:  &booking.ID,
	})
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return conflicts, nil
	}

	if err := b.seat(ctx, booking, booking.ResourceID, booking.StartTime, booking.EndTime); err != nil {
		if capErr, ok := err.(*capacityFullError); ok {
			return []models.SchedulingConflict{capErr.conflict()}, nil
		}
		return nil, err
	}

	booking.Status = models.BookingConfirmed
	if err := b.bookings.Update(ctx, booking); err != nil {
		return nil, fmt.Errorf("update booking status: %w", err)
	}

	b.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("resource_id", booking.ResourceID).
		Time("start", booking.StartTime).
		Msg("booking confirmed")
	return nil, nil
}

// Cancel vacates the booking's slot and capacity and marks it canceled.
// Idempotent for already-canceled bookings.
func (b *Booker) Cancel(ctx context.Context, bookingID int64) error {
	booking, err := b.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("load booking: %w", err)
	}
	if booking.Status == models.BookingCanceled {
		return nil
	}

	if err := b.vacate(ctx, booking); err != nil {
		return err
	}

	booking.Status = models.BookingCanceled
	if err := b.bookings.Update(ctx, booking); err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}

	b.logger.Info().Int64("booking_id", booking.ID).Msg("booking canceled")
	return nil
}

// Reschedule moves a confirmed booking to a new start, and optionally a new
// resource, after re-validating with the booking's own slot excluded.
func (b *Booker) Reschedule(ctx context.Context, bookingID int64, newStart time.Time, newResourceID *int64) ([]models.SchedulingConflict, error) {
	booking, err := b.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("load booking: %w", err)
	}

	targetResource := booking.ResourceID
	if newResourceID != nil {
		targetResource = *newResourceID
	}

	conflicts, err := b.detector.CheckConflicts(ctx, ConflictCheck{
		StartTime:         newStart,
		Duration:          booking.Duration(),
		RequiredEquipment: booking.RequiredEquipment,
		VehicleSize:       booking.VehicleSize,
		Location:          booking.Location,
		Mode:              booking.Mode,
		CustomerID:        booking.CustomerID,
		ResourceID:        &targetResource,
		ExcludeBookingID:  &booking.ID,
	})
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return conflicts, nil
	}

	if err := b.move(ctx, booking, newStart, targetResource); err != nil {
		if capErr, ok := err.(*capacityFullError); ok {
			return []models.SchedulingConflict{capErr.conflict()}, nil
		}
		return nil, err
	}
	return nil, nil
}

// seat reserves capacity and binds a Booked slot to the booking.
func (b *Booker) seat(ctx context.Context, booking *models.Booking, resourceID int64, start, end time.Time) error {
	ok, err := b.allocator.Allocate(ctx, start, resourceID, booking.Mode, booking.ID)
	if err != nil {
		return err
	}
	if !ok {
		return &capacityFullError{resourceID: resourceID, date: start}
	}

	slot := models.TimeSlot{
		ResourceID: resourceID,
		StartTime:  start,
		EndTime:    end,
		Status:     models.SlotBooked,
		BookingID:  &booking.ID,
	}
	if err := b.slots.Create(ctx, &slot); err == ErrDuplicateSlot {
		// A generated Available slot exists at this position; claim it.
		existing, findErr := b.findSlotAt(ctx, resourceID, start, end)
		if findErr != nil {
			err = findErr
		} else if existing == nil {
			err = fmt.Errorf("slot at %s vanished between create and claim", start.Format(time.RFC3339))
		} else {
			err = b.slots.UpdateStatus(ctx, existing.ID, models.SlotBooked, &booking.ID)
		}
		if err != nil {
			// Unwind the reservation so the counter stays truthful.
			if _, relErr := b.allocator.Release(ctx, start, resourceID, booking.ID); relErr != nil {
				b.logger.Error().Err(relErr).Int64("booking_id", booking.ID).Msg("capacity release failed after seat error")
			}
			return fmt.Errorf("claim slot: %w", err)
		}
	} else if err != nil {
		if _, relErr := b.allocator.Release(ctx, start, resourceID, booking.ID); relErr != nil {
			b.logger.Error().Err(relErr).Int64("booking_id", booking.ID).Msg("capacity release failed after seat error")
		}
		return fmt.Errorf("create booked slot: %w", err)
	}
	return nil
}

// vacate frees the booking's slot and capacity. Missing pieces are tolerated
// so vacate stays idempotent.
func (b *Booker) vacate(ctx context.Context, booking *models.Booking) error {
	slot, err := b.slots.FindByBooking(ctx, booking.ID)
	if err != nil {
		return fmt.Errorf("find slot for booking %d: %w", booking.ID, err)
	}
	if slot != nil {
		if err := b.slots.UpdateStatus(ctx, slot.ID, models.SlotAvailable, nil); err != nil {
			return fmt.Errorf("free slot %d: %w", slot.ID, err)
		}
	}

	if _, err := b.allocator.Release(ctx, booking.StartTime, booking.ResourceID, booking.ID); err != nil {
		return err
	}
	return nil
}

// move relocates a booking to (newStart, resourceID) as one release+allocate
// pair plus the directory update.
func (b *Booker) move(ctx context.Context, booking *models.Booking, newStart time.Time, resourceID int64) error {
	duration := booking.Duration()
	newEnd := newStart.Add(duration)

	oldSlot, err := b.slots.FindByBooking(ctx, booking.ID)
	if err != nil {
		return fmt.Errorf("find current slot: %w", err)
	}

	if err := b.seat(ctx, booking, resourceID, newStart, newEnd); err != nil {
		return err
	}
	oldStart, oldResource := booking.StartTime, booking.ResourceID

	// Free the old position only after the new one is held.
	if oldSlot != nil {
		if updErr := b.slots.UpdateStatus(ctx, oldSlot.ID, models.SlotAvailable, nil); updErr != nil {
			b.logger.Error().Err(updErr).Int64("slot_id", oldSlot.ID).Msg("failed to free old slot after move")
		}
	}
	// A move within the same day and resource keeps its capacity seat.
	sameKey := oldResource == resourceID && models.DayKey(oldStart).Equal(models.DayKey(newStart))
	if !sameKey {
		if _, err := b.allocator.Release(ctx, oldStart, oldResource, booking.ID); err != nil {
			b.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("failed to release old capacity after move")
		}
	}

	booking.StartTime = newStart
	booking.EndTime = newEnd
	booking.ResourceID = resourceID
	if err := b.bookings.Update(ctx, booking); err != nil {
		return fmt.Errorf("update moved booking: %w", err)
	}

	b.logger.Info().
		Int64("booking_id", booking.ID).
		Time("old_start", oldStart).
		Time("new_start", newStart).
		Int64("old_resource", oldResource).
		Int64("new_resource", resourceID).
		Msg("booking moved")
	return nil
}

func (b *Booker) findSlotAt(ctx context.Context, resourceID int64, start, end time.Time) (*models.TimeSlot, error) {
	slots, err := b.slots.FindAvailable(ctx, start, end, []int64{resourceID}, 0)
	if err != nil {
		return nil, err
	}
	for i := range slots {
		if slots[i].StartTime.Equal(start) && slots[i].EndTime.Equal(end) {
			return &slots[i], nil
		}
	}
	return nil, nil
}

// capacityFullError is internal: Allocate returning false is a normal
// outcome, surfaced to callers as a conflict.
type capacityFullError struct {
	resourceID int64
	date       time.Time
}

func (e *capacityFullError) Error() string {
	return fmt.Sprintf("resource %d is at capacity on %s", e.resourceID, e.date.Format("2006-01-02"))
}

func (e *capacityFullError) conflict() models.SchedulingConflict {
	id := e.resourceID
	return models.SchedulingConflict{
		Kind:          models.ConflictResourceUnavailable,
		Message:       e.Error(),
		RequestedTime: e.date,
		ResourceID:    &id,
	}
}
