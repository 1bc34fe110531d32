package scheduling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"washplan/internal/metrics"
	"washplan/internal/models"
)

// WalkInState tracks a pending walk-in through the coordinator.
type WalkInState string

const (
	WalkInRequested       WalkInState = "requested"
	WalkInConflictChecked WalkInState = "conflict_checked"
	WalkInSeated          WalkInState = "seated"
	WalkInEscalated       WalkInState = "escalated"
)

// ResolutionKind names how a displaced booking was accommodated.
type ResolutionKind string

const (
	ResolutionRelocated ResolutionKind = "relocated"
	ResolutionDelayed   ResolutionKind = "delayed"
)

// Resolution records one successful displacement.
type Resolution struct {
	BookingID     int64          `json:"booking_id"`
	Kind          ResolutionKind `json:"kind"`
	OldStart      time.Time      `json:"old_start"`
	NewStart      time.Time      `json:"new_start"`
	OldResourceID int64          `json:"old_resource_id"`
	NewResourceID int64          `json:"new_resource_id"`
}

// WalkInOutcome is the structured result of a walk-in attempt. On escalation
// the walk-in is not seated and Unresolved explains why; any resolutions that
// did succeed before escalating are still listed so a human can decide.
type WalkInOutcome struct {
	RequestID  string                      `json:"request_id"`
	State      WalkInState                 `json:"state"`
	BookingID  int64                       `json:"booking_id"`
	Start      time.Time                   `json:"start,omitempty"`
	End        time.Time                   `json:"end,omitempty"`
	Resolved   []Resolution                `json:"resolved,omitempty"`
	Unresolved []models.SchedulingConflict `json:"unresolved,omitempty"`
	Cascaded   bool                        `json:"cascaded"`
}

// Coordinator seats unscheduled walk-in arrivals by displacing confirmed
// bookings: relocate to another resource at the same time, or delay in fixed
// offsets, then cascade the adjustment to bookings crowded by the new end
// time. Greedy and bounded: each conflicting booking is resolved completely
// (including its cascade) before the next one, and one run never pushes more
// than MaxCascadeDepth bookings.
type Coordinator struct {
	detector  *Detector
	booker    *Booker
	calendar  *Calendar
	resources ResourceStore
	slots     TimeSlotStore
	bookings  BookingDirectory
	notifier  NotificationPort
	rules     Rules
	logger    zerolog.Logger

	now func() time.Time
}

// NewCoordinator creates the walk-in displacement coordinator.
func NewCoordinator(detector *Detector, booker *Booker, calendar *Calendar, resources ResourceStore, slots TimeSlotStore, bookings BookingDirectory, notifier NotificationPort, rules Rules, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		detector:  detector,
		booker:    booker,
		calendar:  calendar,
		resources: resources,
		slots:     slots,
		bookings:  bookings,
		notifier:  notifier,
		rules:     rules,
		logger:    logger.With().Str("component", "walkin_coordinator").Logger(),
		now:       time.Now,
	}
}

// Seat attempts to start servicing the walk-in booking immediately on its
// target resource. The booking record must already exist (pending); on
// success it is confirmed and occupies [now, now+duration).
func (c *Coordinator) Seat(ctx context.Context, walkIn *models.Booking) (*WalkInOutcome, error) {
	if walkIn == nil {
		return nil, newValidationError("booking", "walk-in booking is required")
	}
	if walkIn.Duration() <= 0 {
		return nil, newValidationError("duration", "must be positive")
	}

	start := c.now()
	end := start.Add(walkIn.Duration())
	outcome := &WalkInOutcome{
		RequestID: uuid.NewString(),
		State:     WalkInRequested,
		BookingID: walkIn.ID,
	}

	log := c.logger.With().
		Str("request_id", outcome.RequestID).
		Int64("booking_id", walkIn.ID).
		Int64("resource_id", walkIn.ResourceID).
		Logger()

	conflicts, err := c.detector.CheckConflicts(ctx, ConflictCheck{
		StartTime:         start,
		Duration:          walkIn.Duration(),
		RequiredEquipment: walkIn.RequiredEquipment,
		VehicleSize:       walkIn.VehicleSize,
		Location:          walkIn.Location,
		Mode:              walkIn.Mode,
		CustomerID:        walkIn.CustomerID,
		ResourceID:        &walkIn.ResourceID,
		SkipNotice:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("walk-in conflict check: %w", err)
	}
	outcome.State = WalkInConflictChecked

	displaceable, blocking := splitConflicts(conflicts)
	if len(blocking) > 0 {
		// Closed business or ineligible resource; displacement cannot help.
		outcome.State = WalkInEscalated
		outcome.Unresolved = blocking
		metrics.IncWalkIn(string(WalkInEscalated))
		log.Warn().Int("blocking", len(blocking)).Msg("walk-in escalated before displacement")
		return outcome, nil
	}

	// Resolve in booking-id order so repeated runs behave the same way; each
	// conflicting booking is fully handled before the next.
	ids := make([]int64, 0, len(displaceable))
	for id := range displaceable {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, bookingID := range ids {
		resolution, unresolved, err := c.resolveConflict(ctx, bookingID, walkIn, start, end, log)
		if err != nil {
			return nil, err
		}
		if unresolved != nil {
			outcome.Unresolved = append(outcome.Unresolved, *unresolved)
			continue
		}
		outcome.Resolved = append(outcome.Resolved, *resolution)
	}

	if len(outcome.Unresolved) > 0 {
		outcome.State = WalkInEscalated
		metrics.IncWalkIn(string(WalkInEscalated))
		log.Warn().
			Int("resolved", len(outcome.Resolved)).
			Int("unresolved", len(outcome.Unresolved)).
			Msg("walk-in escalated")
		return outcome, nil
	}

	// Seat the walk-in itself.
	walkIn.StartTime = start
	walkIn.EndTime = end
	if err := c.booker.seat(ctx, walkIn, walkIn.ResourceID, start, end); err != nil {
		if capErr, ok := err.(*capacityFullError); ok {
			outcome.State = WalkInEscalated
			outcome.Unresolved = append(outcome.Unresolved, capErr.conflict())
			metrics.IncWalkIn(string(WalkInEscalated))
			return outcome, nil
		}
		return nil, fmt.Errorf("seat walk-in: %w", err)
	}
	walkIn.Status = models.BookingConfirmed
	if err := c.bookings.Update(ctx, walkIn); err != nil {
		return nil, fmt.Errorf("update walk-in booking: %w", err)
	}

	cascaded, cascadeResolved, cascadeUnresolved, err := c.cascade(ctx, walkIn, end, log)
	if err != nil {
		return nil, err
	}
	outcome.Cascaded = cascaded
	outcome.Resolved = append(outcome.Resolved, cascadeResolved...)
	outcome.Unresolved = append(outcome.Unresolved, cascadeUnresolved...)

	outcome.State = WalkInSeated
	outcome.Start = start
	outcome.End = end
	metrics.IncWalkIn(string(WalkInSeated))
	log.Info().
		Int("displaced", len(outcome.Resolved)).
		Bool("cascaded", cascaded).
		Msg("walk-in seated")
	return outcome, nil
}

// splitConflicts separates conflicts a displacement can fix (double bookings
// with a known booking) from ones it cannot (closed hours, blocked slots,
// ineligible resource).
func splitConflicts(conflicts []models.SchedulingConflict) (map[int64]models.SchedulingConflict, []models.SchedulingConflict) {
	displaceable := make(map[int64]models.SchedulingConflict)
	var blocking []models.SchedulingConflict
	for _, conflict := range conflicts {
		if conflict.Kind == models.ConflictDoubleBooking && conflict.ConflictingBookingID != nil {
			displaceable[*conflict.ConflictingBookingID] = conflict
			continue
		}
		blocking = append(blocking, conflict)
	}
	return displaceable, blocking
}

// resolveConflict tries Relocate then Delay for one conflicting booking,
// stopping at the first success.
func (c *Coordinator) resolveConflict(ctx context.Context, bookingID int64, walkIn *models.Booking, walkInStart, walkInEnd time.Time, log zerolog.Logger) (*Resolution, *models.SchedulingConflict, error) {
	booking, err := c.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, nil, fmt.Errorf("load conflicting booking %d: %w", bookingID, err)
	}

	if booking.Priority > walkIn.Priority {
		id := booking.ID
		return nil, &models.SchedulingConflict{
			Kind:                 models.ConflictDoubleBooking,
			Message:              fmt.Sprintf("booking %d outranks the walk-in and cannot be displaced", booking.ID),
			RequestedTime:        walkInStart,
			ConflictingBookingID: &id,
			ResourceID:           &booking.ResourceID,
		}, nil
	}

	if res, err := c.tryRelocate(ctx, booking, walkIn.ResourceID, log); err != nil {
		return nil, nil, err
	} else if res != nil {
		return res, nil, nil
	}

	if res, err := c.tryDelay(ctx, booking, walkIn.ResourceID, walkInStart, walkInEnd, log); err != nil {
		return nil, nil, err
	} else if res != nil {
		return res, nil, nil
	}

	id := booking.ID
	return nil, &models.SchedulingConflict{
		Kind:                 models.ConflictDoubleBooking,
		Message:              fmt.Sprintf("no relocation or delay found for booking %d", booking.ID),
		RequestedTime:        walkInStart,
		ConflictingBookingID: &id,
		ResourceID:           &booking.ResourceID,
	}, nil
}

// tryRelocate searches other eligible resources for the booking's own time
// window and moves it to the first free one.
func (c *Coordinator) tryRelocate(ctx context.Context, booking *models.Booking, walkInResourceID int64, log zerolog.Logger) (*Resolution, error) {
	candidates, err := c.resources.ListEligible(ctx, booking.Criteria())
	if err != nil {
		return nil, fmt.Errorf("list relocation candidates: %w", err)
	}

	oldResource := booking.ResourceID
	oldStart := booking.StartTime

	for _, candidate := range candidates {
		candID := candidate.ResourceID()
		if candID == booking.ResourceID || candID == walkInResourceID {
			continue
		}

		free, err := c.windowFree(ctx, candID, booking.StartTime, booking.EndTime, booking.ID)
		if err != nil {
			log.Warn().Err(err).Int64("candidate_id", candID).Msg("relocation overlap check failed, skipping candidate")
			continue
		}
		if !free {
			continue
		}

		if err := c.booker.move(ctx, booking, booking.StartTime, candID); err != nil {
			if _, full := err.(*capacityFullError); full {
				continue
			}
			return nil, err
		}

		c.notifyBayChanged(ctx, booking.ID, candID, log)
		metrics.IncDisplacement(string(ResolutionRelocated))
		return &Resolution{
			BookingID:     booking.ID,
			Kind:          ResolutionRelocated,
			OldStart:      oldStart,
			NewStart:      booking.StartTime,
			OldResourceID: oldResource,
			NewResourceID: candID,
		}, nil
	}
	return nil, nil
}

// tryDelay walks fixed offsets forward from the booking's original start,
// bounded by closing time, over every eligible resource.
func (c *Coordinator) tryDelay(ctx context.Context, booking *models.Booking, walkInResourceID int64, walkInStart, walkInEnd time.Time, log zerolog.Logger) (*Resolution, error) {
	candidates, err := c.resources.ListEligible(ctx, booking.Criteria())
	if err != nil {
		return nil, fmt.Errorf("list delay candidates: %w", err)
	}

	closing, open, err := c.calendar.CloseOn(ctx, booking.StartTime)
	if err != nil {
		return nil, fmt.Errorf("closing time: %w", err)
	}
	if !open {
		return nil, nil
	}

	oldResource := booking.ResourceID
	oldStart := booking.StartTime
	duration := booking.Duration()

	for _, offset := range delayOffsets {
		newStart := oldStart.Add(offset)
		newEnd := newStart.Add(duration)
		if newEnd.After(closing) {
			break
		}

		for _, candidate := range candidates {
			candID := candidate.ResourceID()
			// The walk-in window itself is not yet persisted as a slot; keep
			// delayed bookings clear of it explicitly.
			if candID == walkInResourceID && newStart.Before(walkInEnd) && walkInStart.Before(newEnd) {
				continue
			}

			free, err := c.windowFree(ctx, candID, newStart, newEnd, booking.ID)
			if err != nil {
				log.Warn().Err(err).Int64("candidate_id", candID).Msg("delay overlap check failed, skipping candidate")
				continue
			}
			if !free {
				continue
			}

			if err := c.booker.move(ctx, booking, newStart, candID); err != nil {
				if _, full := err.(*capacityFullError); full {
					continue
				}
				return nil, err
			}

			c.notifyRescheduled(ctx, booking.ID, oldStart, newStart, log)
			metrics.IncDisplacement(string(ResolutionDelayed))
			return &Resolution{
				BookingID:     booking.ID,
				Kind:          ResolutionDelayed,
				OldStart:      oldStart,
				NewStart:      newStart,
				OldResourceID: oldResource,
				NewResourceID: candID,
			}, nil
		}
	}
	return nil, nil
}

// cascade pushes forward bookings crowded by the walk-in's end time. An
// explicit work queue with a visited set keeps the process iterative and
// terminating; MaxCascadeDepth bounds the total number of pushes per run.
func (c *Coordinator) cascade(ctx context.Context, walkIn *models.Booking, walkInEnd time.Time, log zerolog.Logger) (bool, []Resolution, []models.SchedulingConflict, error) {
	buffer := time.Duration(c.rules.DefaultBufferMinutes) * time.Minute
	if buffer <= 0 {
		return false, nil, nil, nil
	}

	type push struct {
		bookingID int64
		after     time.Time // earliest acceptable start
	}

	var resolved []Resolution
	var unresolved []models.SchedulingConflict
	visited := map[int64]struct{}{walkIn.ID: {}}
	depth := 0

	queue, err := c.crowdedBookings(ctx, walkIn.ResourceID, walkInEnd, buffer, visited)
	if err != nil {
		return false, nil, nil, err
	}
	cascaded := len(queue) > 0

	var work []push
	for _, id := range queue {
		work = append(work, push{bookingID: id, after: walkInEnd.Add(buffer)})
	}

	for len(work) > 0 {
		item := work[0]
		work = work[1:]
		if _, seen := visited[item.bookingID]; seen {
			continue
		}
		visited[item.bookingID] = struct{}{}

		if depth >= c.rules.MaxCascadeDepth {
			id := item.bookingID
			unresolved = append(unresolved, models.SchedulingConflict{
				Kind:                 models.ConflictDoubleBooking,
				Message:              fmt.Sprintf("cascade depth limit reached before booking %d could be adjusted", id),
				RequestedTime:        item.after,
				ConflictingBookingID: &id,
			})
			continue
		}
		depth++

		booking, err := c.bookings.GetByID(ctx, item.bookingID)
		if err != nil {
			return cascaded, resolved, unresolved, fmt.Errorf("load cascade booking %d: %w", item.bookingID, err)
		}
		if !booking.IsActive() || !booking.StartTime.Before(item.after) {
			continue
		}

		newStart := item.after
		oldStart := booking.StartTime
		newEnd := newStart.Add(booking.Duration())

		// Anyone crowded by this booking's new end joins the queue before the
		// move so the overlap query does not see the booking's own new slot.
		next, err := c.crowdedBookings(ctx, booking.ResourceID, newEnd, buffer, visited)
		if err != nil {
			return cascaded, resolved, unresolved, err
		}

		if err := c.booker.move(ctx, booking, newStart, booking.ResourceID); err != nil {
			if _, full := err.(*capacityFullError); !full {
				return cascaded, resolved, unresolved, err
			}
			// Same-day same-resource push should never change capacity, but a
			// full counter still means the push failed.
			id := booking.ID
			unresolved = append(unresolved, models.SchedulingConflict{
				Kind:                 models.ConflictDoubleBooking,
				Message:              fmt.Sprintf("no room to push booking %d to %s", id, newStart.Format("15:04")),
				RequestedTime:        newStart,
				ConflictingBookingID: &id,
				ResourceID:           &booking.ResourceID,
			})
			continue
		}

		c.notifyRescheduled(ctx, booking.ID, oldStart, newStart, log)
		metrics.IncDisplacement(string(ResolutionDelayed))
		resolved = append(resolved, Resolution{
			BookingID:     booking.ID,
			Kind:          ResolutionDelayed,
			OldStart:      oldStart,
			NewStart:      newStart,
			OldResourceID: booking.ResourceID,
			NewResourceID: booking.ResourceID,
		})

		for _, id := range next {
			work = append(work, push{bookingID: id, after: newEnd.Add(buffer)})
		}
	}

	return cascaded, resolved, unresolved, nil
}

// windowFree reports whether the resource has no Booked or Blocked slot
// intersecting [start, end), ignoring the booking's own slot.
func (c *Coordinator) windowFree(ctx context.Context, resourceID int64, start, end time.Time, excludeBookingID int64) (bool, error) {
	colliding, err := c.slots.CheckOverlap(ctx, start, end, &resourceID, &excludeBookingID)
	if err != nil {
		return false, err
	}
	return len(colliding) == 0, nil
}

// crowdedBookings returns active bookings on the resource whose slot
// intersects [end, end+buffer), excluding already-visited ones.
func (c *Coordinator) crowdedBookings(ctx context.Context, resourceID int64, end time.Time, buffer time.Duration, visited map[int64]struct{}) ([]int64, error) {
	slots, err := c.slots.CheckOverlap(ctx, end, end.Add(buffer), &resourceID, nil)
	if err != nil {
		return nil, fmt.Errorf("find crowded bookings: %w", err)
	}
	var ids []int64
	for _, slot := range slots {
		if slot.Status != models.SlotBooked || slot.BookingID == nil {
			continue
		}
		if _, seen := visited[*slot.BookingID]; seen {
			continue
		}
		ids = append(ids, *slot.BookingID)
	}
	return ids, nil
}

func (c *Coordinator) notifyRescheduled(ctx context.Context, bookingID int64, oldTime, newTime time.Time, log zerolog.Logger) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.NotifyRescheduled(ctx, bookingID, oldTime, newTime); err != nil {
		log.Warn().Err(err).Int64("notified_booking_id", bookingID).Msg("reschedule notification failed")
	}
}

func (c *Coordinator) notifyBayChanged(ctx context.Context, bookingID int64, newResourceID int64, log zerolog.Logger) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.NotifyBayChanged(ctx, bookingID, newResourceID); err != nil {
		log.Warn().Err(err).Int64("notified_booking_id", bookingID).Msg("bay change notification failed")
	}
}
