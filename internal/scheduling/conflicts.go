package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"washplan/internal/metrics"
	"washplan/internal/models"
)

// ConflictCheck describes a prospective booking to validate.
type ConflictCheck struct {
	StartTime         time.Time
	Duration          time.Duration
	RequiredEquipment []string
	VehicleSize       models.VehicleSize
	Location          *models.GeoPoint
	Mode              models.ServiceMode
	CustomerID        int64
	// ResourceID narrows double-booking checks to one resource (walk-ins).
	ResourceID *int64
	// ExcludeBookingID skips that booking's own slot when re-validating a
	// reschedule.
	ExcludeBookingID *int64
	// SkipNotice exempts the check from advance-notice rules. Walk-ins start
	// immediately and are handled outside the advance-booking flow.
	SkipNotice bool
}

// Detector validates prospective bookings against business hours, notice
// windows, resource eligibility and existing reservations. All checks run;
// conflicts accumulate so the caller sees every reason a time is invalid.
type Detector struct {
	calendar  *Calendar
	resources ResourceStore
	slots     TimeSlotStore
	rules     Rules
	logger    zerolog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewDetector creates a conflict detector.
func NewDetector(calendar *Calendar, resources ResourceStore, slots TimeSlotStore, rules Rules, logger zerolog.Logger) *Detector {
	return &Detector{
		calendar:  calendar,
		resources: resources,
		slots:     slots,
		rules:     rules,
		logger:    logger.With().Str("component", "conflict_detector").Logger(),
		now:       time.Now,
	}
}

// CheckConflicts runs every check and returns the accumulated conflicts.
// An empty result means the time is bookable. Only store-level failures
// surface as errors.
func (d *Detector) CheckConflicts(ctx context.Context, check ConflictCheck) ([]models.SchedulingConflict, error) {
	if check.Duration <= 0 {
		return nil, newValidationError("duration", "must be positive, got %s", check.Duration)
	}

	var conflicts []models.SchedulingConflict
	end := check.StartTime.Add(check.Duration)

	hoursConflicts, err := d.checkBusinessHours(ctx, check.StartTime, end)
	if err != nil {
		return nil, err
	}
	conflicts = append(conflicts, hoursConflicts...)

	if !check.SkipNotice {
		conflicts = append(conflicts, d.checkNotice(check.StartTime)...)
	}

	eligible, eligConflict := d.resolveEligible(ctx, check)
	if eligConflict != nil {
		conflicts = append(conflicts, *eligConflict)
	}

	overlapConflicts, err := d.checkDoubleBooking(ctx, check, eligible, end)
	if err != nil {
		return nil, err
	}
	conflicts = append(conflicts, overlapConflicts...)

	for _, c := range conflicts {
		metrics.IncConflict(string(c.Kind))
	}
	return conflicts, nil
}

func (d *Detector) checkBusinessHours(ctx context.Context, start, end time.Time) ([]models.SchedulingConflict, error) {
	openAtStart, err := d.calendar.IsOpenAt(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("check open at start: %w", err)
	}
	if !openAtStart {
		return []models.SchedulingConflict{{
			Kind:          models.ConflictOutsideHours,
			Message:       fmt.Sprintf("requested time %s is outside business hours", start.Format("2006-01-02 15:04")),
			RequestedTime: start,
		}}, nil
	}

	close, ok, err := d.calendar.CloseOn(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("closing time: %w", err)
	}
	if ok && end.After(close) {
		return []models.SchedulingConflict{{
			Kind:          models.ConflictOutsideHours,
			Message:       fmt.Sprintf("service would end %s, after closing time %s", end.Format("15:04"), close.Format("15:04")),
			RequestedTime: start,
		}}, nil
	}
	return nil, nil
}

func (d *Detector) checkNotice(start time.Time) []models.SchedulingConflict {
	var conflicts []models.SchedulingConflict
	lead := start.Sub(d.now())

	if lead < d.rules.MinAdvance {
		conflicts = append(conflicts, models.SchedulingConflict{
			Kind:          models.ConflictInsufficientNotice,
			Message:       fmt.Sprintf("bookings require at least %s advance notice", d.rules.MinAdvance),
			RequestedTime: start,
		})
	}
	if lead > d.rules.MaxAdvance {
		conflicts = append(conflicts, models.SchedulingConflict{
			Kind:          models.ConflictInsufficientNotice,
			Message:       fmt.Sprintf("bookings are accepted at most %d days ahead", int(d.rules.MaxAdvance.Hours()/24)),
			RequestedTime: start,
		})
	}
	return conflicts
}

// resolveEligible returns the resources to check for double-booking; a nil
// slice with a conflict means nothing can serve the request at all.
func (d *Detector) resolveEligible(ctx context.Context, check ConflictCheck) ([]models.Resource, *models.SchedulingConflict) {
	if check.ResourceID != nil {
		r, err := d.resources.GetByID(ctx, *check.ResourceID)
		if err != nil {
			d.logger.Warn().Err(err).Int64("resource_id", *check.ResourceID).Msg("resource lookup failed, treating as unavailable")
			return nil, &models.SchedulingConflict{
				Kind:          models.ConflictResourceUnavailable,
				Message:       fmt.Sprintf("resource %d is not available", *check.ResourceID),
				RequestedTime: check.StartTime,
				ResourceID:    check.ResourceID,
			}
		}
		if !r.EligibleFor(d.criteria(check)) {
			return nil, &models.SchedulingConflict{
				Kind:          models.ConflictResourceUnavailable,
				Message:       fmt.Sprintf("resource %d cannot serve this request", *check.ResourceID),
				RequestedTime: check.StartTime,
				ResourceID:    check.ResourceID,
			}
		}
		return []models.Resource{r}, nil
	}

	eligible, err := d.resources.ListEligible(ctx, d.criteria(check))
	if err != nil {
		d.logger.Warn().Err(err).Msg("eligibility listing failed, treating as unavailable")
		eligible = nil
	}
	if len(eligible) == 0 {
		return nil, &models.SchedulingConflict{
			Kind:          models.ConflictResourceUnavailable,
			Message:       "no active resource matches the required equipment",
			RequestedTime: check.StartTime,
		}
	}
	return eligible, nil
}

func (d *Detector) criteria(check ConflictCheck) models.EligibilityCriteria {
	return models.EligibilityCriteria{
		RequiredEquipment: check.RequiredEquipment,
		VehicleSize:       check.VehicleSize,
		Location:          check.Location,
		Mode:              check.Mode,
	}
}

func (d *Detector) checkDoubleBooking(ctx context.Context, check ConflictCheck, eligible []models.Resource, end time.Time) ([]models.SchedulingConflict, error) {
	var conflicts []models.SchedulingConflict
	for _, r := range eligible {
		id := r.ResourceID()
		colliding, err := d.slots.CheckOverlap(ctx, check.StartTime, end, &id, check.ExcludeBookingID)
		if err != nil {
			return nil, fmt.Errorf("overlap check for resource %d: %w", id, err)
		}
		for _, slot := range colliding {
			conflicts = append(conflicts, d.slotConflict(check.StartTime, id, slot))
		}
	}
	return conflicts, nil
}

func (d *Detector) slotConflict(requested time.Time, resourceID int64, slot models.TimeSlot) models.SchedulingConflict {
	if slot.Status == models.SlotBlocked {
		msg := fmt.Sprintf("resource %d is blocked %s-%s", resourceID, slot.StartTime.Format("15:04"), slot.EndTime.Format("15:04"))
		if slot.BlockReason != "" {
			msg = fmt.Sprintf("%s (%s)", msg, slot.BlockReason)
		}
		return models.SchedulingConflict{
			Kind:          models.ConflictMaintenanceWindow,
			Message:       msg,
			RequestedTime: requested,
			ResourceID:    &resourceID,
		}
	}
	return models.SchedulingConflict{
		Kind:                 models.ConflictDoubleBooking,
		Message:              fmt.Sprintf("resource %d already has a booking %s-%s", resourceID, slot.StartTime.Format("15:04"), slot.EndTime.Format("15:04")),
		RequestedTime:        requested,
		ConflictingBookingID: slot.BookingID,
		ResourceID:           &resourceID,
	}
}
