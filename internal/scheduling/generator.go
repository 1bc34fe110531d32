package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"washplan/internal/models"
)

// Generator produces and persists candidate slots for a resource. Generation
// is idempotent: re-running an already-populated range creates no duplicates
// because the store enforces uniqueness on (resource, start, end).
type Generator struct {
	calendar *Calendar
	slots    TimeSlotStore
	logger   zerolog.Logger
}

// NewGenerator creates a slot generator.
func NewGenerator(calendar *Calendar, slots TimeSlotStore, logger zerolog.Logger) *Generator {
	return &Generator{
		calendar: calendar,
		slots:    slots,
		logger:   logger.With().Str("component", "slot_generator").Logger(),
	}
}

// GenerateSlots walks each date in [from, to] and persists Available slots of
// slotDuration between open and close, skipping closed days and slots that
// intersect a break. Returns all slots for the range, including ones that
// already existed.
func (g *Generator) GenerateSlots(ctx context.Context, resourceID int64, from, to time.Time, slotDuration time.Duration) ([]models.TimeSlot, error) {
	if slotDuration <= 0 {
		slotDuration = 30 * time.Minute
	}
	if to.Before(from) {
		return nil, newValidationError("date_range", "end %s before start %s", to.Format("2006-01-02"), from.Format("2006-01-02"))
	}

	var generated []models.TimeSlot
	created, skipped := 0, 0

	for date := models.DayKey(from); !date.After(to); date = date.AddDate(0, 0, 1) {
		hours, err := g.calendar.HoursFor(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("hours for %s: %w", date.Format("2006-01-02"), err)
		}
		if hours == nil {
			continue
		}

		daySlots, err := g.generateDay(ctx, resourceID, date, hours, slotDuration, &created, &skipped)
		if err != nil {
			return nil, err
		}
		generated = append(generated, daySlots...)
	}

	g.logger.Debug().
		Int64("resource_id", resourceID).
		Int("created", created).
		Int("existing", skipped).
		Msg("slot generation finished")

	return generated, nil
}

func (g *Generator) generateDay(ctx context.Context, resourceID int64, date time.Time, hours *models.BusinessHours, slotDuration time.Duration, created, skipped *int) ([]models.TimeSlot, error) {
	open, err := AtTimeOfDay(date, hours.OpenTime)
	if err != nil {
		return nil, fmt.Errorf("parse open time: %w", err)
	}
	close, err := AtTimeOfDay(date, hours.CloseTime)
	if err != nil {
		return nil, fmt.Errorf("parse close time: %w", err)
	}

	breaks, err := resolveBreaks(date, hours.Breaks)
	if err != nil {
		return nil, err
	}

	var slots []models.TimeSlot
	for cursor := open; !cursor.Add(slotDuration).After(close); cursor = cursor.Add(slotDuration) {
		slotStart := cursor
		slotEnd := cursor.Add(slotDuration)

		if intersectsAny(slotStart, slotEnd, breaks) {
			continue
		}

		slot := models.TimeSlot{
			ResourceID: resourceID,
			StartTime:  slotStart,
			EndTime:    slotEnd,
			Status:     models.SlotAvailable,
		}
		err := g.slots.Create(ctx, &slot)
		switch {
		case errors.Is(err, ErrDuplicateSlot):
			*skipped++
		case err != nil:
			return nil, fmt.Errorf("create slot %s: %w", slotStart.Format(time.RFC3339), err)
		default:
			*created++
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

type interval struct {
	start, end time.Time
}

func resolveBreaks(date time.Time, breaks []models.BreakPeriod) ([]interval, error) {
	resolved := make([]interval, 0, len(breaks))
	for _, br := range breaks {
		start, err := AtTimeOfDay(date, br.Start)
		if err != nil {
			return nil, fmt.Errorf("parse break start: %w", err)
		}
		end, err := AtTimeOfDay(date, br.End)
		if err != nil {
			return nil, fmt.Errorf("parse break end: %w", err)
		}
		resolved = append(resolved, interval{start: start, end: end})
	}
	return resolved, nil
}

func intersectsAny(start, end time.Time, intervals []interval) bool {
	for _, iv := range intervals {
		if start.Before(iv.end) && iv.start.Before(end) {
			return true
		}
	}
	return false
}
