package scheduling

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"washplan/internal/models"
)

// Calendar answers business-hour questions for specific dates. Pure reads;
// per-date overrides win over the weekly schedule.
type Calendar struct {
	hours  BusinessHoursStore
	logger zerolog.Logger
}

// NewCalendar creates a calendar over the hours store.
func NewCalendar(hours BusinessHoursStore, logger zerolog.Logger) *Calendar {
	return &Calendar{
		hours:  hours,
		logger: logger.With().Str("component", "calendar").Logger(),
	}
}

// HoursFor returns the effective hours for a date, or nil when the business
// is closed that day.
func (c *Calendar) HoursFor(ctx context.Context, date time.Time) (*models.BusinessHours, error) {
	override, err := c.hours.GetOverride(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("get override: %w", err)
	}

	all, err := c.hours.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("get hours: %w", err)
	}

	weekly, ok := all[models.WeekdayNumber(date.Weekday())]
	if override != nil {
		if override.IsClosed {
			return nil, nil
		}
		// Special hours for one date; weekly breaks still apply.
		effective := weekly
		effective.DayOfWeek = models.WeekdayNumber(date.Weekday())
		effective.IsClosed = false
		if override.OpenTime != "" {
			effective.OpenTime = override.OpenTime
		}
		if override.CloseTime != "" {
			effective.CloseTime = override.CloseTime
		}
		// An override on a day with no weekly record can leave a missing
		// open or close; treat that as closed rather than surfacing clock
		// parse errors downstream.
		if effective.OpenTime == "" || effective.CloseTime == "" {
			return nil, nil
		}
		return &effective, nil
	}

	if !ok || weekly.IsClosed {
		return nil, nil
	}
	return &weekly, nil
}

// IsOpenAt reports whether the business is open at t. False when the day is
// closed or t falls inside a break.
func (c *Calendar) IsOpenAt(ctx context.Context, t time.Time) (bool, error) {
	hours, err := c.HoursFor(ctx, t)
	if err != nil {
		return false, err
	}
	if hours == nil {
		return false, nil
	}

	open, err := AtTimeOfDay(t, hours.OpenTime)
	if err != nil {
		return false, fmt.Errorf("parse open time: %w", err)
	}
	close, err := AtTimeOfDay(t, hours.CloseTime)
	if err != nil {
		return false, fmt.Errorf("parse close time: %w", err)
	}

	if t.Before(open) || !t.Before(close) {
		return false, nil
	}

	for _, br := range hours.Breaks {
		brStart, err := AtTimeOfDay(t, br.Start)
		if err != nil {
			c.logger.Warn().Str("break_start", br.Start).Msg("unparseable break period, skipping")
			continue
		}
		brEnd, err := AtTimeOfDay(t, br.End)
		if err != nil {
			continue
		}
		if !t.Before(brStart) && t.Before(brEnd) {
			return false, nil
		}
	}
	return true, nil
}

// NextOpenDay scans forward up to 7 days for the next open date, inclusive of
// from. Returns the zero time when the whole week is closed.
func (c *Calendar) NextOpenDay(ctx context.Context, from time.Time) (time.Time, error) {
	for i := 0; i < 7; i++ {
		date := models.DayKey(from.AddDate(0, 0, i))
		hours, err := c.HoursFor(ctx, date)
		if err != nil {
			return time.Time{}, err
		}
		if hours != nil {
			return date, nil
		}
	}
	return time.Time{}, nil
}

// CloseOn returns the closing instant for a date, or false when closed.
func (c *Calendar) CloseOn(ctx context.Context, date time.Time) (time.Time, bool, error) {
	hours, err := c.HoursFor(ctx, date)
	if err != nil || hours == nil {
		return time.Time{}, false, err
	}
	close, err := AtTimeOfDay(date, hours.CloseTime)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse close time: %w", err)
	}
	return close, true, nil
}

// AtTimeOfDay combines a date with an "HH:MM" clock string in the date's
// location.
func AtTimeOfDay(date time.Time, clock string) (time.Time, error) {
	parts := strings.Split(clock, ":")
	if len(parts) < 2 {
		return time.Time{}, fmt.Errorf("invalid time format: %s", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid hour: %w", err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid minute: %w", err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("clock out of range: %s", clock)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location()), nil
}
