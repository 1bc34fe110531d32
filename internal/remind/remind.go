// Package remind sends upcoming-booking reminders. A periodic sweep finds
// active bookings starting within the reminder horizon and notifies their
// customers once; the sent flag lives on the booking so restarts never
// double-remind.
package remind

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"washplan/internal/models"
)

// BookingSource lists bookings due a reminder and records delivery.
type BookingSource interface {
	ListUpcomingUnreminded(ctx context.Context, within time.Duration) ([]models.Booking, error)
	MarkReminderSent(ctx context.Context, bookingID int64) error
}

// Notifier delivers one reminder. Failures leave the booking unmarked so the
// next sweep retries it.
type Notifier interface {
	NotifyUpcoming(ctx context.Context, bookingID int64, start time.Time) error
}

// Config holds the reminder sweep knobs.
type Config struct {
	// Horizon is how far ahead of the start time reminders go out.
	Horizon time.Duration
	// CheckInterval is the sweep period.
	CheckInterval time.Duration
}

// DefaultConfig reminds a day ahead, sweeping every fifteen minutes.
func DefaultConfig() Config {
	return Config{
		Horizon:       24 * time.Hour,
		CheckInterval: 15 * time.Minute,
	}
}

// Scheduler runs the periodic reminder sweep.
type Scheduler struct {
	config   Config
	bookings BookingSource
	notifier Notifier
	logger   zerolog.Logger
}

// NewScheduler creates a reminder scheduler. Zero config fields fall back to
// the defaults.
func NewScheduler(config Config, bookings BookingSource, notifier Notifier, logger zerolog.Logger) *Scheduler {
	def := DefaultConfig()
	if config.Horizon <= 0 {
		config.Horizon = def.Horizon
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = def.CheckInterval
	}
	return &Scheduler{
		config:   config,
		bookings: bookings,
		notifier: notifier,
		logger:   logger.With().Str("component", "reminders").Logger(),
	}
}

// Run sweeps until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().
		Dur("horizon", s.config.Horizon).
		Dur("interval", s.config.CheckInterval).
		Msg("reminder scheduler started")

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("reminder scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error().Err(err).Msg("reminder sweep failed")
			}
		}
	}
}

// RunOnce performs a single sweep and returns how many reminders went out.
// A booking whose notification fails is skipped, not marked, and picked up
// again on the next sweep.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	started := time.Now()
	due, err := s.bookings.ListUpcomingUnreminded(ctx, s.config.Horizon)
	if err != nil {
		return 0, err
	}

	sent, failed := 0, 0
	for i := range due {
		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		default:
		}

		b := &due[i]
		if err := s.notifier.NotifyUpcoming(ctx, b.ID, b.StartTime); err != nil {
			failed++
			s.logger.Warn().Err(err).Int64("booking_id", b.ID).Msg("reminder delivery failed")
			continue
		}
		if err := s.bookings.MarkReminderSent(ctx, b.ID); err != nil {
			s.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("failed to mark reminder sent")
			continue
		}
		sent++
	}

	if len(due) > 0 {
		s.logger.Info().
			Int("due", len(due)).
			Int("sent", sent).
			Int("failed", failed).
			Dur("duration", time.Since(started)).
			Msg("reminder sweep finished")
	}
	return sent, nil
}
