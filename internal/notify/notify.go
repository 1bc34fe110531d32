// Package notify delivers displacement notices to customers and staff.
// Delivery is best-effort: the scheduling engine logs failures and moves on.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Multi fans a notice out to every configured channel. The first error is
// returned after all channels have been tried.
type Multi struct {
	ports []Port
}

// Port mirrors the engine's notification contract so channel implementations
// stay in this package.
type Port interface {
	NotifyRescheduled(ctx context.Context, bookingID int64, oldTime, newTime time.Time) error
	NotifyBayChanged(ctx context.Context, bookingID int64, newResourceID int64) error
	NotifyUpcoming(ctx context.Context, bookingID int64, start time.Time) error
}

// NewMulti builds a fan-out over the given channels.
func NewMulti(ports ...Port) *Multi {
	return &Multi{ports: ports}
}

func (m *Multi) NotifyRescheduled(ctx context.Context, bookingID int64, oldTime, newTime time.Time) error {
	var first error
	for _, p := range m.ports {
		if err := p.NotifyRescheduled(ctx, bookingID, oldTime, newTime); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *Multi) NotifyBayChanged(ctx context.Context, bookingID int64, newResourceID int64) error {
	var first error
	for _, p := range m.ports {
		if err := p.NotifyBayChanged(ctx, bookingID, newResourceID); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *Multi) NotifyUpcoming(ctx context.Context, bookingID int64, start time.Time) error {
	var first error
	for _, p := range m.ports {
		if err := p.NotifyUpcoming(ctx, bookingID, start); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LogNotifier writes notices to the service log. Always configured, so a
// displacement leaves a trace even with no external channel set up.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) NotifyRescheduled(ctx context.Context, bookingID int64, oldTime, newTime time.Time) error {
	n.logger.Info().
		Int64("booking_id", bookingID).
		Time("old_time", oldTime).
		Time("new_time", newTime).
		Msg("Booking rescheduled")
	return nil
}

func (n *LogNotifier) NotifyBayChanged(ctx context.Context, bookingID int64, newResourceID int64) error {
	n.logger.Info().
		Int64("booking_id", bookingID).
		Int64("resource_id", newResourceID).
		Msg("Booking moved to another bay")
	return nil
}

func (n *LogNotifier) NotifyUpcoming(ctx context.Context, bookingID int64, start time.Time) error {
	n.logger.Info().
		Int64("booking_id", bookingID).
		Time("start", start).
		Msg("Booking reminder")
	return nil
}
