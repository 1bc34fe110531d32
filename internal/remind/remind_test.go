package remind

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"washplan/internal/models"
)

type fakeSource struct {
	due    []models.Booking
	marked []int64
	err    error
}

func (f *fakeSource) ListUpcomingUnreminded(ctx context.Context, within time.Duration) ([]models.Booking, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.due, nil
}

func (f *fakeSource) MarkReminderSent(ctx context.Context, bookingID int64) error {
	f.marked = append(f.marked, bookingID)
	return nil
}

type fakeNotifier struct {
	notified []int64
	failFor  map[int64]error
}

func (f *fakeNotifier) NotifyUpcoming(ctx context.Context, bookingID int64, start time.Time) error {
	if err := f.failFor[bookingID]; err != nil {
		return err
	}
	f.notified = append(f.notified, bookingID)
	return nil
}

func dueBooking(id int64, in time.Duration) models.Booking {
	start := time.Now().Add(in)
	return models.Booking{
		ID:        id,
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Status:    models.BookingConfirmed,
	}
}

func TestRunOnceSendsAndMarks(t *testing.T) {
	source := &fakeSource{due: []models.Booking{dueBooking(1, 2*time.Hour), dueBooking(2, 20*time.Hour)}}
	notifier := &fakeNotifier{}
	s := NewScheduler(Config{}, source, notifier, zerolog.Nop())

	sent, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, []int64{1, 2}, notifier.notified)
	assert.Equal(t, []int64{1, 2}, source.marked)
}

func TestRunOnceLeavesFailedDeliveriesUnmarked(t *testing.T) {
	source := &fakeSource{due: []models.Booking{dueBooking(1, 2*time.Hour), dueBooking(2, 3*time.Hour)}}
	notifier := &fakeNotifier{failFor: map[int64]error{1: errors.New("channel down")}}
	s := NewScheduler(Config{}, source, notifier, zerolog.Nop())

	sent, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	// Booking 1 stays unmarked and is retried on the next sweep.
	assert.Equal(t, []int64{2}, source.marked)
}

func TestRunOnceSourceErrorPropagates(t *testing.T) {
	source := &fakeSource{err: errors.New("db gone")}
	s := NewScheduler(Config{}, source, &fakeNotifier{}, zerolog.Nop())

	_, err := s.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestRunOnceStopsOnCancel(t *testing.T) {
	source := &fakeSource{due: []models.Booking{dueBooking(1, time.Hour), dueBooking(2, 2*time.Hour)}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewScheduler(Config{}, source, &fakeNotifier{}, zerolog.Nop())
	sent, err := s.RunOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sent)
}

func TestNewSchedulerDefaults(t *testing.T) {
	s := NewScheduler(Config{}, &fakeSource{}, &fakeNotifier{}, zerolog.Nop())
	assert.Equal(t, 24*time.Hour, s.config.Horizon)
	assert.Equal(t, 15*time.Minute, s.config.CheckInterval)
}
