package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"washplan/internal/models"
)

func kinds(conflicts []models.SchedulingConflict) []models.ConflictKind {
	if len(conflicts) == 0 {
		return nil
	}
	out := make([]models.ConflictKind, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, c.Kind)
	}
	return out
}

func TestCheckConflictsBusinessHours(t *testing.T) {
	env := newEngineEnv()
	env.resources.add(bay(1))
	ctx := context.Background()

	tests := []struct {
		name     string
		start    time.Time
		duration time.Duration
		want     []models.ConflictKind
	}{
		{"inside hours", at(11, 0), time.Hour, nil},
		{"before opening", at(7, 0), time.Hour, []models.ConflictKind{models.ConflictOutsideHours, models.ConflictInsufficientNotice}},
		{"runs past closing", at(17, 30), time.Hour, []models.ConflictKind{models.ConflictOutsideHours}},
		{"closed sunday", at(11, 0).AddDate(0, 0, 6), time.Hour, []models.ConflictKind{models.ConflictOutsideHours}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conflicts, err := env.detector.CheckConflicts(ctx, ConflictCheck{
				StartTime: tt.start,
				Duration:  tt.duration,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, kinds(conflicts))
		})
	}
}

func TestCheckConflictsNotice(t *testing.T) {
	env := newEngineEnv()
	env.resources.add(bay(1))
	ctx := context.Background()

	t.Run("too little notice", func(t *testing.T) {
		conflicts, err := env.detector.CheckConflicts(ctx, ConflictCheck{
			StartTime: at(9, 30),
			Duration:  time.Hour,
		})
		require.NoError(t, err)
		assert.Equal(t, []models.ConflictKind{models.ConflictInsufficientNotice}, kinds(conflicts))
	})

	t.Run("too far ahead", func(t *testing.T) {
		conflicts, err := env.detector.CheckConflicts(ctx, ConflictCheck{
			StartTime: at(11, 0).AddDate(0, 0, 35),
			Duration:  time.Hour,
		})
		require.NoError(t, err)
		assert.Equal(t, []models.ConflictKind{models.ConflictInsufficientNotice}, kinds(conflicts))
	})

	t.Run("walk-ins skip notice rules", func(t *testing.T) {
		conflicts, err := env.detector.CheckConflicts(ctx, ConflictCheck{
			StartTime:  at(9, 30),
			Duration:   time.Hour,
			SkipNotice: true,
		})
		require.NoError(t, err)
		assert.Empty(t, conflicts)
	})
}

func TestCheckConflictsResourceUnavailable(t *testing.T) {
	env := newEngineEnv()
	env.resources.add(bay(1, "foam_cannon"))
	ctx := context.Background()

	t.Run("no resource has the equipment", func(t *testing.T) {
		conflicts, err := env.detector.CheckConflicts(ctx, ConflictCheck{
			StartTime:         at(11, 0),
			Duration:          time.Hour,
			RequiredEquipment: []string{"undercarriage_jet"},
		})
		require.NoError(t, err)
		assert.Equal(t, []models.ConflictKind{models.ConflictResourceUnavailable}, kinds(conflicts))
	})

	t.Run("pinned resource missing", func(t *testing.T) {
		conflicts, err := env.detector.CheckConflicts(ctx, ConflictCheck{
			StartTime:  at(11, 0),
			Duration:   time.Hour,
			ResourceID: int64Ptr(42),
		})
		require.NoError(t, err)
		require.Len(t, conflicts, 1)
		assert.Equal(t, models.ConflictResourceUnavailable, conflicts[0].Kind)
		assert.Equal(t, int64Ptr(42), conflicts[0].ResourceID)
	})

	t.Run("pinned resource ineligible", func(t *testing.T) {
		conflicts, err := env.detector.CheckConflicts(ctx, ConflictCheck{
			StartTime:         at(11, 0),
			Duration:          time.Hour,
			RequiredEquipment: []string{"undercarriage_jet"},
			ResourceID:        int64Ptr(1),
		})
		require.NoError(t, err)
		assert.Equal(t, []models.ConflictKind{models.ConflictResourceUnavailable}, kinds(conflicts))
	})
}

func TestCheckConflictsDoubleBooking(t *testing.T) {
	env := newEngineEnv()
	env.resources.add(bay(1))
	env.resources.add(bay(2))
	ctx := context.Background()

	bookingID := int64(7)
	require.NoError(t, env.slots.Create(ctx, &models.TimeSlot{
		ResourceID: 1,
		StartTime:  at(11, 0),
		EndTime:    at(12, 0),
		Status:     models.SlotBooked,
		BookingID:  &bookingID,
	}))

	t.Run("overlap on one of the eligible resources", func(t *testing.T) {
		conflicts, err := env.detector.CheckConflicts(ctx, ConflictCheck{
			StartTime: at(11, 30),
			Duration:  time.Hour,
		})
		require.NoError(t, err)
		require.Len(t, conflicts, 1)
		assert.Equal(t, models.ConflictDoubleBooking, conflicts[0].Kind)
		assert.Equal(t, &bookingID, conflicts[0].ConflictingBookingID)
		assert.Equal(t, int64Ptr(1), conflicts[0].ResourceID)
	})

	t.Run("own slot excluded when rescheduling", func(t *testing.T) {
		conflicts, err := env.detector.CheckConflicts(ctx, ConflictCheck{
			StartTime:        at(11, 30),
			Duration:         time.Hour,
			ResourceID:       int64Ptr(1),
			ExcludeBookingID: &bookingID,
		})
		require.NoError(t, err)
		assert.Empty(t, conflicts)
	})

	t.Run("blocked slot reports maintenance window", func(t *testing.T) {
		require.NoError(t, env.slots.Create(ctx, &models.TimeSlot{
			ResourceID:  2,
			StartTime:   at(14, 0),
			EndTime:     at(16, 0),
			Status:      models.SlotBlocked,
			BlockReason: "pump repair",
		}))

		conflicts, err := env.detector.CheckConflicts(ctx, ConflictCheck{
			StartTime:  at(14, 30),
			Duration:   time.Hour,
			ResourceID: int64Ptr(2),
		})
		require.NoError(t, err)
		require.Len(t, conflicts, 1)
		assert.Equal(t, models.ConflictMaintenanceWindow, conflicts[0].Kind)
		assert.Contains(t, conflicts[0].Message, "pump repair")
	})
}

func TestCheckConflictsValidation(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()

	_, err := env.detector.CheckConflicts(ctx, ConflictCheck{StartTime: at(11, 0)})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}
