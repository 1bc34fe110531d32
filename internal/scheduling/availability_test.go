package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"washplan/internal/models"
)

func searchReq(start, end time.Time) SearchRequest {
	return SearchRequest{
		WindowStart: start,
		WindowEnd:   end,
		Duration:    30 * time.Minute,
		VehicleSize: models.VehicleStandard,
		Mode:        models.ModeStationary,
	}
}

func slotStarts(slots []models.TimeSlot) []time.Time {
	out := make([]time.Time, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.StartTime)
	}
	return out
}

func TestFindAvailableValidation(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()

	tests := []struct {
		name string
		req  SearchRequest
	}{
		{"duration below minimum", SearchRequest{WindowStart: at(10, 0), WindowEnd: at(12, 0), Duration: 10 * time.Minute}},
		{"window end before start", SearchRequest{WindowStart: at(12, 0), WindowEnd: at(10, 0), Duration: time.Hour}},
		{"inverted excluded range", SearchRequest{
			WindowStart: at(10, 0), WindowEnd: at(12, 0), Duration: time.Hour,
			ExcludedRanges: []Window{{Start: at(11, 0), End: at(10, 30)}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.search.FindAvailable(ctx, tt.req, 1, nil)
			require.Error(t, err)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestFindAvailableNoEligibleResource(t *testing.T) {
	env := newEngineEnv()
	env.resources.add(&models.FixedBay{ID: 1, BayNumber: 1, Active: false})
	ctx := context.Background()

	result, err := env.search.FindAvailable(ctx, searchReq(at(10, 0), at(12, 0)), 7, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Slots)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ConflictResourceUnavailable, result.Conflicts[0].Kind)

	// The miss is recorded for analytics.
	require.Len(t, env.conflicts.records, 1)
	assert.Equal(t, models.ConflictResourceUnavailable, env.conflicts.records[0].Kind)
}

func TestFindAvailableReturnsWindowSlots(t *testing.T) {
	env := newEngineEnv()
	env.resources.add(bay(1))
	ctx := context.Background()

	result, err := env.search.FindAvailable(ctx, searchReq(at(10, 0), at(12, 0)), 1, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Conflicts)
	assert.Equal(t, []time.Time{at(10, 0), at(10, 30), at(11, 0), at(11, 30)}, slotStarts(result.Slots))
	assert.NotEmpty(t, result.Suggestions)
	assert.Equal(t, at(10, 0), result.Suggestions[0])
}

func TestFindAvailableSkipsBookedSlots(t *testing.T) {
	env := newEngineEnv()
	env.resources.add(bay(1))
	env.bookings.add(pendingBooking(101, 1, at(10, 30), at(11, 0)))
	ctx := context.Background()

	// Populate, then book one slot.
	_, err := env.search.FindAvailable(ctx, searchReq(at(10, 0), at(12, 0)), 1, nil)
	require.NoError(t, err)
	_, err = env.booker.Confirm(ctx, 101)
	require.NoError(t, err)

	result, err := env.search.FindAvailable(ctx, searchReq(at(10, 0), at(12, 0)), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(10, 0), at(11, 0), at(11, 30)}, slotStarts(result.Slots))
}

func TestFindAvailableDedupesAcrossResources(t *testing.T) {
	env := newEngineEnv()
	env.resources.add(bay(1))
	env.resources.add(bay(2))
	ctx := context.Background()

	result, err := env.search.FindAvailable(ctx, searchReq(at(10, 0), at(11, 0)), 1, nil)
	require.NoError(t, err)
	// Both bays offer 10:00 and 10:30; each time appears once.
	assert.Equal(t, []time.Time{at(10, 0), at(10, 30)}, slotStarts(result.Slots))
}

func TestFindAvailableExcludedRanges(t *testing.T) {
	env := newEngineEnv()
	env.resources.add(bay(1))
	ctx := context.Background()

	req := searchReq(at(10, 0), at(12, 0))
	req.ExcludedRanges = []Window{{Start: at(10, 30), End: at(11, 30)}}

	result, err := env.search.FindAvailable(ctx, req, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(10, 0), at(11, 30)}, slotStarts(result.Slots))
}

func TestFindAvailablePreferences(t *testing.T) {
	env := newEngineEnv()
	env.resources.add(bay(1))
	env.resources.add(bay(2))
	ctx := context.Background()

	t.Run("avoid times always reject", func(t *testing.T) {
		prefs := &models.SchedulingPreferences{
			AvoidTimes: []models.TimeRange{{Start: "10:00", End: "11:00"}},
		}
		result, err := env.search.FindAvailable(ctx, searchReq(at(10, 0), at(12, 0)), 1, prefs)
		require.NoError(t, err)
		assert.Equal(t, []time.Time{at(11, 0), at(11, 30)}, slotStarts(result.Slots))
	})

	t.Run("preferred days filter the window", func(t *testing.T) {
		prefs := &models.SchedulingPreferences{
			PreferredDays: []time.Weekday{time.Tuesday},
		}
		req := searchReq(at(16, 0), at(11, 0).AddDate(0, 0, 1))
		result, err := env.search.FindAvailable(ctx, req, 1, prefs)
		require.NoError(t, err)
		require.NotEmpty(t, result.Slots)
		for _, slot := range result.Slots {
			assert.Equal(t, time.Tuesday, slot.StartTime.Weekday())
		}
	})

	t.Run("preferred times keep matching slots", func(t *testing.T) {
		prefs := &models.SchedulingPreferences{
			PreferredTimes: []models.TimeRange{{Start: "11:00", End: "12:00"}},
		}
		result, err := env.search.FindAvailable(ctx, searchReq(at(10, 0), at(12, 0)), 1, prefs)
		require.NoError(t, err)
		assert.Equal(t, []time.Time{at(11, 0), at(11, 30)}, slotStarts(result.Slots))
	})

	t.Run("preferred resources narrow the search", func(t *testing.T) {
		prefs := &models.SchedulingPreferences{PreferredResourceIDs: []int64{2}}
		result, err := env.search.FindAvailable(ctx, searchReq(at(10, 0), at(11, 0)), 1, prefs)
		require.NoError(t, err)
		require.NotEmpty(t, result.Slots)
		for _, slot := range result.Slots {
			assert.Equal(t, int64(2), slot.ResourceID)
		}
	})

	t.Run("unknown preferred resource falls back to all eligible", func(t *testing.T) {
		prefs := &models.SchedulingPreferences{PreferredResourceIDs: []int64{99}}
		result, err := env.search.FindAvailable(ctx, searchReq(at(10, 0), at(11, 0)), 1, prefs)
		require.NoError(t, err)
		assert.NotEmpty(t, result.Slots)
	})
}

func TestFindAvailableMobileServiceRadius(t *testing.T) {
	env := newEngineEnv()
	env.resources.add(&models.MobileTeam{
		ID:                3,
		Name:              "north crew",
		Active:            true,
		ServiceRadiusKm:   10,
		MaxVehiclesPerDay: 4,
		Base:              models.GeoPoint{Lat: 52.52, Lng: 13.40},
	})
	ctx := context.Background()

	req := searchReq(at(10, 0), at(12, 0))
	req.Mode = models.ModeMobile
	req.Location = &models.GeoPoint{Lat: 52.55, Lng: 13.42}

	result, err := env.search.FindAvailable(ctx, req, 1, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Slots)

	// Out of radius: nothing can serve the request.
	req.Location = &models.GeoPoint{Lat: 53.60, Lng: 13.40}
	result, err = env.search.FindAvailable(ctx, req, 1, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Slots)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ConflictResourceUnavailable, result.Conflicts[0].Kind)
}
