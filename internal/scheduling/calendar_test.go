package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"washplan/internal/models"
)

func TestCalendarHoursFor(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()

	t.Run("weekly schedule", func(t *testing.T) {
		hours, err := env.calendar.HoursFor(ctx, at(12, 0))
		require.NoError(t, err)
		require.NotNil(t, hours)
		assert.Equal(t, "09:00", hours.OpenTime)
		assert.Equal(t, "18:00", hours.CloseTime)
	})

	t.Run("closed weekday returns nil", func(t *testing.T) {
		sunday := at(12, 0).AddDate(0, 0, 6)
		hours, err := env.calendar.HoursFor(ctx, sunday)
		require.NoError(t, err)
		assert.Nil(t, hours)
	})

	t.Run("closed override wins over weekly hours", func(t *testing.T) {
		require.NoError(t, env.hours.UpsertOverride(ctx, &models.ScheduleOverride{
			Date:     models.DayKey(at(0, 0).AddDate(0, 0, 1)),
			IsClosed: true,
			Reason:   "equipment maintenance",
		}))

		hours, err := env.calendar.HoursFor(ctx, at(12, 0).AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Nil(t, hours)
	})

	t.Run("special hours override replaces open and close", func(t *testing.T) {
		require.NoError(t, env.hours.UpsertOverride(ctx, &models.ScheduleOverride{
			Date:      models.DayKey(at(0, 0).AddDate(0, 0, 2)),
			OpenTime:  "11:00",
			CloseTime: "15:00",
		}))

		hours, err := env.calendar.HoursFor(ctx, at(12, 0).AddDate(0, 0, 2))
		require.NoError(t, err)
		require.NotNil(t, hours)
		assert.Equal(t, "11:00", hours.OpenTime)
		assert.Equal(t, "15:00", hours.CloseTime)
	})

	t.Run("override opens an otherwise closed day", func(t *testing.T) {
		sunday := models.DayKey(at(0, 0).AddDate(0, 0, 6))
		require.NoError(t, env.hours.UpsertOverride(ctx, &models.ScheduleOverride{
			Date:      sunday,
			OpenTime:  "10:00",
			CloseTime: "14:00",
		}))

		hours, err := env.calendar.HoursFor(ctx, sunday)
		require.NoError(t, err)
		require.NotNil(t, hours)
		assert.Equal(t, "10:00", hours.OpenTime)
		assert.False(t, hours.IsClosed)
	})

	t.Run("partial override on a day with no weekly record stays closed", func(t *testing.T) {
		nextSunday := models.DayKey(at(0, 0).AddDate(0, 0, 13))
		require.NoError(t, env.hours.UpsertOverride(ctx, &models.ScheduleOverride{
			Date:     nextSunday,
			OpenTime: "10:00",
		}))

		hours, err := env.calendar.HoursFor(ctx, nextSunday)
		require.NoError(t, err)
		assert.Nil(t, hours)
	})
}

func TestCalendarIsOpenAt(t *testing.T) {
	env := newEngineEnv()
	env.hours.weekly[1] = models.BusinessHours{
		DayOfWeek: 1,
		OpenTime:  "09:00",
		CloseTime: "18:00",
		Breaks:    []models.BreakPeriod{{Start: "13:00", End: "14:00"}},
	}
	ctx := context.Background()

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before opening", at(8, 59), false},
		{"at opening", at(9, 0), true},
		{"midday", at(11, 30), true},
		{"break start", at(13, 0), false},
		{"inside break", at(13, 30), false},
		{"break end", at(14, 0), true},
		{"at closing", at(18, 0), false},
		{"after closing", at(19, 0), false},
		{"closed sunday", at(12, 0).AddDate(0, 0, 6), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			open, err := env.calendar.IsOpenAt(ctx, tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, open)
		})
	}
}

func TestCalendarNextOpenDay(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()

	t.Run("open day returns itself", func(t *testing.T) {
		day, err := env.calendar.NextOpenDay(ctx, at(12, 0))
		require.NoError(t, err)
		assert.Equal(t, models.DayKey(at(0, 0)), day)
	})

	t.Run("closed day scans forward", func(t *testing.T) {
		sunday := at(12, 0).AddDate(0, 0, 6)
		day, err := env.calendar.NextOpenDay(ctx, sunday)
		require.NoError(t, err)
		assert.Equal(t, models.DayKey(sunday.AddDate(0, 0, 1)), day)
	})

	t.Run("fully closed week returns zero time", func(t *testing.T) {
		closed := newEngineEnv()
		for day := 1; day <= 7; day++ {
			closed.hours.weekly[day] = models.BusinessHours{DayOfWeek: day, IsClosed: true}
		}
		day, err := closed.calendar.NextOpenDay(ctx, at(12, 0))
		require.NoError(t, err)
		assert.True(t, day.IsZero())
	})
}

func TestCalendarCloseOn(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()

	closing, open, err := env.calendar.CloseOn(ctx, at(12, 0))
	require.NoError(t, err)
	require.True(t, open)
	assert.Equal(t, at(18, 0), closing)

	_, open, err = env.calendar.CloseOn(ctx, at(12, 0).AddDate(0, 0, 6))
	require.NoError(t, err)
	assert.False(t, open)
}

func TestAtTimeOfDay(t *testing.T) {
	date := at(0, 0)

	got, err := AtTimeOfDay(date, "09:30")
	require.NoError(t, err)
	assert.Equal(t, at(9, 30), got)

	for _, bad := range []string{"930", "25:00", "12:60", "ab:cd", ""} {
		_, err := AtTimeOfDay(date, bad)
		assert.Error(t, err, "clock %q", bad)
	}
}
