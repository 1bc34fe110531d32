package report

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"washplan/internal/models"
)

type fakeBookings struct {
	bookings []models.Booking
}

func (f *fakeBookings) ListForDay(ctx context.Context, day time.Time) ([]models.Booking, error) {
	return f.bookings, nil
}

type fakeResources struct {
	resources []models.Resource
}

func (f *fakeResources) ListEligible(ctx context.Context, c models.EligibilityCriteria) ([]models.Resource, error) {
	return f.resources, nil
}

type fakeCapacity struct {
	allocs map[int64]*models.CapacityAllocation
}

func (f *fakeCapacity) Get(ctx context.Context, date time.Time, resourceID int64, mode models.ServiceMode) (*models.CapacityAllocation, error) {
	return f.allocs[resourceID], nil
}

type fakeConflicts struct {
	counts map[models.ConflictKind]int
}

func (f *fakeConflicts) CountByKind(ctx context.Context, from, to time.Time) (map[models.ConflictKind]int, error) {
	return f.counts, nil
}

func TestGenerateDaily(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.Local)

	bookings := &fakeBookings{bookings: []models.Booking{
		{
			Reference:   "ref-1",
			CustomerID:  100,
			ResourceID:  1,
			VehicleSize: models.VehicleStandard,
			Mode:        models.ModeStationary,
			StartTime:   day.Add(9 * time.Hour),
			EndTime:     day.Add(9*time.Hour + 45*time.Minute),
			Status:      models.BookingConfirmed,
		},
	}}
	resources := &fakeResources{resources: []models.Resource{
		&models.FixedBay{ID: 1, BayNumber: 1, Active: true, MaxVehicleSize: models.VehicleLarge},
		&models.MobileTeam{ID: 2, Name: "north", Active: true, MaxVehiclesPerDay: 6},
	}}
	capacity := &fakeCapacity{allocs: map[int64]*models.CapacityAllocation{
		2: {ResourceID: 2, MaxCapacity: 6, AllocatedCount: 3},
	}}
	conflicts := &fakeConflicts{counts: map[models.ConflictKind]int{
		models.ConflictDoubleBooking: 2,
	}}

	dir := t.TempDir()
	gen := NewGenerator(bookings, resources, capacity, conflicts, dir, zerolog.Nop())

	path, err := gen.GenerateDaily(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "daily_2026-03-02.xlsx"), path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Schedule", "Capacity", "Conflicts"}, f.GetSheetList())

	rows, err := f.GetRows("Schedule")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ref-1", rows[1][0])
	assert.Equal(t, "09:00", rows[1][3])

	rows, err = f.GetRows("Capacity")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	// The bay has no allocation row yet, so it reports zero usage.
	assert.Equal(t, "0", rows[1][3])
	assert.Equal(t, "3", rows[2][3])

	rows, err = f.GetRows("Conflicts")
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, "double_booking", rows[1][0])
	assert.Equal(t, "2", rows[1][1])
}
