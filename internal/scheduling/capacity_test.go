package scheduling

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"washplan/internal/models"
)

func TestAllocatorAllocateUntilFull(t *testing.T) {
	env := newEngineEnv()
	env.resources.add(&models.MobileTeam{ID: 3, Name: "north crew", Active: true, MaxVehiclesPerDay: 2})
	ctx := context.Background()
	day := at(10, 0)

	ok, err := env.allocator.Allocate(ctx, day, 3, models.ModeMobile, 101)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.allocator.Allocate(ctx, day, 3, models.ModeMobile, 102)
	require.NoError(t, err)
	assert.True(t, ok)

	// Third booking finds the day full; the counter stays untouched.
	ok, err = env.allocator.Allocate(ctx, day, 3, models.ModeMobile, 103)
	require.NoError(t, err)
	assert.False(t, ok)

	alloc, err := env.allocator.Usage(ctx, day, 3, models.ModeMobile)
	require.NoError(t, err)
	require.NotNil(t, alloc)
	assert.Equal(t, 2, alloc.AllocatedCount)
	assert.Equal(t, []int64{101, 102}, alloc.BookingIDs)
}

func TestAllocatorAllocateIdempotentPerBooking(t *testing.T) {
	env := newEngineEnv()
	env.resources.add(bay(1))
	ctx := context.Background()
	day := at(10, 0)

	ok, err := env.allocator.Allocate(ctx, day, 1, models.ModeStationary, 101)
	require.NoError(t, err)
	require.True(t, ok)

	// A booking that already holds its seat succeeds without double counting.
	ok, err = env.allocator.Allocate(ctx, day, 1, models.ModeStationary, 101)
	require.NoError(t, err)
	assert.True(t, ok)

	alloc, err := env.allocator.Usage(ctx, day, 1, models.ModeStationary)
	require.NoError(t, err)
	assert.Equal(t, 1, alloc.AllocatedCount)
}

func TestAllocatorRelease(t *testing.T) {
	env := newEngineEnv()
	env.resources.add(bay(1))
	ctx := context.Background()
	day := at(10, 0)

	ok, err := env.allocator.Allocate(ctx, day, 1, models.ModeStationary, 101)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := env.allocator.Release(ctx, day, 1, 101)
	require.NoError(t, err)
	assert.True(t, released)

	// Releasing again is a no-op.
	released, err = env.allocator.Release(ctx, day, 1, 101)
	require.NoError(t, err)
	assert.False(t, released)

	// The freed seat is usable again.
	ok, err = env.allocator.Allocate(ctx, day, 1, models.ModeStationary, 102)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllocatorIsFull(t *testing.T) {
	env := newEngineEnv()
	env.resources.add(bay(1))
	ctx := context.Background()
	day := at(10, 0)

	full, err := env.allocator.IsFull(ctx, day, 1, models.ModeStationary)
	require.NoError(t, err)
	assert.False(t, full, "missing allocation means nothing booked yet")

	_, err = env.allocator.Allocate(ctx, day, 1, models.ModeStationary, 101)
	require.NoError(t, err)

	full, err = env.allocator.IsFull(ctx, day, 1, models.ModeStationary)
	require.NoError(t, err)
	assert.True(t, full, "a fixed bay holds one booking per day")
}

func TestAllocatorSeparateDaysAndModes(t *testing.T) {
	env := newEngineEnv()
	env.resources.add(bay(1))
	ctx := context.Background()

	ok, err := env.allocator.Allocate(ctx, at(10, 0), 1, models.ModeStationary, 101)
	require.NoError(t, err)
	require.True(t, ok)

	// The next day has its own counter.
	ok, err = env.allocator.Allocate(ctx, at(10, 0).AddDate(0, 0, 1), 1, models.ModeStationary, 102)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllocatorUnknownResource(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()

	_, err := env.allocator.Allocate(ctx, at(10, 0), 99, models.ModeStationary, 101)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}
