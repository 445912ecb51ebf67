package cache

import (
	"context"
	"testing"
	"time"

	"courtbook/internal/models"
	"courtbook/internal/timegrid"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*ValkeyClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return newValkeyClient(rdb, Config{AvailabilityTTL: 10 * time.Second}), mr
}

func TestUserAuthRoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.GetUserIDByAuth(ctx, "a@example.com", "hash")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.SetUserAuth(ctx, "a@example.com", "hash", 42))
	id, err := c.GetUserIDByAuth(ctx, "a@example.com", "hash")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestReferenceCache(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	var rules []models.PricingRule
	assert.ErrorIs(t, c.GetReference(ctx, 1, "price_plans", &rules), ErrMiss)

	in := []models.PricingRule{{ID: 1, CourtID: 1, Name: "Peak", PricePerSlot: 300, Currency: "TWD",
		StartTime: timegrid.MustParse("18:00"), EndTime: timegrid.MustParse("22:00"), IsActive: true}}
	require.NoError(t, c.SetReference(ctx, 1, "price_plans", in))
	require.NoError(t, c.GetReference(ctx, 1, "price_plans", &rules))
	assert.Equal(t, in, rules)

	require.NoError(t, c.InvalidateCourt(ctx, 1))
	assert.ErrorIs(t, c.GetReference(ctx, 1, "price_plans", &rules), ErrMiss)
}

func TestAvailabilityCacheExpiresAndInvalidates(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetSlots(ctx, 1, "2024-05-04", 0, map[string]int{"x": 1}))
	raw, err := c.GetSlotsRaw(ctx, 1, "2024-05-04")
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(raw))

	require.NoError(t, c.InvalidateAvailability(ctx, 1, "2024-05-04"))
	_, err = c.GetSlotsRaw(ctx, 1, "2024-05-04")
	assert.ErrorIs(t, err, ErrMiss)

	gen, err := c.SlotsGeneration(ctx, 1, "2024-05-04")
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	require.NoError(t, c.SetSlots(ctx, 1, "2024-05-04", gen, map[string]int{"x": 1}))
	mr.FastForward(11 * time.Second)
	_, err = c.GetSlotsRaw(ctx, 1, "2024-05-04")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestSetSlotsSkipsGridReadBeforeInvalidation(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	gen, err := c.SlotsGeneration(ctx, 2, "2024-05-04")
	require.NoError(t, err)

	// a booking lands while the grid is being computed
	require.NoError(t, c.InvalidateAvailability(ctx, 2, "2024-05-04"))

	assert.ErrorIs(t, c.SetSlots(ctx, 2, "2024-05-04", gen, map[string]int{"stale": 1}), ErrStale)
	_, err = c.GetSlotsRaw(ctx, 2, "2024-05-04")
	assert.ErrorIs(t, err, ErrMiss)

	// other dates keep their own generation
	require.NoError(t, c.SetSlots(ctx, 2, "2024-05-05", 0, map[string]int{"x": 1}))
}

func TestDailyBookingCounters(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	n, err := c.IncrDailyBookings(ctx, "2024-05-04", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = c.IncrDailyBookings(ctx, "2024-05-04", 1, 1)
	require.NoError(t, err)
	_, err = c.IncrDailyBookings(ctx, "2024-05-04", 2, 1)
	require.NoError(t, err)

	counts, err := c.DailyBookings(ctx, "2024-05-04")
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 2, 2: 1}, counts)

	require.NoError(t, c.SetDailyBookings(ctx, "2024-05-04", map[int64]int{3: 5}))
	counts, err = c.DailyBookings(ctx, "2024-05-04")
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{3: 5}, counts)
}
