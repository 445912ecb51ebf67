package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"courtbook/internal/metrics"
	"courtbook/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCatalog struct {
	courts []models.Court
	err    error
}

func (s stubCatalog) ListCourts(ctx context.Context) ([]models.Court, error) {
	return s.courts, s.err
}

type stubIndex struct{ synced []models.Court }

func (s *stubIndex) SyncCourts(ctx context.Context, courts []models.Court) error {
	s.synced = courts
	return nil
}

type stubInvalidator struct{ dropped []int64 }

func (s *stubInvalidator) InvalidateCourt(ctx context.Context, courtID int64) error {
	s.dropped = append(s.dropped, courtID)
	return nil
}

func TestCatalogSyncRunOnce(t *testing.T) {
	courts := []models.Court{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}}
	index := &stubIndex{}
	inv := &stubInvalidator{}

	job := NewCatalogSyncJob(stubCatalog{courts: courts}, index, inv, time.Minute)
	require.NoError(t, job.runOnce(context.Background()))

	assert.Equal(t, courts, index.synced)
	assert.Equal(t, []int64{1, 2}, inv.dropped)

	failing := NewCatalogSyncJob(stubCatalog{err: errors.New("catalog down")}, index, nil, time.Minute)
	assert.Error(t, failing.runOnce(context.Background()))
}

type stubCounter struct{ ranges [][2]time.Time }

func (s *stubCounter) CountActiveByCourt(ctx context.Context, from, to time.Time) (map[int64]int, error) {
	s.ranges = append(s.ranges, [2]time.Time{from, to})
	return map[int64]int{1: len(s.ranges)}, nil
}

type stubCounterStore struct {
	cached map[string]map[int64]int64
	days   map[string]map[int64]int
}

func (s *stubCounterStore) DailyBookings(ctx context.Context, date string) (map[int64]int64, error) {
	return s.cached[date], nil
}

func (s *stubCounterStore) SetDailyBookings(ctx context.Context, date string, counts map[int64]int) error {
	if s.days == nil {
		s.days = map[string]map[int64]int{}
	}
	s.days[date] = counts
	return nil
}

func TestCounterReconcileRunOnce(t *testing.T) {
	loc := time.FixedZone("CST", 8*60*60)
	counter := &stubCounter{}
	store := &stubCounterStore{}

	job := NewCounterReconcileJob(counter, store, loc, time.Minute)
	// 2026-03-02 20:00 UTC is already 2026-03-03 in Taipei.
	job.now = func() time.Time { return time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC) }

	require.NoError(t, job.runOnce(context.Background()))

	require.Len(t, counter.ranges, 2)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, loc), counter.ranges[0][0])
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, loc), counter.ranges[0][1])
	assert.Equal(t, map[int64]int{1: 1}, store.days["2026-03-03"])
	assert.Equal(t, map[int64]int{1: 2}, store.days["2026-03-04"])
}

func TestCounterReconcileReportsDrift(t *testing.T) {
	loc := time.FixedZone("CST", 8*60*60)
	store := &stubCounterStore{cached: map[string]map[int64]int64{
		"2026-03-03": {1: 1},
		"2026-03-04": {1: 5, 9: 2},
	}}

	job := NewCounterReconcileJob(&stubCounter{}, store, loc, time.Minute)
	job.now = func() time.Time { return time.Date(2026, 3, 3, 9, 0, 0, 0, loc) }

	before := testutil.ToFloat64(metrics.CounterDriftTotal)
	require.NoError(t, job.runOnce(context.Background()))

	// today matches, tomorrow has court 1 off by three and a stale court 9
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.CounterDriftTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DailyActiveBookings.WithLabelValues("1", "today")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.DailyActiveBookings.WithLabelValues("1", "tomorrow")))
}

func TestDriftedCourts(t *testing.T) {
	assert.Empty(t, driftedCourts(map[int64]int64{1: 2, 3: 0}, map[int64]int{1: 2}))
	assert.Equal(t, []int64{1, 2, 4}, driftedCourts(map[int64]int64{1: 1, 4: 3}, map[int64]int{1: 2, 2: 1}))
}
