package jobs

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"courtbook/internal/metrics"
	"courtbook/internal/timegrid"
)

type ActiveCounter interface {
	CountActiveByCourt(ctx context.Context, from, to time.Time) (map[int64]int, error)
}

type CounterStore interface {
	DailyBookings(ctx context.Context, date string) (map[int64]int64, error)
	SetDailyBookings(ctx context.Context, date string, counts map[int64]int) error
}

// CounterReconcileJob rewrites the daily booking counters of today and tomorrow from the
// database, repairing drift from lost or replayed events, and publishes the result as gauges.
type CounterReconcileJob struct {
	bookings ActiveCounter
	store    CounterStore
	loc      *time.Location
	interval time.Duration
	now      func() time.Time
	ticker   *time.Ticker
	done     chan bool
}

func NewCounterReconcileJob(bookings ActiveCounter, store CounterStore, loc *time.Location, interval time.Duration) *CounterReconcileJob {
	return &CounterReconcileJob{
		bookings: bookings,
		store:    store,
		loc:      loc,
		interval: interval,
		now:      time.Now,
		done:     make(chan bool),
	}
}

func (j *CounterReconcileJob) Start(ctx context.Context) {
	slog.Info("Starting counter reconcile job", "interval", j.interval)

	j.ticker = time.NewTicker(j.interval)

	go func() {
		for {
			select {
			case <-j.ticker.C:
				if err := j.runOnce(ctx); err != nil {
					slog.Error("Counter reconcile failed", "error", err)
				}
			case <-j.done:
				slog.Info("Counter reconcile job stopped")
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (j *CounterReconcileJob) Stop() {
	if j.ticker != nil {
		j.ticker.Stop()
	}
	close(j.done)
}

func (j *CounterReconcileJob) runOnce(ctx context.Context) error {
	today := timegrid.At(j.now().In(j.loc), 0)

	for i, label := range []string{"today", "tomorrow"} {
		day := today.AddDate(0, 0, i)
		date := day.Format(timegrid.DateLayout)
		from, to := timegrid.DayBounds(day)
		counts, err := j.bookings.CountActiveByCourt(ctx, from, to)
		if err != nil {
			return err
		}

		cached, err := j.store.DailyBookings(ctx, date)
		if err != nil {
			return err
		}
		if drifted := driftedCourts(cached, counts); len(drifted) > 0 {
			slog.Warn("Booking counters drifted from database", "date", date, "court_ids", drifted)
			metrics.CounterDriftTotal.Add(float64(len(drifted)))
		}

		if err := j.store.SetDailyBookings(ctx, date, counts); err != nil {
			return err
		}
		metrics.SetDailyBookings(label, counts)
	}
	return nil
}

// driftedCourts returns the courts whose cached count differs from the database count.
// Missing entries count as zero.
func driftedCourts(cached map[int64]int64, actual map[int64]int) []int64 {
	var drifted []int64
	for courtID, n := range actual {
		if cached[courtID] != int64(n) {
			drifted = append(drifted, courtID)
		}
	}
	for courtID, n := range cached {
		if _, ok := actual[courtID]; !ok && n != 0 {
			drifted = append(drifted, courtID)
		}
	}
	slices.Sort(drifted)
	return drifted
}
