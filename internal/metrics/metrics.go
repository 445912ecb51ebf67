// Package metrics holds the Prometheus collectors of the booking service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BookingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courtbook_bookings_total",
		Help: "Booking attempts by result.",
	}, []string{"result"})

	CancellationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courtbook_cancellations_total",
		Help: "Cancellation attempts by result.",
	}, []string{"result"})

	PriceQuotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courtbook_price_quotes_total",
		Help: "Resolved prices by source (rule, fallback, default).",
	}, []string{"source"})

	CacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courtbook_cache_lookups_total",
		Help: "Valkey lookups by cache and outcome.",
	}, []string{"cache", "outcome"})

	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courtbook_events_consumed_total",
		Help: "Domain events handled by consumers.",
	}, []string{"subject", "result"})

	DailyActiveBookings = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "courtbook_daily_active_bookings",
		Help: "Active bookings per court for today and tomorrow, as of the last counter reconcile.",
	}, []string{"court_id", "day"})

	CounterDriftTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courtbook_booking_counter_drift_total",
		Help: "Courts whose cached daily counter disagreed with the database at reconcile time.",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "courtbook_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// ObserveHTTP records one finished request.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// CacheLookup records a cache hit or miss.
func CacheLookup(cache string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	CacheLookupsTotal.WithLabelValues(cache, outcome).Inc()
}

// SetDailyBookings replaces the gauges of one day ("today" or "tomorrow").
func SetDailyBookings(day string, counts map[int64]int) {
	DailyActiveBookings.DeletePartialMatch(prometheus.Labels{"day": day})
	for courtID, n := range counts {
		DailyActiveBookings.WithLabelValues(strconv.FormatInt(courtID, 10), day).Set(float64(n))
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
