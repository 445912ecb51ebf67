package consumers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/timegrid"

	"github.com/nats-io/stan.go"
)

const handlerTimeout = 10 * time.Second

// BookingCache is the part of the Valkey client the event handlers update.
type BookingCache interface {
	InvalidateAvailability(ctx context.Context, courtID int64, date string) error
	IncrDailyBookings(ctx context.Context, date string, courtID int64, delta int64) (int64, error)
}

type Handlers struct {
	cache BookingCache
	loc   *time.Location
}

func NewHandlers(cache BookingCache, loc *time.Location) *Handlers {
	if loc == nil {
		loc = time.Local
	}
	return &Handlers{cache: cache, loc: loc}
}

func (h *Handlers) HandleBookingCreated(m *stan.Msg) {
	h.dispatch(m, models.EventBookingCreated, h.bookingCreated)
}

func (h *Handlers) HandleBookingCancelled(m *stan.Msg) {
	h.dispatch(m, models.EventBookingCancelled, h.bookingCancelled)
}

// dispatch acks processed and undecodable messages; cache failures stay unacked for redelivery.
func (h *Handlers) dispatch(m *stan.Msg, subject string, handle func(ctx context.Context, data []byte) error) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	err := handle(ctx, m.Data)
	switch {
	case err == nil:
		metrics.EventsConsumedTotal.WithLabelValues(subject, "ok").Inc()
	case isDecodeError(err):
		slog.Error("Dropping undecodable event", "subject", subject, "error", err)
		metrics.EventsConsumedTotal.WithLabelValues(subject, "invalid").Inc()
	default:
		slog.Error("Failed to process event, waiting for redelivery", "subject", subject, "error", err)
		metrics.EventsConsumedTotal.WithLabelValues(subject, "error").Inc()
		return
	}

	if err := m.Ack(); err != nil {
		slog.Error("Failed to ack event", "subject", subject, "error", err)
	}
}

type decodeError struct{ err error }

func (e decodeError) Error() string { return "decode event: " + e.err.Error() }
func (e decodeError) Unwrap() error { return e.err }

func isDecodeError(err error) bool {
	_, ok := err.(decodeError)
	return ok
}

func (h *Handlers) bookingCreated(ctx context.Context, data []byte) error {
	var event models.BookingCreatedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return decodeError{err}
	}

	slog.Info("Processing booking created event",
		"booking_no", event.BookingNo,
		"court_id", event.CourtID,
		"start_at", event.StartAt)

	return h.apply(ctx, event.CourtID, event.StartAt, 1)
}

func (h *Handlers) bookingCancelled(ctx context.Context, data []byte) error {
	var event models.BookingCancelledEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return decodeError{err}
	}

	slog.Info("Processing booking cancelled event",
		"booking_no", event.BookingNo,
		"court_id", event.CourtID,
		"reason", event.Reason)

	return h.apply(ctx, event.CourtID, event.StartAt, -1)
}

// apply drops the cached grid of the booking's day and moves its counter by delta.
func (h *Handlers) apply(ctx context.Context, courtID int64, startAt time.Time, delta int64) error {
	if h.cache == nil {
		return nil
	}
	day := startAt.In(h.loc).Format(timegrid.DateLayout)

	if err := h.cache.InvalidateAvailability(ctx, courtID, day); err != nil {
		return fmt.Errorf("failed to invalidate availability: %w", err)
	}
	if _, err := h.cache.IncrDailyBookings(ctx, day, courtID, delta); err != nil {
		return fmt.Errorf("failed to update booking counter: %w", err)
	}
	return nil
}
