package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	apperr "courtbook/internal/errors"
	"courtbook/internal/logger"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/pricing"
	"courtbook/internal/timegrid"

	"github.com/google/uuid"
)

const maxNoteLength = 200

// BookingStore persists reservations. Create must fail with ErrConflict when an active
// reservation already holds the court and start time.
type BookingStore interface {
	Create(ctx context.Context, booking *models.Reservation) error
	GetByBookingNo(ctx context.Context, bookingNo string) (*models.Reservation, error)
	Cancel(ctx context.Context, bookingNo string, userID int64, at time.Time) (*models.Reservation, error)
	ListByRange(ctx context.Context, from, to time.Time, courtID *int64) ([]models.Reservation, error)
	ListByUser(ctx context.Context, userID int64, filter models.BookingFilter, now time.Time) ([]models.Reservation, error)
}

// Publisher sends domain events.
type Publisher interface {
	Publish(subject string, data interface{}) error
}

type BookingService struct {
	courts    *CourtService
	bookings  BookingStore
	resolver  *pricing.Resolver
	publisher Publisher
	slotCache AvailabilityCache
	loc       *time.Location
	now       func() time.Time
}

func NewBookingService(courts *CourtService, bookings BookingStore, resolver *pricing.Resolver, publisher Publisher, slotCache AvailabilityCache, loc *time.Location) *BookingService {
	if loc == nil {
		loc = time.Local
	}
	return &BookingService{
		courts:    courts,
		bookings:  bookings,
		resolver:  resolver,
		publisher: publisher,
		slotCache: slotCache,
		loc:       loc,
		now:       time.Now,
	}
}

// Create books one slot for userID. The slot must lie on the court's grid and in the future;
// its end and price are derived here, never taken from the request.
func (s *BookingService) Create(ctx context.Context, userID int64, req *models.CreateBookingRequest) (*models.Reservation, error) {
	booking, err := s.create(ctx, userID, req)
	metrics.BookingsTotal.WithLabelValues(apperr.Kind(err)).Inc()
	return booking, err
}

func (s *BookingService) create(ctx context.Context, userID int64, req *models.CreateBookingRequest) (*models.Reservation, error) {
	log := logger.WithContext(ctx)

	if req.CourtID <= 0 {
		return nil, fmt.Errorf("%w: court_id is required", apperr.ErrInvalidInput)
	}
	date, start, err := s.requestedSlot(req)
	if err != nil {
		return nil, err
	}
	note, err := normalizeNote(req.Note)
	if err != nil {
		return nil, err
	}

	if _, err := s.courts.Get(ctx, req.CourtID); err != nil {
		return nil, err
	}
	rule, err := s.courts.operatingRule(ctx, req.CourtID)
	if err != nil {
		return nil, err
	}
	grid := rule.Grid()
	if !grid.Contains(start) {
		return nil, fmt.Errorf("%w: %s is not a slot of court %d", apperr.ErrInvalidSlot, start, req.CourtID)
	}

	now := s.now()
	startAt := timegrid.At(date, start)
	if !startAt.After(now) {
		return nil, fmt.Errorf("%w: slot %s has already started", apperr.ErrInvalidSlot, startAt.Format(time.RFC3339))
	}

	quote := s.resolver.Resolve(ctx, req.CourtID, date, start)
	metrics.PriceQuotesTotal.WithLabelValues(quote.Source).Inc()

	booking := &models.Reservation{
		BookingNo:   uuid.New().String(),
		CourtID:     req.CourtID,
		UserID:      userID,
		StartAt:     startAt,
		EndAt:       startAt.Add(time.Duration(grid.SlotMinutes) * time.Minute),
		Status:      models.StatusActive,
		Note:        note,
		PriceAmount: quote.Amount,
		Currency:    quote.Currency,
		PriceLabel:  quote.Label,
		CreatedAt:   now,
	}

	if err := s.bookings.Create(ctx, booking); err != nil {
		log.Info("Booking rejected",
			"court_id", req.CourtID,
			"start_at", startAt,
			"error", err,
			"error_kind", apperr.Kind(err))
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	log.Info("Booking created",
		"booking_no", booking.BookingNo,
		"court_id", booking.CourtID,
		"start_at", booking.StartAt,
		"price", booking.PriceAmount,
		"currency", booking.Currency)

	s.invalidate(ctx, booking)

	event := models.BookingCreatedEvent{
		BookingNo:   booking.BookingNo,
		CourtID:     booking.CourtID,
		UserID:      booking.UserID,
		StartAt:     booking.StartAt,
		EndAt:       booking.EndAt,
		PriceAmount: booking.PriceAmount,
		Currency:    booking.Currency,
		Timestamp:   now,
	}
	s.publish(ctx, models.EventBookingCreated, event, booking.BookingNo)

	return booking, nil
}

// requestedSlot reads either start_at or date + start_time in the court time zone.
func (s *BookingService) requestedSlot(req *models.CreateBookingRequest) (time.Time, timegrid.TimeOfDay, error) {
	if strings.TrimSpace(req.StartAt) != "" {
		startAt, err := timegrid.ParseDateTime(req.StartAt, s.loc)
		if err != nil {
			return time.Time{}, 0, err
		}
		if startAt.Second() != 0 || startAt.Nanosecond() != 0 {
			return time.Time{}, 0, fmt.Errorf("%w: %s is not on a minute boundary", apperr.ErrInvalidSlot, req.StartAt)
		}
		date := timegrid.At(startAt, 0)
		return date, timegrid.FromTime(startAt), nil
	}

	if strings.TrimSpace(req.Date) == "" || strings.TrimSpace(req.StartTime) == "" {
		return time.Time{}, 0, fmt.Errorf("%w: start_at or date and start_time are required", apperr.ErrInvalidInput)
	}
	date, err := parseDateInput(req.Date, s.loc)
	if err != nil {
		return time.Time{}, 0, err
	}
	start, err := parseTimeInput(req.StartTime)
	if err != nil {
		return time.Time{}, 0, err
	}
	return date, start, nil
}

func normalizeNote(note *string) (*string, error) {
	if note == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*note)
	if trimmed == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(trimmed) > maxNoteLength {
		return nil, fmt.Errorf("%w: note is longer than %d characters", apperr.ErrInvalidInput, maxNoteLength)
	}
	return &trimmed, nil
}

// Cancel moves the caller's booking from active to cancelled. Unknown bookings and bookings of
// other users are both ErrNotFound. Slots that have already started cannot be cancelled.
func (s *BookingService) Cancel(ctx context.Context, bookingNo string, userID int64) (*models.Reservation, error) {
	booking, err := s.cancel(ctx, bookingNo, userID)
	metrics.CancellationsTotal.WithLabelValues(apperr.Kind(err)).Inc()
	return booking, err
}

func (s *BookingService) cancel(ctx context.Context, bookingNo string, userID int64) (*models.Reservation, error) {
	if _, err := uuid.Parse(bookingNo); err != nil {
		return nil, fmt.Errorf("%w: booking %q", apperr.ErrNotFound, bookingNo)
	}

	current, err := s.bookings.GetByBookingNo(ctx, bookingNo)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if err := s.checkCancellable(current, bookingNo, userID); err != nil {
		return nil, err
	}

	now := s.now()
	if !current.StartAt.After(now) {
		return nil, fmt.Errorf("%w: booking %s has already started", apperr.ErrForbidden, bookingNo)
	}

	cancelled, err := s.bookings.Cancel(ctx, bookingNo, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}
	if cancelled == nil {
		// Lost a race with another cancellation of the same booking.
		latest, err := s.bookings.GetByBookingNo(ctx, bookingNo)
		if err != nil {
			return nil, fmt.Errorf("failed to get booking: %w", err)
		}
		if err := s.checkCancellable(latest, bookingNo, userID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: booking %s changed concurrently", apperr.ErrConflict, bookingNo)
	}

	logger.WithContext(ctx).Info("Booking cancelled",
		"booking_no", cancelled.BookingNo,
		"court_id", cancelled.CourtID,
		"start_at", cancelled.StartAt)

	s.invalidate(ctx, cancelled)

	event := models.BookingCancelledEvent{
		BookingNo: cancelled.BookingNo,
		CourtID:   cancelled.CourtID,
		UserID:    cancelled.UserID,
		StartAt:   cancelled.StartAt,
		Reason:    "User cancellation",
		Timestamp: now,
	}
	s.publish(ctx, models.EventBookingCancelled, event, cancelled.BookingNo)

	return cancelled, nil
}

func (s *BookingService) checkCancellable(b *models.Reservation, bookingNo string, userID int64) error {
	if b == nil || b.UserID != userID {
		return fmt.Errorf("%w: booking %s", apperr.ErrNotFound, bookingNo)
	}
	if !b.IsActive() {
		return fmt.Errorf("%w: booking %s", apperr.ErrAlreadyCancelled, bookingNo)
	}
	return nil
}

// ListMine returns the caller's bookings. Without includeHistory only active, upcoming bookings
// are listed.
func (s *BookingService) ListMine(ctx context.Context, userID int64, dateStr string, courtID *int64, includeHistory bool) ([]models.Reservation, error) {
	filter := models.BookingFilter{CourtID: courtID, IncludeHistory: includeHistory}
	if strings.TrimSpace(dateStr) != "" {
		date, err := parseDateInput(dateStr, s.loc)
		if err != nil {
			return nil, err
		}
		filter.Date = &date
	}

	bookings, err := s.bookings.ListByUser(ctx, userID, filter, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	for i := range bookings {
		bookings[i].StartAt = bookings[i].StartAt.In(s.loc)
		bookings[i].EndAt = bookings[i].EndAt.In(s.loc)
	}
	return bookings, nil
}

// Board lists the active bookings of a date. Booking numbers are only shown to their owner.
func (s *BookingService) Board(ctx context.Context, userID int64, dateStr string, courtID *int64) ([]models.BoardItem, error) {
	date, err := parseDateInput(dateStr, s.loc)
	if err != nil {
		return nil, err
	}

	from, to := timegrid.DayBounds(date)
	bookings, err := s.bookings.ListByRange(ctx, from, to, courtID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	items := make([]models.BoardItem, 0, len(bookings))
	for _, b := range bookings {
		if !b.IsActive() {
			continue
		}
		item := models.BoardItem{
			CourtID: b.CourtID,
			StartAt: b.StartAt.In(s.loc),
			EndAt:   b.EndAt.In(s.loc),
			Status:  b.Status,
			Mine:    b.UserID == userID,
		}
		if item.Mine {
			item.BookingNo = b.BookingNo
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *BookingService) invalidate(ctx context.Context, b *models.Reservation) {
	if s.slotCache == nil {
		return
	}
	day := b.StartAt.In(s.loc).Format(timegrid.DateLayout)
	if err := s.slotCache.InvalidateAvailability(ctx, b.CourtID, day); err != nil {
		logger.WithContext(ctx).Warn("Failed to invalidate cached slots",
			"court_id", b.CourtID, "date", day, "error", err)
	}
}

func (s *BookingService) publish(ctx context.Context, subject string, event interface{}, bookingNo string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(subject, event); err != nil {
		// Log error but don't fail the operation
		logger.WithContext(ctx).Error("Failed to publish booking event",
			"error", err,
			"booking_no", bookingNo,
			"event_type", subject)
	}
}
