package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"courtbook/internal/database"
	apperr "courtbook/internal/errors"
	"courtbook/internal/models"
)

type BookingRepository struct {
	base
}

func NewBookingRepository(db *database.DB, timeout time.Duration) *BookingRepository {
	return &BookingRepository{base: newBase(db, timeout)}
}

const bookingColumns = `id, booking_no, court_id, user_id, start_at, end_at, status, note,
       price_amount, currency, price_label, created_at, cancelled_at`

func scanBooking(s scanner, b *models.Reservation) error {
	return s.Scan(
		&b.ID,
		&b.BookingNo,
		&b.CourtID,
		&b.UserID,
		&b.StartAt,
		&b.EndAt,
		&b.Status,
		&b.Note,
		&b.PriceAmount,
		&b.Currency,
		&b.PriceLabel,
		&b.CreatedAt,
		&b.CancelledAt,
	)
}

// Create inserts an active booking. The partial unique index on (court_id, start_at) for
// active rows makes the insert fail with ErrConflict when the slot is already held.
func (r *BookingRepository) Create(ctx context.Context, booking *models.Reservation) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	query := `
		INSERT INTO bookings (booking_no, court_id, user_id, start_at, end_at, status, note,
		                      price_amount, currency, price_label)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		booking.BookingNo,
		booking.CourtID,
		booking.UserID,
		booking.StartAt,
		booking.EndAt,
		booking.Status,
		booking.Note,
		booking.PriceAmount,
		booking.Currency,
		booking.PriceLabel,
	).Scan(&booking.ID, &booking.CreatedAt)

	if database.IsUniqueViolation(err) {
		return fmt.Errorf("court %d at %s: %w", booking.CourtID, booking.StartAt.Format(time.RFC3339), apperr.ErrConflict)
	}
	return database.WriteError(err)
}

func (r *BookingRepository) GetByBookingNo(ctx context.Context, bookingNo string) (*models.Reservation, error) {
	booking := &models.Reservation{}
	err := database.Retry(ctx, 3, func(ctx context.Context) error {
		ctx, cancel := r.bounded(ctx)
		defer cancel()

		err := scanBooking(r.db.QueryRowContext(ctx, `
			SELECT `+bookingColumns+`
			FROM bookings
			WHERE booking_no = $1`, bookingNo), booking)
		if err == sql.ErrNoRows {
			booking = nil
			return nil
		}
		return database.ClassifyError(err)
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// Cancel moves an active booking owned by userID to cancelled. It returns nil, nil when no
// active booking of that owner matched.
func (r *BookingRepository) Cancel(ctx context.Context, bookingNo string, userID int64, at time.Time) (*models.Reservation, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	booking := &models.Reservation{}
	err := scanBooking(r.db.QueryRowContext(ctx, `
		UPDATE bookings
		SET status = $4, cancelled_at = $5
		WHERE booking_no = $1 AND user_id = $2 AND status = $3
		RETURNING `+bookingColumns,
		bookingNo, userID, models.StatusActive, models.StatusCancelled, at), booking)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, database.WriteError(err)
	}
	return booking, nil
}

// ListByRange returns bookings of every status starting in [from, to), optionally for one court.
func (r *BookingRepository) ListByRange(ctx context.Context, from, to time.Time, courtID *int64) ([]models.Reservation, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE start_at >= $1 AND start_at < $2`
	args := []any{from, to}
	if courtID != nil {
		query += ` AND court_id = $3`
		args = append(args, *courtID)
	}
	query += ` ORDER BY court_id, start_at`

	return r.list(ctx, query, args...)
}

// ListByUser returns the user's bookings. Without IncludeHistory only active bookings starting
// at or after now are returned.
func (r *BookingRepository) ListByUser(ctx context.Context, userID int64, filter models.BookingFilter, now time.Time) ([]models.Reservation, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1`)
	args := []any{userID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !filter.IncludeHistory {
		sb.WriteString(` AND status = ` + arg(models.StatusActive))
		sb.WriteString(` AND start_at >= ` + arg(now))
	}
	if filter.Date != nil {
		from := *filter.Date
		sb.WriteString(` AND start_at >= ` + arg(from))
		sb.WriteString(` AND start_at < ` + arg(from.AddDate(0, 0, 1)))
	}
	if filter.CourtID != nil {
		sb.WriteString(` AND court_id = ` + arg(*filter.CourtID))
	}
	sb.WriteString(` ORDER BY start_at`)

	return r.list(ctx, sb.String(), args...)
}

func (r *BookingRepository) list(ctx context.Context, query string, args ...any) ([]models.Reservation, error) {
	var bookings []models.Reservation
	err := database.Retry(ctx, 3, func(ctx context.Context) error {
		ctx, cancel := r.bounded(ctx)
		defer cancel()

		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return database.ClassifyError(err)
		}
		defer rows.Close()

		bookings = bookings[:0]
		for rows.Next() {
			var b models.Reservation
			if err := scanBooking(rows, &b); err != nil {
				return database.ClassifyError(err)
			}
			bookings = append(bookings, b)
		}
		return database.ClassifyError(rows.Err())
	})
	return bookings, err
}

// CountActiveByCourt returns active bookings per court starting in [from, to).
func (r *BookingRepository) CountActiveByCourt(ctx context.Context, from, to time.Time) (map[int64]int, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT court_id, COUNT(*)
		FROM bookings
		WHERE status = $1 AND start_at >= $2 AND start_at < $3
		GROUP BY court_id`, models.StatusActive, from, to)
	if err != nil {
		return nil, database.ClassifyError(err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var courtID int64
		var n int
		if err := rows.Scan(&courtID, &n); err != nil {
			return nil, err
		}
		counts[courtID] = n
	}
	return counts, rows.Err()
}
