package service

import (
	"context"
	"sync"
	"testing"
	"time"

	apperr "courtbook/internal/errors"
	"courtbook/internal/models"
	"courtbook/internal/timegrid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookReq(courtID int64, date, start string) *models.CreateBookingRequest {
	return &models.CreateBookingRequest{CourtID: courtID, Date: date, StartTime: start}
}

func TestCreateBookingStampsEndAndPrice(t *testing.T) {
	f := newFixture()
	amount := int64(1)
	req := &models.CreateBookingRequest{
		CourtID:     1,
		StartAt:     "2026-03-03T09:00:00",
		EndAt:       "2026-03-03T13:00:00",
		PriceAmount: &amount,
		Currency:    "USD",
	}

	booking, err := f.bookings.Create(context.Background(), 7, req)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, taipei), booking.StartAt)
	assert.Equal(t, time.Date(2026, 3, 3, 10, 0, 0, 0, taipei), booking.EndAt)
	assert.Equal(t, int64(250), booking.PriceAmount)
	assert.Equal(t, "TWD", booking.Currency)
	assert.Equal(t, "平日", booking.PriceLabel)
	assert.Equal(t, models.StatusActive, booking.Status)
	assert.NotEmpty(t, booking.BookingNo)

	assert.Equal(t, []string{models.EventBookingCreated}, f.publisher.subjects)
	assert.Equal(t, []string{"availability:1:2026-03-03"}, f.cache.invalidated)
}

func TestCreateBookingRejectsInvalidSlots(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	cases := map[string]*models.CreateBookingRequest{
		"off grid":            bookReq(1, "2026-03-03", "09:30"),
		"before open":         bookReq(1, "2026-03-03", "07:00"),
		"after close":         bookReq(1, "2026-03-03", "12:00"),
		"already started":     bookReq(1, "2026-03-02", "10:00"),
		"in the past":         bookReq(1, "2026-03-01", "09:00"),
		"seconds in start_at": {CourtID: 1, StartAt: "2026-03-03T09:00:30"},
		"garbage start_at":    {CourtID: 1, StartAt: "tomorrow"},
	}
	for name, req := range cases {
		_, err := f.bookings.Create(ctx, 7, req)
		assert.ErrorIs(t, err, apperr.ErrInvalidSlot, name)
	}

	assert.Empty(t, f.store.rows)
}

func TestCreateBookingInputErrors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.bookings.Create(ctx, 7, &models.CreateBookingRequest{CourtID: 1})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = f.bookings.Create(ctx, 7, bookReq(1, "03/03/2026", "09:00"))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	long := string(make([]rune, 201))
	req := bookReq(1, "2026-03-03", "09:00")
	req.Note = &long
	_, err = f.bookings.Create(ctx, 7, req)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = f.bookings.Create(ctx, 7, bookReq(3, "2026-03-03", "09:00"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.bookings.Create(ctx, 7, bookReq(99, "2026-03-03", "09:00"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreateBookingDefaultWindowAndPrice(t *testing.T) {
	f := newFixture()
	note := "  bring shuttlecocks  "
	req := bookReq(2, "2026-03-03", "12:00")
	req.Note = &note

	booking, err := f.bookings.Create(context.Background(), 7, req)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 3, 3, 13, 0, 0, 0, taipei), booking.EndAt)
	assert.Equal(t, int64(250), booking.PriceAmount)
	assert.Equal(t, "(default)", booking.PriceLabel)
	require.NotNil(t, booking.Note)
	assert.Equal(t, "bring shuttlecocks", *booking.Note)

	_, err = f.bookings.Create(context.Background(), 7, bookReq(2, "2026-03-03", "13:00"))
	assert.ErrorIs(t, err, apperr.ErrInvalidSlot)
}

func TestConcurrentBookingsExactlyOneWins(t *testing.T) {
	f := newFixture()

	const users = 8
	var wg sync.WaitGroup
	errs := make([]error, users)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.bookings.Create(context.Background(), int64(100+i), bookReq(1, "2026-03-03", "10:00"))
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.Kind(err) == "conflict":
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, users-1, conflicts)
}

func TestCancelThenRebook(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.bookings.Create(ctx, 7, bookReq(1, "2026-03-03", "09:00"))
	require.NoError(t, err)

	_, err = f.bookings.Create(ctx, 8, bookReq(1, "2026-03-03", "09:00"))
	require.ErrorIs(t, err, apperr.ErrConflict)

	cancelled, err := f.bookings.Cancel(ctx, first.BookingNo, 7)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, testNow, *cancelled.CancelledAt)

	second, err := f.bookings.Create(ctx, 8, bookReq(1, "2026-03-03", "09:00"))
	require.NoError(t, err)
	assert.NotEqual(t, first.BookingNo, second.BookingNo)

	// History is kept.
	assert.Len(t, f.store.rows, 2)
	assert.Equal(t, []string{
		models.EventBookingCreated,
		models.EventBookingCancelled,
		models.EventBookingCreated,
	}, f.publisher.subjects)
}

func TestCancelRules(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	booking, err := f.bookings.Create(ctx, 7, bookReq(1, "2026-03-03", "09:00"))
	require.NoError(t, err)

	_, err = f.bookings.Cancel(ctx, booking.BookingNo, 8)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "other user's booking")
	assert.Equal(t, models.StatusActive, f.store.status(booking.BookingNo))

	_, err = f.bookings.Cancel(ctx, "8f14e45f-ceea-467a-9af0-4b5e1d2f3c11", 7)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "unknown booking")

	_, err = f.bookings.Cancel(ctx, "not-a-uuid", 7)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.bookings.Cancel(ctx, booking.BookingNo, 7)
	require.NoError(t, err)

	_, err = f.bookings.Cancel(ctx, booking.BookingNo, 7)
	assert.ErrorIs(t, err, apperr.ErrAlreadyCancelled)
}

func TestCancelStartedBookingIsForbidden(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	booking, err := f.bookings.Create(ctx, 7, bookReq(1, "2026-03-03", "09:00"))
	require.NoError(t, err)

	f.bookings.now = func() time.Time { return time.Date(2026, 3, 3, 9, 30, 0, 0, taipei) }
	_, err = f.bookings.Cancel(ctx, booking.BookingNo, 7)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.Equal(t, models.StatusActive, f.store.status(booking.BookingNo))
}

func TestListMine(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a, err := f.bookings.Create(ctx, 7, bookReq(1, "2026-03-03", "08:00"))
	require.NoError(t, err)
	_, err = f.bookings.Create(ctx, 7, bookReq(2, "2026-03-04", "09:00"))
	require.NoError(t, err)
	_, err = f.bookings.Create(ctx, 8, bookReq(1, "2026-03-03", "09:00"))
	require.NoError(t, err)
	_, err = f.bookings.Cancel(ctx, a.BookingNo, 7)
	require.NoError(t, err)

	mine, err := f.bookings.ListMine(ctx, 7, "", nil, false)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, int64(2), mine[0].CourtID)

	all, err := f.bookings.ListMine(ctx, 7, "", nil, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	court := int64(1)
	onCourt, err := f.bookings.ListMine(ctx, 7, "2026-03-03", &court, true)
	require.NoError(t, err)
	require.Len(t, onCourt, 1)
	assert.Equal(t, a.BookingNo, onCourt[0].BookingNo)

	_, err = f.bookings.ListMine(ctx, 7, "yesterday", nil, false)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestBoardHidesOtherUsersBookingNumbers(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	mine, err := f.bookings.Create(ctx, 7, bookReq(1, "2026-03-03", "08:00"))
	require.NoError(t, err)
	_, err = f.bookings.Create(ctx, 8, bookReq(1, "2026-03-03", "09:00"))
	require.NoError(t, err)
	gone, err := f.bookings.Create(ctx, 8, bookReq(1, "2026-03-03", "10:00"))
	require.NoError(t, err)
	_, err = f.bookings.Cancel(ctx, gone.BookingNo, 8)
	require.NoError(t, err)

	board, err := f.bookings.Board(ctx, 7, "2026-03-03", nil)
	require.NoError(t, err)
	require.Len(t, board, 2)

	byStart := map[timegrid.TimeOfDay]models.BoardItem{}
	for _, item := range board {
		byStart[timegrid.FromTime(item.StartAt)] = item
	}
	assert.True(t, byStart[timegrid.MustParse("08:00")].Mine)
	assert.Equal(t, mine.BookingNo, byStart[timegrid.MustParse("08:00")].BookingNo)
	assert.False(t, byStart[timegrid.MustParse("09:00")].Mine)
	assert.Empty(t, byStart[timegrid.MustParse("09:00")].BookingNo)
}
