package repository

import (
	"context"
	"time"

	"courtbook/internal/database"
)

const defaultQueryTimeout = 3 * time.Second

type Repositories struct {
	Courts   *CourtRepository
	Bookings *BookingRepository
	Users    *UserRepository
}

func NewRepositories(db *database.DB, timeout time.Duration) *Repositories {
	return &Repositories{
		Courts:   NewCourtRepository(db, timeout),
		Bookings: NewBookingRepository(db, timeout),
		Users:    NewUserRepository(db, timeout),
	}
}

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

type base struct {
	db      *database.DB
	timeout time.Duration
}

func newBase(db *database.DB, timeout time.Duration) base {
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return base{db: db, timeout: timeout}
}

// bounded limits a single statement to the repository timeout.
func (b base) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}
