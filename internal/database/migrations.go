package database

import (
	"fmt"
	"log/slog"
)

func (db *DB) RunMigrations() error {
	slog.Info("Running database migrations...")

	migrations := []string{
		createUsersTable,
		createCourtsTable,
		createCourtRulesTable,
		createCourtPricePlansTable,
		createBookingsTable,
		createBookingsActiveSlotIndex,
		createBookingsUserIndex,
		createBookingsStartIndex,
	}

	for i, migration := range migrations {
		slog.Info("Running migration", "step", i+1)
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("All migrations completed successfully")
	return nil
}

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
    user_id SERIAL PRIMARY KEY,
    email VARCHAR(255) UNIQUE NOT NULL,
    password_hash VARCHAR(64) NOT NULL,
    first_name VARCHAR(100) NOT NULL,
    surname VARCHAR(100) NOT NULL,
    registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    is_active BOOLEAN NOT NULL DEFAULT TRUE
);`

const createCourtsTable = `
CREATE TABLE IF NOT EXISTS courts (
    id SERIAL PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    court_group VARCHAR(50) NOT NULL DEFAULT '',
    location VARCHAR(255),
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createCourtRulesTable = `
CREATE TABLE IF NOT EXISTS court_rules (
    court_id INTEGER PRIMARY KEY REFERENCES courts(id) ON DELETE CASCADE,
    open_time TIME NOT NULL,
    close_time TIME NOT NULL,
    slot_minutes INTEGER NOT NULL,

    CHECK (slot_minutes > 0),
    CHECK (open_time <= close_time)
);`

const createCourtPricePlansTable = `
CREATE TABLE IF NOT EXISTS court_price_plans (
    id SERIAL PRIMARY KEY,
    court_id INTEGER NOT NULL REFERENCES courts(id) ON DELETE CASCADE,
    name VARCHAR(100) NOT NULL DEFAULT '',
    price_per_slot BIGINT NOT NULL,
    currency CHAR(3) NOT NULL DEFAULT 'TWD',
    weekday_mask SMALLINT,
    start_time TIME NOT NULL DEFAULT '00:00',
    end_time TIME NOT NULL DEFAULT '23:59',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    sort_order INTEGER NOT NULL DEFAULT 0,

    CHECK (price_per_slot >= 0),
    CHECK (weekday_mask IS NULL OR weekday_mask BETWEEN 0 AND 127)
);`

const createBookingsTable = `
CREATE TABLE IF NOT EXISTS bookings (
    id BIGSERIAL PRIMARY KEY,
    booking_no UUID UNIQUE NOT NULL,
    court_id INTEGER NOT NULL REFERENCES courts(id),
    user_id INTEGER NOT NULL REFERENCES users(user_id),
    start_at TIMESTAMPTZ NOT NULL,
    end_at TIMESTAMPTZ NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'active',
    note VARCHAR(200),
    price_amount BIGINT NOT NULL,
    currency CHAR(3) NOT NULL,
    price_label VARCHAR(100) NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    cancelled_at TIMESTAMPTZ,

    CHECK (status IN ('active', 'cancelled')),
    CHECK (end_at > start_at),
    CHECK (price_amount >= 0)
);`

// At most one active booking per court and start time.
const createBookingsActiveSlotIndex = `
CREATE UNIQUE INDEX IF NOT EXISTS ux_bookings_active_slot
ON bookings (court_id, start_at) WHERE status = 'active';`

const createBookingsUserIndex = `
CREATE INDEX IF NOT EXISTS bookings_user_start_idx
ON bookings (user_id, start_at);`

const createBookingsStartIndex = `
CREATE INDEX IF NOT EXISTS bookings_start_at_idx
ON bookings (start_at);`
