package models

import (
	"strings"
	"time"

	"courtbook/internal/timegrid"
)

// Reservation statuses
const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
)

// Default price used when a court has no pricing rules
const (
	DefaultCurrency   = "TWD"
	DefaultPriceLabel = "單次費用"
)

// User represents a user in the system
type User struct {
	UserID       int64     `json:"user_id" db:"user_id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FirstName    string    `json:"first_name" db:"first_name"`
	Surname      string    `json:"surname" db:"surname"`
	RegisteredAt time.Time `json:"registered_at" db:"registered_at"`
	IsActive     bool      `json:"is_active" db:"is_active"`
}

// Court represents a bookable physical court
type Court struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Group     string    `json:"group" db:"court_group"`
	Location  *string   `json:"location,omitempty" db:"location"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// OperatingRule defines the bookable window of a court
type OperatingRule struct {
	CourtID     int64              `json:"court_id" db:"court_id"`
	OpenTime    timegrid.TimeOfDay `json:"open_time" db:"open_time"`
	CloseTime   timegrid.TimeOfDay `json:"close_time" db:"close_time"`
	SlotMinutes int                `json:"slot_minutes" db:"slot_minutes"`
}

// Grid returns the rule as a time grid.
func (r OperatingRule) Grid() timegrid.Rule {
	return timegrid.Rule{Open: r.OpenTime, Close: r.CloseTime, SlotMinutes: r.SlotMinutes}
}

// PricingRule is one row of a court's price list. WeekdayMask nil means every day.
type PricingRule struct {
	ID           int64              `json:"id" db:"id"`
	CourtID      int64              `json:"court_id" db:"court_id"`
	Name         string             `json:"name" db:"name"`
	PricePerSlot int64              `json:"price_per_slot" db:"price_per_slot"`
	Currency     string             `json:"currency" db:"currency"`
	WeekdayMask  *int               `json:"weekday_mask" db:"weekday_mask"`
	StartTime    timegrid.TimeOfDay `json:"start_time" db:"start_time"`
	EndTime      timegrid.TimeOfDay `json:"end_time" db:"end_time"`
	IsActive     bool               `json:"is_active" db:"is_active"`
	SortOrder    int                `json:"sort_order" db:"sort_order"`
}

// Reservation represents a booking of one court for one slot
type Reservation struct {
	ID          int64      `json:"-" db:"id"`
	BookingNo   string     `json:"booking_no" db:"booking_no"`
	CourtID     int64      `json:"court_id" db:"court_id"`
	UserID      int64      `json:"user_id" db:"user_id"`
	StartAt     time.Time  `json:"start_at" db:"start_at"`
	EndAt       time.Time  `json:"end_at" db:"end_at"`
	Status      string     `json:"status" db:"status"`
	Note        *string    `json:"note,omitempty" db:"note"`
	PriceAmount int64      `json:"price_amount" db:"price_amount"`
	Currency    string     `json:"currency" db:"currency"`
	PriceLabel  string     `json:"price_label" db:"price_label"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
}

// IsCancelledStatus reports whether a status string means the reservation no longer holds its
// slot. Matching is case-insensitive and tolerates the spellings seen in stored data
// ("cancelled", "canceled", "cancled", "cancelled_by_user", ...).
func IsCancelledStatus(status string) bool {
	s := strings.ToLower(strings.TrimSpace(status))
	return strings.HasPrefix(s, "cancel") || strings.HasPrefix(s, "cancl")
}

// IsActive reports whether the reservation still holds its slot.
func (r *Reservation) IsActive() bool {
	return !IsCancelledStatus(r.Status)
}
