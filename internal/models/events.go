package models

import "time"

// NATS Event Types
const (
	EventBookingCreated   = "booking.created"
	EventBookingCancelled = "booking.cancelled"
)

// BookingCreatedEvent represents a booking creation event
type BookingCreatedEvent struct {
	BookingNo   string    `json:"booking_no"`
	CourtID     int64     `json:"court_id"`
	UserID      int64     `json:"user_id"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
	PriceAmount int64     `json:"price_amount"`
	Currency    string    `json:"currency"`
	Timestamp   time.Time `json:"timestamp"`
}

// BookingCancelledEvent represents a booking cancellation event
type BookingCancelledEvent struct {
	BookingNo string    `json:"booking_no"`
	CourtID   int64     `json:"court_id"`
	UserID    int64     `json:"user_id"`
	StartAt   time.Time `json:"start_at"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
