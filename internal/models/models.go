package models

import (
	"fmt"
	"strings"
	"time"

	"courtbook/internal/timegrid"
)

// FlexibleBool - гибкий boolean тип, поддерживающий строки и числа
type FlexibleBool bool

// UnmarshalJSON поддерживает парсинг boolean из строки, числа и boolean
func (fb *FlexibleBool) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)

	switch strings.ToLower(str) {
	case "true", "1", "yes", "on":
		*fb = true
	case "false", "0", "no", "off":
		*fb = false
	default:
		return fmt.Errorf("invalid boolean value: %s", str)
	}
	return nil
}

// Bool возвращает bool значение
func (fb FlexibleBool) Bool() bool {
	return bool(fb)
}

// ItemsResponse - список в каноническом виде {"items": [...]}
type ItemsResponse[T any] struct {
	Items []T `json:"items"`
}

// NewItemsResponse never renders "items": null.
func NewItemsResponse[T any](items []T) ItemsResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ItemsResponse[T]{Items: items}
}

// SlotAvailability - слот с флагом доступности
type SlotAvailability struct {
	StartTime timegrid.TimeOfDay `json:"start_time"`
	EndTime   timegrid.TimeOfDay `json:"end_time"`
	Available bool               `json:"available"`
}

// SlotsResponse - сетка слотов корта на дату
type SlotsResponse struct {
	CourtID     int64              `json:"court_id"`
	Date        string             `json:"date"`
	SlotMinutes int                `json:"slot_minutes"`
	Items       []SlotAvailability `json:"items"`
}

// PriceQuote - цена слота
type PriceQuote struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Label    string `json:"label"`
	Source   string `json:"source"`
}

// CreateBookingRequest - модель для создания бронирования.
// Either start_at ("2006-01-02T15:04[:05]") or date + start_time identify the slot.
// end_at, price_amount and currency are accepted for compatibility and ignored.
type CreateBookingRequest struct {
	CourtID     int64   `json:"court_id" binding:"required"`
	Date        string  `json:"date,omitempty"`
	StartTime   string  `json:"start_time,omitempty"`
	StartAt     string  `json:"start_at,omitempty"`
	EndAt       string  `json:"end_at,omitempty"`
	Note        *string `json:"note,omitempty"`
	PriceAmount *int64  `json:"price_amount,omitempty"`
	Currency    string  `json:"currency,omitempty"`
}

// CancelBookingResponse - результат отмены
type CancelBookingResponse struct {
	BookingNo   string    `json:"booking_no"`
	Status      string    `json:"status"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// BoardItem - занятость слота на общем табло; booking_no only for the caller's own bookings
type BoardItem struct {
	BookingNo string    `json:"booking_no,omitempty"`
	CourtID   int64     `json:"court_id"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	Status    string    `json:"status"`
	Mine      bool      `json:"mine"`
}

// MeResponse - текущий пользователь
type MeResponse struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	Surname   string `json:"surname"`
}

// BookingFilter narrows reservation listings.
type BookingFilter struct {
	Date           *time.Time
	CourtID        *int64
	IncludeHistory bool
}

// CourtSearchQuery - параметры поиска кортов
type CourtSearchQuery struct {
	Query string
	Group string
}
