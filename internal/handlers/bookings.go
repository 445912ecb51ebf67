package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	apperr "courtbook/internal/errors"
	"courtbook/internal/models"

	"github.com/gin-gonic/gin"
)

// Bookings handlers

// CreateBooking - POST /api/bookings
// Создать бронирование
func (h *Handlers) CreateBooking(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		handleServiceError(c, apperr.ErrUnauthorized, "create booking")
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleServiceError(c, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err), "create booking")
		return
	}

	booking, err := h.bookings.Create(c.Request.Context(), userID, &req)
	if err != nil {
		handleServiceError(c, err, "create booking")
		return
	}

	c.JSON(http.StatusCreated, booking)
}

// CancelBooking - POST /api/bookings/:booking_no/cancel
// Отменить бронирование
func (h *Handlers) CancelBooking(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		handleServiceError(c, apperr.ErrUnauthorized, "cancel booking")
		return
	}

	booking, err := h.bookings.Cancel(c.Request.Context(), c.Param("booking_no"), userID)
	if err != nil {
		handleServiceError(c, err, "cancel booking")
		return
	}

	response := models.CancelBookingResponse{
		BookingNo: booking.BookingNo,
		Status:    booking.Status,
	}
	if booking.CancelledAt != nil {
		response.CancelledAt = *booking.CancelledAt
	}
	c.JSON(http.StatusOK, response)
}

// ListBoard - GET /api/bookings?date=YYYY-MM-DD[&court_id=]
// Получить занятость кортов на дату
func (h *Handlers) ListBoard(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		handleServiceError(c, apperr.ErrUnauthorized, "list board")
		return
	}

	courtID, err := optionalCourtID(c)
	if err != nil {
		handleServiceError(c, err, "list board")
		return
	}

	items, err := h.bookings.Board(c.Request.Context(), userID, c.Query("date"), courtID)
	if err != nil {
		handleServiceError(c, err, "list board")
		return
	}

	c.JSON(http.StatusOK, models.NewItemsResponse(items))
}

// ListMyBookings - GET /api/my/bookings[?date=&court_id=&all=true]
// Получить свои бронирования
func (h *Handlers) ListMyBookings(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		handleServiceError(c, apperr.ErrUnauthorized, "list bookings")
		return
	}

	courtID, err := optionalCourtID(c)
	if err != nil {
		handleServiceError(c, err, "list bookings")
		return
	}

	includeHistory := false
	if raw := c.Query("all"); raw != "" {
		includeHistory, err = strconv.ParseBool(raw)
		if err != nil {
			handleServiceError(c, fmt.Errorf("%w: all must be a boolean", apperr.ErrInvalidInput), "list bookings")
			return
		}
	}

	bookings, err := h.bookings.ListMine(c.Request.Context(), userID, c.Query("date"), courtID, includeHistory)
	if err != nil {
		handleServiceError(c, err, "list bookings")
		return
	}

	c.JSON(http.StatusOK, models.NewItemsResponse(bookings))
}
