package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	apperr "courtbook/internal/errors"
	"courtbook/internal/middleware"
	"courtbook/internal/models"

	"github.com/gin-gonic/gin"
)

// CourtService is the read side of the court catalog.
type CourtService interface {
	List(ctx context.Context, q models.CourtSearchQuery) ([]models.Court, error)
	Get(ctx context.Context, courtID int64) (*models.Court, error)
	OperatingRule(ctx context.Context, courtID int64) (models.OperatingRule, error)
	PricePlans(ctx context.Context, courtID int64) ([]models.PricingRule, error)
	Slots(ctx context.Context, courtID int64, date string) (*models.SlotsResponse, error)
	Price(ctx context.Context, courtID int64, date, timeOfDay string) (models.PriceQuote, error)
}

// BookingService creates, cancels and lists reservations.
type BookingService interface {
	Create(ctx context.Context, userID int64, req *models.CreateBookingRequest) (*models.Reservation, error)
	Cancel(ctx context.Context, bookingNo string, userID int64) (*models.Reservation, error)
	ListMine(ctx context.Context, userID int64, date string, courtID *int64, includeHistory bool) ([]models.Reservation, error)
	Board(ctx context.Context, userID int64, date string, courtID *int64) ([]models.BoardItem, error)
}

// UserDirectory resolves the authenticated user.
type UserDirectory interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

type Handlers struct {
	courts   CourtService
	bookings BookingService
	users    UserDirectory
}

func NewHandlers(courts CourtService, bookings BookingService, users UserDirectory) *Handlers {
	return &Handlers{
		courts:   courts,
		bookings: bookings,
		users:    users,
	}
}

// Me - GET /api/me
// Получить текущего пользователя
func (h *Handlers) Me(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		handleServiceError(c, apperr.ErrUnauthorized, "resolve user")
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err, "resolve user")
		return
	}
	if user == nil {
		handleServiceError(c, apperr.ErrUnauthorized, "resolve user")
		return
	}

	c.JSON(http.StatusOK, models.MeResponse{
		UserID:    user.UserID,
		Email:     user.Email,
		FirstName: user.FirstName,
		Surname:   user.Surname,
	})
}

func currentUser(c *gin.Context) (int64, bool) {
	if v, exists := c.Get(middleware.UserIDKey); exists {
		if id, ok := v.(int64); ok {
			return id, true
		}
	}
	return middleware.UserIDFromContext(c.Request.Context())
}

func courtIDParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: court id must be a positive integer", apperr.ErrInvalidInput)
	}
	return id, nil
}

// optionalCourtID reads ?court_id=; empty means all courts.
func optionalCourtID(c *gin.Context) (*int64, error) {
	raw := strings.TrimSpace(c.Query("court_id"))
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: court_id must be a positive integer", apperr.ErrInvalidInput)
	}
	return &id, nil
}
