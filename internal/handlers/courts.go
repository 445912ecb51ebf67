package handlers

import (
	"net/http"

	"courtbook/internal/models"

	"github.com/gin-gonic/gin"
)

// Courts handlers

// ListCourts - GET /api/courts
// Получить список активных кортов
func (h *Handlers) ListCourts(c *gin.Context) {
	courts, err := h.courts.List(c.Request.Context(), models.CourtSearchQuery{
		Query: c.Query("query"),
		Group: c.Query("group"),
	})
	if err != nil {
		handleServiceError(c, err, "list courts")
		return
	}

	c.JSON(http.StatusOK, models.NewItemsResponse(courts))
}

// GetCourtRule - GET /api/courts/:id/rules
// Получить часы работы корта
func (h *Handlers) GetCourtRule(c *gin.Context) {
	courtID, err := courtIDParam(c)
	if err != nil {
		handleServiceError(c, err, "get court rule")
		return
	}

	rule, err := h.courts.OperatingRule(c.Request.Context(), courtID)
	if err != nil {
		handleServiceError(c, err, "get court rule")
		return
	}

	c.JSON(http.StatusOK, rule)
}

// ListPricePlans - GET /api/courts/:id/price_plans
func (h *Handlers) ListPricePlans(c *gin.Context) {
	courtID, err := courtIDParam(c)
	if err != nil {
		handleServiceError(c, err, "list price plans")
		return
	}

	plans, err := h.courts.PricePlans(c.Request.Context(), courtID)
	if err != nil {
		handleServiceError(c, err, "list price plans")
		return
	}

	c.JSON(http.StatusOK, models.NewItemsResponse(plans))
}

// ListSlots - GET /api/courts/:id/slots?date=YYYY-MM-DD
// Получить сетку слотов с доступностью
func (h *Handlers) ListSlots(c *gin.Context) {
	courtID, err := courtIDParam(c)
	if err != nil {
		handleServiceError(c, err, "list slots")
		return
	}

	slots, err := h.courts.Slots(c.Request.Context(), courtID, c.Query("date"))
	if err != nil {
		handleServiceError(c, err, "list slots")
		return
	}

	c.JSON(http.StatusOK, slots)
}

// GetPrice - GET /api/courts/:id/price?date=YYYY-MM-DD&time=HH:MM
func (h *Handlers) GetPrice(c *gin.Context) {
	courtID, err := courtIDParam(c)
	if err != nil {
		handleServiceError(c, err, "quote price")
		return
	}

	quote, err := h.courts.Price(c.Request.Context(), courtID, c.Query("date"), c.Query("time"))
	if err != nil {
		handleServiceError(c, err, "quote price")
		return
	}

	c.JSON(http.StatusOK, quote)
}
