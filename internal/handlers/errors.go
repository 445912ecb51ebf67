package handlers

import (
	"errors"
	"net/http"

	apperr "courtbook/internal/errors"
	"courtbook/internal/logger"

	"github.com/gin-gonic/gin"
)

// statusFor maps a service error onto its HTTP status and public message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict, "Slot is already booked"
	case errors.Is(err, apperr.ErrAlreadyCancelled):
		return http.StatusConflict, "Booking is already cancelled"
	case errors.Is(err, apperr.ErrInvalidSlot):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, apperr.ErrTransient):
		return http.StatusServiceUnavailable, "Service temporarily unavailable, retry later"
	case errors.Is(err, apperr.ErrInvalidRule):
		return http.StatusInternalServerError, "Court is misconfigured"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// handleServiceError пишет ошибку в формате {"error", "code"}
func handleServiceError(c *gin.Context, err error, action string) {
	status, msg := statusFor(err)
	code := apperr.Kind(err)

	log := logger.WithContext(c.Request.Context())
	if status >= http.StatusInternalServerError {
		log.Error("Failed to "+action, "error", err, "code", code)
	} else {
		log.Info("Rejected "+action, "error", err, "code", code)
	}

	if apperr.Retryable(err) {
		c.Header("Retry-After", "1")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}
