package errors

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
)

var ErrUnauthorized = errors.New("user is not authorized")
var ErrForbidden = errors.New("operation is forbidden for user")

// Booking core errors
var (
	ErrInvalidRule      = errors.New("invalid operating or pricing rule")
	ErrInvalidSlot      = errors.New("requested time is not a bookable slot")
	ErrConflict         = errors.New("slot is already booked")
	ErrNotFound         = errors.New("resource not found")
	ErrAlreadyCancelled = errors.New("booking is already cancelled")
	ErrTransient        = errors.New("temporary storage failure")
	ErrInvalidInput     = errors.New("invalid request")
)

// Kind returns a short label for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidRule):
		return "invalid_rule"
	case errors.Is(err, ErrInvalidSlot):
		return "invalid_slot"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrAlreadyCancelled):
		return "already_cancelled"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal"
	}
}

// Retryable reports whether the caller may retry the operation with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsTransient reports whether a low-level storage error is a timeout or connectivity failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"timeout",
		"i/o timeout",
		"driver: bad connection",
		"too many clients",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Transient marks err as ErrTransient while keeping the cause in the chain.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return &transientError{cause: err}
}

type transientError struct {
	cause error
}

func (e *transientError) Error() string {
	return ErrTransient.Error() + ": " + e.cause.Error()
}

func (e *transientError) Unwrap() []error {
	return []error{ErrTransient, e.cause}
}
