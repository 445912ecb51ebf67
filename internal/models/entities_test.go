package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReservationIsActive(t *testing.T) {
	for _, s := range []string{"cancelled", "Canceled", " CANCELLED ", "cancled", "cancelled_by_user"} {
		assert.True(t, IsCancelledStatus(s), s)
		assert.False(t, (&Reservation{Status: s}).IsActive(), s)
	}
	for _, s := range []string{StatusActive, "", "confirmed", "pending"} {
		assert.True(t, (&Reservation{Status: s}).IsActive(), s)
	}
}
