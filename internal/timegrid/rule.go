package timegrid

import (
	"fmt"

	apperr "courtbook/internal/errors"
)

// Rule is a court's bookable window.
type Rule struct {
	Open        TimeOfDay `json:"open_time"`
	Close       TimeOfDay `json:"close_time"`
	SlotMinutes int       `json:"slot_minutes"`
}

// DefaultRule is used for courts without an operating rule.
func DefaultRule() Rule {
	return Rule{
		Open:        8 * 60,
		Close:       12 * 60,
		SlotMinutes: 60,
	}
}

// Validate rejects rules that cannot produce a grid.
func (r Rule) Validate() error {
	if r.SlotMinutes <= 0 {
		return fmt.Errorf("%w: slot length %d must be positive", apperr.ErrInvalidRule, r.SlotMinutes)
	}
	if r.Open < 0 || r.Close > MinutesPerDay {
		return fmt.Errorf("%w: window %s-%s", apperr.ErrInvalidRule, r.Open, r.Close)
	}
	return nil
}

// Slots returns the bookable starts of the rule. A start at 24:00 belongs to the next
// day and is never offered.
func (r Rule) Slots() ([]TimeOfDay, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	slots, err := BuildSlots(r.Open, r.Close, r.SlotMinutes)
	if err != nil {
		return nil, err
	}
	for len(slots) > 0 && slots[len(slots)-1] >= MinutesPerDay {
		slots = slots[:len(slots)-1]
	}
	return slots, nil
}

// Contains reports whether t is one of the rule's slot starts.
func (r Rule) Contains(t TimeOfDay) bool {
	if r.SlotMinutes <= 0 || t < r.Open || t > r.Close || t >= MinutesPerDay {
		return false
	}
	return int(t-r.Open)%r.SlotMinutes == 0
}

// End returns the end of the slot starting at t.
func (r Rule) End(t TimeOfDay) TimeOfDay {
	return t.Add(r.SlotMinutes)
}
