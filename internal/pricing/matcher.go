// Package pricing decides which price rule applies to a court slot.
package pricing

import (
	"time"

	"courtbook/internal/models"
	"courtbook/internal/timegrid"
)

// AllDays is the mask with all seven weekday bits set.
const AllDays = 127

// MatchesWeekday reports whether mask covers the weekday of date. Stored masks use either
// Monday-first (Mon=1 … Sun=64) or Sunday-first (Sun=1 … Sat=64) bit order, so a date
// matches when either order has its bit set. nil, 0 and AllDays match every day.
func MatchesWeekday(mask *int, date time.Time) bool {
	if mask == nil || *mask == 0 || *mask&AllDays == AllDays {
		return true
	}

	wd := int(date.Weekday()) // Sunday = 0
	mondayFirst := 1 << ((wd + 6) % 7)
	sundayFirst := 1 << wd

	return *mask&mondayFirst != 0 || *mask&sundayFirst != 0
}

// InRange reports whether start <= t <= end.
func InRange(t, start, end timegrid.TimeOfDay) bool {
	return start <= t && t <= end
}

// Matches reports whether an active rule applies to the slot starting at t on date.
func Matches(rule models.PricingRule, date time.Time, t timegrid.TimeOfDay) bool {
	return rule.IsActive &&
		MatchesWeekday(rule.WeekdayMask, date) &&
		InRange(t, rule.StartTime, rule.EndTime)
}
