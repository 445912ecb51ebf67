package timegrid

import (
	"fmt"
	"strings"
	"time"

	apperr "courtbook/internal/errors"
)

const DateLayout = "2006-01-02"

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseDate parses "YYYY-MM-DD" as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", apperr.ErrInvalidSlot, s)
	}
	return d, nil
}

// ParseDateTime accepts local wall-clock timestamps (interpreted in loc) and RFC 3339 timestamps
// (converted to loc).
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	return time.Time{}, fmt.Errorf("%w: timestamp %q", apperr.ErrInvalidSlot, s)
}

// DayBounds returns [midnight, next midnight) of date in its location.
func DayBounds(date time.Time) (time.Time, time.Time) {
	start := At(date, 0)
	return start, start.AddDate(0, 0, 1)
}
