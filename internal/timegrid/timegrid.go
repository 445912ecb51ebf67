// Package timegrid turns a court's operating rule into the ordered list of bookable slot starts.
package timegrid

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	apperr "courtbook/internal/errors"
)

// MinutesPerDay is the exclusive upper bound for a slot start; 24:00 is accepted as a range end.
const MinutesPerDay = 24 * 60

// TimeOfDay is a time of day in minutes past midnight.
type TimeOfDay int

// Parse accepts "HH:MM", "HH:MM:SS", numeric seconds past midnight (as a number or numeric string)
// and TimeOfDay values. Seconds are truncated to the minute.
func Parse(v any) (TimeOfDay, error) {
	switch x := v.(type) {
	case TimeOfDay:
		return x, nil
	case int:
		return fromSeconds(float64(x))
	case int32:
		return fromSeconds(float64(x))
	case int64:
		return fromSeconds(float64(x))
	case float64:
		return fromSeconds(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: time %q", apperr.ErrInvalidRule, x.String())
		}
		return fromSeconds(f)
	case []byte:
		return parseText(string(x))
	case string:
		return parseText(x)
	case time.Time:
		return FromTime(x), nil
	case nil:
		return 0, fmt.Errorf("%w: empty time", apperr.ErrInvalidRule)
	default:
		return 0, fmt.Errorf("%w: unsupported time value %T", apperr.ErrInvalidRule, v)
	}
}

// MustParse is Parse for literals; it panics on malformed input.
func MustParse(v any) TimeOfDay {
	t, err := Parse(v)
	if err != nil {
		panic(err)
	}
	return t
}

func parseText(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty time", apperr.ErrInvalidRule)
	}
	if !strings.Contains(s, ":") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: time %q", apperr.ErrInvalidRule, s)
		}
		return fromSeconds(f)
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("%w: time %q", apperr.ErrInvalidRule, s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		// "08:00:00.000000" from some drivers
		if i == 2 {
			p, _, _ = strings.Cut(p, ".")
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: time %q", apperr.ErrInvalidRule, s)
		}
		nums[i] = n
	}
	h, m, sec := nums[0], nums[1], nums[2]
	if m > 59 || sec > 59 || h > 24 || (h == 24 && (m > 0 || sec > 0)) {
		return 0, fmt.Errorf("%w: time %q out of range", apperr.ErrInvalidRule, s)
	}
	return TimeOfDay(h*60 + m), nil
}

func fromSeconds(sec float64) (TimeOfDay, error) {
	if math.IsNaN(sec) || sec < 0 || sec > float64(MinutesPerDay*60) {
		return 0, fmt.Errorf("%w: %v seconds out of range", apperr.ErrInvalidRule, sec)
	}
	return TimeOfDay(int(sec) / 60), nil
}

// FromTime returns the time of day of t in t's location.
func FromTime(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

// Hour and Minute of the time of day.
func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// Add advances t by the given number of minutes.
func (t TimeOfDay) Add(minutes int) TimeOfDay {
	return t + TimeOfDay(minutes)
}

// String renders "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// At places t on the calendar day of date, in date's location.
func At(date time.Time, t TimeOfDay) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, date.Location()).Add(time.Duration(t) * time.Minute)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	v, err := Parse(raw)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Scan implements sql.Scanner for TIME, TEXT and INTEGER (seconds) columns.
func (t *TimeOfDay) Scan(src any) error {
	v, err := Parse(src)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Value implements driver.Valuer as "HH:MM:00".
func (t TimeOfDay) Value() (driver.Value, error) {
	if t == MinutesPerDay {
		return "24:00:00", nil
	}
	return t.String() + ":00", nil
}

// BuildSlots returns slot starts from open up to and including close, stepping by slotMinutes.
// A slot starting exactly at close is still offered. open > close yields no slots.
func BuildSlots(open, close TimeOfDay, slotMinutes int) ([]TimeOfDay, error) {
	if slotMinutes <= 0 {
		return nil, fmt.Errorf("%w: slot length %d must be positive", apperr.ErrInvalidRule, slotMinutes)
	}
	if open > close {
		return []TimeOfDay{}, nil
	}

	slots := make([]TimeOfDay, 0, int(close-open)/slotMinutes+1)
	for cur := open; cur <= close; cur = cur.Add(slotMinutes) {
		slots = append(slots, cur)
	}
	return slots, nil
}
