package external

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	apperr "courtbook/internal/errors"
	"courtbook/internal/models"
	"courtbook/internal/timegrid"
)

const defaultPlanAmount = 250

// decodeList accepts a bare array, an envelope ({"items": ...}, {"data": ...}, possibly nested)
// or a single object, and decodes it into dest, a pointer to a slice.
func decodeList(body []byte, dest any) error {
	raw := bytes.TrimSpace(body)
	for depth := 0; depth < 4; depth++ {
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			return json.Unmarshal([]byte("[]"), dest)
		}

		switch raw[0] {
		case '[':
			return json.Unmarshal(raw, dest)
		case '{':
			var envelope map[string]json.RawMessage
			if err := json.Unmarshal(raw, &envelope); err != nil {
				return err
			}
			inner, ok := unwrap(envelope)
			if !ok {
				single := make([]byte, 0, len(raw)+2)
				single = append(single, '[')
				single = append(single, raw...)
				single = append(single, ']')
				return json.Unmarshal(single, dest)
			}
			raw = bytes.TrimSpace(inner)
		default:
			return fmt.Errorf("unexpected JSON payload starting with %q", raw[0])
		}
	}
	return fmt.Errorf("response envelope nested too deeply")
}

func unwrap(envelope map[string]json.RawMessage) (json.RawMessage, bool) {
	for _, key := range []string{"items", "data", "item", "rule", "rules", "price_plans"} {
		if v, ok := envelope[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// flexInt accepts numbers, numeric strings ("250", "250.00") and null.
type flexInt struct {
	value int64
	set   bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = flexInt{}
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = flexInt{value: n, set: true}
		return nil
	}
	x, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
		return fmt.Errorf("invalid number %s", data)
	}
	*f = flexInt{value: int64(math.Round(x)), set: true}
	return nil
}

// parseTime decodes an optional "HH:MM[:SS]" or seconds value.
func parseTime(raw json.RawMessage, fallback timegrid.TimeOfDay) (timegrid.TimeOfDay, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte(`""`)) {
		return fallback, nil
	}
	var t timegrid.TimeOfDay
	if err := t.UnmarshalJSON(trimmed); err != nil {
		return 0, err
	}
	return t, nil
}

type wireCourt struct {
	ID         flexInt              `json:"id"`
	Name       string               `json:"name"`
	Group      string               `json:"group"`
	Category   string               `json:"category"`
	CourtGroup string               `json:"court_group"`
	Location   *string              `json:"location"`
	IsActive   *models.FlexibleBool `json:"is_active"`
}

func (w wireCourt) toModel() models.Court {
	court := models.Court{
		ID:       w.ID.value,
		Name:     w.Name,
		Location: w.Location,
		IsActive: w.IsActive == nil || w.IsActive.Bool(),
	}
	switch {
	case w.Group != "":
		court.Group = w.Group
	case w.CourtGroup != "":
		court.Group = w.CourtGroup
	default:
		court.Group = w.Category
	}
	return court
}

type wireRule struct {
	CourtID     flexInt         `json:"court_id"`
	OpenTime    json.RawMessage `json:"open_time"`
	CloseTime   json.RawMessage `json:"close_time"`
	SlotMinutes flexInt         `json:"slot_minutes"`
}

// toModel fills missing fields from the default operating window.
func (w wireRule) toModel(courtID int64) (*models.OperatingRule, error) {
	def := timegrid.DefaultRule()

	open, err := parseTime(w.OpenTime, def.Open)
	if err != nil {
		return nil, err
	}
	closeAt, err := parseTime(w.CloseTime, def.Close)
	if err != nil {
		return nil, err
	}
	slot := def.SlotMinutes
	if w.SlotMinutes.set {
		slot = int(w.SlotMinutes.value)
	}

	return &models.OperatingRule{
		CourtID:     courtID,
		OpenTime:    open,
		CloseTime:   closeAt,
		SlotMinutes: slot,
	}, nil
}

type wirePlan struct {
	ID           flexInt              `json:"id"`
	Name         string               `json:"name"`
	PricePerSlot flexInt              `json:"price_per_slot"`
	Price        flexInt              `json:"price"`
	Currency     string               `json:"currency"`
	WeekdayMask  flexInt              `json:"weekday_mask"`
	StartTime    json.RawMessage      `json:"start_time"`
	EndTime      json.RawMessage      `json:"end_time"`
	IsActive     *models.FlexibleBool `json:"is_active"`
}

func (w wirePlan) toModel(courtID int64, position int) (models.PricingRule, error) {
	start, err := parseTime(w.StartTime, 0)
	if err != nil {
		return models.PricingRule{}, err
	}
	end, err := parseTime(w.EndTime, timegrid.MustParse("23:59"))
	if err != nil {
		return models.PricingRule{}, err
	}

	amount := int64(defaultPlanAmount)
	switch {
	case w.PricePerSlot.set:
		amount = w.PricePerSlot.value
	case w.Price.set:
		amount = w.Price.value
	}
	if amount < 0 {
		return models.PricingRule{}, fmt.Errorf("%w: price plan %d has negative amount", apperr.ErrInvalidRule, w.ID.value)
	}

	p := models.PricingRule{
		ID:           w.ID.value,
		CourtID:      courtID,
		Name:         w.Name,
		PricePerSlot: amount,
		Currency:     w.Currency,
		StartTime:    start,
		EndTime:      end,
		IsActive:     w.IsActive == nil || w.IsActive.Bool(),
		SortOrder:    position,
	}
	if w.WeekdayMask.set {
		m := int(w.WeekdayMask.value)
		p.WeekdayMask = &m
	}
	return p, nil
}
