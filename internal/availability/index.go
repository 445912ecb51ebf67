// Package availability builds the occupied (court, slot start) lookup for a date.
package availability

import (
	"time"

	"courtbook/internal/models"
	"courtbook/internal/timegrid"
)

type key struct {
	courtID int64
	start   timegrid.TimeOfDay
}

// Index is the set of occupied (court, slot start) pairs.
type Index struct {
	occupied map[key]struct{}
}

// Build indexes reservations that still hold their slot. Start timestamps are read in loc;
// a nil loc keeps each timestamp's own location.
func Build(reservations []models.Reservation, loc *time.Location) Index {
	idx := Index{occupied: make(map[key]struct{}, len(reservations))}
	for _, r := range reservations {
		if !r.IsActive() {
			continue
		}
		start := r.StartAt
		if loc != nil {
			start = start.In(loc)
		}
		idx.occupied[key{courtID: r.CourtID, start: timegrid.FromTime(start)}] = struct{}{}
	}
	return idx
}

// Occupied looks up a slot by its "HH:MM" start.
func (idx Index) Occupied(courtID int64, hhmm string) bool {
	t, err := timegrid.Parse(hhmm)
	if err != nil {
		return false
	}
	return idx.OccupiedAt(courtID, t)
}

func (idx Index) OccupiedAt(courtID int64, start timegrid.TimeOfDay) bool {
	_, ok := idx.occupied[key{courtID: courtID, start: start}]
	return ok
}

func (idx Index) Len() int {
	return len(idx.occupied)
}

// Annotate flags each slot of a court's grid with its availability.
func Annotate(courtID int64, rule timegrid.Rule, slots []timegrid.TimeOfDay, idx Index) []models.SlotAvailability {
	out := make([]models.SlotAvailability, len(slots))
	for i, s := range slots {
		out[i] = models.SlotAvailability{
			StartTime: s,
			EndTime:   rule.End(s),
			Available: !idx.OccupiedAt(courtID, s),
		}
	}
	return out
}
