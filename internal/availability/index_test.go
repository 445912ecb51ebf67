package availability

import (
	"testing"
	"time"

	"courtbook/internal/models"
	"courtbook/internal/timegrid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var taipei = time.FixedZone("UTC+8", 8*3600)

func reservation(courtID int64, hh, mm int, status string) models.Reservation {
	start := time.Date(2024, 5, 4, hh, mm, 0, 0, taipei)
	return models.Reservation{CourtID: courtID, StartAt: start, EndAt: start.Add(time.Hour), Status: status}
}

func TestBuildSkipsCancelled(t *testing.T) {
	idx := Build([]models.Reservation{
		reservation(1, 9, 0, models.StatusActive),
		reservation(1, 10, 0, "Canceled"),
		reservation(2, 9, 0, "ACTIVE"),
	}, taipei)

	assert.Equal(t, 2, idx.Len())
	assert.True(t, idx.Occupied(1, "09:00"))
	assert.False(t, idx.Occupied(1, "10:00"))
	assert.True(t, idx.Occupied(2, "09:00"))
	assert.False(t, idx.Occupied(3, "09:00"))
	assert.False(t, idx.Occupied(1, "not a time"))
}

func TestBuildConvertsToCourtLocation(t *testing.T) {
	r := reservation(1, 9, 0, models.StatusActive)
	r.StartAt = r.StartAt.UTC() // 01:00Z

	assert.True(t, Build([]models.Reservation{r}, taipei).Occupied(1, "09:00"))
	assert.True(t, Build([]models.Reservation{r}, nil).Occupied(1, "01:00"))
}

func TestAnnotateScenario(t *testing.T) {
	rule := timegrid.Rule{Open: timegrid.MustParse("08:00"), Close: timegrid.MustParse("11:00"), SlotMinutes: 60}
	slots, err := rule.Slots()
	require.NoError(t, err)

	idx := Build([]models.Reservation{reservation(1, 9, 0, models.StatusActive)}, taipei)
	out := Annotate(1, rule, slots, idx)

	require.Len(t, out, 4)
	available := map[string]bool{}
	for _, s := range out {
		available[s.StartTime.String()] = s.Available
	}
	assert.Equal(t, map[string]bool{"08:00": true, "09:00": false, "10:00": true, "11:00": true}, available)
	assert.Equal(t, "10:00", out[1].EndTime.String())
}
