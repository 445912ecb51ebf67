package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"courtbook/internal/cache"
	apperr "courtbook/internal/errors"
	"courtbook/internal/models"
	"courtbook/internal/pricing"
	"courtbook/internal/timegrid"
)

var taipei = time.FixedZone("CST", 8*60*60)

// Monday 2026-03-02 10:00 in Taipei.
var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, taipei)

type memCatalog struct {
	courts []models.Court
	rules  map[int64]*models.OperatingRule
	plans  map[int64][]models.PricingRule
	err    error
	calls  atomic.Int64
}

func (c *memCatalog) ListCourts(ctx context.Context) ([]models.Court, error) {
	c.calls.Add(1)
	return c.courts, c.err
}

func (c *memCatalog) GetCourt(ctx context.Context, id int64) (*models.Court, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	for i := range c.courts {
		if c.courts[i].ID == id {
			court := c.courts[i]
			return &court, nil
		}
	}
	return nil, nil
}

func (c *memCatalog) OperatingRule(ctx context.Context, courtID int64) (*models.OperatingRule, error) {
	c.calls.Add(1)
	return c.rules[courtID], c.err
}

func (c *memCatalog) PricingRules(ctx context.Context, courtID int64) ([]models.PricingRule, error) {
	c.calls.Add(1)
	return c.plans[courtID], c.err
}

// memStore enforces one active reservation per court and start time, like the partial unique index.
type memStore struct {
	mu     sync.Mutex
	rows   []models.Reservation
	nextID int64
}

func (m *memStore) Create(ctx context.Context, b *models.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.CourtID == b.CourtID && r.StartAt.Equal(b.StartAt) && r.Status == models.StatusActive {
			return fmt.Errorf("%w: court %d at %s", apperr.ErrConflict, b.CourtID, b.StartAt)
		}
	}
	m.nextID++
	b.ID = m.nextID
	m.rows = append(m.rows, *b)
	return nil
}

func (m *memStore) GetByBookingNo(ctx context.Context, bookingNo string) (*models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.BookingNo == bookingNo {
			found := r
			return &found, nil
		}
	}
	return nil, nil
}

func (m *memStore) Cancel(ctx context.Context, bookingNo string, userID int64, at time.Time) (*models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rows {
		if r.BookingNo == bookingNo && r.UserID == userID && r.Status == models.StatusActive {
			m.rows[i].Status = models.StatusCancelled
			m.rows[i].CancelledAt = &at
			updated := m.rows[i]
			return &updated, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListByRange(ctx context.Context, from, to time.Time, courtID *int64) ([]models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Reservation
	for _, r := range m.rows {
		if r.StartAt.Before(from) || !r.StartAt.Before(to) {
			continue
		}
		if courtID != nil && r.CourtID != *courtID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) ListByUser(ctx context.Context, userID int64, filter models.BookingFilter, now time.Time) ([]models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Reservation
	for _, r := range m.rows {
		if r.UserID != userID {
			continue
		}
		if !filter.IncludeHistory && (r.Status != models.StatusActive || r.StartAt.Before(now)) {
			continue
		}
		if filter.Date != nil {
			from, to := timegrid.DayBounds(*filter.Date)
			if r.StartAt.Before(from) || !r.StartAt.Before(to) {
				continue
			}
		}
		if filter.CourtID != nil && r.CourtID != *filter.CourtID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) status(bookingNo string) string {
	b, _ := m.GetByBookingNo(context.Background(), bookingNo)
	if b == nil {
		return ""
	}
	return b.Status
}

type memPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *memPublisher) Publish(subject string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

// memCache implements ReferenceCache and AvailabilityCache on JSON blobs.
type memCache struct {
	mu          sync.Mutex
	entries     map[string][]byte
	generations map[string]int64
	invalidated []string
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}, generations: map[string]int64{}}
}

func (c *memCache) get(key string, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return cache.ErrMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memCache) set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
	return nil
}

func (c *memCache) GetReference(ctx context.Context, courtID int64, kind string, dest any) error {
	return c.get(fmt.Sprintf("court:%d:%s", courtID, kind), dest)
}

func (c *memCache) SetReference(ctx context.Context, courtID int64, kind string, value any) error {
	return c.set(fmt.Sprintf("court:%d:%s", courtID, kind), value)
}

func (c *memCache) GetCourtsList(ctx context.Context, dest any) error {
	return c.get("courts:list", dest)
}

func (c *memCache) SetCourtsList(ctx context.Context, value any) error {
	return c.set("courts:list", value)
}

func (c *memCache) GetSlotsRaw(ctx context.Context, courtID int64, date string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[fmt.Sprintf("availability:%d:%s", courtID, date)]
	if !ok {
		return nil, cache.ErrMiss
	}
	return raw, nil
}

func (c *memCache) SlotsGeneration(ctx context.Context, courtID int64, date string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[fmt.Sprintf("availability:%d:%s", courtID, date)], nil
}

func (c *memCache) SetSlots(ctx context.Context, courtID int64, date string, generation int64, value any) error {
	key := fmt.Sprintf("availability:%d:%s", courtID, date)
	c.mu.Lock()
	current := c.generations[key]
	c.mu.Unlock()
	if current != generation {
		return cache.ErrStale
	}
	return c.set(key, value)
}

func (c *memCache) InvalidateAvailability(ctx context.Context, courtID int64, date string) error {
	key := fmt.Sprintf("availability:%d:%s", courtID, date)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.generations[key]++
	c.invalidated = append(c.invalidated, key)
	return nil
}

type fixture struct {
	catalog   *memCatalog
	store     *memStore
	publisher *memPublisher
	cache     *memCache
	courts    *CourtService
	bookings  *BookingService
}

func intPtr(v int) *int { return &v }

// newFixture builds court 1 (08:00-11:00, 60 min) with the weekday/Saturday price plans,
// court 2 without rule or price plans, and inactive court 3.
func newFixture() *fixture {
	catalog := &memCatalog{
		courts: []models.Court{
			{ID: 1, Name: "羽球 A 場", Group: "badminton", IsActive: true},
			{ID: 2, Name: "籃球場", Group: "basketball", IsActive: true},
			{ID: 3, Name: "Closed", Group: "badminton", IsActive: false},
		},
		rules: map[int64]*models.OperatingRule{
			1: {CourtID: 1, OpenTime: timegrid.MustParse("08:00"), CloseTime: timegrid.MustParse("11:00"), SlotMinutes: 60},
		},
		plans: map[int64][]models.PricingRule{
			1: {
				{ID: 10, CourtID: 1, Name: "平日", PricePerSlot: 250, Currency: "TWD", WeekdayMask: intPtr(0b0011111),
					StartTime: timegrid.MustParse("08:00"), EndTime: timegrid.MustParse("12:00"), IsActive: true},
				{ID: 11, CourtID: 1, Name: "週六", PricePerSlot: 300, Currency: "TWD", WeekdayMask: intPtr(0b0100000),
					StartTime: timegrid.MustParse("00:00"), EndTime: timegrid.MustParse("23:59"), IsActive: true},
			},
		},
	}

	f := &fixture{
		catalog:   catalog,
		store:     &memStore{},
		publisher: &memPublisher{},
		cache:     newMemCache(),
	}

	resolver := pricing.NewResolver(catalog, pricing.DefaultDefaults())
	f.courts = NewCourtService(catalog, f.store, resolver, nil, f.cache, taipei)
	f.bookings = NewBookingService(f.courts, f.store, resolver, f.publisher, f.cache, taipei)
	f.bookings.now = func() time.Time { return testNow }
	return f
}
