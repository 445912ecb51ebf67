package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"courtbook/internal/availability"
	"courtbook/internal/cache"
	apperr "courtbook/internal/errors"
	"courtbook/internal/logger"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/pricing"
	"courtbook/internal/timegrid"
)

// CourtSearcher finds courts in the search index.
type CourtSearcher interface {
	SearchCourts(ctx context.Context, q models.CourtSearchQuery) ([]models.Court, error)
}

// AvailabilityCache keeps rendered slot grids per court and date. SetSlots refuses grids
// computed before the latest invalidation.
type AvailabilityCache interface {
	GetSlotsRaw(ctx context.Context, courtID int64, date string) ([]byte, error)
	SlotsGeneration(ctx context.Context, courtID int64, date string) (int64, error)
	SetSlots(ctx context.Context, courtID int64, date string, generation int64, value any) error
	InvalidateAvailability(ctx context.Context, courtID int64, date string) error
}

type CourtService struct {
	catalog   Catalog
	bookings  BookingStore
	resolver  *pricing.Resolver
	searcher  CourtSearcher
	slotCache AvailabilityCache
	loc       *time.Location
}

func NewCourtService(catalog Catalog, bookings BookingStore, resolver *pricing.Resolver, searcher CourtSearcher, slotCache AvailabilityCache, loc *time.Location) *CourtService {
	if loc == nil {
		loc = time.Local
	}
	return &CourtService{
		catalog:   catalog,
		bookings:  bookings,
		resolver:  resolver,
		searcher:  searcher,
		slotCache: slotCache,
		loc:       loc,
	}
}

// List returns active courts. A query or group goes to the search index first; when the index
// is unavailable the catalog list is filtered in memory.
func (s *CourtService) List(ctx context.Context, q models.CourtSearchQuery) ([]models.Court, error) {
	q.Query = strings.TrimSpace(q.Query)
	q.Group = strings.TrimSpace(q.Group)

	if (q.Query != "" || q.Group != "") && s.searcher != nil {
		courts, err := s.searcher.SearchCourts(ctx, q)
		if err == nil {
			return courts, nil
		}
		logger.WithContext(ctx).Warn("Court search failed, filtering catalog instead", "error", err)
	}

	courts, err := s.catalog.ListCourts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list courts: %w", err)
	}
	return filterCourts(courts, q), nil
}

func filterCourts(courts []models.Court, q models.CourtSearchQuery) []models.Court {
	if q.Query == "" && q.Group == "" {
		return courts
	}
	needle := strings.ToLower(q.Query)
	out := make([]models.Court, 0, len(courts))
	for _, c := range courts {
		if q.Group != "" && !strings.EqualFold(c.Group, q.Group) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(c.Name), needle) &&
			(c.Location == nil || !strings.Contains(strings.ToLower(*c.Location), needle)) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Get returns an active court or ErrNotFound.
func (s *CourtService) Get(ctx context.Context, courtID int64) (*models.Court, error) {
	court, err := s.catalog.GetCourt(ctx, courtID)
	if err != nil {
		return nil, fmt.Errorf("failed to get court: %w", err)
	}
	if court == nil || !court.IsActive {
		return nil, fmt.Errorf("%w: court %d", apperr.ErrNotFound, courtID)
	}
	return court, nil
}

// OperatingRule returns the court's rule, or the default window when it has none.
func (s *CourtService) OperatingRule(ctx context.Context, courtID int64) (models.OperatingRule, error) {
	if _, err := s.Get(ctx, courtID); err != nil {
		return models.OperatingRule{}, err
	}
	return s.operatingRule(ctx, courtID)
}

func (s *CourtService) operatingRule(ctx context.Context, courtID int64) (models.OperatingRule, error) {
	rule, err := s.catalog.OperatingRule(ctx, courtID)
	if err != nil {
		return models.OperatingRule{}, fmt.Errorf("failed to get operating rule: %w", err)
	}
	if rule == nil {
		def := timegrid.DefaultRule()
		logger.WithContext(ctx).Debug("Court has no operating rule, using default window", "court_id", courtID)
		return models.OperatingRule{
			CourtID:     courtID,
			OpenTime:    def.Open,
			CloseTime:   def.Close,
			SlotMinutes: def.SlotMinutes,
		}, nil
	}
	if err := rule.Grid().Validate(); err != nil {
		return models.OperatingRule{}, fmt.Errorf("court %d: %w", courtID, err)
	}
	return *rule, nil
}

// PricePlans returns the court's price list in resolution order.
func (s *CourtService) PricePlans(ctx context.Context, courtID int64) ([]models.PricingRule, error) {
	if _, err := s.Get(ctx, courtID); err != nil {
		return nil, err
	}
	plans, err := s.catalog.PricingRules(ctx, courtID)
	if err != nil {
		return nil, fmt.Errorf("failed to get price plans: %w", err)
	}
	return plans, nil
}

// Slots returns the court's slot grid for a date, each slot flagged with its availability.
func (s *CourtService) Slots(ctx context.Context, courtID int64, dateStr string) (*models.SlotsResponse, error) {
	date, err := parseDateInput(dateStr, s.loc)
	if err != nil {
		return nil, err
	}
	day := date.Format(timegrid.DateLayout)

	if cached, ok := s.cachedSlots(ctx, courtID, day); ok {
		return cached, nil
	}
	generation, cacheable := s.slotsGeneration(ctx, courtID, day)

	if _, err := s.Get(ctx, courtID); err != nil {
		return nil, err
	}
	rule, err := s.operatingRule(ctx, courtID)
	if err != nil {
		return nil, err
	}
	grid := rule.Grid()
	slots, err := grid.Slots()
	if err != nil {
		return nil, err
	}

	from, to := timegrid.DayBounds(date)
	reservations, err := s.bookings.ListByRange(ctx, from, to, &courtID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	idx := availability.Build(reservations, s.loc)

	resp := &models.SlotsResponse{
		CourtID:     courtID,
		Date:        day,
		SlotMinutes: grid.SlotMinutes,
		Items:       availability.Annotate(courtID, grid, slots, idx),
	}

	if cacheable {
		err := s.slotCache.SetSlots(ctx, courtID, day, generation, resp)
		switch {
		case errors.Is(err, cache.ErrStale):
			logger.WithContext(ctx).Debug("Slots changed while loading, not cached", "court_id", courtID, "date", day)
		case err != nil:
			logger.WithContext(ctx).Warn("Failed to cache slots", "court_id", courtID, "date", day, "error", err)
		}
	}
	return resp, nil
}

func (s *CourtService) slotsGeneration(ctx context.Context, courtID int64, day string) (int64, bool) {
	if s.slotCache == nil {
		return 0, false
	}
	generation, err := s.slotCache.SlotsGeneration(ctx, courtID, day)
	if err != nil {
		logger.WithContext(ctx).Warn("Availability generation lookup failed", "court_id", courtID, "error", err)
		return 0, false
	}
	return generation, true
}

func (s *CourtService) cachedSlots(ctx context.Context, courtID int64, day string) (*models.SlotsResponse, bool) {
	if s.slotCache == nil {
		return nil, false
	}
	raw, err := s.slotCache.GetSlotsRaw(ctx, courtID, day)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			logger.WithContext(ctx).Warn("Availability cache lookup failed", "court_id", courtID, "error", err)
		}
		metrics.CacheLookup("availability", false)
		return nil, false
	}

	var resp models.SlotsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		logger.WithContext(ctx).Warn("Dropping undecodable cached slots", "court_id", courtID, "error", err)
		metrics.CacheLookup("availability", false)
		return nil, false
	}
	metrics.CacheLookup("availability", true)
	return &resp, true
}

// Price quotes the slot starting at timeStr on dateStr. It fails only on malformed input or an
// unknown court; pricing problems degrade to the default price.
func (s *CourtService) Price(ctx context.Context, courtID int64, dateStr, timeStr string) (models.PriceQuote, error) {
	date, err := parseDateInput(dateStr, s.loc)
	if err != nil {
		return models.PriceQuote{}, err
	}
	start, err := parseTimeInput(timeStr)
	if err != nil {
		return models.PriceQuote{}, err
	}
	if _, err := s.Get(ctx, courtID); err != nil {
		return models.PriceQuote{}, err
	}

	quote := s.resolver.Resolve(ctx, courtID, date, start)
	metrics.PriceQuotesTotal.WithLabelValues(quote.Source).Inc()
	return quote, nil
}

func parseDateInput(s string, loc *time.Location) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, fmt.Errorf("%w: date is required", apperr.ErrInvalidInput)
	}
	date, err := timegrid.ParseDate(s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", apperr.ErrInvalidInput)
	}
	return date, nil
}

func parseTimeInput(s string) (timegrid.TimeOfDay, error) {
	if strings.TrimSpace(s) == "" {
		return 0, fmt.Errorf("%w: time is required", apperr.ErrInvalidInput)
	}
	t, err := timegrid.Parse(s)
	if err != nil || t >= timegrid.MinutesPerDay {
		return 0, fmt.Errorf("%w: time must be HH:MM", apperr.ErrInvalidInput)
	}
	return t, nil
}
