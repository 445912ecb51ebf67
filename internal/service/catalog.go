package service

import (
	"context"
	"errors"

	"courtbook/internal/cache"
	"courtbook/internal/logger"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/repository"
)

// Catalog is the read-only source of court reference data.
type Catalog interface {
	ListCourts(ctx context.Context) ([]models.Court, error)
	GetCourt(ctx context.Context, id int64) (*models.Court, error)
	OperatingRule(ctx context.Context, courtID int64) (*models.OperatingRule, error)
	PricingRules(ctx context.Context, courtID int64) ([]models.PricingRule, error)
}

// ReferenceCache stores reference data between catalog reads.
type ReferenceCache interface {
	GetReference(ctx context.Context, courtID int64, kind string, dest any) error
	SetReference(ctx context.Context, courtID int64, kind string, value any) error
	GetCourtsList(ctx context.Context, dest any) error
	SetCourtsList(ctx context.Context, value any) error
}

type repositoryCatalog struct {
	courts *repository.CourtRepository
}

// NewRepositoryCatalog serves reference data from the courts tables.
func NewRepositoryCatalog(courts *repository.CourtRepository) Catalog {
	return repositoryCatalog{courts: courts}
}

func (c repositoryCatalog) ListCourts(ctx context.Context) ([]models.Court, error) {
	return c.courts.List(ctx)
}

func (c repositoryCatalog) GetCourt(ctx context.Context, id int64) (*models.Court, error) {
	return c.courts.GetByID(ctx, id)
}

func (c repositoryCatalog) OperatingRule(ctx context.Context, courtID int64) (*models.OperatingRule, error) {
	return c.courts.OperatingRule(ctx, courtID)
}

func (c repositoryCatalog) PricingRules(ctx context.Context, courtID int64) ([]models.PricingRule, error) {
	return c.courts.PricingRules(ctx, courtID)
}

// CachedCatalog reads through a ReferenceCache. Cache failures fall back to the catalog.
// Absent courts and rules are cached too, as JSON null.
type CachedCatalog struct {
	next  Catalog
	cache ReferenceCache
}

func NewCachedCatalog(next Catalog, rc ReferenceCache) *CachedCatalog {
	return &CachedCatalog{next: next, cache: rc}
}

func (c *CachedCatalog) ListCourts(ctx context.Context) ([]models.Court, error) {
	var courts []models.Court
	if c.lookup(ctx, "courts", func() error { return c.cache.GetCourtsList(ctx, &courts) }) {
		return courts, nil
	}

	courts, err := c.next.ListCourts(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, "courts", func() error { return c.cache.SetCourtsList(ctx, courts) })
	return courts, nil
}

func (c *CachedCatalog) GetCourt(ctx context.Context, id int64) (*models.Court, error) {
	var court *models.Court
	if c.lookup(ctx, "court", func() error { return c.cache.GetReference(ctx, id, "court", &court) }) {
		return court, nil
	}

	court, err := c.next.GetCourt(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, "court", func() error { return c.cache.SetReference(ctx, id, "court", court) })
	return court, nil
}

func (c *CachedCatalog) OperatingRule(ctx context.Context, courtID int64) (*models.OperatingRule, error) {
	var rule *models.OperatingRule
	if c.lookup(ctx, "rules", func() error { return c.cache.GetReference(ctx, courtID, "rules", &rule) }) {
		return rule, nil
	}

	rule, err := c.next.OperatingRule(ctx, courtID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, "rules", func() error { return c.cache.SetReference(ctx, courtID, "rules", rule) })
	return rule, nil
}

func (c *CachedCatalog) PricingRules(ctx context.Context, courtID int64) ([]models.PricingRule, error) {
	var plans []models.PricingRule
	if c.lookup(ctx, "price_plans", func() error { return c.cache.GetReference(ctx, courtID, "price_plans", &plans) }) {
		return plans, nil
	}

	plans, err := c.next.PricingRules(ctx, courtID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, "price_plans", func() error { return c.cache.SetReference(ctx, courtID, "price_plans", plans) })
	return plans, nil
}

func (c *CachedCatalog) lookup(ctx context.Context, kind string, get func() error) bool {
	if c.cache == nil {
		return false
	}
	err := get()
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		logger.WithContext(ctx).Warn("Reference cache lookup failed", "kind", kind, "error", err)
	}
	metrics.CacheLookup("reference", err == nil)
	return err == nil
}

func (c *CachedCatalog) store(ctx context.Context, kind string, set func() error) {
	if c.cache == nil {
		return
	}
	if err := set(); err != nil {
		logger.WithContext(ctx).Warn("Failed to cache reference data", "kind", kind, "error", err)
	}
}
