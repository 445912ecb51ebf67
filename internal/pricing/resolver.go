package pricing

import (
	"context"
	"time"

	apperr "courtbook/internal/errors"
	"courtbook/internal/logger"
	"courtbook/internal/models"
	"courtbook/internal/timegrid"
)

// Quote sources
const (
	SourceRule     = "rule"
	SourceFallback = "fallback"
	SourceDefault  = "default"
)

// RuleSource provides a court's pricing rules in list order.
type RuleSource interface {
	PricingRules(ctx context.Context, courtID int64) ([]models.PricingRule, error)
}

// Defaults is the price returned when a court has no usable rules.
type Defaults struct {
	Amount   int64
	Currency string
	Label    string
}

func DefaultDefaults() Defaults {
	return Defaults{Amount: 250, Currency: models.DefaultCurrency, Label: "(default)"}
}

type Resolver struct {
	source   RuleSource
	defaults Defaults
}

func NewResolver(source RuleSource, defaults Defaults) *Resolver {
	if defaults.Currency == "" {
		defaults.Currency = models.DefaultCurrency
	}
	if defaults.Label == "" {
		defaults.Label = "(default)"
	}
	return &Resolver{source: source, defaults: defaults}
}

// Resolve returns the price of the slot starting at slotStart on date. The first matching rule
// in source order wins; with no match the first listed rule is used. A court without rules, or a
// failing lookup, gets the default price. Resolve never fails.
func (r *Resolver) Resolve(ctx context.Context, courtID int64, date time.Time, slotStart timegrid.TimeOfDay) models.PriceQuote {
	log := logger.WithContext(ctx).With("court_id", courtID, "date", date.Format(timegrid.DateLayout), "slot", slotStart.String())

	rules, err := r.source.PricingRules(ctx, courtID)
	if err != nil {
		log.Warn("Price lookup failed, using default price", "error", err, "error_kind", apperr.Kind(err))
		return r.defaultQuote()
	}
	if len(rules) == 0 {
		log.Info("Court has no price plans, using default price")
		return r.defaultQuote()
	}

	for _, rule := range rules {
		if Matches(rule, date, slotStart) {
			return quoteFrom(rule, SourceRule)
		}
	}

	log.Info("No price plan matches slot, using first plan", "plan_id", rules[0].ID)
	return quoteFrom(rules[0], SourceFallback)
}

func (r *Resolver) defaultQuote() models.PriceQuote {
	return models.PriceQuote{
		Amount:   r.defaults.Amount,
		Currency: r.defaults.Currency,
		Label:    r.defaults.Label,
		Source:   SourceDefault,
	}
}

func quoteFrom(rule models.PricingRule, source string) models.PriceQuote {
	q := models.PriceQuote{
		Amount:   rule.PricePerSlot,
		Currency: rule.Currency,
		Label:    rule.Name,
		Source:   source,
	}
	if q.Currency == "" {
		q.Currency = models.DefaultCurrency
	}
	if q.Label == "" {
		q.Label = models.DefaultPriceLabel
	}
	return q
}
