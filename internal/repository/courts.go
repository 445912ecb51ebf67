package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"courtbook/internal/database"
	"courtbook/internal/models"
)

type CourtRepository struct {
	base
}

func NewCourtRepository(db *database.DB, timeout time.Duration) *CourtRepository {
	return &CourtRepository{base: newBase(db, timeout)}
}

const courtColumns = `id, name, court_group, location, is_active, created_at`

func scanCourt(s scanner, court *models.Court) error {
	return s.Scan(
		&court.ID,
		&court.Name,
		&court.Group,
		&court.Location,
		&court.IsActive,
		&court.CreatedAt,
	)
}

// List returns active courts ordered by group and id.
func (r *CourtRepository) List(ctx context.Context) ([]models.Court, error) {
	var courts []models.Court
	err := database.Retry(ctx, 3, func(ctx context.Context) error {
		ctx, cancel := r.bounded(ctx)
		defer cancel()

		rows, err := r.db.QueryContext(ctx, `
			SELECT `+courtColumns+`
			FROM courts
			WHERE is_active = TRUE
			ORDER BY court_group, id`)
		if err != nil {
			return database.ClassifyError(err)
		}
		defer rows.Close()

		courts = courts[:0]
		for rows.Next() {
			var court models.Court
			if err := scanCourt(rows, &court); err != nil {
				return database.ClassifyError(err)
			}
			courts = append(courts, court)
		}
		return database.ClassifyError(rows.Err())
	})
	return courts, err
}

func (r *CourtRepository) GetByID(ctx context.Context, id int64) (*models.Court, error) {
	court := &models.Court{}
	err := database.Retry(ctx, 3, func(ctx context.Context) error {
		ctx, cancel := r.bounded(ctx)
		defer cancel()

		err := scanCourt(r.db.QueryRowContext(ctx, `
			SELECT `+courtColumns+`
			FROM courts
			WHERE id = $1`, id), court)
		if err == sql.ErrNoRows {
			court = nil
			return nil
		}
		return database.ClassifyError(err)
	})
	if err != nil {
		return nil, err
	}
	return court, nil
}

// OperatingRule returns nil when the court has no rule.
func (r *CourtRepository) OperatingRule(ctx context.Context, courtID int64) (*models.OperatingRule, error) {
	rule := &models.OperatingRule{}
	err := database.Retry(ctx, 3, func(ctx context.Context) error {
		ctx, cancel := r.bounded(ctx)
		defer cancel()

		err := r.db.QueryRowContext(ctx, `
			SELECT court_id, open_time, close_time, slot_minutes
			FROM court_rules
			WHERE court_id = $1`, courtID).Scan(
			&rule.CourtID,
			&rule.OpenTime,
			&rule.CloseTime,
			&rule.SlotMinutes,
		)
		if err == sql.ErrNoRows {
			rule = nil
			return nil
		}
		return database.ClassifyError(err)
	})
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// PricingRules returns the court's price plans in list order.
func (r *CourtRepository) PricingRules(ctx context.Context, courtID int64) ([]models.PricingRule, error) {
	var plans []models.PricingRule
	err := database.Retry(ctx, 3, func(ctx context.Context) error {
		ctx, cancel := r.bounded(ctx)
		defer cancel()

		rows, err := r.db.QueryContext(ctx, `
			SELECT id, court_id, name, price_per_slot, currency, weekday_mask,
			       start_time, end_time, is_active, sort_order
			FROM court_price_plans
			WHERE court_id = $1
			ORDER BY sort_order, id`, courtID)
		if err != nil {
			return database.ClassifyError(err)
		}
		defer rows.Close()

		plans = plans[:0]
		for rows.Next() {
			var p models.PricingRule
			var mask sql.NullInt32
			if err := rows.Scan(
				&p.ID,
				&p.CourtID,
				&p.Name,
				&p.PricePerSlot,
				&p.Currency,
				&mask,
				&p.StartTime,
				&p.EndTime,
				&p.IsActive,
				&p.SortOrder,
			); err != nil {
				return database.ClassifyError(err)
			}
			if mask.Valid {
				m := int(mask.Int32)
				p.WeekdayMask = &m
			}
			plans = append(plans, p)
		}
		return database.ClassifyError(rows.Err())
	})
	return plans, err
}

// Create inserts a court together with its operating rule and price plans.
func (r *CourtRepository) Create(ctx context.Context, court *models.Court, rule *models.OperatingRule, plans []models.PricingRule) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO courts (name, court_group, location, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		court.Name, court.Group, court.Location, court.IsActive,
	).Scan(&court.ID, &court.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert court: %w", err)
	}

	if rule != nil {
		rule.CourtID = court.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO court_rules (court_id, open_time, close_time, slot_minutes)
			VALUES ($1, $2, $3, $4)`,
			rule.CourtID, rule.OpenTime, rule.CloseTime, rule.SlotMinutes); err != nil {
			return fmt.Errorf("failed to insert court rule: %w", err)
		}
	}

	for i := range plans {
		p := &plans[i]
		p.CourtID = court.ID
		var mask any
		if p.WeekdayMask != nil {
			mask = *p.WeekdayMask
		}
		err := tx.QueryRowContext(ctx, `
			INSERT INTO court_price_plans
			    (court_id, name, price_per_slot, currency, weekday_mask, start_time, end_time, is_active, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id`,
			p.CourtID, p.Name, p.PricePerSlot, p.Currency, mask, p.StartTime, p.EndTime, p.IsActive, p.SortOrder,
		).Scan(&p.ID)
		if err != nil {
			return fmt.Errorf("failed to insert price plan: %w", err)
		}
	}

	return tx.Commit()
}
