package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/logger"
	"courtbook/internal/middleware"
	"courtbook/internal/models"
	"courtbook/internal/repository"
	"courtbook/internal/search"
	"courtbook/internal/timegrid"
)

var (
	clearExisting = flag.Bool("clear", false, "Delete existing courts and bookings before generating new ones")
	courtsPerSite = flag.Int("courts", 4, "Courts to generate per group")
	userCount     = flag.Int("users", 10, "Users to generate (userN@courtbook.local / password123)")
	dryRun        = flag.Bool("dry-run", false, "Show what would be generated without making changes")
)

// DefaultPassword is the password of every generated user.
const DefaultPassword = "password123"

// courtIndexer keeps the search index in step with generated courts.
type courtIndexer interface {
	IndexCourt(ctx context.Context, court models.Court) error
	DeleteCourt(ctx context.Context, id int64) error
}

type CourtGenerator struct {
	db    *database.DB
	repos *repository.Repositories
	index courtIndexer
}

func main() {
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	slog.Info("Starting court generator...")

	db, err := database.Connect(cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	generator := &CourtGenerator{
		db:    db,
		repos: repository.NewRepositories(db, 30*time.Second),
	}

	if cfg.Elasticsearch.URL != "" && !*dryRun {
		esClient, err := search.NewElasticsearchClient(cfg.Elasticsearch)
		if err != nil {
			slog.Warn("Elasticsearch unavailable, generated courts will not be indexed", "error", err)
		} else {
			generator.index = esClient
		}
	}

	ctx := context.Background()
	if err := generator.GenerateUsers(ctx); err != nil {
		slog.Error("Failed to generate users", "error", err)
		os.Exit(1)
	}
	if err := generator.GenerateCourts(ctx); err != nil {
		slog.Error("Failed to generate courts", "error", err)
		os.Exit(1)
	}

	slog.Info("Court generation completed successfully!")
}

func (g *CourtGenerator) GenerateUsers(ctx context.Context) error {
	for i := 1; i <= *userCount; i++ {
		user := &models.User{
			Email:        fmt.Sprintf("user%d@courtbook.local", i),
			PasswordHash: middleware.HashPassword(DefaultPassword),
			FirstName:    "User",
			Surname:      fmt.Sprintf("%d", i),
			IsActive:     true,
		}
		if *dryRun {
			slog.Info("[DRY RUN] Would upsert user", "email", user.Email)
			continue
		}
		if err := g.repos.Users.Create(ctx, user); err != nil {
			return fmt.Errorf("failed to create user %s: %w", user.Email, err)
		}
	}
	slog.Info("Users ready", "count", *userCount)
	return nil
}

func (g *CourtGenerator) GenerateCourts(ctx context.Context) error {
	if !*clearExisting {
		existing, err := g.existingCourtCount(ctx)
		if err != nil {
			return fmt.Errorf("failed to check existing courts: %w", err)
		}
		if existing > 0 {
			slog.Info("Courts already exist, skipping (use -clear to override)", "existing_count", existing)
			return nil
		}
	}

	layouts := courtLayouts(*courtsPerSite)
	if *dryRun {
		for _, l := range layouts {
			slog.Info("[DRY RUN] Would create court", "name", l.court.Name, "group", l.court.Group, "plans", len(l.plans))
		}
		return nil
	}

	if *clearExisting {
		if err := g.clearExisting(ctx); err != nil {
			return fmt.Errorf("failed to clear existing courts: %w", err)
		}
	}

	for _, l := range layouts {
		if err := g.repos.Courts.Create(ctx, &l.court, &l.rule, l.plans); err != nil {
			return fmt.Errorf("failed to create court %s: %w", l.court.Name, err)
		}
		slog.Info("Generated court", "court_id", l.court.ID, "name", l.court.Name, "group", l.court.Group)

		if g.index != nil {
			if err := g.index.IndexCourt(ctx, l.court); err != nil {
				slog.Warn("Failed to index court", "court_id", l.court.ID, "error", err)
			}
		}
	}
	return nil
}

func (g *CourtGenerator) existingCourtCount(ctx context.Context) (int, error) {
	var count int
	err := g.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM courts").Scan(&count)
	return count, err
}

func (g *CourtGenerator) clearExisting(ctx context.Context) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM bookings"); err != nil {
		return err
	}
	// court_rules and court_price_plans cascade
	rows, err := tx.QueryContext(ctx, "DELETE FROM courts RETURNING id")
	if err != nil {
		return err
	}
	var removed []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		removed = append(removed, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if g.index != nil {
		for _, id := range removed {
			if err := g.index.DeleteCourt(ctx, id); err != nil {
				slog.Warn("Failed to remove court from index", "court_id", id, "error", err)
			}
		}
	}
	slog.Info("Cleared existing courts", "count", len(removed))
	return nil
}

type courtLayout struct {
	court models.Court
	rule  models.OperatingRule
	plans []models.PricingRule
}

func courtLayouts(perGroup int) []courtLayout {
	// Masks read the same in Monday-first and Sunday-first bit order.
	weekdays, weekend := 0b0011110, 0b1000000
	groups := []struct {
		name     string
		location string
		open     timegrid.TimeOfDay
		close    timegrid.TimeOfDay
		slot     int
		day      int64
		evening  int64
		weekend  int64
	}{
		{"羽球", "1F", timegrid.MustParse("08:00"), timegrid.MustParse("22:00"), 60, 250, 350, 300},
		{"桌球", "2F", timegrid.MustParse("09:00"), timegrid.MustParse("21:00"), 30, 120, 150, 150},
	}

	var layouts []courtLayout
	for _, g := range groups {
		for i := 0; i < perGroup; i++ {
			location := g.location
			layouts = append(layouts, courtLayout{
				court: models.Court{
					Name:     fmt.Sprintf("%s %c 場", g.name, 'A'+i),
					Group:    g.name,
					Location: &location,
					IsActive: true,
				},
				rule: models.OperatingRule{OpenTime: g.open, CloseTime: g.close, SlotMinutes: g.slot},
				plans: []models.PricingRule{
					{Name: "平日白天", PricePerSlot: g.day, Currency: models.DefaultCurrency, WeekdayMask: &weekdays,
						StartTime: timegrid.MustParse("00:00"), EndTime: timegrid.MustParse("16:59"), IsActive: true, SortOrder: 1},
					{Name: "平日晚上", PricePerSlot: g.evening, Currency: models.DefaultCurrency, WeekdayMask: &weekdays,
						StartTime: timegrid.MustParse("17:00"), EndTime: timegrid.MustParse("23:59"), IsActive: true, SortOrder: 2},
					{Name: "週末", PricePerSlot: g.weekend, Currency: models.DefaultCurrency, WeekdayMask: &weekend,
						StartTime: timegrid.MustParse("00:00"), EndTime: timegrid.MustParse("23:59"), IsActive: true, SortOrder: 3},
				},
			})
		}
	}
	return layouts
}
