package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"time"

	"courtbook/internal/cache"
	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/external"
	"courtbook/internal/logger"
	"courtbook/internal/models"
	"courtbook/internal/repository"
	"courtbook/internal/search"
	"courtbook/internal/service"
)

func main() {
	var (
		dryRun     bool
		invalidate bool
		timeout    time.Duration
	)
	flag.BoolVar(&dryRun, "dry-run", false, "List courts without touching the index")
	flag.BoolVar(&invalidate, "invalidate", true, "Drop cached court reference data after syncing")
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "Overall sync timeout")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Starting court synchronization")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var catalog service.Catalog
	if cfg.Catalog.BaseURL != "" {
		slog.Info("Reading courts from catalog service", "url", cfg.Catalog.BaseURL)
		catalog = external.NewCatalogClient(cfg.Catalog)
	} else {
		slog.Info("Connecting to database")
		db, err := database.Connect(cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to database", "error", err)
		}
		defer db.Close()
		catalog = service.NewRepositoryCatalog(repository.NewCourtRepository(db, cfg.Database.QueryTimeout))
	}

	if cfg.Elasticsearch.URL == "" && !dryRun {
		logger.Fatal("ELASTICSEARCH_URL is not set")
	}

	var index courtIndex
	if !dryRun {
		esClient, err := search.NewElasticsearchClient(cfg.Elasticsearch)
		if err != nil {
			logger.Fatal("Failed to connect to Elasticsearch", "error", err)
		}
		index = esClient
	}

	var refCache referenceCache
	if invalidate && !dryRun && cfg.Valkey.Addr != "" {
		valkeyClient, err := cache.NewValkeyClient(cfg.Valkey)
		if err != nil {
			slog.Warn("Valkey unavailable, cached courts expire by TTL", "error", err)
		} else {
			defer valkeyClient.Close()
			refCache = valkeyClient
		}
	}

	if err := syncCourts(ctx, catalog, index, refCache); err != nil {
		logger.Fatal("Court synchronization failed", "error", err)
	}

	slog.Info("Court synchronization completed successfully")
}

type courtIndex interface {
	SyncCourts(ctx context.Context, courts []models.Court) error
	Count(ctx context.Context) (int64, error)
}

type referenceCache interface {
	InvalidateCourt(ctx context.Context, courtID int64) error
}

func syncCourts(ctx context.Context, catalog service.Catalog, index courtIndex, refCache referenceCache) error {
	start := time.Now()

	// Step 1: Fetch the catalog
	courts, err := catalog.ListCourts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list courts: %w", err)
	}
	slog.Info("Fetched courts", "count", len(courts))

	if index == nil {
		for _, court := range courts {
			slog.Info("[DRY RUN] Would index court", "court_id", court.ID, "name", court.Name, "group", court.Group)
		}
		return nil
	}

	// Step 2: Replace the index contents
	if err := index.SyncCourts(ctx, courts); err != nil {
		return fmt.Errorf("failed to index courts: %w", err)
	}

	// Step 3: Drop stale reference data
	if refCache != nil {
		for _, court := range courts {
			if err := refCache.InvalidateCourt(ctx, court.ID); err != nil {
				slog.Warn("Failed to drop cached court", "court_id", court.ID, "error", err)
			}
		}
	}

	indexed, err := index.Count(ctx)
	if err != nil {
		slog.Warn("Failed to count indexed courts", "error", err)
	}

	slog.Info("Court synchronization finished",
		"courts", len(courts),
		"indexed", indexed,
		"duration", time.Since(start).String())
	return nil
}
