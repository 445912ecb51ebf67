package jobs

import (
	"context"
	"log/slog"
	"time"

	"courtbook/internal/models"
)

type CourtLister interface {
	ListCourts(ctx context.Context) ([]models.Court, error)
}

type CourtIndexer interface {
	SyncCourts(ctx context.Context, courts []models.Court) error
}

type ReferenceInvalidator interface {
	InvalidateCourt(ctx context.Context, courtID int64) error
}

// CatalogSyncJob periodically copies the court catalog into the search index and drops cached
// reference data so rule and price changes become visible.
type CatalogSyncJob struct {
	catalog  CourtLister
	index    CourtIndexer
	cache    ReferenceInvalidator
	interval time.Duration
	ticker   *time.Ticker
	done     chan bool
}

// NewCatalogSyncJob creates a new catalog sync job. index and cache may be nil.
func NewCatalogSyncJob(catalog CourtLister, index CourtIndexer, cache ReferenceInvalidator, interval time.Duration) *CatalogSyncJob {
	return &CatalogSyncJob{
		catalog:  catalog,
		index:    index,
		cache:    cache,
		interval: interval,
		done:     make(chan bool),
	}
}

// Start begins the background job
func (j *CatalogSyncJob) Start(ctx context.Context) {
	slog.Info("Starting catalog sync job", "interval", j.interval)

	j.ticker = time.NewTicker(j.interval)

	// Run initial sync immediately
	go j.sync(ctx)

	go func() {
		for {
			select {
			case <-j.ticker.C:
				j.sync(ctx)
			case <-j.done:
				slog.Info("Catalog sync job stopped")
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop gracefully stops the background job
func (j *CatalogSyncJob) Stop() {
	if j.ticker != nil {
		j.ticker.Stop()
	}
	close(j.done)
}

func (j *CatalogSyncJob) sync(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, j.interval)
	defer cancel()

	if err := j.runOnce(ctx); err != nil {
		slog.Error("Catalog sync failed", "error", err)
	}
}

func (j *CatalogSyncJob) runOnce(ctx context.Context) error {
	start := time.Now()

	courts, err := j.catalog.ListCourts(ctx)
	if err != nil {
		return err
	}

	if j.index != nil {
		if err := j.index.SyncCourts(ctx, courts); err != nil {
			return err
		}
	}

	if j.cache != nil {
		for _, court := range courts {
			if err := j.cache.InvalidateCourt(ctx, court.ID); err != nil {
				slog.Warn("Failed to drop cached court", "court_id", court.ID, "error", err)
			}
		}
	}

	slog.Info("Catalog synced", "courts", len(courts), "elapsed", time.Since(start).String())
	return nil
}
