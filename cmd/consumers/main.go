package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"courtbook/cmd/consumers/jobs"
	"courtbook/internal/config"
	"courtbook/internal/consumers"
	"courtbook/internal/logger"
	"courtbook/internal/metrics"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", "error", err)
	}

	log.Info("Starting consumers service...")

	// Override NATS client ID for consumers
	cfg.NATS.ClientID = "courtbook-consumers"

	// Create and start consumers
	consumerService, err := consumers.NewConsumerService(cfg)
	if err != nil {
		logger.Fatal("Failed to create consumer service", "error", err)
	}

	// Start consuming messages
	if err := consumerService.Start(); err != nil {
		logger.Fatal("Failed to start consumers", "error", err)
	}

	ctx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()

	var syncJob *jobs.CatalogSyncJob
	if cfg.Booking.CatalogSyncInterval > 0 {
		var index jobs.CourtIndexer
		if es := consumerService.Search(); es != nil {
			index = es
		}
		syncJob = jobs.NewCatalogSyncJob(consumerService.Catalog(), index, consumerService.Cache(), cfg.Booking.CatalogSyncInterval)
		syncJob.Start(ctx)
	}

	counterJob := jobs.NewCounterReconcileJob(consumerService.Bookings(), consumerService.Cache(), consumerService.Location(), 5*time.Minute)
	counterJob.Start(ctx)

	var metricsServer *http.Server
	if cfg.MetricsPort != "" {
		metricsServer = &http.Server{
			Addr:              ":" + cfg.MetricsPort,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info("Starting metrics server", "port", cfg.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("Metrics server failed", "error", err)
			}
		}()
	}

	log.Info("Consumers service started successfully")

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down consumers service...")

	if syncJob != nil {
		syncJob.Stop()
	}
	counterJob.Stop()
	stopJobs()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Error stopping metrics server", "error", err)
		}
	}

	if err := consumerService.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during shutdown", "error", err)
	}

	log.Info("Consumers service stopped")
}
