package consumers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"courtbook/internal/cache"
	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/external"
	"courtbook/internal/messaging"
	"courtbook/internal/models"
	"courtbook/internal/repository"
	"courtbook/internal/search"
	"courtbook/internal/service"

	"github.com/nats-io/stan.go"
)

const queueGroup = "consumers"

type ConsumerService struct {
	db       *database.DB
	nats     *messaging.NATSClient
	valkey   *cache.ValkeyClient
	search   *search.ElasticsearchClient
	repos    *repository.Repositories
	catalog  service.Catalog
	loc      *time.Location
	handlers *Handlers
	subs     []stan.Subscription
}

func NewConsumerService(cfg *config.Config) (*ConsumerService, error) {
	loc, err := cfg.Booking.Location()
	if err != nil {
		return nil, err
	}

	// Connect to database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}

	// Connect to NATS
	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		db.Close()
		return nil, err
	}
	if !natsClient.Enabled() {
		db.Close()
		return nil, fmt.Errorf("consumers need NATS_URL")
	}

	valkeyClient, err := cache.NewValkeyClient(cfg.Valkey)
	if err != nil {
		natsClient.Close()
		db.Close()
		return nil, err
	}

	var esClient *search.ElasticsearchClient
	if cfg.Elasticsearch.URL != "" {
		esClient, err = search.NewElasticsearchClient(cfg.Elasticsearch)
		if err != nil {
			slog.Warn("Elasticsearch unavailable, catalog sync disabled", "error", err)
			esClient = nil
		}
	}

	repos := repository.NewRepositories(db, cfg.Database.QueryTimeout)

	var catalog service.Catalog
	if cfg.Catalog.BaseURL != "" {
		catalog = external.NewCatalogClient(cfg.Catalog)
	} else {
		catalog = service.NewRepositoryCatalog(repos.Courts)
	}

	return &ConsumerService{
		db:       db,
		nats:     natsClient,
		valkey:   valkeyClient,
		search:   esClient,
		repos:    repos,
		catalog:  catalog,
		loc:      loc,
		handlers: NewHandlers(valkeyClient, loc),
	}, nil
}

func (cs *ConsumerService) Start() error {
	slog.Info("Starting NATS consumers...")

	subscriptions := []struct {
		subject string
		handler stan.MsgHandler
	}{
		{models.EventBookingCreated, cs.handlers.HandleBookingCreated},
		{models.EventBookingCancelled, cs.handlers.HandleBookingCancelled},
	}

	for _, s := range subscriptions {
		sub, err := cs.nats.SubscribeQueue(s.subject, queueGroup, s.handler)
		if err != nil {
			return err
		}
		cs.subs = append(cs.subs, sub)
	}

	slog.Info("All consumers started successfully")
	return nil
}

// Accessors for the background jobs.

func (cs *ConsumerService) Catalog() service.Catalog { return cs.catalog }

func (cs *ConsumerService) Search() *search.ElasticsearchClient { return cs.search }

func (cs *ConsumerService) Cache() *cache.ValkeyClient { return cs.valkey }

func (cs *ConsumerService) Bookings() *repository.BookingRepository { return cs.repos.Bookings }

func (cs *ConsumerService) Location() *time.Location { return cs.loc }

func (cs *ConsumerService) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down consumer service...")

	for _, sub := range cs.subs {
		// Close keeps the durable queue membership, Unsubscribe would drop it.
		if err := sub.Close(); err != nil {
			slog.Error("Error closing subscription", "error", err)
		}
	}

	if cs.nats != nil {
		if err := cs.nats.Close(); err != nil {
			slog.Error("Error closing NATS connection", "error", err)
		}
	}

	if cs.valkey != nil {
		if err := cs.valkey.Close(); err != nil {
			slog.Error("Error closing Valkey connection", "error", err)
		}
	}

	if cs.db != nil {
		if err := cs.db.Close(); err != nil {
			slog.Error("Error closing database connection", "error", err)
			return err
		}
	}

	return nil
}
