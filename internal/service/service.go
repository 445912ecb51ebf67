package service

import (
	"time"

	"courtbook/internal/cache"
	"courtbook/internal/messaging"
	"courtbook/internal/pricing"
	"courtbook/internal/repository"
	"courtbook/internal/search"
)

type Services struct {
	Courts   *CourtService
	Bookings *BookingService
}

// Dependencies wires the services. Cache, NATS and Elasticsearch clients are optional.
type Dependencies struct {
	Repos         *repository.Repositories
	Catalog       Catalog
	Valkey        *cache.ValkeyClient
	NATS          *messaging.NATSClient
	Search        *search.ElasticsearchClient
	PriceDefaults pricing.Defaults
	Location      *time.Location
}

func NewServices(deps Dependencies) *Services {
	catalog := deps.Catalog
	if catalog == nil {
		catalog = NewRepositoryCatalog(deps.Repos.Courts)
	}

	var (
		refCache  ReferenceCache
		slotCache AvailabilityCache
		publisher Publisher
		searcher  CourtSearcher
	)
	if deps.Valkey != nil {
		refCache = deps.Valkey
		slotCache = deps.Valkey
	}
	if deps.NATS.Enabled() {
		publisher = deps.NATS
	}
	if deps.Search != nil {
		searcher = deps.Search
	}

	catalog = NewCachedCatalog(catalog, refCache)
	resolver := pricing.NewResolver(catalog, deps.PriceDefaults)

	courtService := NewCourtService(catalog, deps.Repos.Bookings, resolver, searcher, slotCache, deps.Location)
	bookingService := NewBookingService(courtService, deps.Repos.Bookings, resolver, publisher, slotCache, deps.Location)

	return &Services{
		Courts:   courtService,
		Bookings: bookingService,
	}
}
