package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"courtbook/internal/cache"
	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/external"
	"courtbook/internal/handlers"
	"courtbook/internal/messaging"
	"courtbook/internal/metrics"
	"courtbook/internal/middleware"
	"courtbook/internal/pricing"
	"courtbook/internal/repository"
	"courtbook/internal/search"
	"courtbook/internal/service"

	"github.com/gin-gonic/gin"
)

// Server представляет HTTP сервер API
type Server struct {
	router   *gin.Engine
	config   *config.Config
	db       *database.DB
	nats     *messaging.NATSClient
	valkey   *cache.ValkeyClient
	search   *search.ElasticsearchClient
	services *service.Services
	repos    *repository.Repositories
}

// NewServer создает новый экземпляр сервера
func NewServer(cfg *config.Config) (*Server, error) {
	loc, err := cfg.Booking.Location()
	if err != nil {
		return nil, err
	}

	// Подключаемся к базе данных
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Запускаем миграции
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Подключаемся к NATS; без NATS_URL события не публикуются
	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	// Кеш необязателен: без Valkey все запросы идут в БД
	var valkeyClient *cache.ValkeyClient
	if cfg.Valkey.Addr != "" {
		valkeyClient, err = cache.NewValkeyClient(cfg.Valkey)
		if err != nil {
			slog.Warn("Valkey unavailable, running without cache", "error", err)
			valkeyClient = nil
		}
	}

	var esClient *search.ElasticsearchClient
	if cfg.Elasticsearch.URL != "" {
		esClient, err = search.NewElasticsearchClient(cfg.Elasticsearch)
		if err != nil {
			slog.Warn("Elasticsearch unavailable, court search falls back to catalog", "error", err)
			esClient = nil
		}
	}

	var catalog service.Catalog
	if cfg.Catalog.BaseURL != "" {
		catalog = external.NewCatalogClient(cfg.Catalog)
	}

	server := newServer(cfg, db, natsClient, valkeyClient, esClient, catalog, loc)
	return server, nil
}

func newServer(cfg *config.Config, db *database.DB, natsClient *messaging.NATSClient, valkeyClient *cache.ValkeyClient,
	esClient *search.ElasticsearchClient, catalog service.Catalog, loc *time.Location) *Server {
	// Устанавливаем режим Gin
	gin.SetMode(cfg.GinMode)

	// Создаем репозитории
	repos := repository.NewRepositories(db, cfg.Database.QueryTimeout)

	// Создаем сервисы
	services := service.NewServices(service.Dependencies{
		Repos:   repos,
		Catalog: catalog,
		Valkey:  valkeyClient,
		NATS:    natsClient,
		Search:  esClient,
		PriceDefaults: pricing.Defaults{
			Amount:   cfg.Booking.DefaultPriceAmount,
			Currency: cfg.Booking.DefaultPriceCurrency,
			Label:    cfg.Booking.DefaultPriceLabel,
		},
		Location: loc,
	})

	// Создаем роутер
	router := gin.New()

	// Применяем middleware
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())

	// Создаем сервер
	server := &Server{
		router:   router,
		config:   cfg,
		db:       db,
		nats:     natsClient,
		valkey:   valkeyClient,
		search:   esClient,
		services: services,
		repos:    repos,
	}

	// Настраиваем роуты
	server.setupRoutes()

	return server
}

// setupRoutes настраивает все API роуты
func (s *Server) setupRoutes() {
	h := handlers.NewHandlers(s.services.Courts, s.services.Bookings, s.repos.Users)

	var authCache middleware.AuthCache
	if s.valkey != nil {
		authCache = s.valkey
	}

	// API routes
	api := s.router.Group("/api")
	// Обязательная Basic Auth для всех API роутов
	api.Use(middleware.BasicAuth(s.repos.Users, authCache))
	api.Use(middleware.RequestTimeout(s.config.RequestTimeout))
	{
		api.GET("/me", h.Me)

		// Courts endpoints
		courts := api.Group("/courts")
		{
			courts.GET("", h.ListCourts)
			courts.GET("/:id/rules", h.GetCourtRule)
			courts.GET("/:id/price_plans", h.ListPricePlans)
			courts.GET("/:id/slots", h.ListSlots)
			courts.GET("/:id/price", h.GetPrice)
		}

		// Bookings endpoints
		bookings := api.Group("/bookings")
		{
			bookings.POST("", h.CreateBooking)
			bookings.GET("", h.ListBoard)
			bookings.POST("/:booking_no/cancel", h.CancelBooking)
		}

		api.GET("/my/bookings", h.ListMyBookings)
	}

	// Health check endpoint
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))
}

// healthCheck обрабатывает health check запросы
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	dbHealth := s.db.HealthCheck(ctx)
	if dbHealth.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}

	cacheStatus := "disabled"
	if s.valkey != nil {
		cacheStatus = "healthy"
		if err := s.valkey.Ping(ctx); err != nil {
			// Кеш деградирует, но не останавливает сервис
			cacheStatus = "unhealthy"
		}
	}

	searchStatus := "disabled"
	if s.search != nil {
		searchStatus = "healthy"
		if err := s.search.HealthCheck(ctx); err != nil {
			searchStatus = "unhealthy"
		}
	}

	natsStatus := "disabled"
	if s.nats.Enabled() {
		natsStatus = "connected"
	}

	c.JSON(status, gin.H{
		"status":   dbHealth.Status,
		"service":  "courtbook-api",
		"version":  "1.0.0",
		"database": dbHealth,
		"cache":    cacheStatus,
		"search":   searchStatus,
		"nats":     natsStatus,
	})
}

// Run запускает HTTP сервер
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%s", s.config.Port)
	return s.router.Run(addr)
}

// GetRouter возвращает роутер для тестирования
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Cleanup закрывает соединения
func (s *Server) Cleanup() error {
	if s.nats != nil {
		if err := s.nats.Close(); err != nil {
			slog.Error("Error closing NATS connection", "error", err)
		}
	}

	if s.valkey != nil {
		if err := s.valkey.Close(); err != nil {
			slog.Error("Error closing Valkey connection", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Error("Error closing database connection", "error", err)
			return err
		}
	}

	return nil
}
