package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"courtbook/internal/cache"
	"courtbook/internal/database"
	"courtbook/internal/external"
	"courtbook/internal/messaging"
)

// Config содержит конфигурацию приложения
type Config struct {
	Port           string
	GinMode        string
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration

	// Performance monitoring
	PprofEnabled bool
	PprofPort    string

	// MetricsPort serves /metrics of the consumers process; empty disables it.
	MetricsPort string

	Database      database.Config
	NATS          messaging.Config
	Valkey        cache.Config
	Elasticsearch ElasticsearchConfig
	Catalog       external.CatalogConfig
	Booking       BookingConfig
}

// BookingConfig - параметры бронирования кортов
type BookingConfig struct {
	// Timezone in which dates and slot times are interpreted.
	Timezone string

	DefaultPriceAmount   int64
	DefaultPriceCurrency string
	DefaultPriceLabel    string

	// CatalogSyncInterval is how often the consumers reindex courts; 0 disables the job.
	CatalogSyncInterval time.Duration
}

// Location загружает часовой пояс кортов
func (b BookingConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid COURT_TIMEZONE %q: %w", b.Timezone, err)
	}
	return loc, nil
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8081"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,

		// Performance monitoring
		PprofEnabled: getEnv("PPROF_ENABLED", "false") == "true",
		PprofPort:    getEnv("PPROF_PORT", "6060"),
		MetricsPort:  getEnv("CONSUMERS_METRICS_PORT", "9091"),

		Database: database.Config{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnvInt("DB_PORT", 5432),
			User:               getEnv("DB_USER", "courtbook"),
			Password:           getEnv("DB_PASSWORD", "courtbook123"),
			DBName:             getEnv("DB_NAME", "courtbook"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetimeMin: getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 5),
			ConnMaxIdleTimeMin: getEnvInt("DB_CONN_MAX_IDLE_TIME_MIN", 1),
			QueryTimeout:       time.Duration(getEnvInt("DB_TIMEOUT_MS", 3000)) * time.Millisecond,
		},

		NATS: messaging.Config{
			URL:       getEnv("NATS_URL", "nats://localhost:4222"),
			ClusterID: getEnv("NATS_CLUSTER_ID", "courtbook"),
			ClientID:  getEnv("NATS_CLIENT_ID", "courtbook-api"),
		},

		Valkey: cache.Config{
			Addr:            getEnv("VALKEY_ADDR", "localhost:6379"),
			Password:        os.Getenv("VALKEY_PASSWORD"),
			DB:              getEnvInt("VALKEY_DB", 0),
			UsersHashKey:    getEnv("VALKEY_USERS_KEY", "users:auth"),
			ReferenceTTL:    time.Duration(getEnvInt("REFERENCE_CACHE_TTL_SEC", 300)) * time.Second,
			AvailabilityTTL: time.Duration(getEnvInt("AVAILABILITY_CACHE_TTL_SEC", 30)) * time.Second,
		},

		Elasticsearch: LoadElasticsearchConfig(),

		Catalog: external.CatalogConfig{
			BaseURL:  os.Getenv("CATALOG_SERVICE_URL"),
			Username: os.Getenv("CATALOG_USERNAME"),
			Password: os.Getenv("CATALOG_PASSWORD"),
			Timeout:  time.Duration(getEnvInt("CATALOG_TIMEOUT_SEC", 5)) * time.Second,
		},

		Booking: BookingConfig{
			Timezone:             getEnv("COURT_TIMEZONE", "Asia/Taipei"),
			DefaultPriceAmount:   int64(getEnvInt("PRICE_DEFAULT_AMOUNT", 250)),
			DefaultPriceCurrency: getEnv("PRICE_DEFAULT_CURRENCY", "TWD"),
			DefaultPriceLabel:    getEnv("PRICE_DEFAULT_LABEL", "(default)"),
			CatalogSyncInterval:  time.Duration(getEnvInt("CATALOG_SYNC_INTERVAL_SEC", 300)) * time.Second,
		},
	}
}

// Validate проверяет значения, без которых сервис не может работать
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	if c.Database.QueryTimeout <= 0 {
		errs = append(errs, errors.New("DB_TIMEOUT_MS must be positive"))
	}
	if c.Booking.DefaultPriceAmount < 0 {
		errs = append(errs, errors.New("PRICE_DEFAULT_AMOUNT must not be negative"))
	}
	if _, err := c.Booking.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT_SEC must be positive"))
	}
	return errors.Join(errs...)
}

// getEnv получает значение переменной окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает целочисленное значение переменной окружения
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
