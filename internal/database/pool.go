package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperr "courtbook/internal/errors"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type PoolStats struct {
	MaxOpenConns      int           `json:"max_open_connections"`
	OpenConns         int           `json:"open_connections"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}

type HealthCheck struct {
	Status       string        `json:"status"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
	Stats        PoolStats     `json:"stats"`
	Warnings     []string      `json:"warnings,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

func (db *DB) GetPoolStats() PoolStats {
	stats := db.Stats()
	return PoolStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

func (db *DB) HealthCheck(ctx context.Context) HealthCheck {
	start := time.Now()
	healthCheck := HealthCheck{
		Timestamp: start,
		Stats:     db.GetPoolStats(),
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := db.PingContext(pingCtx)
	healthCheck.ResponseTime = time.Since(start)

	if err != nil {
		healthCheck.Status = "unhealthy"
		healthCheck.Error = err.Error()
		slog.Error("Database health check failed", "error", err)
	} else {
		healthCheck.Status = "healthy"
	}

	healthCheck.Warnings = healthCheck.Stats.Warnings()
	for _, w := range healthCheck.Warnings {
		slog.Warn("Database pool pressure", "warning", w)
	}

	return healthCheck
}

// Warnings lists signs of pool pressure: near-exhausted connections, long waits for a
// connection and idle-connection churn.
func (s PoolStats) Warnings() []string {
	var warnings []string
	if s.MaxOpenConns > 0 && s.InUse > int(float64(s.MaxOpenConns)*0.9) {
		warnings = append(warnings, fmt.Sprintf("high connection usage: %d of %d in use", s.InUse, s.MaxOpenConns))
	}
	if s.WaitCount > 0 && s.WaitDuration > time.Second {
		warnings = append(warnings, fmt.Sprintf("connection waits: %d totalling %s", s.WaitCount, s.WaitDuration))
	}
	if s.MaxIdleClosed > 1000 {
		warnings = append(warnings, fmt.Sprintf("%d idle connections closed, consider raising DB_MAX_IDLE_CONNS", s.MaxIdleClosed))
	}
	return warnings
}

// WriteError classifies a failed booking write. Unique violations are left for the caller to
// map to a conflict; any other failure, such as a foreign-key or check violation, is Transient.
func WriteError(err error) error {
	if err == nil || IsUniqueViolation(err) {
		return err
	}
	return apperr.Transient(err)
}

// IsUniqueViolation reports whether err is a Postgres unique_violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// ClassifyError maps timeouts, connection failures and retryable Postgres error classes to
// ErrTransient. Other errors are returned unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", // connection exception
			"53", // insufficient resources
			"57": // operator intervention, includes query_canceled
			return apperr.Transient(err)
		}
		if pqErr.Code == "40001" || pqErr.Code == "40P01" {
			return apperr.Transient(err)
		}
		return err
	}

	if apperr.IsTransient(err) {
		return apperr.Transient(err)
	}
	return err
}

// Retry runs fn up to attempts times while it fails with a transient error.
// Only idempotent reads should go through Retry.
func Retry(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	const backoffDelay = 50 * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !apperr.Retryable(err) {
			return err
		}

		if attempt < attempts {
			slog.Warn("Database query failed, retrying",
				"attempt", attempt, "max_retries", attempts, "error", err)
			select {
			case <-ctx.Done():
				return apperr.Transient(ctx.Err())
			case <-time.After(time.Duration(attempt) * backoffDelay):
			}
		}
	}

	return fmt.Errorf("query failed after %d attempts: %w", attempts, lastErr)
}
