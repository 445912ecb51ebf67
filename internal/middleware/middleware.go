package middleware

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	apperr "courtbook/internal/errors"
	"courtbook/internal/logger"
	"courtbook/internal/metrics"
	"courtbook/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	// UserIDKey is the gin context key of the authenticated user.
	UserIDKey = "user_id"
	// RequestIDHeader carries the request id in and out.
	RequestIDHeader = "X-Request-ID"
)

// UserLookup finds users for Basic auth.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// AuthCache remembers verified credentials.
type AuthCache interface {
	GetUserIDByAuth(ctx context.Context, email, passwordHash string) (int64, error)
	SetUserAuth(ctx context.Context, email, passwordHash string, userID int64) error
}

// UserIDFromContext returns the authenticated user of a request context.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	return logger.UserIDFromContext(ctx)
}

// HashPassword returns the hex SHA-256 digest stored in users.password_hash.
func HashPassword(password string) string {
	hash := sha256.Sum256([]byte(password))
	return fmt.Sprintf("%x", hash)
}

// CORS middleware для обработки CORS запросов
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+RequestIDHeader)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}

		c.Next()
	}
}

// RequestID присваивает запросу идентификатор для сквозного логирования
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = logger.NewRequestID()
		}

		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), requestID))

		c.Next()
	}
}

// RequestTimeout bounds the request context; repository calls inherit the deadline.
func RequestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Logger middleware для структурированного логирования запросов
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Записываем время начала
		start := time.Now()

		// Выполняем запрос
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		metrics.ObserveHTTP(c.Request.Method, c.FullPath(), status, latency)

		logFields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status_code", status,
			"latency_ms", latency.Milliseconds(),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		}
		if len(c.Errors) > 0 {
			logFields = append(logFields, "error", c.Errors.String())
		}

		log := logger.WithContext(c.Request.Context())
		switch {
		case status >= 500:
			log.Error("Request completed with error", logFields...)
		case status >= 400:
			log.Warn("Request rejected", logFields...)
		default:
			log.Debug("Request completed", logFields...)
		}
	}
}

// Recovery middleware для восстановления после паники с детальным логированием
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		// Логируем панику с максимумом информации
		slog.Error("PANIC recovered",
			"panic", recovered,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"query", c.Request.URL.RawQuery,
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
			"request_id", c.GetString("request_id"),
		)

		// Отправляем правильный HTTP ответ клиенту
		if !c.Writer.Written() {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Internal server error",
				"code":  "internal",
			})
		}
	})
}

// BasicAuth аутентифицирует пользователя по HTTP Basic Auth, проверяя логин/пароль в кеше Valkey, затем в БД
func BasicAuth(users UserLookup, authCache AuthCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		email, password, ok := c.Request.BasicAuth()
		if !ok {
			c.Header("WWW-Authenticate", "Basic realm=\"Restricted\"")
			unauthorized(c, "Unauthorized")
			return
		}

		ctx := c.Request.Context()
		passwordHash := HashPassword(password)

		// Сначала пытаемся найти пользователя в кеше Valkey
		if authCache != nil {
			userID, err := authCache.GetUserIDByAuth(ctx, email, passwordHash)
			metrics.CacheLookup("auth", err == nil)
			if err == nil {
				authenticate(c, userID)
				return
			}
		}

		// Fallback: поиск в базе данных
		user, err := users.GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, apperr.ErrTransient) {
				c.Header("Retry-After", "1")
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"error": "Authentication is temporarily unavailable",
					"code":  "transient",
				})
				return
			}
			logger.WithContext(ctx).Error("User lookup failed", "error", err)
			unauthorized(c, "Invalid credentials")
			return
		}
		if user == nil || !user.IsActive || user.PasswordHash == "" || user.PasswordHash != passwordHash {
			unauthorized(c, "Invalid credentials")
			return
		}

		if authCache != nil {
			if err := authCache.SetUserAuth(ctx, email, passwordHash, user.UserID); err != nil {
				logger.WithContext(ctx).Warn("Failed to cache credentials", "error", err)
			}
		}

		authenticate(c, user.UserID)
	}
}

func authenticate(c *gin.Context, userID int64) {
	c.Set(UserIDKey, userID)
	c.Request = c.Request.WithContext(logger.ContextWithUserID(c.Request.Context(), userID))
	c.Next()
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "code": "unauthorized"})
}
