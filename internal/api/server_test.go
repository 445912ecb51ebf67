package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/middleware"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Load()
	cfg.GinMode = gin.TestMode

	loc := time.FixedZone("CST", 8*60*60)
	return newServer(cfg, database.Wrap(db), nil, nil, nil, nil, loc), mock
}

func TestHealth(t *testing.T) {
	server, mock := newTestServer(t)
	mock.ExpectPing()

	w := httptest.NewRecorder()
	server.GetRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "disabled", body["cache"])
	assert.Equal(t, "disabled", body["nats"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	w := httptest.NewRecorder()
	server.GetRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestAPIRequiresAuth(t *testing.T) {
	server, _ := newTestServer(t)

	w := httptest.NewRecorder()
	server.GetRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/courts", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListCourtsThroughStack(t *testing.T) {
	server, mock := newTestServer(t)
	registered := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM users").
		WithArgs("player@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "email", "password_hash", "first_name", "surname", "registered_at", "is_active"}).
			AddRow(7, "player@example.com", middleware.HashPassword("secret"), "Mei", "Lin", registered, true))
	mock.ExpectQuery("FROM courts").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "court_group", "location", "is_active", "created_at"}).
			AddRow(1, "A 場", "羽球", nil, true, registered).
			AddRow(2, "B 場", "羽球", "2F", true, registered))

	req := httptest.NewRequest(http.MethodGet, "/api/courts", nil)
	req.SetBasicAuth("player@example.com", "secret")
	w := httptest.NewRecorder()
	server.GetRouter().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Items []struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Items, 2)
	assert.Equal(t, "B 場", body.Items[1].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}
