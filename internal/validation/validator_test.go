package validation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"courtbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI books a single slot and remembers whether it is taken.
type fakeAPI struct {
	mu        sync.Mutex
	booked    bool
	cancelled bool
	price     int64
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("GET /api/me", func(w http.ResponseWriter, r *http.Request) {
		if email, _, ok := r.BasicAuth(); !ok || email != "user1@courtbook.local" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "unauthorized"})
			return
		}
		writeJSON(w, http.StatusOK, models.MeResponse{UserID: 1, Email: "user1@courtbook.local"})
	})
	mux.HandleFunc("GET /api/courts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.NewItemsResponse([]models.Court{{ID: 3, Name: "羽球 A 場", IsActive: true}}))
	})
	mux.HandleFunc("GET /api/courts/3/rules", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.OperatingRule{CourtID: 3, OpenTime: 8 * 60, CloseTime: 12 * 60, SlotMinutes: 60})
	})
	mux.HandleFunc("GET /api/courts/3/price_plans", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.NewItemsResponse([]models.PricingRule{}))
	})
	mux.HandleFunc("GET /api/courts/3/slots", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.SlotsResponse{CourtID: 3, Date: r.URL.Query().Get("date"), SlotMinutes: 60,
			Items: []models.SlotAvailability{
				{StartTime: 8 * 60, EndTime: 9 * 60, Available: false},
				{StartTime: 9 * 60, EndTime: 10 * 60, Available: true},
			}})
	})
	mux.HandleFunc("GET /api/courts/3/price", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.PriceQuote{Amount: 250, Currency: "TWD", Source: "rule"})
	})
	mux.HandleFunc("POST /api/bookings", func(w http.ResponseWriter, r *http.Request) {
		var req models.CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StartTime != "09:00" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"code": "invalid_slot"})
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.booked {
			writeJSON(w, http.StatusConflict, map[string]string{"code": "conflict"})
			return
		}
		f.booked = true
		writeJSON(w, http.StatusCreated, models.Reservation{BookingNo: "b-1", CourtID: req.CourtID, Status: "active", PriceAmount: f.price})
	})
	mux.HandleFunc("POST /api/bookings/b-1/cancel", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.cancelled {
			writeJSON(w, http.StatusConflict, map[string]string{"code": "already_cancelled"})
			return
		}
		f.cancelled = true
		writeJSON(w, http.StatusOK, models.CancelBookingResponse{BookingNo: "b-1", Status: "cancelled"})
	})
	return mux
}

func newValidator(t *testing.T, api *fakeAPI, email string) *APIValidator {
	t.Helper()
	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)

	v := NewAPIValidator(server.URL, email, "password123")
	v.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }
	return v
}

func TestValidateAllRoundTrip(t *testing.T) {
	api := &fakeAPI{price: 250}
	v := newValidator(t, api, "user1@courtbook.local")

	require.NoError(t, v.ValidateAll())
	assert.True(t, api.booked)
	assert.True(t, api.cancelled)
}

func TestValidateAllDetectsPriceMismatch(t *testing.T) {
	v := newValidator(t, &fakeAPI{price: 999}, "user1@courtbook.local")

	err := v.ValidateAll()
	assert.ErrorContains(t, err, "differs from quote")
}

func TestValidateAllReportsAuthFailure(t *testing.T) {
	v := newValidator(t, &fakeAPI{price: 250}, "nobody@courtbook.local")

	err := v.ValidateAll()
	assert.ErrorContains(t, err, "auth validation failed")
	assert.ErrorContains(t, err, "expected 200, got 401")
}
