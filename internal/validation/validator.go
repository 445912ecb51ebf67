package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"courtbook/internal/logger"
	"courtbook/internal/models"
	"courtbook/internal/timegrid"
)

// APIValidator прогоняет сквозной сценарий бронирования против запущенного API
type APIValidator struct {
	baseURL  string
	email    string
	password string
	client   *http.Client
	now      func() time.Time
}

// NewAPIValidator создает новый валидатор
func NewAPIValidator(baseURL, email, password string) *APIValidator {
	return &APIValidator{
		baseURL:  baseURL,
		email:    email,
		password: password,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

// ValidateAll checks health, catalog reads and one book/cancel round trip.
func (v *APIValidator) ValidateAll() error {
	slog.Info("Начинаю валидацию API...")

	if err := v.expectStatus(http.MethodGet, "/health", nil, http.StatusOK, nil); err != nil {
		return fmt.Errorf("health validation failed: %w", err)
	}

	var me models.MeResponse
	if err := v.expectStatus(http.MethodGet, "/api/me", nil, http.StatusOK, &me); err != nil {
		return fmt.Errorf("auth validation failed: %w", err)
	}
	slog.Info("Authenticated", "user_id", me.UserID)

	court, err := v.validateCourts()
	if err != nil {
		return fmt.Errorf("courts validation failed: %w", err)
	}

	if err := v.validateBookingRoundTrip(court); err != nil {
		return fmt.Errorf("bookings validation failed: %w", err)
	}

	slog.Info("Все endpoints прошли валидацию успешно")
	return nil
}

func (v *APIValidator) validateCourts() (models.Court, error) {
	var courts models.ItemsResponse[models.Court]
	if err := v.expectStatus(http.MethodGet, "/api/courts", nil, http.StatusOK, &courts); err != nil {
		return models.Court{}, err
	}
	if len(courts.Items) == 0 {
		return models.Court{}, fmt.Errorf("GET /api/courts: expected at least one court")
	}
	court := courts.Items[0]

	var rule models.OperatingRule
	if err := v.expectStatus(http.MethodGet, fmt.Sprintf("/api/courts/%d/rules", court.ID), nil, http.StatusOK, &rule); err != nil {
		return models.Court{}, err
	}
	if rule.SlotMinutes <= 0 {
		return models.Court{}, fmt.Errorf("GET /api/courts/%d/rules: slot_minutes must be positive", court.ID)
	}

	if err := v.expectStatus(http.MethodGet, fmt.Sprintf("/api/courts/%d/price_plans", court.ID), nil, http.StatusOK, nil); err != nil {
		return models.Court{}, err
	}

	slog.Info("Courts endpoints валидны", "court_id", court.ID)
	return court, nil
}

func (v *APIValidator) validateBookingRoundTrip(court models.Court) error {
	date := v.now().AddDate(0, 0, 1).Format(timegrid.DateLayout)

	var slots models.SlotsResponse
	path := fmt.Sprintf("/api/courts/%d/slots?date=%s", court.ID, date)
	if err := v.expectStatus(http.MethodGet, path, nil, http.StatusOK, &slots); err != nil {
		return err
	}

	var free *models.SlotAvailability
	for i := range slots.Items {
		if slots.Items[i].Available {
			free = &slots.Items[i]
			break
		}
	}
	if free == nil {
		slog.Warn("No free slot tomorrow, skipping booking round trip", "court_id", court.ID, "date", date)
		return nil
	}

	var quote models.PriceQuote
	path = fmt.Sprintf("/api/courts/%d/price?date=%s&time=%s", court.ID, date, free.StartTime)
	if err := v.expectStatus(http.MethodGet, path, nil, http.StatusOK, &quote); err != nil {
		return err
	}

	req := models.CreateBookingRequest{CourtID: court.ID, Date: date, StartTime: free.StartTime.String()}
	var booking models.Reservation
	if err := v.expectStatus(http.MethodPost, "/api/bookings", req, http.StatusCreated, &booking); err != nil {
		return err
	}
	if booking.PriceAmount != quote.Amount {
		return fmt.Errorf("POST /api/bookings: price %d differs from quote %d", booking.PriceAmount, quote.Amount)
	}

	// Повторное бронирование того же слота должно получить 409
	if err := v.expectStatus(http.MethodPost, "/api/bookings", req, http.StatusConflict, nil); err != nil {
		return err
	}

	cancelPath := fmt.Sprintf("/api/bookings/%s/cancel", booking.BookingNo)
	if err := v.expectStatus(http.MethodPost, cancelPath, nil, http.StatusOK, nil); err != nil {
		return err
	}
	if err := v.expectStatus(http.MethodPost, cancelPath, nil, http.StatusConflict, nil); err != nil {
		return err
	}

	slog.Info("Bookings endpoints валидны", "booking_no", booking.BookingNo)
	return nil
}

func (v *APIValidator) expectStatus(method, path string, body interface{}, want int, dest interface{}) error {
	resp, err := v.makeRequest(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: expected %d, got %d: %s", method, path, want, resp.StatusCode, payload)
	}
	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
		}
	}
	return nil
}

func (v *APIValidator) makeRequest(method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, v.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(v.email, v.password)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	return resp, nil
}

// RunValidation запускает валидацию API
func RunValidation() {
	validator := NewAPIValidator(
		getEnv("VALIDATE_URL", "http://localhost:8081"),
		getEnv("VALIDATE_EMAIL", "user1@courtbook.local"),
		getEnv("VALIDATE_PASSWORD", "password123"),
	)
	if err := validator.ValidateAll(); err != nil {
		logger.Fatal("Валидация не пройдена", "error", err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
