package external

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	apperr "courtbook/internal/errors"
	"courtbook/internal/models"
)

// CatalogClient reads court reference data (courts, operating rules, price plans) from the
// upstream catalog service.
type CatalogClient struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

type CatalogConfig struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

func NewCatalogClient(cfg CatalogConfig) *CatalogClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &CatalogClient{
		baseURL:  cfg.BaseURL,
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// get returns the body of a 2xx response, nil for 404.
func (cc *CatalogClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cc.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if cc.username != "" {
		req.SetBasicAuth(cc.username, cc.password)
	}

	resp, err := cc.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Transient(fmt.Errorf("failed to get %s: %w", path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperr.Transient(fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, path))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, path)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, apperr.Transient(fmt.Errorf("failed to read response: %w", err))
	}
	return body, nil
}

func (cc *CatalogClient) ListCourts(ctx context.Context) ([]models.Court, error) {
	body, err := cc.get(ctx, "/api/courts")
	if err != nil {
		return nil, err
	}
	if body == nil {
		return []models.Court{}, nil
	}

	var wire []wireCourt
	if err := decodeList(body, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode courts: %w", err)
	}

	courts := make([]models.Court, 0, len(wire))
	for _, w := range wire {
		court := w.toModel()
		if court.IsActive {
			courts = append(courts, court)
		}
	}
	return courts, nil
}

// GetCourt returns nil when the catalog does not list the court.
func (cc *CatalogClient) GetCourt(ctx context.Context, id int64) (*models.Court, error) {
	courts, err := cc.ListCourts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range courts {
		if courts[i].ID == id {
			return &courts[i], nil
		}
	}
	return nil, nil
}

// OperatingRule returns nil when the court has no rule.
func (cc *CatalogClient) OperatingRule(ctx context.Context, courtID int64) (*models.OperatingRule, error) {
	body, err := cc.get(ctx, "/api/courts/"+strconv.FormatInt(courtID, 10)+"/rules")
	if err != nil || body == nil {
		return nil, err
	}

	var wire []wireRule
	if err := decodeList(body, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode court rule: %w", err)
	}
	if len(wire) == 0 {
		return nil, nil
	}
	rule, err := wire[0].toModel(courtID)
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// PricingRules returns price plans in the order the catalog lists them.
func (cc *CatalogClient) PricingRules(ctx context.Context, courtID int64) ([]models.PricingRule, error) {
	body, err := cc.get(ctx, "/api/courts/"+strconv.FormatInt(courtID, 10)+"/price_plans")
	if err != nil {
		return nil, err
	}
	if body == nil {
		return []models.PricingRule{}, nil
	}

	var wire []wirePlan
	if err := decodeList(body, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode price plans: %w", err)
	}

	plans := make([]models.PricingRule, 0, len(wire))
	for i, w := range wire {
		p, err := w.toModel(courtID, i)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}
