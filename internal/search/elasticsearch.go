package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const defaultSearchSize = 100

// ElasticsearchClient представляет клиент для поиска кортов в Elasticsearch
type ElasticsearchClient struct {
	client *elasticsearch.Client
	config config.ElasticsearchConfig
}

// courtDocument - документ корта в индексе
type courtDocument struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Group     string    `json:"group"`
	Location  string    `json:"location,omitempty"`
	IsActive  bool      `json:"is_active"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newCourtDocument(court models.Court, now time.Time) courtDocument {
	doc := courtDocument{
		ID:        court.ID,
		Name:      court.Name,
		Group:     court.Group,
		IsActive:  court.IsActive,
		UpdatedAt: now,
	}
	if court.Location != nil {
		doc.Location = *court.Location
	}
	return doc
}

func (d courtDocument) toModel() models.Court {
	court := models.Court{
		ID:       d.ID,
		Name:     d.Name,
		Group:    d.Group,
		IsActive: d.IsActive,
	}
	if d.Location != "" {
		loc := d.Location
		court.Location = &loc
	}
	return court
}

// NewElasticsearchClient создает новый клиент Elasticsearch
func NewElasticsearchClient(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		Username:      cfg.Username,
		Password:      cfg.Password,
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	client := newElasticsearchClient(es, cfg)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Check connection and create index if needed
	if err := client.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure index exists: %w", err)
	}

	return client, nil
}

func newElasticsearchClient(es *elasticsearch.Client, cfg config.ElasticsearchConfig) *ElasticsearchClient {
	if cfg.Index == "" {
		cfg.Index = "courts"
	}
	return &ElasticsearchClient{client: es, config: cfg}
}

// ensureIndex создает индекс если он не существует
func (c *ElasticsearchClient) ensureIndex(ctx context.Context) error {
	req := esapi.IndicesExistsRequest{
		Index: []string{c.config.Index},
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		slog.Info("Elasticsearch index already exists", "index", c.config.Index)
		return nil
	}

	// Court names are mostly CJK ("羽球 A 場"), hence bigrams.
	mapping := map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
			"analysis": map[string]interface{}{
				"analyzer": map[string]interface{}{
					"court_analyzer": map[string]interface{}{
						"type":      "custom",
						"tokenizer": "standard",
						"filter":    []string{"cjk_width", "lowercase", "cjk_bigram"},
					},
				},
			},
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"id": map[string]interface{}{
					"type": "long",
				},
				"name": map[string]interface{}{
					"type":     "text",
					"analyzer": "court_analyzer",
					"fields": map[string]interface{}{
						"keyword": map[string]interface{}{
							"type":         "keyword",
							"ignore_above": 256,
						},
					},
				},
				"group": map[string]interface{}{
					"type": "keyword",
				},
				"location": map[string]interface{}{
					"type":     "text",
					"analyzer": "court_analyzer",
				},
				"is_active": map[string]interface{}{
					"type": "boolean",
				},
				"updated_at": map[string]interface{}{
					"type": "date",
				},
			},
		},
	}

	mappingJSON, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	createReq := esapi.IndicesCreateRequest{
		Index: c.config.Index,
		Body:  bytes.NewReader(mappingJSON),
	}

	createRes, err := createReq.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		return fmt.Errorf("failed to create index: %s", createRes.String())
	}

	slog.Info("Created Elasticsearch index", "index", c.config.Index)
	return nil
}

// SearchCourts выполняет поиск активных кортов по названию, адресу и группе
func (c *ElasticsearchClient) SearchCourts(ctx context.Context, q models.CourtSearchQuery) ([]models.Court, error) {
	searchRequest := map[string]interface{}{
		"query": buildSearchQuery(q),
		"sort":  buildSortQuery(q.Query),
		"size":  defaultSearchSize,
	}

	searchJSON, err := json.Marshal(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{c.config.Index},
		Body:  bytes.NewReader(searchJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var response struct {
		Hits struct {
			Hits []struct {
				Source courtDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	courts := make([]models.Court, len(response.Hits.Hits))
	for i, hit := range response.Hits.Hits {
		courts[i] = hit.Source.toModel()
	}

	return courts, nil
}

// buildSearchQuery строит поисковый запрос
func buildSearchQuery(q models.CourtSearchQuery) map[string]interface{} {
	must := []map[string]interface{}{}
	filter := []map[string]interface{}{
		{"term": map[string]interface{}{"is_active": true}},
	}

	if text := strings.TrimSpace(q.Query); text != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     text,
				"fields":    []string{"name^2", "location"},
				"fuzziness": "AUTO",
			},
		})
	}

	if group := strings.TrimSpace(q.Group); group != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"group": group},
		})
	}

	if len(must) == 0 {
		must = append(must, map[string]interface{}{
			"match_all": map[string]interface{}{},
		})
	}

	return map[string]interface{}{
		"bool": map[string]interface{}{
			"must":   must,
			"filter": filter,
		},
	}
}

// buildSortQuery строит сортировку
func buildSortQuery(query string) []map[string]interface{} {
	if strings.TrimSpace(query) != "" {
		// Sort by relevance when searching
		return []map[string]interface{}{
			{"_score": map[string]interface{}{"order": "desc"}},
			{"id": map[string]interface{}{"order": "asc"}},
		}
	}

	return []map[string]interface{}{
		{"group": map[string]interface{}{"order": "asc"}},
		{"id": map[string]interface{}{"order": "asc"}},
	}
}

// IndexCourt upserts one court document, visible to search once the call returns.
func (c *ElasticsearchClient) IndexCourt(ctx context.Context, court models.Court) error {
	body, err := json.Marshal(newCourtDocument(court, time.Now()))
	if err != nil {
		return fmt.Errorf("failed to marshal court %d: %w", court.ID, err)
	}

	res, err := esapi.IndexRequest{
		Index:      c.config.Index,
		DocumentID: strconv.FormatInt(court.ID, 10),
		Body:       bytes.NewReader(body),
		Refresh:    "wait_for",
	}.Do(ctx, c.client)
	return checkDocResponse(res, err, "index", court.ID)
}

// DeleteCourt removes a court document; a court that was never indexed is not an error.
func (c *ElasticsearchClient) DeleteCourt(ctx context.Context, id int64) error {
	res, err := esapi.DeleteRequest{
		Index:      c.config.Index,
		DocumentID: strconv.FormatInt(id, 10),
		Refresh:    "wait_for",
	}.Do(ctx, c.client)
	if err == nil && res.StatusCode == http.StatusNotFound {
		res.Body.Close()
		return nil
	}
	return checkDocResponse(res, err, "delete", id)
}

func checkDocResponse(res *esapi.Response, err error, op string, id int64) error {
	if err != nil {
		return fmt.Errorf("failed to %s court %d: %w", op, id, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("%s court %d: %s", op, id, res.String())
	}
	return nil
}

// SyncCourts replaces the index contents with courts: listed courts are bulk-indexed and every
// other document is deleted.
func (c *ElasticsearchClient) SyncCourts(ctx context.Context, courts []models.Court) error {
	now := time.Now()
	ids := make([]int64, 0, len(courts))

	var body bytes.Buffer
	for _, court := range courts {
		meta := map[string]interface{}{
			"index": map[string]interface{}{"_id": strconv.FormatInt(court.ID, 10)},
		}
		if err := writeNDJSON(&body, meta, newCourtDocument(court, now)); err != nil {
			return fmt.Errorf("failed to marshal court %d: %w", court.ID, err)
		}
		ids = append(ids, court.ID)
	}

	if body.Len() > 0 {
		req := esapi.BulkRequest{
			Index:   c.config.Index,
			Body:    &body,
			Refresh: "wait_for",
		}

		res, err := req.Do(ctx, c.client)
		if err != nil {
			return fmt.Errorf("failed to bulk index courts: %w", err)
		}
		defer res.Body.Close()

		if res.IsError() {
			return fmt.Errorf("bulk index error: %s", res.String())
		}

		var bulk struct {
			Errors bool `json:"errors"`
		}
		if err := json.NewDecoder(res.Body).Decode(&bulk); err != nil {
			return fmt.Errorf("failed to decode bulk response: %w", err)
		}
		if bulk.Errors {
			return fmt.Errorf("bulk index reported item errors")
		}
	}

	return c.deleteMissing(ctx, ids)
}

func (c *ElasticsearchClient) deleteMissing(ctx context.Context, keep []int64) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must_not": []map[string]interface{}{
					{"terms": map[string]interface{}{"id": keep}},
				},
			},
		},
	}

	queryJSON, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("failed to marshal delete query: %w", err)
	}

	refresh := true
	req := esapi.DeleteByQueryRequest{
		Index:   []string{c.config.Index},
		Body:    bytes.NewReader(queryJSON),
		Refresh: &refresh,
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to delete stale courts: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("delete by query error: %s", res.String())
	}

	return nil
}

func writeNDJSON(buf *bytes.Buffer, lines ...interface{}) error {
	for _, line := range lines {
		data, err := json.Marshal(line)
		if err != nil {
			return err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return nil
}

// Count возвращает количество проиндексированных кортов
func (c *ElasticsearchClient) Count(ctx context.Context) (int64, error) {
	req := esapi.CountRequest{
		Index: []string{c.config.Index},
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return 0, fmt.Errorf("failed to execute count: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("count error: %s", res.String())
	}

	var response struct {
		Count int64 `json:"count"`
	}

	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", err)
	}

	return response.Count, nil
}

// HealthCheck проверяет состояние Elasticsearch
func (c *ElasticsearchClient) HealthCheck(ctx context.Context) error {
	req := esapi.ClusterHealthRequest{
		WaitForStatus: "yellow",
		Timeout:       10 * time.Second,
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("health check error: %s", res.String())
	}

	return nil
}
