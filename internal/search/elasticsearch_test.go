package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"courtbook/internal/config"
	"courtbook/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

func newTestClient(t *testing.T, respond func(r *http.Request) string) (*ElasticsearchClient, func() []recordedRequest) {
	t.Helper()

	var mu sync.Mutex
	var seen []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: string(body)})
		mu.Unlock()

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(respond(r)))
	}))
	t.Cleanup(srv.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)

	return newElasticsearchClient(es, config.ElasticsearchConfig{Index: "courts"}), func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), seen...)
	}
}

func TestBuildSearchQuery(t *testing.T) {
	q := buildSearchQuery(models.CourtSearchQuery{Query: " 羽球 ", Group: "badminton"})
	raw, err := json.Marshal(q)
	require.NoError(t, err)

	s := string(raw)
	assert.Contains(t, s, `"multi_match"`)
	assert.Contains(t, s, `"query":"羽球"`)
	assert.Contains(t, s, `{"term":{"group":"badminton"}}`)
	assert.Contains(t, s, `{"term":{"is_active":true}}`)

	all, err := json.Marshal(buildSearchQuery(models.CourtSearchQuery{}))
	require.NoError(t, err)
	assert.Contains(t, string(all), `"match_all"`)
	assert.NotContains(t, string(all), `"group"`)
}

func TestSearchCourts(t *testing.T) {
	client, requests := newTestClient(t, func(r *http.Request) string {
		return `{"hits":{"hits":[
			{"_source":{"id":2,"name":"羽球 B 場","group":"badminton","location":"B1","is_active":true}},
			{"_source":{"id":5,"name":"羽球 E 場","group":"badminton","is_active":true}}
		]}}`
	})

	courts, err := client.SearchCourts(context.Background(), models.CourtSearchQuery{Group: "badminton"})
	require.NoError(t, err)
	require.Len(t, courts, 2)
	assert.Equal(t, int64(2), courts[0].ID)
	require.NotNil(t, courts[0].Location)
	assert.Equal(t, "B1", *courts[0].Location)
	assert.Nil(t, courts[1].Location)

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/courts/_search", reqs[0].Path)
	assert.Contains(t, reqs[0].Body, `"badminton"`)
}

func TestSyncCourts(t *testing.T) {
	client, requests := newTestClient(t, func(r *http.Request) string {
		if strings.HasSuffix(r.URL.Path, "/_bulk") {
			return `{"errors":false,"items":[]}`
		}
		return `{"deleted":1}`
	})

	courts := []models.Court{
		{ID: 1, Name: "羽球 A 場", Group: "badminton", IsActive: true},
		{ID: 3, Name: "籃球場", Group: "basketball", IsActive: true},
	}
	require.NoError(t, client.SyncCourts(context.Background(), courts))

	reqs := requests()
	require.Len(t, reqs, 2)

	assert.Equal(t, "/courts/_bulk", reqs[0].Path)
	lines := strings.Split(strings.TrimSpace(reqs[0].Body), "\n")
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"index":{"_id":"1"}}`, lines[0])
	assert.Contains(t, lines[3], `"group":"basketball"`)

	assert.Equal(t, "/courts/_delete_by_query", reqs[1].Path)
	assert.Contains(t, reqs[1].Body, `"must_not"`)
	assert.Contains(t, reqs[1].Body, `[1,3]`)
}

func TestIndexAndDeleteCourt(t *testing.T) {
	client, requests := newTestClient(t, func(r *http.Request) string {
		return `{"result":"ok"}`
	})

	location := "1F"
	court := models.Court{ID: 7, Name: "羽球 G 場", Group: "羽球", Location: &location, IsActive: true}
	require.NoError(t, client.IndexCourt(context.Background(), court))
	require.NoError(t, client.DeleteCourt(context.Background(), 7))

	reqs := requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodPut, reqs[0].Method)
	assert.Equal(t, "/courts/_doc/7", reqs[0].Path)
	assert.Contains(t, reqs[0].Body, `"location":"1F"`)
	assert.Contains(t, reqs[0].Body, `"group":"羽球"`)

	assert.Equal(t, http.MethodDelete, reqs[1].Method)
	assert.Equal(t, "/courts/_doc/7", reqs[1].Path)
}
