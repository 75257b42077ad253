package elasticsearch_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/log-census/internal/elasticsearch"
	"github.com/DeafMist/log-census/internal/models"
)

type recorded struct {
	method string
	path   string
	body   []byte
}

func fakeES(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*elasticsearch.Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls = append(calls, recorded{method: r.Method, path: r.URL.Path, body: body})
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.New(srv.URL, "runs", nil)
	require.NoError(t, err)
	return client, &calls
}

func TestIndexRun(t *testing.T) {
	client, calls := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	run := models.RunSummary{
		ID:       "run-1",
		Pipeline: "log_census",
		Status:   models.RunSuccess,
		Record:   &models.RunRecord{Timestamp: "2024-01-02T15:04:05Z", Counts: models.CountSummary{InfoCount: 3}},
	}
	require.NoError(t, client.IndexRun(context.Background(), run))

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	require.Equal(t, http.MethodPut, call.method)
	require.Equal(t, "/runs/_doc/run-1", call.path)

	var got models.RunSummary
	require.NoError(t, json.Unmarshal(call.body, &got))
	require.Equal(t, 3, got.Record.Counts.InfoCount)
}

func TestGetRunNotFound(t *testing.T) {
	client, _ := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"found":false}`))
	})

	_, err := client.GetRun(context.Background(), "missing")
	require.ErrorIs(t, err, elasticsearch.ErrNotFound)
}

func TestLatestSuccess(t *testing.T) {
	client, calls := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hits":{"total":{"value":1},"hits":[{"_source":{"id":"run-9","status":"success","record":{"timestamp":"t","counts":{"info_count":2}}}}]}}`))
	})

	run, err := client.LatestSuccess(context.Background(), "log_census")
	require.NoError(t, err)
	require.Equal(t, "run-9", run.ID)
	require.Equal(t, 2, run.Record.Counts.InfoCount)

	var body map[string]any
	require.NoError(t, json.Unmarshal((*calls)[0].body, &body))
	require.EqualValues(t, 1, body["size"])
}

func TestLatestSuccessEmpty(t *testing.T) {
	client, _ := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hits":{"total":{"value":0},"hits":[]}}`))
	})

	_, err := client.LatestSuccess(context.Background(), "")
	require.ErrorIs(t, err, elasticsearch.ErrNotFound)
}

func TestBuildSearchBody(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	body := elasticsearch.BuildSearchBody(elasticsearch.SearchParams{
		Status: "failed",
		Size:   500,
		From:   -3,
		Sort:   "started_at:asc",
		Start:  &start,
	})

	require.Equal(t, 200, body["size"])
	require.Equal(t, 0, body["from"])
	require.Equal(t, []map[string]any{{"started_at": map[string]any{"order": "asc"}}}, body["sort"])

	query := body["query"].(map[string]any)["bool"].(map[string]any)
	filters := query["filter"].([]map[string]any)
	require.Len(t, filters, 2)
	require.Equal(t, map[string]any{"term": map[string]any{"status": "failed"}}, filters[0])
	require.Equal(t, "2024-01-01T00:00:00Z", filters[1]["range"].(map[string]any)["timestamp"].(map[string]any)["gte"])
}

func TestBuildSearchBodyDefaults(t *testing.T) {
	body := elasticsearch.BuildSearchBody(elasticsearch.SearchParams{})
	require.Equal(t, 20, body["size"])
	require.Equal(t, []map[string]any{{"timestamp": map[string]any{"order": "desc"}}}, body["sort"])

	query := body["query"].(map[string]any)["bool"].(map[string]any)
	require.Contains(t, query, "must")
	require.NotContains(t, query, "filter")
}
