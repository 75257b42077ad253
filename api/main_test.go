package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/log-census/internal/config"
	"github.com/DeafMist/log-census/internal/elasticsearch"
	"github.com/DeafMist/log-census/internal/models"
)

type stubRuns struct {
	healthErr  error
	runs       map[string]models.RunSummary
	latest     *models.RunSummary
	lastParams elasticsearch.SearchParams
}

func (s *stubRuns) Health(context.Context) error { return s.healthErr }

func (s *stubRuns) SearchRuns(_ context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error) {
	s.lastParams = params
	items := make([]models.RunSummary, 0, len(s.runs))
	for _, run := range s.runs {
		items = append(items, run)
	}
	return &elasticsearch.SearchResult{Total: int64(len(items)), Items: items}, nil
}

func (s *stubRuns) GetRun(_ context.Context, id string) (*models.RunSummary, error) {
	run, ok := s.runs[id]
	if !ok {
		return nil, elasticsearch.ErrNotFound
	}
	return &run, nil
}

func (s *stubRuns) LatestSuccess(context.Context, string) (*models.RunSummary, error) {
	if s.latest == nil {
		return nil, elasticsearch.ErrNotFound
	}
	return s.latest, nil
}

func newTestServer(runs *stubRuns) http.Handler {
	srv := &server{
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg: &config.API{DefaultPage: 20, MaxPage: 100},
		es:  runs,
	}
	return srv.routes()
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	runs := &stubRuns{}
	require.Equal(t, http.StatusOK, get(t, newTestServer(runs), "/health").Code)

	runs.healthErr = errors.New("red")
	require.Equal(t, http.StatusServiceUnavailable, get(t, newTestServer(runs), "/health").Code)
}

func TestGetRun(t *testing.T) {
	runs := &stubRuns{runs: map[string]models.RunSummary{
		"run-1": {ID: "run-1", Status: models.RunSuccess},
	}}
	h := newTestServer(runs)

	rec := get(t, h, "/runs/run-1")
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "run-1", got.ID)

	require.Equal(t, http.StatusNotFound, get(t, h, "/runs/nope").Code)
}

func TestSearchClampsPaging(t *testing.T) {
	runs := &stubRuns{runs: map[string]models.RunSummary{}}
	rec := get(t, newTestServer(runs), "/runs?status=failed&size=1000&from=-1&start=2024-01-01T00:00:00Z")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, "failed", runs.lastParams.Status)
	require.Equal(t, 100, runs.lastParams.Size)
	require.Equal(t, 0, runs.lastParams.From)
	require.NotNil(t, runs.lastParams.Start)
	require.Nil(t, runs.lastParams.End)
}

func TestLatestResult(t *testing.T) {
	runs := &stubRuns{}
	h := newTestServer(runs)
	require.Equal(t, http.StatusNotFound, get(t, h, "/results/latest").Code)

	runs.latest = &models.RunSummary{
		ID:        "run-7",
		ResultKey: "counts",
		Record: &models.RunRecord{
			Timestamp: "2024-01-02T15:04:05Z",
			Counts:    models.CountSummary{InfoCount: 4, ProtErrCount: 1},
		},
	}
	rec := get(t, h, "/results/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "counts", rec.Header().Get("X-Result-Key"))
	require.JSONEq(t, `{"timestamp":"2024-01-02T15:04:05Z","counts":{"info_count":4,"trace_count":0,"event_count":0,"proterr_count":1}}`, rec.Body.String())

	latest := get(t, h, "/runs/latest")
	require.Equal(t, http.StatusOK, latest.Code)
	var summary models.RunSummary
	require.NoError(t, json.Unmarshal(latest.Body.Bytes(), &summary))
	require.Equal(t, "run-7", summary.ID)
	require.Equal(t, "counts", summary.ResultKey)
}

func TestClampInt(t *testing.T) {
	require.Equal(t, 5, clampInt("", 5, 10))
	require.Equal(t, 5, clampInt("abc", 5, 10))
	require.Equal(t, 5, clampInt("0", 5, 10))
	require.Equal(t, 10, clampInt("99", 5, 10))
	require.Equal(t, 7, clampInt("7", 5, 10))
}
