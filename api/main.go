package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DeafMist/log-census/internal/config"
	"github.com/DeafMist/log-census/internal/elasticsearch"
	"github.com/DeafMist/log-census/internal/logger"
	"github.com/DeafMist/log-census/internal/models"
)

type runStore interface {
	Health(ctx context.Context) error
	SearchRuns(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
	GetRun(ctx context.Context, id string) (*models.RunSummary, error)
	LatestSuccess(ctx context.Context, pipeline string) (*models.RunSummary, error)
}

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	srv := &server{log: log, cfg: cfg, es: esClient}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

type server struct {
	log *slog.Logger
	cfg *config.API
	es  runStore
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/runs", s.handleSearch)
	r.Get("/runs/latest", s.handleLatestRun)
	r.Get("/runs/{id}", s.handleGetRun)
	r.Get("/results/latest", s.handleLatestResult)
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.es.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	params := elasticsearch.SearchParams{
		Pipeline: strings.TrimSpace(q.Get("pipeline")),
		Status:   strings.TrimSpace(q.Get("status")),
		From:     clampInt(q.Get("from"), 0, 10_000),
		Size:     clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
		Sort:     strings.TrimSpace(q.Get("sort")),
		Start:    parseTime(q.Get("start")),
		End:      parseTime(q.Get("end")),
	}

	result, err := s.es.SearchRuns(ctx, params)
	if err != nil {
		s.log.Warn("search runs", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	run, err := s.es.GetRun(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	run, err := s.es.LatestSuccess(ctx, strings.TrimSpace(r.URL.Query().Get("pipeline")))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleLatestResult serves the value most recently published under the
// result key: {timestamp, counts}.
func (s *server) handleLatestResult(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	run, err := s.es.LatestSuccess(ctx, strings.TrimSpace(r.URL.Query().Get("pipeline")))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	if run.Record == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: elasticsearch.ErrNotFound.Error()})
		return
	}
	w.Header().Set("X-Result-Key", run.ResultKey)
	writeJSON(w, http.StatusOK, run.Record)
}

func (s *server) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, elasticsearch.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	s.log.Warn("lookup run", slog.Any("err", err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts
	}
	return nil
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// nothing better to do
	}
}
