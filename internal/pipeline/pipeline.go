package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/log-census/internal/logger"
	"github.com/DeafMist/log-census/internal/models"
	"github.com/DeafMist/log-census/internal/processing"
)

// Stage names, in execution order.
const (
	StageFetch = "fetch_log"
	StageClean = "clean_log"
	StageCount = "count_markers"
	StageStore = "store_result"
)

// Stages lists every stage in the order it runs.
var Stages = []string{StageFetch, StageClean, StageCount, StageStore}

// Fetcher retrieves the raw document.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// Storer persists and publishes the outcome of a run.
type Storer interface {
	Store(ctx context.Context, runID string, counts models.CountSummary, cleaned string) (models.RunRecord, string, error)
	ResultKey() string
}

// ResultReader reads back a record published by the store stage.
type ResultReader interface {
	Get(runID, key string) (models.RunRecord, bool)
}

// DatasetEmitter announces a fresh value of the pipeline's dataset.
type DatasetEmitter interface {
	Emit(ctx context.Context, ev models.DatasetEvent) error
}

// Config holds the run-level settings shared by every stage.
type Config struct {
	Name       string
	Dataset    string
	Retries    int
	RetryDelay time.Duration
}

// Pipeline runs fetch, clean, count and store strictly in order.
type Pipeline struct {
	cfg      Config
	fetcher  Fetcher
	storer   Storer
	results  ResultReader
	emitters []DatasetEmitter
	log      *slog.Logger
	newID    func() string
	now      func() time.Time
}

// New wires a pipeline. Emitters receive the dataset event carrying the record
// read back from results after a successful store stage.
func New(cfg Config, fetcher Fetcher, storer Storer, results ResultReader, log *slog.Logger, emitters ...DatasetEmitter) *Pipeline {
	if log == nil {
		log = logger.Discard()
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	return &Pipeline{
		cfg:      cfg,
		fetcher:  fetcher,
		storer:   storer,
		results:  results,
		emitters: emitters,
		log:      log.With(slog.String("pipeline", cfg.Name)),
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

type run struct {
	id      string
	log     *slog.Logger
	summary models.RunSummary
	index   map[string]int
}

func (p *Pipeline) newRun() *run {
	id := p.newID()
	r := &run{
		id:    id,
		log:   p.log.With(slog.String("run_id", id)),
		index: make(map[string]int, len(Stages)),
		summary: models.RunSummary{
			ID:        id,
			Pipeline:  p.cfg.Name,
			StartedAt: p.now().UTC(),
			ResultKey: p.storer.ResultKey(),
			Stages:    make([]models.StageReport, len(Stages)),
		},
	}
	for i, name := range Stages {
		r.index[name] = i
		r.summary.Stages[i] = models.StageReport{Name: name, Status: models.StagePending}
	}
	return r
}

func (r *run) stage(name string) *models.StageReport {
	return &r.summary.Stages[r.index[name]]
}

// Run executes one pipeline run. The returned summary is complete whether or
// not the run succeeded.
func (p *Pipeline) Run(ctx context.Context) (models.RunSummary, error) {
	r := p.newRun()
	r.log.Info("run started")

	raw, err := runStage(ctx, p, r, StageFetch, func(ctx context.Context) (string, error) {
		return p.fetcher.Fetch(ctx)
	})
	if err != nil {
		return p.finish(r, StageFetch, err)
	}

	cleaned, err := runStage(ctx, p, r, StageClean, func(context.Context) (string, error) {
		return processing.Clean(raw), nil
	})
	if err != nil {
		return p.finish(r, StageClean, err)
	}

	counts, err := runStage(ctx, p, r, StageCount, func(context.Context) (models.CountSummary, error) {
		counts := processing.Count(cleaned)
		r.log.Info("marker count", slog.String("marker", processing.MarkerInfo), slog.Int("count", counts.InfoCount))
		r.log.Info("marker count", slog.String("marker", processing.MarkerTrace), slog.Int("count", counts.TraceCount))
		r.log.Info("marker count", slog.String("marker", processing.MarkerEvent), slog.Int("count", counts.EventCount))
		r.log.Info("marker count", slog.String("marker", processing.MarkerProtErr), slog.Int("count", counts.ProtErrCount))
		return counts, nil
	})
	if err != nil {
		return p.finish(r, StageCount, err)
	}

	type stored struct {
		rec  models.RunRecord
		path string
	}
	out, err := runStage(ctx, p, r, StageStore, func(ctx context.Context) (stored, error) {
		rec, path, err := p.storer.Store(ctx, r.id, counts, cleaned)
		return stored{rec: rec, path: path}, err
	})
	if err != nil {
		return p.finish(r, StageStore, err)
	}

	r.summary.Record = &out.rec
	r.summary.OutputPath = out.path
	p.emit(ctx, r)
	return p.finish(r, "", nil)
}

func (p *Pipeline) emit(ctx context.Context, r *run) {
	if p.cfg.Dataset == "" || len(p.emitters) == 0 {
		return
	}
	rec, ok := p.results.Get(r.id, r.summary.ResultKey)
	if !ok {
		r.log.Warn("published record not found, dataset event skipped",
			slog.String("dataset", p.cfg.Dataset),
			slog.String("result_key", r.summary.ResultKey),
		)
		return
	}
	ev := models.DatasetEvent{
		Dataset:   p.cfg.Dataset,
		RunID:     r.id,
		Pipeline:  p.cfg.Name,
		ResultKey: r.summary.ResultKey,
		Record:    rec,
		EmittedAt: p.now().UTC(),
	}
	for _, e := range p.emitters {
		if err := e.Emit(ctx, ev); err != nil {
			r.log.Warn("emit dataset event", slog.String("dataset", p.cfg.Dataset), slog.Any("err", err))
		}
	}
}

func (p *Pipeline) finish(r *run, failed string, err error) (models.RunSummary, error) {
	now := p.now().UTC()
	r.summary.FinishedAt = now
	r.summary.Timestamp = now

	if err == nil {
		r.summary.Status = models.RunSuccess
		r.log.Info("run succeeded", slog.Duration("took", now.Sub(r.summary.StartedAt)))
		return r.summary, nil
	}

	r.summary.Status = models.RunFailed
	r.summary.Error = err.Error()
	after := false
	for i := range r.summary.Stages {
		st := &r.summary.Stages[i]
		if st.Name == failed {
			after = true
			continue
		}
		if after {
			st.Status = models.StageUpstreamFailed
		}
	}
	r.log.Error("run failed", slog.String("stage", failed), slog.Any("err", err))
	return r.summary, fmt.Errorf("stage %s: %w", failed, err)
}

// runStage runs fn, retrying it up to cfg.Retries times after cfg.RetryDelay.
func runStage[T any](ctx context.Context, p *Pipeline, r *run, name string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	st := r.stage(name)
	log := r.log.With(slog.String("stage", name))

	for {
		st.Attempts++
		st.Status = models.StageRunning
		log.Debug("stage started", slog.Int("attempt", st.Attempts))

		out, err := fn(ctx)
		if err == nil {
			st.Status = models.StageSuccess
			st.Error = ""
			log.Debug("stage succeeded", slog.Int("attempt", st.Attempts))
			return out, nil
		}

		st.Status = models.StageFailed
		st.Error = err.Error()

		if st.Attempts > p.cfg.Retries || ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return zero, err
		}

		log.Warn("stage failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", st.Attempts),
			slog.Int("retries", p.cfg.Retries),
			slog.Duration("retry_in", p.cfg.RetryDelay),
		)

		if err := wait(ctx, p.cfg.RetryDelay); err != nil {
			return zero, err
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
