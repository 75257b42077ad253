package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/log-census/internal/broker"
	"github.com/DeafMist/log-census/internal/config"
	"github.com/DeafMist/log-census/internal/elasticsearch"
	"github.com/DeafMist/log-census/internal/fetch"
	"github.com/DeafMist/log-census/internal/logger"
	"github.com/DeafMist/log-census/internal/models"
	"github.com/DeafMist/log-census/internal/objectstore"
	"github.com/DeafMist/log-census/internal/pipeline"
	"github.com/DeafMist/log-census/internal/results"
	"github.com/DeafMist/log-census/internal/sink"
)

type runner interface {
	Run(ctx context.Context) (models.RunSummary, error)
}

type runIndexer interface {
	IndexRun(ctx context.Context, run models.RunSummary) error
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}
	indexCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := esClient.EnsureIndex(indexCtx); err != nil {
		log.Warn("ensure run index, continuing", slog.Any("err", err))
	}
	cancel()

	var archiver sink.Archiver
	if cfg.ObjectStore.Enabled() {
		a, err := objectstore.New(cfg.ObjectStore, log)
		if err != nil {
			log.Error("init objectstore", slog.Any("err", err))
			os.Exit(1)
		}
		bucketCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := a.EnsureBucket(bucketCtx); err != nil {
			log.Error("ensure bucket", slog.Any("err", err))
			cancel()
			os.Exit(1)
		}
		cancel()
		archiver = a
	}

	store := results.NewStore(cfg.ResultCapacity, cfg.ResultTTL)
	s, err := sink.New(sink.Options{
		Dir:       cfg.OutputDir,
		Prefix:    cfg.FilePrefix,
		ResultKey: cfg.ResultKey,
		Publisher: store,
		Archiver:  archiver,
		Logger:    log,
	})
	if err != nil {
		log.Error("init sink", slog.Any("err", err))
		os.Exit(1)
	}

	emitter := broker.NewDatasetEmitter(cfg.KafkaBrokers, cfg.Dataset, log)
	defer emitter.Close()

	source := fetch.New(cfg.SourceURL, cfg.FetchTimeout, nil, log)
	p := pipeline.New(pipeline.Config{
		Name:       cfg.Name,
		Dataset:    cfg.Dataset,
		Retries:    cfg.Retries,
		RetryDelay: cfg.RetryDelay,
	}, source, s, store, log, emitter)

	log.Info("worker started",
		slog.String("pipeline", cfg.Name),
		slog.String("source", source.URL()),
		slog.String("output_dir", cfg.OutputDir),
		slog.String("result_key", cfg.ResultKey),
		slog.String("dataset", cfg.Dataset),
		slog.Duration("interval", cfg.Interval),
		slog.Bool("once", cfg.Once),
	)

	if cfg.Once {
		if err := runOnce(ctx, log, p, esClient); err != nil {
			os.Exit(1)
		}
		return
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	_ = runOnce(ctx, log, p, esClient)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			_ = runOnce(ctx, log, p, esClient)
		}
	}
}

// runOnce executes one pipeline run and records its summary. A failed run is
// reported but never stops the worker.
func runOnce(ctx context.Context, log *slog.Logger, p runner, idx runIndexer) error {
	summary, runErr := p.Run(ctx)
	if runErr != nil {
		log.Warn("pipeline run failed (will retry on next interval)",
			slog.String("run_id", summary.ID),
			slog.Any("err", runErr),
		)
	} else if summary.Record != nil {
		log.Info("pipeline run completed",
			slog.String("run_id", summary.ID),
			slog.String("timestamp", summary.Record.Timestamp),
			slog.String("path", summary.OutputPath),
		)
	}

	// Index with a fresh context so a shutdown mid-run is still recorded.
	indexCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := idx.IndexRun(indexCtx, summary); err != nil {
		log.Warn("index run summary", slog.String("run_id", summary.ID), slog.Any("err", err))
	}

	return runErr
}
