package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/DeafMist/log-census/internal/config"
	"github.com/DeafMist/log-census/internal/elasticsearch"
	"github.com/DeafMist/log-census/internal/logger"
)

type runDeleter interface {
	DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

func main() {
	log := logger.New("retention")
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	// Retry Elasticsearch connection with backoff
	var esClient *elasticsearch.Client
	maxRetries := 10
	retryDelay := 2 * time.Second
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	for i := 0; i < maxRetries; i++ {
		esClient, err = elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err != nil {
			log.Warn("failed to create elasticsearch client, retrying",
				slog.Any("err", err),
				slog.Int("attempt", i+1),
				slog.Int("max_retries", maxRetries),
			)
		} else {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			pingErr := esClient.Ping(pingCtx)
			cancel()
			if pingErr == nil {
				break
			}
			log.Warn("elasticsearch ping failed, retrying",
				slog.Any("err", pingErr),
				slog.Int("attempt", i+1),
				slog.Int("max_retries", maxRetries),
				slog.Duration("retry_in", retryDelay),
			)
		}

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			log.Info("shutdown signal received during startup")
			os.Exit(0)
		}
		retryDelay *= 2
		if retryDelay > 30*time.Second {
			retryDelay = 30 * time.Second
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if esClient == nil || esClient.Ping(pingCtx) != nil {
		log.Error("failed to connect to elasticsearch after retries")
		os.Exit(1)
	}

	log.Info("connected to elasticsearch")

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info("retention job running",
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
		slog.String("output_dir", cfg.OutputDir),
	)

	runOnce(ctx, log, esClient, cfg)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, log, esClient, cfg)
		}
	}
}

func runOnce(ctx context.Context, log *slog.Logger, runs runDeleter, cfg *config.Retention) {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	deleted, err := runs.DeleteOlderThan(subCtx, cfg.MaxAge, cfg.BatchSize)
	if err != nil {
		log.Warn("retention run failed (will retry on next interval)", slog.Any("err", err))
	} else if deleted > 0 {
		log.Info("retention run completed", slog.Int64("deleted", deleted))
	} else {
		log.Debug("retention run completed, no old runs found")
	}

	removed, err := pruneOutputs(cfg.OutputDir, cfg.FilePrefix, time.Now().Add(-cfg.MaxAge))
	if err != nil {
		log.Warn("prune output files", slog.Any("err", err))
		return
	}
	if removed > 0 {
		log.Info("pruned output files", slog.Int("removed", removed))
	}
}

// pruneOutputs removes pipeline output files in dir modified before cutoff.
// Only files named <prefix>*.txt are considered; an empty prefix disables
// pruning since the directory may be shared.
func pruneOutputs(dir, prefix string, cutoff time.Time) (int, error) {
	if prefix == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read output dir: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".txt") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}
