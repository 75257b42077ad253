package sink

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DeafMist/log-census/internal/logger"
	"github.com/DeafMist/log-census/internal/models"
)

// maxNameAttempts bounds the suffixes tried when a file name is taken.
const maxNameAttempts = 100

// IOError reports a failure to persist the cleaned document.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Publisher makes a run's record available under a result key.
type Publisher interface {
	Publish(ctx context.Context, runID, key string, rec models.RunRecord) error
}

// Archiver copies a written document to longer-lived storage.
type Archiver interface {
	Archive(ctx context.Context, name string, body []byte) error
}

// Options configures a Sink.
type Options struct {
	Dir       string
	Prefix    string
	ResultKey string
	Publisher Publisher
	Archiver  Archiver
	Now       func() time.Time
	Logger    *slog.Logger
}

// Sink stamps the counts, writes the cleaned document and publishes the record.
type Sink struct {
	dir       string
	prefix    string
	resultKey string
	pub       Publisher
	archive   Archiver
	now       func() time.Time
	log       *slog.Logger
}

// New builds a Sink. Publisher is required; Archiver is optional.
func New(opts Options) (*Sink, error) {
	if opts.Dir == "" {
		return nil, errors.New("sink: output dir is required")
	}
	if opts.ResultKey == "" {
		return nil, errors.New("sink: result key is required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("sink: publisher is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	return &Sink{
		dir:       opts.Dir,
		prefix:    opts.Prefix,
		resultKey: opts.ResultKey,
		pub:       opts.Publisher,
		archive:   opts.Archiver,
		now:       opts.Now,
		log:       opts.Logger,
	}, nil
}

// ResultKey returns the key records are published under.
func (s *Sink) ResultKey() string {
	return s.resultKey
}

// Store builds the RunRecord for this run, writes cleaned to a fresh file and
// publishes the record. It returns the record and the written path. On error
// no file is left behind.
func (s *Sink) Store(ctx context.Context, runID string, counts models.CountSummary, cleaned string) (models.RunRecord, string, error) {
	ts := s.now().UTC().Format(time.RFC3339Nano)
	rec := models.RunRecord{Timestamp: ts, Counts: counts}

	path, err := s.write(FileName(s.prefix, ts), []byte(cleaned))
	if err != nil {
		return models.RunRecord{}, "", err
	}

	if s.archive != nil {
		if err := s.archive.Archive(ctx, filepath.Base(path), []byte(cleaned)); err != nil {
			s.discard(path)
			return models.RunRecord{}, "", &IOError{Path: path, Err: fmt.Errorf("archive: %w", err)}
		}
	}

	if err := s.pub.Publish(ctx, runID, s.resultKey, rec); err != nil {
		s.discard(path)
		return models.RunRecord{}, "", fmt.Errorf("publish %s: %w", s.resultKey, err)
	}

	s.log.Info("stored run record",
		slog.String("run_id", runID),
		slog.String("result_key", s.resultKey),
		slog.String("timestamp", rec.Timestamp),
		slog.Any("counts", rec.Counts),
		slog.String("path", path),
	)
	return rec, path, nil
}

// FileName derives the output file name from a timestamp, replacing colons
// so the name is portable.
func FileName(prefix, timestamp string) string {
	return prefix + strings.ReplaceAll(timestamp, ":", "-") + ".txt"
}

func (s *Sink) write(name string, body []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", &IOError{Path: s.dir, Err: err}
	}

	base := strings.TrimSuffix(name, ".txt")
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		candidate := name
		if attempt > 0 {
			candidate = fmt.Sprintf("%s-%d.txt", base, attempt)
		}
		path := filepath.Join(s.dir, candidate)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", &IOError{Path: path, Err: err}
		}

		if _, err := f.Write(body); err != nil {
			f.Close()
			s.discard(path)
			return "", &IOError{Path: path, Err: err}
		}
		if err := f.Close(); err != nil {
			s.discard(path)
			return "", &IOError{Path: path, Err: err}
		}
		return path, nil
	}

	return "", &IOError{Path: filepath.Join(s.dir, name), Err: fs.ErrExist}
}

// discard removes a file written by a store attempt that did not complete, so
// a retried attempt leaves a single document behind.
func (s *Sink) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Warn("remove incomplete output", slog.String("path", path), slog.Any("err", err))
	}
}
