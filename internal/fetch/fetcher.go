package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/DeafMist/log-census/internal/logger"
)

// maxBodyBytes caps how much of the remote log is read into memory.
const maxBodyBytes = 64 << 20

// ErrBodyTooLarge is wrapped by the NetworkError returned for a source
// document over the size limit.
var ErrBodyTooLarge = errors.New("response body too large")

// NetworkError reports a failed retrieval of the source document.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Fetcher downloads the raw log text from a fixed URL.
type Fetcher struct {
	url      string
	client   *http.Client
	maxBytes int64
	log      *slog.Logger
}

// New builds a Fetcher. A nil client gets a default one with the given timeout.
func New(url string, timeout time.Duration, client *http.Client, log *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Fetcher{url: url, client: client, maxBytes: maxBodyBytes, log: log}
}

// URL returns the source address.
func (f *Fetcher) URL() string {
	return f.url
}

// Fetch performs one GET and returns the body as text.
func (f *Fetcher) Fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return "", &NetworkError{URL: f.url, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "text/plain")

	res, err := f.client.Do(req)
	if err != nil {
		return "", &NetworkError{URL: f.url, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4<<10))
		return "", &NetworkError{URL: f.url, StatusCode: res.StatusCode, Err: fmt.Errorf("status %s", res.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, f.maxBytes+1))
	if err != nil {
		return "", &NetworkError{URL: f.url, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > f.maxBytes {
		return "", &NetworkError{URL: f.url, Err: fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, f.maxBytes)}
	}

	f.log.Debug("fetched source", slog.String("url", f.url), slog.Int("bytes", len(body)))
	return string(body), nil
}
