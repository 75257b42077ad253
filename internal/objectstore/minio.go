package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/DeafMist/log-census/internal/config"
	"github.com/DeafMist/log-census/internal/logger"
)

// Archiver uploads cleaned documents to a MinIO/S3 bucket.
type Archiver struct {
	client *minio.Client
	bucket string
	region string
	log    *slog.Logger
}

// New builds an Archiver from configuration. It does not contact the server.
func New(cfg config.ObjectStore, log *slog.Logger) (*Archiver, error) {
	if !cfg.Enabled() {
		return nil, errors.New("objectstore endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("objectstore bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	if log == nil {
		log = logger.Discard()
	}
	return &Archiver{client: client, bucket: cfg.Bucket, region: cfg.Region, log: log}, nil
}

// EnsureBucket creates the bucket when it is missing.
func (a *Archiver) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", a.bucket, err)
	}
	a.log.Info("created bucket", slog.String("bucket", a.bucket))
	return nil
}

// Archive stores body under name in the bucket.
func (a *Archiver) Archive(ctx context.Context, name string, body []byte) error {
	_, err := a.client.PutObject(ctx, a.bucket, name, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", a.bucket, name, err)
	}
	a.log.Debug("archived document", slog.String("bucket", a.bucket), slog.String("object", name))
	return nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
