package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// ObjectStore configures the optional MinIO archive of cleaned documents.
// An empty Endpoint disables archiving.
type ObjectStore struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Enabled reports whether an archive endpoint was configured.
func (o ObjectStore) Enabled() bool {
	return o.Endpoint != ""
}

// Worker holds configuration for the pipeline worker.
type Worker struct {
	Common
	Name           string
	SourceURL      string
	FetchTimeout   time.Duration
	OutputDir      string
	FilePrefix     string
	ResultKey      string
	Dataset        string
	Retries        int
	RetryDelay     time.Duration
	Interval       time.Duration
	Once           bool
	ResultCapacity int
	ResultTTL      time.Duration
	KafkaBrokers   []string
	ObjectStore    ObjectStore
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr    string
	DefaultPage int
	MaxPage     int
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval   time.Duration
	MaxAge     time.Duration
	BatchSize  int
	OutputDir  string
	FilePrefix string
}

// pipelineFile is the optional YAML pipeline definition pointed to by
// PIPELINE_FILE. Environment variables take precedence over its values.
type pipelineFile struct {
	Name        string      `yaml:"name"`
	SourceURL   string      `yaml:"source_url"`
	OutputDir   string      `yaml:"output_dir"`
	ResultKey   string      `yaml:"result_key"`
	Dataset     string      `yaml:"dataset"`
	Interval    string      `yaml:"interval"`
	DefaultArgs defaultArgs `yaml:"default_args"`
}

type defaultArgs struct {
	Retries    *int   `yaml:"retries"`
	RetryDelay string `yaml:"retry_delay"`
}

const defaultSourceURL = "https://raw.githubusercontent.com/logpai/loghub/master/HealthApp/HealthApp_2k.log"

// LoadWorker builds a Worker config from the optional pipeline file and
// environment variables.
func LoadWorker() (*Worker, error) {
	file, err := loadPipelineFile(os.Getenv("PIPELINE_FILE"))
	if err != nil {
		return nil, err
	}

	retries := 1
	if file.DefaultArgs.Retries != nil {
		retries = *file.DefaultArgs.Retries
	}

	c := &Worker{
		Common:         loadCommon(),
		Name:           getEnv("PIPELINE_NAME", orDefault(file.Name, "log_census")),
		SourceURL:      getEnv("PIPELINE_SOURCE_URL", orDefault(file.SourceURL, defaultSourceURL)),
		FetchTimeout:   getDuration("PIPELINE_FETCH_TIMEOUT", "30s"),
		OutputDir:      getEnv("PIPELINE_OUTPUT_DIR", orDefault(file.OutputDir, os.TempDir())),
		FilePrefix:     getEnv("PIPELINE_FILE_PREFIX", "census_"),
		ResultKey:      getEnv("PIPELINE_RESULT_KEY", orDefault(file.ResultKey, "counts")),
		Dataset:        getEnv("PIPELINE_DATASET", orDefault(file.Dataset, "log_census_counts")),
		Retries:        getInt("PIPELINE_RETRIES", retries),
		RetryDelay:     getDuration("PIPELINE_RETRY_DELAY", orDefault(file.DefaultArgs.RetryDelay, "5m")),
		Interval:       getDuration("PIPELINE_INTERVAL", orDefault(file.Interval, "24h")),
		Once:           getBool("PIPELINE_ONCE", false),
		ResultCapacity: getInt("PIPELINE_RESULT_CAPACITY", 1000),
		ResultTTL:      getDuration("PIPELINE_RESULT_TTL", "24h"),
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		ObjectStore: ObjectStore{
			Endpoint:  getEnv("OBJECTSTORE_ENDPOINT", ""),
			AccessKey: getEnv("OBJECTSTORE_ACCESS_KEY", ""),
			SecretKey: getEnv("OBJECTSTORE_SECRET_KEY", ""),
			Bucket:    getEnv("OBJECTSTORE_BUCKET", "log-census"),
			Region:    getEnv("OBJECTSTORE_REGION", "us-east-1"),
			UseSSL:    getBool("OBJECTSTORE_USE_SSL", false),
		},
	}

	if u, err := url.Parse(c.SourceURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("PIPELINE_SOURCE_URL must be an http(s) URL")
	}
	if c.OutputDir == "" {
		return nil, fmt.Errorf("PIPELINE_OUTPUT_DIR must not be empty")
	}
	if c.ResultKey == "" {
		return nil, fmt.Errorf("PIPELINE_RESULT_KEY must not be empty")
	}
	if c.Dataset == "" {
		return nil, fmt.Errorf("PIPELINE_DATASET must not be empty")
	}
	if c.Retries < 0 {
		return nil, fmt.Errorf("PIPELINE_RETRIES cannot be negative")
	}
	if c.RetryDelay < 0 {
		return nil, fmt.Errorf("PIPELINE_RETRY_DELAY cannot be negative")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("PIPELINE_INTERVAL must be positive")
	}
	if c.FetchTimeout <= 0 {
		return nil, fmt.Errorf("PIPELINE_FETCH_TIMEOUT must be positive")
	}
	if c.ResultCapacity <= 0 {
		return nil, fmt.Errorf("PIPELINE_RESULT_CAPACITY must be positive")
	}
	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.ObjectStore.Enabled() && (c.ObjectStore.AccessKey == "" || c.ObjectStore.SecretKey == "") {
		return nil, fmt.Errorf("OBJECTSTORE_ACCESS_KEY and OBJECTSTORE_SECRET_KEY are required when OBJECTSTORE_ENDPOINT is set")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	c := &API{
		Common:      loadCommon(),
		BindAddr:    getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage: getInt("API_PAGE_SIZE", 20),
		MaxPage:     getInt("API_MAX_PAGE_SIZE", 100),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	c := &Retention{
		Common:     loadCommon(),
		Interval:   getDuration("RETENTION_CRON", "24h"),
		MaxAge:     getDuration("RETENTION_MAX_AGE", "168h"),
		BatchSize:  getInt("RETENTION_BATCH_SIZE", 500),
		OutputDir:  getEnv("PIPELINE_OUTPUT_DIR", os.TempDir()),
		FilePrefix: getEnv("PIPELINE_FILE_PREFIX", "census_"),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}

	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}

	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "log-census-runs"),
	}
}

func loadPipelineFile(path string) (pipelineFile, error) {
	var f pipelineFile
	if strings.TrimSpace(path) == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read pipeline file: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse pipeline file %s: %w", path, err)
	}
	for field, raw := range map[string]string{
		"interval":                 f.Interval,
		"default_args.retry_delay": f.DefaultArgs.RetryDelay,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return f, fmt.Errorf("pipeline file %s: invalid %s: %w", path, field, err)
		}
	}
	return f, nil
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
