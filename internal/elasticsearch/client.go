package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/log-census/internal/logger"
	"github.com/DeafMist/log-census/internal/models"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Client wraps go-elasticsearch with helpers for the run history index.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

// SearchParams narrow the run search.
type SearchParams struct {
	Pipeline string
	Status   string
	From     int
	Size     int
	Sort     string
	Start    *time.Time
	End      *time.Time
}

// SearchResult bundles hits and total count.
type SearchResult struct {
	Total int64               `json:"total"`
	Items []models.RunSummary `json:"items"`
}

const indexMapping = `{
  "mappings": {
    "properties": {
      "id":          {"type": "keyword"},
      "pipeline":    {"type": "keyword"},
      "status":      {"type": "keyword"},
      "result_key":  {"type": "keyword"},
      "started_at":  {"type": "date"},
      "finished_at": {"type": "date"},
      "timestamp":   {"type": "date"},
      "output_path": {"type": "keyword"},
      "error":       {"type": "text"},
      "stages": {
        "properties": {
          "name":     {"type": "keyword"},
          "status":   {"type": "keyword"},
          "attempts": {"type": "integer"},
          "error":    {"type": "text"}
        }
      },
      "record": {
        "properties": {
          "timestamp": {"type": "keyword"},
          "counts": {
            "properties": {
              "info_count":    {"type": "integer"},
              "trace_count":   {"type": "integer"},
              "event_count":   {"type": "integer"},
              "proterr_count": {"type": "integer"}
            }
          }
        }
      }
    }
  }
}`

// New instantiates the Elasticsearch client.
func New(addr, index string, log *slog.Logger) (*Client, error) {
	return NewWithTransport(addr, index, nil, log)
}

// NewWithTransport is New with a custom HTTP transport.
func NewWithTransport(addr, index string, transport http.RoundTripper, log *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
		Transport: transport,
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if log == nil {
		log = logger.Discard()
	}

	return &Client{es: es, index: index, log: log}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// EnsureIndex creates the run index with its mapping if it does not exist.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("check index failed: %s", res.Status())
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		// Another process may have created it in between.
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index failed: %s", strings.TrimSpace(string(body)))
	}

	c.log.Info("created run index", slog.String("index", c.index))
	return nil
}

// IndexRun writes a run summary into Elasticsearch.
func (c *Client) IndexRun(ctx context.Context, run models.RunSummary) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: run.ID,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index run: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index run failed: %s", strings.TrimSpace(string(body)))
	}

	return nil
}

// GetRun fetches one run by ID.
func (c *Client) GetRun(ctx context.Context, id string) (*models.RunSummary, error) {
	res, err := c.es.Get(c.index, id, c.es.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("get run failed: %s", strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Found  bool              `json:"found"`
		Source models.RunSummary `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	if !parsed.Found {
		return nil, ErrNotFound
	}
	return &parsed.Source, nil
}

// LatestSuccess returns the most recent successful run of a pipeline, or of
// any pipeline when pipeline is empty.
func (c *Client) LatestSuccess(ctx context.Context, pipeline string) (*models.RunSummary, error) {
	result, err := c.SearchRuns(ctx, SearchParams{
		Pipeline: pipeline,
		Status:   string(models.RunSuccess),
		Size:     1,
		Sort:     "timestamp:desc",
	})
	if err != nil {
		return nil, err
	}
	if len(result.Items) == 0 {
		return nil, ErrNotFound
	}
	return &result.Items[0], nil
}

// BuildSearchBody renders the query for params.
func BuildSearchBody(params SearchParams) map[string]any {
	if params.Size <= 0 {
		params.Size = 20
	}
	if params.Size > 200 {
		params.Size = 200
	}
	if params.From < 0 {
		params.From = 0
	}

	filters := make([]map[string]any, 0, 3)

	if params.Pipeline != "" {
		filters = append(filters, map[string]any{
			"term": map[string]any{"pipeline": params.Pipeline},
		})
	}

	if params.Status != "" {
		filters = append(filters, map[string]any{
			"term": map[string]any{"status": params.Status},
		})
	}

	if params.Start != nil || params.End != nil {
		rangeQuery := map[string]any{}
		if params.Start != nil {
			rangeQuery["gte"] = params.Start.UTC().Format(time.RFC3339)
		}
		if params.End != nil {
			rangeQuery["lte"] = params.End.UTC().Format(time.RFC3339)
		}
		filters = append(filters, map[string]any{
			"range": map[string]any{
				"timestamp": rangeQuery,
			},
		})
	}

	boolQuery := map[string]any{}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	} else {
		boolQuery["must"] = []map[string]any{
			{"match_all": map[string]any{}},
		}
	}

	body := map[string]any{
		"from":             params.From,
		"size":             params.Size,
		"track_total_hits": true,
		"query": map[string]any{
			"bool": boolQuery,
		},
	}

	sortField := params.Sort
	if sortField == "" {
		sortField = "timestamp:desc"
	}

	parts := strings.Split(sortField, ":")
	order := "desc"
	field := parts[0]
	if field == "" {
		field = "timestamp"
	}
	if len(parts) > 1 && parts[1] != "" {
		order = parts[1]
	}
	body["sort"] = []map[string]any{
		{field: map[string]any{"order": order}},
	}
	return body
}

// SearchRuns executes a filtered query over the run history.
func (c *Client) SearchRuns(ctx context.Context, params SearchParams) (*SearchResult, error) {
	payload, err := json.Marshal(BuildSearchBody(params))
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.RunSummary `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]models.RunSummary, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source)
	}

	return &SearchResult{
		Total: parsed.Hits.Total.Value,
		Items: items,
	}, nil
}

// DeleteOlderThan removes runs older than maxAge using batched delete-by-query.
// It loops until a batch returns fewer deleted documents than the requested batchSize.
func (c *Client) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339)
	totalDeleted := int64(0)

	for {
		body := map[string]any{
			"query": map[string]any{
				"range": map[string]any{
					"timestamp": map[string]any{
						"lte": cutoff,
					},
				},
			},
			"max_docs": batchSize,
		}

		payload, err := json.Marshal(body)
		if err != nil {
			return totalDeleted, fmt.Errorf("marshal delete body: %w", err)
		}

		res, err := c.es.DeleteByQuery(
			[]string{c.index},
			bytes.NewReader(payload),
			c.es.DeleteByQuery.WithContext(ctx),
			c.es.DeleteByQuery.WithWaitForCompletion(true),
			c.es.DeleteByQuery.WithConflicts("proceed"),
			c.es.DeleteByQuery.WithScrollSize(batchSize),
			c.es.DeleteByQuery.WithRefresh(true),
		)
		if err != nil {
			return totalDeleted, fmt.Errorf("delete by query: %w", err)
		}

		if res.IsError() {
			data, _ := io.ReadAll(res.Body)
			res.Body.Close()
			return totalDeleted, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
		}

		var parsed struct {
			Deleted int64 `json:"deleted"`
		}
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			res.Body.Close()
			return totalDeleted, fmt.Errorf("decode delete response: %w", err)
		}
		res.Body.Close()

		totalDeleted += parsed.Deleted

		if parsed.Deleted < int64(batchSize) {
			break
		}
	}

	return totalDeleted, nil
}

// Health pings Elasticsearch to ensure connectivity.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}
