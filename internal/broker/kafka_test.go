package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/log-census/internal/models"
)

type stubWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (s *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msgs...)
	return nil
}

func (s *stubWriter) Close() error {
	s.closed = true
	return nil
}

func testEvent() models.DatasetEvent {
	return models.DatasetEvent{
		Dataset:   "log_census_counts",
		RunID:     "run-1",
		Pipeline:  "log_census",
		ResultKey: "counts",
		Record: models.RunRecord{
			Timestamp: "2024-01-02T15:04:05Z",
			Counts:    models.CountSummary{InfoCount: 1, TraceCount: 1},
		},
		EmittedAt: time.Date(2024, 1, 2, 15, 4, 6, 0, time.UTC),
	}
}

func TestEmitWritesKeyedMessage(t *testing.T) {
	w := &stubWriter{}
	e := newDatasetEmitter(w, nil)

	require.NoError(t, e.Emit(context.Background(), testEvent()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	require.Equal(t, "counts", string(msg.Key))

	var payload struct {
		Dataset string `json:"dataset"`
		Record  struct {
			Timestamp string         `json:"timestamp"`
			Counts    map[string]int `json:"counts"`
		} `json:"record"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	require.Equal(t, "log_census_counts", payload.Dataset)
	require.Equal(t, "2024-01-02T15:04:05Z", payload.Record.Timestamp)
	require.Equal(t, map[string]int{
		"info_count":    1,
		"trace_count":   1,
		"event_count":   0,
		"proterr_count": 0,
	}, payload.Record.Counts)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, "run-1", headers["run_id"])
	require.Equal(t, "log_census", headers["pipeline"])
	require.Equal(t, "2024-01-02T15:04:06Z", headers["timestamp"])

	require.NoError(t, e.Close())
	require.True(t, w.closed)
}

func TestEmitPropagatesWriteError(t *testing.T) {
	w := &stubWriter{err: errors.New("leader not available")}
	err := newDatasetEmitter(w, nil).Emit(context.Background(), testEvent())
	require.ErrorContains(t, err, "leader not available")
}
