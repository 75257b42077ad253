package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/log-census/internal/logger"
	"github.com/DeafMist/log-census/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DatasetEmitter publishes dataset events to the Kafka topic named after the
// dataset, keyed by result key so consumers see one ordered stream per key.
type DatasetEmitter struct {
	w   messageWriter
	log *slog.Logger
}

// NewDatasetEmitter builds an emitter writing to topic.
func NewDatasetEmitter(brokers []string, topic string, log *slog.Logger) *DatasetEmitter {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     brokers,
		Topic:       topic,
		Balancer:    &kafka.Hash{},
		MaxAttempts: 3,
	})
	return newDatasetEmitter(w, log)
}

func newDatasetEmitter(w messageWriter, log *slog.Logger) *DatasetEmitter {
	if log == nil {
		log = logger.Discard()
	}
	return &DatasetEmitter{w: w, log: log}
}

// Emit writes ev as a JSON message.
func (e *DatasetEmitter) Emit(ctx context.Context, ev models.DatasetEvent) error {
	msg, err := buildMessage(ev)
	if err != nil {
		return err
	}
	if err := e.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write dataset event: %w", err)
	}
	e.log.Info("dataset event emitted",
		slog.String("dataset", ev.Dataset),
		slog.String("run_id", ev.RunID),
		slog.String("result_key", ev.ResultKey),
	)
	return nil
}

// Close flushes and closes the underlying writer.
func (e *DatasetEmitter) Close() error {
	return e.w.Close()
}

func buildMessage(ev models.DatasetEvent) (kafka.Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal dataset event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(ev.ResultKey),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "run_id", Value: []byte(ev.RunID)},
			{Key: "pipeline", Value: []byte(ev.Pipeline)},
			{Key: "timestamp", Value: []byte(ev.EmittedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
