// Package kafka publishes emergency alerts to a Kafka topic.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/harborlight/relief-offline/internal/config"
	"github.com/harborlight/relief-offline/internal/domain"
)

// Writer produces alert messages to the delivery topic.
// It implements alertqueue.Deliverer.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured alert topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Deliver publishes one alert and waits for full acknowledgement, so a nil
// return means the brokers hold the message.
func (w *Writer) Deliver(ctx context.Context, alert domain.PendingAlert) error {
	msg, err := serializeToMessage(alert)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish alert %d: %w", alert.ID, err)
	}
	w.logger.Debug("alert published", "id", alert.ID, "idempotency_key", alert.IdempotencyKey)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage maps an alert onto a Kafka message: the payload is the
// value exactly as the dashboard submitted it, keyed by idempotency key so
// deduplication and partition affinity line up.
func serializeToMessage(alert domain.PendingAlert) (kafkago.Message, error) {
	if len(alert.Payload) == 0 {
		return kafkago.Message{}, fmt.Errorf("alert %d has no payload", alert.ID)
	}
	return kafkago.Message{
		Key:   []byte(alert.IdempotencyKey),
		Value: alert.Payload,
		Headers: []kafkago.Header{
			{Key: "alert_id", Value: []byte(strconv.FormatUint(alert.ID, 10))},
			{Key: "queued_at", Value: []byte(alert.QueuedAt().Format(time.RFC3339))},
		},
	}, nil
}
