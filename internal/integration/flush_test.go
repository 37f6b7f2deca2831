//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/harborlight/relief-offline/internal/adapter/kafka"
	"github.com/harborlight/relief-offline/internal/alertqueue"
	"github.com/harborlight/relief-offline/internal/config"
	"github.com/harborlight/relief-offline/internal/connectivity"
	"github.com/harborlight/relief-offline/internal/domain"
	"github.com/harborlight/relief-offline/internal/observability"
	"github.com/harborlight/relief-offline/internal/storage/bbolt"
)

const testAlertTopic = "test-emergency-alerts"

// startKafka launches a single-broker Kafka container and returns its
// bootstrap address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID(fmt.Sprintf("test-cluster-%d", time.Now().UnixNano())))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err, "resolve brokers")
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err, "dial broker")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "resolve controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err, "dial controller")
	defer controllerConn.Close()

	require.NoError(t, controllerConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newConsumer(t *testing.T, broker, topic string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       topic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// deliveredMessage holds one message read back from the alert topic.
type deliveredMessage struct {
	Key     string
	Value   []byte
	Headers map[string]string
}

func readDelivered(ctx context.Context, t *testing.T, consumer *kafkago.Reader) deliveredMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from alert topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return deliveredMessage{Key: string(msg.Key), Value: msg.Value, Headers: headers}
}

func alertPayload(t *testing.T, statusText string) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal(domain.AlertPayload{
		Contacts:   []string{"+15550100", "+15550101"},
		SenderName: "Field Team 7",
		Location:   domain.AlertLocation{Lat: 37.7749, Lng: -122.4194},
		StatusText: statusText,
		Timestamp:  time.Now().UTC(),
	})
	require.NoError(t, err)
	return payload
}

// TestReconnectFlushDeliversQueuedAlerts queues alerts while offline, flips
// the connectivity monitor online, and verifies every queued alert lands on
// the Kafka topic with its original payload and idempotency key.
func TestReconnectFlushDeliversQueuedAlerts(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testAlertTopic)

	cfg := &config.Config{
		KafkaBrokers: []string{broker},
		KafkaTopic:   testAlertTopic,
	}

	store, err := bbolt.Open(filepath.Join(t.TempDir(), "offline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	monitor := connectivity.NewMonitor(false, discardLogger(), metrics)
	queue := alertqueue.New(store, writer, monitor,
		alertqueue.RetryPolicy{Attempts: 3, Delay: 100 * time.Millisecond, MaxDelay: time.Second},
		discardLogger(), metrics)

	// Send three alerts while offline: all must queue without any delivery
	// attempt reaching the broker.
	payloads := []json.RawMessage{
		alertPayload(t, "trapped near collapsed overpass"),
		alertPayload(t, "need medical supplies"),
		alertPayload(t, "safe, checking in"),
	}
	for i, payload := range payloads {
		delivered, id, err := queue.SendOrEnqueue(ctx, payload)
		require.NoError(t, err)
		assert.False(t, delivered, "alert %d should queue while offline", i+1)
		assert.Equal(t, uint64(i+1), id)
	}

	pending, err := queue.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	// Reconnect. The subscriber flushes on the online edge, exactly as the
	// daemon wires it.
	results := make(chan alertqueue.FlushResult, 1)
	monitor.Subscribe(func(online bool) {
		if !online {
			return
		}
		res, err := queue.Flush(ctx, alertqueue.TriggerReconnect)
		require.NoError(t, err)
		results <- res
	})
	monitor.Set(true)

	res := <-results
	assert.Equal(t, alertqueue.FlushResult{Attempted: 3, Delivered: 3, Failed: 0}, res)

	count, err := queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "queue should be empty after flush")

	// Read the topic back: payload untouched, key is the idempotency key
	// minted at the first send attempt, headers carry id and queue time.
	consumer := newConsumer(t, broker, testAlertTopic)
	for i, want := range pending {
		msg := readDelivered(ctx, t, consumer)
		assert.Equal(t, want.IdempotencyKey, msg.Key, "message %d key", i+1)
		assert.JSONEq(t, string(payloads[i]), string(msg.Value), "message %d payload", i+1)
		assert.Equal(t, strconv.FormatUint(want.ID, 10), msg.Headers["alert_id"])
		_, err := time.Parse(time.RFC3339, msg.Headers["queued_at"])
		assert.NoError(t, err, "queued_at should be valid RFC3339")
	}
}

// TestQueueSurvivesRestartAndFlushes enqueues alerts, reopens the store as a
// fresh process would, and verifies a startup flush delivers the leftovers.
func TestQueueSurvivesRestartAndFlushes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testAlertTopic)

	cfg := &config.Config{
		KafkaBrokers: []string{broker},
		KafkaTopic:   testAlertTopic,
	}
	path := filepath.Join(t.TempDir(), "offline.db")
	metrics := observability.NewMetricsForTesting()

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	// First process: queue two alerts offline, then shut down.
	store, err := bbolt.Open(path)
	require.NoError(t, err)

	offline := connectivity.NewMonitor(false, discardLogger(), metrics)
	queue := alertqueue.New(store, writer, offline, alertqueue.DefaultRetryPolicy(), discardLogger(), metrics)

	payloads := []json.RawMessage{
		alertPayload(t, "power out across sector 4"),
		alertPayload(t, "road blocked at main bridge"),
	}
	for _, payload := range payloads {
		_, _, err := queue.SendOrEnqueue(ctx, payload)
		require.NoError(t, err)
	}
	pending, err := queue.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.NoError(t, store.Close())

	// Second process: reopen the same file online and run the startup flush.
	store, err = bbolt.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	online := connectivity.NewMonitor(true, discardLogger(), metrics)
	queue = alertqueue.New(store, writer, online,
		alertqueue.RetryPolicy{Attempts: 3, Delay: 100 * time.Millisecond, MaxDelay: time.Second},
		discardLogger(), metrics)

	res, err := queue.Flush(ctx, alertqueue.TriggerStartup)
	require.NoError(t, err)
	assert.Equal(t, alertqueue.FlushResult{Attempted: 2, Delivered: 2, Failed: 0}, res)

	count, err := queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	consumer := newConsumer(t, broker, testAlertTopic)
	for i, want := range pending {
		msg := readDelivered(ctx, t, consumer)
		assert.Equal(t, want.IdempotencyKey, msg.Key, "message %d key", i+1)
		assert.JSONEq(t, string(payloads[i]), string(msg.Value), "message %d payload", i+1)
	}
}
