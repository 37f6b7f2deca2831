// Package alertqueue guarantees at-least-once delivery of emergency alerts
// across arbitrary offline windows.
//
// Every alert that cannot be confirmed delivered is persisted as a
// domain.PendingAlert and stays in storage until the destination
// acknowledges receipt. A crash between a successful delivery and the
// removal of the record means the alert is delivered again on the next
// flush: duplicates are the accepted cost of never losing an alert
// silently. Each alert carries an idempotency key generated at the first
// send attempt so destinations can deduplicate.
package alertqueue

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/harborlight/relief-offline/internal/domain"
	"github.com/harborlight/relief-offline/internal/observability"
	"github.com/harborlight/relief-offline/internal/storage"
)

// Flush triggers, recorded as the metrics label.
const (
	TriggerReconnect = "reconnect"
	TriggerManual    = "manual"
	TriggerStartup   = "startup"
)

// Deliverer sends one alert to its destination. A nil return means the
// destination confirmed receipt; anything else leaves the alert queued.
type Deliverer interface {
	Deliver(ctx context.Context, alert domain.PendingAlert) error
}

// Store is the slice of the persistent store the queue uses.
type Store interface {
	Put(ctx context.Context, collection storage.Collection, key string, value []byte) error
	GetAll(ctx context.Context, collection storage.Collection) ([][]byte, error)
	Delete(ctx context.Context, collection storage.Collection, key string) error
	NextID(ctx context.Context, collection storage.Collection) (uint64, error)
	Count(ctx context.Context, collection storage.Collection) (int, error)
}

// ConnectivitySource reports the current online state.
type ConnectivitySource interface {
	Online() bool
}

// RetryPolicy bounds the per-alert delivery retries within one flush pass.
type RetryPolicy struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultRetryPolicy mirrors the FLUSH_* configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 2 * time.Second, MaxDelay: 30 * time.Second}
}

// FlushResult summarizes one flush pass.
type FlushResult struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Queue is a durable FIFO of outbound emergency alerts.
type Queue struct {
	store     Store
	deliverer Deliverer
	online    ConnectivitySource
	policy    RetryPolicy
	logger    *slog.Logger
	metrics   *observability.Metrics
	flights   singleflight.Group
}

// New creates an alert queue backed by store, delivering through deliverer.
func New(store Store, deliverer Deliverer, online ConnectivitySource, policy RetryPolicy, logger *slog.Logger, metrics *observability.Metrics) *Queue {
	if policy.Attempts == 0 {
		policy.Attempts = 1
	}
	return &Queue{
		store:     store,
		deliverer: deliverer,
		online:    online,
		policy:    policy,
		logger:    logger,
		metrics:   metrics,
	}
}

// SendOrEnqueue attempts immediate delivery when the monitor reports online
// and queues the alert otherwise. A delivery failure of any kind converts
// into an enqueue. Only a store failure is returned as an error, and it
// means no record of the alert exists anywhere; callers must surface that
// to the user explicitly.
func (q *Queue) SendOrEnqueue(ctx context.Context, payload json.RawMessage) (delivered bool, id uint64, err error) {
	if err := validatePayload(payload); err != nil {
		return false, 0, err
	}

	alert := domain.PendingAlert{
		IdempotencyKey: uuid.NewString(),
		Payload:        payload,
		Timestamp:      domain.Now().UnixMilli(),
	}

	if q.online.Online() {
		err := q.deliverer.Deliver(ctx, alert)
		if err == nil {
			q.metrics.AlertsDelivered.Inc()
			q.logger.Info("alert delivered", "idempotency_key", alert.IdempotencyKey)
			return true, 0, nil
		}
		q.metrics.DeliveryFailures.Inc()
		q.logger.Warn("immediate delivery failed, queueing alert",
			"idempotency_key", alert.IdempotencyKey, "error", err)
	}

	id, err = q.persist(ctx, alert)
	if err != nil {
		return false, 0, err
	}
	return false, id, nil
}

// Enqueue persists an alert without attempting delivery. The returned id is
// the store's auto-increment sequence value.
func (q *Queue) Enqueue(ctx context.Context, payload json.RawMessage) (uint64, error) {
	if err := validatePayload(payload); err != nil {
		return 0, err
	}
	return q.persist(ctx, domain.PendingAlert{
		IdempotencyKey: uuid.NewString(),
		Payload:        payload,
		Timestamp:      domain.Now().UnixMilli(),
	})
}

// ListPending returns every queued alert, oldest first. Order is informative
// for the UI; alerts are independent and carry no delivery-order guarantee.
func (q *Queue) ListPending(ctx context.Context) ([]domain.PendingAlert, error) {
	values, err := q.store.GetAll(ctx, storage.CollectionAlerts)
	if err != nil {
		return nil, fmt.Errorf("list pending alerts: %w", err)
	}

	alerts := make([]domain.PendingAlert, 0, len(values))
	for _, value := range values {
		var alert domain.PendingAlert
		if err := json.Unmarshal(value, &alert); err != nil {
			q.logger.Error("skipping corrupt pending alert", "error", err)
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

// Remove deletes an alert after the destination confirmed receipt. Removing
// an id that is already gone is a no-op, so a repeated confirmation cannot
// fail.
func (q *Queue) Remove(ctx context.Context, id uint64) error {
	if err := q.store.Delete(ctx, storage.CollectionAlerts, alertKey(id)); err != nil {
		return fmt.Errorf("remove alert %d: %w", id, err)
	}
	q.refreshPendingGauge(ctx)
	return nil
}

// PendingCount reports how many alerts await delivery and keeps the pending
// gauge in step with the store.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	n, err := q.store.Count(ctx, storage.CollectionAlerts)
	if err != nil {
		return 0, err
	}
	q.metrics.AlertsPending.Set(float64(n))
	return n, nil
}

// Flush attempts delivery for every pending alert, oldest first. Each alert
// is retried with bounded exponential backoff; an alert that still fails
// stays queued for the next flush. Concurrent flushes collapse into a single
// pass whose result every caller receives.
func (q *Queue) Flush(ctx context.Context, trigger string) (FlushResult, error) {
	v, err, _ := q.flights.Do("flush", func() (any, error) {
		return q.flush(ctx, trigger)
	})
	result, _ := v.(FlushResult)
	return result, err
}

func (q *Queue) flush(ctx context.Context, trigger string) (FlushResult, error) {
	start := time.Now()
	q.metrics.QueueFlushes.WithLabelValues(trigger).Inc()

	pending, err := q.ListPending(ctx)
	if err != nil {
		return FlushResult{}, fmt.Errorf("flush (%s): %w", trigger, err)
	}
	if len(pending) == 0 {
		return FlushResult{}, nil
	}

	q.logger.Info("flushing pending alerts", "count", len(pending), "trigger", trigger)

	var result FlushResult
	for _, alert := range pending {
		if ctx.Err() != nil {
			q.logger.Warn("flush interrupted, remaining alerts stay queued",
				"delivered", result.Delivered, "error", ctx.Err())
			break
		}
		result.Attempted++
		if q.deliverAlert(ctx, alert) {
			result.Delivered++
		} else {
			result.Failed++
		}
	}

	q.refreshPendingGauge(ctx)
	q.metrics.FlushDuration.Observe(time.Since(start).Seconds())
	q.logger.Info("flush complete", "trigger", trigger,
		"attempted", result.Attempted, "delivered", result.Delivered, "failed", result.Failed)
	return result, nil
}

// deliverAlert pushes one alert through the deliverer with retries and
// removes it from the queue on success.
func (q *Queue) deliverAlert(ctx context.Context, alert domain.PendingAlert) bool {
	err := retry.Do(
		func() error { return q.deliverer.Deliver(ctx, alert) },
		retry.Context(ctx),
		retry.Attempts(q.policy.Attempts),
		retry.Delay(q.policy.Delay),
		retry.MaxDelay(q.policy.MaxDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			q.logger.Warn("alert delivery retry", "id", alert.ID, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		q.metrics.DeliveryFailures.Inc()
		q.logger.Error("alert delivery failed, alert stays queued", "id", alert.ID, "error", err)
		return false
	}

	q.metrics.AlertsDelivered.Inc()
	if err := q.Remove(ctx, alert.ID); err != nil {
		// Delivered but not removed: the alert will be sent again on the
		// next flush and the idempotency key lets the destination drop the
		// repeat.
		q.logger.Error("delivered alert not removed, duplicate send likely",
			"id", alert.ID, "error", err)
	}
	return true
}

func (q *Queue) persist(ctx context.Context, alert domain.PendingAlert) (uint64, error) {
	id, err := q.store.NextID(ctx, storage.CollectionAlerts)
	if err != nil {
		return 0, fmt.Errorf("enqueue alert: %w", err)
	}
	alert.ID = id

	value, err := json.Marshal(alert)
	if err != nil {
		return 0, fmt.Errorf("enqueue alert %d: %w", id, err)
	}
	if err := q.store.Put(ctx, storage.CollectionAlerts, alertKey(id), value); err != nil {
		return 0, fmt.Errorf("enqueue alert %d: %w", id, err)
	}

	q.metrics.AlertsEnqueued.Inc()
	q.refreshPendingGauge(ctx)
	q.logger.Info("alert queued", "id", id, "idempotency_key", alert.IdempotencyKey)
	return id, nil
}

// refreshPendingGauge recounts the queue after a mutation; a failed count
// leaves the previous gauge value in place.
func (q *Queue) refreshPendingGauge(ctx context.Context) {
	_, _ = q.PendingCount(ctx)
}

func validatePayload(payload json.RawMessage) error {
	if len(payload) == 0 || !json.Valid(payload) {
		return errors.New("alert payload must be valid JSON")
	}
	return nil
}

// alertKey encodes an id big-endian so bbolt's byte order equals insertion
// order and ListPending comes back oldest first.
func alertKey(id uint64) string {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], id)
	return string(key[:])
}
