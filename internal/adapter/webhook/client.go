// Package webhook delivers emergency alerts to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/harborlight/relief-offline/internal/domain"
)

// Client POSTs alerts to the configured delivery endpoint. It implements
// alertqueue.Deliverer.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a webhook deliverer. The timeout bounds each delivery
// attempt end to end.
func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// envelope is the wire shape of one delivery. The payload is forwarded
// exactly as the dashboard submitted it; the idempotency key lets the
// destination deduplicate at-least-once resends.
type envelope struct {
	ID             uint64          `json:"id,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	Payload        json.RawMessage `json:"payload"`
	QueuedAt       time.Time       `json:"queued_at"`
}

// Deliver POSTs one alert. Any transport error or non-2xx status is a
// failure; the caller keeps the alert queued and retries later.
func (c *Client) Deliver(ctx context.Context, alert domain.PendingAlert) error {
	body, err := json.Marshal(envelope{
		ID:             alert.ID,
		IdempotencyKey: alert.IdempotencyKey,
		Payload:        alert.Payload,
		QueuedAt:       alert.QueuedAt(),
	})
	if err != nil {
		return fmt.Errorf("encode alert %d: %w", alert.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("alert webhook error: status %d: %s", resp.StatusCode, msg)
	}

	c.logger.Debug("alert accepted by webhook", "id", alert.ID, "status", resp.StatusCode)
	return nil
}
