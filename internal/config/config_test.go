package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookURL = "https://alerts.example.com/v1/deliver"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ALERT_WEBHOOK_URL", testWebhookURL)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, ":8090", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 168*time.Hour, cfg.CacheTTL)
	assert.Equal(t, 12*time.Hour, cfg.SweepInterval)
	assert.Equal(t, DeliveryWebhook, cfg.DeliveryMode)
	assert.Equal(t, testWebhookURL, cfg.WebhookURL)
	assert.Equal(t, 10*time.Second, cfg.WebhookTimeout)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "emergency-alerts", cfg.KafkaTopic)
	assert.Equal(t, 3, cfg.FlushAttempts)
	assert.Equal(t, 2*time.Second, cfg.FlushRetryDelay)
	assert.Equal(t, 30*time.Second, cfg.FlushRetryMaxDelay)
	assert.Empty(t, cfg.ProbeURL)
	assert.Equal(t, 30*time.Second, cfg.ProbeInterval)
	assert.Equal(t, 5*time.Second, cfg.ProbeTimeout)
	assert.True(t, cfg.StartOnline)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("OFFLINE_DATA_DIR", "/var/lib/relief-offline")
	t.Setenv("OFFLINE_HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("OFFLINE_CACHE_TTL", "72h")
	t.Setenv("OFFLINE_SWEEP_INTERVAL", "1h")
	t.Setenv("ALERT_DELIVERY", "kafka")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_TOPIC", "custom-alerts")
	t.Setenv("FLUSH_ATTEMPTS", "5")
	t.Setenv("FLUSH_RETRY_DELAY", "500ms")
	t.Setenv("FLUSH_RETRY_MAX_DELAY", "10s")
	t.Setenv("PROBE_URL", "https://probe.example.com/ping")
	t.Setenv("PROBE_INTERVAL", "15s")
	t.Setenv("PROBE_TIMEOUT", "2s")
	t.Setenv("START_ONLINE", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/relief-offline", cfg.DataDir)
	assert.Equal(t, "/var/lib/relief-offline/offline.db", cfg.DBPath())
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 72*time.Hour, cfg.CacheTTL)
	assert.Equal(t, time.Hour, cfg.SweepInterval)
	assert.Equal(t, DeliveryKafka, cfg.DeliveryMode)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-alerts", cfg.KafkaTopic)
	assert.Equal(t, 5, cfg.FlushAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.FlushRetryDelay)
	assert.Equal(t, 10*time.Second, cfg.FlushRetryMaxDelay)
	assert.Equal(t, "https://probe.example.com/ping", cfg.ProbeURL)
	assert.Equal(t, 15*time.Second, cfg.ProbeInterval)
	assert.Equal(t, 2*time.Second, cfg.ProbeTimeout)
	assert.False(t, cfg.StartOnline)
}

func TestLoad_SweepIntervalZeroDisablesSweep(t *testing.T) {
	t.Setenv("ALERT_WEBHOOK_URL", testWebhookURL)
	t.Setenv("OFFLINE_SWEEP_INTERVAL", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.SweepInterval)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("ALERT_WEBHOOK_URL", testWebhookURL)
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_NegativeCacheTTL(t *testing.T) {
	t.Setenv("ALERT_WEBHOOK_URL", testWebhookURL)
	t.Setenv("OFFLINE_CACHE_TTL", "-1h")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OFFLINE_CACHE_TTL")
}

func TestLoad_InvalidSweepInterval(t *testing.T) {
	t.Setenv("ALERT_WEBHOOK_URL", testWebhookURL)
	t.Setenv("OFFLINE_SWEEP_INTERVAL", "-5m")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OFFLINE_SWEEP_INTERVAL")
}

func TestLoad_InvalidFlushAttempts(t *testing.T) {
	t.Setenv("ALERT_WEBHOOK_URL", testWebhookURL)
	t.Setenv("FLUSH_ATTEMPTS", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FLUSH_ATTEMPTS")
}

func TestLoad_FlushAttemptsTooLarge(t *testing.T) {
	t.Setenv("ALERT_WEBHOOK_URL", testWebhookURL)
	t.Setenv("FLUSH_ATTEMPTS", "99")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FLUSH_ATTEMPTS")
}

func TestLoad_WebhookModeRequiresURL(t *testing.T) {
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALERT_WEBHOOK_URL")
}

func TestLoad_KafkaModeRequiresBrokers(t *testing.T) {
	t.Setenv("ALERT_DELIVERY", "kafka")
	t.Setenv("KAFKA_BROKERS", " , ")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}

func TestLoad_UnknownDeliveryMode(t *testing.T) {
	t.Setenv("ALERT_DELIVERY", "carrier-pigeon")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALERT_DELIVERY")
}
