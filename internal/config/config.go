package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Delivery modes for outbound emergency alerts.
const (
	DeliveryWebhook = "webhook"
	DeliveryKafka   = "kafka"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DataDir  string
	HTTPAddr string

	LogLevel  string
	LogFormat string

	ShutdownTimeout time.Duration

	// Cache policy.
	CacheTTL      time.Duration
	SweepInterval time.Duration // 0 disables the periodic stale-sweep

	// Alert delivery.
	DeliveryMode   string
	WebhookURL     string
	WebhookTimeout time.Duration
	KafkaBrokers   []string
	KafkaTopic     string

	// Flush retry policy.
	FlushAttempts      int
	FlushRetryDelay    time.Duration
	FlushRetryMaxDelay time.Duration

	// Connectivity probing.
	ProbeURL      string // empty disables the active prober
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	StartOnline   bool // initial state when probing is disabled
}

// DBPath returns the path of the bbolt database file inside the data dir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "offline.db")
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	cacheTTL, err := parseDuration("OFFLINE_CACHE_TTL", "168h")
	if err != nil {
		return nil, err
	}

	sweepInterval, err := parseNonNegativeDuration("OFFLINE_SWEEP_INTERVAL", "12h")
	if err != nil {
		return nil, err
	}

	webhookTimeout, err := parseDuration("ALERT_WEBHOOK_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	flushAttempts, err := parseFlushAttempts()
	if err != nil {
		return nil, err
	}

	flushDelay, err := parseDuration("FLUSH_RETRY_DELAY", "2s")
	if err != nil {
		return nil, err
	}

	flushMaxDelay, err := parseDuration("FLUSH_RETRY_MAX_DELAY", "30s")
	if err != nil {
		return nil, err
	}

	probeInterval, err := parseDuration("PROBE_INTERVAL", "30s")
	if err != nil {
		return nil, err
	}

	probeTimeout, err := parseDuration("PROBE_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:   envOrDefault("OFFLINE_DATA_DIR", "./data"),
		HTTPAddr:  envOrDefault("OFFLINE_HTTP_ADDR", ":8090"),
		LogLevel:  envOrDefault("LOG_LEVEL", "info"),
		LogFormat: envOrDefault("LOG_FORMAT", "json"),

		ShutdownTimeout: shutdownTimeout,
		CacheTTL:        cacheTTL,
		SweepInterval:   sweepInterval,

		DeliveryMode:   envOrDefault("ALERT_DELIVERY", DeliveryWebhook),
		WebhookURL:     os.Getenv("ALERT_WEBHOOK_URL"),
		WebhookTimeout: webhookTimeout,
		KafkaBrokers:   parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:     envOrDefault("KAFKA_TOPIC", "emergency-alerts"),

		FlushAttempts:      flushAttempts,
		FlushRetryDelay:    flushDelay,
		FlushRetryMaxDelay: flushMaxDelay,

		ProbeURL:      os.Getenv("PROBE_URL"),
		ProbeInterval: probeInterval,
		ProbeTimeout:  probeTimeout,
		StartOnline:   envOrDefault("START_ONLINE", "true") == "true",
	}

	if cfg.DataDir == "" {
		return nil, errors.New("OFFLINE_DATA_DIR is required")
	}

	switch cfg.DeliveryMode {
	case DeliveryWebhook:
		if cfg.WebhookURL == "" {
			return nil, errors.New("ALERT_DELIVERY is webhook but ALERT_WEBHOOK_URL is not set")
		}
	case DeliveryKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("ALERT_DELIVERY is kafka but KAFKA_BROKERS is not set")
		}
		if cfg.KafkaTopic == "" {
			return nil, errors.New("ALERT_DELIVERY is kafka but KAFKA_TOPIC is not set")
		}
	default:
		return nil, fmt.Errorf("invalid ALERT_DELIVERY %q (want webhook or kafka)", cfg.DeliveryMode)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

// parseNonNegativeDuration allows zero, which callers treat as "disabled".
func parseNonNegativeDuration(key, fallback string) (time.Duration, error) {
	raw := envOrDefault(key, fallback)
	if raw == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

func parseFlushAttempts() (int, error) {
	raw := envOrDefault("FLUSH_ATTEMPTS", "3")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 10 {
		return 0, errors.New("invalid FLUSH_ATTEMPTS (want 1-10)")
	}
	return n, nil
}

func parseBrokers(raw string) []string {
	parts := strings.Split(raw, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}
