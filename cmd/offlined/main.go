package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harborlight/relief-offline/internal/adapter/httpapi"
	kafkaadapter "github.com/harborlight/relief-offline/internal/adapter/kafka"
	"github.com/harborlight/relief-offline/internal/adapter/webhook"
	"github.com/harborlight/relief-offline/internal/alertqueue"
	"github.com/harborlight/relief-offline/internal/cache"
	"github.com/harborlight/relief-offline/internal/config"
	"github.com/harborlight/relief-offline/internal/connectivity"
	"github.com/harborlight/relief-offline/internal/observability"
	"github.com/harborlight/relief-offline/internal/storage/bbolt"
	"github.com/harborlight/relief-offline/internal/usage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	store, err := bbolt.Open(cfg.DBPath())
	if err != nil {
		// Without the store no alert can be guaranteed; refuse to run.
		logger.Error("persistent store unavailable", "path", cfg.DBPath(), "error", err)
		os.Exit(1)
	}
	logger.Info("persistent store open", "path", store.Path())

	manager := cache.NewManager(store, cfg.CacheTTL, logger, metrics)
	tiles := cache.NewTileLRU(manager, 128)

	// Alert delivery destination (ALERT_DELIVERY selects the adapter).
	var deliverer alertqueue.Deliverer
	var closeDeliverer func() error
	switch cfg.DeliveryMode {
	case config.DeliveryKafka:
		writer := kafkaadapter.NewWriter(cfg, logger)
		deliverer = writer
		closeDeliverer = writer.Close
		logger.Info("alert delivery via kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	default:
		deliverer = webhook.NewClient(cfg.WebhookURL, cfg.WebhookTimeout, logger)
		logger.Info("alert delivery via webhook", "url", cfg.WebhookURL)
	}

	monitor := connectivity.NewMonitor(cfg.StartOnline, logger, metrics)
	queue := alertqueue.New(store, deliverer, monitor, alertqueue.RetryPolicy{
		Attempts: uint(cfg.FlushAttempts),
		Delay:    cfg.FlushRetryDelay,
		MaxDelay: cfg.FlushRetryMaxDelay,
	}, logger, metrics)
	reporter := usage.NewReporter(store, cfg.DataDir, logger)

	srv := httpapi.NewServer(cfg.HTTPAddr, httpapi.Deps{
		Ready:        store,
		Cache:        tiles,
		Alerts:       queue,
		Connectivity: monitor,
		Usage:        reporter,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Establish the real connectivity state before anything subscribes, so
	// the first probe result does not count as a reconnect.
	var prober *connectivity.Prober
	if cfg.ProbeURL != "" {
		prober = connectivity.NewProber(monitor, cfg.ProbeURL, cfg.ProbeInterval, cfg.ProbeTimeout, logger)
		prober.Check(ctx)
	}

	// Coming back online is the edge that drains the queue.
	monitor.Subscribe(func(online bool) {
		if !online {
			return
		}
		go func() {
			if _, err := queue.Flush(ctx, alertqueue.TriggerReconnect); err != nil {
				logger.Error("reconnect flush failed", "error", err)
			}
		}()
	})

	// Sweep expired cache records at start, then periodically.
	if removed, err := manager.ClearOldCache(ctx); err != nil {
		logger.Warn("startup cache sweep failed", "error", err)
	} else if removed > 0 {
		logger.Info("startup cache sweep complete", "removed", removed)
	}
	if cfg.SweepInterval > 0 {
		go runSweeper(ctx, manager, cfg.SweepInterval, logger)
	}

	// Alerts left over from a previous run are counted whatever the
	// connectivity state, seeding the pending gauge. They get one flush if
	// we start online; otherwise the next reconnect picks them up.
	if n, err := queue.PendingCount(ctx); err == nil && n > 0 {
		logger.Info("pending alerts from previous run", "count", n)
		if monitor.Online() {
			go func() {
				if _, err := queue.Flush(ctx, alertqueue.TriggerStartup); err != nil {
					logger.Error("startup flush failed", "error", err)
				}
			}()
		}
	}

	if prober != nil {
		go prober.Run(ctx)
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if closeDeliverer != nil {
		if err := closeDeliverer(); err != nil {
			logger.Error("deliverer close error", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// runSweeper deletes expired cache records on a fixed interval until the
// context is cancelled.
func runSweeper(ctx context.Context, manager *cache.Manager, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := manager.ClearOldCache(ctx)
			if err != nil {
				logger.Warn("periodic cache sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.Info("periodic cache sweep complete", "removed", removed)
			}
		}
	}
}
