package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Prober actively checks reachability of a configured URL and feeds the
// result to the monitor. It covers deployments where no dashboard is
// attached to forward platform events.
type Prober struct {
	monitor  *Monitor
	url      string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger
}

// NewProber creates a prober that issues a HEAD request to url every
// interval. The timeout bounds each probe.
func NewProber(monitor *Monitor, url string, interval, timeout time.Duration, logger *slog.Logger) *Prober {
	return &Prober{
		monitor:  monitor,
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Check performs one probe and reports the result to the monitor. Any HTTP
// response counts as online; only a transport failure means offline.
func (p *Prober) Check(ctx context.Context) bool {
	online := p.probe(ctx)
	p.monitor.Set(online)
	return online
}

// Run probes on a ticker until the context is cancelled.
func (p *Prober) Run(ctx context.Context) {
	p.logger.Info("connectivity prober started", "url", p.url, "interval", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("connectivity prober stopped")
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

func (p *Prober) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.logger.Warn("probe request invalid", "url", p.url, "error", err)
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
