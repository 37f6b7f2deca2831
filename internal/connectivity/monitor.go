// Package connectivity tracks whether the network is reachable and notifies
// subscribers on state transitions.
//
// Signals come from two sources: the dashboard forwards platform
// online/offline events over the HTTP API, and an optional Prober performs
// active checks when no dashboard is attached. Both feed the same Monitor,
// which is the single source of truth the rest of the daemon consults.
package connectivity

import (
	"log/slog"
	"sync"

	"github.com/harborlight/relief-offline/internal/observability"
)

// Monitor holds the current online state and fans transitions out to
// subscribers.
type Monitor struct {
	mu          sync.Mutex
	online      bool
	subscribers []func(online bool)

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewMonitor creates a monitor with a known initial state. The initial state
// comes from configuration or a startup probe; the monitor never assumes one.
func NewMonitor(initial bool, logger *slog.Logger, metrics *observability.Metrics) *Monitor {
	m := &Monitor{online: initial, logger: logger, metrics: metrics}
	m.metrics.ConnectivityOnline.Set(gaugeValue(initial))
	return m
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a callback invoked on every state transition.
// Callbacks run synchronously inside Set, one at a time, outside the state
// lock; a callback that needs to block should hand off to a goroutine.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Set records the state reported by a signal source. Subscribers are
// notified only when the state actually changes; repeated reports of the
// same state are no-ops.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]func(bool), len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	m.metrics.ConnectivityOnline.Set(gaugeValue(online))
	m.metrics.ConnectivityTransitions.WithLabelValues(stateLabel(online)).Inc()
	m.logger.Info("connectivity changed", "online", online)

	for _, fn := range subs {
		fn(online)
	}
}

func gaugeValue(online bool) float64 {
	if online {
		return 1
	}
	return 0
}

func stateLabel(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}
