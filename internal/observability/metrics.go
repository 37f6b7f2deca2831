package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// offline layer.
type Metrics struct {
	// Cache metrics.
	CacheWrites       *prometheus.CounterVec // labels: collection
	CacheReads        *prometheus.CounterVec // labels: collection, result={fresh,stale,miss}
	CacheSweepRemoved prometheus.Counter

	// Alert queue metrics.
	AlertsEnqueued   prometheus.Counter
	AlertsDelivered  prometheus.Counter
	DeliveryFailures prometheus.Counter
	QueueFlushes     *prometheus.CounterVec // labels: trigger={reconnect,manual,startup}
	FlushDuration    prometheus.Histogram
	AlertsPending    prometheus.Gauge

	// Connectivity metrics.
	ConnectivityOnline      prometheus.Gauge
	ConnectivityTransitions *prometheus.CounterVec // labels: state={online,offline}
}

// NewMetrics creates and registers all offline-layer metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		CacheWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relief_offline",
			Name:      "cache_writes_total",
			Help:      "Cache records written, by collection.",
		}, []string{"collection"}),
		CacheReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relief_offline",
			Name:      "cache_reads_total",
			Help:      "Cache records considered on read, by collection and freshness result.",
		}, []string{"collection", "result"}),
		CacheSweepRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relief_offline",
			Name:      "cache_sweep_removed_total",
			Help:      "Expired cache records removed by the stale-sweep.",
		}),
		AlertsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relief_offline",
			Name:      "alerts_enqueued_total",
			Help:      "Emergency alerts persisted to the pending queue.",
		}),
		AlertsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relief_offline",
			Name:      "alerts_delivered_total",
			Help:      "Alerts confirmed delivered and removed from the queue.",
		}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relief_offline",
			Name:      "alert_delivery_failures_total",
			Help:      "Alert delivery attempts that failed after retries.",
		}),
		QueueFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relief_offline",
			Name:      "queue_flushes_total",
			Help:      "Flush passes over the pending queue, by trigger.",
		}, []string{"trigger"}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "relief_offline",
			Name:      "flush_duration_seconds",
			Help:      "Duration of a complete flush pass.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		AlertsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relief_offline",
			Name:      "alerts_pending",
			Help:      "Alerts currently awaiting delivery.",
		}),
		ConnectivityOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relief_offline",
			Name:      "connectivity_online",
			Help:      "1 when the monitor believes the network is reachable, 0 otherwise.",
		}),
		ConnectivityTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relief_offline",
			Name:      "connectivity_transitions_total",
			Help:      "Edge-triggered connectivity state changes, by new state.",
		}, []string{"state"}),
	}

	prometheus.MustRegister(
		m.CacheWrites,
		m.CacheReads,
		m.CacheSweepRemoved,
		m.AlertsEnqueued,
		m.AlertsDelivered,
		m.DeliveryFailures,
		m.QueueFlushes,
		m.FlushDuration,
		m.AlertsPending,
		m.ConnectivityOnline,
		m.ConnectivityTransitions,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		CacheWrites:             prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "relief_offline", Name: "cache_writes_total"}, []string{"collection"}),
		CacheReads:              prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "relief_offline", Name: "cache_reads_total"}, []string{"collection", "result"}),
		CacheSweepRemoved:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "relief_offline", Name: "cache_sweep_removed_total"}),
		AlertsEnqueued:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: "relief_offline", Name: "alerts_enqueued_total"}),
		AlertsDelivered:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: "relief_offline", Name: "alerts_delivered_total"}),
		DeliveryFailures:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "relief_offline", Name: "alert_delivery_failures_total"}),
		QueueFlushes:            prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "relief_offline", Name: "queue_flushes_total"}, []string{"trigger"}),
		FlushDuration:           prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "relief_offline", Name: "flush_duration_seconds"}),
		AlertsPending:           prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "relief_offline", Name: "alerts_pending"}),
		ConnectivityOnline:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "relief_offline", Name: "connectivity_online"}),
		ConnectivityTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "relief_offline", Name: "connectivity_transitions_total"}, []string{"state"}),
	}
}
