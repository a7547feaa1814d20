// Package metrics exports outbox and replica telemetry to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blackcatacademy/blackcat-database/outbox"
	"github.com/blackcatacademy/blackcat-database/replica"
)

const defaultNamespace = "blackcat"

// Outbox implements outbox.Metrics.
type Outbox struct {
	batchDuration prometheus.Histogram
	claimed       prometheus.Counter
	acked         prometheus.Counter
	failed        prometheus.Counter
	pending       prometheus.Gauge
}

var _ outbox.Metrics = (*Outbox)(nil)

// NewOutbox registers the outbox collectors on reg. A nil reg leaves them unregistered.
// An empty namespace uses "blackcat".
func NewOutbox(reg prometheus.Registerer, namespace string) *Outbox {
	if namespace == "" {
		namespace = defaultNamespace
	}
	factory := promauto.With(reg)

	return &Outbox{
		batchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "batch_duration_seconds",
			Help:      "Time spent processing a claimed outbox batch",
			Buckets:   prometheus.DefBuckets,
		}),
		claimed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "claimed_total",
			Help:      "Total number of claimed outbox records",
		}),
		acked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "acked_total",
			Help:      "Total number of acknowledged outbox records",
		}),
		failed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "failed_total",
			Help:      "Total number of outbox delivery failures",
		}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "pending",
			Help:      "Number of unacknowledged outbox records",
		}),
	}
}

// ObserveBatchDuration implements outbox.Metrics.
func (m *Outbox) ObserveBatchDuration(d time.Duration) {
	m.batchDuration.Observe(d.Seconds())
}

// AddClaimed implements outbox.Metrics.
func (m *Outbox) AddClaimed(count int) {
	add(m.claimed, count)
}

// AddAcked implements outbox.Metrics.
func (m *Outbox) AddAcked(count int) {
	add(m.acked, count)
}

// AddFailed implements outbox.Metrics.
func (m *Outbox) AddFailed(count int) {
	add(m.failed, count)
}

// SetPending implements outbox.Metrics.
func (m *Outbox) SetPending(count int) {
	m.pending.Set(float64(count))
}

// Replica implements replica.Metrics.
type Replica struct {
	routes *prometheus.CounterVec
	sticky prometheus.Gauge
}

var _ replica.Metrics = (*Replica)(nil)

// NewReplica registers the router collectors on reg. A nil reg leaves them unregistered.
func NewReplica(reg prometheus.Registerer, namespace string) *Replica {
	if namespace == "" {
		namespace = defaultNamespace
	}
	factory := promauto.With(reg)

	return &Replica{
		routes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "routed_total",
			Help:      "Total number of routed calls by target and reason",
		}, []string{"target", "reason"}),
		sticky: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "sticky_entries",
			Help:      "Number of correlations currently pinned to the primary",
		}),
	}
}

// ObserveRoute implements replica.Metrics.
func (m *Replica) ObserveRoute(target replica.Target, reason replica.Reason) {
	m.routes.WithLabelValues(string(target), string(reason)).Inc()
}

// SetStickyEntries implements replica.Metrics.
func (m *Replica) SetStickyEntries(count int) {
	m.sticky.Set(float64(count))
}

// Handler serves the metrics gathered by g. A nil g serves the default registry.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}

	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func add(c prometheus.Counter, count int) {
	if count > 0 {
		c.Add(float64(count))
	}
}
