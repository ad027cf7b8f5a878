// Package metrics exposes Prometheus instruments for publishing and synchronization.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rollcall"

// Metrics groups the collectors registered for one process.
type Metrics struct {
	publishes        prometheus.Counter
	publishFailures  prometheus.Counter
	reconciliations  *prometheus.CounterVec
	decodeFailures   prometheus.Counter
	storageErrors    *prometheus.CounterVec
	broadcastDropped prometheus.Counter
	subscribers      prometheus.Gauge
	insightFailures  prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		publishes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Successful stats publishes.",
		}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Publishes rejected by validation or storage.",
		}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Reconciliation runs by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_decode_failures_total",
			Help:      "Snapshot tokens that could not be decoded.",
		}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Durable slot failures by operation.",
		}, []string{"op"}),
		broadcastDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_dropped_total",
			Help:      "Broadcast messages dropped because a subscriber was not keeping up.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broadcast_subscribers",
			Help:      "Live broadcast subscriptions.",
		}),
		insightFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insight_failures_total",
			Help:      "Insight generation calls that failed and were omitted.",
		}),
	}
	reg.MustRegister(
		m.publishes,
		m.publishFailures,
		m.reconciliations,
		m.decodeFailures,
		m.storageErrors,
		m.broadcastDropped,
		m.subscribers,
		m.insightFailures,
	)
	return m
}

// Handler serves the exposition format for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) Published() {
	if m != nil {
		m.publishes.Inc()
	}
}

func (m *Metrics) PublishFailed() {
	if m != nil {
		m.publishFailures.Inc()
	}
}

// Reconciled records one reconciliation run. adopted reports whether a candidate
// replaced the in-memory record.
func (m *Metrics) Reconciled(trigger string, adopted bool) {
	if m == nil {
		return
	}
	outcome := "kept"
	if adopted {
		outcome = "adopted"
	}
	m.reconciliations.WithLabelValues(trigger, outcome).Inc()
}

func (m *Metrics) DecodeFailed() {
	if m != nil {
		m.decodeFailures.Inc()
	}
}

func (m *Metrics) StorageFailed(op string) {
	if m != nil {
		m.storageErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) BroadcastDropped() {
	if m != nil {
		m.broadcastDropped.Inc()
	}
}

func (m *Metrics) SubscriberAdded() {
	if m != nil {
		m.subscribers.Inc()
	}
}

func (m *Metrics) SubscriberRemoved() {
	if m != nil {
		m.subscribers.Dec()
	}
}

func (m *Metrics) InsightFailed() {
	if m != nil {
		m.insightFailures.Inc()
	}
}
