package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/budgetwise/alert-pipeline/internal/domain"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	NotificationsSent   *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec
	ProcessingLatency   *prometheus.HistogramVec
	QueueDepth          prometheus.Gauge
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of notifications published to the delivery channel.",
		}, []string{"kind"}),

		NotificationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Total number of failed delivery attempts by failure reason.",
		}, []string{"reason"}),

		ProcessingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notification_processing_seconds",
			Help:    "Per-envelope processing latency from receive to terminal transition.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),

		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "work_queue_depth",
			Help: "Number of envelopes ready on the work queue at the last poll.",
		}),
	}

	reg.MustRegister(
		m.NotificationsSent,
		m.NotificationsFailed,
		m.ProcessingLatency,
		m.QueueDepth,
	)

	return m
}

// WorkerHooks returns the metric callback functions expected by worker.MetricHooks.
// Centralises the prometheus observation calls so the worker package stays
// prometheus-free.
func (m *Metrics) WorkerHooks() (
	onSent func(domain.Kind, time.Duration),
	onFailed func(domain.Reason),
) {
	onSent = func(k domain.Kind, latency time.Duration) {
		m.NotificationsSent.WithLabelValues(string(k)).Inc()
		m.ProcessingLatency.WithLabelValues(string(k)).Observe(latency.Seconds())
	}
	onFailed = func(r domain.Reason) {
		m.NotificationsFailed.WithLabelValues(string(r)).Inc()
	}
	return
}
