package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "intake_bridge"

// Metrics holds the bridge meters. All methods are safe for concurrent use
// and a nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  *prometheus.CounterVec
	ConnectionSeconds prometheus.Histogram
	FramesUpstream    prometheus.Counter
	FramesDropped     *prometheus.CounterVec
	ClientBytes       *prometheus.CounterVec
	UpstreamFailures  *prometheus.CounterVec
	IntakeCompleted   prometheus.Counter
	IntakePublished   *prometheus.CounterVec
	AMQPConnected     prometheus.Gauge
}

// New creates the meters on their own registry, together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of bridged connections currently open",
		}),
		ConnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of bridged connections by outcome",
		}, []string{"outcome"}),
		ConnectionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connection_duration_seconds",
			Help:      "Lifetime of bridged connections",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		FramesUpstream: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_upstream_total",
			Help:      "Audio frames forwarded to the agent",
		}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Audio frames that never reached the agent",
		}, []string{"reason"}),
		ClientBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_bytes_total",
			Help:      "Audio bytes exchanged with clients",
		}, []string{"direction"}),
		UpstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_failures_total",
			Help:      "Fatal per-connection failures by kind",
		}, []string{"kind"}),
		IntakeCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intake_completed_total",
			Help:      "Connections whose intake record became complete",
		}),
		IntakePublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intake_published_total",
			Help:      "Intake snapshots handed to the publisher",
		}, []string{"status"}),
		AMQPConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "amqp_connected",
			Help:      "Whether the intake publisher is connected (1) or not (0)",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ConnectionsActive,
		m.ConnectionsTotal,
		m.ConnectionSeconds,
		m.FramesUpstream,
		m.FramesDropped,
		m.ClientBytes,
		m.UpstreamFailures,
		m.IntakeCompleted,
		m.IntakePublished,
		m.AMQPConnected,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          m.registry,
	})
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Inc()
}

// ConnectionClosed records the end of a connection; outcome is "closed" or "failed".
func (m *Metrics) ConnectionClosed(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
	m.ConnectionsTotal.WithLabelValues(outcome).Inc()
	m.ConnectionSeconds.Observe(seconds)
}

func (m *Metrics) RecordFramesUpstream(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FramesUpstream.Add(float64(n))
}

func (m *Metrics) RecordFramesDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FramesDropped.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) RecordClientBytes(direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ClientBytes.WithLabelValues(direction).Add(float64(n))
}

func (m *Metrics) RecordUpstreamFailure(kind string) {
	if m == nil {
		return
	}
	m.UpstreamFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordIntakeCompleted() {
	if m == nil {
		return
	}
	m.IntakeCompleted.Inc()
}

func (m *Metrics) RecordIntakePublish(status string) {
	if m == nil {
		return
	}
	m.IntakePublished.WithLabelValues(status).Inc()
}

func (m *Metrics) SetAMQPConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.AMQPConnected.Set(1)
	} else {
		m.AMQPConnected.Set(0)
	}
}
