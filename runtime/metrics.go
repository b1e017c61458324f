package runtime

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements Metrics over client_golang, namespaced the
// way the teacher's graph engine namespaces its own scheduler metrics.
type PrometheusMetrics struct {
	stepLatency *prometheus.HistogramVec
	retries     *prometheus.CounterVec
	mu          sync.Mutex
	registered  bool
}

// NewPrometheusMetrics registers its collectors against registry (or the
// default global registry if nil) and returns a ready Metrics.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	m := &PrometheusMetrics{
		stepLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentloom",
			Name:      "step_latency_ms",
			Help:      "Duration of a single node invocation, in milliseconds.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
		}, []string{"node_id"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentloom",
			Name:      "retries_total",
			Help:      "Count of model-call retries per node.",
		}, []string{"node_id"}),
	}
	registry.MustRegister(m.stepLatency, m.retries)
	m.registered = true
	return m
}

func (m *PrometheusMetrics) ObserveStep(nodeID string, duration time.Duration) {
	m.stepLatency.WithLabelValues(nodeID).Observe(float64(duration.Milliseconds()))
}

func (m *PrometheusMetrics) ObserveRetry(nodeID string) {
	m.retries.WithLabelValues(nodeID).Inc()
}
