package mcp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the per-tool Prometheus instruments emitted by the
// dispatcher.
type Metrics struct {
	calls   *prometheus.CounterVec
	errors  *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewMetrics registers the MCP instruments on reg. Each server process
// owns one registry so tests can use isolated ones.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tool_calls_total",
			Help: "Total tool invocations by tool name.",
		}, []string{"tool"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tool_errors_total",
			Help: "Total failed tool invocations by tool name and error type.",
		}, []string{"tool", "error_type"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcp_http_latency_seconds",
			Help:    "Tool execution latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
	}
}

func (m *Metrics) observeCall(tool string, seconds float64) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(tool).Inc()
	m.latency.WithLabelValues(tool).Observe(seconds)
}

func (m *Metrics) observeError(tool, errorType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(tool, errorType).Inc()
}
