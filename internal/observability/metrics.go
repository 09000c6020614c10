package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the server's Prometheus instruments. One instance per
// process, registered on the default registry.
type Metrics struct {
	PlanSteps       *prometheus.CounterVec
	ToolInvocations *prometheus.CounterVec
	LLMRequests     *prometheus.HistogramVec
	ActiveSessions  prometheus.Gauge
}

// NewMetrics registers and returns the instrument set.
func NewMetrics() *Metrics {
	return &Metrics{
		PlanSteps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "maestro_plan_steps_total",
			Help: "Plan steps by terminal status (x, !, -).",
		}, []string{"status"}),
		ToolInvocations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "maestro_tool_invocations_total",
			Help: "Tool invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		LLMRequests: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "maestro_llm_request_seconds",
			Help:    "LLM request latency by pipeline role.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"role"}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "maestro_sessions_active",
			Help: "Currently open client sessions.",
		}),
	}
}
