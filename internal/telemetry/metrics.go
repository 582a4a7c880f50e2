// Package telemetry records invocation and session signals as Prometheus
// metrics and OpenTelemetry spans.
package telemetry

import (
	"context"
	"net/http"

	bridgemcp "github.com/bobmcallan/openapi-mcp-bridge/internal/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics for the bridge.
type Metrics struct {
	// InvocationsTotal counts tool calls by tool and outcome.
	// outcome is "success" or the error code name.
	InvocationsTotal *prometheus.CounterVec

	// InvocationDuration is the end-to-end latency of a tool call.
	InvocationDuration *prometheus.HistogramVec

	// UpstreamResponses counts upstream HTTP responses by status class.
	UpstreamResponses *prometheus.CounterVec

	// SessionsActive is 1 while a transport is bound.
	SessionsActive prometheus.Gauge

	// SessionsTotal counts every bind.
	SessionsTotal prometheus.Counter

	// SessionsSuperseded counts binds that replaced a live transport.
	SessionsSuperseded prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		InvocationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "openapi_mcp_bridge_invocations_total",
			Help: "Total number of tool invocations",
		}, []string{"tool", "outcome"}),

		InvocationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "openapi_mcp_bridge_invocation_duration_seconds",
			Help:    "Tool invocation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"tool"}),

		UpstreamResponses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "openapi_mcp_bridge_upstream_responses_total",
			Help: "Upstream HTTP responses by status class",
		}, []string{"class"}),

		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "openapi_mcp_bridge_sessions_active",
			Help: "Whether a transport is currently bound",
		}),

		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "openapi_mcp_bridge_sessions_total",
			Help: "Total number of bound transports since startup",
		}),

		SessionsSuperseded: factory.NewCounter(prometheus.CounterOpts{
			Name: "openapi_mcp_bridge_sessions_superseded_total",
			Help: "Total number of transports replaced by a newer connection",
		}),
	}
}

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the metrics in reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// ObserveInvoke records one finished invocation.
func (m *Metrics) ObserveInvoke(_ context.Context, o bridgemcp.Observation) {
	if m == nil {
		return
	}
	m.InvocationsTotal.WithLabelValues(o.Tool, Outcome(o)).Inc()
	m.InvocationDuration.WithLabelValues(o.Tool).Observe(o.Duration.Seconds())
	if o.Status > 0 {
		m.UpstreamResponses.WithLabelValues(statusClass(o.Status)).Inc()
	}
}

// SessionBound records a bind.
func (m *Metrics) SessionBound(superseded bool) {
	if m == nil {
		return
	}
	m.SessionsTotal.Inc()
	m.SessionsActive.Set(1)
	if superseded {
		m.SessionsSuperseded.Inc()
	}
}

// SessionUnbound records the slot being cleared.
func (m *Metrics) SessionUnbound() {
	if m == nil {
		return
	}
	m.SessionsActive.Set(0)
}

// Outcome is the label value for an observation.
func Outcome(o bridgemcp.Observation) string {
	if o.Success {
		return "success"
	}
	return o.Code.String()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}

var _ bridgemcp.Observer = (*Metrics)(nil)
