// Package metrics exposes gateway counters over Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Set struct {
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	RunsStarted       prometheus.Counter
	RunsFailed        prometheus.Counter
	MessagesSent      prometheus.Counter
	ToolCalls         prometheus.Counter
}

// New registers the gateway collectors on reg. Pass
// prometheus.DefaultRegisterer in production.
func New(reg prometheus.Registerer) *Set {
	factory := promauto.With(reg)
	return &Set{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chatwire_connections_active",
			Help: "Currently open websocket connections.",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatwire_connections_total",
			Help: "Accepted websocket connections.",
		}),
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatwire_runs_started_total",
			Help: "Engine runs dispatched.",
		}),
		RunsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatwire_runs_failed_total",
			Help: "Engine runs that ended with an error.",
		}),
		MessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatwire_messages_sent_total",
			Help: "Wire messages written to clients.",
		}),
		ToolCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatwire_tool_calls_total",
			Help: "Tool invocations observed in run streams.",
		}),
	}
}
