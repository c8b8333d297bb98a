package rendezvous

// Prometheus gauges/counters for the production mailbox server,
// grounded on cmd/ww/server.go's expvar stats struct but exported
// through github.com/prometheus/client_golang instead, per
// SPEC_FULL.md's domain stack: open connections, allocated
// nameplates, and relayed add messages.

import "github.com/prometheus/client_golang/prometheus"

var (
	metricConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "wormhole",
		Subsystem: "mailbox",
		Name:      "connections",
		Help:      "Open websocket connections to the mailbox server.",
	})
	metricNameplates = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "wormhole",
		Subsystem: "mailbox",
		Name:      "nameplates",
		Help:      "Currently allocated nameplates.",
	})
	metricMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "wormhole",
		Subsystem: "mailbox",
		Name:      "messages_total",
		Help:      "Mailbox add messages relayed.",
	})
)

func init() {
	prometheus.MustRegister(metricConnections, metricNameplates, metricMessages)
}
