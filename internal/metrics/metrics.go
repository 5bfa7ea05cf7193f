// Package metrics provides Prometheus instrumentation for the realtime
// server and the bot. It exposes gauges for connection and room counts,
// counters for envelope and command throughput, and a histogram for
// conversation turn latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsActive tracks the current number of WebSocket connections.
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "musika_connections_active",
		Help: "Current number of active WebSocket connections",
	})

	// RoomsActive tracks the current number of non-empty rooms.
	RoomsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "musika_rooms_active",
		Help: "Current number of non-empty broadcast rooms",
	})

	// EnvelopesTotal counts envelopes by type and direction ("in" / "out").
	EnvelopesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "musika_envelopes_total",
		Help: "Total number of realtime envelopes processed",
	}, []string{"type", "direction"})

	// BotCommandsTotal counts bot command invocations by command and outcome.
	BotCommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "musika_bot_commands_total",
		Help: "Total number of bot commands dispatched",
	}, []string{"command", "status"})

	// BotTurnDuration records end-to-end conversation turn latency.
	BotTurnDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "musika_bot_turn_duration_seconds",
		Help:    "Conversation turn handling latency in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	// EmitterQueueDepth tracks events buffered while the dashboard bridge
	// is unreachable.
	EmitterQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "musika_emitter_queue_depth",
		Help: "Events queued in the bot event emitter awaiting flush",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsActive,
		RoomsActive,
		EnvelopesTotal,
		BotCommandsTotal,
		BotTurnDuration,
		EmitterQueueDepth,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
