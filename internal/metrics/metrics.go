// Package metrics provides Prometheus instrumentation for the chat core. It
// exposes gauges for connection and room counts, counters for message
// throughput and rejections, and a histogram for send latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of live WebSocket sessions.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatcore_connections_total",
		Help: "Current number of live WebSocket sessions",
	})

	// OnlineUsers tracks the number of distinct users with at least one session.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatcore_online_users",
		Help: "Current number of distinct online users",
	})

	// ActiveRooms tracks rooms with at least one locally connected session.
	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatcore_active_rooms",
		Help: "Current number of rooms with local occupants",
	})

	// MessagesTotal counts delivered messages by kind: "direct", "community",
	// or "system".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatcore_messages_total",
		Help: "Total number of messages persisted and broadcast",
	}, []string{"kind"})

	// MessagesRejected counts rejected sends by reason.
	MessagesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatcore_messages_rejected_total",
		Help: "Total number of sends rejected before persistence",
	}, []string{"reason"})

	// SendLatency records full pipeline latency per send in seconds.
	SendLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatcore_send_latency_seconds",
		Help:    "Message pipeline latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		OnlineUsers,
		ActiveRooms,
		MessagesTotal,
		MessagesRejected,
		SendLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
