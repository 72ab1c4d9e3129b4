package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "studiocast_relay_sessions",
		Help: "Number of connected sessions.",
	})
	metricRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studiocast_relay_packets_routed_total",
		Help: "Number of forwarded packets by kind.",
	}, []string{"kind"})
	metricDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studiocast_relay_packets_dropped_total",
		Help: "Number of dropped packets by reason.",
	}, []string{"reason"})
)
