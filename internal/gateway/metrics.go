package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	frameCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_frames_total",
		Help: "Inbound frames handled, by command type and outcome",
	}, []string{"type", "outcome"})
	commandLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_command_duration_seconds",
		Help:    "Time spent in Init and Execute per command",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
	broadcastCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_broadcasts_total",
		Help: "Broadcast events sent, by event type",
	}, []string{"type"})
	broadcastFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_broadcast_failures_total",
		Help: "Per-session write failures during broadcast",
	})
	openSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_open_sessions",
		Help: "Currently registered client sessions",
	})
)
