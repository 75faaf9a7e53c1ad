package ucs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ucs_events_published_total",
		Help: "Events written to the events topic",
	}, []string{"kind"})

	eventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ucs_events_consumed_total",
		Help: "Events read from the events topic",
	}, []string{"kind", "outcome"})

	messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ucs_messages_sent_total",
		Help: "Messages accepted for delivery",
	}, []string{"kind"})

	resolutionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ucs_resolution_failures_total",
		Help: "Recipients whose address could not be resolved",
	}, []string{"type"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ucs_backend_sessions",
		Help: "Backend sessions currently running (0 or 1)",
	})
)
