package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dataponto"

var (
	// PushDeliveries counts Web Push attempts by outcome: sent, expired,
	// failed or error.
	PushDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "push",
		Name:      "deliveries_total",
		Help:      "Web Push deliveries by outcome.",
	}, []string{"outcome"})

	PushDispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "push",
		Name:      "dispatch_duration_seconds",
		Help:      "Time spent fanning one notification out to all subscriptions.",
		Buckets:   prometheus.DefBuckets,
	})

	RemindersFired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reminders",
		Name:      "fired_total",
		Help:      "Appointment reminders raised.",
	})

	ChangesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "changes",
		Name:      "processed_total",
		Help:      "Database change rows published, by table.",
	}, []string{"table"})

	LiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "live",
		Name:      "sessions",
		Help:      "Open websocket sessions.",
	})
)

// Delivery outcomes.
const (
	OutcomeSent    = "sent"
	OutcomeExpired = "expired"
	OutcomeFailed  = "failed"
	OutcomeError   = "error"
)
