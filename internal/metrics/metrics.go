// Package metrics registers the control plane's Prometheus collectors:
// gateway connection count, envelopes processed, evaluator tick duration,
// and notifications sent/failed, following the standard promauto
// registration idiom.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsActive is a gauge set by the gateway whenever a
	// connection registers or unregisters.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fleet",
		Subsystem: "gateway",
		Name:      "connections_active",
		Help:      "Number of currently registered WebSocket connections.",
	})

	// EnvelopesProcessed counts dispatched inbound envelopes by
	// channel/type.
	EnvelopesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleet",
		Subsystem: "gateway",
		Name:      "envelopes_processed_total",
		Help:      "Inbound envelopes dispatched, by channel and type.",
	}, []string{"channel", "type"})

	// EvaluatorTickDuration observes wall-clock time per evaluator tick.
	EvaluatorTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fleet",
		Subsystem: "evaluator",
		Name:      "tick_duration_seconds",
		Help:      "Duration of a single alert-evaluator tick.",
		Buckets:   prometheus.DefBuckets,
	})

	// EvaluatorTicksSkipped counts ticks skipped by the reentrancy guard.
	EvaluatorTicksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fleet",
		Subsystem: "evaluator",
		Name:      "ticks_skipped_total",
		Help:      "Ticks skipped because a prior tick was still running.",
	})

	// NotificationsSent counts dispatcher delivery attempts by channel
	// type and outcome.
	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleet",
		Subsystem: "dispatcher",
		Name:      "notifications_total",
		Help:      "Notification delivery attempts, by channel type and outcome.",
	}, []string{"channel_type", "outcome"})
)
