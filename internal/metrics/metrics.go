// Package metrics holds the worker's Prometheus collectors. They register on
// the default registry and are served at /metrics by the status API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "matchiq"

var (
	// TicksTotal counts scan ticks by result ("ok", "error", "idle").
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "ticks_total",
		Help:      "Scan ticks by result",
	}, []string{"result"})

	// TickDuration tracks wall time per scan tick.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "tick_duration_seconds",
		Help:      "Scan tick duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	})

	// FixturesSkipped counts live fixtures dropped by the per-tick limit.
	FixturesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "fixtures_skipped_total",
		Help:      "Live fixtures skipped by the fixture limit",
	})

	// Evaluations counts strategy evaluations by outcome
	// ("passed", "failed", "dedup_hit", "error").
	Evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "evaluations_total",
		Help:      "Strategy/match evaluations by outcome",
	}, []string{"outcome"})

	// Triggers counts commits through the dedup gate by transition
	// ("recorded", "healed").
	Triggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dedup",
		Name:      "commits_total",
		Help:      "Durable trigger commits by transition",
	}, []string{"transition"})

	// Notifications counts delivery attempts by status ("sent", "retry", "failed").
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "deliveries_total",
		Help:      "Notification delivery attempts by status",
	}, []string{"status"})

	// UpstreamRequests counts provider HTTP calls by endpoint and status class.
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "requests_total",
		Help:      "Upstream provider requests by endpoint and result",
	}, []string{"endpoint", "result"})
)
