package notifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var dispatched = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "condition_engine",
		Subsystem: "notifier",
		Name:      "dispatched_total",
		Help:      "Triggers dispatched to a bot executor, by bot type",
	},
	[]string{"bot_type"},
)

var skipped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "condition_engine",
		Subsystem: "notifier",
		Name:      "skipped_total",
		Help:      "Triggers not dispatched, by reason (bot_not_running, bot_not_found, no_executor)",
	},
	[]string{"reason"},
)

var reconcileDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "condition_engine",
		Subsystem: "notifier",
		Name:      "reconcile_duration_seconds",
		Help:      "Wall-clock duration of one subscription reconciliation pass",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	},
)

var activeSubscriptions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "condition_engine",
		Subsystem: "notifier",
		Name:      "active_subscriptions",
		Help:      "Subscriptions currently bound to an event bus handler",
	},
)
