package evaluator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cycleDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "condition_engine",
		Subsystem: "evaluator",
		Name:      "cycle_duration_seconds",
		Help:      "Wall-clock duration of one evaluator cycle",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	},
)

var fingerprintsEvaluated = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "condition_engine",
		Subsystem: "evaluator",
		Name:      "fingerprints_evaluated_total",
		Help:      "Fingerprints evaluated across all cycles",
	},
)

var fingerprintsTriggered = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "condition_engine",
		Subsystem: "evaluator",
		Name:      "fingerprints_triggered_total",
		Help:      "Fingerprints whose evaluation emitted a trigger event",
	},
)

var groupsSkipped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "condition_engine",
		Subsystem: "evaluator",
		Name:      "groups_skipped_total",
		Help:      "(symbol, timeframe) groups skipped in a cycle due to market-data failure",
	},
	[]string{"symbol", "timeframe"},
)
