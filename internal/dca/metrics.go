package dca

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var entriesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "condition_engine",
		Subsystem: "dca",
		Name:      "entries_total",
		Help:      "Entry orders placed, opening a new position",
	},
)

var dcaFillsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "condition_engine",
		Subsystem: "dca",
		Name:      "dca_fills_total",
		Help:      "Safety-order DCA fills placed",
	},
)

var dcaSkippedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "condition_engine",
		Subsystem: "dca",
		Name:      "dca_skipped_total",
		Help:      "DCA rule matches that were not placed, by cap reason",
	},
	[]string{"reason"},
)

var exitsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "condition_engine",
		Subsystem: "dca",
		Name:      "exits_total",
		Help:      "Profit-taking exits placed, by mechanism and whether they closed the position",
	},
	[]string{"mechanism", "full_close"},
)

var invalidTransitionsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "condition_engine",
		Subsystem: "dca",
		Name:      "invalid_transitions_total",
		Help:      "Rejected state-machine transitions",
	},
)

var invariantViolationsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "condition_engine",
		Subsystem: "dca",
		Name:      "invariant_violations_total",
		Help:      "Fatal invariant violations that stopped a bot run",
	},
)

var activePositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "condition_engine",
		Subsystem: "dca",
		Name:      "active_positions",
		Help:      "Positions currently in ACCUMULATING or EXITING",
	},
)
