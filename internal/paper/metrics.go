package paper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var fillsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "condition_engine",
		Subsystem: "paper",
		Name:      "fills_total",
		Help:      "Paper-trading fills, by side and order type",
	},
	[]string{"side", "type"},
)

var rejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "condition_engine",
		Subsystem: "paper",
		Name:      "rejections_total",
		Help:      "Paper orders rejected for insufficient balance or invalid input, by reason",
	},
	[]string{"reason"},
)

var balanceViolationsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "condition_engine",
		Subsystem: "paper",
		Name:      "balance_violations_total",
		Help:      "Balance-law invariant violations detected in the paper simulator (fatal, spec.md §4.10)",
	},
)

var pendingLimitOrders = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "condition_engine",
		Subsystem: "paper",
		Name:      "pending_limit_orders",
		Help:      "Limit orders currently resting, waiting to cross the mark price",
	},
)
