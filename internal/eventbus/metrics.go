package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// droppedEvents counts events dropped from a subscriber's mailbox because
// it was full when delivery was attempted, tagged by subscriber name.
var droppedEvents = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "condition_engine",
		Subsystem: "eventbus",
		Name:      "dropped_events_total",
		Help:      "Events dropped from a subscriber's mailbox because it was full",
	},
	[]string{"subscriber"},
)
