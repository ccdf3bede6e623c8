// Package dca implements the DCA bot executor (spec.md §4.7-§4.9): a
// per-bot state machine that accumulates a position on entry/DCA triggers
// and exits it via partial targets, a trailing stop, or a time-based exit.
// Grounded on the teacher's internal/bot package: state_machine.go's
// ValidTransitions/CanTransition shape, risk.go's CheckStopLoss/HandleStopLoss
// pattern for profit-taking, and recovery.go's startup reconciliation idiom.
package dca

import "github.com/tradeeon/condition-engine/internal/models"

// ValidTransitions mirrors the teacher's string-keyed transition table,
// keyed by models.PositionState instead: spec.md §4.7's event/transition
// list collapsed into the set of states each state may become.
var ValidTransitions = map[models.PositionState][]models.PositionState{
	models.PositionIdle:         {models.PositionAccumulating, models.PositionPaused, models.PositionStopped},
	models.PositionAccumulating: {models.PositionExiting, models.PositionPaused, models.PositionStopped},
	models.PositionExiting:      {models.PositionAccumulating, models.PositionIdle, models.PositionPaused, models.PositionStopped},
	models.PositionPaused:       {models.PositionAccumulating, models.PositionIdle, models.PositionStopped},
	models.PositionStopped:      {},
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to models.PositionState) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StateInfo returns a human-readable description of s, for status APIs.
func StateInfo(s models.PositionState) string {
	switch s {
	case models.PositionIdle:
		return "waiting for an entry trigger"
	case models.PositionAccumulating:
		return "position open, accumulating on DCA triggers"
	case models.PositionExiting:
		return "profit-taking or emergency exit in progress"
	case models.PositionPaused:
		return "paused, not consuming triggers"
	case models.PositionStopped:
		return "stopped"
	default:
		return "unknown state"
	}
}

// IsActive reports whether s participates in trigger/tick processing.
func IsActive(s models.PositionState) bool {
	return s == models.PositionAccumulating || s == models.PositionExiting
}

// HasOpenPosition reports whether s implies a non-zero qty is expected.
// PAUSED can carry a residual position too (spec.md §4.7's resume command
// picks ACCUMULATING or IDLE based on it), so callers pausing mid-position
// must check qty directly rather than relying on state alone.
func HasOpenPosition(s models.PositionState) bool {
	return s == models.PositionAccumulating || s == models.PositionExiting
}
