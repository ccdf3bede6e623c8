package dca

import (
	"time"

	"github.com/tradeeon/condition-engine/internal/models"
)

func unrealizedPnlPct(pos *models.Position, price float64) float64 {
	if pos.AverageEntryPrice <= 0 {
		return 0
	}
	return (price - pos.AverageEntryPrice) / pos.AverageEntryPrice * 100
}

// checkPartialTargets returns the first not-yet-fired partial target whose
// gain threshold price satisfies, per spec.md §4.9.1. ok is false if none
// fires this tick.
func checkPartialTargets(cfg models.BotConfig, pos *models.Position, price float64) (index int, sizePct float64, ok bool) {
	if pos.AverageEntryPrice <= 0 {
		return 0, 0, false
	}
	pnlPct := unrealizedPnlPct(pos, price)
	for i, target := range cfg.PartialTargets {
		if i < len(pos.PartialTargetsFired) && pos.PartialTargetsFired[i] {
			continue
		}
		if pnlPct >= target.TriggerPct {
			return i, target.Quantity, true
		}
	}
	return 0, 0, false
}

// checkTrailingStop implements spec.md §4.9.2: arms once unrealized PNL
// reaches TrailingArmPct, tracks the running peak, and fires once price
// retraces trail_pct off that peak. Mutates pos.TrailingArmed/TrailingPeak
// as a side effect — callers must persist pos afterward.
func checkTrailingStop(cfg models.BotConfig, pos *models.Position, price float64) bool {
	if cfg.TrailingStopPct <= 0 || pos.AverageEntryPrice <= 0 {
		return false
	}

	if !pos.TrailingArmed {
		if cfg.TrailingArmPct > 0 && unrealizedPnlPct(pos, price) >= cfg.TrailingArmPct {
			pos.TrailingArmed = true
			pos.TrailingPeak = price
		}
		return false
	}

	if price > pos.TrailingPeak {
		pos.TrailingPeak = price
	}
	return price <= pos.TrailingPeak*(1-cfg.TrailingStopPct/100)
}

// checkTimeExit implements spec.md §4.9.3.
func checkTimeExit(cfg models.BotConfig, pos *models.Position, price float64, now time.Time) bool {
	if cfg.TimeExitDuration <= 0 || pos.OpenedAt.IsZero() {
		return false
	}
	if now.Sub(pos.OpenedAt) < cfg.TimeExitDuration {
		return false
	}
	return unrealizedPnlPct(pos, price) >= cfg.MinTimeExitPct
}

// resetPositionFlags clears every per-position profit-taking flag, per
// spec.md §4.9's "on full close ... all per-position flags reset".
func resetPositionFlags(pos *models.Position) {
	pos.TrailingArmed = false
	pos.TrailingPeak = 0
	pos.PartialTargetsFired = nil
}
