package dca

import (
	"fmt"

	"github.com/tradeeon/condition-engine/internal/models"
	"github.com/tradeeon/condition-engine/pkg/utils"
)

// BotLister is the startup query surface for running bots, satisfied by
// internal/repository.BotRepository.
type BotLister interface {
	ByStatus(status models.BotStatus) ([]*models.Bot, error)
}

// OpenPositionLister is the startup query surface for open positions,
// satisfied by internal/repository.PositionRepository.
type OpenPositionLister interface {
	OpenByStatus(status models.BotStatus) ([]*models.Position, error)
}

// RecoveryResult summarizes what Recover reconstructed, for a startup log
// line (no API surface needed: spec.md §9 has no recovery endpoint).
type RecoveryResult struct {
	BotsRunning       int
	PositionsRestored int
}

// Recover rebuilds the executor's in-memory runtime state (per-bot
// serialization locks and active run IDs; DCA counts are not rebuilt and
// restart at zero) after a process restart, grounded on
// the teacher's RecoveryManager.Recover: load what was running, match it to
// persisted state, and resume monitoring — without the teacher's
// exchange-position-discovery step, since this engine's positions are
// already fully persisted rather than inferred from exchange balances.
func (e *Executor) Recover(bots BotLister, positions OpenPositionLister) (*RecoveryResult, error) {
	result := &RecoveryResult{}

	running, err := bots.ByStatus(models.BotStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("list running bots: %w", err)
	}
	result.BotsRunning = len(running)
	if len(running) == 0 {
		return result, nil
	}

	botByID := make(map[int64]*models.Bot, len(running))
	for _, bot := range running {
		botByID[bot.ID] = bot
		e.botLock(bot.ID) // pre-create the serialization lock
	}

	open, err := positions.OpenByStatus(models.BotStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}

	for _, pos := range open {
		bot, ok := botByID[pos.BotID]
		if !ok {
			// Position belongs to a bot that's no longer RUNNING; leave it
			// alone, the owning bot's Stop/Pause already persisted its state.
			continue
		}

		key := positionKey{botID: bot.ID, symbol: pos.Symbol}
		rt := e.runtimeFor(key)

		if pos.RunID != 0 {
			if run, err := e.runs.CurrentRunning(bot.ID); err == nil && run != nil && run.ID == pos.RunID {
				rt.runID = pos.RunID
			}
		}

		result.PositionsRestored++
		e.log.Info("recovered position", utils.BotID(bot.ID), utils.Symbol(pos.Symbol), utils.String("state", string(pos.State)))
	}

	e.log.Info("recovery complete",
		utils.Int("bots_running", result.BotsRunning),
		utils.Int("positions_restored", result.PositionsRestored))
	return result, nil
}
