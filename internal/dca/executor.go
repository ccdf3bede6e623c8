package dca

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tradeeon/condition-engine/internal/enginerr"
	"github.com/tradeeon/condition-engine/internal/eventbus"
	"github.com/tradeeon/condition-engine/internal/exchange"
	"github.com/tradeeon/condition-engine/internal/models"
	"github.com/tradeeon/condition-engine/pkg/utils"
)

// Sink is the order-placement surface the executor drives. Both
// *exchange.Binance (or any exchange.Exchange) and *paper.Simulator satisfy
// it structurally (spec.md §9: "pluggable sinks behind a common
// ExecuteOrder capability").
type Sink interface {
	PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error)
}

// PositionStore is the persistence surface for positions, satisfied by
// internal/repository.PositionRepository.
type PositionStore interface {
	GetOpen(botID int64, symbol string) (*models.Position, error)
	Create(pos *models.Position) (int64, error)
	Update(pos *models.Position) error
}

// OrderStore is the append-only order log, satisfied by
// internal/repository.OrderRepository.
type OrderStore interface {
	Create(o *models.Order) (int64, error)
}

// BotRunStore tracks a bot's accumulate-then-exit cycles, satisfied by
// internal/repository.BotRunRepository.
type BotRunStore interface {
	Start(botID int64) (int64, error)
	End(runID int64, status models.BotRunStatus, outcome string, stats map[string]float64) error
	CurrentRunning(botID int64) (*models.BotRun, error)
}

// positionKey scopes an executor's in-memory bookkeeping to one bot+symbol,
// since spec.md §4.7 specifies the state machine per symbol.
type positionKey struct {
	botID  int64
	symbol string
}

// runtime is the executor's per-position in-memory scratch state: the
// parts of spec.md §4.7-§4.9 that don't belong on the persisted Position
// row (custom_condition latches, the cached signal values for dynamic
// sizing, and the active run ID).
type runtime struct {
	runID       int64
	dcaCount    int                // DCA fills placed for this bot+symbol in the current run; tryDCA sums it over the bot's symbols (max_dcas_global)
	customLatch map[string]bool    // DCARule.Fingerprint -> fired since last DCA fill
	signals     map[string]float64 // last Values seen from any trigger, for dynamicSize
}

// Executor drives the DCA state machine for every models.BotTypeDCA bot,
// implementing notifier.Executor. Grounded on the teacher's RiskManager
// (risk.go): a single long-lived manager keyed by pair/bot ID, with
// per-pair locking serializing concurrent callbacks (spec.md §5: "per bot,
// events are processed serially").
type Executor struct {
	sink      Sink
	positions PositionStore
	orders    OrderStore
	runs      BotRunStore

	quoteAsset   string
	orderTimeout time.Duration

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex // botID -> serialization lock

	runtimeMu sync.Mutex
	runtimes  map[positionKey]*runtime

	log *utils.Logger
}

// defaultOrderTimeout is spec.md §5's mandated per-order placement deadline.
const defaultOrderTimeout = 15 * time.Second

// New constructs an Executor. sink is the order-placement target (a
// *paper.Simulator or a live exchange.Exchange).
func New(sink Sink, positions PositionStore, orders OrderStore, runs BotRunStore, quoteAsset string) *Executor {
	return &Executor{
		sink:         sink,
		positions:    positions,
		orders:       orders,
		runs:         runs,
		quoteAsset:   quoteAsset,
		orderTimeout: defaultOrderTimeout,
		locks:        make(map[int64]*sync.Mutex),
		runtimes:     make(map[positionKey]*runtime),
		log:          utils.L().WithComponent("dca"),
	}
}

// WithOrderTimeout overrides the per-order placement deadline, mirroring
// registry.Registry.WithPlaybooks' optional-chaining shape.
func (e *Executor) WithOrderTimeout(d time.Duration) *Executor {
	if d > 0 {
		e.orderTimeout = d
	}
	return e
}

func (e *Executor) botLock(botID int64) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[botID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[botID] = l
	}
	return l
}

func (e *Executor) runtimeFor(key positionKey) *runtime {
	e.runtimeMu.Lock()
	defer e.runtimeMu.Unlock()
	rt, ok := e.runtimes[key]
	if !ok {
		rt = &runtime{customLatch: make(map[string]bool), signals: make(map[string]float64)}
		e.runtimes[key] = rt
	}
	return rt
}

// Trigger implements notifier.Executor. It handles two kinds of trigger:
// the bot's entry fingerprint (opens a position from IDLE) and any
// custom_condition DCARule fingerprint (latches, to be consumed on the
// next Tick).
func (e *Executor) Trigger(ctx context.Context, bot *models.Bot, sub *models.Subscription, ev eventbus.Event) error {
	lock := e.botLock(bot.ID)
	lock.Lock()
	defer lock.Unlock()

	cfg := bot.Config
	key := positionKey{botID: bot.ID, symbol: ev.Symbol}
	rt := e.runtimeFor(key)
	for k, v := range ev.Values {
		rt.signals[k] = v
	}

	pos, err := e.loadOrInitPosition(bot, ev.Symbol)
	if err != nil {
		return err
	}

	if ev.Fingerprint == cfg.EntryFingerprint {
		if pos.State != models.PositionIdle {
			return nil // already accumulating or exiting; entry fingerprint re-firing is a no-op
		}
		return e.handleEntry(ctx, bot, pos, rt, ev)
	}

	for _, rule := range cfg.DCARules {
		if rule.Type == models.DCARuleCustomCondition && rule.Fingerprint == ev.Fingerprint {
			rt.customLatch[rule.Fingerprint] = true
		}
	}
	return nil
}

// Tick drives the price-based half of spec.md §4.7: DCA-rule evaluation
// (§4.8) followed by profit-taking (§4.9), both gated on ACCUMULATING.
// Callers (a polling loop over exchange.GetTicker / the paper simulator's
// known mark price) invoke this once per symbol per polling interval.
func (e *Executor) Tick(ctx context.Context, bot *models.Bot, symbol string, price float64, now time.Time) error {
	lock := e.botLock(bot.ID)
	lock.Lock()
	defer lock.Unlock()

	pos, err := e.positions.GetOpen(bot.ID, symbol)
	if err != nil {
		return err
	}
	if pos == nil || pos.State != models.PositionAccumulating {
		return nil
	}

	cfg := bot.Config
	key := positionKey{botID: bot.ID, symbol: symbol}
	rt := e.runtimeFor(key)

	if in := e.checkCooldown(cfg, pos, now); !in {
		if err := e.tryDCA(ctx, bot, pos, rt, price, now); err != nil {
			return err
		}
	}

	// tryDCA leaves pos.State unchanged on every path that returns nil;
	// this re-check is defensive.
	if pos.State != models.PositionAccumulating {
		return nil
	}

	return e.tryProfitTaking(ctx, bot, pos, price, now)
}

func (e *Executor) checkCooldown(cfg models.BotConfig, pos *models.Position, now time.Time) bool {
	if cfg.CooldownAfterEntry <= 0 || pos.LastEntryAt.IsZero() {
		return false
	}
	return now.Sub(pos.LastEntryAt) < cfg.CooldownAfterEntry
}

func (e *Executor) loadOrInitPosition(bot *models.Bot, symbol string) (*models.Position, error) {
	pos, err := e.positions.GetOpen(bot.ID, symbol)
	if err != nil {
		return nil, err
	}
	if pos != nil {
		return pos, nil
	}
	return &models.Position{BotID: bot.ID, Symbol: symbol, State: models.PositionIdle}, nil
}

// handleEntry implements spec.md §4.7's entry_trigger/IDLE transition.
func (e *Executor) handleEntry(ctx context.Context, bot *models.Bot, pos *models.Position, rt *runtime, ev eventbus.Event) error {
	cfg := bot.Config

	runID, err := e.ensureRun(bot, rt)
	if err != nil {
		return err
	}

	orderCtx, cancel := context.WithTimeout(ctx, e.orderTimeout)
	result, err := e.sink.PlaceOrder(orderCtx, exchange.OrderRequest{
		Symbol:   pos.Symbol,
		Side:     models.OrderSideBuy,
		Type:     models.OrderTypeMarket,
		QuoteQty: cfg.BaseOrderSize,
	})
	cancel()
	if err != nil {
		return e.handleOrderError(bot, pos, models.OrderSideBuy, err)
	}

	pos.RunID = runID
	pos.Quantity = result.FilledQty
	pos.AverageEntryPrice = result.AvgFillPrice
	pos.LastEntryPrice = result.AvgFillPrice
	pos.LastEntryAt = ev.TriggeredAt
	pos.TotalInvested = result.FilledQty * result.AvgFillPrice
	pos.EntryCount = 1
	pos.OpenedAt = ev.TriggeredAt
	if !CanTransition(pos.State, models.PositionAccumulating) {
		invalidTransitionsTotal.Inc()
		return &enginerr.InvalidStateTransition{BotID: bot.ID, From: string(pos.State), Event: "entry_trigger"}
	}
	pos.State = models.PositionAccumulating

	if err := e.persistPosition(bot, pos); err != nil {
		return err
	}
	if err := e.recordOrder(bot, pos, models.OrderSideBuy, result); err != nil {
		e.log.Warn("failed to persist entry order", utils.BotID(bot.ID), utils.Err(err))
	}

	entriesTotal.Inc()
	activePositions.Inc()
	e.log.Info("entry filled", utils.BotID(bot.ID), utils.Symbol(pos.Symbol), utils.Price(result.AvgFillPrice))
	return nil
}

// tryDCA evaluates every configured DCARule and fires the first one that
// matches and clears its caps, per spec.md §4.8.
func (e *Executor) tryDCA(ctx context.Context, bot *models.Bot, pos *models.Position, rt *runtime, price float64, now time.Time) error {
	cfg := bot.Config

	globalDCACount := 0
	e.runtimeMu.Lock()
	for key, other := range e.runtimes {
		if key.botID == bot.ID {
			globalDCACount += other.dcaCount
		}
	}
	e.runtimeMu.Unlock()

	for _, rule := range cfg.DCARules {
		latched := rt.customLatch[rule.Fingerprint]
		if !evaluateDCARule(rule, pos, price, latched) {
			continue
		}

		dcaIndex := pos.EntryCount - 1
		amount := dynamicSize(cfg.SafetyOrderSize*math.Pow(safetyScale(cfg.SafetyOrderVolumeScale), float64(dcaIndex)), rt.signals)

		if reason := checkCaps(cfg, pos, price, amount, globalDCACount); reason != capNone {
			dcaSkippedTotal.WithLabelValues(string(reason)).Inc()
			e.log.Debug("DCA skipped by cap", utils.BotID(bot.ID), utils.String("reason", string(reason)))
			continue
		}

		orderCtx, cancel := context.WithTimeout(ctx, e.orderTimeout)
		result, err := e.sink.PlaceOrder(orderCtx, exchange.OrderRequest{
			Symbol:   pos.Symbol,
			Side:     models.OrderSideBuy,
			Type:     models.OrderTypeMarket,
			QuoteQty: amount,
		})
		cancel()
		if err != nil {
			return e.handleOrderError(bot, pos, models.OrderSideBuy, err)
		}

		newQty := pos.Quantity + result.FilledQty
		pos.AverageEntryPrice = (pos.AverageEntryPrice*pos.Quantity + result.AvgFillPrice*result.FilledQty) / newQty
		pos.Quantity = newQty
		pos.LastEntryPrice = result.AvgFillPrice
		pos.LastEntryAt = now
		pos.TotalInvested += result.FilledQty * result.AvgFillPrice
		pos.EntryCount++

		if err := e.persistPosition(bot, pos); err != nil {
			return err
		}
		if err := e.recordOrder(bot, pos, models.OrderSideBuy, result); err != nil {
			e.log.Warn("failed to persist DCA order", utils.BotID(bot.ID), utils.Err(err))
		}

		rt.dcaCount++
		delete(rt.customLatch, rule.Fingerprint)
		dcaFillsTotal.Inc()
		e.log.Info("DCA fill", utils.BotID(bot.ID), utils.Symbol(pos.Symbol), utils.Price(result.AvgFillPrice))
		return nil
	}
	return nil
}

func safetyScale(scale float64) float64 {
	if scale <= 0 {
		return 1.0
	}
	return scale
}

// tryProfitTaking implements spec.md §4.9, checking partial targets, the
// trailing stop, and the time-based exit in that order; the first that
// fires places its sell and returns.
func (e *Executor) tryProfitTaking(ctx context.Context, bot *models.Bot, pos *models.Position, price float64, now time.Time) error {
	cfg := bot.Config

	if idx, sizePct, ok := checkPartialTargets(cfg, pos, price); ok {
		return e.executeExit(ctx, bot, pos, price, "partial_target", sizePct, func() {
			for len(pos.PartialTargetsFired) <= idx {
				pos.PartialTargetsFired = append(pos.PartialTargetsFired, false)
			}
			pos.PartialTargetsFired[idx] = true
		})
	}

	if checkTrailingStop(cfg, pos, price) {
		return e.executeExit(ctx, bot, pos, price, "trailing_stop", 1.0, nil)
	}

	if checkTimeExit(cfg, pos, price, now) {
		return e.executeExit(ctx, bot, pos, price, "time_exit", 1.0, nil)
	}

	// No exit fired (executeExit persists the position itself), but
	// checkTrailingStop may have armed the trail; persist that side effect.
	if err := e.persistPosition(bot, pos); err != nil {
		return err
	}
	return nil
}

// executeExit sells sizePct of the remaining position, transitioning to
// EXITING for the duration of the order and back to ACCUMULATING (partial)
// or IDLE (full close) once filled. onPartialFired records a one-shot
// partial-target flag before the full-close check; nil for mechanisms with
// no per-target bookkeeping.
func (e *Executor) executeExit(ctx context.Context, bot *models.Bot, pos *models.Position, price float64, mechanism string, sizePct float64, onPartialFired func()) error {
	if !CanTransition(pos.State, models.PositionExiting) {
		invalidTransitionsTotal.Inc()
		return &enginerr.InvalidStateTransition{BotID: bot.ID, From: string(pos.State), Event: "exit:" + mechanism}
	}
	pos.State = models.PositionExiting

	sizePct = math.Max(0, math.Min(1, sizePct))
	qty := pos.Quantity * sizePct
	if qty <= 0 {
		pos.State = models.PositionAccumulating
		return nil
	}

	orderCtx, cancel := context.WithTimeout(ctx, e.orderTimeout)
	result, err := e.sink.PlaceOrder(orderCtx, exchange.OrderRequest{
		Symbol:   pos.Symbol,
		Side:     models.OrderSideSell,
		Type:     models.OrderTypeMarket,
		Quantity: qty,
	})
	cancel()
	if err != nil {
		pos.State = models.PositionAccumulating
		return e.handleOrderError(bot, pos, models.OrderSideSell, err)
	}

	if onPartialFired != nil {
		onPartialFired()
	}

	pos.Quantity -= result.FilledQty
	fullClose := pos.Quantity <= 1e-12
	if fullClose {
		pos.Quantity = 0
		pos.State = models.PositionIdle
		resetPositionFlags(pos)
		if err := e.endRun(bot, "closed"); err != nil {
			e.log.Warn("failed to end bot run", utils.BotID(bot.ID), utils.Err(err))
		}
	} else {
		pos.State = models.PositionAccumulating
	}

	if err := e.persistPosition(bot, pos); err != nil {
		return err
	}
	if err := e.recordOrder(bot, pos, models.OrderSideSell, result); err != nil {
		e.log.Warn("failed to persist exit order", utils.BotID(bot.ID), utils.Err(err))
	}

	exitsTotal.WithLabelValues(mechanism, fmt.Sprint(fullClose)).Inc()
	if fullClose {
		activePositions.Dec()
	}
	e.log.Info("exit filled", utils.BotID(bot.ID), utils.Symbol(pos.Symbol), utils.String("mechanism", mechanism), utils.Price(result.AvgFillPrice), utils.Bool("full_close", fullClose))
	return nil
}

func (e *Executor) ensureRun(bot *models.Bot, rt *runtime) (int64, error) {
	if rt.runID != 0 {
		return rt.runID, nil
	}
	if run, err := e.runs.CurrentRunning(bot.ID); err == nil && run != nil {
		rt.runID = run.ID
		return rt.runID, nil
	}
	id, err := e.runs.Start(bot.ID)
	if err != nil {
		return 0, err
	}
	rt.runID = id
	return id, nil
}

func (e *Executor) endRun(bot *models.Bot, outcome string) error {
	key := positionKey{botID: bot.ID, symbol: bot.Symbol}
	rt := e.runtimeFor(key)
	if rt.runID == 0 {
		return nil
	}
	status := models.BotRunStatusCompleted
	switch outcome {
	case "error":
		status = models.BotRunStatusError
	case "stopped":
		status = models.BotRunStatusStopped
	}
	err := e.runs.End(rt.runID, status, outcome, map[string]float64{"dca_fills": float64(rt.dcaCount)})
	rt.runID = 0
	rt.dcaCount = 0
	return err
}

func (e *Executor) persistPosition(bot *models.Bot, pos *models.Position) error {
	if pos.ID == 0 {
		id, err := e.positions.Create(pos)
		if err != nil {
			return err
		}
		pos.ID = id
		return nil
	}
	return e.positions.Update(pos)
}

func (e *Executor) recordOrder(bot *models.Bot, pos *models.Position, side models.OrderSide, result *exchange.OrderResult) error {
	_, err := e.orders.Create(&models.Order{
		RunID:      pos.RunID,
		PositionID: pos.ID,
		BotID:      bot.ID,
		Side:       side,
		Type:       models.OrderTypeMarket,
		Status:     models.OrderStatusFilled,
		Quantity:   result.FilledQty,
		FilledQty:  result.FilledQty,
		Price:      result.AvgFillPrice,
		Fee:        result.Fee,
		FilledAt:   result.FilledAt,
	})
	return err
}

// handleOrderError applies spec.md §7's error-kind policy: an
// InvariantViolation is fatal for the bot run (transition to STOPPED,
// error the run record, propagate the error); an ExchangeRejection (or
// anything else) is recorded on the order row and swallowed, leaving the
// executor in its current state.
func (e *Executor) handleOrderError(bot *models.Bot, pos *models.Position, side models.OrderSide, cause error) error {
	var violation *enginerr.InvariantViolation
	if errors.As(cause, &violation) {
		invariantViolationsTotal.Inc()
		pos.State = models.PositionStopped
		if err := e.persistPosition(bot, pos); err != nil {
			e.log.Error("failed to persist STOPPED position after invariant violation", utils.BotID(bot.ID), utils.Err(err))
		}
		if err := e.endRun(bot, "error"); err != nil {
			e.log.Error("failed to end bot run after invariant violation", utils.BotID(bot.ID), utils.Err(err))
		}
		e.log.Error("fatal invariant violation, bot stopped", utils.BotID(bot.ID), utils.Symbol(pos.Symbol), utils.Err(cause))
		return cause
	}
	return e.recordRejection(bot, pos, side, cause)
}

// recordRejection logs an ExchangeRejection on the order row and leaves the
// executor in its current state (spec.md §7: "executor remains in its
// current state").
func (e *Executor) recordRejection(bot *models.Bot, pos *models.Position, side models.OrderSide, cause error) error {
	_, _ = e.orders.Create(&models.Order{
		RunID:      pos.RunID,
		PositionID: pos.ID,
		BotID:      bot.ID,
		Side:       side,
		Type:       models.OrderTypeMarket,
		Status:     models.OrderStatusError,
	})
	e.log.Warn("order rejected", utils.BotID(bot.ID), utils.Symbol(pos.Symbol), utils.Err(cause))
	return nil
}

// Pause, Resume, and Stop implement spec.md §4.7's external bot commands.

func (e *Executor) Pause(bot *models.Bot, symbol string) error {
	lock := e.botLock(bot.ID)
	lock.Lock()
	defer lock.Unlock()

	pos, err := e.positions.GetOpen(bot.ID, symbol)
	if err != nil || pos == nil {
		return err
	}
	if !CanTransition(pos.State, models.PositionPaused) {
		invalidTransitionsTotal.Inc()
		return &enginerr.InvalidStateTransition{BotID: bot.ID, From: string(pos.State), Event: "pause"}
	}
	pos.State = models.PositionPaused
	return e.persistPosition(bot, pos)
}

func (e *Executor) Resume(bot *models.Bot, symbol string) error {
	lock := e.botLock(bot.ID)
	lock.Lock()
	defer lock.Unlock()

	pos, err := e.positions.GetOpen(bot.ID, symbol)
	if err != nil || pos == nil {
		return err
	}
	target := models.PositionIdle
	if pos.Quantity > 0 {
		target = models.PositionAccumulating
	}
	if !CanTransition(pos.State, target) {
		invalidTransitionsTotal.Inc()
		return &enginerr.InvalidStateTransition{BotID: bot.ID, From: string(pos.State), Event: "resume"}
	}
	pos.State = target
	return e.persistPosition(bot, pos)
}

func (e *Executor) Stop(bot *models.Bot, symbol string) error {
	lock := e.botLock(bot.ID)
	lock.Lock()
	defer lock.Unlock()

	pos, err := e.positions.GetOpen(bot.ID, symbol)
	if err != nil || pos == nil {
		return err
	}
	if !CanTransition(pos.State, models.PositionStopped) {
		invalidTransitionsTotal.Inc()
		return &enginerr.InvalidStateTransition{BotID: bot.ID, From: string(pos.State), Event: "stop"}
	}
	pos.State = models.PositionStopped
	if err := e.persistPosition(bot, pos); err != nil {
		return err
	}
	return e.endRun(bot, "stopped")
}
