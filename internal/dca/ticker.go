package dca

import (
	"context"
	"time"

	"github.com/tradeeon/condition-engine/internal/exchange"
	"github.com/tradeeon/condition-engine/internal/models"
	"github.com/tradeeon/condition-engine/pkg/utils"
)

// PriceSource is the mark-price surface the ticker loop polls, satisfied by
// both ExchangePriceSource (wrapping a live exchange.Exchange) and
// *paper.Simulator.
type PriceSource interface {
	GetName() string
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// ExchangePriceSource adapts exchange.Exchange's GetTicker poll to
// PriceSource, for live trading.
type ExchangePriceSource struct {
	Exchange exchange.Exchange
}

func (e ExchangePriceSource) GetName() string { return e.Exchange.GetName() }

func (e ExchangePriceSource) LastPrice(ctx context.Context, symbol string) (float64, error) {
	t, err := e.Exchange.GetTicker(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return t.LastPrice, nil
}

// RunningBotLister feeds the ticker loop the set of bots whose positions
// need price-driven evaluation.
type RunningBotLister interface {
	ByStatus(status models.BotStatus) ([]*models.Bot, error)
}

// TickerLoop drives Executor.Tick on an interval, grounded on the teacher's
// exitConditionChecker (internal/bot/engine.go): a single ticker.Ticker
// fanning out to a per-item check on every tick, since this engine has no
// push-based price feed equivalent to the DCA executor's Tick input
// (spec.md §9: "executors receive TriggerEvent and Tick").
type TickerLoop struct {
	executor *Executor
	bots     RunningBotLister
	price    PriceSource
	interval time.Duration
	log      *utils.Logger
}

// NewTickerLoop constructs a TickerLoop polling price at interval.
func NewTickerLoop(executor *Executor, bots RunningBotLister, price PriceSource, interval time.Duration) *TickerLoop {
	if interval <= 0 {
		interval = time.Second
	}
	return &TickerLoop{
		executor: executor,
		bots:     bots,
		price:    price,
		interval: interval,
		log:      utils.L().WithComponent("dca.ticker"),
	}
}

// Run blocks, polling every t.interval until ctx is cancelled.
func (t *TickerLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tickAll(ctx)
		}
	}
}

func (t *TickerLoop) tickAll(ctx context.Context) {
	bots, err := t.bots.ByStatus(models.BotStatusRunning)
	if err != nil {
		t.log.Warn("failed to list running bots for tick", utils.Err(err))
		return
	}

	now := time.Now()
	for _, bot := range bots {
		if bot.Type != models.BotTypeDCA {
			continue
		}
		price, err := t.price.LastPrice(ctx, bot.Symbol)
		if err != nil {
			t.log.Warn("failed to fetch price for tick", utils.BotID(bot.ID), utils.Symbol(bot.Symbol), utils.Err(err))
			continue
		}
		if err := t.executor.Tick(ctx, bot, bot.Symbol, price, now); err != nil {
			t.log.Error("tick failed", utils.BotID(bot.ID), utils.Symbol(bot.Symbol), utils.Err(err))
		}
	}
}
