// Package paper implements the paper-trading simulator (spec.md §4.10): it
// fulfils buy/sell orders against the last fetched mark price without
// touching the exchange, keeping a per-bot virtual quote balance subject to
// the balance-conservation law. Grounded on the teacher's fill-accounting
// idiom in internal/bot/order.go (OrderValidator's lot-size/notional
// checks) and its math helpers in pkg/utils/math.go, which this package
// reuses directly rather than re-deriving fill arithmetic.
package paper

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tradeeon/condition-engine/internal/enginerr"
	"github.com/tradeeon/condition-engine/internal/exchange"
	"github.com/tradeeon/condition-engine/internal/models"
	"github.com/tradeeon/condition-engine/pkg/utils"
)

// Balance is a simulator's quote-asset balance snapshot.
type Balance struct {
	Free  float64
	Total float64
}

type pendingLimit struct {
	id  int64
	req exchange.OrderRequest
}

// Simulator holds one bot's virtual quote balance and fills market/limit
// orders against mark prices pushed in via UpdateMarkPrice. It implements
// the same PlaceOrder signature as exchange.Exchange, so the DCA executor
// can treat a live exchange client and a Simulator as interchangeable
// order sinks (spec.md §9: "pluggable sinks behind a common ExecuteOrder
// capability").
type Simulator struct {
	botID       int64
	quoteAsset  string
	feeRate     float64 // fraction of notional, e.g. 0.001 = 10 bps
	slippageBps float64

	mu      sync.Mutex
	free    utils.Ticks
	initial utils.Ticks
	// netOutflow accumulates, tick by tick, the net cash the simulated
	// book has paid out: +cost for each buy, -proceeds for each sell. The
	// balance law (spec.md §4.10, resolved per DESIGN.md's Open Question
	// decision) is initial - free == netOutflow, which collapses to the
	// spec's literal "sum of fill_qty*fill_price+fees" for a buy-only
	// sequence and generalizes cleanly to mixed buy/sell sequences.
	netOutflow utils.Ticks

	marks    map[string]float64
	pending  []pendingLimit
	nextID   int64
	log      *utils.Logger
}

// NewSimulator constructs a Simulator for botID with initialBalance units
// of quoteAsset, feeRate as a fraction of notional, and slippageBps applied
// unfavorably to every market fill.
func NewSimulator(botID int64, quoteAsset string, initialBalance, feeRate, slippageBps float64) *Simulator {
	return &Simulator{
		botID:       botID,
		quoteAsset:  quoteAsset,
		feeRate:     feeRate,
		slippageBps: slippageBps,
		free:        utils.ToTicks(initialBalance),
		initial:     utils.ToTicks(initialBalance),
		marks:       make(map[string]float64),
		log:         utils.L().WithComponent("paper").With(utils.BotID(botID)),
	}
}

// GetName reports the pseudo-exchange identifier, matching
// exchange.Exchange.GetName's shape for logging/metrics symmetry.
func (s *Simulator) GetName() string { return "paper" }

// Balance returns the simulator's current free/total quote balance. Locked
// funds don't exist in this engine's model (no resting market orders), so
// Total always equals Free.
func (s *Simulator) Balance() Balance {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.free.Float64()
	return Balance{Free: f, Total: f}
}

// UpdateMarkPrice records symbol's latest price and attempts to fill any
// resting limit orders it now crosses.
func (s *Simulator) UpdateMarkPrice(symbol string, price float64) {
	s.mu.Lock()
	s.marks[symbol] = price
	toFill := s.crossedLimitsLocked(symbol, price)
	s.mu.Unlock()

	for _, p := range toFill {
		if _, err := s.fill(p.req, price); err != nil {
			s.log.Warn("resting limit order failed to fill", utils.Symbol(symbol), utils.Err(err))
		}
	}
}

// LastPrice returns the most recent mark price pushed via UpdateMarkPrice,
// satisfying dca.PriceSource so the ticker loop can drive Tick off the
// simulator's own book in paper-trading mode.
func (s *Simulator) LastPrice(ctx context.Context, symbol string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	price, known := s.marks[symbol]
	if !known {
		return 0, &enginerr.ExchangeRejection{Symbol: symbol, Code: "no_mark_price", Message: "no mark price observed yet for symbol"}
	}
	return price, nil
}

// crossedLimitsLocked removes and returns pending limit orders on symbol
// that price now satisfies. Must be called with s.mu held.
func (s *Simulator) crossedLimitsLocked(symbol string, price float64) []pendingLimit {
	var crossed []pendingLimit
	remaining := s.pending[:0]
	for _, p := range s.pending {
		if p.req.Symbol != symbol {
			remaining = append(remaining, p)
			continue
		}
		favorable := (p.req.Side == models.OrderSideBuy && price <= p.req.LimitPrice) ||
			(p.req.Side == models.OrderSideSell && price >= p.req.LimitPrice)
		if favorable {
			crossed = append(crossed, p)
		} else {
			remaining = append(remaining, p)
		}
	}
	s.pending = remaining
	pendingLimitOrders.Set(float64(len(s.pending)))
	return crossed
}

// PlaceOrder fills req against the simulator's last known mark price for
// req.Symbol. Market orders fill immediately; limit orders rest until
// UpdateMarkPrice reports a favorable cross (spec.md §4.10: "there are no
// partial fills").
func (s *Simulator) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	s.mu.Lock()
	mark, known := s.marks[req.Symbol]
	s.mu.Unlock()
	if !known {
		rejectionsTotal.WithLabelValues("no_mark_price").Inc()
		return nil, &enginerr.ExchangeRejection{Symbol: req.Symbol, Code: "no_mark_price", Message: "no mark price observed yet for symbol"}
	}

	if req.Type == models.OrderTypeLimit {
		s.mu.Lock()
		s.nextID++
		id := s.nextID
		s.pending = append(s.pending, pendingLimit{id: id, req: req})
		pendingLimitOrders.Set(float64(len(s.pending)))
		s.mu.Unlock()
		return &exchange.OrderResult{
			OrderID: fmt.Sprintf("paper-limit-%d", id),
			Symbol:  req.Symbol,
			Side:    req.Side,
			Status:  exchange.OrderStatusPartial, // resting, not yet filled
		}, nil
	}

	return s.fill(req, mark)
}

// fill executes req immediately at markPrice plus slippage, updating the
// virtual balance and checking the balance law. Grounded on
// pkg/utils/math.go's SimulateMarketBuy/Sell: a synthetic single-level
// order book at the slippage-adjusted price stands in for the real book
// the teacher's arbitrage math walked.
func (s *Simulator) fill(req exchange.OrderRequest, markPrice float64) (*exchange.OrderResult, error) {
	qty := req.Quantity
	if qty <= 0 && req.QuoteQty > 0 {
		qty = req.QuoteQty / markPrice
	}
	if qty <= 0 {
		rejectionsTotal.WithLabelValues("zero_quantity").Inc()
		return nil, &enginerr.ExchangeRejection{Symbol: req.Symbol, Code: "zero_quantity", Message: "order quantity resolves to zero"}
	}

	slipFrac := s.slippageBps / 10000
	var book []utils.OrderBookLevel
	var avgPrice, filled float64
	if req.Side == models.OrderSideBuy {
		book = []utils.OrderBookLevel{{Price: markPrice * (1 + slipFrac), Volume: math.MaxFloat64 / 2}}
		avgPrice, filled, _ = utils.SimulateMarketBuy(book, qty)
	} else {
		book = []utils.OrderBookLevel{{Price: markPrice * (1 - slipFrac), Volume: math.MaxFloat64 / 2}}
		avgPrice, filled, _ = utils.SimulateMarketSell(book, qty)
	}
	if filled <= 0 {
		rejectionsTotal.WithLabelValues("no_fill").Inc()
		return nil, &enginerr.ExchangeRejection{Symbol: req.Symbol, Code: "no_fill", Message: "simulated order book produced no fill"}
	}

	notional := filled * avgPrice
	fee := utils.ToTicks(notional * s.feeRate).Float64()

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Side == models.OrderSideBuy {
		cost := utils.ToTicks(notional + fee)
		if cost > s.free {
			rejectionsTotal.WithLabelValues("insufficient_balance").Inc()
			return nil, &enginerr.ExchangeRejection{Symbol: req.Symbol, Code: "insufficient_balance", Message: "insufficient paper balance for buy"}
		}
		s.free = s.free.Sub(cost)
		s.netOutflow = s.netOutflow.Add(cost)
	} else {
		proceeds := utils.ToTicks(notional - fee)
		s.free = s.free.Add(proceeds)
		s.netOutflow = s.netOutflow.Sub(proceeds)
	}

	if !utils.TicksEqual(s.initial.Sub(s.free).Float64(), s.netOutflow.Float64()) {
		balanceViolationsTotal.Inc()
		return nil, &enginerr.InvariantViolation{
			Invariant: "paper_balance_law",
			Detail:    fmt.Sprintf("bot %d: initial-free=%.8f netOutflow=%.8f", s.botID, s.initial.Sub(s.free).Float64(), s.netOutflow.Float64()),
		}
	}

	fillsTotal.WithLabelValues(string(req.Side), string(req.Type)).Inc()
	return &exchange.OrderResult{
		OrderID:      fmt.Sprintf("paper-%d-%d", s.botID, time.Now().UnixNano()),
		Symbol:       req.Symbol,
		Side:         req.Side,
		FilledQty:    filled,
		AvgFillPrice: avgPrice,
		Fee:          fee,
		Status:       exchange.OrderStatusFilled,
		FilledAt:     time.Now(),
	}, nil
}
