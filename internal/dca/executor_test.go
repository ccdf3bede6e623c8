package dca

import (
	"context"
	"testing"
	"time"

	"github.com/tradeeon/condition-engine/internal/enginerr"
	"github.com/tradeeon/condition-engine/internal/eventbus"
	"github.com/tradeeon/condition-engine/internal/exchange"
	"github.com/tradeeon/condition-engine/internal/models"
)

type mockSink struct {
	placeOrder func(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error)
	calls      []exchange.OrderRequest
}

func (m *mockSink) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	m.calls = append(m.calls, req)
	return m.placeOrder(ctx, req)
}

func fillAt(price float64) func(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	return func(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
		qty := req.Quantity
		if qty == 0 && req.QuoteQty > 0 {
			qty = req.QuoteQty / price
		}
		return &exchange.OrderResult{
			OrderID:      "1",
			Symbol:       req.Symbol,
			Side:         req.Side,
			FilledQty:    qty,
			AvgFillPrice: price,
			Status:       exchange.OrderStatusFilled,
			FilledAt:     time.Now(),
		}, nil
	}
}

type mockPositions struct {
	byKey  map[positionKey]*models.Position
	nextID int64
}

func newMockPositions() *mockPositions {
	return &mockPositions{byKey: make(map[positionKey]*models.Position)}
}

func (m *mockPositions) GetOpen(botID int64, symbol string) (*models.Position, error) {
	pos, ok := m.byKey[positionKey{botID, symbol}]
	if !ok || pos.State == models.PositionIdle || pos.State == models.PositionStopped {
		return nil, nil
	}
	return pos, nil
}

func (m *mockPositions) Create(pos *models.Position) (int64, error) {
	m.nextID++
	pos.ID = m.nextID
	m.byKey[positionKey{pos.BotID, pos.Symbol}] = pos
	return pos.ID, nil
}

func (m *mockPositions) Update(pos *models.Position) error {
	m.byKey[positionKey{pos.BotID, pos.Symbol}] = pos
	return nil
}

type mockOrders struct {
	created []*models.Order
}

func (m *mockOrders) Create(o *models.Order) (int64, error) {
	m.created = append(m.created, o)
	return int64(len(m.created)), nil
}

type mockRuns struct {
	nextID int64
	ended  []models.BotRunStatus
}

func (m *mockRuns) Start(botID int64) (int64, error) {
	m.nextID++
	return m.nextID, nil
}

func (m *mockRuns) End(runID int64, status models.BotRunStatus, outcome string, stats map[string]float64) error {
	m.ended = append(m.ended, status)
	return nil
}

func (m *mockRuns) CurrentRunning(botID int64) (*models.BotRun, error) {
	return nil, nil
}

func testBot(cfg models.BotConfig) *models.Bot {
	return &models.Bot{ID: 1, Type: models.BotTypeDCA, Symbol: "BTCUSDT", Status: models.BotStatusRunning, Config: cfg}
}

func TestExecutorHandleEntryOpensPosition(t *testing.T) {
	sink := &mockSink{placeOrder: fillAt(100)}
	positions := newMockPositions()
	orders := &mockOrders{}
	runs := &mockRuns{}
	exec := New(sink, positions, orders, runs, "USDT")

	bot := testBot(models.BotConfig{EntryFingerprint: "entry-fp", BaseOrderSize: 50})
	ev := eventbus.Event{Fingerprint: "entry-fp", Symbol: "BTCUSDT", TriggeredAt: time.Now()}

	if err := exec.Trigger(context.Background(), bot, &models.Subscription{}, ev); err != nil {
		t.Fatalf("Trigger returned error: %v", err)
	}

	pos, err := positions.GetOpen(bot.ID, "BTCUSDT")
	if err != nil || pos == nil {
		t.Fatalf("expected open position, got %v, err %v", pos, err)
	}
	if pos.State != models.PositionAccumulating {
		t.Fatalf("expected ACCUMULATING, got %s", pos.State)
	}
	if pos.EntryCount != 1 || pos.Quantity != 0.5 {
		t.Fatalf("expected entryCount=1 quantity=0.5, got %d %v", pos.EntryCount, pos.Quantity)
	}
	if len(orders.created) != 1 {
		t.Fatalf("expected 1 order recorded, got %d", len(orders.created))
	}
}

func TestExecutorTriggerIgnoresNonMatchingFingerprintWhenIdle(t *testing.T) {
	sink := &mockSink{placeOrder: fillAt(100)}
	positions := newMockPositions()
	exec := New(sink, positions, &mockOrders{}, &mockRuns{}, "USDT")

	bot := testBot(models.BotConfig{
		EntryFingerprint: "entry-fp",
		DCARules:         []models.DCARule{{Type: models.DCARuleCustomCondition, Fingerprint: "custom-fp"}},
	})
	ev := eventbus.Event{Fingerprint: "custom-fp", Symbol: "BTCUSDT", TriggeredAt: time.Now()}

	if err := exec.Trigger(context.Background(), bot, &models.Subscription{}, ev); err != nil {
		t.Fatalf("Trigger returned error: %v", err)
	}
	if pos, _ := positions.GetOpen(bot.ID, "BTCUSDT"); pos != nil {
		t.Fatalf("expected no position opened for a non-entry fingerprint, got %+v", pos)
	}

	// The latch should have been recorded even though no position exists yet.
	rt := exec.runtimeFor(positionKey{botID: bot.ID, symbol: "BTCUSDT"})
	if !rt.customLatch["custom-fp"] {
		t.Fatal("expected custom_condition fingerprint to latch")
	}
}

func TestExecutorTickFiresDCARuleAndRespectsCaps(t *testing.T) {
	sink := &mockSink{placeOrder: fillAt(90)}
	positions := newMockPositions()
	orders := &mockOrders{}
	exec := New(sink, positions, orders, &mockRuns{}, "USDT")

	bot := testBot(models.BotConfig{
		EntryFingerprint:   "entry-fp",
		BaseOrderSize:      50,
		SafetyOrderSize:    25,
		DCARules:           []models.DCARule{{Type: models.DCARuleDownFromLastEntry, Threshold: 5}},
		MaxDCAsPerPosition: 1,
	})

	positions.Create(&models.Position{
		BotID: bot.ID, Symbol: "BTCUSDT", State: models.PositionAccumulating,
		EntryCount: 1, Quantity: 1, AverageEntryPrice: 100, LastEntryPrice: 100, TotalInvested: 100,
	})

	now := time.Now()
	if err := exec.Tick(context.Background(), bot, "BTCUSDT", 94, now); err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}

	pos, _ := positions.GetOpen(bot.ID, "BTCUSDT")
	if pos.EntryCount != 2 {
		t.Fatalf("expected one DCA fill (entryCount=2), got %d", pos.EntryCount)
	}

	// Second tick: cap (MaxDCAsPerPosition=1) should block a further DCA.
	if err := exec.Tick(context.Background(), bot, "BTCUSDT", 80, now); err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}
	pos, _ = positions.GetOpen(bot.ID, "BTCUSDT")
	if pos.EntryCount != 2 {
		t.Fatalf("expected cap to block second DCA, entryCount still 2, got %d", pos.EntryCount)
	}
}

func TestExecutorTickFullCloseTransitionsToIdle(t *testing.T) {
	sink := &mockSink{placeOrder: fillAt(120)}
	positions := newMockPositions()
	runs := &mockRuns{}
	exec := New(sink, positions, &mockOrders{}, runs, "USDT")

	bot := testBot(models.BotConfig{
		EntryFingerprint: "entry-fp",
		PartialTargets:   []models.PartialTarget{{TriggerPct: 10, Quantity: 1.0}},
	})

	positions.Create(&models.Position{
		BotID: bot.ID, Symbol: "BTCUSDT", State: models.PositionAccumulating, RunID: 7,
		EntryCount: 1, Quantity: 1, AverageEntryPrice: 100, LastEntryPrice: 100, OpenedAt: time.Now(),
	})
	exec.runtimeFor(positionKey{botID: bot.ID, symbol: "BTCUSDT"}).runID = 7

	if err := exec.Tick(context.Background(), bot, "BTCUSDT", 120, time.Now()); err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}

	stored := positions.byKey[positionKey{bot.ID, "BTCUSDT"}]
	if stored.State != models.PositionIdle {
		t.Fatalf("expected IDLE after full close, got %s", stored.State)
	}
	if stored.Quantity != 0 {
		t.Fatalf("expected quantity=0 after full close, got %v", stored.Quantity)
	}
	if len(runs.ended) != 1 {
		t.Fatalf("expected bot run to end, got %d ended", len(runs.ended))
	}
}

func TestExecutorHandleEntryInvariantViolationIsFatal(t *testing.T) {
	sink := &mockSink{placeOrder: func(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
		return nil, &enginerr.InvariantViolation{Invariant: "balance_law", Detail: "mismatch"}
	}}
	positions := newMockPositions()
	runs := &mockRuns{}
	exec := New(sink, positions, &mockOrders{}, runs, "USDT")

	bot := testBot(models.BotConfig{EntryFingerprint: "entry-fp", BaseOrderSize: 50})
	ev := eventbus.Event{Fingerprint: "entry-fp", Symbol: "BTCUSDT", TriggeredAt: time.Now()}

	err := exec.Trigger(context.Background(), bot, &models.Subscription{}, ev)
	if err == nil {
		t.Fatal("expected InvariantViolation to propagate")
	}

	stored := positions.byKey[positionKey{bot.ID, "BTCUSDT"}]
	if stored == nil || stored.State != models.PositionStopped {
		t.Fatalf("expected position forced to STOPPED, got %+v", stored)
	}
	if len(runs.ended) != 1 || runs.ended[0] != models.BotRunStatusError {
		t.Fatalf("expected the run to be ended, got %+v", runs.ended)
	}
}

func TestExecutorHandleEntryExchangeRejectionIsNonFatal(t *testing.T) {
	sink := &mockSink{placeOrder: func(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
		return nil, &enginerr.ExchangeRejection{Symbol: "BTCUSDT", Code: "INSUFFICIENT_BALANCE", Message: "no funds"}
	}}
	positions := newMockPositions()
	orders := &mockOrders{}
	exec := New(sink, positions, orders, &mockRuns{}, "USDT")

	bot := testBot(models.BotConfig{EntryFingerprint: "entry-fp", BaseOrderSize: 50})
	ev := eventbus.Event{Fingerprint: "entry-fp", Symbol: "BTCUSDT", TriggeredAt: time.Now()}

	err := exec.Trigger(context.Background(), bot, &models.Subscription{}, ev)
	if err != nil {
		t.Fatalf("expected ExchangeRejection to be swallowed, got %v", err)
	}
	if pos, _ := positions.GetOpen(bot.ID, "BTCUSDT"); pos != nil {
		t.Fatalf("expected no open position after a rejected entry, got %+v", pos)
	}
	if len(orders.created) != 1 || orders.created[0].Status != models.OrderStatusError {
		t.Fatalf("expected one error-status order recorded, got %+v", orders.created)
	}
}

func TestExecutorPauseResumeStop(t *testing.T) {
	sink := &mockSink{placeOrder: fillAt(100)}
	positions := newMockPositions()
	runs := &mockRuns{}
	exec := New(sink, positions, &mockOrders{}, runs, "USDT")

	bot := testBot(models.BotConfig{})
	positions.Create(&models.Position{BotID: bot.ID, Symbol: "BTCUSDT", State: models.PositionAccumulating, Quantity: 1})
	exec.runtimeFor(positionKey{botID: bot.ID, symbol: "BTCUSDT"}).runID = 7

	if err := exec.Pause(bot, "BTCUSDT"); err != nil {
		t.Fatalf("Pause returned error: %v", err)
	}
	if positions.byKey[positionKey{bot.ID, "BTCUSDT"}].State != models.PositionPaused {
		t.Fatal("expected PAUSED after Pause")
	}

	if err := exec.Resume(bot, "BTCUSDT"); err != nil {
		t.Fatalf("Resume returned error: %v", err)
	}
	if positions.byKey[positionKey{bot.ID, "BTCUSDT"}].State != models.PositionAccumulating {
		t.Fatal("expected ACCUMULATING after Resume with residual quantity")
	}

	if err := exec.Stop(bot, "BTCUSDT"); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if positions.byKey[positionKey{bot.ID, "BTCUSDT"}].State != models.PositionStopped {
		t.Fatal("expected STOPPED after Stop")
	}
	if len(runs.ended) != 1 {
		t.Fatalf("expected Stop to end the run, got %d", len(runs.ended))
	}
}
