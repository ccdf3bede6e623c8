package dca

import (
	"context"
	"testing"
	"time"

	"github.com/tradeeon/condition-engine/internal/models"
)

type mockBotLister struct {
	bots []*models.Bot
}

func (m *mockBotLister) ByStatus(status models.BotStatus) ([]*models.Bot, error) {
	var out []*models.Bot
	for _, b := range m.bots {
		if b.Status == status {
			out = append(out, b)
		}
	}
	return out, nil
}

type mockPriceSource struct {
	prices map[string]float64
}

func (m *mockPriceSource) GetName() string { return "mock" }

func (m *mockPriceSource) LastPrice(ctx context.Context, symbol string) (float64, error) {
	return m.prices[symbol], nil
}

func TestTickerLoopTicksEveryRunningDCABot(t *testing.T) {
	sink := &mockSink{placeOrder: fillAt(94)}
	positions := newMockPositions()
	exec := New(sink, positions, &mockOrders{}, &mockRuns{}, "USDT")

	bot := testBot(models.BotConfig{
		DCARules: []models.DCARule{{Type: models.DCARuleDownFromLastEntry, Threshold: 5}},
	})
	positions.Create(&models.Position{
		BotID: bot.ID, Symbol: "BTCUSDT", State: models.PositionAccumulating,
		EntryCount: 1, Quantity: 1, AverageEntryPrice: 100, LastEntryPrice: 100,
	})

	other := testBot(models.BotConfig{})
	other.ID = 2
	other.Status = models.BotStatusPaused

	loop := NewTickerLoop(exec, &mockBotLister{bots: []*models.Bot{bot, other}}, &mockPriceSource{prices: map[string]float64{"BTCUSDT": 94}}, time.Millisecond)
	loop.tickAll(context.Background())

	pos, _ := positions.GetOpen(bot.ID, "BTCUSDT")
	if pos.EntryCount != 2 {
		t.Fatalf("expected a DCA fill from the ticker loop, entryCount=%d", pos.EntryCount)
	}
}
