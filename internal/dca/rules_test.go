package dca

import (
	"testing"

	"github.com/tradeeon/condition-engine/internal/models"
)

func TestEvaluateDCARule(t *testing.T) {
	pos := &models.Position{
		LastEntryPrice:    100,
		AverageEntryPrice: 100,
		Quantity:          2,
	}

	cases := []struct {
		name    string
		rule    models.DCARule
		price   float64
		latched bool
		want    bool
	}{
		{"down_from_last_entry fires", models.DCARule{Type: models.DCARuleDownFromLastEntry, Threshold: 5}, 94, false, true},
		{"down_from_last_entry holds", models.DCARule{Type: models.DCARuleDownFromLastEntry, Threshold: 5}, 96, false, false},
		{"down_from_average_price fires", models.DCARule{Type: models.DCARuleDownFromAveragePrice, Threshold: 10}, 89, false, true},
		{"loss_by_percent fires", models.DCARule{Type: models.DCARuleLossByPercent, Threshold: 10}, 89, false, true},
		{"loss_by_percent holds", models.DCARule{Type: models.DCARuleLossByPercent, Threshold: 10}, 95, false, false},
		{"loss_by_amount fires", models.DCARule{Type: models.DCARuleLossByAmount, Threshold: 10}, 95, false, true}, // (100-95)*2=10 >= 10
		{"loss_by_amount holds", models.DCARule{Type: models.DCARuleLossByAmount, Threshold: 20}, 95, false, false},
		{"custom_condition needs latch", models.DCARule{Type: models.DCARuleCustomCondition, Fingerprint: "fp1"}, 100, false, false},
		{"custom_condition fires when latched", models.DCARule{Type: models.DCARuleCustomCondition, Fingerprint: "fp1"}, 100, true, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := evaluateDCARule(c.rule, pos, c.price, c.latched); got != c.want {
				t.Errorf("evaluateDCARule() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestEvaluateDCARuleNoEntryYet(t *testing.T) {
	pos := &models.Position{}
	if evaluateDCARule(models.DCARule{Type: models.DCARuleDownFromLastEntry, Threshold: 5}, pos, 90, false) {
		t.Fatal("expected false when LastEntryPrice is zero")
	}
	if evaluateDCARule(models.DCARule{Type: models.DCARuleDownFromAveragePrice, Threshold: 5}, pos, 90, false) {
		t.Fatal("expected false when AverageEntryPrice is zero")
	}
}

func TestCheckCaps(t *testing.T) {
	base := models.BotConfig{
		MaxDCAsPerPosition:       2,
		MaxDCAsGlobal:            5,
		MaxInvestmentPerPosition: 1000,
		StopDCAOnLossPct:         50,
	}

	t.Run("no cap hit", func(t *testing.T) {
		pos := &models.Position{EntryCount: 1, TotalInvested: 100, AverageEntryPrice: 100}
		if reason := checkCaps(base, pos, 95, 100, 0); reason != capNone {
			t.Fatalf("expected no cap, got %q", reason)
		}
	})

	t.Run("max per position", func(t *testing.T) {
		pos := &models.Position{EntryCount: 3, TotalInvested: 100, AverageEntryPrice: 100} // dcaIndex=2 >= 2
		if reason := checkCaps(base, pos, 95, 100, 0); reason != capMaxPerPosition {
			t.Fatalf("expected capMaxPerPosition, got %q", reason)
		}
	})

	t.Run("max global", func(t *testing.T) {
		pos := &models.Position{EntryCount: 1, TotalInvested: 100, AverageEntryPrice: 100}
		if reason := checkCaps(base, pos, 95, 100, 5); reason != capMaxGlobal {
			t.Fatalf("expected capMaxGlobal, got %q", reason)
		}
	})

	t.Run("max investment", func(t *testing.T) {
		pos := &models.Position{EntryCount: 1, TotalInvested: 950, AverageEntryPrice: 100}
		if reason := checkCaps(base, pos, 95, 100, 0); reason != capMaxInvestment {
			t.Fatalf("expected capMaxInvestment, got %q", reason)
		}
	})

	t.Run("stop on loss", func(t *testing.T) {
		pos := &models.Position{EntryCount: 1, TotalInvested: 100, AverageEntryPrice: 100}
		if reason := checkCaps(base, pos, 40, 10, 0); reason != capStopOnLoss {
			t.Fatalf("expected capStopOnLoss, got %q", reason)
		}
	})
}

func TestClampMultiplier(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0, 1.0},
		{-1, 1.0},
		{0.1, 0.25},
		{0.25, 0.25},
		{1.0, 1.0},
		{4.0, 4.0},
		{10, 4.0},
	}
	for _, c := range cases {
		if got := clampMultiplier(c.in); got != c.want {
			t.Errorf("clampMultiplier(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestDynamicSize(t *testing.T) {
	t.Run("no signals defaults to base", func(t *testing.T) {
		if got := dynamicSize(100, map[string]float64{}); got != 100 {
			t.Fatalf("expected 100, got %v", got)
		}
	})

	t.Run("multipliers scale base", func(t *testing.T) {
		signals := map[string]float64{"volatility_mul": 2.0, "sr_mul": 1.5, "sentiment_mul": 1.0}
		got := dynamicSize(100, signals)
		want := 300.0 // 2.0*1.5*1.0 = 3.0
		if got != want {
			t.Fatalf("expected %v, got %v", want, got)
		}
	})

	t.Run("product clamped to upper bound", func(t *testing.T) {
		signals := map[string]float64{"volatility_mul": 4.0, "sr_mul": 4.0, "sentiment_mul": 4.0}
		got := dynamicSize(100, signals)
		want := 1000.0 // 64x clamped to 10x
		if got != want {
			t.Fatalf("expected %v, got %v", want, got)
		}
	})

	t.Run("product clamped to lower bound", func(t *testing.T) {
		signals := map[string]float64{"volatility_mul": 0.25, "sr_mul": 0.25, "sentiment_mul": 0.25}
		got := dynamicSize(100, signals)
		want := 10.0 // 0.015625x clamped to 0.1x
		if got != want {
			t.Fatalf("expected %v, got %v", want, got)
		}
	})
}
