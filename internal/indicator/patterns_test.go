package indicator

import (
	"testing"
	"time"

	"github.com/tradeeon/condition-engine/internal/models"
)

func mkBar(open, high, low, close float64) models.Bar {
	return models.Bar{
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		OpenTime:  time.Unix(0, 0).UTC(),
		CloseTime: time.Unix(3600, 0).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    10,
	}
}

func TestPatternInsideBar(t *testing.T) {
	prev := mkBar(100, 110, 90, 105)
	curr := mkBar(102, 108, 95, 103)
	if !MatchPattern(PatternInsideBar, []models.Bar{prev, curr}).Holds() {
		t.Error("expected inside_bar to hold")
	}
}

func TestPatternOutsideBar(t *testing.T) {
	prev := mkBar(100, 105, 95, 102)
	curr := mkBar(98, 110, 90, 108)
	if !MatchPattern(PatternOutsideBar, []models.Bar{prev, curr}).Holds() {
		t.Error("expected outside_bar to hold")
	}
}

func TestPatternBullishEngulfing(t *testing.T) {
	prev := mkBar(100, 101, 95, 96) // prev close < prev open
	curr := mkBar(95, 105, 94, 102) // curr close > curr open, curr open < prev close, curr close > prev open
	if !MatchPattern(PatternBullishEngulfing, []models.Bar{prev, curr}).Holds() {
		t.Error("expected bullish_engulfing to hold")
	}
}

func TestPatternBearishEngulfing(t *testing.T) {
	prev := mkBar(95, 101, 94, 100) // prev close > prev open
	curr := mkBar(101, 103, 90, 93) // curr close < curr open, curr open > prev close, curr close < prev open
	if !MatchPattern(PatternBearishEngulfing, []models.Bar{prev, curr}).Holds() {
		t.Error("expected bearish_engulfing to hold")
	}
}

func TestPatternDoji(t *testing.T) {
	prev := mkBar(100, 110, 90, 105)
	curr := mkBar(100, 110, 90, 101) // |open-close|/(high-low) = 1/20 = 0.05 < 0.1
	if !MatchPattern(PatternDoji, []models.Bar{prev, curr}).Holds() {
		t.Error("expected doji to hold")
	}
}

func TestPatternHammer(t *testing.T) {
	prev := mkBar(100, 102, 98, 99)
	curr := mkBar(100, 100.6, 85, 100.5) // small body, long lower wick, tiny upper wick
	if !MatchPattern(PatternHammer, []models.Bar{prev, curr}).Holds() {
		t.Error("expected hammer to hold")
	}
}

func TestPatternGapUpDown(t *testing.T) {
	prev := mkBar(100, 105, 95, 102)
	gapUp := mkBar(110, 115, 109, 112)
	if !MatchPattern(PatternGapUp, []models.Bar{prev, gapUp}).Holds() {
		t.Error("expected gap_up to hold")
	}
	gapDown := mkBar(90, 93, 85, 88)
	if !MatchPattern(PatternGapDown, []models.Bar{prev, gapDown}).Holds() {
		t.Error("expected gap_down to hold")
	}
}

func TestPatternHigherLowerHighLow(t *testing.T) {
	prev := mkBar(100, 110, 90, 105)
	hh := mkBar(105, 115, 95, 110)
	if !MatchPattern(PatternHigherHigh, []models.Bar{prev, hh}).Holds() {
		t.Error("expected higher_high to hold")
	}
	if !MatchPattern(PatternHigherLow, []models.Bar{prev, hh}).Holds() {
		t.Error("expected higher_low to hold")
	}
	ll := mkBar(95, 105, 80, 90)
	if !MatchPattern(PatternLowerHigh, []models.Bar{prev, ll}).Holds() {
		t.Error("expected lower_high to hold")
	}
	if !MatchPattern(PatternLowerLow, []models.Bar{prev, ll}).Holds() {
		t.Error("expected lower_low to hold")
	}
}

func TestPatternIndeterminateWithOneBar(t *testing.T) {
	if MatchPattern(PatternInsideBar, []models.Bar{mkBar(1, 2, 0, 1)}) != ComparisonIndeterminate {
		t.Error("expected indeterminate with fewer than two bars")
	}
}
