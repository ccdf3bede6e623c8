package indicator

import "github.com/tradeeon/condition-engine/internal/models"

// Pattern names a candlestick pattern evaluated over the last two closed
// bars (prev, curr).
type Pattern string

const (
	PatternInsideBar        Pattern = "inside_bar"
	PatternOutsideBar       Pattern = "outside_bar"
	PatternBullishEngulfing Pattern = "bullish_engulfing"
	PatternBearishEngulfing Pattern = "bearish_engulfing"
	PatternDoji             Pattern = "doji"
	PatternHammer           Pattern = "hammer"
	PatternGapUp            Pattern = "gap_up"
	PatternGapDown          Pattern = "gap_down"
	PatternHigherHigh       Pattern = "higher_high"
	PatternHigherLow        Pattern = "higher_low"
	PatternLowerHigh        Pattern = "lower_high"
	PatternLowerLow         Pattern = "lower_low"
)

// MatchPattern evaluates name over the last two bars of bars. Returns
// ComparisonIndeterminate when fewer than two bars are available.
func MatchPattern(name Pattern, bars []models.Bar) Comparison {
	if len(bars) < 2 {
		return ComparisonIndeterminate
	}
	prev, curr := bars[len(bars)-2], bars[len(bars)-1]

	switch name {
	case PatternInsideBar:
		return fromBool(curr.High <= prev.High && curr.Low >= prev.Low)
	case PatternOutsideBar:
		return fromBool(curr.High >= prev.High && curr.Low <= prev.Low)
	case PatternBullishEngulfing:
		return fromBool(prev.Close < prev.Open &&
			curr.Close > curr.Open &&
			curr.Open < prev.Close &&
			curr.Close > prev.Open)
	case PatternBearishEngulfing:
		return fromBool(prev.Close > prev.Open &&
			curr.Close < curr.Open &&
			curr.Open > prev.Close &&
			curr.Close < prev.Open)
	case PatternDoji:
		return fromBool(isDoji(curr))
	case PatternHammer:
		return fromBool(isHammer(curr))
	case PatternGapUp:
		return fromBool(curr.Open > prev.High)
	case PatternGapDown:
		return fromBool(curr.Open < prev.Low)
	case PatternHigherHigh:
		return fromBool(curr.High > prev.High)
	case PatternHigherLow:
		return fromBool(curr.Low > prev.Low)
	case PatternLowerHigh:
		return fromBool(curr.High < prev.High)
	case PatternLowerLow:
		return fromBool(curr.Low < prev.Low)
	default:
		return ComparisonIndeterminate
	}
}

func isDoji(b models.Bar) bool {
	rng := b.High - b.Low
	if rng <= 0 {
		return false
	}
	body := b.Open - b.Close
	if body < 0 {
		body = -body
	}
	return body/rng < 0.1
}

func isHammer(b models.Bar) bool {
	body := b.Open - b.Close
	if body < 0 {
		body = -body
	}
	top := b.Open
	if b.Close > top {
		top = b.Close
	}
	bottom := b.Open
	if b.Close < bottom {
		bottom = b.Close
	}
	lowerWick := bottom - b.Low
	upperWick := b.High - top
	return lowerWick > 2*body && upperWick < 0.5*body
}
