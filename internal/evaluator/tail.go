package evaluator

import (
	"github.com/tradeeon/condition-engine/internal/indicator"
	"github.com/tradeeon/condition-engine/internal/models"
)

// patternNames lets evaluateCondition dispatch pattern conditions without
// importing indicator's pattern constants into the condition record shape.
var patternNames = map[string]indicator.Pattern{
	"inside_bar":         indicator.PatternInsideBar,
	"outside_bar":        indicator.PatternOutsideBar,
	"bullish_engulfing":  indicator.PatternBullishEngulfing,
	"bearish_engulfing":  indicator.PatternBearishEngulfing,
	"doji":               indicator.PatternDoji,
	"hammer":             indicator.PatternHammer,
	"gap_up":             indicator.PatternGapUp,
	"gap_down":           indicator.PatternGapDown,
	"higher_high":        indicator.PatternHigherHigh,
	"higher_low":         indicator.PatternHigherLow,
	"lower_high":         indicator.PatternLowerHigh,
	"lower_low":          indicator.PatternLowerLow,
}

// evaluateCondition evaluates one canonicalized condition's tail against
// bars, using cache to avoid recomputing indicator series already built for
// this (symbol, timeframe, bar_close_time) group. Returns the comparison
// outcome and the values to attach to a trigger event when it holds.
func evaluateCondition(rec *models.ConditionRecord, bars []models.Bar, cache *snapshotCache) (indicator.Comparison, map[string]float64) {
	if pattern, ok := patternNames[rec.Indicator]; ok {
		return indicator.MatchPattern(pattern, bars), nil
	}

	barClose := int64(0)
	if n := len(bars); n > 0 {
		barClose = bars[n-1].CloseTime.Unix()
	}

	x, ok := cache.resolve(rec.Fingerprint, rec.Symbol, rec.Timeframe, barClose, rec.Indicator, rec.Settings, bars)
	if !ok {
		return indicator.ComparisonIndeterminate, nil
	}
	xTail, xOK := x.Tail()

	switch rec.Operator {
	case "gt":
		ref, rok := numeric(rec.Operand["value"])
		if !rok {
			return indicator.ComparisonIndeterminate, nil
		}
		return indicator.Gt(xTail, xOK, ref), values(rec.Indicator, xTail)
	case "lt":
		ref, rok := numeric(rec.Operand["value"])
		if !rok {
			return indicator.ComparisonIndeterminate, nil
		}
		return indicator.Lt(xTail, xOK, ref), values(rec.Indicator, xTail)
	case "ge":
		ref, rok := numeric(rec.Operand["value"])
		if !rok {
			return indicator.ComparisonIndeterminate, nil
		}
		return indicator.Ge(xTail, xOK, ref), values(rec.Indicator, xTail)
	case "le":
		ref, rok := numeric(rec.Operand["value"])
		if !rok {
			return indicator.ComparisonIndeterminate, nil
		}
		return indicator.Le(xTail, xOK, ref), values(rec.Indicator, xTail)
	case "eq":
		ref, rok := numeric(rec.Operand["value"])
		if !rok {
			return indicator.ComparisonIndeterminate, nil
		}
		return indicator.Eq(xTail, xOK, ref), values(rec.Indicator, xTail)
	case "between":
		lower, lok := numeric(rec.Operand["lower"])
		upper, uok := numeric(rec.Operand["upper"])
		if !lok || !uok {
			return indicator.ComparisonIndeterminate, nil
		}
		return indicator.Between(xTail, xOK, lower, upper), values(rec.Indicator, xTail)
	case "closes_above":
		ref, rok := numeric(rec.Operand["value"])
		if !rok || !xOK {
			return indicator.ComparisonIndeterminate, nil
		}
		return indicator.ClosesAbove(xTail, ref), values(rec.Indicator, xTail)
	case "closes_below":
		ref, rok := numeric(rec.Operand["value"])
		if !rok || !xOK {
			return indicator.ComparisonIndeterminate, nil
		}
		return indicator.ClosesBelow(xTail, ref), values(rec.Indicator, xTail)
	case "crosses_above", "crosses_below":
		y, yOK := resolveReference(rec, bars, cache, barClose)
		if !yOK {
			return indicator.ComparisonIndeterminate, nil
		}
		if rec.Operator == "crosses_above" {
			return indicator.CrossesAboveSeries(x, y), crossValues(rec.Indicator, x, y)
		}
		return indicator.CrossesBelowSeries(x, y), crossValues(rec.Indicator, x, y)
	default:
		return indicator.ComparisonIndeterminate, nil
	}
}

// resolveReference resolves the "y" side of a crosses_above/crosses_below
// condition: either a fixed level (operand.value, broadcast as a flat
// series) or another named indicator (operand.ref_indicator/ref_settings).
func resolveReference(rec *models.ConditionRecord, bars []models.Bar, cache *snapshotCache, barClose int64) (indicator.Series, bool) {
	if ref, ok := rec.Operand["ref_indicator"].(string); ok {
		settings, _ := rec.Operand["ref_settings"].(map[string]interface{})
		return cache.resolve(rec.Fingerprint, rec.Symbol, rec.Timeframe, barClose, ref, settings, bars)
	}
	level, ok := numeric(rec.Operand["value"])
	if !ok {
		return nil, false
	}
	flat := make(indicator.Series, len(bars))
	for i := range flat {
		flat[i] = level
	}
	return flat, true
}

func values(name string, v float64) map[string]float64 {
	return map[string]float64{name: v}
}

func crossValues(name string, x, y indicator.Series) map[string]float64 {
	out := map[string]float64{}
	if v, ok := x.Tail(); ok {
		out[name] = v
	}
	if v, ok := y.Tail(); ok {
		out["reference"] = v
	}
	return out
}

func numeric(v interface{}) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}
