// Package evaluator drives the shared evaluation cycle (spec.md §4.3): it
// snapshots active fingerprints, fetches bars once per (symbol, timeframe)
// group, computes the indicator union once per group, and evaluates each
// fingerprint's tail against an immutable per-cycle cache.
package evaluator

import (
	"fmt"
	"sort"

	"github.com/tradeeon/condition-engine/internal/indicator"
	"github.com/tradeeon/condition-engine/internal/models"
)

// priceIndicator is the pseudo-indicator name for raw close prices, used
// when a condition or a playbook item compares price directly against
// another indicator (e.g. "price crosses_above ema(50)").
const priceIndicator = "price"

// settingsKey renders settings into a stable string for cache lookups.
// Settings values are already normalized to float64 by the registry's
// canonicalization, so formatting by sorted key is deterministic.
func settingsKey(settings map[string]interface{}) string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for _, k := range keys {
		out += fmt.Sprintf("%s=%v;", k, settings[k])
	}
	return out
}

func intSetting(settings map[string]interface{}, key string, def int) int {
	v, ok := settings[key]
	if !ok {
		return def
	}
	f, ok := v.(float64)
	if !ok {
		return def
	}
	return int(f)
}

// computeSeries dispatches to the indicator kernel (or the raw-close
// pseudo-series) by name. Alternate MA families fall back to EMA via
// indicator.ResolveMA, which warns once per fingerprint.
func computeSeries(fingerprint, name string, settings map[string]interface{}, bars []models.Bar) (indicator.Series, bool) {
	period := intSetting(settings, "period", 14)
	switch name {
	case priceIndicator:
		out := make(indicator.Series, len(bars))
		for i, b := range bars {
			out[i] = b.Close
		}
		return out, true
	case "rsi":
		return indicator.RSI(bars, period), true
	case "mfi":
		return indicator.MFI(bars, period), true
	case "cci":
		return indicator.CCI(bars, period), true
	case "sma":
		return indicator.SMA(bars, period), true
	case "ema":
		return indicator.EMA(bars, period), true
	case "atr":
		return indicator.ATR(bars, period), true
	case "wma", "tema", "kama", "mama", "vwma", "hull":
		return indicator.ResolveMA(fingerprint, name, bars, period), true
	default:
		return nil, false
	}
}

// macdComponent names a single series pulled out of a MACD result, for
// conditions whose indicator is "macd" with a "component" setting.
func macdComponent(settings map[string]interface{}, result indicator.MACDResult) indicator.Series {
	switch settings["component"] {
	case "signal":
		return result.Signal
	case "histogram":
		return result.Histogram
	default:
		return result.Macd
	}
}
