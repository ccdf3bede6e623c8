package indicator

import (
	"sync"

	"github.com/tradeeon/condition-engine/internal/models"
	"github.com/tradeeon/condition-engine/pkg/utils"
)

// fallbackFamilies are moving-average variants this kernel does not
// implement natively; each falls back to a plain EMA of the requested
// period.
var fallbackFamilies = map[string]bool{
	"wma":  true,
	"tema": true,
	"kama": true,
	"mama": true,
	"vwma": true,
	"hull": true,
}

// warnedFallbacks tracks which fingerprints have already logged the
// UnsupportedIndicatorFallback warning, so a condition re-evaluated every
// cycle only logs it once.
var warnedFallbacks sync.Map

// IsFallbackFamily reports whether name is a moving-average family this
// kernel substitutes with EMA.
func IsFallbackFamily(name string) bool {
	return fallbackFamilies[name]
}

// ResolveMA computes the series for a named moving average. Families the
// kernel implements natively (sma, ema) are computed directly; unsupported
// families fall back to EMA of the same period, logging
// UnsupportedIndicatorFallback once per fingerprint.
func ResolveMA(fingerprint, name string, bars []models.Bar, period int) Series {
	switch name {
	case "sma":
		return SMA(bars, period)
	case "ema":
		return EMA(bars, period)
	default:
		if fallbackFamilies[name] {
			warnFallbackOnce(fingerprint, name)
		}
		return EMA(bars, period)
	}
}

func warnFallbackOnce(fingerprint, name string) {
	if _, loaded := warnedFallbacks.LoadOrStore(fingerprint, struct{}{}); loaded {
		return
	}
	utils.Warn("UnsupportedIndicatorFallback",
		utils.Fingerprint(fingerprint),
		utils.Indicator(name),
		utils.String("fallback_to", "ema"),
	)
}
