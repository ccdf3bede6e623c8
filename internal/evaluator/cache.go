package evaluator

import (
	"sync"

	"github.com/tradeeon/condition-engine/internal/indicator"
	"github.com/tradeeon/condition-engine/internal/models"
)

// snapshotCache holds one cycle's computed indicator series, keyed by
// (symbol, timeframe, indicator, settings, bar_close_time). Every key is
// written by exactly one group worker (groups partition by symbol+
// timeframe), so concurrent writes never target the same key; sync.Map
// gives lock-free reads for the evaluation phase that follows.
type snapshotCache struct {
	series sync.Map // string -> indicator.Series
	macd   sync.Map // string -> indicator.MACDResult
}

func newSnapshotCache() *snapshotCache {
	return &snapshotCache{}
}

func macdKey(symbol, timeframe string, barClose int64, settings map[string]interface{}) string {
	fast := intSetting(settings, "fast", 12)
	slow := intSetting(settings, "slow", 26)
	signal := intSetting(settings, "signal", 9)
	return fmtKey(symbol, timeframe, barClose, "macd", fmt3(fast, slow, signal))
}

func seriesKey(symbol, timeframe string, barClose int64, name string, settings map[string]interface{}) string {
	return fmtKey(symbol, timeframe, barClose, name, settingsKey(settings))
}

func fmtKey(symbol, timeframe string, barClose int64, name, settingsPart string) string {
	return symbol + "|" + timeframe + "|" + name + "|" + settingsPart + "|" + itoa(barClose)
}

func fmt3(a, b, c int) string {
	return itoa(int64(a)) + "," + itoa(int64(b)) + "," + itoa(int64(c))
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// resolve returns the series for (name, settings) over bars, computing and
// caching it on first request within the cycle. fingerprint is only used
// to scope the unsupported-indicator-fallback warning.
func (c *snapshotCache) resolve(fingerprint, symbol, timeframe string, barClose int64, name string, settings map[string]interface{}, bars []models.Bar) (indicator.Series, bool) {
	if name == "macd" {
		key := macdKey(symbol, timeframe, barClose, settings)
		var result indicator.MACDResult
		if v, ok := c.macd.Load(key); ok {
			result = v.(indicator.MACDResult)
		} else {
			fast := intSetting(settings, "fast", 12)
			slow := intSetting(settings, "slow", 26)
			signal := intSetting(settings, "signal", 9)
			result = indicator.MACD(bars, fast, slow, signal)
			c.macd.Store(key, result)
		}
		return macdComponent(settings, result), true
	}

	key := seriesKey(symbol, timeframe, barClose, name, settings)
	if v, ok := c.series.Load(key); ok {
		return v.(indicator.Series), true
	}
	s, ok := computeSeries(fingerprint, name, settings, bars)
	if !ok {
		return nil, false
	}
	c.series.Store(key, s)
	return s, true
}
