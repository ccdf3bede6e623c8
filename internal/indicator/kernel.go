// Package indicator is the pure, deterministic computation kernel the
// evaluator calls once per (symbol, timeframe, indicator, settings) group
// per cycle. No function here touches a network, a clock, or a database —
// given the same bars and settings it always returns the same series.
package indicator

import (
	"math"

	"github.com/tradeeon/condition-engine/internal/models"
)

// Indeterminate marks a tail value computed from too little history. It is
// not an error: callers treat it as "not triggered" and must not count it
// toward evaluation stats.
var Indeterminate = math.NaN()

// IsIndeterminate reports whether v is the Indeterminate sentinel.
func IsIndeterminate(v float64) bool {
	return math.IsNaN(v)
}

// Series is a named indicator's full output aligned index-for-index with
// the input bars. Entries before the warm-up window hold Indeterminate.
type Series []float64

// Tail returns the last value of s and whether it is determinate.
func (s Series) Tail() (float64, bool) {
	if len(s) == 0 {
		return Indeterminate, false
	}
	v := s[len(s)-1]
	return v, !IsIndeterminate(v)
}

// Prev returns the value one bar before the tail and whether it is
// determinate. Used by crosses_above/crosses_below.
func (s Series) Prev() (float64, bool) {
	if len(s) < 2 {
		return Indeterminate, false
	}
	v := s[len(s)-2]
	return v, !IsIndeterminate(v)
}

func closes(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func fillIndeterminate(n, warmup int) Series {
	s := make(Series, n)
	for i := 0; i < n && i < warmup; i++ {
		s[i] = Indeterminate
	}
	return s
}

// SMA computes the simple moving average over period.
func SMA(bars []models.Bar, period int) Series {
	c := closes(bars)
	out := fillIndeterminate(len(c), period-1)
	var sum float64
	for i, v := range c {
		sum += v
		if i >= period {
			sum -= c[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA computes the exponential moving average over period, seeded with the
// SMA of the first period closes.
func EMA(bars []models.Bar, period int) Series {
	c := closes(bars)
	out := fillIndeterminate(len(c), period-1)
	if len(c) < period {
		return out
	}
	k := 2.0 / (float64(period) + 1.0)
	var seed float64
	for i := 0; i < period; i++ {
		seed += c[i]
	}
	seed /= float64(period)
	out[period-1] = seed
	prev := seed
	for i := period; i < len(c); i++ {
		prev = c[i]*k + prev*(1-k)
		out[i] = prev
	}
	return out
}

// emaOf applies the EMA recursion to an arbitrary source series instead of
// closes, used internally by MACD and the Wilder smoothers.
func emaOf(src []float64, period int) Series {
	out := fillIndeterminate(len(src), period-1)
	if len(src) < period {
		return out
	}
	k := 2.0 / (float64(period) + 1.0)
	var seed float64
	for i := 0; i < period; i++ {
		seed += src[i]
	}
	seed /= float64(period)
	out[period-1] = seed
	prev := seed
	for i := period; i < len(src); i++ {
		prev = src[i]*k + prev*(1-k)
		out[i] = prev
	}
	return out
}

// MACDResult holds the three MACD components, each a Series aligned with
// the input bars.
type MACDResult struct {
	Macd      Series
	Signal    Series
	Histogram Series
}

// MACD computes MACD with the given fast/slow/signal periods.
func MACD(bars []models.Bar, fast, slow, signal int) MACDResult {
	fastEMA := EMA(bars, fast)
	slowEMA := EMA(bars, slow)
	macd := make([]float64, len(bars))
	for i := range macd {
		if IsIndeterminate(fastEMA[i]) || IsIndeterminate(slowEMA[i]) {
			macd[i] = Indeterminate
		} else {
			macd[i] = fastEMA[i] - slowEMA[i]
		}
	}
	sig := emaOf(macd, signal)
	hist := make(Series, len(bars))
	for i := range hist {
		if IsIndeterminate(macd[i]) || IsIndeterminate(sig[i]) {
			hist[i] = Indeterminate
		} else {
			hist[i] = macd[i] - sig[i]
		}
	}
	return MACDResult{Macd: Series(macd), Signal: sig, Histogram: hist}
}

// wilderSmooth applies Wilder's smoothing (an EMA variant with alpha =
// 1/period, seeded by a plain average of the first period values).
func wilderSmooth(src []float64, period int) Series {
	out := fillIndeterminate(len(src), period-1)
	if len(src) < period {
		return out
	}
	var seed float64
	for i := 0; i < period; i++ {
		seed += src[i]
	}
	seed /= float64(period)
	out[period-1] = seed
	prev := seed
	for i := period; i < len(src); i++ {
		prev = (prev*float64(period-1) + src[i]) / float64(period)
		out[i] = prev
	}
	return out
}

// RSI computes the Wilder-smoothed Relative Strength Index.
func RSI(bars []models.Bar, period int) Series {
	c := closes(bars)
	out := fillIndeterminate(len(c), period)
	if len(c) <= period {
		return out
	}
	gains := make([]float64, len(c))
	losses := make([]float64, len(c))
	for i := 1; i < len(c); i++ {
		delta := c[i] - c[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}
	avgGain := wilderSmoothFrom1(gains, period)
	avgLoss := wilderSmoothFrom1(losses, period)
	for i := period; i < len(c); i++ {
		if IsIndeterminate(avgGain[i]) || IsIndeterminate(avgLoss[i]) {
			continue
		}
		if avgLoss[i] == 0 {
			if avgGain[i] == 0 {
				out[i] = 50
			} else {
				out[i] = 100
			}
			continue
		}
		rs := avgGain[i] / avgLoss[i]
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// wilderSmoothFrom1 is wilderSmooth but treats src[0] as undefined (deltas
// are not defined for the first bar), seeding the average over
// src[1:period+1].
func wilderSmoothFrom1(src []float64, period int) Series {
	out := fillIndeterminate(len(src), period)
	if len(src) <= period {
		return out
	}
	var seed float64
	for i := 1; i <= period; i++ {
		seed += src[i]
	}
	seed /= float64(period)
	out[period] = seed
	prev := seed
	for i := period + 1; i < len(src); i++ {
		prev = (prev*float64(period-1) + src[i]) / float64(period)
		out[i] = prev
	}
	return out
}

// MFI computes the Wilder-smoothed Money Flow Index.
func MFI(bars []models.Bar, period int) Series {
	n := len(bars)
	out := fillIndeterminate(n, period)
	if n <= period {
		return out
	}
	typicalPrice := make([]float64, n)
	rawMoneyFlow := make([]float64, n)
	for i, b := range bars {
		typicalPrice[i] = (b.High + b.Low + b.Close) / 3
		rawMoneyFlow[i] = typicalPrice[i] * b.Volume
	}
	posFlow := make([]float64, n)
	negFlow := make([]float64, n)
	for i := 1; i < n; i++ {
		if typicalPrice[i] > typicalPrice[i-1] {
			posFlow[i] = rawMoneyFlow[i]
		} else if typicalPrice[i] < typicalPrice[i-1] {
			negFlow[i] = rawMoneyFlow[i]
		}
	}
	for i := period; i < n; i++ {
		var posSum, negSum float64
		for j := i - period + 1; j <= i; j++ {
			posSum += posFlow[j]
			negSum += negFlow[j]
		}
		if negSum == 0 {
			out[i] = 100
			continue
		}
		ratio := posSum / negSum
		out[i] = 100 - 100/(1+ratio)
	}
	return out
}

// CCI computes the Commodity Channel Index with the conventional constant
// 0.015.
func CCI(bars []models.Bar, period int) Series {
	n := len(bars)
	out := fillIndeterminate(n, period-1)
	if n < period {
		return out
	}
	typicalPrice := make([]float64, n)
	for i, b := range bars {
		typicalPrice[i] = (b.High + b.Low + b.Close) / 3
	}
	for i := period - 1; i < n; i++ {
		var sum float64
		for j := i - period + 1; j <= i; j++ {
			sum += typicalPrice[j]
		}
		sma := sum / float64(period)
		var meanDev float64
		for j := i - period + 1; j <= i; j++ {
			meanDev += math.Abs(typicalPrice[j] - sma)
		}
		meanDev /= float64(period)
		if meanDev == 0 {
			out[i] = 0
			continue
		}
		out[i] = (typicalPrice[i] - sma) / (0.015 * meanDev)
	}
	return out
}

// ATR computes the Wilder-smoothed Average True Range.
func ATR(bars []models.Bar, period int) Series {
	n := len(bars)
	out := fillIndeterminate(n, period)
	if n <= period {
		return out
	}
	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		highLow := bars[i].High - bars[i].Low
		highClose := math.Abs(bars[i].High - bars[i-1].Close)
		lowClose := math.Abs(bars[i].Low - bars[i-1].Close)
		tr[i] = math.Max(highLow, math.Max(highClose, lowClose))
	}
	smoothed := wilderSmoothFrom1(tr, period)
	copy(out[period:], smoothed[period:])
	return out
}
