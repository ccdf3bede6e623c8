package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/tradeeon/condition-engine/internal/models"
)

func barsFromCloses(closes []float64) []models.Bar {
	bars := make([]models.Bar, len(closes))
	t := time.Unix(0, 0).UTC()
	for i, c := range closes {
		bars[i] = models.Bar{
			Symbol:    "BTCUSDT",
			Timeframe: "1h",
			OpenTime:  t.Add(time.Duration(i) * time.Hour),
			CloseTime: t.Add(time.Duration(i+1) * time.Hour),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    100,
		}
	}
	return bars
}

func constantBars(n int, price float64) []models.Bar {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = price
	}
	return barsFromCloses(closes)
}

func approxEqual(a, b, eps float64) bool {
	return math.Abs(a-b) < eps
}

func TestSMAWarmup(t *testing.T) {
	bars := barsFromCloses([]float64{1, 2, 3, 4, 5})
	s := SMA(bars, 3)
	if !IsIndeterminate(s[0]) || !IsIndeterminate(s[1]) {
		t.Fatalf("expected indeterminate before warmup, got %v", s[:2])
	}
	if !approxEqual(s[2], 2, 1e-9) {
		t.Errorf("SMA[2] = %v, want 2", s[2])
	}
	if !approxEqual(s[4], 4, 1e-9) {
		t.Errorf("SMA[4] = %v, want 4", s[4])
	}
}

func TestEMAConvergesOnConstantSeries(t *testing.T) {
	bars := constantBars(50, 100)
	s := EMA(bars, 10)
	v, ok := s.Tail()
	if !ok {
		t.Fatal("expected determinate tail")
	}
	if !approxEqual(v, 100, 1e-6) {
		t.Errorf("EMA on constant series = %v, want 100", v)
	}
}

func TestRSIConstantSeriesEquals50(t *testing.T) {
	bars := constantBars(40, 100)
	s := RSI(bars, 14)
	v, ok := s.Tail()
	if !ok {
		t.Fatal("expected determinate RSI after warmup")
	}
	if v != 50 {
		t.Errorf("RSI on constant series = %v, want 50", v)
	}
}

func TestATRConstantSeriesEqualsZero(t *testing.T) {
	bars := constantBars(40, 100)
	s := ATR(bars, 14)
	v, ok := s.Tail()
	if !ok {
		t.Fatal("expected determinate ATR after warmup")
	}
	if v != 0 {
		t.Errorf("ATR on constant series = %v, want 0", v)
	}
}

func TestRSIInsufficientHistoryIsIndeterminate(t *testing.T) {
	bars := constantBars(10, 100)
	s := RSI(bars, 14)
	if _, ok := s.Tail(); ok {
		t.Fatal("expected indeterminate tail with fewer than period+1 bars")
	}
}

func TestRSIDeterminateOnFallingSeries(t *testing.T) {
	// A steadily falling close series just long enough for RSI(14) to be
	// determinate on both the previous and the current bar.
	closes := []float64{
		100, 99, 98, 97, 96, 95, 94, 93, 92, 91, 90, 89, 88, 87, 86, 85, 84, 70,
	}
	bars := barsFromCloses(closes)
	s := RSI(bars, 14)
	_, prevOK := s.Prev()
	_, currOK := s.Tail()
	if !prevOK || !currOK {
		t.Fatal("expected determinate RSI for both prev and current bar")
	}
}

func TestMACDComponents(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	bars := barsFromCloses(closes)
	r := MACD(bars, 12, 26, 9)
	macd, macdOK := r.Macd.Tail()
	sig, sigOK := r.Signal.Tail()
	hist, histOK := r.Histogram.Tail()
	if !macdOK || !sigOK || !histOK {
		t.Fatal("expected determinate MACD components after warmup")
	}
	if !approxEqual(hist, macd-sig, 1e-9) {
		t.Errorf("histogram = %v, want macd-signal = %v", hist, macd-sig)
	}
}

func TestMFIConstantVolumeFlat(t *testing.T) {
	bars := constantBars(30, 50)
	s := MFI(bars, 14)
	v, ok := s.Tail()
	if !ok {
		t.Fatal("expected determinate MFI after warmup")
	}
	// With no typical-price movement, neither positive nor negative money
	// flow accumulates; negSum == 0 defines MFI as 100.
	if v != 100 {
		t.Errorf("MFI on flat series = %v, want 100", v)
	}
}

func TestCCIConstantSeriesEqualsZero(t *testing.T) {
	bars := constantBars(30, 50)
	s := CCI(bars, 14)
	v, ok := s.Tail()
	if !ok {
		t.Fatal("expected determinate CCI after warmup")
	}
	if v != 0 {
		t.Errorf("CCI on constant series = %v, want 0", v)
	}
}

func BenchmarkRSI(b *testing.B) {
	bars := constantBars(500, 100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		RSI(bars, 14)
	}
}

func BenchmarkMACD(b *testing.B) {
	bars := constantBars(500, 100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		MACD(bars, 12, 26, 9)
	}
}
