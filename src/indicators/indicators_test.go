package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"alphasniper/src/model"
)

func syntheticCandles(n int, price func(i int) float64, vol func(i int) float64) []model.MarketData {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	out := make([]model.MarketData, n)
	for i := 0; i < n; i++ {
		p := price(i)
		out[i] = model.MarketData{
			Symbol:     "BTCUSDT",
			Interval:   "15m",
			OpenTimeMs: base + int64(i)*15*60*1000,
			Open:       decimal.NewFromFloat(p),
			High:       decimal.NewFromFloat(p * 1.002),
			Low:        decimal.NewFromFloat(p * 0.998),
			Close:      decimal.NewFromFloat(p),
			Volume:     decimal.NewFromFloat(vol(i)),
		}
	}
	return out
}

func TestComputeAlignsWithInput(t *testing.T) {
	candles := syntheticCandles(120, func(i int) float64 { return 100 + float64(i)*0.1 }, func(i int) float64 { return 10 })
	features := Compute(candles, nil)

	if len(features) != len(candles) {
		t.Fatalf("expected %d feature rows, got %d", len(candles), len(features))
	}
}

func TestUptrendProducesPositiveDirectionalBias(t *testing.T) {
	// steady uptrend: +DI should dominate -DI and ADX should be meaningful
	candles := syntheticCandles(150, func(i int) float64 { return 100 + float64(i)*0.5 }, func(i int) float64 { return 10 })
	features := Compute(candles, nil)

	last := features[len(features)-1]
	if last.DiPlus <= last.DiMinus {
		t.Fatalf("uptrend should give +DI > -DI, got +DI=%.2f -DI=%.2f", last.DiPlus, last.DiMinus)
	}
	if last.Adx <= 20 {
		t.Fatalf("persistent trend should give a strong ADX, got %.2f", last.Adx)
	}
	if last.Ema21 <= last.Ema55 {
		t.Fatalf("uptrend should give EMA21 > EMA55, got %.2f vs %.2f", last.Ema21, last.Ema55)
	}
}

func TestVolumeSpikeRaisesVolRatio(t *testing.T) {
	candles := syntheticCandles(100, func(i int) float64 { return 100 }, func(i int) float64 {
		if i == 99 {
			return 50
		}
		return 10
	})
	features := Compute(candles, nil)

	last := features[len(features)-1]
	if last.VolRatio < 4.5 || last.VolRatio > 5.5 {
		t.Fatalf("5x volume spike should give vol_ratio near 5, got %.2f", last.VolRatio)
	}
}

func TestSqueezeDetectedInFlatMarket(t *testing.T) {
	// flat closes: Bollinger bands collapse inside the ATR-driven Keltner
	// channel because the wick range keeps ATR wide
	candles := syntheticCandles(100, func(i int) float64 { return 100 }, func(i int) float64 { return 10 })
	features := Compute(candles, nil)

	last := features[len(features)-1]
	if !last.SqueezeOn {
		t.Fatalf("flat market with real wick range should report squeeze on")
	}
}

func TestRsiBoundsAndSlope(t *testing.T) {
	up := syntheticCandles(100, func(i int) float64 { return 100 + float64(i) }, func(i int) float64 { return 10 })
	features := Compute(up, nil)

	last := features[len(features)-1]
	if last.Rsi < 0 || last.Rsi > 100 {
		t.Fatalf("rsi out of bounds: %.2f", last.Rsi)
	}
	if last.Rsi < 90 {
		t.Fatalf("monotonic rally should push rsi high, got %.2f", last.Rsi)
	}
}

func TestBtcCorrelationBestEffort(t *testing.T) {
	candles := syntheticCandles(120, func(i int) float64 { return 100 + float64(i)*0.5 }, func(i int) float64 { return 10 })

	// perfectly correlated reference series
	ref := make([]float64, 120)
	for i := range ref {
		ref[i] = 200 + float64(i)
	}

	features := Compute(candles, ref)
	last := features[len(features)-1]
	if last.BtcCorr == nil {
		t.Fatalf("expected correlation with a full reference series")
	}
	if math.Abs(*last.BtcCorr-1.0) > 0.01 {
		t.Fatalf("expected correlation ~1.0, got %.4f", *last.BtcCorr)
	}

	// too-short reference: correlation must be absent, not wrong
	features = Compute(candles, ref[:10])
	if features[len(features)-1].BtcCorr != nil {
		t.Fatalf("short reference series must skip correlation")
	}
}
