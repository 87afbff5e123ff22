package indicators

import (
	"math"

	"alphasniper/src/model"
)

const (
	emaFastPeriod  = 21
	emaSlowPeriod  = 55
	atrPeriod      = 20
	adxPeriod      = 14
	squeezePeriod  = 20
	bbMult         = 2.0
	kcMult         = 1.5
	volRatioPeriod = 5
	rsiPeriod      = 14
	corrPeriod     = 96
)

// WarmupBars is how many candles the engine needs before the first feature
// row is reliable. Callers should feed at least this much history plus the
// bars they want computed.
const WarmupBars = 60

// Bar is the float view of one candle used internally.
type bar struct {
	open, high, low, close, volume float64
}

// Compute derives the full feature set for each input candle. The input
// must be ascending by open time. The returned slice is aligned with the
// input; entries before the warmup window contain partially-zero features
// and should not be persisted by the caller.
func Compute(candles []model.MarketData, btcCloses []float64) []model.FeatureSet {
	n := len(candles)
	if n == 0 {
		return nil
	}

	bars := make([]bar, n)
	closes := make([]float64, n)
	for i, c := range candles {
		bars[i] = bar{
			open:   c.Open.InexactFloat64(),
			high:   c.High.InexactFloat64(),
			low:    c.Low.InexactFloat64(),
			close:  c.Close.InexactFloat64(),
			volume: c.Volume.InexactFloat64(),
		}
		closes[i] = bars[i].close
	}

	ema21 := ema(closes, emaFastPeriod)
	ema55 := ema(closes, emaSlowPeriod)
	tr := trueRange(bars)
	atr := sma(tr, atrPeriod)
	diPlus, diMinus, adx := directionalIndex(bars, atr)
	sma20 := sma(closes, squeezePeriod)
	std20 := rollingStd(closes, sma20, squeezePeriod)
	rsi := relativeStrength(closes, rsiPeriod)

	volumes := make([]float64, n)
	for i := range bars {
		volumes[i] = bars[i].volume
	}
	volMA := sma(volumes, volRatioPeriod)

	out := make([]model.FeatureSet, n)
	for i := 0; i < n; i++ {
		f := model.FeatureSet{
			Ema21:   ema21[i],
			Ema55:   ema55[i],
			Atr20:   atr[i],
			Adx:     adx[i],
			DiPlus:  diPlus[i],
			DiMinus: diMinus[i],
			Rsi:     rsi[i],
		}

		// squeeze: Bollinger band squeezed inside the Keltner channel
		bbUpper := sma20[i] + bbMult*std20[i]
		bbLower := sma20[i] - bbMult*std20[i]
		kcUpper := sma20[i] + kcMult*atr[i]
		kcLower := sma20[i] - kcMult*atr[i]
		f.SqueezeOn = bbLower > kcLower && bbUpper < kcUpper

		f.Momentum = bars[i].close - sma20[i]

		// volume vs the average of the prior window, current bar excluded
		if i >= 1 && volMA[i-1] > 0 {
			f.VolRatio = bars[i].volume / volMA[i-1]
		}

		if i >= 1 {
			f.RsiSlope = rsi[i] - rsi[i-1]
		}

		if corr, ok := rollingCorrelation(closes, btcCloses, i, corrPeriod); ok {
			v := corr
			f.BtcCorr = &v
		}

		out[i] = f
	}

	return out
}

func ema(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / (float64(period) + 1.0)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

func sma(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

func rollingStd(values, mean []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := period - 1; i < len(values); i++ {
		var sq float64
		for j := i - period + 1; j <= i; j++ {
			d := values[j] - mean[i]
			sq += d * d
		}
		out[i] = math.Sqrt(sq / float64(period))
	}
	return out
}

func trueRange(bars []bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		hl := bars[i].high - bars[i].low
		if i == 0 {
			out[i] = hl
			continue
		}
		hc := math.Abs(bars[i].high - bars[i-1].close)
		lc := math.Abs(bars[i].low - bars[i-1].close)
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

// directionalIndex computes +DI/-DI and ADX with Wilder-style exponential
// smoothing (alpha 1/period) over the ATR.
func directionalIndex(bars []bar, atr []float64) (diPlus, diMinus, adx []float64) {
	n := len(bars)
	diPlus = make([]float64, n)
	diMinus = make([]float64, n)
	adx = make([]float64, n)

	alpha := 1.0 / float64(adxPeriod)
	var smPlus, smMinus, smDx float64

	for i := 1; i < n; i++ {
		up := bars[i].high - bars[i-1].high
		down := bars[i-1].low - bars[i].low

		var plusDM, minusDM float64
		if up > down && up > 0 {
			plusDM = up
		}
		if down > up && down > 0 {
			minusDM = down
		}

		smPlus = alpha*plusDM + (1-alpha)*smPlus
		smMinus = alpha*minusDM + (1-alpha)*smMinus

		if atr[i] > 0 {
			diPlus[i] = 100 * smPlus / atr[i]
			diMinus[i] = 100 * smMinus / atr[i]
		}

		sum := diPlus[i] + diMinus[i]
		var dx float64
		if sum > 0 {
			dx = 100 * math.Abs(diPlus[i]-diMinus[i]) / sum
		}
		smDx = alpha*dx + (1-alpha)*smDx
		adx[i] = smDx
	}

	return diPlus, diMinus, adx
}

func relativeStrength(closes []float64, period int) []float64 {
	n := len(closes)
	out := make([]float64, n)
	if n < 2 {
		return out
	}

	alpha := 1.0 / float64(period)
	var avgGain, avgLoss float64

	for i := 1; i < n; i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = alpha*gain + (1-alpha)*avgGain
		avgLoss = alpha*loss + (1-alpha)*avgLoss

		if avgLoss == 0 {
			out[i] = 100
			continue
		}
		rs := avgGain / avgLoss
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// rollingCorrelation returns the Pearson correlation of the two close
// series over the trailing window ending at index i. Best effort: reports
// ok=false when the reference series is too short.
func rollingCorrelation(a, b []float64, i, period int) (float64, bool) {
	if b == nil || i+1 < period || i >= len(b) {
		return 0, false
	}

	start := i + 1 - period
	var sumA, sumB float64
	for j := start; j <= i; j++ {
		sumA += a[j]
		sumB += b[j]
	}
	meanA := sumA / float64(period)
	meanB := sumB / float64(period)

	var cov, varA, varB float64
	for j := start; j <= i; j++ {
		da := a[j] - meanA
		db := b[j] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0, false
	}
	return cov / math.Sqrt(varA*varB), true
}
