package features

import (
	"math"
	"sort"

	"FinPolicy/internal/domain/models"
)

// DefaultATRPeriod is the Wilder smoothing period.
const DefaultATRPeriod = 14

// TrueRange of cur given the previous close. A non-positive prevClose means
// there is no previous bar.
func TrueRange(cur models.Candle, prevClose float64) float64 {
	hl := cur.High - cur.Low
	if prevClose <= 0 {
		return hl
	}
	return math.Max(hl, math.Max(math.Abs(cur.High-prevClose), math.Abs(cur.Low-prevClose)))
}

// ATR is Wilder's average true range over period bars, seeded with the
// simple mean of the first period true ranges. Zero when len(candles) < period.
func ATR(candles []models.Candle, period int) float64 {
	if period <= 0 {
		period = DefaultATRPeriod
	}
	if len(candles) < period {
		return 0
	}

	trs := make([]float64, len(candles))
	for i, c := range candles {
		prev := 0.0
		if i > 0 {
			prev = candles[i-1].Close
		}
		trs[i] = TrueRange(c, prev)
	}

	atr := 0.0
	for _, tr := range trs[:period] {
		atr += tr
	}
	atr /= float64(period)
	for _, tr := range trs[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr
}

// MultiATR computes ATR for each timeframe that has enough candles, sorted by
// timeframe name for stable output.
func MultiATR(byTF map[string][]models.Candle, period int) []models.ATRData {
	out := make([]models.ATRData, 0, len(byTF))
	for tf, candles := range byTF {
		if v := ATR(candles, period); v > 0 {
			out = append(out, models.ATRData{Timeframe: tf, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timeframe < out[j].Timeframe })
	return out
}
