package features

import (
	"math"
	"sort"

	"FinPolicy/internal/domain/models"
)

// Volatility ratio bounds that mark a high or low volatility regime.
const (
	HighVolatilityRatio = 1.3
	LowVolatilityRatio  = 0.7
)

// Efficiency ratio bounds for trend classification.
const (
	rangingEfficiency = 0.2
	strongEfficiency  = 0.5
)

// Regime is a coarse read of the current market.
type Regime struct {
	Trend           models.Trend `json:"trend"`
	Efficiency      float64      `json:"efficiency"`
	VolatilityRatio float64      `json:"volatilityRatio"`
}

// HighVolatility reports a volatility ratio at or above HighVolatilityRatio.
func (r Regime) HighVolatility() bool { return r.VolatilityRatio >= HighVolatilityRatio }

// LowVolatility reports a volatility ratio at or below LowVolatilityRatio.
func (r Regime) LowVolatility() bool {
	return r.VolatilityRatio > 0 && r.VolatilityRatio <= LowVolatilityRatio
}

// ClassifyRegime reads trend from Kaufman's efficiency ratio over the last
// window closes and volatility as short-window over long-window realized
// volatility (short is window/4 bars).
func ClassifyRegime(candles []models.Candle, window int) Regime {
	r := Regime{Trend: models.TrendNeutral, VolatilityRatio: 1}
	if window < 8 || len(candles) < window+1 {
		return r
	}
	recent := candles[len(candles)-window-1:]

	net := recent[len(recent)-1].Close - recent[0].Close
	path := 0.0
	for i := 1; i < len(recent); i++ {
		path += math.Abs(recent[i].Close - recent[i-1].Close)
	}
	if path > 0 {
		r.Efficiency = math.Abs(net) / path
	}

	switch {
	case r.Efficiency < rangingEfficiency:
		r.Trend = models.TrendRanging
	case r.Efficiency >= strongEfficiency && net > 0:
		r.Trend = models.TrendStrongUp
	case r.Efficiency >= strongEfficiency:
		r.Trend = models.TrendStrongDown
	case net > 0:
		r.Trend = models.TrendUp
	default:
		r.Trend = models.TrendDown
	}

	returns := ComputeLogReturns(recent)
	short := window / 4
	long := RealizedVolatility(returns, len(returns), 1)
	if long > 0 {
		r.VolatilityRatio = RealizedVolatility(returns, short, 1) / long
	}
	return r
}

// SupportResistance finds swing lows and highs: a bar whose low (high) is the
// extreme of the `strength` bars on each side. Levels are returned nearest to
// the last close first.
func SupportResistance(candles []models.Candle, strength int) (support, resistance []float64) {
	if strength < 1 || len(candles) < 2*strength+1 {
		return nil, nil
	}
	last := candles[len(candles)-1].Close
	for i := strength; i < len(candles)-strength; i++ {
		isLow, isHigh := true, true
		// ties go to the earlier bar
		for j := i - strength; j < i; j++ {
			if candles[j].Low <= candles[i].Low {
				isLow = false
			}
			if candles[j].High >= candles[i].High {
				isHigh = false
			}
		}
		for j := i + 1; j <= i+strength; j++ {
			if candles[j].Low < candles[i].Low {
				isLow = false
			}
			if candles[j].High > candles[i].High {
				isHigh = false
			}
		}
		if isLow && candles[i].Low < last {
			support = append(support, candles[i].Low)
		}
		if isHigh && candles[i].High > last {
			resistance = append(resistance, candles[i].High)
		}
	}
	byDistance := func(levels []float64) {
		sort.Slice(levels, func(a, b int) bool {
			return math.Abs(levels[a]-last) < math.Abs(levels[b]-last)
		})
	}
	byDistance(support)
	byDistance(resistance)
	return support, resistance
}

// BuildMarketData assembles risk engine inputs from per-timeframe candles.
// The regime and structure are read from the primary timeframe.
func BuildMarketData(byTF map[string][]models.Candle, primary string, window int) models.MarketData {
	md := models.MarketData{ATRData: MultiATR(byTF, DefaultATRPeriod)}
	candles := byTF[primary]
	regime := ClassifyRegime(candles, window)
	md.Structure.Trend = regime.Trend
	md.Structure.Volatility = regime.VolatilityRatio
	md.Structure.Support, md.Structure.Resistance = SupportResistance(candles, 2)
	return md
}
