// Package features derives the market inputs the risk engine consumes from
// raw candles: true range and ATR, log returns, realized volatility, and a
// coarse trend/volatility regime.
package features

import (
	"math"

	"FinPolicy/internal/domain/models"

	"gonum.org/v1/gonum/stat"
)

// ComputeLogReturns computes log returns r_t = ln(C_t / C_{t-1}).
// It returns a slice of length len(candles)-1, or nil if insufficient data.
func ComputeLogReturns(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		cur := candles[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility is the sample std of the last window returns, annualized
// with barsPerYear. Zero when there is not enough data.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	sigma := stat.StdDev(logReturns[len(logReturns)-window:], nil)
	if math.IsNaN(sigma) {
		return 0
	}
	return sigma * math.Sqrt(barsPerYear)
}

// BarsPerYearForTF returns the approximate number of bars per year for a
// timeframe, on a 24h market open 252 days a year.
func BarsPerYearForTF(tf string) float64 {
	const days = 252
	switch tf {
	case models.TFM5:
		return days * 24 * 12
	case models.TFM15:
		return days * 24 * 4
	case models.TFH4:
		return days * 6
	case models.TFD1:
		return days
	default:
		return days * 24
	}
}
