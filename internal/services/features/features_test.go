package features

import (
	"math"
	"testing"
	"time"

	"FinPolicy/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candlesFromCloses(closes []float64, spread float64) []models.Candle {
	t0 := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		out[i] = models.Candle{
			Bucket: t0.Add(time.Duration(i) * time.Hour),
			Open:   open,
			High:   math.Max(open, c) + spread,
			Low:    math.Min(open, c) - spread,
			Close:  c,
		}
	}
	return out
}

func TestTrueRangeUsesGap(t *testing.T) {
	c := models.Candle{High: 1.1010, Low: 1.1000, Close: 1.1005}
	assert.InDelta(t, 0.0010, TrueRange(c, 0), 1e-12)
	assert.InDelta(t, 0.0030, TrueRange(c, 1.0980), 1e-12)
	assert.InDelta(t, 0.0020, TrueRange(c, 1.1020), 1e-12)
}

func TestATRConstantRange(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 1.1
	}
	candles := candlesFromCloses(closes, 0.0005)
	assert.InDelta(t, 0.0010, ATR(candles, 14), 1e-12)
	assert.Zero(t, ATR(candles[:5], 14))
}

func TestMultiATRSkipsShortSeries(t *testing.T) {
	long := candlesFromCloses(make([]float64, 20), 0.001)
	out := MultiATR(map[string][]models.Candle{
		models.TFH1: long,
		models.TFD1: long[:3],
		models.TFH4: long,
	}, 14)
	require.Len(t, out, 2)
	assert.Equal(t, models.TFH1, out[0].Timeframe)
	assert.Equal(t, models.TFH4, out[1].Timeframe)
}

func TestLogReturnsAndVolatility(t *testing.T) {
	candles := candlesFromCloses([]float64{100, 110, 99, 0, 120}, 0)
	r := ComputeLogReturns(candles)
	require.Len(t, r, 4)
	assert.InDelta(t, math.Log(1.1), r[0], 1e-12)
	assert.Zero(t, r[2], "non-positive close yields zero")

	assert.Zero(t, RealizedVolatility(r, 10, 252))
	flat := []float64{0.01, 0.01, 0.01}
	assert.InDelta(t, 0, RealizedVolatility(flat, 3, 252), 1e-12)
	assert.Greater(t, RealizedVolatility([]float64{0.01, -0.01, 0.02}, 3, 252), 0.0)
	assert.Equal(t, 252.0*24, BarsPerYearForTF(models.TFH1))
}

func TestClassifyRegime(t *testing.T) {
	up := make([]float64, 41)
	for i := range up {
		up[i] = 1.1 + float64(i)*0.001
	}
	r := ClassifyRegime(candlesFromCloses(up, 0.0002), 40)
	assert.Equal(t, models.TrendStrongUp, r.Trend)
	assert.InDelta(t, 1, r.Efficiency, 1e-9)

	chop := make([]float64, 41)
	for i := range chop {
		chop[i] = 1.1
		if i%2 == 1 {
			chop[i] = 1.101
		}
	}
	r = ClassifyRegime(candlesFromCloses(chop, 0.0002), 40)
	assert.Equal(t, models.TrendRanging, r.Trend)

	short := ClassifyRegime(candlesFromCloses(up[:5], 0), 40)
	assert.Equal(t, models.TrendNeutral, short.Trend)
	assert.Equal(t, 1.0, short.VolatilityRatio)
}

func TestVolatilityRatioFlagsBurst(t *testing.T) {
	closes := make([]float64, 41)
	price := 1.1
	for i := range closes {
		step := 0.0001
		if i > 30 {
			step = 0.003
		}
		if i%2 == 0 {
			step = -step
		}
		price += step
		closes[i] = price
	}
	r := ClassifyRegime(candlesFromCloses(closes, 0), 40)
	assert.True(t, r.HighVolatility())
	assert.False(t, r.LowVolatility())
}

func TestSupportResistance(t *testing.T) {
	closes := []float64{1.10, 1.09, 1.08, 1.09, 1.10, 1.11, 1.12, 1.11, 1.10, 1.095, 1.10}
	support, resistance := SupportResistance(candlesFromCloses(closes, 0), 2)
	require.NotEmpty(t, support)
	require.NotEmpty(t, resistance)
	assert.InDelta(t, 1.08, support[0], 1e-12)
	assert.InDelta(t, 1.12, resistance[0], 1e-12)
}

func TestBuildMarketData(t *testing.T) {
	up := make([]float64, 41)
	for i := range up {
		up[i] = 1.1 + float64(i)*0.001
	}
	c := candlesFromCloses(up, 0.0002)
	md := BuildMarketData(map[string][]models.Candle{models.TFH1: c, models.TFH4: c}, models.TFH1, 40)
	assert.Equal(t, models.TrendStrongUp, md.Structure.Trend)
	assert.Positive(t, md.ATR(models.TFH1))
	assert.Positive(t, md.ATR(models.TFH4))
}
