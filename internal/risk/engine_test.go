package risk

import (
	"math/rand"
	"testing"

	"FinPolicy/internal/domain/models"
	"FinPolicy/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eurusd(entry, atr float64, trend models.Trend) models.RiskRequest {
	return models.RiskRequest{
		Symbol:    "EUR_USD",
		Direction: models.DirectionBuy,
		Entry:     entry,
		Account:   models.AccountInfo{Balance: 10000, Equity: 10000, FreeMargin: 10000},
		Specs: models.SymbolSpecs{
			Symbol:    "EUR_USD",
			MinLot:    0.01,
			MaxLot:    100,
			LotStep:   0.01,
			TickValue: 1,
			TickSize:  0.00001,
		},
		Market: models.MarketData{
			ATRData:   []models.ATRData{{Timeframe: "H1", Value: atr}},
			Structure: models.MarketStructure{Trend: trend},
		},
	}
}

func TestStopLossSimplifiedRanging(t *testing.T) {
	e := NewEngine(nil)
	sl, err := e.StopLoss(eurusd(1.1000, 0.0010, models.TrendRanging))
	require.NoError(t, err)

	assert.Equal(t, StopModeSimplified, sl.Method)
	assert.InDelta(t, 1.2, sl.Multiplier, 1e-12)
	assert.InDelta(t, 0.0012, sl.Distance, 1e-12)
	assert.InDelta(t, 1.0988, sl.Price, 1e-12)
	assert.InDelta(t, 12, sl.Pips, 1e-9)
}

func TestStopLossSellIsAboveEntry(t *testing.T) {
	req := eurusd(1.1000, 0.0010, models.TrendRanging)
	req.Direction = models.DirectionSell
	sl, err := NewEngine(nil).StopLoss(req)
	require.NoError(t, err)
	assert.InDelta(t, 1.1012, sl.Price, 1e-12)
}

func TestStopLossMultiTimeframe(t *testing.T) {
	req := eurusd(1.1000, 0.0010, models.TrendNeutral)
	req.Market.ATRData = append(req.Market.ATRData, models.ATRData{Timeframe: "H4", Value: 0.0020})

	sl, err := NewEngine(nil).StopLoss(req)
	require.NoError(t, err)

	weighted := (0.0010*0.30 + 0.0020*0.25) / 0.55
	assert.Equal(t, StopModeMultiTF, sl.Method)
	assert.InDelta(t, weighted, sl.ATR, 1e-12)
	assert.InDelta(t, 1.5, sl.Multiplier, 1e-12)
	assert.InDelta(t, weighted*1.5, sl.Distance, 1e-12)
}

func TestDynamicMultiplierIsClamped(t *testing.T) {
	e := NewEngine(nil)
	m := e.dynamicMultiplier(models.MarketStructure{Trend: models.TrendStrongUp})
	assert.InDelta(t, 1.275, m, 1e-12)

	e = NewEngine(nil, func(c *Config) { c.BaseATRMult = 10 })
	assert.Equal(t, 3.0, e.dynamicMultiplier(models.MarketStructure{Volatility: 2}))
}

func TestStopLossClampedToSymbolBounds(t *testing.T) {
	e := NewEngine(nil)
	tight, err := e.StopLoss(eurusd(1.1000, 0.0001, models.TrendNeutral))
	require.NoError(t, err)
	assert.InDelta(t, 0.0010, tight.Distance, 1e-12)

	wide, err := e.StopLoss(eurusd(1.1000, 0.0200, models.TrendNeutral))
	require.NoError(t, err)
	assert.InDelta(t, 0.0050, wide.Distance, 1e-12)
}

func TestStopLossPrefersStructure(t *testing.T) {
	req := eurusd(1.1000, 0.0010, models.TrendRanging)
	req.Market.Structure.Support = []float64{1.0970, 1.0985}

	sl, err := NewEngine(nil).StopLoss(req)
	require.NoError(t, err)
	assert.InDelta(t, 1.0985, sl.Price, 1e-12)
	assert.Equal(t, 1.0985, sl.StructureLevel)
	assert.InDelta(t, 15, sl.Pips, 1e-9)
	assert.Equal(t, StopModeSimplified+"+structure", sl.Method)
}

func TestStopLossNeedsATR(t *testing.T) {
	req := eurusd(1.1000, 0, models.TrendNeutral)
	_, err := NewEngine(nil).StopLoss(req)
	assert.True(t, errs.Is(err, errs.KindValidation))
}

func TestTakeProfitPartials(t *testing.T) {
	req := eurusd(1.1000, 0.0010, models.TrendRanging)
	req.Direction = models.DirectionSell
	e := NewEngine(nil)
	sl, err := e.StopLoss(req)
	require.NoError(t, err)

	tp := e.TakeProfit(req, sl)
	assert.Equal(t, 2.0, tp.RiskReward)
	assert.InDelta(t, 1.0976, tp.Price, 1e-12)
	require.Len(t, tp.Partials, 3)
	assert.InDelta(t, 1.0988, tp.Partials[0].Price, 1e-12)
	assert.InDelta(t, 1.0964, tp.Partials[2].Price, 1e-12)

	var pct float64
	for _, p := range tp.Partials {
		pct += p.Percent
	}
	assert.InDelta(t, 1.0, pct, 1e-12)
}

func TestTakeProfitNeverBelowMinimumRR(t *testing.T) {
	e := NewEngine(nil, func(c *Config) { c.TargetRR = 1.0 })
	tp := e.TakeProfit(eurusd(1.1, 0.001, models.TrendNeutral), models.StopLossResult{Distance: 0.001})
	assert.Equal(t, 1.5, tp.RiskReward)
}

func TestEvaluateThirtyPipStop(t *testing.T) {
	res, err := NewEngine(nil).Evaluate(eurusd(1.1000, 0.0030, models.TrendNeutral))
	require.NoError(t, err)

	assert.InDelta(t, 30, res.StopLoss.Pips, 1e-9)
	assert.InDelta(t, 10, res.Metrics.PipValuePerLot, 1e-9)
	assert.InDelta(t, 200.0/300.0, res.PositionSize.RawLots, 1e-9)
	// nearest step is 0.67 (2.01%), one step down fits the 2% cap
	assert.Equal(t, 0.66, res.PositionSize.Lots)
	assert.Empty(t, res.PositionSize.Adjustments)

	assert.True(t, res.Validation.IsValid, res.Validation.Errors)
	assert.NoError(t, Approve(res))
	assert.InDelta(t, 0.0198, res.Metrics.RiskPercent, 1e-9)
	assert.LessOrEqual(t, res.Metrics.RiskPercent, 0.02)
	assert.Greater(t, res.Metrics.ExpectedValue, 0.0)
}

func TestEvaluateRejectsMinLotAboveCap(t *testing.T) {
	req := eurusd(1.1000, 0.0030, models.TrendNeutral)
	req.Specs.MinLot = 1
	req.Specs.LotStep = 1

	res, err := NewEngine(nil).Evaluate(req)
	require.NoError(t, err)

	assert.Equal(t, 1.0, res.PositionSize.Lots)
	assert.InDelta(t, 0.03, res.Metrics.RiskPercent, 1e-9)
	assert.False(t, res.Validation.IsValid)
	assert.True(t, errs.Is(Approve(res), errs.KindRiskLimit))
}

func TestFitRiskCapStepsDown(t *testing.T) {
	e := NewEngine(nil)
	req := eurusd(1.1000, 0.0030, models.TrendNeutral)

	assert.Equal(t, 0.66, e.fitRiskCap(0.67, req, 30, 10))
	assert.Equal(t, 0.5, e.fitRiskCap(0.5, req, 30, 10))

	req.Portfolio.TotalRiskPct = 0.055
	assert.Equal(t, 0.16, e.fitRiskCap(0.67, req, 30, 10))
}

func TestEvaluateRejectsBadRequests(t *testing.T) {
	e := NewEngine(nil)

	hold := eurusd(1.1, 0.001, models.TrendNeutral)
	hold.Direction = models.DirectionHold
	_, err := e.Evaluate(hold)
	assert.True(t, errs.Is(err, errs.KindValidation))

	broke := eurusd(1.1, 0.001, models.TrendNeutral)
	broke.Account.Balance = 0
	_, err = e.Evaluate(broke)
	assert.True(t, errs.Is(err, errs.KindValidation))

	noEntry := eurusd(0, 0.001, models.TrendNeutral)
	_, err = e.Evaluate(noEntry)
	assert.True(t, errs.Is(err, errs.KindValidation))
}

func TestHardLimitsReject(t *testing.T) {
	cases := map[string]func(*models.RiskRequest){
		"positions": func(r *models.RiskRequest) {
			for i := 0; i < 5; i++ {
				r.Positions = append(r.Positions, models.Position{Symbol: "USD_JPY", Direction: models.DirectionBuy})
			}
		},
		"daily loss": func(r *models.RiskRequest) { r.Portfolio.DailyLossPct = 0.05 },
		"drawdown":   func(r *models.RiskRequest) { r.Portfolio.CurrentDrawdownPct = 0.2 },
		"portfolio":  func(r *models.RiskRequest) { r.Portfolio.TotalRiskPct = 0.06 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := eurusd(1.1000, 0.0030, models.TrendNeutral)
			mutate(&req)
			res, err := NewEngine(nil).Evaluate(req)
			require.NoError(t, err)
			assert.False(t, res.Validation.IsValid)
			assert.NotEmpty(t, res.Validation.Errors)
			assert.True(t, errs.Is(Approve(res), errs.KindRiskLimit))
		})
	}
}

func TestValidateRiskReward(t *testing.T) {
	e := NewEngine(nil)
	req := eurusd(1.1000, 0.0030, models.TrendNeutral)

	low := &models.RiskManagementResult{Metrics: models.RiskMetrics{RiskPercent: 0.01, RiskRewardRatio: 1.2, ExpectedValue: 1}}
	v := e.Validate(req, low)
	assert.False(t, v.IsValid)
	assert.Len(t, v.Errors, 1)

	adequate := &models.RiskManagementResult{Metrics: models.RiskMetrics{RiskPercent: 0.018, RiskRewardRatio: 1.8, ExpectedValue: -1}}
	v = e.Validate(req, adequate)
	assert.True(t, v.IsValid)
	assert.Len(t, v.Warnings, 3)
}

func TestLotInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	e := NewEngine(nil)
	trends := []models.Trend{models.TrendNeutral, models.TrendRanging, models.TrendUp, models.TrendStrongDown}

	for i := 0; i < 300; i++ {
		req := eurusd(1.0+rng.Float64()*0.5, 0.0002+rng.Float64()*0.006, trends[rng.Intn(len(trends))])
		req.Account.Balance = 500 + rng.Float64()*900000
		req.Specs.MinLot = []float64{0.01, 0.1, 1}[rng.Intn(3)]
		req.Specs.LotStep = []float64{0.01, 0.1}[rng.Intn(2)]
		req.Specs.MaxLot = 50
		req.Market.Structure.Volatility = rng.Float64() * 3
		req.Portfolio.CurrentDrawdownPct = rng.Float64() * 0.25
		req.Portfolio.TotalRiskPct = rng.Float64() * 0.07
		if rng.Intn(2) == 0 {
			req.Direction = models.DirectionSell
		}

		res, err := e.Evaluate(req)
		require.NoError(t, err)

		lots := res.PositionSize.Lots
		assert.GreaterOrEqual(t, lots, req.Specs.MinLot)
		assert.LessOrEqual(t, lots, req.Specs.MaxLot)
		assert.True(t, OnLotStep(lots, req.Specs.LotStep), "lots %v step %v", lots, req.Specs.LotStep)

		if res.Validation.IsValid {
			assert.LessOrEqual(t, res.Metrics.RiskPercent, e.cfg.MaxRiskPerTrade)
			assert.LessOrEqual(t, req.Portfolio.TotalRiskPct+res.Metrics.RiskPercent, e.cfg.MaxPortfolioRisk)
			assert.GreaterOrEqual(t, res.Metrics.RiskRewardRatio, e.cfg.MinRR)
		}
	}
}

func TestRoundLots(t *testing.T) {
	specs := models.SymbolSpecs{MinLot: 0.01, MaxLot: 100, LotStep: 0.01}
	assert.Equal(t, 0.67, RoundLots(0.6666, specs))
	assert.Equal(t, 0.66, RoundLots(0.6649, specs))
	assert.Equal(t, 0.01, RoundLots(0.001, specs))
	assert.Equal(t, 100.0, RoundLots(1e6, specs))

	odd := models.SymbolSpecs{MinLot: 0.15, MaxLot: 9.95, LotStep: 0.1}
	assert.Equal(t, 0.2, RoundLots(0, odd))
	assert.Equal(t, 9.9, RoundLots(20, odd))
}

func TestKelly(t *testing.T) {
	assert.InDelta(t, 0.4, Kelly(0.6, 2), 1e-12)
	assert.InDelta(t, -0.4, Kelly(0.3, 1), 1e-12)
	assert.Zero(t, Kelly(0.5, 0))
}

func TestKellyFactor(t *testing.T) {
	e := NewEngine(nil)

	_, ok := e.kellyFactor(&models.TradeStats{Trades: 5, WinRate: 0.9, AvgWin: 2, AvgLoss: 1})
	assert.False(t, ok)

	f, ok := e.kellyFactor(&models.TradeStats{Trades: 40, WinRate: 0.42, AvgWin: 1.5, AvgLoss: 1})
	require.True(t, ok)
	assert.InDelta(t, 0.25*(0.42-0.58/1.5)/0.02, f, 1e-12)

	f, ok = e.kellyFactor(&models.TradeStats{Trades: 40, WinRate: 0.3, AvgWin: 1, AvgLoss: 1})
	require.True(t, ok)
	assert.Equal(t, 0.25, f)

	f, _ = e.kellyFactor(&models.TradeStats{Trades: 40, WinRate: 0.7, AvgWin: 3, AvgLoss: 1})
	assert.Equal(t, 1.0, f)
}

func TestSizeAdjustments(t *testing.T) {
	e := NewEngine(nil)

	assert.Equal(t, 1.0, tierFactor(100_000))
	assert.Equal(t, 0.8, tierFactor(100_001))
	assert.Equal(t, 0.6, tierFactor(600_000))

	assert.Equal(t, 1.0, e.drawdownFactor(0.1))
	assert.InDelta(t, 0.5, e.drawdownFactor(0.15), 1e-12)
	assert.Equal(t, 0.25, e.drawdownFactor(0.19))

	assert.InDelta(t, 0.5, e.volatilityFactor(models.MarketStructure{Volatility: 4}), 1e-12)
	assert.Equal(t, 1.5, e.volatilityFactor(models.MarketStructure{Volatility: 0.1}))
	assert.Equal(t, 1.0, e.volatilityFactor(models.MarketStructure{}))

	req := eurusd(1.1, 0.003, models.TrendNeutral)
	req.Positions = []models.Position{
		{Symbol: "GBP_USD", Direction: models.DirectionBuy},
		{Symbol: "USD_JPY", Direction: models.DirectionBuy},
	}
	req.Portfolio.Correlations = map[string]float64{"GBP_USD": 0.8, "USD_JPY": 0.3}
	assert.InDelta(t, 1/1.8, e.correlationFactor(req), 1e-12)
}

func TestEvaluateRecordsAdjustments(t *testing.T) {
	req := eurusd(1.1000, 0.0030, models.TrendNeutral)
	req.Account.Balance = 200_000
	req.Portfolio.CurrentDrawdownPct = 0.15

	res, err := NewEngine(nil).Evaluate(req)
	require.NoError(t, err)

	names := map[string]float64{}
	for _, a := range res.PositionSize.Adjustments {
		names[a.Name] = a.Factor
	}
	assert.InDelta(t, 0.5, names["drawdown"], 1e-12)
	assert.Equal(t, 0.8, names["account_tier"])
	// 4000 / 300 * 0.5 * 0.8
	assert.Equal(t, 5.33, res.PositionSize.Lots)
}

func TestPipHelpers(t *testing.T) {
	assert.Equal(t, 0.01, PipSize("USDJPY", 0))
	assert.Equal(t, 0.01, PipSize("EUR/JPY", 0))
	assert.Equal(t, 0.0001, PipSize("EURGBP", 0))
	assert.Equal(t, 0.5, PipSize("EURUSD", 0.5))
	assert.InDelta(t, 10, PipValuePerLot(0, 0, 0, 0.0001), 1e-12)
	assert.InDelta(t, 10, PipValuePerLot(1, 0.00001, 100000, 0.0001), 1e-9)
}
