package risk

import (
	"math"

	"FinPolicy/internal/domain/models"
	"FinPolicy/pkg/errs"

	"github.com/shopspring/decimal"
)

// Kelly returns f* = W - (1-W)/R for win rate W and payoff ratio R.
func Kelly(winRate, payoff float64) float64 {
	if payoff <= 0 {
		return 0
	}
	return winRate - (1-winRate)/payoff
}

// RawLots is riskAmount / (stopPips * pipValuePerLot).
func RawLots(riskAmount, stopPips, pipValuePerLot float64) float64 {
	if stopPips <= 0 || pipValuePerLot <= 0 {
		return 0
	}
	return riskAmount / (stopPips * pipValuePerLot)
}

// RoundLots snaps lots to the nearest lotStep inside [minLot, maxLot].
// Bounds that are not a step multiple are moved inward to one.
func RoundLots(lots float64, specs models.SymbolSpecs) float64 {
	step := decimal.NewFromFloat(specs.LotStep)
	if !step.IsPositive() {
		step = decimal.NewFromFloat(0.01)
	}
	minLot := decimal.NewFromFloat(specs.MinLot).Div(step).Ceil().Mul(step)
	maxLot := decimal.NewFromFloat(specs.MaxLot).Div(step).Floor().Mul(step)
	if minLot.LessThan(step) {
		minLot = step
	}
	if maxLot.LessThan(minLot) {
		maxLot = minLot
	}

	if math.IsNaN(lots) || lots < 0 {
		lots = 0
	}
	v := decimal.NewFromFloat(lots).Div(step).Round(0).Mul(step)
	if v.LessThan(minLot) {
		v = minLot
	}
	if v.GreaterThan(maxLot) {
		v = maxLot
	}
	f, _ := v.Float64()
	return f
}

// OnLotStep reports whether lots is an integer multiple of step.
func OnLotStep(lots, step float64) bool {
	if step <= 0 {
		return false
	}
	return decimal.NewFromFloat(lots).Mod(decimal.NewFromFloat(step)).IsZero()
}

// PositionSize sizes the trade from the per-trade risk budget, then applies
// portfolio, correlation, volatility, drawdown, Kelly and account-tier
// adjustments before clamping and rounding.
func (e *Engine) PositionSize(req models.RiskRequest, sl models.StopLossResult) (models.PositionSizeResult, error) {
	const op = "position size"
	res := models.PositionSizeResult{}

	pip := PipSize(req.Symbol, req.Specs.PipSize)
	pipValue := PipValuePerLot(req.Specs.TickValue, req.Specs.TickSize, req.Specs.ContractSize, pip)
	if sl.Pips <= 0 || pipValue <= 0 {
		return res, errs.New(errs.KindValidation, op, "stop distance and pip value must be positive")
	}

	intensity := req.Intensity
	if intensity <= 0 || intensity > 1 {
		intensity = 1
	}
	budget := req.Account.Balance * e.cfg.MaxRiskPerTrade * intensity
	res.RawLots = RawLots(budget, sl.Pips, pipValue)

	lots := res.RawLots
	apply := func(name string, f float64) {
		if f == 1 || math.IsNaN(f) {
			return
		}
		lots *= f
		res.Adjustments = append(res.Adjustments, models.SizeAdjustment{Name: name, Factor: f})
	}

	apply("portfolio_budget", e.portfolioFactor(req, budget))
	apply("correlation", e.correlationFactor(req))
	apply("volatility", e.volatilityFactor(req.Market.Structure))
	apply("drawdown", e.drawdownFactor(req.Portfolio.CurrentDrawdownPct))
	if f, ok := e.kellyFactor(req.Stats); ok {
		apply("kelly", f)
	}
	apply("account_tier", tierFactor(req.Account.Balance))

	res.Lots = e.fitRiskCap(RoundLots(lots, req.Specs), req, sl.Pips, pipValue)
	res.RiskAmount = res.Lots * sl.Pips * pipValue
	return res, nil
}

// fitRiskCap steps rounded lots down one lotStep at a time until the trade
// fits the per-trade and remaining portfolio caps. It never goes below the
// minimum lot; a minimum lot that still breaches a cap is left for Validate
// to reject.
func (e *Engine) fitRiskCap(lots float64, req models.RiskRequest, stopPips, pipValue float64) float64 {
	balance := req.Account.Balance
	within := func(l float64) bool {
		risk := l * stopPips * pipValue / balance
		return risk <= e.cfg.MaxRiskPerTrade && req.Portfolio.TotalRiskPct+risk <= e.cfg.MaxPortfolioRisk
	}

	step := decimal.NewFromFloat(req.Specs.LotStep)
	if !step.IsPositive() {
		step = decimal.NewFromFloat(0.01)
	}
	minLot := decimal.NewFromFloat(RoundLots(0, req.Specs))
	v := decimal.NewFromFloat(lots)
	for {
		f, _ := v.Float64()
		if within(f) {
			return f
		}
		next := v.Sub(step)
		if next.LessThan(minLot) {
			return f
		}
		v = next
	}
}

// portfolioFactor shrinks the trade to the remaining portfolio risk budget.
func (e *Engine) portfolioFactor(req models.RiskRequest, budget float64) float64 {
	if budget <= 0 {
		return 1
	}
	remaining := (e.cfg.MaxPortfolioRisk - req.Portfolio.TotalRiskPct) * req.Account.Balance
	if remaining <= 0 {
		return 0
	}
	f := math.Min(1, remaining/budget)
	if e.cfg.MaxPositions > 1 && len(req.Positions) >= e.cfg.MaxPositions-1 {
		f *= 0.5
	}
	return f
}

// correlationFactor divides by one plus the summed correlation of open
// positions correlated above the threshold. A same-direction position on the
// same symbol counts as fully correlated.
func (e *Engine) correlationFactor(req models.RiskRequest) float64 {
	exposure := 0.0
	for _, p := range req.Positions {
		var rho float64
		if normalizeSymbol(p.Symbol) == normalizeSymbol(req.Symbol) {
			if p.Direction != req.Direction {
				continue
			}
			rho = 1
		} else {
			v, ok := req.Portfolio.Correlations[p.Symbol]
			if !ok {
				continue
			}
			rho = v
		}
		if math.Abs(rho) >= e.cfg.CorrelationThreshold {
			exposure += math.Abs(rho)
		}
	}
	return 1 / (1 + exposure)
}

// volatilityFactor scales by 1/sqrt(volatility ratio) within the bounds.
func (e *Engine) volatilityFactor(s models.MarketStructure) float64 {
	return clamp(1/math.Sqrt(volatilityRatio(s)), e.cfg.MinVolFactor, e.cfg.MaxVolFactor)
}

// drawdownFactor reduces size linearly once drawdown passes half the maximum.
func (e *Engine) drawdownFactor(dd float64) float64 {
	start := e.cfg.MaxDrawdown / 2
	if dd <= start || e.cfg.MaxDrawdown <= 0 {
		return 1
	}
	f := 1 - (dd-start)/(e.cfg.MaxDrawdown-start)
	return math.Max(e.cfg.DrawdownFloor, f)
}

// kellyFactor compares the fractional Kelly stake with the per-trade budget.
// A non-positive edge falls to the drawdown floor rather than zero.
func (e *Engine) kellyFactor(stats *models.TradeStats) (float64, bool) {
	if !e.cfg.UseKelly || stats == nil || stats.Trades < e.cfg.MinKellyTrades || stats.AvgLoss <= 0 {
		return 1, false
	}
	f := Kelly(stats.WinRate, stats.AvgWin/stats.AvgLoss) * e.cfg.KellyMultiplier
	if f <= 0 {
		return e.cfg.DrawdownFloor, true
	}
	return math.Min(1, f/e.cfg.MaxRiskPerTrade), true
}

func tierFactor(balance float64) float64 {
	switch {
	case balance > 500_000:
		return 0.6
	case balance > 100_000:
		return 0.8
	default:
		return 1
	}
}
