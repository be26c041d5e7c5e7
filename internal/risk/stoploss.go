package risk

import (
	"math"
	"sort"

	"FinPolicy/internal/domain/models"
	"FinPolicy/internal/services/features"
	"FinPolicy/pkg/errs"
)

// volatilityRatio treats a missing reading as normal volatility.
func volatilityRatio(s models.MarketStructure) float64 {
	if s.Volatility <= 0 {
		return 1
	}
	return s.Volatility
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// weightedATR averages the available timeframes by their configured weight.
func (e *Engine) weightedATR(md models.MarketData) (float64, int) {
	var sum, weights float64
	used := 0
	for _, a := range md.ATRData {
		w, ok := e.cfg.ATRWeights[a.Timeframe]
		if !ok || a.Value <= 0 || w <= 0 {
			continue
		}
		sum += a.Value * w
		weights += w
		used++
	}
	if weights == 0 {
		return 0, 0
	}
	return sum / weights, used
}

// dynamicMultiplier widens stops for high volatility and ranging markets and
// tightens them in strong trends.
func (e *Engine) dynamicMultiplier(s models.MarketStructure) float64 {
	m := e.cfg.BaseATRMult
	if volatilityRatio(s) >= features.HighVolatilityRatio {
		m *= e.cfg.HighVolFactor
	}
	if s.Trend == models.TrendRanging {
		m *= e.cfg.RangingFactor
	}
	if s.Trend.Strong() {
		m *= e.cfg.StrongFactor
	}
	return clamp(m, e.cfg.MinATRMult, e.cfg.MaxATRMult)
}

// regimeCoefficient composes the simplified regime table.
func (e *Engine) regimeCoefficient(md models.MarketData) float64 {
	c := e.cfg.Coefficients
	k := c.Neutral
	vol := volatilityRatio(md.Structure)
	switch {
	case vol >= features.HighVolatilityRatio:
		k *= c.HighVol
	case vol <= features.LowVolatilityRatio:
		k *= c.LowVol
	}
	switch {
	case md.Structure.Trend.Trending():
		k *= c.Trending
	case md.Structure.Trend == models.TrendRanging:
		k *= c.Ranging
	}
	if md.NewsImpact {
		k *= c.NewsImpact
	}
	return clamp(k, e.cfg.MinCoefficient, e.cfg.MaxCoefficient)
}

func (e *Engine) primaryATR(md models.MarketData) (float64, string) {
	if v := md.ATR(e.cfg.PrimaryTF); v > 0 {
		return v, e.cfg.PrimaryTF
	}
	for _, a := range md.ATRData {
		if a.Value > 0 {
			return a.Value, a.Timeframe
		}
	}
	return 0, ""
}

// StopLoss places the stop for req.
func (e *Engine) StopLoss(req models.RiskRequest) (models.StopLossResult, error) {
	const op = "stop loss"
	res := models.StopLossResult{}

	mode := e.cfg.StopMode
	wATR, used := e.weightedATR(req.Market)
	if mode == StopModeAuto || mode == "" {
		mode = StopModeSimplified
		if used >= 2 {
			mode = StopModeMultiTF
		}
	}

	switch mode {
	case StopModeMultiTF:
		if used == 0 {
			return res, errs.New(errs.KindValidation, op, "no weighted ATR timeframe available")
		}
		res.ATR = wATR
		res.Multiplier = e.dynamicMultiplier(req.Market.Structure)
	default:
		atr, _ := e.primaryATR(req.Market)
		if atr <= 0 {
			return res, errs.New(errs.KindValidation, op, "no ATR available")
		}
		res.ATR = atr
		res.Multiplier = e.regimeCoefficient(req.Market)
		mode = StopModeSimplified
	}
	res.Method = mode

	pip := PipSize(req.Symbol, req.Specs.PipSize)
	lo := req.Entry * e.cfg.MinStopDistancePct
	hi := req.Entry * e.cfg.MaxStopDistancePct
	if d, ok := LookupSymbol(req.Symbol); ok && e.cfg.EnforceSymbolPips {
		lo = math.Max(lo, d.MinSLPips*pip)
		hi = math.Min(hi, d.MaxSLPips*pip)
		if hi < lo {
			hi = lo
		}
	}
	distance := clamp(res.ATR*res.Multiplier, lo, hi)

	if level, ok := e.structureLevel(req, distance, lo, hi); ok {
		res.StructureLevel = level
		res.Method += "+structure"
		distance = math.Abs(req.Entry - level)
	}

	res.Distance = distance
	res.Price = req.Entry - req.Direction.Sign()*distance
	res.Pips = distance / pip
	return res, nil
}

// structureLevel finds the nearest support (BUY) or resistance (SELL) level on
// the loss side whose distance lies within the configured band around the
// computed distance and within the stop bounds.
func (e *Engine) structureLevel(req models.RiskRequest, distance, lo, hi float64) (float64, bool) {
	levels := req.Market.Structure.Support
	if req.Direction == models.DirectionSell {
		levels = req.Market.Structure.Resistance
	}
	candidates := make([]float64, 0, len(levels))
	for _, l := range levels {
		d := (req.Entry - l) * req.Direction.Sign()
		if d <= 0 {
			continue
		}
		if d < e.cfg.StructureMinRatio*distance || d > e.cfg.StructureMaxRatio*distance {
			continue
		}
		if d < lo || d > hi {
			continue
		}
		candidates = append(candidates, l)
	}
	if len(candidates) == 0 {
		return 0, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		return math.Abs(req.Entry-candidates[i]) < math.Abs(req.Entry-candidates[j])
	})
	return candidates[0], true
}
