// Package risk places stops and targets, sizes positions and checks them
// against account and portfolio limits. It only advises: nothing here touches
// broker state.
package risk

import (
	"fmt"
	"math"

	"FinPolicy/internal/domain/models"
	"FinPolicy/internal/domain/repository"
	"FinPolicy/pkg/errs"
	applogger "FinPolicy/pkg/logger"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Engine is stateless between calls and safe for concurrent use.
type Engine struct {
	cfg      *Config
	validate *validator.Validate
	metrics  repository.Metrics
	l        *applogger.Logger
}

// NewEngine creates an engine with DefaultConfig adjusted by opts.
func NewEngine(l *applogger.Logger, opts ...Option) *Engine {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Engine{
		cfg:      &cfg,
		validate: validator.New(),
		metrics:  repository.NopMetrics{},
		l:        l.Component("risk"),
	}
}

// WithMetrics attaches a metrics sink.
func (e *Engine) WithMetrics(m repository.Metrics) *Engine {
	if m != nil {
		e.metrics = m
	}
	return e
}

// Config returns a copy of the active rules.
func (e *Engine) Config() Config { return *e.cfg }

// Evaluate computes stop, target and size for req and validates the result.
// A nil error with Validation.IsValid false means the trade was rejected by
// a risk rule; use Approve to turn that into an error.
func (e *Engine) Evaluate(req models.RiskRequest) (*models.RiskManagementResult, error) {
	if err := e.prepare(&req); err != nil {
		e.metrics.RecordError(string(errs.KindValidation))
		return nil, err
	}

	sl, err := e.StopLoss(req)
	if err != nil {
		e.metrics.RecordError(string(errs.KindValidation))
		return nil, err
	}
	tp := e.TakeProfit(req, sl)
	size, err := e.PositionSize(req, sl)
	if err != nil {
		e.metrics.RecordError(string(errs.KindValidation))
		return nil, err
	}

	pip := PipSize(req.Symbol, req.Specs.PipSize)
	pipValue := PipValuePerLot(req.Specs.TickValue, req.Specs.TickSize, req.Specs.ContractSize, pip)

	res := &models.RiskManagementResult{
		Symbol:       req.Symbol,
		Direction:    req.Direction,
		Entry:        req.Entry,
		StopLoss:     sl,
		TakeProfit:   tp,
		PositionSize: size,
	}
	winRate := e.winRate(req.Stats)
	res.Metrics = models.RiskMetrics{
		RiskAmount:      size.RiskAmount,
		RiskPercent:     size.RiskAmount / req.Account.Balance,
		RiskRewardRatio: tp.RiskReward,
		ExpectedValue:   ExpectedValue(winRate, tp.RiskReward, size.RiskAmount),
		KellyFraction:   Kelly(winRate, e.payoff(req.Stats, tp.RiskReward)),
		PipValuePerLot:  pipValue,
	}
	res.Validation = e.Validate(req, res)
	res.Recommendations = e.recommend(req, res)

	if !res.Validation.IsValid {
		e.l.Info("trade rejected by risk rules",
			applogger.String("symbol", req.Symbol),
			applogger.String("direction", string(req.Direction)),
			applogger.Strings("errors", res.Validation.Errors),
		)
		e.metrics.RecordError(string(errs.KindRiskLimit))
	} else {
		e.l.Debug("trade sized",
			applogger.String("symbol", req.Symbol),
			applogger.Float("lots", size.Lots),
			applogger.Float("stop", sl.Price),
			applogger.Float("target", tp.Price),
		)
	}
	return res, nil
}

// prepare fills defaults and rejects malformed requests.
func (e *Engine) prepare(req *models.RiskRequest) error {
	const op = "evaluate risk"
	if req.Specs.Symbol == "" {
		req.Specs.Symbol = req.Symbol
	}
	if err := defaults.Set(req); err != nil {
		return errs.Wrap(errs.KindValidation, op, err)
	}
	if err := e.validate.Struct(req); err != nil {
		return errs.Wrap(errs.KindValidation, op, err)
	}
	for _, f := range []float64{req.Entry, req.Account.Balance, req.Intensity} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return errs.New(errs.KindValidation, op, "non-finite input")
		}
	}
	return nil
}

func (e *Engine) winRate(stats *models.TradeStats) float64 {
	if stats != nil && stats.Trades >= e.cfg.MinKellyTrades && stats.WinRate > 0 {
		return stats.WinRate
	}
	return e.cfg.DefaultWinRate
}

// payoff prefers the realized average win/loss ratio over the planned R:R.
func (e *Engine) payoff(stats *models.TradeStats, rr float64) float64 {
	if stats != nil && stats.Trades >= e.cfg.MinKellyTrades && stats.AvgLoss > 0 && stats.AvgWin > 0 {
		return stats.AvgWin / stats.AvgLoss
	}
	return rr
}

func (e *Engine) recommend(req models.RiskRequest, res *models.RiskManagementResult) []string {
	var out []string
	if res.StopLoss.StructureLevel != 0 {
		out = append(out, fmt.Sprintf("stop anchored to structure level %.5f", res.StopLoss.StructureLevel))
	}
	if len(res.TakeProfit.Partials) > 0 {
		out = append(out, "scale out at the partial targets and trail the stop to entry after the first")
	}
	for _, a := range res.PositionSize.Adjustments {
		if a.Factor < 1 {
			out = append(out, fmt.Sprintf("size reduced by %s (x%.2f)", a.Name, a.Factor))
		}
	}
	if req.Market.NewsImpact {
		out = append(out, "high impact news pending, consider waiting")
	}
	if res.Metrics.KellyFraction <= 0 {
		out = append(out, "no statistical edge at current win rate")
	}
	if !res.Validation.IsValid {
		out = append(out, "do not place this trade")
	}
	return out
}
