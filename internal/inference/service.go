// Package inference turns a trading state into a filtered action and, for
// actionable decisions, a risk-checked trade proposal.
package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"FinPolicy/internal/domain/models"
	"FinPolicy/internal/nn"
	"FinPolicy/internal/registry"
	"FinPolicy/pkg/errs"
	applogger "FinPolicy/pkg/logger"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
)

// maxUncertainty is the total uncertainty that maps to risk level 1 for
// models without a constraint head.
const maxUncertainty = 0.25

// ModelSource resolves served models.
type ModelSource interface {
	ActiveModel(ctx context.Context, name string) (*registry.Model, error)
	LoadModel(ctx context.Context, name, version string) (*registry.Model, error)
}

// RiskEvaluator sizes and validates a trade.
type RiskEvaluator interface {
	Evaluate(req models.RiskRequest) (*models.RiskManagementResult, error)
}

// Service is safe for concurrent use. Models are shared immutable snapshots.
type Service struct {
	cfg    *Config
	models ModelSource
	risk   RiskEvaluator
	mu     sync.Mutex
	rng    *rand.Rand
	l      *applogger.Logger
}

// NewService wires the model source and the risk engine.
func NewService(src ModelSource, re RiskEvaluator, l *applogger.Logger, opts ...Option) *Service {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = defaultConfig().Metrics
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Service{
		cfg:    cfg,
		models: src,
		risk:   re,
		rng:    rand.New(rand.NewSource(seed)),
		l:      l.Component("inference"),
	}
}

// Predict runs the active policy on state and applies the decision filters.
func (s *Service) Predict(ctx context.Context, state models.TradingState) (*models.Prediction, error) {
	start := time.Now()
	defer func() { s.cfg.Metrics.RecordLatency("predict", time.Since(start).Seconds()) }()

	model, fallback, err := s.resolve(ctx)
	if err != nil {
		s.recordError(err)
		return nil, err
	}
	net := model.Network
	if err := state.Validate(net.InputDim()); err != nil {
		s.recordError(err)
		return nil, err
	}

	sample, err := net.SelectAction(state.Features, false, nil)
	if err != nil {
		s.recordError(err)
		return nil, err
	}
	unc := s.uncertainty(net, state.Features, sample.Index)

	action := models.RLAction{
		Direction:      sample.Direction,
		Intensity:      sample.Prob,
		Confidence:     sample.Prob * (1 - math.Min(1, unc.Total)) * (1 - sample.ConstraintPenalty),
		RiskLevel:      riskLevel(sample, unc),
		ExpectedReward: sample.Value,
	}
	if action.Direction == models.DirectionHold {
		action.Hold(fmt.Sprintf("policy chose HOLD with probability %.2f", sample.Prob))
	}
	if sample.ConstraintPenalty > 0 {
		action.Reason(fmt.Sprintf("constraint score %.2f above threshold %.2f, confidence reduced",
			sample.Constraint, net.ConstraintThreshold()))
	}
	if fallback {
		action.Reason(fmt.Sprintf("served by fallback model %s@%s", model.Ref.Name, model.Ref.Version))
	}

	at := state.Timestamp
	if at.IsZero() {
		at = s.cfg.Now()
	}
	ApplyFilters(&action, state, at, s.cfg)

	pred := &models.Prediction{
		ID:            uuid.NewString(),
		Symbol:        state.Symbol,
		Timeframe:     state.Timeframe,
		Action:        action,
		RawDirection:  sample.Direction,
		Probabilities: sample.Probs,
		LogProb:       sample.LogProb,
		Value:         sample.Value,
		Uncertainty:   unc,
		Model:         model.Ref,
		Fallback:      fallback,
		State:         state,
		CreatedAt:     s.cfg.Now().UTC(),
	}
	if sample.HasConstraint {
		c := sample.Constraint
		pred.ConstraintScore = &c
	}

	s.logPrediction(ctx, pred)
	s.cfg.Metrics.RecordPrediction(string(action.Direction), fallback)
	return pred, nil
}

// Decide predicts and, unless the action is HOLD, sizes the trade.
func (s *Service) Decide(ctx context.Context, req models.DecideRequest) (*models.TradeProposal, error) {
	pred, err := s.Predict(ctx, req.State)
	if err != nil {
		return nil, err
	}

	a := pred.Action
	p := &models.TradeProposal{
		ID:         uuid.NewString(),
		Symbol:     req.State.Symbol,
		Direction:  a.Direction,
		Entry:      req.Entry,
		Prediction: pred,
		CreatedAt:  s.cfg.Now().UTC(),
	}
	if a.Direction == models.DirectionHold {
		p.Warnings = a.Reasoning
		s.broadcast(p)
		return p, nil
	}
	if s.risk == nil {
		return nil, errs.New(errs.KindValidation, "decide", "no risk engine configured")
	}

	rreq := req.RiskRequest(a.Direction, a.Intensity)
	fillMarket(&rreq.Market, req.State.Market)
	rr, err := s.risk.Evaluate(rreq)
	if err != nil {
		s.recordError(err)
		return nil, fmt.Errorf("evaluate risk: %w", err)
	}

	p.Risk = rr
	p.StopLoss = rr.StopLoss.Price
	p.TakeProfit = rr.TakeProfit.Price
	p.Lots = rr.PositionSize.Lots
	p.Approved = rr.Validation.IsValid
	p.Errors = rr.Validation.Errors
	p.Warnings = rr.Validation.Warnings

	s.l.Info("decision",
		applogger.String("id", p.ID),
		applogger.String("symbol", p.Symbol),
		applogger.String("direction", string(p.Direction)),
		applogger.Float("lots", p.Lots),
		applogger.Bool("approved", p.Approved),
	)
	s.broadcast(p)
	return p, nil
}

// resolve loads the active model, falling back on integrity, resource and
// timeout failures when a fallback is configured.
func (s *Service) resolve(ctx context.Context) (*registry.Model, bool, error) {
	m, err := s.models.ActiveModel(ctx, s.cfg.ModelName)
	if err == nil {
		return m, false, nil
	}
	if s.cfg.FallbackName == "" || !fallbackable(err) {
		return nil, false, fmt.Errorf("resolve model %s: %w", s.cfg.ModelName, err)
	}

	s.l.Warn("active model unavailable, using fallback",
		applogger.String("model", s.cfg.ModelName),
		applogger.String("fallback", s.cfg.FallbackName),
		applogger.Error(err),
	)
	version := s.cfg.FallbackVersion
	if version == "" {
		version = registry.Latest
	}
	fm, ferr := s.models.LoadModel(ctx, s.cfg.FallbackName, version)
	if ferr != nil {
		return nil, false, fmt.Errorf("resolve model %s: %w", s.cfg.ModelName, errors.Join(err, ferr))
	}
	return fm, true, nil
}

func fallbackable(err error) bool {
	return errs.Is(err, errs.KindIntegrity) || errs.Is(err, errs.KindResource) || errs.Is(err, errs.KindTimeout)
}

// uncertainty reruns the policy on Gaussian-perturbed inputs. Epistemic
// uncertainty is the spread of the chosen action's probability.
func (s *Service) uncertainty(net *nn.Network, x []float64, idx int) models.Uncertainty {
	u := models.Uncertainty{Aleatoric: s.cfg.Aleatoric, Samples: s.cfg.Samples}
	if s.cfg.Samples > 1 {
		noise := s.noise(s.cfg.Samples * len(x))
		probs := make([]float64, 0, s.cfg.Samples)
		buf := make([]float64, len(x))
		for i := 0; i < s.cfg.Samples; i++ {
			for j := range x {
				buf[j] = x[j] + noise[i*len(x)+j]
			}
			p, err := net.ForwardPolicy(buf)
			if err != nil {
				continue
			}
			probs = append(probs, p[idx])
		}
		if len(probs) > 1 {
			u.Epistemic = stat.StdDev(probs, nil)
		}
	}
	u.Total = u.Epistemic + u.Aleatoric
	return u
}

func (s *Service) noise(n int) []float64 {
	out := make([]float64, n)
	s.mu.Lock()
	for i := range out {
		out[i] = s.rng.NormFloat64() * s.cfg.NoiseStd
	}
	s.mu.Unlock()
	return out
}

// riskLevel is the constraint score for constrained models and scaled total
// uncertainty otherwise.
func riskLevel(a nn.ActionSample, u models.Uncertainty) float64 {
	if a.HasConstraint {
		return a.Constraint
	}
	return math.Min(1, u.Total/maxUncertainty)
}

// fillMarket copies the state's market read into risk inputs that lack one.
func fillMarket(md *models.MarketData, mc models.MarketContext) {
	if md.Structure.Trend == "" {
		md.Structure.Trend = mc.Trend
	}
	if md.Structure.Volatility == 0 {
		md.Structure.Volatility = mc.Volatility
	}
	md.NewsImpact = md.NewsImpact || mc.NewsImpact
}

// logPrediction never fails the prediction.
func (s *Service) logPrediction(ctx context.Context, p *models.Prediction) {
	if s.cfg.Log == nil {
		return
	}
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.LogTimeout)
	defer cancel()
	if err := s.cfg.Log.LogPrediction(lctx, p); err != nil {
		s.l.Warn("prediction log failed", applogger.String("id", p.ID), applogger.Error(err))
		s.cfg.Metrics.RecordError(string(errs.KindResource))
	}
}

func (s *Service) broadcast(p *models.TradeProposal) {
	if s.cfg.Broadcaster != nil {
		s.cfg.Broadcaster.Broadcast(p)
	}
}

func (s *Service) recordError(err error) {
	kind, ok := errs.KindOf(err)
	if !ok {
		kind = "unknown"
	}
	s.cfg.Metrics.RecordError(string(kind))
}

// ModelName is the served model name.
func (s *Service) ModelName() string { return s.cfg.ModelName }
