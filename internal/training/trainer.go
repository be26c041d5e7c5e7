package training

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"FinPolicy/internal/domain/models"
	"FinPolicy/internal/nn"
	"FinPolicy/pkg/errs"
	applogger "FinPolicy/pkg/logger"
)

// maxLogRatio bounds log(π_new/π_old) before exponentiation.
const maxLogRatio = 20.0

// Trainer runs PPO (and the CPPO constraint penalty) over recorded samples.
type Trainer struct {
	cfg *Config
	l   *applogger.Logger
}

// NewTrainer creates a trainer with default PPO hyperparameters.
func NewTrainer(l *applogger.Logger, opts ...Option) *Trainer {
	cfg := &Config{
		Gamma:           0.99,
		Lambda:          0.95,
		ClipRatio:       0.2,
		EntropyCoeff:    0.01,
		ValueCoeff:      0.5,
		ConstraintCoeff: 1.0,
		LearningRate:    3e-4,
		MaxGradNorm:     0.5,
		BatchSize:       64,
		Epochs:          10,
		Seed:            1,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Trainer{cfg: cfg, l: l.Component("trainer")}
}

// Config returns a copy of the effective configuration.
func (t *Trainer) Config() Config { return *t.cfg }

// Result is the outcome of a training run.
type Result struct {
	Network *nn.Network
	Epochs  []models.EpochMetrics
}

// Train optimizes a copy of base; base is never modified. Each epoch runs on a
// private clone that is committed only when every batch of the epoch finished.
// On cancellation the last committed snapshot is returned with the context error.
func (t *Trainer) Train(ctx context.Context, base *nn.Network, samples []models.TrainingSample) (*Result, error) {
	const op = "train"
	if base == nil || base.Policy() == nil {
		return nil, nn.ErrUninitialized
	}
	if len(samples) == 0 {
		return nil, errs.New(errs.KindInsufficientData, op, "no samples")
	}
	dim := base.InputDim()
	for i, s := range samples {
		if err := s.Validate(dim); err != nil {
			return nil, errs.Wrap(errs.KindValidation, op, fmt.Errorf("sample %d: %w", i, err))
		}
	}

	batch, err := t.prepare(base, samples)
	if err != nil {
		return nil, err
	}

	committed := base.Clone()
	opt := nn.NewAdam(t.cfg.LearningRate)
	rng := rand.New(rand.NewSource(t.cfg.Seed))
	res := &Result{Network: committed}

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		start := time.Now()
		working := committed.Clone()
		acc := &accumulator{}

		perm := rng.Perm(len(samples))
		for lo := 0; lo < len(perm); lo += t.cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				t.l.Warn("training cancelled, keeping last committed epoch",
					applogger.Int("epoch", epoch),
					applogger.Int("committed", len(res.Epochs)),
				)
				return res, errs.Wrap(errs.KindResource, op, err)
			}
			hi := lo + t.cfg.BatchSize
			if hi > len(perm) {
				hi = len(perm)
			}
			t.step(working, opt, batch, perm[lo:hi], acc)
		}

		committed = working
		m := acc.metrics(epoch, batch)
		res.Network = committed
		res.Epochs = append(res.Epochs, m)
		if t.cfg.OnEpoch != nil {
			t.cfg.OnEpoch(m)
		}
		t.l.Debug("epoch committed",
			applogger.Int("epoch", epoch),
			applogger.Float("total_loss", m.TotalLoss),
			applogger.Float("clip_fraction", m.ClipFraction),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return res, nil
}

// prepared holds per-sample targets computed once from the base network.
type prepared struct {
	samples    []models.TrainingSample
	advantages []float64
	rawAdv     []float64
	returns    []float64
}

func (t *Trainer) prepare(base *nn.Network, samples []models.TrainingSample) (*prepared, error) {
	values := make([]float64, len(samples))
	nextValues := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
		v, err := base.ForwardValue(s.NextState)
		if err != nil {
			return nil, err
		}
		nextValues[i] = v
	}
	adv, ret := ComputeGAE(samples, values, nextValues, t.cfg.Gamma, t.cfg.Lambda)
	return &prepared{
		samples:    samples,
		advantages: NormalizeAdvantages(adv),
		rawAdv:     adv,
		returns:    ret,
	}, nil
}

// step computes the mini-batch gradient against a fixed snapshot of net,
// then applies a single clipped Adam update.
func (t *Trainer) step(net *nn.Network, opt *nn.Adam, p *prepared, idx []int, acc *accumulator) {
	grads := nn.NewNetGrads(net)
	b := float64(len(idx))
	eps := t.cfg.ClipRatio

	for _, i := range idx {
		s := p.samples[i]
		adv := p.advantages[i]

		// policy head: clipped surrogate plus entropy bonus
		tr := net.Policy().ForwardTrace(s.State)
		probs := nn.Softmax(tr.Output)
		newLogP := nn.SafeLog(probs[s.Action])
		ratio := math.Exp(math.Max(-maxLogRatio, math.Min(maxLogRatio, newLogP-s.LogProb)))
		clipped := math.Max(1-eps, math.Min(1+eps, ratio))
		surr1 := ratio * adv
		surr2 := clipped * adv

		entropy := nn.Entropy(probs)
		dLogits := make([]float64, len(probs))
		unclipped := surr1 <= surr2
		for j, pj := range probs {
			if unclipped {
				onehot := 0.0
				if j == s.Action {
					onehot = 1
				}
				dLogits[j] = -adv * ratio * (onehot - pj)
			}
			if pj > 0 {
				dLogits[j] += t.cfg.EntropyCoeff * pj * (math.Log(pj) + entropy)
			}
			dLogits[j] /= b
		}
		net.Policy().Backward(tr, dLogits, grads.Policy)

		// value head
		vt := net.Value().ForwardTrace(s.State)
		diff := vt.Output[0] - p.returns[i]
		net.Value().Backward(vt, []float64{t.cfg.ValueCoeff * 2 * diff / b}, grads.Value)

		// constraint head: hinge above the threshold
		var cLoss float64
		if net.HasConstraint() {
			ct := net.Constraint().ForwardTrace(s.State)
			c := nn.Sigmoid(ct.Output[0])
			thr := net.ConstraintThreshold()
			if c > thr {
				cLoss = t.cfg.ConstraintCoeff * (c - thr)
				net.Constraint().Backward(ct, []float64{t.cfg.ConstraintCoeff * c * (1 - c) / b}, grads.Constraint)
			}
		}

		acc.policy += -math.Min(surr1, surr2)
		acc.value += t.cfg.ValueCoeff * diff * diff
		acc.entropy += -t.cfg.EntropyCoeff * entropy
		acc.constraint += cLoss
		acc.kl += s.LogProb - newLogP
		if math.Abs(ratio-1) > eps {
			acc.clipped++
		}
		acc.n++
	}

	g := grads.Slices()
	acc.batches++
	if norm := nn.GlobalNorm(g); math.IsNaN(norm) || math.IsInf(norm, 0) {
		acc.skipped++
		t.l.Warn("skipping batch with non-finite gradient", applogger.Int("size", len(idx)))
		return
	}
	acc.gradNorm += nn.ClipGlobalNorm(g, t.cfg.MaxGradNorm)
	opt.Step(net.Params(), g)
}

type accumulator struct {
	policy, value, entropy, constraint, kl float64
	gradNorm                               float64
	clipped, n, batches, skipped           int
}

func (a *accumulator) metrics(epoch int, p *prepared) models.EpochMetrics {
	n := float64(a.n)
	m := models.EpochMetrics{
		Epoch:          epoch,
		Batches:        a.batches,
		PolicyLoss:     a.policy / n,
		ValueLoss:      a.value / n,
		EntropyLoss:    a.entropy / n,
		ConstraintLoss: a.constraint / n,
		ClipFraction:   float64(a.clipped) / n,
		ApproxKL:       a.kl / n,
		SkippedBatches: a.skipped,
	}
	if applied := a.batches - a.skipped; applied > 0 {
		m.GradNorm = a.gradNorm / float64(applied)
	}
	m.TotalLoss = m.PolicyLoss + m.ValueLoss + m.EntropyLoss + m.ConstraintLoss

	var reward, adv float64
	for i, s := range p.samples {
		reward += s.Reward
		adv += p.rawAdv[i]
	}
	m.AvgReward = reward / float64(len(p.samples))
	m.AvgAdvantage = adv / float64(len(p.samples))
	return m
}
