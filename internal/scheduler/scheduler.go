// Package scheduler periodically retrains the served model from realized
// outcomes and promotes the result only when it beats the active version.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"FinPolicy/internal/domain/models"
	"FinPolicy/internal/domain/repository"
	"FinPolicy/internal/nn"
	"FinPolicy/internal/registry"
	"FinPolicy/internal/training"
	"FinPolicy/pkg/errs"
	applogger "FinPolicy/pkg/logger"

	"github.com/google/uuid"
)

// ErrCycleInFlight is returned when a cycle is already running here or on
// another replica holding the lock.
var ErrCycleInFlight = errors.New("scheduler: cycle already running")

// ModelRegistry is the part of the registry the scheduler needs.
type ModelRegistry interface {
	Active(ctx context.Context, name string) (*models.ActiveModel, error)
	ActiveModel(ctx context.Context, name string) (*registry.Model, error)
	SaveModel(ctx context.Context, name string, w *models.ModelWeights) (models.ModelRef, error)
	Promote(ctx context.Context, name, version string, validationReward float64) error
}

// Trainer optimizes a copy of base.
type Trainer interface {
	Train(ctx context.Context, base *nn.Network, samples []models.TrainingSample) (*training.Result, error)
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	State      models.CycleState    `json:"state"`
	Running    bool                 `json:"running"`
	LastWindow time.Time            `json:"lastWindow"`
	NextRun    time.Time            `json:"nextRun,omitempty"`
	LastCycle  *models.CycleSummary `json:"lastCycle,omitempty"`
}

// Scheduler runs at most one cycle at a time.
type Scheduler struct {
	cfg     *Config
	samples repository.SampleStore
	reg     ModelRegistry
	trainer Trainer
	l       *applogger.Logger

	running atomic.Bool
	state   atomic.Value

	mu         sync.Mutex
	lastWindow time.Time
	last       *models.CycleSummary
	nextRun    time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires the sample feed, registry and trainer.
func New(samples repository.SampleStore, reg ModelRegistry, trainer Trainer, l *applogger.Logger, opts ...Option) *Scheduler {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = repository.NopMetrics{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if l == nil {
		l = applogger.Nop()
	}
	s := &Scheduler{
		cfg:     cfg,
		samples: samples,
		reg:     reg,
		trainer: trainer,
		l:       l.Component("scheduler"),
	}
	s.state.Store(models.CycleIdle)
	return s
}

// Start runs cycles on the configured cadence until ctx ends or Stop is called.
// A failed cycle never stops the loop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			next := s.cfg.Interval.Next(s.cfg.Now(), s.cfg.RunHour)
			s.mu.Lock()
			s.nextRun = next
			s.mu.Unlock()

			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			cctx, ccancel := context.WithTimeout(ctx, s.cfg.CycleTimeout)
			if _, err := s.RunCycle(cctx); err != nil && !errors.Is(err, ErrCycleInFlight) {
				s.l.Error("retrain cycle failed", applogger.Error(err))
			}
			ccancel()
		}
	}()
	s.l.Info("scheduler started",
		applogger.String("interval", string(s.cfg.Interval)),
		applogger.String("model", s.cfg.ModelName),
	)
}

// Stop cancels the loop and waits for an in-flight cycle to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Status reports the current state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:      s.State(),
		Running:    s.running.Load(),
		LastWindow: s.lastWindow,
		NextRun:    s.nextRun,
	}
	if s.last != nil {
		c := *s.last
		st.LastCycle = &c
	}
	return st
}

// State is the current cycle state.
func (s *Scheduler) State() models.CycleState {
	return s.state.Load().(models.CycleState)
}

func (s *Scheduler) setState(st models.CycleState) {
	s.state.Store(st)
	s.l.Debug("cycle state", applogger.String("state", string(st)))
}

// RunCycle runs one retrain cycle. Overlapping calls return ErrCycleInFlight.
// An insufficient-data skip returns the summary and a nil error.
func (s *Scheduler) RunCycle(ctx context.Context) (*models.CycleSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrCycleInFlight
	}
	defer s.running.Store(false)
	defer s.setState(models.CycleIdle)

	if s.cfg.Locker != nil {
		ok, err := s.cfg.Locker.TryLock(ctx, s.cfg.LockKey, s.cfg.LockTTL)
		if err != nil {
			return nil, errs.Wrap(errs.KindResource, "acquire cycle lock", err)
		}
		if !ok {
			return nil, ErrCycleInFlight
		}
		defer func() {
			if err := s.cfg.Locker.Unlock(context.WithoutCancel(ctx), s.cfg.LockKey); err != nil {
				s.l.Warn("release cycle lock", applogger.Error(err))
			}
		}()
	}

	sum := &models.CycleSummary{
		ID:        uuid.NewString(),
		ModelName: s.cfg.ModelName,
		StartedAt: s.cfg.Now().UTC(),
	}
	err := s.cycle(ctx, sum)
	if err != nil {
		sum.Outcome = models.OutcomeFailed
		sum.Reason = err.Error()
	}
	sum.FinishedAt = s.cfg.Now().UTC()
	s.record(ctx, sum)
	return sum, err
}

func (s *Scheduler) cycle(ctx context.Context, sum *models.CycleSummary) error {
	const op = "retrain cycle"
	s.setState(models.CycleCollecting)

	s.mu.Lock()
	since := s.lastWindow
	s.mu.Unlock()

	base, active, err := s.baseModel(ctx)
	if err != nil {
		return err
	}
	sum.BaselineVersion = base.Ref.Version

	raw, err := s.samples.SamplesSince(ctx, since, s.cfg.MaxSamples)
	if err != nil {
		return errs.Wrap(errs.KindResource, op, fmt.Errorf("collect samples: %w", err))
	}
	clean, dropped := models.FilterSamples(raw, base.Network.InputDim())
	sum.Samples, sum.Dropped = len(clean), dropped
	if dropped > 0 {
		s.l.Warn("dropped malformed samples", applogger.Int("dropped", dropped))
	}

	if len(clean) < s.cfg.MinSamples || len(clean) < 2 {
		s.setState(models.CycleSkipped)
		sum.Outcome = models.OutcomeSkipped
		sum.Reason = errs.Newf(errs.KindInsufficientData, op, "%d samples, need %d", len(clean), s.cfg.MinSamples).Error()
		s.l.Info("retrain skipped", applogger.String("reason", sum.Reason))
		return nil
	}
	if newest := clean[len(clean)-1].Timestamp; !newest.After(since) {
		s.setState(models.CycleSkipped)
		sum.Outcome = models.OutcomeSkipped
		sum.Reason = "no samples newer than the last window"
		return nil
	}

	train, val := Split(clean, s.cfg.ValidationSplit)
	sum.TrainSamples, sum.ValidationSamples = len(train), len(val)

	if active != nil {
		sum.BaselineReward = active.ValidationReward
	} else {
		ev, err := training.Evaluate(base.Network, val)
		if err != nil {
			return err
		}
		sum.BaselineReward = ev.AvgReward
	}

	s.setState(models.CycleTraining)
	res, err := s.trainer.Train(ctx, base.Network, train)
	if res != nil {
		sum.Epochs = res.Epochs
		for _, m := range res.Epochs {
			s.cfg.Metrics.RecordEpoch(m)
			if s.cfg.Sink != nil {
				if serr := s.cfg.Sink.RecordEpoch(ctx, sum.ID, m); serr != nil {
					s.l.Warn("record epoch", applogger.Error(serr))
				}
			}
		}
	}
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}

	s.setState(models.CycleEvaluating)
	ev, err := training.Evaluate(res.Network, val)
	if err != nil {
		return err
	}
	sum.CandidateReward = ev.AvgReward
	windowEnd := clean[len(clean)-1].Timestamp

	// written so that a NaN reward is discarded too
	if !(ev.AvgReward > sum.BaselineReward+s.cfg.MinImprovement) {
		sum.Outcome = models.OutcomeDiscarded
		sum.Reason = fmt.Sprintf("candidate reward %.4f did not beat %.4f", ev.AvgReward, sum.BaselineReward)
		sum.WindowEnd = windowEnd
		s.advance(windowEnd)
		s.l.Info("candidate discarded", applogger.String("reason", sum.Reason))
		return nil
	}

	s.setState(models.CyclePromoting)
	w, err := res.Network.ToWeights(models.ModelMetadata{
		TrainingEpisodes: len(train),
		Accuracy:         ev.Accuracy,
		Sharpe:           ev.Sharpe,
		WinRate:          ev.WinRate,
		MaxDrawdown:      ev.MaxDrawdown,
		ValidationReward: ev.AvgReward,
	})
	if err != nil {
		return errs.Wrap(errs.KindValidation, op, err)
	}
	ref, err := s.reg.SaveModel(ctx, s.cfg.ModelName, w)
	if err != nil {
		return fmt.Errorf("save candidate: %w", err)
	}
	sum.CandidateVersion = ref.Version
	if err := s.reg.Promote(ctx, s.cfg.ModelName, ref.Version, ev.AvgReward); err != nil {
		return fmt.Errorf("promote candidate: %w", err)
	}
	sum.Outcome = models.OutcomePromoted
	sum.WindowEnd = windowEnd
	s.advance(windowEnd)
	return nil
}

// baseModel loads the active model, or initializes a fresh one when the
// registry has no versions yet.
func (s *Scheduler) baseModel(ctx context.Context) (*registry.Model, *models.ActiveModel, error) {
	active, err := s.reg.Active(ctx, s.cfg.ModelName)
	if err != nil {
		return nil, nil, err
	}
	m, err := s.reg.ActiveModel(ctx, s.cfg.ModelName)
	if err == nil {
		return m, active, nil
	}
	if !errors.Is(err, registry.ErrNoModel) {
		return nil, nil, err
	}

	net, err := nn.New(
		nn.WithKind(s.cfg.InitialKind),
		nn.WithInputDim(s.cfg.InputDim),
		nn.WithHiddenDims(s.cfg.HiddenDims...),
		nn.WithSeed(s.cfg.Seed),
	)
	if err != nil {
		return nil, nil, errs.Wrap(errs.KindValidation, "init model", err)
	}
	s.l.Info("no stored model, training from a fresh network",
		applogger.String("model", s.cfg.ModelName),
		applogger.String("kind", string(s.cfg.InitialKind)),
	)
	return &registry.Model{Ref: models.ModelRef{Name: s.cfg.ModelName}, Network: net}, nil, nil
}

func (s *Scheduler) advance(t time.Time) {
	s.mu.Lock()
	if t.After(s.lastWindow) {
		s.lastWindow = t
	}
	s.mu.Unlock()
}

// SetLastWindow moves the sample window forward to t.
func (s *Scheduler) SetLastWindow(t time.Time) { s.advance(t) }

// RestoreWindow reloads the sample window after a restart: the last window
// recorded by the sink, else the active model's promotion time. The window
// never moves backwards.
func (s *Scheduler) RestoreWindow(ctx context.Context) (time.Time, error) {
	const op = "restore window"
	var t time.Time
	if s.cfg.Sink != nil {
		w, err := s.cfg.Sink.LastWindow(ctx, s.cfg.ModelName)
		if err != nil {
			return time.Time{}, errs.Wrap(errs.KindResource, op, err)
		}
		t = w
	}
	if t.IsZero() {
		active, err := s.reg.Active(ctx, s.cfg.ModelName)
		if err != nil {
			return time.Time{}, errs.Wrap(errs.KindResource, op, err)
		}
		if active != nil {
			t = active.PromotedAt
		}
	}
	if t.IsZero() {
		return t, nil
	}
	s.advance(t)
	s.l.Info("sample window restored", applogger.String("model", s.cfg.ModelName), applogger.Any("since", t))
	return t, nil
}

func (s *Scheduler) record(ctx context.Context, sum *models.CycleSummary) {
	s.mu.Lock()
	s.last = sum
	s.mu.Unlock()

	s.cfg.Metrics.RecordCycle(string(sum.Outcome))
	if s.cfg.Sink != nil {
		if err := s.cfg.Sink.RecordCycle(context.WithoutCancel(ctx), *sum); err != nil {
			s.l.Warn("record cycle", applogger.Error(err))
		}
	}
	s.l.Info("retrain cycle finished",
		applogger.String("id", sum.ID),
		applogger.String("outcome", string(sum.Outcome)),
		applogger.Int("samples", sum.Samples),
		applogger.Float("baseline_reward", sum.BaselineReward),
		applogger.Float("candidate_reward", sum.CandidateReward),
		applogger.Duration("duration", sum.FinishedAt.Sub(sum.StartedAt)),
	)
}

// Split keeps time order: the oldest (1-valFrac) share trains, the newest validates.
func Split(samples []models.TrainingSample, valFrac float64) (train, val []models.TrainingSample) {
	n := len(samples)
	cut := int(float64(n) * (1 - valFrac))
	if cut < 1 {
		cut = 1
	}
	if cut >= n {
		cut = n - 1
	}
	return samples[:cut], samples[cut:]
}
