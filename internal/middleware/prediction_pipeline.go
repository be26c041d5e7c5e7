package middleware

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"FinPolicy/internal/domain/models"
	domrepo "FinPolicy/internal/domain/repository"
	"FinPolicy/pkg/errs"
	applogger "FinPolicy/pkg/logger"
)

// PredictionPipeline sits between inference and the prediction log. A write
// that fails is parked in a bounded buffer and retried in the background
// with exponential backoff. When the buffer is full the prediction is dropped.
type PredictionPipeline struct {
	next    domrepo.PredictionLog
	metrics domrepo.Metrics
	l       *applogger.Logger

	bufSize    int
	backoffMin time.Duration
	backoffMax time.Duration
	timeout    time.Duration

	buf      chan *models.Prediction
	stopCh   chan struct{}
	done     chan struct{}
	started  atomic.Bool
	startOne sync.Once
	stopOne  sync.Once
}

type PipelineOption func(*PredictionPipeline)

// WithBufferSize bounds the number of parked predictions.
func WithBufferSize(n int) PipelineOption {
	return func(p *PredictionPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithBackoff sets the retry delay range.
func WithBackoff(lo, hi time.Duration) PipelineOption {
	return func(p *PredictionPipeline) {
		if lo > 0 {
			p.backoffMin = lo
		}
		if hi >= p.backoffMin {
			p.backoffMax = hi
		}
	}
}

// NewPredictionPipeline wraps next.
func NewPredictionPipeline(next domrepo.PredictionLog, metrics domrepo.Metrics, l *applogger.Logger, opts ...PipelineOption) *PredictionPipeline {
	p := &PredictionPipeline{
		next:       next,
		metrics:    metrics,
		bufSize:    1000,
		backoffMin: 50 * time.Millisecond,
		backoffMax: 2 * time.Second,
		timeout:    5 * time.Second,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = domrepo.NopMetrics{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	p.l = l.Component("prediction_pipeline")
	p.buf = make(chan *models.Prediction, p.bufSize)
	return p
}

// LogPrediction forwards p downstream. A failed write is parked for retry and
// reported as success; only a dropped prediction returns an error.
func (p *PredictionPipeline) LogPrediction(ctx context.Context, pred *models.Prediction) error {
	if err := validatePrediction(pred); err != nil {
		p.metrics.RecordError(string(errs.KindValidation))
		return err
	}
	start := time.Now()
	err := p.next.LogPrediction(ctx, pred)
	if err == nil {
		p.metrics.RecordLatency("prediction_log", time.Since(start).Seconds())
		return nil
	}

	select {
	case p.buf <- pred:
		p.metrics.RecordError("prediction_log_parked")
		return nil
	default:
		p.metrics.RecordError("prediction_log_dropped")
		return fmt.Errorf("prediction log buffer full, dropped %s: %w", pred.ID, err)
	}
}

// Pending is the number of parked predictions.
func (p *PredictionPipeline) Pending() int { return len(p.buf) }

// Start launches the background retry loop.
func (p *PredictionPipeline) Start(ctx context.Context) {
	p.startOne.Do(func() {
		p.started.Store(true)
		go p.loop(ctx)
	})
}

// Stop ends the retry loop after one last pass over the buffer.
func (p *PredictionPipeline) Stop() {
	p.stopOne.Do(func() {
		close(p.stopCh)
		if p.started.Load() {
			<-p.done
		}
	})
}

func (p *PredictionPipeline) loop(ctx context.Context) {
	defer close(p.done)
	backoff := p.backoffMin
	for {
		select {
		case <-p.stopCh:
			p.flush(ctx)
			return
		case <-ctx.Done():
			p.flush(ctx)
			return
		case pred := <-p.buf:
			if err := p.write(ctx, pred); err != nil {
				p.metrics.RecordError("prediction_log_retry")
				if !p.sleep(ctx, backoff) {
					p.park(pred)
					p.flush(ctx)
					return
				}
				if backoff *= 2; backoff > p.backoffMax {
					backoff = p.backoffMax
				}
				p.park(pred)
				continue
			}
			backoff = p.backoffMin
		}
	}
}

func (p *PredictionPipeline) write(ctx context.Context, pred *models.Prediction) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	return p.next.LogPrediction(wctx, pred)
}

// park requeues without blocking.
func (p *PredictionPipeline) park(pred *models.Prediction) {
	select {
	case p.buf <- pred:
	default:
		p.metrics.RecordError("prediction_log_dropped")
	}
}

// flush drains the buffer until the first failure.
func (p *PredictionPipeline) flush(ctx context.Context) {
	for {
		select {
		case pred := <-p.buf:
			if err := p.write(ctx, pred); err != nil {
				p.l.Warn("unflushed predictions dropped",
					applogger.Int("count", len(p.buf)+1),
					applogger.Error(err),
				)
				return
			}
		default:
			return
		}
	}
}

func (p *PredictionPipeline) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-p.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func validatePrediction(pred *models.Prediction) error {
	const op = "log prediction"
	switch {
	case pred == nil:
		return errs.New(errs.KindValidation, op, "prediction is nil")
	case pred.ID == "":
		return errs.New(errs.KindValidation, op, "prediction id is empty")
	case pred.Symbol == "":
		return errs.New(errs.KindValidation, op, "prediction symbol is empty")
	}
	return nil
}
