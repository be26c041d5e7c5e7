package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	applogger "FinPolicy/pkg/logger"

	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("storage: backend unavailable")

// ResilientOption configures Resilient.
type ResilientOption func(*resilientConfig)

type resilientConfig struct {
	name    string
	timeout time.Duration
	breaker BreakerConfig
}

func WithName(name string) ResilientOption {
	return func(c *resilientConfig) { c.name = name }
}

// WithTimeout bounds every backend call. Zero disables it.
func WithTimeout(d time.Duration) ResilientOption {
	return func(c *resilientConfig) { c.timeout = d }
}

func WithBreaker(b BreakerConfig) ResilientOption {
	return func(c *resilientConfig) {
		if b.ConsecutiveFailures > 0 {
			c.breaker.ConsecutiveFailures = b.ConsecutiveFailures
		}
		if b.OpenTimeout > 0 {
			c.breaker.OpenTimeout = b.OpenTimeout
		}
		if b.Interval > 0 {
			c.breaker.Interval = b.Interval
		}
	}
}

// Resilient bounds each call with a timeout and trips a circuit breaker after
// consecutive backend failures. Missing objects do not count as failures.
type Resilient struct {
	next    Store
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewResilient wraps next.
func NewResilient(next Store, l *applogger.Logger, opts ...ResilientOption) *Resilient {
	cfg := &resilientConfig{
		name:    "storage",
		timeout: 10 * time.Second,
		breaker: BreakerConfig{
			ConsecutiveFailures: 5,
			OpenTimeout:         30 * time.Second,
			Interval:            60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if l == nil {
		l = applogger.Nop()
	}
	l = l.Component("storage")

	threshold := cfg.breaker.ConsecutiveFailures
	st := gobreaker.Settings{
		Name:        cfg.name,
		MaxRequests: 1,
		Interval:    cfg.breaker.Interval,
		Timeout:     cfg.breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, ErrExists) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn("storage breaker state changed",
				applogger.String("breaker", name),
				applogger.String("from", from.String()),
				applogger.String("to", to.String()),
			)
		},
	}
	return &Resilient{next: next, cb: gobreaker.NewCircuitBreaker(st), timeout: cfg.timeout}
}

// State exposes the breaker state for health checks.
func (r *Resilient) State() string {
	return r.cb.State().String()
}

func (r *Resilient) run(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	out, err := r.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		// surface the deadline even when the backend reports its own error
		return nil, fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return out, err
}

func (r *Resilient) Put(ctx context.Context, key string, data []byte) error {
	_, err := r.run(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, r.next.Put(ctx, key, data)
	})
	return err
}

func (r *Resilient) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := r.run(ctx, func(ctx context.Context) (interface{}, error) {
		return r.next.Get(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func (r *Resilient) Exists(ctx context.Context, key string) (bool, error) {
	out, err := r.run(ctx, func(ctx context.Context) (interface{}, error) {
		return r.next.Exists(ctx, key)
	})
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

func (r *Resilient) List(ctx context.Context, prefix string) ([]string, error) {
	out, err := r.run(ctx, func(ctx context.Context) (interface{}, error) {
		return r.next.List(ctx, prefix)
	})
	if err != nil {
		return nil, err
	}
	return out.([]string), nil
}
