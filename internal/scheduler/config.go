package scheduler

import (
	"time"

	"FinPolicy/internal/domain/models"
	"FinPolicy/internal/domain/repository"
	"FinPolicy/pkg/cache"
)

// Config controls the retrain loop.
type Config struct {
	ModelName       string           `yaml:"model_name" default:"finpolicy"`
	Interval        Interval         `yaml:"interval" default:"weekly"`
	RunHour         int              `yaml:"run_hour" default:"2" validate:"gte=0,lte=23"`
	MinSamples      int              `yaml:"min_samples" default:"500" validate:"gte=1"`
	MaxSamples      int              `yaml:"max_samples" default:"50000" validate:"gte=1"`
	ValidationSplit float64          `yaml:"validation_split" default:"0.2" validate:"gt=0,lt=1"`
	MinImprovement  float64          `yaml:"min_improvement" default:"0"`
	CycleTimeout    time.Duration    `yaml:"cycle_timeout" default:"30m"`
	LockKey         string           `yaml:"lock_key" default:"scheduler:retrain"`
	LockTTL         time.Duration    `yaml:"lock_ttl" default:"1h"`
	InitialKind     models.ModelKind `yaml:"initial_kind" default:"ppo" validate:"oneof=ppo cppo"`
	InputDim        int              `yaml:"input_dim" default:"50" validate:"gte=1"`
	HiddenDims      []int            `yaml:"hidden_dims"`
	Seed            int64            `yaml:"seed" default:"1"`

	Sink    repository.TrainingSink `yaml:"-"`
	Metrics repository.Metrics      `yaml:"-"`
	Locker  cache.Locker            `yaml:"-"`
	Now     func() time.Time        `yaml:"-"`
}

// Option configures Scheduler.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		ModelName:       "finpolicy",
		Interval:        Weekly,
		RunHour:         2,
		MinSamples:      500,
		MaxSamples:      50000,
		ValidationSplit: 0.2,
		CycleTimeout:    30 * time.Minute,
		LockKey:         "scheduler:retrain",
		LockTTL:         time.Hour,
		InitialKind:     models.ModelKindPPO,
		InputDim:        models.DefaultFeatureDim,
		HiddenDims:      []int{128, 64},
		Seed:            1,
		Metrics:         repository.NopMetrics{},
		Now:             time.Now,
	}
}

// WithConfig copies the tunables from c, keeping wired dependencies.
func WithConfig(c Config) Option {
	return func(dst *Config) {
		c.Sink, c.Metrics, c.Locker, c.Now = dst.Sink, dst.Metrics, dst.Locker, dst.Now
		if len(c.HiddenDims) == 0 {
			c.HiddenDims = dst.HiddenDims
		}
		*dst = c
	}
}

// WithModel sets the model name trained and promoted.
func WithModel(name string) Option {
	return func(c *Config) { c.ModelName = name }
}

// WithInterval sets the cadence.
func WithInterval(i Interval) Option {
	return func(c *Config) { c.Interval = i }
}

// WithMinSamples sets the fewest clean samples a cycle needs.
func WithMinSamples(n int) Option {
	return func(c *Config) { c.MinSamples = n }
}

// WithNetwork sets the shape of a freshly initialized model.
func WithNetwork(kind models.ModelKind, inputDim int, hidden ...int) Option {
	return func(c *Config) {
		c.InitialKind = kind
		c.InputDim = inputDim
		c.HiddenDims = hidden
	}
}

// WithSink records epoch and cycle metrics.
func WithSink(s repository.TrainingSink) Option {
	return func(c *Config) { c.Sink = s }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m repository.Metrics) Option {
	return func(c *Config) { c.Metrics = m }
}

// WithLocker guards cycles across replicas.
func WithLocker(l cache.Locker) Option {
	return func(c *Config) { c.Locker = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Config) { c.Now = now }
}
