package inference

import (
	"time"

	"FinPolicy/internal/domain/repository"
)

// Config tunes uncertainty estimation and the decision filters.
type Config struct {
	ModelName       string        `yaml:"model_name" default:"finpolicy"`
	FallbackName    string        `yaml:"fallback_name"`
	FallbackVersion string        `yaml:"fallback_version" default:"latest"`
	Samples         int           `yaml:"uncertainty_samples" default:"10" validate:"gte=0"`
	NoiseStd        float64       `yaml:"noise_std" default:"0.01" validate:"gte=0"`
	Aleatoric       float64       `yaml:"aleatoric" default:"0.05" validate:"gte=0"`
	MinConfidence   float64       `yaml:"confidence_threshold" default:"0.6" validate:"gte=0,lte=1"`
	HighRiskLevel   float64       `yaml:"high_risk_level" default:"0.8"`
	PortfolioLimit  float64       `yaml:"portfolio_risk_limit" default:"0.7"`
	OptimalStart    int           `yaml:"optimal_start_hour" default:"7" validate:"gte=0,lte=23"`
	OptimalEnd      int           `yaml:"optimal_end_hour" default:"20" validate:"gte=0,lte=24"`
	OffHoursFactor  float64       `yaml:"off_hours_factor" default:"0.5"`
	LogTimeout      time.Duration `yaml:"log_timeout" default:"2s"`
	Seed            int64         `yaml:"seed"`

	Log         repository.PredictionLog       `yaml:"-"`
	Broadcaster repository.DecisionBroadcaster `yaml:"-"`
	Metrics     repository.Metrics             `yaml:"-"`
	Now         func() time.Time               `yaml:"-"`
}

// Option configures Service.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		ModelName:       "finpolicy",
		FallbackVersion: "latest",
		Samples:         10,
		NoiseStd:        0.01,
		Aleatoric:       0.05,
		MinConfidence:   0.6,
		HighRiskLevel:   0.8,
		PortfolioLimit:  0.7,
		OptimalStart:    7,
		OptimalEnd:      20,
		OffHoursFactor:  0.5,
		LogTimeout:      2 * time.Second,
		Metrics:         repository.NopMetrics{},
		Now:             time.Now,
	}
}

// WithConfig copies the tunables from c, keeping wired dependencies.
func WithConfig(c Config) Option {
	return func(dst *Config) {
		c.Log, c.Broadcaster, c.Metrics, c.Now = dst.Log, dst.Broadcaster, dst.Metrics, dst.Now
		*dst = c
	}
}

// WithModel sets the served model name.
func WithModel(name string) Option {
	return func(c *Config) { c.ModelName = name }
}

// WithFallback sets the model used when the active one cannot be loaded.
func WithFallback(name, version string) Option {
	return func(c *Config) {
		c.FallbackName = name
		c.FallbackVersion = version
	}
}

// WithUncertainty sets the number of noisy passes and the noise scale.
func WithUncertainty(samples int, noiseStd float64) Option {
	return func(c *Config) {
		c.Samples = samples
		c.NoiseStd = noiseStd
	}
}

// WithConfidenceThreshold sets the minimum confidence to act.
func WithConfidenceThreshold(t float64) Option {
	return func(c *Config) { c.MinConfidence = t }
}

// WithOptimalHours sets the UTC window [start, end) with full intensity.
func WithOptimalHours(start, end int) Option {
	return func(c *Config) {
		c.OptimalStart = start
		c.OptimalEnd = end
	}
}

// WithPredictionLog sets the audit sink.
func WithPredictionLog(l repository.PredictionLog) Option {
	return func(c *Config) { c.Log = l }
}

// WithBroadcaster pushes every decision to live subscribers.
func WithBroadcaster(b repository.DecisionBroadcaster) Option {
	return func(c *Config) { c.Broadcaster = b }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m repository.Metrics) Option {
	return func(c *Config) { c.Metrics = m }
}

// WithSeed makes the perturbation noise reproducible.
func WithSeed(seed int64) Option {
	return func(c *Config) { c.Seed = seed }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Config) { c.Now = now }
}
