package training

import "FinPolicy/internal/domain/models"

// Option configures Trainer.
type Option func(*Config)

// Config holds PPO hyperparameters.
type Config struct {
	Gamma           float64
	Lambda          float64
	ClipRatio       float64
	EntropyCoeff    float64
	ValueCoeff      float64
	ConstraintCoeff float64
	LearningRate    float64
	MaxGradNorm     float64
	BatchSize       int
	Epochs          int
	Seed            int64
	OnEpoch         func(models.EpochMetrics)
}

// WithDiscount sets gamma and the GAE lambda.
func WithDiscount(gamma, lambda float64) Option {
	return func(c *Config) {
		c.Gamma = gamma
		c.Lambda = lambda
	}
}

// WithClipRatio sets the PPO clip epsilon. Zero is allowed.
func WithClipRatio(eps float64) Option {
	return func(c *Config) { c.ClipRatio = eps }
}

// WithCoefficients sets the entropy, value and constraint loss weights.
func WithCoefficients(entropy, value, constraint float64) Option {
	return func(c *Config) {
		c.EntropyCoeff = entropy
		c.ValueCoeff = value
		c.ConstraintCoeff = constraint
	}
}

// WithLearningRate sets the Adam step size.
func WithLearningRate(lr float64) Option {
	return func(c *Config) { c.LearningRate = lr }
}

// WithMaxGradNorm sets the global gradient clipping norm.
func WithMaxGradNorm(n float64) Option {
	return func(c *Config) { c.MaxGradNorm = n }
}

// WithBatchSize sets the mini-batch size.
func WithBatchSize(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.BatchSize = n
		}
	}
}

// WithEpochs sets passes over the sample set.
func WithEpochs(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Epochs = n
		}
	}
}

// WithSeed fixes shuffling.
func WithSeed(seed int64) Option {
	return func(c *Config) { c.Seed = seed }
}

// WithEpochHook is called after each committed epoch.
func WithEpochHook(fn func(models.EpochMetrics)) Option {
	return func(c *Config) { c.OnEpoch = fn }
}
