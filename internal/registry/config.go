package registry

import (
	"time"

	"FinPolicy/internal/domain/repository"
	"FinPolicy/pkg/cache"
)

// Option configures Registry.
type Option func(*Config)

// Config holds registry settings.
type Config struct {
	BasePath            string
	CacheSize           int
	CacheTTL            time.Duration
	BlobTTL             time.Duration
	ConstraintThreshold float64
	MaxAge              time.Duration
	Blob                cache.Blob
	Index               repository.ModelIndex
	Metrics             repository.Metrics
	Now                 func() time.Time
}

// WithBasePath sets the key prefix under the bucket.
func WithBasePath(p string) Option {
	return func(c *Config) { c.BasePath = p }
}

// WithCache bounds the in-process model cache.
func WithCache(size int, ttl time.Duration) Option {
	return func(c *Config) {
		if size > 0 {
			c.CacheSize = size
		}
		if ttl > 0 {
			c.CacheTTL = ttl
		}
	}
}

// WithBlobCache adds a shared byte cache (Redis) in front of object storage.
func WithBlobCache(b cache.Blob, ttl time.Duration) Option {
	return func(c *Config) {
		c.Blob = b
		if ttl > 0 {
			c.BlobTTL = ttl
		}
	}
}

// WithIndex replaces the object-store promotion pointer.
func WithIndex(idx repository.ModelIndex) Option {
	return func(c *Config) { c.Index = idx }
}

func WithMetrics(m repository.Metrics) Option {
	return func(c *Config) {
		if m != nil {
			c.Metrics = m
		}
	}
}

// WithConstraintThreshold is applied to CPPO networks on load.
func WithConstraintThreshold(t float64) Option {
	return func(c *Config) { c.ConstraintThreshold = t }
}

// WithMaxAge sets the training age above which integrity checks flag a model.
func WithMaxAge(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.MaxAge = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		if now != nil {
			c.Now = now
		}
	}
}
