// Package storage is the object store that holds serialized models.
// Keys are slash separated regardless of backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	applogger "FinPolicy/pkg/logger"
)

var (
	ErrNotFound = errors.New("storage: object not found")
	ErrExists   = errors.New("storage: object already exists")
)

// Store is a flat key/value object store with directory-like listing.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	// List returns the names of the immediate children of prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Config selects and configures a backend.
type Config struct {
	Backend   string        `yaml:"backend" default:"file" validate:"oneof=file s3"`
	Root      string        `yaml:"root" default:"./data/models"`
	Endpoint  string        `yaml:"endpoint"`
	Bucket    string        `yaml:"bucket" default:"finpolicy-models"`
	BasePath  string        `yaml:"base_path" default:"models"`
	Region    string        `yaml:"region"`
	AccessKey string        `yaml:"access_key"`
	SecretKey string        `yaml:"secret_key"`
	UseSSL    bool          `yaml:"use_ssl"`
	Timeout   time.Duration `yaml:"timeout" default:"10s"`
	Breaker   BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker in front of the backend.
type BreakerConfig struct {
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" default:"5"`
	OpenTimeout         time.Duration `yaml:"open_timeout" default:"30s"`
	Interval            time.Duration `yaml:"interval" default:"60s"`
}

// New builds the configured backend wrapped with timeouts and a breaker.
func New(ctx context.Context, cfg Config, l *applogger.Logger) (Store, error) {
	var (
		backend Store
		err     error
	)
	switch cfg.Backend {
	case "s3":
		backend, err = NewS3Store(ctx, WithS3Endpoint(cfg.Endpoint), WithS3Bucket(cfg.Bucket),
			WithS3Credentials(cfg.AccessKey, cfg.SecretKey), WithS3Region(cfg.Region), WithS3SSL(cfg.UseSSL))
	case "file", "":
		backend, err = NewFileStore(cfg.Root)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewResilient(backend, l,
		WithName("storage-"+cfg.Backend),
		WithTimeout(cfg.Timeout),
		WithBreaker(cfg.Breaker),
	), nil
}

// Join builds a key from parts, dropping empty ones.
func Join(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			kept = append(kept, p)
		}
	}
	return path.Join(kept...)
}

func validKey(key string) error {
	if key == "" || strings.Contains(key, "..") {
		return fmt.Errorf("invalid storage key %q", key)
	}
	return nil
}
