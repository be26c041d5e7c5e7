// Package config loads the YAML application config.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"FinPolicy/internal/inference"
	"FinPolicy/internal/risk"
	"FinPolicy/internal/scheduler"
	"FinPolicy/internal/usecase"
	pkgch "FinPolicy/pkg/clickhouse"
	pkghttp "FinPolicy/pkg/http"
	pkgkafka "FinPolicy/pkg/kafka"
	applogger "FinPolicy/pkg/logger"
	"FinPolicy/pkg/storage"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string               `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Log         applogger.Config     `yaml:"log"`
	Server      pkghttp.Config       `yaml:"server"`
	Storage     storage.Config       `yaml:"storage"`
	Registry    Registry             `yaml:"registry"`
	Trainer     Trainer              `yaml:"trainer"`
	Inference   inference.Config     `yaml:"inference"`
	Risk        risk.Config          `yaml:"risk"`
	Scheduler   scheduler.Config     `yaml:"scheduler"`
	Market      usecase.MarketConfig `yaml:"market"`
	Kafka       pkgkafka.Config      `yaml:"kafka"`
	ClickHouse  pkgch.Config         `yaml:"clickhouse"`
	Postgres    Postgres             `yaml:"postgres"`
	Redis       Redis                `yaml:"redis"`
	LogShipping LogShipping          `yaml:"log_shipping"`
}

// Registry holds model registry settings.
type Registry struct {
	CacheSize           int           `yaml:"cache_size" default:"16" validate:"gte=1"`
	CacheTTL            time.Duration `yaml:"cache_ttl" default:"1h"`
	BlobTTL             time.Duration `yaml:"blob_ttl" default:"24h"`
	ConstraintThreshold float64       `yaml:"constraint_threshold" default:"0.5" validate:"gte=0,lte=1"`
	MaxAge              time.Duration `yaml:"max_age" default:"720h"`
	SkipPreload         bool          `yaml:"skip_preload"`
}

// Trainer holds PPO hyperparameters.
type Trainer struct {
	Gamma           float64 `yaml:"gamma" default:"0.99" validate:"gt=0,lte=1"`
	Lambda          float64 `yaml:"lambda" default:"0.95" validate:"gte=0,lte=1"`
	ClipRatio       float64 `yaml:"clip_ratio" default:"0.2" validate:"gte=0"`
	EntropyCoeff    float64 `yaml:"entropy_coeff" default:"0.01"`
	ValueCoeff      float64 `yaml:"value_coeff" default:"0.5"`
	ConstraintCoeff float64 `yaml:"constraint_coeff" default:"0.1"`
	LearningRate    float64 `yaml:"learning_rate" default:"0.0003" validate:"gt=0"`
	MaxGradNorm     float64 `yaml:"max_grad_norm" default:"0.5" validate:"gte=0"`
	BatchSize       int     `yaml:"batch_size" default:"64" validate:"gte=1"`
	Epochs          int     `yaml:"epochs" default:"10" validate:"gte=1"`
	Seed            int64   `yaml:"seed" default:"42"`
}

// Postgres enables the promotion ledger. Empty DSN keeps the pointer in
// object storage.
type Postgres struct {
	DSN string `yaml:"dsn"`
}

// Redis enables the shared blob cache and the scheduler lock.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"finpolicy"`
}

// LogShipping forwards aggregated error logs to Kafka.
type LogShipping struct {
	Enabled        bool          `yaml:"enabled"`
	TimeInterval   time.Duration `yaml:"time_interval" default:"30s"`
	CountThreshold int           `yaml:"count_threshold" default:"100"`
}

var validate = validator.New()

// Load reads, defaults and validates a YAML file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies default tags and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default returns a validated config with every default applied.
func Default() (*Config, error) {
	return Parse(nil)
}

func (c *Config) finish() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("apply defaults: %w", err)
	}
	if len(c.Risk.ATRWeights) == 0 {
		c.Risk.ATRWeights = risk.DefaultATRWeights()
	}
	if len(c.Risk.Partials) == 0 {
		c.Risk.Partials = risk.DefaultPartials()
	}
	if len(c.Scheduler.HiddenDims) == 0 {
		c.Scheduler.HiddenDims = []int{128, 64}
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// LoadWithEnv loads the file then applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides fields from getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("FINPOLICY_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("STORAGE_BUCKET"); v != "" {
		c.Storage.Bucket = v
	}
	if v := getenv("S3_ACCESS_KEY"); v != "" {
		c.Storage.AccessKey = v
	}
	if v := getenv("S3_SECRET_KEY"); v != "" {
		c.Storage.SecretKey = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := scheduler.ParseInterval(string(c.Scheduler.Interval)); err != nil {
		return err
	}
	if c.Storage.Backend == "s3" && c.Storage.Endpoint == "" {
		return fmt.Errorf("storage.endpoint is required for the s3 backend")
	}
	if c.LogShipping.Enabled && !c.Kafka.Enabled() {
		return fmt.Errorf("log_shipping requires kafka.brokers")
	}
	if c.Inference.ModelName != c.Scheduler.ModelName {
		return fmt.Errorf("inference.model_name %q and scheduler.model_name %q differ", c.Inference.ModelName, c.Scheduler.ModelName)
	}
	return nil
}
