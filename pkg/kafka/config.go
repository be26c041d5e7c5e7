package kafka

import "time"

// Config is the kafka section of the application config.
type Config struct {
	Brokers     []string      `yaml:"brokers"`
	GroupID     string        `yaml:"group_id" default:"finpolicy"`
	Compression string        `yaml:"compression" default:"snappy" validate:"oneof=gzip snappy lz4 zstd none"`
	Workers     int           `yaml:"workers" default:"2" validate:"gte=1"`
	RetryMax    int           `yaml:"retry_max" default:"3" validate:"gte=0"`
	BackoffMin  time.Duration `yaml:"backoff_min" default:"50ms"`
	BackoffMax  time.Duration `yaml:"backoff_max" default:"2s"`

	// PredictionBuffer bounds predictions parked after a failed publish.
	PredictionBuffer int    `yaml:"prediction_buffer" default:"1000" validate:"gte=1"`
	Topics           Topics `yaml:"topics"`
}

// Topics names every topic the service touches.
type Topics struct {
	Predictions string `yaml:"predictions" default:"finpolicy.predictions"`
	Outcomes    string `yaml:"outcomes" default:"finpolicy.outcomes"`
	Logs        string `yaml:"logs" default:"finpolicy.logs"`
	DLQ         string `yaml:"dlq" default:"finpolicy.outcomes.dlq"`
}

// Enabled reports whether brokers are configured.
func (c Config) Enabled() bool { return len(c.Brokers) > 0 }

// ProducerOption configures Producer.
type ProducerOption func(*ProducerConfig)

// ProducerConfig holds writer settings.
type ProducerConfig struct {
	Brokers      []string
	RequiredAcks int
	Compression  string
	MaxAttempts  int
	WriteTimeout time.Duration
	BatchSize    int
	BatchTimeout time.Duration
	Async        bool
	HashByKey    bool
}

// WithBrokers sets the bootstrap brokers.
func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) { c.Brokers = brokers }
}

// WithCompression sets the codec: gzip, snappy, lz4, zstd or none.
func WithCompression(compression string) ProducerOption {
	return func(c *ProducerConfig) { c.Compression = compression }
}

// WithRequiredAcks sets required acknowledgements (-1 = all).
func WithRequiredAcks(acks int) ProducerOption {
	return func(c *ProducerConfig) { c.RequiredAcks = acks }
}

// WithBatching sets the writer batch size and linger.
func WithBatching(size int, timeout time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		c.BatchSize = size
		c.BatchTimeout = timeout
	}
}

// WithAsync toggles fire-and-forget writes.
func WithAsync(async bool) ProducerOption {
	return func(c *ProducerConfig) { c.Async = async }
}

// WithHashByKey keeps per-key ordering, e.g. per symbol.
func WithHashByKey(hash bool) ProducerOption {
	return func(c *ProducerConfig) { c.HashByKey = hash }
}

// ConsumerOption configures Consumer.
type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig holds reader and worker pool settings.
type ConsumerConfig struct {
	Brokers    []string
	GroupID    string
	Workers    int
	BufferSize int
	RetryMax   int
	BackoffMin time.Duration
	BackoffMax time.Duration
	DLQTopic   string
	MinBytes   int
	MaxBytes   int
}

// WithConsumerBrokers sets the bootstrap brokers.
func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

// WithConsumerGroupID sets the consumer group.
func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) { c.GroupID = groupID }
}

// WithConsumerWorkers sets the handler pool size.
func WithConsumerWorkers(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.Workers = n
		}
	}
}

// WithConsumerRetry sets retry attempts and the backoff range.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ routes messages that still fail after retries to topic.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQTopic = topic }
}

// ProducerOptions maps the config section onto producer options.
func (c Config) ProducerOptions() []ProducerOption {
	return []ProducerOption{WithBrokers(c.Brokers), WithCompression(c.Compression), WithHashByKey(true)}
}

// ConsumerOptions maps the config section onto consumer options.
func (c Config) ConsumerOptions() []ConsumerOption {
	return []ConsumerOption{
		WithConsumerBrokers(c.Brokers),
		WithConsumerGroupID(c.GroupID),
		WithConsumerWorkers(c.Workers),
		WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		WithConsumerDLQ(c.Topics.DLQ),
	}
}
