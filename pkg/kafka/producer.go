package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
)

// Message is one record for PublishBatch.
type Message struct {
	Key   []byte
	Value interface{}
}

// Producer wraps a kafka-go writer. Values that are not bytes or strings are
// JSON encoded.
type Producer struct {
	writer *kafka.Writer
	comp   string
}

// NewProducer creates a producer. Brokers are required.
func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := &ProducerConfig{
		RequiredAcks: -1,
		Compression:  "snappy",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchSize:    100,
		BatchTimeout: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka producer: brokers are required")
	}

	bal := kafka.Balancer(&kafka.LeastBytes{})
	if cfg.HashByKey {
		bal = &kafka.Hash{}
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     bal,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  parseCompression(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
	}
	initProducerMetrics()
	return &Producer{writer: w, comp: cfg.Compression}, nil
}

// Publish sends one record.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishMessage implements the log collector publisher.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Publish(ctx, topic, nil, payload)
}

// PublishBatch sends records in one write.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	start := time.Now()
	now := time.Now()
	msgs := make([]kafka.Message, 0, len(messages))
	var size int64
	for _, m := range messages {
		v, err := Encode(m.Value)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{Topic: topic, Key: m.Key, Value: v, Time: now})
		size += int64(len(v))
	}

	err := p.writer.WriteMessages(ctx, msgs...)
	observeProducer(topic, p.comp, size, len(msgs), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// Encode turns a value into a record payload.
func Encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		return b, nil
	}
}

func parseCompression(s string) compress.Compression {
	switch s {
	case "gzip":
		return kafka.Gzip
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	case "none":
		return 0
	default:
		return kafka.Snappy
	}
}

var (
	producerOnce    sync.Once
	producerMsgs    *prometheus.CounterVec
	producerBytes   *prometheus.CounterVec
	producerLatency *prometheus.HistogramVec
)

func initProducerMetrics() {
	producerOnce.Do(func() {
		producerMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "finpolicy_kafka_producer_messages_total",
			Help: "Records published to Kafka",
		}, []string{"topic", "result"})
		producerBytes = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "finpolicy_kafka_producer_bytes_total",
			Help: "Payload bytes published",
		}, []string{"topic", "compression"})
		producerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "finpolicy_kafka_producer_publish_seconds",
			Help:    "Publish latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
	})
}

func observeProducer(topic, comp string, bytes int64, count int, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	producerMsgs.WithLabelValues(topic, result).Add(float64(count))
	producerBytes.WithLabelValues(topic, comp).Add(float64(bytes))
	producerLatency.WithLabelValues(topic).Observe(d.Seconds())
}
