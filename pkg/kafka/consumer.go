package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"FinPolicy/pkg/errs"
	applogger "FinPolicy/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type partKey struct {
	topic     string
	partition int
}

type message struct {
	topic string
	km    kafka.Message
}

// Consumer reads registered topics and fans messages out to a worker pool.
// At most one message per partition is in flight.
type Consumer struct {
	cfg      *ConsumerConfig
	l        *applogger.Logger
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	dlq      messageWriter
	hook     ConsumerHook
	msgs     chan message
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	locksMu   sync.Mutex
	partLocks map[partKey]*sync.Mutex
}

// NewConsumer creates a consumer. Brokers are required.
func NewConsumer(l *applogger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:    "finpolicy",
		Workers:    1,
		BufferSize: 64,
		RetryMax:   3,
		BackoffMin: 50 * time.Millisecond,
		BackoffMax: 2 * time.Second,
		MinBytes:   10e3,
		MaxBytes:   10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer: brokers are required")
	}
	if l == nil {
		l = applogger.Nop()
	}

	c := &Consumer{
		cfg:       cfg,
		l:         l.Component("kafka_consumer"),
		readers:   make(map[string]*kafka.Reader),
		handlers:  make(map[string]MessageHandler),
		hook:      NoopHook{},
		msgs:      make(chan message, cfg.BufferSize),
		stop:      make(chan struct{}),
		partLocks: make(map[partKey]*sync.Mutex),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	initConsumerMetrics()
	return c, nil
}

// RegisterHandler binds a handler to its topic. Must be called before Start.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, ok := c.handlers[h.Topic()]; ok {
		c.l.Warn("handler already registered", applogger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

// WithHook replaces the lifecycle hook.
func (c *Consumer) WithHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start opens one reader per registered topic and starts the workers.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
	}
	for i := 0; i < c.cfg.Workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}
	var readers sync.WaitGroup
	for topic, r := range c.readers {
		c.wg.Add(1)
		readers.Add(1)
		go func(topic string, r *kafka.Reader) {
			defer readers.Done()
			c.read(topic, r)
		}(topic, r)
	}
	// workers drain until every reader has stopped
	go func() {
		readers.Wait()
		close(c.msgs)
	}()
	c.l.Info("consumer started",
		applogger.Int("workers", c.cfg.Workers),
		applogger.Int("topics", len(c.readers)),
		applogger.String("group", c.cfg.GroupID),
	)
	return nil
}

// Stop signals readers and waits for in-flight messages until ctx expires.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		close(c.stop)
		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-ctx.Done():
			stopErr = fmt.Errorf("kafka consumer stop: %w", ctx.Err())
		case <-done:
		}
		for topic, r := range c.readers {
			if err := r.Close(); err != nil {
				c.l.Warn("reader close failed", applogger.String("topic", topic), applogger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.l.Warn("dlq writer close failed", applogger.Error(err))
			}
		}
		c.l.Info("consumer stopped")
	})
	return stopErr
}

func (c *Consumer) read(topic string, r *kafka.Reader) {
	defer c.wg.Done()
	for {
		select {
		case <-c.stop:
			return
		default:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		km, err := r.FetchMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				c.l.Warn("fetch failed", applogger.String("topic", topic), applogger.Error(err))
			}
			continue
		}
		select {
		case c.msgs <- message{topic: topic, km: km}:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(c.msgs)))
		case <-c.stop:
			return
		}
	}
}

func (c *Consumer) worker() {
	defer c.wg.Done()
	for msg := range c.msgs {
		commit := c.process(context.Background(), msg)
		if !commit {
			continue
		}
		if r := c.readers[msg.topic]; r != nil {
			if err := commitWithRetry(r, msg.km, 3); err != nil {
				c.l.Error("commit failed",
					applogger.String("topic", msg.topic),
					applogger.Int64("offset", msg.km.Offset),
					applogger.Error(err),
				)
			}
		}
	}
}

// process runs the handler with retries and reports whether the offset may be
// committed: on success, or once the message has been parked in the DLQ.
func (c *Consumer) process(ctx context.Context, msg message) (commit bool) {
	h, ok := c.handlers[msg.topic]
	if !ok {
		return true
	}
	start := time.Now()
	pl := c.partitionLock(msg.topic, msg.km.Partition)
	pl.Lock()
	defer pl.Unlock()

	err := c.handleWithRetry(ctx, h, msg)
	consumerHandleLatency.WithLabelValues(msg.topic).Observe(time.Since(start).Seconds())
	if err == nil {
		consumerMessages.WithLabelValues(msg.topic, "ok").Inc()
		return true
	}

	consumerMessages.WithLabelValues(msg.topic, "failed").Inc()
	c.hook.OnError(ctx, msg.topic, msg.km, msg.km.Value, err)
	c.l.Error("message handling failed",
		applogger.String("topic", msg.topic),
		applogger.Int("partition", msg.km.Partition),
		applogger.Int64("offset", msg.km.Offset),
		applogger.Error(err),
	)
	if c.dlq == nil {
		return false
	}
	dlqErr := c.dlq.WriteMessages(context.WithoutCancel(ctx), kafka.Message{
		Topic: c.cfg.DLQTopic,
		Key:   msg.km.Key,
		Value: msg.km.Value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(msg.topic)},
			{Key: "error", Value: []byte(err.Error())},
		},
	})
	if dlqErr != nil {
		c.l.Error("dlq publish failed", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(dlqErr))
		return false
	}
	return true
}

func (c *Consumer) handleWithRetry(ctx context.Context, h MessageHandler, msg message) (err error) {
	for attempt := 1; ; attempt++ {
		hctx, km, data, berr := c.hook.BeforeHandle(ctx, msg.topic, msg.km, msg.km.Value)
		if berr != nil {
			return berr
		}
		err = safeHandle(hctx, h, data)
		c.hook.AfterHandle(hctx, msg.topic, km, data, err)
		// bad payloads never get better
		if err == nil || errs.Is(err, errs.KindValidation) || attempt > c.cfg.RetryMax {
			return err
		}
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-c.stop:
			return err
		}
	}
}

func safeHandle(ctx context.Context, h MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, data)
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	k := partKey{topic: topic, partition: partition}
	l, ok := c.partLocks[k]
	if !ok {
		l = &sync.Mutex{}
		c.partLocks[k] = l
	}
	return l
}

func commitWithRetry(r *kafka.Reader, km kafka.Message, max int) error {
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	return err
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := max
	if attempt < 31 {
		if e := min << uint(attempt-1); e > 0 && e < max {
			exp = e
		}
	}
	// up to 50% jitter
	if half := int64(exp) / 2; half > 0 {
		exp -= time.Duration(rand.Int63n(half))
	}
	return exp
}

var (
	consumerOnce          sync.Once
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerMessages      *prometheus.CounterVec
)

func initConsumerMetrics() {
	consumerOnce.Do(func() {
		consumerQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "finpolicy_kafka_consumer_queue_depth",
			Help: "Messages waiting for a worker",
		}, []string{"topic"})
		consumerHandleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name: "finpolicy_kafka_consumer_handle_seconds",
			Help: "Handling time per message",
		}, []string{"topic"})
		consumerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "finpolicy_kafka_consumer_messages_total",
			Help: "Consumed messages by result",
		}, []string{"topic", "result"})
	})
}
