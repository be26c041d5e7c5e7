package logger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	batches [][]AggregatedLogEntry
	done    chan struct{}
}

func (p *capturePublisher) PublishMessage(_ context.Context, _ string, payload interface{}) error {
	p.mu.Lock()
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	p.mu.Unlock()
	p.done <- struct{}{}
	return nil
}

func TestCollectorDeduplicatesAndFlushesOnThreshold(t *testing.T) {
	pub := &capturePublisher{done: make(chan struct{}, 4)}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 2,
		Topic:          "finpolicy.logs",
		Publisher:      pub,
	})
	defer c.Close()

	fields := map[string]interface{}{"model": "ppo"}
	c.AddLog("error", "load failed", fields, "registry.go:10")
	c.AddLog("error", "load failed", fields, "registry.go:10")
	assert.Equal(t, 1, c.Pending())

	c.AddLog("error", "save failed", nil, "registry.go:20")

	select {
	case <-pub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("collector did not flush")
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	require.Len(t, pub.batches[0], 2)
	counts := map[string]int{}
	for _, e := range pub.batches[0] {
		counts[e.Message] = e.Count
	}
	assert.Equal(t, 2, counts["load failed"])
	assert.Equal(t, 1, counts["save failed"])
}

func TestLoggerWithKeepsCollector(t *testing.T) {
	pub := &capturePublisher{done: make(chan struct{}, 4)}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Publisher: pub})
	defer l.RemoveCollector()

	child := l.Component("scheduler")
	child.Error("cycle failed", String("cycle", "c1"))
	assert.Equal(t, 1, l.collector.Pending())
}
