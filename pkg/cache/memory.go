package cache

import (
	"sync"
	"time"
)

type memoryItem[V any] struct {
	value    V
	expireAt time.Time
	hits     uint64
}

func (m *memoryItem[V]) expired(now time.Time) bool {
	return !m.expireAt.IsZero() && now.After(m.expireAt)
}

// Memory is an in-process cache bounded by size (least recently used entry is
// evicted first) and by TTL (expired entries are dropped on read and by a
// background sweep). Values are returned as stored; callers treat them as
// immutable snapshots.
type Memory[V any] struct {
	data    map[string]*memoryItem[V]
	access  map[string]uint64
	clock   uint64
	mutex   sync.Mutex
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	stats   Stats

	cleanupTicker *time.Ticker
	stop          chan struct{}
	closeOnce     sync.Once
}

// NewMemory creates an in-memory cache.
func NewMemory[V any](opts ...MemoryOption) *Memory[V] {
	cfg := &MemoryConfig{
		MaxSize: 1000,
		TTL:     time.Hour,
		Now:     time.Now,
	}

	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = cfg.TTL / 2
	}

	mc := &Memory[V]{
		data:    make(map[string]*memoryItem[V]),
		access:  make(map[string]uint64),
		maxSize: cfg.MaxSize,
		ttl:     cfg.TTL,
		now:     cfg.Now,
		stop:    make(chan struct{}),
	}

	if cfg.TTL > 0 && cfg.CleanupInterval > 0 {
		mc.cleanupTicker = time.NewTicker(cfg.CleanupInterval)
		go mc.cleanupExpired()
	}
	return mc
}

// Get returns the value and bumps its access stats.
func (mc *Memory[V]) Get(key string) (V, bool) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	var zero V
	item, exists := mc.data[key]
	if !exists {
		mc.stats.Misses++
		return zero, false
	}
	if item.expired(mc.now()) {
		mc.removeLocked(key)
		mc.stats.Expired++
		mc.stats.Misses++
		return zero, false
	}

	item.hits++
	mc.touchLocked(key)
	mc.stats.Hits++
	return item.value, true
}

// Set inserts or replaces a value using the configured TTL.
func (mc *Memory[V]) Set(key string, value V) {
	mc.SetWithTTL(key, value, mc.ttl)
}

// SetWithTTL inserts a value with its own lifetime. A non-positive ttl never expires.
func (mc *Memory[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	if _, exists := mc.data[key]; !exists && len(mc.data) >= mc.maxSize {
		mc.evictLRU()
	}

	var expireAt time.Time
	if ttl > 0 {
		expireAt = mc.now().Add(ttl)
	}
	mc.data[key] = &memoryItem[V]{value: value, expireAt: expireAt}
	mc.touchLocked(key)
}

// Delete removes keys.
func (mc *Memory[V]) Delete(keys ...string) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	for _, key := range keys {
		mc.removeLocked(key)
	}
}

// Len reports the number of stored entries, expired ones included until swept.
func (mc *Memory[V]) Len() int {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	return len(mc.data)
}

// Hits reports how many times key was served from the cache.
func (mc *Memory[V]) Hits(key string) uint64 {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	if item, ok := mc.data[key]; ok {
		return item.hits
	}
	return 0
}

// Stats returns a copy of the counters.
func (mc *Memory[V]) Stats() Stats {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	s := mc.stats
	s.Size = len(mc.data)
	return s
}

// Sweep drops every expired entry and returns how many were removed.
func (mc *Memory[V]) Sweep() int {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	now := mc.now()
	expiredKeys := make([]string, 0)
	for key, item := range mc.data {
		if item.expired(now) {
			expiredKeys = append(expiredKeys, key)
		}
	}
	for _, key := range expiredKeys {
		mc.removeLocked(key)
	}
	mc.stats.Expired += uint64(len(expiredKeys))
	return len(expiredKeys)
}

func (mc *Memory[V]) touchLocked(key string) {
	mc.clock++
	mc.access[key] = mc.clock
}

func (mc *Memory[V]) removeLocked(key string) {
	delete(mc.data, key)
	delete(mc.access, key)
}

func (mc *Memory[V]) evictLRU() {
	if len(mc.data) == 0 {
		return
	}

	var oldestKey string
	var oldest uint64
	for key, tick := range mc.access {
		if oldestKey == "" || tick < oldest {
			oldest = tick
			oldestKey = key
		}
	}

	if oldestKey != "" {
		mc.removeLocked(oldestKey)
		mc.stats.Evictions++
	}
}

func (mc *Memory[V]) cleanupExpired() {
	for {
		select {
		case <-mc.cleanupTicker.C:
			mc.Sweep()
		case <-mc.stop:
			return
		}
	}
}

// Close stops the cleanup ticker.
func (mc *Memory[V]) Close() error {
	mc.closeOnce.Do(func() {
		if mc.cleanupTicker != nil {
			mc.cleanupTicker.Stop()
		}
		close(mc.stop)
	})
	return nil
}
