package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestMemory(t *testing.T, size int, ttl time.Duration) (*Memory[string], *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	// a long cleanup interval keeps the background sweeper out of the way
	m := NewMemory[string](WithMemoryMaxSize(size), WithMemoryTTL(ttl),
		WithMemoryCleanup(time.Hour), WithMemoryClock(clock.Now))
	t.Cleanup(func() { _ = m.Close() })
	return m, clock
}

func TestMemoryEvictsLeastRecentlyUsed(t *testing.T) {
	m, _ := newTestMemory(t, 2, time.Minute)

	m.Set("a", "1")
	m.Set("b", "2")
	_, ok := m.Get("a")
	require.True(t, ok)

	m.Set("c", "3")

	_, ok = m.Get("b")
	assert.False(t, ok, "b was least recently used")
	v, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, uint64(1), m.Stats().Evictions)
	assert.Equal(t, 2, m.Len())
}

func TestMemoryReplaceDoesNotEvict(t *testing.T) {
	m, _ := newTestMemory(t, 2, time.Minute)
	m.Set("a", "1")
	m.Set("b", "2")
	m.Set("a", "3")

	assert.Equal(t, 2, m.Len())
	assert.Zero(t, m.Stats().Evictions)
}

func TestMemoryExpiresOnReadAndSweep(t *testing.T) {
	m, clock := newTestMemory(t, 10, time.Minute)
	m.Set("a", "1")
	m.Set("b", "2")
	m.SetWithTTL("forever", "x", 0)

	clock.Advance(2 * time.Minute)

	_, ok := m.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Sweep())

	v, ok := m.Get("forever")
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	s := m.Stats()
	assert.Equal(t, uint64(2), s.Expired)
	assert.Equal(t, 1, s.Size)
}

func TestMemoryHitStats(t *testing.T) {
	m, _ := newTestMemory(t, 10, time.Minute)
	m.Set("a", "1")
	m.Get("a")
	m.Get("a")
	m.Get("missing")

	assert.Equal(t, uint64(2), m.Hits("a"))
	s := m.Stats()
	assert.Equal(t, uint64(2), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.InDelta(t, 2.0/3.0, s.HitRate(), 1e-12)
}

func TestMemoryConcurrentAccess(t *testing.T) {
	m, _ := newTestMemory(t, 8, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := GenerateKeyWithParams("k", (i+j)%12)
				m.Set(key, key)
				m.Get(key)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, m.Len(), 8)
}

func TestMemoryBackgroundSweep(t *testing.T) {
	m := NewMemory[int](WithMemoryTTL(10*time.Millisecond), WithMemoryCleanup(5*time.Millisecond))
	defer m.Close()
	m.Set("a", 1)

	assert.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHashKeyStable(t *testing.T) {
	assert.Equal(t, HashKey("model:ppo/v1"), HashKey("model:ppo/v1"))
	assert.NotEqual(t, HashKey("a"), HashKey("b"))
	assert.Equal(t, "model:v1", GenerateKey("model", "v1"))
}
