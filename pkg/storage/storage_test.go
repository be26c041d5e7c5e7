package storage

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	key := Join("models", "ppo", "v2", "model.json")
	require.NoError(t, s.Put(ctx, key, []byte(`{"a":1}`)))
	require.NoError(t, s.Put(ctx, Join("models", "ppo", "v1", "model.json"), []byte(`{}`)))

	data, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	names, err := s.List(ctx, Join("models", "ppo"))
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, names)

	names, err = s.List(ctx, "models/missing")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestFileStoreMissing(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "nope/model.json")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Exists(context.Background(), "nope/model.json")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(context.Background(), "../etc/passwd")
	assert.Error(t, err)
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "models/ppo/v1", Join("/models/", "", "ppo", "v1/"))
	assert.Equal(t, "ppo", Join("", "ppo"))
}

type flakyStore struct {
	Store
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return []byte("ok"), nil
}

func TestResilientTripsAfterFailures(t *testing.T) {
	backend := &flakyStore{err: errors.New("connection refused")}
	r := NewResilient(backend, nil, WithBreaker(BreakerConfig{ConsecutiveFailures: 3, OpenTimeout: time.Minute}))

	for i := 0; i < 3; i++ {
		_, err := r.Get(context.Background(), "k")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}

	_, err := r.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(3), backend.calls.Load())
	assert.Equal(t, "open", r.State())
}

func TestResilientNotFoundDoesNotTrip(t *testing.T) {
	backend := &flakyStore{err: ErrNotFound}
	r := NewResilient(backend, nil, WithBreaker(BreakerConfig{ConsecutiveFailures: 2}))

	for i := 0; i < 5; i++ {
		_, err := r.Get(context.Background(), "k")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, "closed", r.State())
}

func TestResilientTimeout(t *testing.T) {
	backend := &flakyStore{delay: time.Second}
	r := NewResilient(backend, nil, WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := r.Get(context.Background(), "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestNewSelectsFileBackend(t *testing.T) {
	s, err := New(context.Background(), Config{Backend: "file", Root: t.TempDir(), Timeout: time.Second}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), "a/b.json", []byte("x")))

	_, err = New(context.Background(), Config{Backend: "ftp"}, nil)
	assert.Error(t, err)
}
