package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"FinPolicy/internal/domain/models"
)

// MemorySampleStore keeps samples in process. It backs local runs without
// ClickHouse and replays sample files for offline training.
type MemorySampleStore struct {
	mu      sync.RWMutex
	samples []models.TrainingSample
	ids     map[string]int
}

func NewMemorySampleStore() *MemorySampleStore {
	return &MemorySampleStore{ids: make(map[string]int)}
}

// StoreSamples appends samples. A repeated ID replaces the earlier row.
func (m *MemorySampleStore) StoreSamples(_ context.Context, samples []models.TrainingSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range samples {
		if i, ok := m.ids[s.ID]; ok && s.ID != "" {
			m.samples[i] = s
			continue
		}
		if s.ID != "" {
			m.ids[s.ID] = len(m.samples)
		}
		m.samples = append(m.samples, s)
	}
	return nil
}

func (m *MemorySampleStore) SamplesSince(ctx context.Context, since time.Time, limit int) ([]models.TrainingSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultSampleCap
	}
	m.mu.RLock()
	out := make([]models.TrainingSample, 0, len(m.samples))
	for _, s := range m.samples {
		if s.Timestamp.After(since) {
			out = append(out, s)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemorySampleStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.samples)
}

// LoadSampleFile reads a JSON array or newline-delimited JSON objects.
func LoadSampleFile(path string) ([]models.TrainingSample, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	return DecodeSampleStream(b)
}

// DecodeSampleStream decodes a JSON array or a stream of JSON objects.
func DecodeSampleStream(b []byte) ([]models.TrainingSample, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, nil
	}
	if b[0] == '[' {
		var out []models.TrainingSample
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, fmt.Errorf("decode samples: %w", err)
		}
		return out, nil
	}
	var out []models.TrainingSample
	dec := json.NewDecoder(bytes.NewReader(b))
	for {
		var s models.TrainingSample
		err := dec.Decode(&s)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode sample %d: %w", len(out)+1, err)
		}
		out = append(out, s)
	}
}
