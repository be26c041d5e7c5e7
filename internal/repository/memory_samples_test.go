package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"FinPolicy/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySampleStoreOrdersAndFilters(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemorySampleStore()
	require.NoError(t, m.StoreSamples(ctx, []models.TrainingSample{
		{ID: "c", Timestamp: base.Add(3 * time.Hour)},
		{ID: "a", Timestamp: base.Add(time.Hour)},
		{ID: "b", Timestamp: base.Add(2 * time.Hour)},
	}))
	require.NoError(t, m.StoreSamples(ctx, []models.TrainingSample{{ID: "a", Timestamp: base.Add(time.Hour), Reward: 2}}))
	assert.Equal(t, 3, m.Len())

	got, err := m.SamplesSince(ctx, base.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "c", got[1].ID)

	got, err = m.SamplesSince(ctx, time.Time{}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, 2.0, got[0].Reward)
}

func TestDecodeSampleStream(t *testing.T) {
	arr, err := DecodeSampleStream([]byte(`[{"id":"a","reward":1},{"id":"b"}]`))
	require.NoError(t, err)
	assert.Len(t, arr, 2)

	lines, err := DecodeSampleStream([]byte("{\"id\":\"a\"}\n{\"id\":\"b\"}\n{\"id\":\"c\"}\n"))
	require.NoError(t, err)
	assert.Len(t, lines, 3)

	_, err = DecodeSampleStream([]byte("{\"id\":\"a\"}\n{bad"))
	assert.Error(t, err)

	empty, err := DecodeSampleStream([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLoadSampleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"x","action":1}`), 0o644))
	got, err := LoadSampleFile(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Action)

	_, err = LoadSampleFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
