package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"FinPolicy/internal/domain/models"
	applogger "FinPolicy/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogPredictionLogWritesOneLinePerPrediction(t *testing.T) {
	var buf bytes.Buffer
	plog := NewLogPredictionLog(applogger.NewJSON(&buf))
	score := 0.7

	p := &models.Prediction{
		ID:              "p-1",
		Symbol:          "EURUSD",
		Timeframe:       "H1",
		RawDirection:    models.DirectionBuy,
		Model:           models.ModelRef{Name: "policy", Version: "v3"},
		Fallback:        true,
		ConstraintScore: &score,
		Action: models.RLAction{
			Direction:  models.DirectionHold,
			Confidence: 0.3,
			Reasoning:  []string{"confidence below minimum"},
		},
	}
	require.NoError(t, plog.LogPrediction(context.Background(), p))
	require.NoError(t, plog.LogPrediction(context.Background(), nil))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "prediction served", entry["message"])
	assert.Equal(t, "prediction_log", entry["component"])
	assert.Equal(t, "p-1", entry["id"])
	assert.Equal(t, "HOLD", entry["direction"])
	assert.Equal(t, "BUY", entry["raw_direction"])
	assert.Equal(t, "v3", entry["version"])
	assert.Equal(t, true, entry["fallback"])
	assert.InDelta(t, 0.7, entry["constraint"], 1e-12)
	assert.Equal(t, "confidence below minimum", entry["reasoning"])
}
