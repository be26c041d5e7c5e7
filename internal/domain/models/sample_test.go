package models

import (
	"math"
	"testing"
	"time"

	"FinPolicy/pkg/errs"

	"github.com/stretchr/testify/assert"
)

func goodSample(ts time.Time) TrainingSample {
	return TrainingSample{
		Timestamp: ts,
		State:     []float64{0.1, 0.2},
		NextState: []float64{0.2, 0.3},
		Action:    ActionBuy,
		Reward:    1,
		LogProb:   math.Log(0.4),
		Value:     0.5,
	}
}

func TestSampleValidateRejectsNonFinite(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := map[string]func(*TrainingSample){
		"logProb -inf": func(s *TrainingSample) { s.LogProb = math.Inf(-1) },
		"logProb +inf": func(s *TrainingSample) { s.LogProb = math.Inf(1) },
		"logProb nan":  func(s *TrainingSample) { s.LogProb = math.NaN() },
		"value inf":    func(s *TrainingSample) { s.Value = math.Inf(1) },
		"value nan":    func(s *TrainingSample) { s.Value = math.NaN() },
		"reward inf":   func(s *TrainingSample) { s.Reward = math.Inf(-1) },
		"state nan":    func(s *TrainingSample) { s.State[1] = math.NaN() },
		"action":       func(s *TrainingSample) { s.Action = NumActions },
		"short state":  func(s *TrainingSample) { s.NextState = s.NextState[:1] },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := goodSample(base)
			mutate(&s)
			assert.True(t, errs.Is(s.Validate(2), errs.KindValidation))
		})
	}
	assert.NoError(t, goodSample(base).Validate(2))
}

func TestFilterSamplesDropsAndSorts(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late, early, bad := goodSample(base.Add(time.Hour)), goodSample(base), goodSample(base.Add(time.Minute))
	bad.LogProb = math.Inf(-1)

	out, dropped := FilterSamples([]TrainingSample{late, bad, early}, 2)
	assert.Equal(t, 1, dropped)
	if assert.Len(t, out, 2) {
		assert.Equal(t, early.Timestamp, out[0].Timestamp)
		assert.Equal(t, late.Timestamp, out[1].Timestamp)
	}
}
