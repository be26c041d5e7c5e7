package models

import (
	"math"
	"sort"
	"time"

	"FinPolicy/pkg/errs"
)

// TrainingSample is one realized transition recorded after a trade closed.
type TrainingSample struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	State     []float64 `json:"state"`
	Action    int       `json:"action"`
	Reward    float64   `json:"reward"`
	NextState []float64 `json:"nextState"`
	Done      bool      `json:"done"`
	LogProb   float64   `json:"logProb"`
	Value     float64   `json:"value"`
}

// Validate rejects rows that cannot be used for training.
func (s TrainingSample) Validate(dim int) error {
	const op = "validate sample"
	switch {
	case len(s.State) != dim:
		return errs.Newf(errs.KindValidation, op, "state length %d, want %d", len(s.State), dim)
	case len(s.NextState) != dim:
		return errs.Newf(errs.KindValidation, op, "next state length %d, want %d", len(s.NextState), dim)
	case math.IsNaN(s.Reward) || math.IsInf(s.Reward, 0):
		return errs.New(errs.KindValidation, op, "reward is not finite")
	case s.Action < 0 || s.Action >= NumActions:
		return errs.Newf(errs.KindValidation, op, "action %d out of range", s.Action)
	case math.IsNaN(s.LogProb) || math.IsInf(s.LogProb, 0):
		return errs.New(errs.KindValidation, op, "logProb is not finite")
	case math.IsNaN(s.Value) || math.IsInf(s.Value, 0):
		return errs.New(errs.KindValidation, op, "value is not finite")
	}
	for _, v := range s.State {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errs.New(errs.KindValidation, op, "state is not finite")
		}
	}
	for _, v := range s.NextState {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errs.New(errs.KindValidation, op, "next state is not finite")
		}
	}
	return nil
}

// FilterSamples drops malformed rows and returns the rest ordered by time.
func FilterSamples(samples []TrainingSample, dim int) ([]TrainingSample, int) {
	out := make([]TrainingSample, 0, len(samples))
	for _, s := range samples {
		if s.Validate(dim) != nil {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, len(samples) - len(out)
}
