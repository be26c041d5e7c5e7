package training

import (
	"math"

	"FinPolicy/internal/domain/models"

	"gonum.org/v1/gonum/stat"
)

const advantageEps = 1e-8

// ComputeGAE walks samples in reverse time order.
// values[t] is V(s_t) and nextValues[t] is V(s_{t+1}).
func ComputeGAE(samples []models.TrainingSample, values, nextValues []float64, gamma, lambda float64) (advantages, returns []float64) {
	n := len(samples)
	advantages = make([]float64, n)
	returns = make([]float64, n)

	next := 0.0
	for t := n - 1; t >= 0; t-- {
		notDone := 1.0
		if samples[t].Done {
			notDone = 0
		}
		delta := samples[t].Reward + gamma*nextValues[t]*notDone - values[t]
		next = delta + gamma*lambda*notDone*next
		advantages[t] = next
		returns[t] = next + values[t]
	}
	return advantages, returns
}

// NormalizeAdvantages returns (a - mean) / (std + eps) using the population std.
func NormalizeAdvantages(adv []float64) []float64 {
	out := make([]float64, len(adv))
	if len(adv) == 0 {
		return out
	}
	mean, variance := stat.PopMeanVariance(adv, nil)
	std := math.Sqrt(variance)
	for i, a := range adv {
		out[i] = (a - mean) / (std + advantageEps)
	}
	return out
}
