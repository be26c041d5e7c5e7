package nn

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Softmax returns a numerically stable softmax of logits.
func Softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	maxv := floats.Max(logits)
	sum := 0.0
	for i, v := range logits {
		out[i] = math.Exp(v - maxv)
		sum += out[i]
	}
	floats.Scale(1/sum, out)
	return out
}

// Sigmoid is the logistic function.
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Entropy of a categorical distribution, in nats.
func Entropy(p []float64) float64 {
	h := 0.0
	for _, v := range p {
		if v > 0 {
			h -= v * math.Log(v)
		}
	}
	return h
}

// SafeLog avoids -Inf for zero probabilities.
func SafeLog(p float64) float64 {
	return math.Log(math.Max(p, 1e-12))
}

// Argmax returns the first index of the largest element.
func Argmax(v []float64) int {
	return floats.MaxIdx(v)
}

// Sample draws an index from a categorical distribution given u in [0,1).
func Sample(p []float64, u float64) int {
	acc := 0.0
	for i, v := range p {
		acc += v
		if u < acc {
			return i
		}
	}
	return len(p) - 1
}
