package nn

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Adam is the Adam optimizer over flat parameter slices.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	t int
	m [][]float64
	v [][]float64
}

// NewAdam returns Adam with the usual betas.
func NewAdam(lr float64) *Adam {
	return &Adam{LR: lr, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8}
}

// Step applies one descent update. params and grads must be aligned.
func (a *Adam) Step(params, grads [][]float64) {
	if a.m == nil || len(a.m) != len(params) {
		a.m = make([][]float64, len(params))
		a.v = make([][]float64, len(params))
		for i, p := range params {
			a.m[i] = make([]float64, len(p))
			a.v[i] = make([]float64, len(p))
		}
	}
	a.t++
	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))

	for i, p := range params {
		g := grads[i]
		m, v := a.m[i], a.v[i]
		for j := range p {
			m[j] = a.Beta1*m[j] + (1-a.Beta1)*g[j]
			v[j] = a.Beta2*v[j] + (1-a.Beta2)*g[j]*g[j]
			p[j] -= a.LR * (m[j] / c1) / (math.Sqrt(v[j]/c2) + a.Eps)
		}
	}
}

// GlobalNorm is the L2 norm over all gradient slices.
func GlobalNorm(grads [][]float64) float64 {
	sum := 0.0
	for _, g := range grads {
		sum += floats.Dot(g, g)
	}
	return math.Sqrt(sum)
}

// ClipGlobalNorm rescales grads in place so their global norm is at most maxNorm.
// It returns the norm before clipping.
func ClipGlobalNorm(grads [][]float64, maxNorm float64) float64 {
	norm := GlobalNorm(grads)
	if maxNorm > 0 && norm > maxNorm {
		s := maxNorm / norm
		for _, g := range grads {
			floats.Scale(s, g)
		}
	}
	return norm
}
