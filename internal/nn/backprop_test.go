package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loss = sum_i coef_i * out_i, so dL/dout = coef.
func weightedLoss(m *MLP, x, coef []float64) float64 {
	out := m.Forward(x)
	l := 0.0
	for i := range out {
		l += coef[i] * out[i]
	}
	return l
}

func TestBackwardMatchesFiniteDifferences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	m := NewMLP([]int{4, 6, 5, 3}, rng)
	x := []float64{0.3, -1.2, 0.8, 0.05}
	coef := []float64{0.7, -0.4, 1.1}

	g := NewGrads(m)
	m.Backward(m.ForwardTrace(x), coef, g)

	const eps = 1e-6
	params := m.params()
	analytic := g.slices()
	for pi, p := range params {
		for j := range p {
			orig := p[j]
			p[j] = orig + eps
			up := weightedLoss(m, x, coef)
			p[j] = orig - eps
			down := weightedLoss(m, x, coef)
			p[j] = orig

			numeric := (up - down) / (2 * eps)
			require.InDelta(t, numeric, analytic[pi][j], 1e-6, "param %d[%d]", pi, j)
		}
	}
}

func TestAdamMinimizesQuadratic(t *testing.T) {
	p := [][]float64{{3, -2}}
	opt := NewAdam(0.1)
	for i := 0; i < 500; i++ {
		g := [][]float64{{2 * p[0][0], 2 * p[0][1]}}
		opt.Step(p, g)
	}
	assert.InDelta(t, 0, p[0][0], 1e-2)
	assert.InDelta(t, 0, p[0][1], 1e-2)
}

func TestClipGlobalNorm(t *testing.T) {
	g := [][]float64{{3}, {4}}
	norm := ClipGlobalNorm(g, 1)
	assert.InDelta(t, 5, norm, 1e-12)
	assert.InDelta(t, 1, GlobalNorm(g), 1e-12)

	small := [][]float64{{0.1}}
	ClipGlobalNorm(small, 1)
	assert.Equal(t, 0.1, small[0][0])
	assert.False(t, math.IsNaN(GlobalNorm([][]float64{{}})))
}
