package nn

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// MLP is a stack of dense layers: ReLU hidden layers and a linear output.
type MLP struct {
	Layers []*Dense
}

// NewMLP builds a network for sizes [in, h1, ..., out].
func NewMLP(sizes []int, rng *rand.Rand) *MLP {
	layers := make([]*Dense, 0, len(sizes)-1)
	for i := 0; i < len(sizes)-1; i++ {
		act := ReLU
		if i == len(sizes)-2 {
			act = Linear
		}
		layers = append(layers, NewDense(sizes[i], sizes[i+1], act, rng))
	}
	return &MLP{Layers: layers}
}

func (m *MLP) InputDim() int  { return m.Layers[0].In() }
func (m *MLP) OutputDim() int { return m.Layers[len(m.Layers)-1].Out() }

// Trace keeps per-layer inputs and pre-activations for one forward pass.
// Traces are per call so a shared MLP stays safe for concurrent readers.
type Trace struct {
	inputs []*mat.VecDense
	pre    []*mat.VecDense
	Output []float64
}

// Forward runs the network without keeping intermediate values.
func (m *MLP) Forward(x []float64) []float64 {
	a := mat.NewVecDense(len(x), append([]float64(nil), x...))
	for _, l := range m.Layers {
		_, a = l.forward(a)
	}
	return a.RawVector().Data
}

// ForwardTrace runs the network and records what Backward needs.
func (m *MLP) ForwardTrace(x []float64) *Trace {
	tr := &Trace{
		inputs: make([]*mat.VecDense, len(m.Layers)),
		pre:    make([]*mat.VecDense, len(m.Layers)),
	}
	a := mat.NewVecDense(len(x), append([]float64(nil), x...))
	for i, l := range m.Layers {
		tr.inputs[i] = a
		var z *mat.VecDense
		z, a = l.forward(a)
		tr.pre[i] = z
	}
	tr.Output = a.RawVector().Data
	return tr
}

// Backward accumulates gradients of the loss w.r.t. the parameters into g,
// given dL/dOutput for the traced pass.
func (m *MLP) Backward(tr *Trace, gradOut []float64, g *Grads) {
	dy := mat.NewVecDense(len(gradOut), append([]float64(nil), gradOut...))
	for i := len(m.Layers) - 1; i >= 0; i-- {
		dy = m.Layers[i].backward(tr.inputs[i], tr.pre[i], dy, g.W[i], g.B[i])
	}
}

func (m *MLP) clone() *MLP {
	layers := make([]*Dense, len(m.Layers))
	for i, l := range m.Layers {
		layers[i] = l.clone()
	}
	return &MLP{Layers: layers}
}

// params returns the raw backing slices of every parameter, in layer order.
func (m *MLP) params() [][]float64 {
	out := make([][]float64, 0, 2*len(m.Layers))
	for _, l := range m.Layers {
		out = append(out, l.W.RawMatrix().Data, l.B.RawVector().Data)
	}
	return out
}

// Grads mirrors the parameter shapes of an MLP.
type Grads struct {
	W []*mat.Dense
	B []*mat.VecDense
}

// NewGrads returns zeroed gradients for m.
func NewGrads(m *MLP) *Grads {
	g := &Grads{
		W: make([]*mat.Dense, len(m.Layers)),
		B: make([]*mat.VecDense, len(m.Layers)),
	}
	for i, l := range m.Layers {
		r, c := l.W.Dims()
		g.W[i] = mat.NewDense(r, c, nil)
		g.B[i] = mat.NewVecDense(r, nil)
	}
	return g
}

// Scale multiplies every gradient by s.
func (g *Grads) Scale(s float64) {
	for i := range g.W {
		g.W[i].Scale(s, g.W[i])
		g.B[i].ScaleVec(s, g.B[i])
	}
}

func (g *Grads) slices() [][]float64 {
	out := make([][]float64, 0, 2*len(g.W))
	for i := range g.W {
		out = append(out, g.W[i].RawMatrix().Data, g.B[i].RawVector().Data)
	}
	return out
}
