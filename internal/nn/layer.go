package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Activation of a dense layer.
type Activation int

const (
	Linear Activation = iota
	ReLU
)

// Dense is y = act(W x + b) with W shaped out x in.
type Dense struct {
	W   *mat.Dense
	B   *mat.VecDense
	Act Activation
}

// NewDense creates a Xavier initialized layer with zero biases.
func NewDense(in, out int, act Activation, rng *rand.Rand) *Dense {
	scale := math.Sqrt(2.0 / float64(in+out))
	data := make([]float64, in*out)
	for i := range data {
		data[i] = rng.NormFloat64() * scale
	}
	return &Dense{
		W:   mat.NewDense(out, in, data),
		B:   mat.NewVecDense(out, nil),
		Act: act,
	}
}

func (d *Dense) In() int  { _, c := d.W.Dims(); return c }
func (d *Dense) Out() int { r, _ := d.W.Dims(); return r }

// forward returns the pre-activation and the activation.
func (d *Dense) forward(x *mat.VecDense) (z, a *mat.VecDense) {
	z = mat.NewVecDense(d.Out(), nil)
	z.MulVec(d.W, x)
	z.AddVec(z, d.B)
	if d.Act == Linear {
		return z, z
	}
	a = mat.NewVecDense(d.Out(), nil)
	for i := 0; i < z.Len(); i++ {
		a.SetVec(i, math.Max(0, z.AtVec(i)))
	}
	return z, a
}

// backward accumulates parameter gradients and returns dL/dx.
func (d *Dense) backward(x, z, dy *mat.VecDense, gW *mat.Dense, gB *mat.VecDense) *mat.VecDense {
	dz := mat.VecDenseCopyOf(dy)
	if d.Act == ReLU {
		for i := 0; i < dz.Len(); i++ {
			if z.AtVec(i) <= 0 {
				dz.SetVec(i, 0)
			}
		}
	}

	var outer mat.Dense
	outer.Outer(1, dz, x)
	gW.Add(gW, &outer)
	gB.AddVec(gB, dz)

	dx := mat.NewVecDense(d.In(), nil)
	dx.MulVec(d.W.T(), dz)
	return dx
}

func (d *Dense) clone() *Dense {
	return &Dense{W: mat.DenseCopyOf(d.W), B: mat.VecDenseCopyOf(d.B), Act: d.Act}
}
