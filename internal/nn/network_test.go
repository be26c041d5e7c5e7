package nn

import (
	"math"
	"math/rand"
	"testing"

	"FinPolicy/internal/domain/models"
	"FinPolicy/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func testState(dim int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	s := make([]float64, dim)
	for i := range s {
		s[i] = rng.NormFloat64()
	}
	return s
}

func TestForwardPolicyIsDistribution(t *testing.T) {
	n, err := New(WithInputDim(8), WithHiddenDims(16, 8))
	require.NoError(t, err)

	probs, err := n.ForwardPolicy(testState(8, 1))
	require.NoError(t, err)
	require.Len(t, probs, models.NumActions)

	sum := 0.0
	for _, p := range probs {
		assert.GreaterOrEqual(t, p, 0.0)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestUninitializedNetworkFailsFast(t *testing.T) {
	var nilNet *Network
	_, err := nilNet.ForwardPolicy(make([]float64, 4))
	require.ErrorIs(t, err, ErrUninitialized)

	zero := &Network{}
	_, err = zero.ForwardValue(make([]float64, 4))
	require.ErrorIs(t, err, ErrUninitialized)
	assert.True(t, errs.Is(err, errs.KindValidation))

	_, err = zero.SelectAction(make([]float64, 4), false, nil)
	require.ErrorIs(t, err, ErrUninitialized)
}

func TestForwardRejectsWrongInputLength(t *testing.T) {
	n, err := New(WithInputDim(8), WithHiddenDims(4))
	require.NoError(t, err)

	_, err = n.ForwardPolicy(make([]float64, 7))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindValidation))
}

func TestXavierInitialization(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	l := NewDense(50, 128, ReLU, rng)

	for _, b := range l.B.RawVector().Data {
		assert.Zero(t, b)
	}
	w := l.W.RawMatrix().Data
	want := math.Sqrt(2.0 / float64(50+128))
	assert.InDelta(t, 0, stat.Mean(w, nil), 0.01)
	assert.InEpsilon(t, want, stat.PopStdDev(w, nil), 0.05)
}

func TestSelectActionServingIsArgmax(t *testing.T) {
	n, err := New(WithInputDim(8), WithHiddenDims(16))
	require.NoError(t, err)
	state := testState(8, 3)

	probs, err := n.ForwardPolicy(state)
	require.NoError(t, err)
	s, err := n.SelectAction(state, false, nil)
	require.NoError(t, err)

	assert.Equal(t, Argmax(probs), s.Index)
	assert.InDelta(t, math.Log(probs[s.Index]), s.LogProb, 1e-12)
	assert.False(t, s.HasConstraint)
}

func TestSelectActionTrainingSamples(t *testing.T) {
	n, err := New(WithInputDim(8), WithHiddenDims(16))
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(11))
	state := testState(8, 4)

	seen := map[int]int{}
	for i := 0; i < 300; i++ {
		s, err := n.SelectAction(state, true, rng)
		require.NoError(t, err)
		require.True(t, s.Index >= 0 && s.Index < models.NumActions)
		seen[s.Index]++
	}
	// a fresh network is close to uniform, so sampling explores every action
	assert.Len(t, seen, models.NumActions)

	_, err = n.SelectAction(state, true, nil)
	assert.Error(t, err)
}

func TestConstraintHead(t *testing.T) {
	ppo, err := New(WithInputDim(6), WithHiddenDims(8))
	require.NoError(t, err)
	_, ok, err := ppo.ForwardConstraint(testState(6, 1))
	require.NoError(t, err)
	assert.False(t, ok)

	cppo, err := New(WithKind(models.ModelKindCPPO), WithInputDim(6), WithHiddenDims(8), WithConstraintThreshold(0))
	require.NoError(t, err)
	c, ok, err := cppo.ForwardConstraint(testState(6, 1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, c > 0 && c < 1)

	s, err := cppo.SelectAction(testState(6, 1), false, nil)
	require.NoError(t, err)
	assert.True(t, s.HasConstraint)
	// threshold 0 means any positive score is a violation that degrades confidence
	assert.InDelta(t, c, s.ConstraintPenalty, 1e-12)
	// the penalty never vetoes the greedy action
	assert.Equal(t, Argmax(s.Probs), s.Index)
	assert.Equal(t, models.DirectionFromIndex(s.Index), s.Direction)
}

func TestWeightsRoundTripPreservesOutputs(t *testing.T) {
	n, err := New(WithKind(models.ModelKindCPPO), WithInputDim(5), WithHiddenDims(7, 3), WithSeed(5))
	require.NoError(t, err)

	w, err := n.ToWeights(models.ModelMetadata{Version: "v1"})
	require.NoError(t, err)
	assert.Equal(t, Checksum(w), w.Metadata.Checksum)
	assert.Equal(t, []int{7, 3}, w.Metadata.HiddenDims)

	back, err := FromWeights(w, 0.5)
	require.NoError(t, err)

	state := testState(5, 9)
	p1, _ := n.ForwardPolicy(state)
	p2, _ := back.ForwardPolicy(state)
	assert.InDeltaSlice(t, p1, p2, 1e-15)
	c1, _, _ := n.ForwardConstraint(state)
	c2, _, _ := back.ForwardConstraint(state)
	assert.InDelta(t, c1, c2, 1e-15)
}

func TestChecksumDetectsSingleBitFlip(t *testing.T) {
	n, err := New(WithInputDim(4), WithHiddenDims(4))
	require.NoError(t, err)
	w, err := n.ToWeights(models.ModelMetadata{})
	require.NoError(t, err)

	flipped := w.Clone()
	v := flipped.ValueNet[0].Weights[1][2]
	flipped.ValueNet[0].Weights[1][2] = math.Float64frombits(math.Float64bits(v) ^ 1)

	assert.NotEqual(t, Checksum(w), Checksum(flipped))
	assert.Equal(t, Checksum(w), Checksum(w.Clone()))
}

func TestCheckStructure(t *testing.T) {
	n, err := New(WithInputDim(4), WithHiddenDims(3))
	require.NoError(t, err)
	good, err := n.ToWeights(models.ModelMetadata{})
	require.NoError(t, err)
	require.NoError(t, CheckStructure(good))

	cases := map[string]func(w *models.ModelWeights){
		"missing policy":    func(w *models.ModelWeights) { w.PolicyNet = nil },
		"missing value":     func(w *models.ModelWeights) { w.ValueNet = nil },
		"bias mismatch":     func(w *models.ModelWeights) { w.PolicyNet[0].Biases = w.PolicyNet[0].Biases[:1] },
		"ragged rows":       func(w *models.ModelWeights) { w.PolicyNet[0].Weights[0] = w.PolicyNet[0].Weights[0][:2] },
		"broken chain":      func(w *models.ModelWeights) { w.ValueNet[1].Weights = [][]float64{{1, 2}} },
		"cppo without head": func(w *models.ModelWeights) { w.Kind = models.ModelKindCPPO },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			w := good.Clone()
			mutate(w)
			err := CheckStructure(w)
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.KindIntegrity))
		})
	}
}
