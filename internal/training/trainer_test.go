package training

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"FinPolicy/internal/domain/models"
	"FinPolicy/internal/nn"
	"FinPolicy/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

const dim = 6

func newNet(t *testing.T, kind models.ModelKind) *nn.Network {
	t.Helper()
	n, err := nn.New(nn.WithKind(kind), nn.WithInputDim(dim), nn.WithHiddenDims(16), nn.WithSeed(3))
	require.NoError(t, err)
	return n
}

func vec(rng *rand.Rand) []float64 {
	v := make([]float64, dim)
	for i := range v {
		v[i] = rng.NormFloat64()
	}
	return v
}

// buySellSamples rewards BUY and punishes SELL on the same kind of states.
func buySellSamples(n int, seed int64) []models.TrainingSample {
	rng := rand.New(rand.NewSource(seed))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.TrainingSample, n)
	for i := range out {
		action, reward := models.ActionBuy, 1.0
		if i%2 == 1 {
			action, reward = models.ActionSell, -1.0
		}
		out[i] = models.TrainingSample{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			State:     vec(rng),
			NextState: vec(rng),
			Action:    action,
			Reward:    reward,
			Done:      true,
			LogProb:   math.Log(0.2),
		}
	}
	return out
}

func TestComputeGAEByHand(t *testing.T) {
	samples := []models.TrainingSample{
		{Reward: 1},
		{Reward: 2, Done: true},
	}
	adv, ret := ComputeGAE(samples, []float64{0.5, 0.5}, []float64{0.5, 9}, 0.9, 0.8)

	assert.InDelta(t, 2.03, adv[0], 1e-12)
	assert.InDelta(t, 1.5, adv[1], 1e-12)
	assert.InDelta(t, 2.53, ret[0], 1e-12)
	assert.InDelta(t, 2.0, ret[1], 1e-12)
}

func TestComputeGAEResetsAtEpisodeEnd(t *testing.T) {
	samples := []models.TrainingSample{
		{Reward: 1, Done: true},
		{Reward: 5, Done: true},
	}
	adv, _ := ComputeGAE(samples, []float64{0, 0}, []float64{3, 3}, 0.99, 0.95)
	// the terminal first sample must not see the second sample's advantage
	assert.InDelta(t, 1.0, adv[0], 1e-12)
	assert.InDelta(t, 5.0, adv[1], 1e-12)
}

func TestNormalizeAdvantages(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for trial := 0; trial < 20; trial++ {
		adv := make([]float64, 10+rng.Intn(200))
		for i := range adv {
			adv[i] = rng.NormFloat64()*rng.Float64()*50 + rng.Float64()*10
		}
		norm := NormalizeAdvantages(adv)
		mean, variance := stat.PopMeanVariance(norm, nil)
		assert.InDelta(t, 0, mean, 1e-6)
		assert.InDelta(t, 1, math.Sqrt(variance), 1e-6)
	}
}

func TestTrainDoesNotMutateBase(t *testing.T) {
	base := newNet(t, models.ModelKindPPO)
	before, err := base.ToWeights(models.ModelMetadata{})
	require.NoError(t, err)

	tr := NewTrainer(nil, WithEpochs(3), WithBatchSize(16))
	res, err := tr.Train(context.Background(), base, buySellSamples(64, 1))
	require.NoError(t, err)
	require.Len(t, res.Epochs, 3)

	after, err := base.ToWeights(models.ModelMetadata{})
	require.NoError(t, err)
	assert.Equal(t, before.Metadata.Checksum, after.Metadata.Checksum)

	trained, err := res.Network.ToWeights(models.ModelMetadata{})
	require.NoError(t, err)
	assert.NotEqual(t, before.Metadata.Checksum, trained.Metadata.Checksum)

	for _, m := range res.Epochs {
		assert.GreaterOrEqual(t, m.ClipFraction, 0.0)
		assert.LessOrEqual(t, m.ClipFraction, 1.0)
		assert.Equal(t, 4, m.Batches)
		assert.InDelta(t, m.PolicyLoss+m.ValueLoss+m.EntropyLoss+m.ConstraintLoss, m.TotalLoss, 1e-12)
	}
}

func TestZeroClipRatioClipsEverything(t *testing.T) {
	tr := NewTrainer(nil, WithClipRatio(0), WithEpochs(1))
	res, err := tr.Train(context.Background(), newNet(t, models.ModelKindPPO), buySellSamples(32, 2))
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Epochs[0].ClipFraction)
}

func TestTrainingShiftsPolicyTowardRewardedAction(t *testing.T) {
	base := newNet(t, models.ModelKindPPO)
	samples := buySellSamples(128, 5)

	tr := NewTrainer(nil, WithEpochs(25), WithBatchSize(32), WithLearningRate(5e-3), WithMaxGradNorm(5))
	res, err := tr.Train(context.Background(), base, samples)
	require.NoError(t, err)

	var before, after float64
	for _, s := range samples {
		p0, _ := base.ForwardPolicy(s.State)
		p1, _ := res.Network.ForwardPolicy(s.State)
		before += p0[models.ActionBuy] - p0[models.ActionSell]
		after += p1[models.ActionBuy] - p1[models.ActionSell]
	}
	assert.Greater(t, after, before)
}

func TestConstraintPenaltyLowersScores(t *testing.T) {
	base := newNet(t, models.ModelKindCPPO)
	base.SetConstraintThreshold(0)
	samples := buySellSamples(64, 8)

	tr := NewTrainer(nil, WithEpochs(10), WithBatchSize(16), WithLearningRate(1e-2), WithMaxGradNorm(5))
	res, err := tr.Train(context.Background(), base, samples)
	require.NoError(t, err)
	assert.Greater(t, res.Epochs[0].ConstraintLoss, 0.0)

	var before, after float64
	for _, s := range samples {
		c0, _, _ := base.ForwardConstraint(s.State)
		c1, _, _ := res.Network.ForwardConstraint(s.State)
		before += c0
		after += c1
	}
	assert.Less(t, after, before)
}

func TestTrainCancelledKeepsCommittedSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	tr := NewTrainer(nil, WithEpochs(5), WithBatchSize(8), WithEpochHook(func(models.EpochMetrics) {
		calls++
		if calls == 2 {
			cancel()
		}
	}))

	res, err := tr.Train(ctx, newNet(t, models.ModelKindPPO), buySellSamples(32, 3))
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Len(t, res.Epochs, 2)
	assert.NotNil(t, res.Network)
}

func TestTrainRejectsBadInput(t *testing.T) {
	tr := NewTrainer(nil)
	_, err := tr.Train(context.Background(), newNet(t, models.ModelKindPPO), nil)
	assert.True(t, errs.Is(err, errs.KindInsufficientData))

	bad := buySellSamples(4, 1)
	bad[2].State = bad[2].State[:3]
	_, err = tr.Train(context.Background(), newNet(t, models.ModelKindPPO), bad)
	assert.True(t, errs.Is(err, errs.KindValidation))

	_, err = tr.Train(context.Background(), nil, buySellSamples(4, 1))
	assert.ErrorIs(t, err, nn.ErrUninitialized)
}

func finiteParams(t *testing.T, net *nn.Network) {
	t.Helper()
	for _, p := range net.Params() {
		for _, v := range p {
			require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "non-finite parameter %v", v)
		}
	}
}

func TestInfiniteLogProbNeverReachesTheOptimizer(t *testing.T) {
	raw := buySellSamples(64, 4)
	raw[3].LogProb = math.Inf(-1)
	raw[7].LogProb = math.Inf(1)
	raw[9].Value = math.Inf(1)

	tr := NewTrainer(nil, WithEpochs(2), WithBatchSize(16))
	_, err := tr.Train(context.Background(), newNet(t, models.ModelKindPPO), raw)
	assert.True(t, errs.Is(err, errs.KindValidation))

	clean, dropped := models.FilterSamples(raw, dim)
	require.Equal(t, 3, dropped)
	res, err := tr.Train(context.Background(), newNet(t, models.ModelKindPPO), clean)
	require.NoError(t, err)
	finiteParams(t, res.Network)
	for _, m := range res.Epochs {
		assert.False(t, math.IsNaN(m.TotalLoss) || math.IsInf(m.TotalLoss, 0))
		assert.Zero(t, m.SkippedBatches)
	}
}

func TestExtremeLogRatioStaysFinite(t *testing.T) {
	samples := buySellSamples(32, 6)
	samples[0].LogProb = -700
	samples[1].LogProb = -700

	tr := NewTrainer(nil, WithEpochs(2), WithBatchSize(8))
	res, err := tr.Train(context.Background(), newNet(t, models.ModelKindCPPO), samples)
	require.NoError(t, err)
	finiteParams(t, res.Network)
	for _, m := range res.Epochs {
		assert.False(t, math.IsInf(m.PolicyLoss, 0) || math.IsNaN(m.PolicyLoss))
		assert.False(t, math.IsNaN(m.GradNorm))
	}
}

func TestStepSkipsNonFiniteGradient(t *testing.T) {
	tr := NewTrainer(nil)
	net := newNet(t, models.ModelKindPPO)
	before := make([][]float64, 0)
	for _, p := range net.Params() {
		before = append(before, append([]float64(nil), p...))
	}

	samples := buySellSamples(4, 1)
	p := &prepared{
		samples:    samples,
		advantages: make([]float64, 4),
		rawAdv:     make([]float64, 4),
		returns:    []float64{math.NaN(), 0, 0, 0},
	}
	acc := &accumulator{}
	tr.step(net, nn.NewAdam(1e-3), p, []int{0, 1, 2, 3}, acc)

	assert.Equal(t, 1, acc.skipped)
	assert.Equal(t, before, net.Params())
	m := acc.metrics(1, p)
	assert.Equal(t, 1, m.SkippedBatches)
	assert.Zero(t, m.GradNorm)
}

func TestEvaluateCountsOnlyGreedyMatches(t *testing.T) {
	net := newNet(t, models.ModelKindPPO)
	rng := rand.New(rand.NewSource(4))

	var samples []models.TrainingSample
	for i := 0; i < 10; i++ {
		s := vec(rng)
		greedy, err := net.SelectAction(s, false, nil)
		require.NoError(t, err)
		action := greedy.Index
		if i%2 == 1 {
			action = (greedy.Index + 1) % models.NumActions
		}
		samples = append(samples, models.TrainingSample{State: s, NextState: s, Action: action, Reward: 1})
	}

	ev, err := Evaluate(net, samples)
	require.NoError(t, err)
	assert.Equal(t, 5, ev.Matched)
	assert.InDelta(t, 0.5, ev.AvgReward, 1e-12)
	assert.InDelta(t, 0.5, ev.Accuracy, 1e-12)
	assert.Equal(t, 1.0, ev.WinRate)
	assert.Zero(t, ev.MaxDrawdown)

	_, err = Evaluate(net, nil)
	assert.True(t, errs.Is(err, errs.KindInsufficientData))
}

func TestMaxDrawdown(t *testing.T) {
	assert.InDelta(t, 0.5, maxDrawdown([]float64{1, -1}), 1e-12)
	assert.Zero(t, maxDrawdown([]float64{0.1, 0.2}))
}
