package training

import (
	"math"

	"FinPolicy/internal/domain/models"
	"FinPolicy/internal/nn"
	"FinPolicy/pkg/errs"

	"gonum.org/v1/gonum/stat"
)

// Evaluation scores a network on held-out samples under greedy selection.
// A sample contributes its reward only when the greedy action matches the
// recorded action; otherwise it counts as zero reward.
type Evaluation struct {
	AvgReward   float64
	Accuracy    float64
	WinRate     float64
	Sharpe      float64
	MaxDrawdown float64
	Matched     int
	Samples     int
}

// periods used to annualize the per-trade Sharpe ratio
const sharpePeriods = 252

// Evaluate is deterministic for a given network and sample order.
func Evaluate(net *nn.Network, samples []models.TrainingSample) (Evaluation, error) {
	if len(samples) == 0 {
		return Evaluation{}, errs.New(errs.KindInsufficientData, "evaluate", "no validation samples")
	}

	var (
		total   float64
		matched []float64
		wins    int
	)
	for _, s := range samples {
		a, err := net.SelectAction(s.State, false, nil)
		if err != nil {
			return Evaluation{}, err
		}
		if a.Index != s.Action {
			continue
		}
		total += s.Reward
		matched = append(matched, s.Reward)
		if s.Reward > 0 {
			wins++
		}
	}

	ev := Evaluation{
		AvgReward: total / float64(len(samples)),
		Accuracy:  float64(len(matched)) / float64(len(samples)),
		Matched:   len(matched),
		Samples:   len(samples),
	}
	if len(matched) > 0 {
		ev.WinRate = float64(wins) / float64(len(matched))
		ev.MaxDrawdown = maxDrawdown(matched)
	}
	if len(matched) > 1 {
		mean, std := stat.MeanStdDev(matched, nil)
		if std > 0 {
			ev.Sharpe = mean / std * math.Sqrt(sharpePeriods)
		}
	}
	return ev, nil
}

// maxDrawdown of the equity curve 1 + cumulative reward, as a fraction of the peak.
func maxDrawdown(rewards []float64) float64 {
	equity, peak, dd := 1.0, 1.0, 0.0
	for _, r := range rewards {
		equity += r
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			dd = math.Max(dd, (peak-equity)/peak)
		}
	}
	return dd
}
