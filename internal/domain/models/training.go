package models

import "time"

// EpochMetrics are recorded for every committed training epoch.
type EpochMetrics struct {
	Epoch          int     `json:"epoch"`
	Batches        int     `json:"batches"`
	PolicyLoss     float64 `json:"policyLoss"`
	ValueLoss      float64 `json:"valueLoss"`
	EntropyLoss    float64 `json:"entropyLoss"`
	ConstraintLoss float64 `json:"constraintLoss"`
	TotalLoss      float64 `json:"totalLoss"`
	AvgReward      float64 `json:"avgReward"`
	AvgAdvantage   float64 `json:"avgAdvantage"`
	ClipFraction   float64 `json:"clipFraction"`
	ApproxKL       float64 `json:"approxKl"`
	GradNorm       float64 `json:"gradNorm"`
	// SkippedBatches had a non-finite gradient and were not applied.
	SkippedBatches int `json:"skippedBatches,omitempty"`
}

// CycleState is a LearningScheduler state.
type CycleState string

const (
	CycleIdle       CycleState = "idle"
	CycleCollecting CycleState = "collecting"
	CycleTraining   CycleState = "training"
	CycleEvaluating CycleState = "evaluating"
	CyclePromoting  CycleState = "promoting"
	CycleSkipped    CycleState = "skipped"
)

// CycleOutcome is how a retrain cycle ended.
type CycleOutcome string

const (
	OutcomePromoted  CycleOutcome = "promoted"
	OutcomeDiscarded CycleOutcome = "discarded"
	OutcomeSkipped   CycleOutcome = "skipped"
	OutcomeFailed    CycleOutcome = "failed"
)

// CycleSummary is recorded for every cycle regardless of outcome.
type CycleSummary struct {
	ID                string         `json:"id"`
	ModelName         string         `json:"modelName"`
	StartedAt         time.Time      `json:"startedAt"`
	FinishedAt        time.Time      `json:"finishedAt"`
	Outcome           CycleOutcome   `json:"outcome"`
	Reason            string         `json:"reason,omitempty"`
	Samples           int            `json:"samples"`
	Dropped           int            `json:"dropped"`
	TrainSamples      int            `json:"trainSamples"`
	ValidationSamples int            `json:"validationSamples"`
	BaselineVersion   string         `json:"baselineVersion,omitempty"`
	BaselineReward    float64        `json:"baselineReward"`
	CandidateVersion  string         `json:"candidateVersion,omitempty"`
	CandidateReward   float64        `json:"candidateReward"`
	Epochs            []EpochMetrics `json:"epochs,omitempty"`
	// WindowEnd is the newest sample consumed by a promoted or discarded
	// cycle; the next cycle collects after it.
	WindowEnd time.Time `json:"windowEnd"`
}
