package repository

import (
	"context"
	"time"

	"FinPolicy/internal/domain/models"
)

// SampleStore is the training sample feed.
type SampleStore interface {
	StoreSamples(ctx context.Context, samples []models.TrainingSample) error
	// SamplesSince returns samples with Timestamp > since, oldest first, at most limit rows.
	SamplesSince(ctx context.Context, since time.Time, limit int) ([]models.TrainingSample, error)
}

// PredictionLog receives every served prediction.
type PredictionLog interface {
	LogPrediction(ctx context.Context, p *models.Prediction) error
}

// ModelIndex tracks which version of a model is promoted.
type ModelIndex interface {
	// Active returns nil, nil when nothing has been promoted yet.
	Active(ctx context.Context, name string) (*models.ActiveModel, error)
	// Promote atomically deactivates the previous version and activates the new one.
	Promote(ctx context.Context, active models.ActiveModel) error
}

// TrainingSink persists training observability records.
type TrainingSink interface {
	RecordEpoch(ctx context.Context, cycleID string, m models.EpochMetrics) error
	RecordCycle(ctx context.Context, s models.CycleSummary) error
	// LastWindow is the latest WindowEnd recorded for model, or zero.
	LastWindow(ctx context.Context, model string) (time.Time, error)
}

// DecisionBroadcaster pushes decisions to live subscribers.
type DecisionBroadcaster interface {
	Broadcast(v interface{})
}

// Metrics is the process metrics sink.
type Metrics interface {
	RecordPrediction(direction string, fallback bool)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordCache(hit bool)
	RecordEpoch(m models.EpochMetrics)
	RecordCycle(outcome string)
	RecordActiveModel(name, version string)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordPrediction(string, bool)    {}
func (NopMetrics) RecordError(string)               {}
func (NopMetrics) RecordLatency(string, float64)    {}
func (NopMetrics) RecordCache(bool)                 {}
func (NopMetrics) RecordEpoch(models.EpochMetrics)  {}
func (NopMetrics) RecordCycle(string)               {}
func (NopMetrics) RecordActiveModel(string, string) {}
