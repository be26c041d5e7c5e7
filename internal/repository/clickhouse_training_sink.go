package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FinPolicy/internal/domain/models"
	domrepo "FinPolicy/internal/domain/repository"
	pkgch "FinPolicy/pkg/clickhouse"
)

// CHTrainingSink writes epoch and cycle records to ClickHouse.
type CHTrainingSink struct {
	db *sql.DB
}

var _ domrepo.TrainingSink = (*CHTrainingSink)(nil)

func NewCHTrainingSink(ch *pkgch.Client) *CHTrainingSink {
	return &CHTrainingSink{db: ch.DB()}
}

func (s *CHTrainingSink) RecordEpoch(ctx context.Context, cycleID string, m models.EpochMetrics) error {
	const q = `INSERT INTO training_epochs
        (cycle_id, epoch, batches, policy_loss, value_loss, entropy_loss, constraint_loss, total_loss, avg_reward, avg_advantage, clip_fraction, approx_kl, grad_norm)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		cycleID, uint32(m.Epoch), uint32(m.Batches),
		m.PolicyLoss, m.ValueLoss, m.EntropyLoss, m.ConstraintLoss, m.TotalLoss,
		m.AvgReward, m.AvgAdvantage, m.ClipFraction, m.ApproxKL, m.GradNorm,
	)
	if err != nil {
		return fmt.Errorf("record epoch: %w", err)
	}
	return nil
}

func (s *CHTrainingSink) RecordCycle(ctx context.Context, c models.CycleSummary) error {
	const q = `INSERT INTO training_cycles
        (id, model_name, started_at, finished_at, outcome, reason, samples, dropped, train_samples, validation_samples, baseline_version, baseline_reward, candidate_version, candidate_reward, window_end)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		c.ID, c.ModelName, c.StartedAt.UTC(), c.FinishedAt.UTC(), string(c.Outcome), c.Reason,
		uint32(c.Samples), uint32(c.Dropped), uint32(c.TrainSamples), uint32(c.ValidationSamples),
		c.BaselineVersion, c.BaselineReward, c.CandidateVersion, c.CandidateReward, c.WindowEnd.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record cycle: %w", err)
	}
	return nil
}

func (s *CHTrainingSink) LastWindow(ctx context.Context, model string) (time.Time, error) {
	const q = `SELECT max(window_end) FROM training_cycles
        WHERE model_name = ? AND outcome IN ('promoted', 'discarded')`
	var t time.Time
	if err := s.db.QueryRowContext(ctx, q, model).Scan(&t); err != nil {
		return time.Time{}, fmt.Errorf("last window: %w", err)
	}
	if t.Unix() <= 0 {
		return time.Time{}, nil
	}
	return t.UTC(), nil
}
