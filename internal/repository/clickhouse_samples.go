package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"FinPolicy/internal/domain/models"
	domrepo "FinPolicy/internal/domain/repository"
	pkgch "FinPolicy/pkg/clickhouse"
	applogger "FinPolicy/pkg/logger"
)

const (
	samplesTable     = "training_samples"
	sampleChunkSize  = 1000
	defaultSampleCap = 50000
)

// CHSampleStore implements SampleStore backed by ClickHouse.
type CHSampleStore struct {
	db *sql.DB
	l  *applogger.Logger
}

var _ domrepo.SampleStore = (*CHSampleStore)(nil)

func NewCHSampleStore(ch *pkgch.Client, l *applogger.Logger) *CHSampleStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHSampleStore{db: ch.DB(), l: l.Component("sample_store")}
}

// StoreSamples inserts rows in multi-row VALUES chunks.
func (s *CHSampleStore) StoreSamples(ctx context.Context, samples []models.TrainingSample) error {
	for start := 0; start < len(samples); start += sampleChunkSize {
		end := min(start+sampleChunkSize, len(samples))
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*10)
		for _, t := range samples[start:end] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				t.ID,
				t.Symbol,
				t.Timestamp.UTC(),
				t.State,
				uint8(t.Action),
				t.Reward,
				t.NextState,
				boolToUint8(t.Done),
				t.LogProb,
				t.Value,
			)
		}
		q := fmt.Sprintf("INSERT INTO %s (id, symbol, ts, state, action, reward, next_state, done, log_prob, value) VALUES %s",
			samplesTable, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse store_samples error", applogger.Int("rows", end-start), applogger.Error(err))
			return fmt.Errorf("store samples: %w", err)
		}
	}
	return nil
}

// SamplesSince returns rows newer than since, oldest first.
func (s *CHSampleStore) SamplesSince(ctx context.Context, since time.Time, limit int) ([]models.TrainingSample, error) {
	if limit <= 0 {
		limit = defaultSampleCap
	}
	q := fmt.Sprintf(`
        SELECT id, symbol, ts, state, action, reward, next_state, done, log_prob, value
        FROM %s FINAL
        WHERE ts > ?
        ORDER BY ts ASC
        LIMIT ?`, samplesTable)
	rows, err := s.db.QueryContext(ctx, q, since.UTC(), limit)
	if err != nil {
		s.l.Error("clickhouse samples_since query error", applogger.Error(err))
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	out := make([]models.TrainingSample, 0, 256)
	for rows.Next() {
		var (
			t      models.TrainingSample
			action uint8
			done   uint8
		)
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Timestamp, &t.State, &action, &t.Reward, &t.NextState, &done, &t.LogProb, &t.Value); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		t.Action = int(action)
		t.Done = done == 1
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
