package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"FinPolicy/internal/domain/models"
	domrepo "FinPolicy/internal/domain/repository"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PGSchema creates the promotion ledger. At most one row per model is active.
var PGSchema = []string{
	`CREATE TABLE IF NOT EXISTS model_promotions (
		id BIGSERIAL PRIMARY KEY,
		model_name TEXT NOT NULL,
		version TEXT NOT NULL,
		validation_reward DOUBLE PRECISION NOT NULL,
		promoted_at TIMESTAMPTZ NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS model_promotions_one_active
		ON model_promotions (model_name) WHERE active`,
}

// PGModelIndex keeps promotion history in Postgres.
type PGModelIndex struct {
	db *sqlx.DB
}

var _ domrepo.ModelIndex = (*PGModelIndex)(nil)

// OpenPostgres connects with lib/pq.
func OpenPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	return db, nil
}

func NewPGModelIndex(db *sqlx.DB) *PGModelIndex {
	return &PGModelIndex{db: db}
}

// InitSchema runs PGSchema.
func (p *PGModelIndex) InitSchema(ctx context.Context) error {
	for _, stmt := range PGSchema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init ledger schema: %w", err)
		}
	}
	return nil
}

func (p *PGModelIndex) Active(ctx context.Context, name string) (*models.ActiveModel, error) {
	var am models.ActiveModel
	err := p.db.GetContext(ctx, &am, `
		SELECT model_name, version, validation_reward, promoted_at
		FROM model_promotions
		WHERE model_name = $1 AND active
		LIMIT 1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active model: %w", err)
	}
	return &am, nil
}

// Promote deactivates the current row and inserts the new one in a single
// transaction.
func (p *PGModelIndex) Promote(ctx context.Context, am models.ActiveModel) (err error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin promote: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`UPDATE model_promotions SET active = FALSE WHERE model_name = $1 AND active`, am.Name); err != nil {
		return fmt.Errorf("deactivate previous: %w", err)
	}
	if _, err = tx.NamedExecContext(ctx, `
		INSERT INTO model_promotions (model_name, version, validation_reward, promoted_at, active)
		VALUES (:model_name, :version, :validation_reward, :promoted_at, TRUE)`, am); err != nil {
		return fmt.Errorf("activate %s/%s: %w", am.Name, am.Version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit promote: %w", err)
	}
	return nil
}

// History lists promotions newest first.
func (p *PGModelIndex) History(ctx context.Context, name string, limit int) ([]models.ActiveModel, error) {
	out := []models.ActiveModel{}
	err := p.db.SelectContext(ctx, &out, `
		SELECT model_name, version, validation_reward, promoted_at
		FROM model_promotions
		WHERE model_name = $1
		ORDER BY promoted_at DESC
		LIMIT $2`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("promotion history: %w", err)
	}
	return out, nil
}
