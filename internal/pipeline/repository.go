package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// RunRepository records training runs.
type RunRepository interface {
	CreateRun(ctx context.Context, run *TrainingRun) error
	UpdateRun(ctx context.Context, run *TrainingRun) error
	GetRun(ctx context.Context, id string) (*TrainingRun, error)
	LatestRun(ctx context.Context) (*TrainingRun, error)
}

const trainingRunsSchema = `
	CREATE TABLE IF NOT EXISTS training_runs (
		id            UUID PRIMARY KEY,
		source        TEXT NOT NULL,
		status        TEXT NOT NULL,
		rows          INTEGER NOT NULL DEFAULT 0,
		metrics       JSONB,
		model_dir     TEXT NOT NULL DEFAULT '',
		started_at    TIMESTAMPTZ NOT NULL,
		completed_at  TIMESTAMPTZ,
		error_message TEXT NOT NULL DEFAULT ''
	)
`

// Repository handles database operations for training run tracking
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new training run repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the training_runs table if it does not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, trainingRunsSchema); err != nil {
		return fmt.Errorf("failed to create training_runs: %w", err)
	}
	return nil
}

// CreateRun creates a new training run record
func (r *Repository) CreateRun(ctx context.Context, run *TrainingRun) error {
	query := `
		INSERT INTO training_runs (
			id, source, status, rows, metrics, model_dir, started_at
		) VALUES (
			:id, :source, :status, :rows, :metrics, :model_dir, :started_at
		)
	`

	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("failed to create training run: %w", err)
	}
	return nil
}

// UpdateRun updates an existing training run
func (r *Repository) UpdateRun(ctx context.Context, run *TrainingRun) error {
	query := `
		UPDATE training_runs
		SET status = :status, rows = :rows, metrics = :metrics, model_dir = :model_dir,
		    completed_at = :completed_at, error_message = :error_message
		WHERE id = :id
	`

	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("failed to update training run: %w", err)
	}
	return nil
}

// GetRun retrieves a training run by ID
func (r *Repository) GetRun(ctx context.Context, id string) (*TrainingRun, error) {
	query := `
		SELECT id, source, status, rows, metrics, model_dir,
		       started_at, completed_at, error_message
		FROM training_runs
		WHERE id = $1
	`

	run := &TrainingRun{}
	err := r.db.GetContext(ctx, run, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return run, nil
}

// LatestRun retrieves the most recently started training run
func (r *Repository) LatestRun(ctx context.Context) (*TrainingRun, error) {
	query := `
		SELECT id, source, status, rows, metrics, model_dir,
		       started_at, completed_at, error_message
		FROM training_runs
		ORDER BY started_at DESC
		LIMIT 1
	`

	run := &TrainingRun{}
	err := r.db.GetContext(ctx, run, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return run, nil
}

type noopRepository struct{}

// NewNoopRepository returns a repository that records nothing.
func NewNoopRepository() RunRepository {
	return noopRepository{}
}

func (noopRepository) CreateRun(ctx context.Context, run *TrainingRun) error { return nil }

func (noopRepository) UpdateRun(ctx context.Context, run *TrainingRun) error { return nil }

func (noopRepository) GetRun(ctx context.Context, id string) (*TrainingRun, error) {
	return nil, nil
}

func (noopRepository) LatestRun(ctx context.Context) (*TrainingRun, error) { return nil, nil }

var _ RunRepository = (*Repository)(nil)
