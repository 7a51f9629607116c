package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"zentoerp/deployctl/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a deploy run repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the deploy run. The run must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, run *domain.DeployRun) error {
	steps, err := json.Marshal(run.Steps)
	if err != nil {
		return err
	}
	var finished sql.NullTime
	if run.FinishedAt != nil {
		finished = sql.NullTime{Time: *run.FinishedAt, Valid: true}
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO deploy_runs (id, environment, triggered_by, status, steps, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.Environment, run.TriggeredBy, string(run.Status), steps, run.StartedAt, finished)
	return err
}

// ListRecent returns the most recent deploy runs, newest first.
func (r *PostgresRepository) ListRecent(ctx context.Context, limit int32) ([]*domain.DeployRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, environment, triggered_by, status, steps, started_at, finished_at
		FROM deploy_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.DeployRun
	for rows.Next() {
		var run domain.DeployRun
		var status string
		var steps []byte
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.Environment, &run.TriggeredBy, &status,
			&steps, &run.StartedAt, &finished); err != nil {
			return nil, err
		}
		run.Status = domain.RunStatus(status)
		if len(steps) > 0 {
			if err := json.Unmarshal(steps, &run.Steps); err != nil {
				return nil, err
			}
		}
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		out = append(out, &run)
	}
	return out, rows.Err()
}
