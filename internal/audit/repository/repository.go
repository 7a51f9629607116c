package repository

import (
	"context"

	"zentoerp/deployctl/internal/audit/domain"
)

// Repository defines persistence for deploy run history.
type Repository interface {
	Create(ctx context.Context, r *domain.DeployRun) error
	// ListRecent returns the most recent runs, newest first.
	ListRecent(ctx context.Context, limit int32) ([]*domain.DeployRun, error)
}
