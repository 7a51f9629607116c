// Package audit persists deploy run history to the deploy_runs table.
package audit

import (
	"context"

	"go.uber.org/zap"

	"zentoerp/deployctl/internal/audit/domain"
	auditrepo "zentoerp/deployctl/internal/audit/repository"
)

// Recorder writes a finished deploy run. Record is best-effort: failures are
// logged and do not affect the deploy outcome — history must never be the
// reason a deploy reports failure.
type Recorder interface {
	Record(ctx context.Context, run *domain.DeployRun)
}

// DBRecorder implements Recorder using the deploy run repository.
type DBRecorder struct {
	repo auditrepo.Repository
	log  *zap.Logger
}

// NewDBRecorder returns a Recorder that persists to repo.
func NewDBRecorder(repo auditrepo.Repository, log *zap.Logger) *DBRecorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &DBRecorder{repo: repo, log: log}
}

// Record writes one deploy run row. Best-effort: errors are logged and not returned.
func (r *DBRecorder) Record(ctx context.Context, run *domain.DeployRun) {
	if r == nil || r.repo == nil || run == nil {
		return
	}
	if err := r.repo.Create(ctx, run); err != nil {
		r.log.Warn("failed to record deploy run",
			zap.String("run_id", run.ID),
			zap.Error(err))
	}
}

// NopRecorder discards runs; used when the database is not yet migrated.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *domain.DeployRun) {}
