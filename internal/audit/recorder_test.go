package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"zentoerp/deployctl/internal/audit/domain"
)

type fakeRunRepo struct {
	created []*domain.DeployRun
	err     error
}

func (f *fakeRunRepo) Create(_ context.Context, r *domain.DeployRun) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, r)
	return nil
}

func (f *fakeRunRepo) ListRecent(context.Context, int32) ([]*domain.DeployRun, error) {
	return f.created, nil
}

func TestDBRecorder_Record(t *testing.T) {
	repo := &fakeRunRepo{}
	rec := NewDBRecorder(repo, nil)

	finished := time.Now().UTC()
	rec.Record(context.Background(), &domain.DeployRun{
		ID:          "run-1",
		Environment: "production",
		Status:      domain.RunStatusSucceeded,
		Steps: []domain.StepRecord{
			{Name: "migrate-shared", Outcome: "ok", DurationMS: 120},
		},
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: &finished,
	})

	if len(repo.created) != 1 {
		t.Fatalf("created = %d runs, want 1", len(repo.created))
	}
	if repo.created[0].ID != "run-1" {
		t.Errorf("ID = %q", repo.created[0].ID)
	}
}

func TestDBRecorder_BestEffort(t *testing.T) {
	rec := NewDBRecorder(&fakeRunRepo{err: errors.New("db down")}, nil)
	// Must not panic or propagate the error.
	rec.Record(context.Background(), &domain.DeployRun{ID: "run-2"})
}

func TestDBRecorder_NilSafety(t *testing.T) {
	var rec *DBRecorder
	rec.Record(context.Background(), &domain.DeployRun{ID: "x"})

	NewDBRecorder(nil, nil).Record(context.Background(), nil)
	NopRecorder{}.Record(context.Background(), &domain.DeployRun{ID: "y"})
}
