package deploy

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"

	"zentoerp/deployctl/internal/config"
	"zentoerp/deployctl/internal/diagnose"
	"zentoerp/deployctl/internal/telemetry"
)

type captureEmitter struct {
	events []*telemetry.DeployEvent
	err    error
}

func (c *captureEmitter) Emit(_ context.Context, e *telemetry.DeployEvent) error {
	c.events = append(c.events, e)
	return c.err
}

func testConfig() *config.Config {
	return &config.Config{
		DatabaseURL:    "postgres://127.0.0.1:1/app?sslmode=disable",
		BaseDomain:     "zentoerp.com",
		Env:            "development",
		SecretKey:      "a-real-secret",
		StaticRoot:     "staticfiles",
		DBWaitAttempts: 1,
		HealthAttempts: 1,
	}
}

func TestPlanFor(t *testing.T) {
	tests := []struct {
		status       diagnose.Status
		forceDirty   bool
		wantErr      bool
		wantMigrate  bool
		wantBaseline bool
	}{
		{status: diagnose.StatusEmpty, wantMigrate: true},
		{status: diagnose.StatusBehind, wantMigrate: true},
		{status: diagnose.StatusUnmigrated, wantMigrate: true, wantBaseline: true},
		{status: diagnose.StatusReady},
		{status: diagnose.StatusDirty, wantErr: true},
		{status: diagnose.StatusDirty, forceDirty: true, wantMigrate: true},
		{status: diagnose.StatusUnreachable, wantErr: true},
	}
	for _, tt := range tests {
		plan, err := planFor(tt.status, tt.forceDirty)
		if tt.wantErr {
			if err == nil {
				t.Errorf("planFor(%s, force=%v): want error", tt.status, tt.forceDirty)
			}
			continue
		}
		if err != nil {
			t.Errorf("planFor(%s, force=%v): %v", tt.status, tt.forceDirty, err)
			continue
		}
		if plan.migrate != tt.wantMigrate || plan.baseline != tt.wantBaseline {
			t.Errorf("planFor(%s, force=%v) = %+v, want migrate=%v baseline=%v",
				tt.status, tt.forceDirty, plan, tt.wantMigrate, tt.wantBaseline)
		}
	}
}

func TestSkipStep(t *testing.T) {
	if !skipStep(StepCollectStatic, Options{SkipStatic: true}) {
		t.Error("--skip-static should skip collect-static")
	}
	if !skipStep(StepHealth, Options{SkipHealth: true}) {
		t.Error("--skip-health should skip health")
	}
	if skipStep(StepMigrateShared, Options{SkipStatic: true, SkipHealth: true}) {
		t.Error("skip flags must not affect other steps")
	}

	only := Options{Only: []string{StepMigrateShared}}
	if skipStep(StepMigrateShared, only) {
		t.Error("--only should keep the named step")
	}
	if !skipStep(StepHealth, only) {
		t.Error("--only should skip unnamed steps")
	}
	if skipStep(StepWaitDB, only) {
		t.Error("wait-db must always run")
	}
}

func TestSkipStep_OnlyMigrateKeepsDiagnose(t *testing.T) {
	// The migration plan comes out of the diagnosis; running a migrate step
	// without it would silently do nothing.
	for _, migrateStep := range []string{StepMigrateShared, StepMigrateTenants} {
		if skipStep(StepDiagnose, Options{Only: []string{migrateStep}}) {
			t.Errorf("--only %s must keep diagnose", migrateStep)
		}
	}
	if !skipStep(StepDiagnose, Options{Only: []string{StepCollectStatic}}) {
		t.Error("--only collect-static has no use for diagnose")
	}
}

func TestMigrateSteps_RefuseWithoutPlan(t *testing.T) {
	o := NewOrchestrator(testConfig(), nil, afero.NewMemMapFs(), &captureEmitter{})
	ctx := context.Background()

	outcome, detail := o.stepMigrateShared(ctx, &runState{})
	if outcome != OutcomeFatal {
		t.Errorf("migrate-shared without a plan = %s (%s), want fatal", outcome, detail)
	}
	outcome, detail = o.stepMigrateTenants(ctx, &runState{})
	if outcome != OutcomeFatal {
		t.Errorf("migrate-tenants without a plan = %s (%s), want fatal", outcome, detail)
	}

	// A plan that says "nothing to do" is still a plan.
	outcome, detail = o.stepMigrateShared(ctx, &runState{planned: true})
	if outcome != OutcomeOK {
		t.Errorf("migrate-shared with an empty plan = %s (%s), want ok", outcome, detail)
	}
}

func TestExecute_FatalStopsRun(t *testing.T) {
	emitter := &captureEmitter{}
	o := NewOrchestrator(testConfig(), nil, afero.NewMemMapFs(), emitter)

	var ranThird bool
	steps := []step{
		{"first", func(context.Context) (Outcome, string) { return OutcomeOK, "" }},
		{"second", func(context.Context) (Outcome, string) { return OutcomeFatal, "boom" }},
		{"third", func(context.Context) (Outcome, string) { ranThird = true; return OutcomeOK, "" }},
	}
	res := &Result{RunID: "run-1"}
	o.execute(context.Background(), res, Options{}, steps)

	if ranThird {
		t.Error("steps after a fatal must not run")
	}
	if len(res.Steps) != 2 {
		t.Fatalf("steps recorded = %d, want 2", len(res.Steps))
	}
	if !res.Failed() {
		t.Error("run with a fatal step should fail")
	}
	if len(emitter.events) != 2 {
		t.Errorf("events emitted = %d, want 2", len(emitter.events))
	}
	if emitter.events[1].Outcome != string(OutcomeFatal) || emitter.events[1].Detail != "boom" {
		t.Errorf("fatal event = %+v", emitter.events[1])
	}
}

func TestExecute_WarningsAccumulate(t *testing.T) {
	o := NewOrchestrator(testConfig(), nil, afero.NewMemMapFs(), &captureEmitter{})

	steps := []step{
		{"a", func(context.Context) (Outcome, string) { return OutcomeWarning, "w1" }},
		{"b", func(context.Context) (Outcome, string) { return OutcomeWarning, "w2" }},
		{"c", func(context.Context) (Outcome, string) { return OutcomeOK, "" }},
	}
	res := &Result{RunID: "run-2"}
	o.execute(context.Background(), res, Options{}, steps)

	if res.Failed() {
		t.Error("warnings alone must not fail the run")
	}
	if got := len(res.Warnings()); got != 2 {
		t.Errorf("warnings = %d, want 2", got)
	}
	if res.Status() != "succeeded" {
		t.Errorf("status = %s", res.Status())
	}
}

func TestExecute_SkippedStepsRecorded(t *testing.T) {
	emitter := &captureEmitter{}
	o := NewOrchestrator(testConfig(), nil, afero.NewMemMapFs(), emitter)

	var ran bool
	steps := []step{
		{StepCollectStatic, func(context.Context) (Outcome, string) { ran = true; return OutcomeOK, "" }},
	}
	res := &Result{RunID: "run-3"}
	o.execute(context.Background(), res, Options{SkipStatic: true}, steps)

	if ran {
		t.Error("skipped step must not execute")
	}
	if len(res.Steps) != 1 || res.Steps[0].Outcome != OutcomeSkipped {
		t.Errorf("steps = %+v", res.Steps)
	}
	if len(emitter.events) != 1 || emitter.events[0].Outcome != string(OutcomeSkipped) {
		t.Errorf("skipped steps should still emit events: %+v", emitter.events)
	}
}

func TestExecute_EmitterFailureIgnored(t *testing.T) {
	o := NewOrchestrator(testConfig(), nil, afero.NewMemMapFs(), &captureEmitter{err: errors.New("kafka down")})

	steps := []step{
		{"a", func(context.Context) (Outcome, string) { return OutcomeOK, "" }},
	}
	res := &Result{RunID: "run-4"}
	o.execute(context.Background(), res, Options{}, steps)

	if res.Failed() {
		t.Error("emitter failures must not affect the run outcome")
	}
}

func TestRun_StopsAtUnreachableDatabase(t *testing.T) {
	// Port 1 refuses immediately; with a single wait attempt the run fails
	// fast at wait-db without touching later steps.
	o := NewOrchestrator(testConfig(), nil, afero.NewMemMapFs(), &captureEmitter{})

	res := o.Run(context.Background(), Options{})
	if !res.Failed() {
		t.Fatal("run against an unreachable database should fail")
	}
	last := res.Steps[len(res.Steps)-1]
	if last.Name != StepWaitDB || last.Outcome != OutcomeFatal {
		t.Errorf("last step = %+v, want fatal wait-db", last)
	}
	for _, s := range res.Steps[:len(res.Steps)-1] {
		if s.Outcome == OutcomeFatal {
			t.Errorf("unexpected earlier fatal: %+v", s)
		}
	}
}

func TestResultFailed(t *testing.T) {
	ok := &Result{Steps: []StepResult{{Outcome: OutcomeOK}, {Outcome: OutcomeSkipped}}}
	if ok.Failed() {
		t.Error("ok+skipped run should not fail")
	}
	bad := &Result{Steps: []StepResult{{Outcome: OutcomeOK}, {Outcome: OutcomeFatal}}}
	if !bad.Failed() || bad.Status() != "failed" {
		t.Error("fatal step should fail the run")
	}
}
