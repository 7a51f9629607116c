// Package deploy orchestrates a deployment: readiness checks, database
// wait, diagnosis, phased migrations, static assets, cache probe, tenant
// domains and the final health probe. Each step reports ok, warning, fatal or
// skipped; warnings accumulate, the first fatal stops the run.
package deploy

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"zentoerp/deployctl/internal/audit"
	auditdomain "zentoerp/deployctl/internal/audit/domain"
	auditrepo "zentoerp/deployctl/internal/audit/repository"
	"zentoerp/deployctl/internal/cache"
	"zentoerp/deployctl/internal/config"
	"zentoerp/deployctl/internal/db"
	dbmigrate "zentoerp/deployctl/internal/db/migrate"
	"zentoerp/deployctl/internal/diagnose"
	"zentoerp/deployctl/internal/health"
	"zentoerp/deployctl/internal/staticassets"
	"zentoerp/deployctl/internal/telemetry"
	"zentoerp/deployctl/internal/tenant"
	tenantdomain "zentoerp/deployctl/internal/tenant/domain"
	tenantrepo "zentoerp/deployctl/internal/tenant/repository"
	"zentoerp/deployctl/internal/verify"
)

// Outcome classifies one step's result.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeWarning Outcome = "warning"
	OutcomeFatal   Outcome = "fatal"
	OutcomeSkipped Outcome = "skipped"
)

// Step names, in run order.
const (
	StepVerifyConfig   = "verify-config"
	StepWaitDB         = "wait-db"
	StepDiagnose       = "diagnose"
	StepMigrateShared  = "migrate-shared"
	StepMigrateTenants = "migrate-tenants"
	StepCollectStatic  = "collect-static"
	StepCheckCache     = "check-cache"
	StepEnsureDomains  = "ensure-domains"
	StepHealth         = "health"
)

// StepNames lists all step names in run order, for flag validation.
func StepNames() []string {
	return []string{
		StepVerifyConfig, StepWaitDB, StepDiagnose, StepMigrateShared,
		StepMigrateTenants, StepCollectStatic, StepCheckCache,
		StepEnsureDomains, StepHealth,
	}
}

// Options tune a single deploy run.
type Options struct {
	SkipStatic  bool
	SkipHealth  bool
	ForceDirty  bool     // migrate even when a schema's history is dirty
	Only        []string // run only these steps (wait-db always runs)
	TriggeredBy string
}

// StepResult is the recorded outcome of one step.
type StepResult struct {
	Name     string
	Outcome  Outcome
	Detail   string
	Duration time.Duration
}

// Result is the outcome of a whole deploy run.
type Result struct {
	RunID      string
	Steps      []StepResult
	StartedAt  time.Time
	FinishedAt time.Time
}

// Failed reports whether any step ended fatal. Warnings never fail a run.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Outcome == OutcomeFatal {
			return true
		}
	}
	return false
}

// Warnings returns the steps that ended with a warning.
func (r *Result) Warnings() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.Outcome == OutcomeWarning {
			out = append(out, s)
		}
	}
	return out
}

// Status maps the run outcome to the audit status.
func (r *Result) Status() auditdomain.RunStatus {
	if r.Failed() {
		return auditdomain.RunStatusFailed
	}
	return auditdomain.RunStatusSucceeded
}

// Orchestrator runs deploys. Safe to reuse across runs.
type Orchestrator struct {
	cfg     *config.Config
	log     *zap.Logger
	fs      afero.Fs
	emitter telemetry.Emitter
	tracer  trace.Tracer
	counter metric.Int64Counter
}

// NewOrchestrator wires an orchestrator. fs is the filesystem static
// collection runs against (afero.NewOsFs() outside tests); emitter may be nil.
func NewOrchestrator(cfg *config.Config, log *zap.Logger, fs afero.Fs, emitter telemetry.Emitter) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if emitter == nil {
		emitter = telemetry.NopEmitter{}
	}
	meter := otel.Meter("zentoerp/deployctl/internal/deploy")
	counter, err := meter.Int64Counter("deploy.steps",
		metric.WithDescription("Deploy step outcomes by step and outcome"))
	if err != nil {
		log.Warn("deploy step counter unavailable", zap.Error(err))
	}
	return &Orchestrator{
		cfg:     cfg,
		log:     log,
		fs:      fs,
		emitter: emitter,
		tracer:  otel.Tracer("zentoerp/deployctl/internal/deploy"),
		counter: counter,
	}
}

// step is one unit of the run; fn returns the outcome and a detail line.
type step struct {
	name string
	fn   func(ctx context.Context) (Outcome, string)
}

// runState carries per-run wiring that only exists once the database is up.
type runState struct {
	conn     *sql.DB
	repo     tenantrepo.Repository
	tenants  *tenant.Service
	recorder audit.Recorder
	plan     migrationPlan
	planned  bool // diagnose ran and produced plan
}

// migrationPlan is derived from the diagnose step and drives both migrate steps.
type migrationPlan struct {
	migrate  bool
	baseline bool // record history at latest instead of running SQL first
}

// planFor maps a diagnosed status to the migration plan.
// dirty blocks the run unless forceDirty; ready skips both migrate steps.
func planFor(status diagnose.Status, forceDirty bool) (migrationPlan, error) {
	switch status {
	case diagnose.StatusEmpty, diagnose.StatusBehind:
		return migrationPlan{migrate: true}, nil
	case diagnose.StatusUnmigrated:
		return migrationPlan{migrate: true, baseline: true}, nil
	case diagnose.StatusReady:
		return migrationPlan{}, nil
	case diagnose.StatusDirty:
		if forceDirty {
			return migrationPlan{migrate: true}, nil
		}
		return migrationPlan{}, fmt.Errorf("migration history is dirty; resolve manually or rerun with --force-dirty")
	case diagnose.StatusUnreachable:
		return migrationPlan{}, fmt.Errorf("database became unreachable")
	default:
		return migrationPlan{}, fmt.Errorf("unknown database status %q", status)
	}
}

// skipStep decides whether a step runs under the given options.
// wait-db always runs: nearly every later step needs the connection.
// diagnose is kept whenever --only names a migrate step, because the
// migration plan comes out of the diagnosis.
func skipStep(name string, opts Options) bool {
	if opts.SkipStatic && name == StepCollectStatic {
		return true
	}
	if opts.SkipHealth && name == StepHealth {
		return true
	}
	if len(opts.Only) == 0 {
		return false
	}
	if name == StepWaitDB {
		return false
	}
	if name == StepDiagnose && onlyNamesMigration(opts.Only) {
		return false
	}
	for _, only := range opts.Only {
		if only == name {
			return false
		}
	}
	return true
}

func onlyNamesMigration(only []string) bool {
	for _, name := range only {
		if name == StepMigrateShared || name == StepMigrateTenants {
			return true
		}
	}
	return false
}

// Run executes a full deploy and returns its result. The run is recorded in
// deploy_runs when the database came up, and every step is emitted as a
// telemetry event. Step failures are reported through Result.Failed.
func (o *Orchestrator) Run(ctx context.Context, opts Options) *Result {
	res := &Result{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	st := &runState{recorder: audit.NopRecorder{}}
	defer func() {
		if st.conn != nil {
			_ = st.conn.Close()
		}
	}()

	o.log.Info("deploy started",
		zap.String("run_id", res.RunID),
		zap.String("environment", o.cfg.Env))

	o.execute(ctx, res, opts, o.buildSteps(opts, st))

	res.FinishedAt = time.Now().UTC()
	o.record(ctx, res, opts, st)

	o.log.Info("deploy finished",
		zap.String("run_id", res.RunID),
		zap.String("status", string(res.Status())),
		zap.Int("warnings", len(res.Warnings())),
		zap.Duration("took", res.FinishedAt.Sub(res.StartedAt)))
	return res
}

func (o *Orchestrator) buildSteps(opts Options, st *runState) []step {
	return []step{
		{StepVerifyConfig, o.stepVerifyConfig},
		{StepWaitDB, func(ctx context.Context) (Outcome, string) { return o.stepWaitDB(ctx, st) }},
		{StepDiagnose, func(ctx context.Context) (Outcome, string) { return o.stepDiagnose(ctx, st, opts) }},
		{StepMigrateShared, func(ctx context.Context) (Outcome, string) { return o.stepMigrateShared(ctx, st) }},
		{StepMigrateTenants, func(ctx context.Context) (Outcome, string) { return o.stepMigrateTenants(ctx, st) }},
		{StepCollectStatic, o.stepCollectStatic},
		{StepCheckCache, o.stepCheckCache},
		{StepEnsureDomains, func(ctx context.Context) (Outcome, string) { return o.stepEnsureDomains(ctx, st) }},
		{StepHealth, o.stepHealth},
	}
}

// execute runs the steps in order, stopping at the first fatal outcome.
func (o *Orchestrator) execute(ctx context.Context, res *Result, opts Options, steps []step) {
	for _, s := range steps {
		if skipStep(s.name, opts) {
			o.finishStep(ctx, res, StepResult{Name: s.name, Outcome: OutcomeSkipped, Detail: "skipped by flag"})
			continue
		}

		stepCtx, span := o.tracer.Start(ctx, "deploy."+s.name)
		start := time.Now()
		outcome, detail := s.fn(stepCtx)
		sr := StepResult{Name: s.name, Outcome: outcome, Detail: detail, Duration: time.Since(start)}
		span.SetAttributes(
			attribute.String("deploy.step", s.name),
			attribute.String("deploy.outcome", string(outcome)))
		if outcome == OutcomeFatal {
			span.SetStatus(codes.Error, detail)
		}
		span.End()

		o.finishStep(ctx, res, sr)
		if outcome == OutcomeFatal {
			return
		}
	}
}

// finishStep records, counts, logs and emits one step result.
func (o *Orchestrator) finishStep(ctx context.Context, res *Result, sr StepResult) {
	res.Steps = append(res.Steps, sr)

	if o.counter != nil {
		o.counter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("step", sr.Name),
			attribute.String("outcome", string(sr.Outcome))))
	}

	fields := []zap.Field{
		zap.String("run_id", res.RunID),
		zap.String("step", sr.Name),
		zap.Duration("took", sr.Duration),
	}
	if sr.Detail != "" {
		fields = append(fields, zap.String("detail", sr.Detail))
	}
	switch sr.Outcome {
	case OutcomeWarning:
		o.log.Warn("step completed with warning", fields...)
	case OutcomeFatal:
		o.log.Error("step failed", fields...)
	default:
		o.log.Info("step completed", fields...)
	}

	event := &telemetry.DeployEvent{
		RunID:       res.RunID,
		Step:        sr.Name,
		Outcome:     string(sr.Outcome),
		Detail:      sr.Detail,
		DurationMS:  sr.Duration.Milliseconds(),
		Environment: o.cfg.Env,
		Source:      "deployctl",
		CreatedAt:   time.Now().UTC(),
	}
	if err := o.emitter.Emit(ctx, event); err != nil {
		o.log.Warn("emit deploy event", zap.String("step", sr.Name), zap.Error(err))
	}
}

// record persists the run to deploy_runs. Best-effort via the recorder.
func (o *Orchestrator) record(ctx context.Context, res *Result, opts Options, st *runState) {
	steps := make([]auditdomain.StepRecord, 0, len(res.Steps))
	for _, s := range res.Steps {
		steps = append(steps, auditdomain.StepRecord{
			Name:       s.Name,
			Outcome:    string(s.Outcome),
			Detail:     s.Detail,
			DurationMS: s.Duration.Milliseconds(),
		})
	}
	finished := res.FinishedAt
	st.recorder.Record(ctx, &auditdomain.DeployRun{
		ID:          res.RunID,
		Environment: o.cfg.Env,
		TriggeredBy: opts.TriggeredBy,
		Status:      res.Status(),
		Steps:       steps,
		StartedAt:   res.StartedAt,
		FinishedAt:  &finished,
	})
}

func (o *Orchestrator) stepVerifyConfig(ctx context.Context) (Outcome, string) {
	r := verify.NewVerifier(o.cfg, nil, nil, nil, o.fs).Preflight()
	if r.Fatal() {
		return OutcomeFatal, strings.Join(r.Errors, "; ")
	}
	if len(r.Warnings) > 0 {
		return OutcomeWarning, strings.Join(r.Warnings, "; ")
	}
	return OutcomeOK, "configuration looks sane"
}

// stepWaitDB retries the connection with exponential backoff, then wires the
// database-backed pieces of the run: repositories, tenant service, recorder.
func (o *Orchestrator) stepWaitDB(ctx context.Context, st *runState) (Outcome, string) {
	attempts := o.cfg.DBWaitAttempts
	if attempts < 1 {
		attempts = 1
	}
	ebo := backoff.NewExponentialBackOff()
	ebo.InitialInterval = o.cfg.DBWaitBackoff()
	bo := backoff.WithContext(backoff.WithMaxRetries(ebo, uint64(attempts-1)), ctx)

	attempt := 0
	op := func() error {
		attempt++
		conn, err := db.Open(o.cfg.DatabaseURL)
		if err != nil {
			o.log.Debug("database not ready", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		st.conn = conn
		return nil
	}
	if err := backoff.Retry(op, bo); err != nil {
		return OutcomeFatal, fmt.Sprintf("database unreachable after %d attempts: %v", attempt, err)
	}

	st.repo = tenantrepo.NewPostgresRepository(st.conn)
	st.tenants = tenant.NewService(st.conn, st.repo, o.cfg.DatabaseURL, nil, o.log)
	st.recorder = audit.NewDBRecorder(auditrepo.NewPostgresRepository(st.conn), o.log)
	return OutcomeOK, fmt.Sprintf("connected after %d attempt(s)", attempt)
}

func (o *Orchestrator) stepDiagnose(ctx context.Context, st *runState, opts Options) (Outcome, string) {
	if st.conn == nil {
		return OutcomeFatal, "database connection is not established"
	}
	facts, err := diagnose.Collect(ctx, st.conn)
	if err != nil {
		return OutcomeFatal, fmt.Sprintf("diagnosis failed: %v", err)
	}
	report := diagnose.Classify(facts)

	plan, err := planFor(report.Status, opts.ForceDirty)
	if err != nil {
		detail := err.Error()
		if len(report.DirtySchemas) > 0 {
			detail = fmt.Sprintf("%s (dirty: %s)", detail, strings.Join(report.DirtySchemas, ", "))
		}
		return OutcomeFatal, detail
	}
	st.plan = plan
	st.planned = true

	detail := fmt.Sprintf("status=%s shared=%d/%d pending-tenants=%d",
		report.Status, report.SharedVersion, report.SharedLatest, len(report.PendingTenants))
	if report.Status == diagnose.StatusDirty && opts.ForceDirty {
		return OutcomeWarning, detail + " (forcing past dirty history)"
	}
	return OutcomeOK, detail
}

func (o *Orchestrator) stepMigrateShared(ctx context.Context, st *runState) (Outcome, string) {
	if !st.planned {
		return OutcomeFatal, "no migration plan: diagnose did not run"
	}
	if !st.plan.migrate {
		return OutcomeOK, "shared schema already at latest"
	}
	if st.plan.baseline {
		latest, err := dbmigrate.LatestVersion(dbmigrate.PhaseShared)
		if err != nil {
			return OutcomeFatal, fmt.Sprintf("resolve latest shared version: %v", err)
		}
		if err := dbmigrate.Baseline(o.cfg.DatabaseURL, dbmigrate.PhaseShared, "", latest); err != nil {
			return OutcomeFatal, fmt.Sprintf("baseline shared schema: %v", err)
		}
		return OutcomeOK, fmt.Sprintf("baselined shared schema at version %d", latest)
	}
	if err := dbmigrate.RunShared(o.cfg.DatabaseURL, "up"); err != nil {
		return OutcomeFatal, fmt.Sprintf("shared migrations: %v", err)
	}
	return OutcomeOK, "shared migrations applied"
}

func (o *Orchestrator) stepMigrateTenants(ctx context.Context, st *runState) (Outcome, string) {
	if !st.planned {
		return OutcomeFatal, "no migration plan: diagnose did not run"
	}
	if !st.plan.migrate {
		return OutcomeOK, "tenant schemas already at latest"
	}
	if st.repo == nil {
		return OutcomeFatal, "tenant repository unavailable"
	}
	tenants, err := st.repo.List(ctx)
	if err != nil {
		return OutcomeFatal, fmt.Sprintf("list tenants: %v", err)
	}

	var latest uint
	if st.plan.baseline {
		if latest, err = dbmigrate.LatestVersion(dbmigrate.PhaseTenant); err != nil {
			return OutcomeFatal, fmt.Sprintf("resolve latest tenant version: %v", err)
		}
	}

	migrated := 0
	for _, t := range tenants {
		if t.SchemaName == tenantdomain.PublicSchema {
			continue
		}
		if st.plan.baseline {
			err = dbmigrate.Baseline(o.cfg.DatabaseURL, dbmigrate.PhaseTenant, t.SchemaName, latest)
		} else {
			err = dbmigrate.RunTenant(o.cfg.DatabaseURL, t.SchemaName, "up")
		}
		if err != nil {
			return OutcomeFatal, fmt.Sprintf("tenant %s: %v", t.SchemaName, err)
		}
		migrated++
	}
	if st.plan.baseline {
		return OutcomeOK, fmt.Sprintf("baselined %d tenant schema(s) at version %d", migrated, latest)
	}
	return OutcomeOK, fmt.Sprintf("migrated %d tenant schema(s)", migrated)
}

func (o *Orchestrator) stepCollectStatic(ctx context.Context) (Outcome, string) {
	collector := staticassets.NewCollector(o.fs, o.cfg.StaticSourceList(), o.cfg.StaticRoot, o.log)
	res, err := collector.Collect(ctx)
	if err != nil {
		return OutcomeFatal, fmt.Sprintf("collect static assets: %v", err)
	}
	return OutcomeOK, fmt.Sprintf("copied %d file(s), %d shadowed", res.Copied, res.Skipped)
}

// stepCheckCache never fails the deploy: the app degrades without its cache
// but stays correct, so a broken Redis is an operator warning.
func (o *Orchestrator) stepCheckCache(ctx context.Context) (Outcome, string) {
	if err := cache.NewChecker(o.cfg.RedisURL).Check(ctx); err != nil {
		return OutcomeWarning, fmt.Sprintf("cache probe failed: %v", err)
	}
	return OutcomeOK, "cache roundtrip ok"
}

func (o *Orchestrator) stepEnsureDomains(ctx context.Context, st *runState) (Outcome, string) {
	if st.tenants == nil {
		return OutcomeFatal, "tenant service unavailable"
	}
	created, err := st.tenants.EnsureDomains(ctx, o.cfg.BaseDomain, o.cfg.DevPort)
	if err != nil {
		return OutcomeWarning, fmt.Sprintf("ensure domains (created %d): %v", created, err)
	}
	return OutcomeOK, fmt.Sprintf("created %d domain(s)", created)
}

func (o *Orchestrator) stepHealth(ctx context.Context) (Outcome, string) {
	resp, err := health.NewProber(o.cfg.HealthURL, o.cfg.HealthAttempts, o.log).Probe(ctx)
	if err != nil {
		return OutcomeFatal, err.Error()
	}
	if resp != nil && resp.Environment != "" {
		return OutcomeOK, fmt.Sprintf("healthy (environment %s)", resp.Environment)
	}
	return OutcomeOK, "healthy"
}
