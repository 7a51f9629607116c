package verify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"zentoerp/deployctl/internal/config"
	"zentoerp/deployctl/internal/staticassets"
	"zentoerp/deployctl/internal/tenant/domain"
)

type stubRepo struct {
	tenants  []*domain.Tenant
	primary  map[string]*domain.Domain
	listErr  error
	bySchema map[string]*domain.Tenant
}

func (s *stubRepo) GetBySchema(_ context.Context, schema string) (*domain.Tenant, error) {
	return s.bySchema[schema], nil
}
func (s *stubRepo) GetByEmail(context.Context, string) (*domain.Tenant, error) { return nil, nil }
func (s *stubRepo) List(context.Context) ([]*domain.Tenant, error) {
	return s.tenants, s.listErr
}
func (s *stubRepo) Create(context.Context, *domain.Tenant) error { return nil }
func (s *stubRepo) Delete(context.Context, string) error         { return nil }
func (s *stubRepo) ListDomains(context.Context, string) ([]*domain.Domain, error) {
	return nil, nil
}
func (s *stubRepo) ListAllDomains(context.Context) ([]*domain.Domain, error) { return nil, nil }
func (s *stubRepo) PrimaryDomain(_ context.Context, tenantID string) (*domain.Domain, error) {
	return s.primary[tenantID], nil
}
func (s *stubRepo) DomainExists(context.Context, string) (bool, error)  { return false, nil }
func (s *stubRepo) CreateDomain(context.Context, *domain.Domain) error  { return nil }
func (s *stubRepo) SetPrimaryDomain(context.Context, string, string) error {
	return nil
}

type stubCache struct{ err error }

func (s stubCache) Check(context.Context) error { return s.err }

func baseConfig() *config.Config {
	return &config.Config{
		DatabaseURL:  "postgres://app@db/app?sslmode=require",
		BaseDomain:   "zentoerp.com",
		Env:          "development",
		SecretKey:    "a-real-secret",
		AllowedHosts: "zentoerp.com",
		StaticRoot:   "staticfiles",
	}
}

func healthyRepo() *stubRepo {
	public := &domain.Tenant{ID: "t-public", SchemaName: domain.PublicSchema}
	acme := &domain.Tenant{ID: "t-acme", SchemaName: "acme"}
	return &stubRepo{
		tenants:  []*domain.Tenant{public, acme},
		bySchema: map[string]*domain.Tenant{domain.PublicSchema: public},
		primary: map[string]*domain.Domain{
			"t-acme": {ID: "d1", TenantID: "t-acme", Hostname: "acme.zentoerp.com", IsPrimary: true},
		},
	}
}

func staticFs(t *testing.T, root string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, root+"/"+staticassets.ManifestName, []byte(`{"paths":{}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	return fs
}

func hasFinding(findings []string, substr string) bool {
	for _, f := range findings {
		if strings.Contains(f, substr) {
			return true
		}
	}
	return false
}

func TestRun_DatabaseErrors(t *testing.T) {
	cfg := baseConfig()
	v := NewVerifier(cfg, nil, healthyRepo(), stubCache{}, staticFs(t, cfg.StaticRoot))
	r := v.Run(context.Background())

	if !r.Fatal() {
		t.Fatal("nil db should be fatal")
	}
	if !hasFinding(r.Errors, "database: not connected") {
		t.Errorf("errors = %v", r.Errors)
	}
}

func TestRun_ProductionConfigChecks(t *testing.T) {
	cfg := baseConfig()
	cfg.Env = "production"
	cfg.SecretKey = config.InsecureSecretKeyPrefix + "-abc"
	cfg.AllowedHosts = "*"
	cfg.DatabaseURL = "postgres://app@db/app" // no sslmode

	v := NewVerifier(cfg, nil, healthyRepo(), stubCache{}, staticFs(t, cfg.StaticRoot))
	r := v.Run(context.Background())

	if !hasFinding(r.Errors, "SECRET_KEY is the insecure development default") {
		t.Errorf("insecure secret should be an error in production: %v", r.Errors)
	}
	if !hasFinding(r.Errors, "ALLOWED_HOSTS contains a wildcard") {
		t.Errorf("wildcard hosts should be an error in production: %v", r.Errors)
	}
	if !hasFinding(r.Warnings, "no sslmode") {
		t.Errorf("missing sslmode should warn in production: %v", r.Warnings)
	}
}

func TestRun_DevelopmentDowngradesToWarnings(t *testing.T) {
	cfg := baseConfig()
	cfg.SecretKey = config.InsecureSecretKeyPrefix + "-abc"

	v := NewVerifier(cfg, nil, healthyRepo(), stubCache{err: errors.New("dial refused")}, staticFs(t, cfg.StaticRoot))
	r := v.Run(context.Background())

	if !hasFinding(r.Warnings, "SECRET_KEY is the insecure development default") {
		t.Errorf("insecure secret should only warn outside production: %v", r.Warnings)
	}
	if !hasFinding(r.Warnings, "cache: ") {
		t.Errorf("cache failure should only warn outside production: %v", r.Warnings)
	}
	if hasFinding(r.Errors, "cache") {
		t.Errorf("cache failure must not be fatal outside production: %v", r.Errors)
	}
}

func TestRun_CacheFatalInProduction(t *testing.T) {
	cfg := baseConfig()
	cfg.Env = "production"
	v := NewVerifier(cfg, nil, healthyRepo(), stubCache{err: errors.New("dial refused")}, staticFs(t, cfg.StaticRoot))
	r := v.Run(context.Background())

	if !hasFinding(r.Errors, "cache: ") {
		t.Errorf("cache failure should be fatal in production: %v", r.Errors)
	}
}

func TestRun_StaticMissingWarns(t *testing.T) {
	cfg := baseConfig()
	v := NewVerifier(cfg, nil, healthyRepo(), stubCache{}, afero.NewMemMapFs())
	r := v.Run(context.Background())

	if !hasFinding(r.Warnings, "run collect-static") {
		t.Errorf("missing static root should point at collect-static: %v", r.Warnings)
	}
}

func TestRun_TenantChecks(t *testing.T) {
	cfg := baseConfig()
	repo := healthyRepo()
	repo.bySchema = map[string]*domain.Tenant{} // public tenant missing
	delete(repo.primary, "t-acme")

	v := NewVerifier(cfg, nil, repo, stubCache{}, staticFs(t, cfg.StaticRoot))
	r := v.Run(context.Background())

	if !hasFinding(r.Errors, "public tenant row is missing") {
		t.Errorf("errors = %v", r.Errors)
	}
	if !hasFinding(r.Warnings, "acme has no primary domain") {
		t.Errorf("warnings = %v", r.Warnings)
	}
}

func TestPreflight_SkipsInfrastructure(t *testing.T) {
	cfg := baseConfig()
	// nil db, nil repo, nil cache: Preflight must not consult any of them.
	v := NewVerifier(cfg, nil, nil, nil, staticFs(t, cfg.StaticRoot))
	r := v.Preflight()

	if r.Fatal() {
		t.Errorf("preflight on a sane config should pass, errors = %v", r.Errors)
	}
	if hasFinding(r.Errors, "database") || hasFinding(r.Warnings, "cache") {
		t.Errorf("preflight must not run infrastructure checks: %v / %v", r.Errors, r.Warnings)
	}
}

func TestReport_Summary(t *testing.T) {
	r := &Report{Errors: []string{"a"}, Warnings: []string{"b", "c"}}
	if got := r.Summary(); got != "1 error(s), 2 warning(s)" {
		t.Errorf("Summary() = %q", got)
	}
	if !r.Fatal() {
		t.Error("report with errors should be fatal")
	}
	if (&Report{Warnings: []string{"w"}}).Fatal() {
		t.Error("warnings alone must not be fatal")
	}
}
