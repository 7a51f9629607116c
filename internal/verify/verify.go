// Package verify runs production readiness checks before a deploy is allowed
// to proceed. Checks classify findings as errors (block the deploy) or
// warnings (logged, deploy continues).
package verify

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/afero"

	"zentoerp/deployctl/internal/config"
	"zentoerp/deployctl/internal/staticassets"
	"zentoerp/deployctl/internal/tenant/domain"
	"zentoerp/deployctl/internal/tenant/repository"
)

// CacheChecker probes the application cache; satisfied by cache.Checker.
type CacheChecker interface {
	Check(ctx context.Context) error
}

// Report collects readiness findings. A deploy may proceed with warnings but
// not with errors.
type Report struct {
	Errors   []string
	Warnings []string
}

// Fatal reports whether any check failed hard.
func (r *Report) Fatal() bool { return len(r.Errors) > 0 }

// Summary renders a one-line count for logs.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d error(s), %d warning(s)", len(r.Errors), len(r.Warnings))
}

func (r *Report) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Report) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Verifier runs the readiness checks against live infrastructure.
// db and repo may be nil when the database is unreachable; the database and
// tenant checks then report errors instead of panicking.
type Verifier struct {
	cfg   *config.Config
	db    *sql.DB
	repo  repository.Repository
	cache CacheChecker
	fs    afero.Fs
}

// NewVerifier wires a Verifier. fs is the filesystem static checks run
// against (afero.NewOsFs() outside tests).
func NewVerifier(cfg *config.Config, db *sql.DB, repo repository.Repository, cache CacheChecker, fs afero.Fs) *Verifier {
	return &Verifier{cfg: cfg, db: db, repo: repo, cache: cache, fs: fs}
}

// Preflight runs only the checks that need no live infrastructure: config
// and static assets. Used as the first deploy step, before the database is up.
func (v *Verifier) Preflight() *Report {
	r := &Report{}
	v.checkConfig(r)
	v.checkStatic(r)
	return r
}

// Run executes all checks and returns the combined report. Checks keep going
// after failures so one run surfaces everything that needs fixing.
func (v *Verifier) Run(ctx context.Context) *Report {
	r := &Report{}
	v.checkConfig(r)
	v.checkDatabase(ctx, r)
	v.checkCache(ctx, r)
	v.checkStatic(r)
	v.checkTenants(ctx, r)
	return r
}

func (v *Verifier) checkConfig(r *Report) {
	prod := v.cfg.Production()

	if v.cfg.SecretKey == "" {
		r.errorf("config: SECRET_KEY is not set")
	} else if strings.HasPrefix(v.cfg.SecretKey, config.InsecureSecretKeyPrefix) {
		if prod {
			r.errorf("config: SECRET_KEY is the insecure development default")
		} else {
			r.warnf("config: SECRET_KEY is the insecure development default")
		}
	}

	hosts := v.cfg.AllowedHostsList()
	if prod {
		switch {
		case len(hosts) == 0:
			r.errorf("config: ALLOWED_HOSTS is empty in production")
		case containsWildcard(hosts):
			r.errorf("config: ALLOWED_HOSTS contains a wildcard in production")
		}
	} else if len(hosts) == 0 {
		r.warnf("config: ALLOWED_HOSTS is empty")
	}

	if v.cfg.BaseDomain == "" {
		r.errorf("config: BASE_DOMAIN is not set")
	} else if prod && v.cfg.BaseDomain == "localhost" {
		r.warnf("config: BASE_DOMAIN is localhost in production")
	}

	if prod && truthy(os.Getenv("DEBUG")) {
		r.warnf("config: DEBUG is enabled in production")
	}
}

func (v *Verifier) checkDatabase(ctx context.Context, r *Report) {
	if v.cfg.DatabaseURL == "" {
		r.errorf("database: DATABASE_URL is not set")
		return
	}
	if v.cfg.Production() && !dsnHasSSLMode(v.cfg.DatabaseURL) {
		r.warnf("database: DSN has no sslmode in production")
	}
	if v.db == nil {
		r.errorf("database: not connected")
		return
	}
	if err := v.db.PingContext(ctx); err != nil {
		r.errorf("database: ping failed: %v", err)
	}
}

func (v *Verifier) checkCache(ctx context.Context, r *Report) {
	if v.cache == nil {
		r.warnf("cache: no checker configured")
		return
	}
	if err := v.cache.Check(ctx); err != nil {
		if v.cfg.Production() {
			r.errorf("cache: %v", err)
		} else {
			r.warnf("cache: %v", err)
		}
	}
}

func (v *Verifier) checkStatic(r *Report) {
	if v.cfg.StaticRoot == "" {
		r.errorf("static: STATIC_ROOT is not set")
		return
	}
	if _, err := staticassets.Verify(v.fs, v.cfg.StaticRoot); err != nil {
		r.warnf("static: %v", err)
	}
}

func (v *Verifier) checkTenants(ctx context.Context, r *Report) {
	if v.repo == nil {
		r.errorf("tenants: repository unavailable")
		return
	}
	public, err := v.repo.GetBySchema(ctx, domain.PublicSchema)
	if err != nil {
		r.errorf("tenants: lookup public tenant: %v", err)
		return
	}
	if public == nil {
		r.errorf("tenants: public tenant row is missing")
	}

	tenants, err := v.repo.List(ctx)
	if err != nil {
		r.errorf("tenants: list: %v", err)
		return
	}
	for _, t := range tenants {
		if t.SchemaName == domain.PublicSchema {
			continue
		}
		primary, err := v.repo.PrimaryDomain(ctx, t.ID)
		if err != nil {
			r.errorf("tenants: primary domain for %s: %v", t.SchemaName, err)
			continue
		}
		if primary == nil {
			r.warnf("tenants: %s has no primary domain (run tenant ensure-domains)", t.SchemaName)
		}
	}
}

func containsWildcard(hosts []string) bool {
	for _, h := range hosts {
		if h == "*" {
			return true
		}
	}
	return false
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// dsnHasSSLMode reports whether the DSN pins an sslmode, either as a query
// parameter or in key=value form.
func dsnHasSSLMode(dsn string) bool {
	if u, err := url.Parse(dsn); err == nil && u.Query().Get("sslmode") != "" {
		return true
	}
	return strings.Contains(dsn, "sslmode=")
}
