// Package tenant provisions tenants and keeps their domains consistent.
package tenant

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	dbmigrate "zentoerp/deployctl/internal/db/migrate"
	"zentoerp/deployctl/internal/tenant/domain"
	"zentoerp/deployctl/internal/tenant/repository"
)

// MigrateFunc applies the tenant migration phase to one schema.
// Injected so provisioning can be tested without a live golang-migrate run.
type MigrateFunc func(schema string) error

// Service provisions tenants and manages their domains.
type Service struct {
	db      *sql.DB
	repo    repository.Repository
	migrate MigrateFunc
	log     *zap.Logger
}

// NewService returns a tenant service. migrate may be nil; then the default
// tenant-phase runner is used with the given dsn.
func NewService(conn *sql.DB, repo repository.Repository, dsn string, migrate MigrateFunc, log *zap.Logger) *Service {
	if migrate == nil {
		migrate = func(schema string) error {
			return dbmigrate.RunTenant(dsn, schema, "up")
		}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: conn, repo: repo, migrate: migrate, log: log}
}

// NewTenant is the input for Provision.
type NewTenant struct {
	Name               string
	Email              string
	Phone              string
	ProfessionalNumber string
	SchemaName         string
	Hostname           string // primary domain; derived from schema + base when empty
	BaseDomain         string
	DevPort            string
	Notes              string
}

// Provision creates the tenant row, its primary domain and its schema in one
// transaction, then applies tenant-phase migrations to the new schema. If
// migration fails the schema and rows are rolled back best-effort so a retry
// starts clean.
func (s *Service) Provision(ctx context.Context, in NewTenant) (*domain.Tenant, error) {
	now := time.Now().UTC()
	t := &domain.Tenant{
		ID:                 uuid.New().String(),
		Name:               in.Name,
		Email:              in.Email,
		Phone:              in.Phone,
		ProfessionalNumber: in.ProfessionalNumber,
		SchemaName:         in.SchemaName,
		Slug:               domain.Slugify(in.Name),
		Status:             domain.TenantStatusActive,
		Notes:              in.Notes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	if existing, err := s.repo.GetBySchema(ctx, t.SchemaName); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("tenant with schema %q already exists", t.SchemaName)
	}
	if existing, err := s.repo.GetByEmail(ctx, t.Email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("tenant with email %q already exists", t.Email)
	}

	hostname := in.Hostname
	if hostname == "" {
		hostname = domain.SubdomainFor(t.SchemaName, in.BaseDomain, in.DevPort)
	}
	hostname, _ = domain.NormalizeHostname(hostname)
	if !domain.ValidHostname(hostname) {
		return nil, fmt.Errorf("hostname %q is not RFC 1034/1035 compliant", hostname)
	}
	if taken, err := s.repo.DomainExists(ctx, hostname); err != nil {
		return nil, err
	} else if taken {
		return nil, fmt.Errorf("domain %q already exists", hostname)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tenants (id, name, email, phone, professional_number, schema_name, slug, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.Name, t.Email, t.Phone, t.ProfessionalNumber,
		t.SchemaName, t.Slug, string(t.Status), t.Notes, t.CreatedAt, t.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert tenant: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO domains (id, tenant_id, hostname, is_primary, created_at)
		VALUES ($1, $2, $3, TRUE, $4)`,
		uuid.New().String(), t.ID, hostname, now); err != nil {
		return nil, fmt.Errorf("insert domain: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `CREATE SCHEMA IF NOT EXISTS `+quoteIdent(t.SchemaName)); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if err := s.migrate(t.SchemaName); err != nil {
		s.rollbackProvision(ctx, t)
		return nil, fmt.Errorf("tenant migrations for %s: %w", t.SchemaName, err)
	}

	s.log.Info("tenant provisioned",
		zap.String("schema", t.SchemaName),
		zap.String("domain", hostname),
		zap.String("slug", t.Slug))
	return t, nil
}

// rollbackProvision undoes a provision whose migration phase failed.
// Best-effort: failures are logged, the original error is what callers see.
func (s *Service) rollbackProvision(ctx context.Context, t *domain.Tenant) {
	if _, err := s.db.ExecContext(ctx, `DROP SCHEMA IF EXISTS `+quoteIdent(t.SchemaName)+` CASCADE`); err != nil {
		s.log.Warn("rollback: drop schema failed", zap.String("schema", t.SchemaName), zap.Error(err))
	}
	if err := s.repo.Delete(ctx, t.ID); err != nil {
		s.log.Warn("rollback: delete tenant failed", zap.String("schema", t.SchemaName), zap.Error(err))
	}
}

// EnsureDomains creates a primary <schema>.<base> domain for every tenant
// that has none. Existing hostnames are skipped, not overridden. Returns the
// number of domains created.
func (s *Service) EnsureDomains(ctx context.Context, base, devPort string) (int, error) {
	if base == "" {
		return 0, fmt.Errorf("base domain is required")
	}
	tenants, err := s.repo.List(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, t := range tenants {
		if t.SchemaName == domain.PublicSchema {
			continue
		}
		primary, err := s.repo.PrimaryDomain(ctx, t.ID)
		if err != nil {
			return created, err
		}
		if primary != nil {
			continue
		}
		hostname := domain.SubdomainFor(t.SchemaName, base, devPort)
		taken, err := s.repo.DomainExists(ctx, hostname)
		if err != nil {
			return created, err
		}
		if taken {
			s.log.Warn("domain already exists, skipping", zap.String("hostname", hostname), zap.String("schema", t.SchemaName))
			continue
		}
		d := &domain.Domain{
			ID:        uuid.New().String(),
			TenantID:  t.ID,
			Hostname:  hostname,
			IsPrimary: true,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.repo.CreateDomain(ctx, d); err != nil {
			return created, fmt.Errorf("create domain %s: %w", hostname, err)
		}
		created++
		s.log.Info("domain created", zap.String("hostname", hostname), zap.String("tenant", t.Name))
	}
	return created, nil
}

// NormalizationResult reports one hostname inspected by NormalizeHostnames.
type NormalizationResult struct {
	Hostname   string
	Normalized string
	Created    bool   // alias domain created
	Conflict   bool   // normalized name already taken by another row
	Invalid    bool   // still invalid after normalization
}

// NormalizeHostnames scans every domain for RFC violations (underscores,
// uppercase). For each offender whose corrected form is free, a non-primary
// alias domain is created; the original stays primary until an operator
// switches it with SetPrimary. Read-mostly and idempotent.
func (s *Service) NormalizeHostnames(ctx context.Context) ([]NormalizationResult, error) {
	domains, err := s.repo.ListAllDomains(ctx)
	if err != nil {
		return nil, err
	}

	var results []NormalizationResult
	for _, d := range domains {
		normalized, changed := domain.NormalizeHostname(d.Hostname)
		if !changed && domain.ValidHostname(d.Hostname) {
			continue
		}
		res := NormalizationResult{Hostname: d.Hostname, Normalized: normalized}
		if !domain.ValidHostname(normalized) {
			res.Invalid = true
			results = append(results, res)
			continue
		}
		taken, err := s.repo.DomainExists(ctx, normalized)
		if err != nil {
			return results, err
		}
		if taken {
			res.Conflict = true
			results = append(results, res)
			continue
		}
		alias := &domain.Domain{
			ID:        uuid.New().String(),
			TenantID:  d.TenantID,
			Hostname:  normalized,
			IsPrimary: false,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.repo.CreateDomain(ctx, alias); err != nil {
			return results, fmt.Errorf("create alias %s: %w", normalized, err)
		}
		res.Created = true
		results = append(results, res)
		s.log.Info("alias domain created", zap.String("from", d.Hostname), zap.String("to", normalized))
	}
	return results, nil
}

// SetPrimary makes hostname the primary domain of the tenant owning it.
func (s *Service) SetPrimary(ctx context.Context, schema, hostname string) error {
	t, err := s.repo.GetBySchema(ctx, schema)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("no tenant with schema %q", schema)
	}
	domains, err := s.repo.ListDomains(ctx, t.ID)
	if err != nil {
		return err
	}
	for _, d := range domains {
		if d.Hostname == hostname {
			return s.repo.SetPrimaryDomain(ctx, t.ID, d.ID)
		}
	}
	return fmt.Errorf("tenant %q has no domain %q", schema, hostname)
}

// List returns all tenants with their primary domain hostname (empty when missing).
func (s *Service) List(ctx context.Context) ([]TenantSummary, error) {
	tenants, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TenantSummary, 0, len(tenants))
	for _, t := range tenants {
		sum := TenantSummary{Tenant: t}
		primary, err := s.repo.PrimaryDomain(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		if primary != nil {
			sum.PrimaryHostname = primary.Hostname
		}
		out = append(out, sum)
	}
	return out, nil
}

// TenantSummary pairs a tenant with its primary hostname for listings.
type TenantSummary struct {
	Tenant          *domain.Tenant
	PrimaryHostname string
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
