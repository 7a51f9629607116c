package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"zentoerp/deployctl/internal/tenant/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a tenant repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const tenantColumns = `id, name, email, phone, professional_number, schema_name, slug, status, notes, created_at, updated_at`

// GetBySchema returns the tenant with the given schema name, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetBySchema(ctx context.Context, schema string) (*domain.Tenant, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE schema_name = $1`, schema)
	return scanTenant(row)
}

// GetByEmail returns the tenant with the given email, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Tenant, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE email = $1`, email)
	return scanTenant(row)
}

// List returns all tenants ordered by schema name.
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.Tenant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY schema_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Create persists the tenant. The tenant must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.Tenant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tenants (`+tenantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.Name, t.Email, t.Phone, t.ProfessionalNumber,
		t.SchemaName, t.Slug, string(t.Status), t.Notes, t.CreatedAt, t.UpdatedAt)
	return err
}

// Delete removes the tenant row; domains cascade.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	return err
}

const domainColumns = `id, tenant_id, hostname, is_primary, created_at`

// ListDomains returns the tenant's domains, primary first.
func (r *PostgresRepository) ListDomains(ctx context.Context, tenantID string) ([]*domain.Domain, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE tenant_id = $1 ORDER BY is_primary DESC, hostname`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDomains(rows)
}

// ListAllDomains returns every domain row ordered by hostname.
func (r *PostgresRepository) ListAllDomains(ctx context.Context) ([]*domain.Domain, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+domainColumns+` FROM domains ORDER BY hostname`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDomains(rows)
}

// PrimaryDomain returns the tenant's primary domain, or nil if it has none.
func (r *PostgresRepository) PrimaryDomain(ctx context.Context, tenantID string) (*domain.Domain, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE tenant_id = $1 AND is_primary`, tenantID)
	d, err := scanDomain(row)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// DomainExists reports whether any tenant already claims the hostname.
func (r *PostgresRepository) DomainExists(ctx context.Context, hostname string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM domains WHERE hostname = $1)`, hostname).Scan(&ok)
	return ok, err
}

// CreateDomain persists the domain. The domain must have ID set.
func (r *PostgresRepository) CreateDomain(ctx context.Context, d *domain.Domain) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO domains (`+domainColumns+`)
		VALUES ($1, $2, $3, $4, $5)`,
		d.ID, d.TenantID, d.Hostname, d.IsPrimary, d.CreatedAt)
	return err
}

// SetPrimaryDomain promotes domainID to primary for tenantID, demoting any
// current primary in the same transaction.
func (r *PostgresRepository) SetPrimaryDomain(ctx context.Context, tenantID, domainID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE domains SET is_primary = FALSE WHERE tenant_id = $1 AND is_primary`, tenantID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE domains SET is_primary = TRUE WHERE id = $1 AND tenant_id = $2`, domainID, tenantID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("domain %s does not belong to tenant %s", domainID, tenantID)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (*domain.Tenant, error) {
	var t domain.Tenant
	var status string
	err := row.Scan(&t.ID, &t.Name, &t.Email, &t.Phone, &t.ProfessionalNumber,
		&t.SchemaName, &t.Slug, &status, &t.Notes, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.Status = domain.TenantStatus(status)
	return &t, nil
}

func scanDomain(row rowScanner) (*domain.Domain, error) {
	var d domain.Domain
	err := row.Scan(&d.ID, &d.TenantID, &d.Hostname, &d.IsPrimary, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func collectDomains(rows *sql.Rows) ([]*domain.Domain, error) {
	var out []*domain.Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
