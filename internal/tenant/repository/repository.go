package repository

import (
	"context"

	"zentoerp/deployctl/internal/tenant/domain"
)

// Repository defines persistence for tenants and their domains.
type Repository interface {
	GetBySchema(ctx context.Context, schema string) (*domain.Tenant, error)
	GetByEmail(ctx context.Context, email string) (*domain.Tenant, error)
	List(ctx context.Context) ([]*domain.Tenant, error)
	Create(ctx context.Context, t *domain.Tenant) error
	Delete(ctx context.Context, id string) error

	ListDomains(ctx context.Context, tenantID string) ([]*domain.Domain, error)
	ListAllDomains(ctx context.Context) ([]*domain.Domain, error)
	// PrimaryDomain returns the tenant's primary domain, or nil if it has none.
	PrimaryDomain(ctx context.Context, tenantID string) (*domain.Domain, error)
	DomainExists(ctx context.Context, hostname string) (bool, error)
	CreateDomain(ctx context.Context, d *domain.Domain) error
	// SetPrimaryDomain makes the given domain primary and demotes any other
	// primary domain of the same tenant, atomically.
	SetPrimaryDomain(ctx context.Context, tenantID, domainID string) error
}
