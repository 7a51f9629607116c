package db

import "embed"

// SharedMigrationFS embeds SQL migrations for the shared (public) schema:
// tenants, domains, users and deploy_runs.
//
//go:embed migrations/shared/*.sql
var SharedMigrationFS embed.FS

// TenantMigrationFS embeds SQL migrations applied once per tenant schema.
// Each tenant schema keeps its own schema_migrations table, so shared and
// tenant histories never mix.
//
//go:embed migrations/tenant/*.sql
var TenantMigrationFS embed.FS
