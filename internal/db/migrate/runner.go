// Package migrate runs database migrations from embedded SQL files using golang-migrate.
//
// Migrations are phased: the shared phase manages the public schema (tenants,
// domains, users, deploy_runs), the tenant phase is applied once per tenant
// schema with a schema_migrations table local to that schema.
package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"zentoerp/deployctl/internal/db"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ErrNoChange is returned when Up/Down has nothing to do (already at target version).
var ErrNoChange = migrate.ErrNoChange

// Phase selects which embedded migration tree to apply.
type Phase string

const (
	PhaseShared Phase = "shared"
	PhaseTenant Phase = "tenant"
)

func sourceDriver(phase Phase) (source.Driver, fs.FS, string, error) {
	switch phase {
	case PhaseShared:
		d, err := iofs.New(db.SharedMigrationFS, "migrations/shared")
		return d, db.SharedMigrationFS, "migrations/shared", err
	case PhaseTenant:
		d, err := iofs.New(db.TenantMigrationFS, "migrations/tenant")
		return d, db.TenantMigrationFS, "migrations/tenant", err
	default:
		return nil, nil, "", fmt.Errorf("unknown migration phase %q", phase)
	}
}

func newMigrator(dsn string, phase Phase, schema string) (*migrate.Migrate, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	if phase == PhaseTenant && schema == "" {
		return nil, errors.New("tenant phase requires a schema name")
	}

	src, _, _, err := sourceDriver(phase)
	if err != nil {
		return nil, fmt.Errorf("migrate source: %w", err)
	}

	params := map[string]string{"x-migrations-table": "schema_migrations"}
	if phase == PhaseTenant {
		// search_path scopes both the migration history table and the
		// migration SQL itself to the tenant schema.
		params["search_path"] = schema
	}
	target, err := db.WithParams(db.MigrateDSN(dsn), params)
	if err != nil {
		return nil, fmt.Errorf("migrate dsn: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, target)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return m, nil
}

func run(m *migrate.Migrate, direction string) error {
	switch direction {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	default:
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}
	return nil
}

// RunShared applies shared-phase migrations in the given direction against
// the public schema. Returns nil on success, including when already at the
// target version.
func RunShared(dsn string, direction string) error {
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}
	m, err := newMigrator(dsn, PhaseShared, "")
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()
	return run(m, direction)
}

// RunTenant applies tenant-phase migrations in the given direction against
// one tenant schema. The schema must already exist.
func RunTenant(dsn string, schema string, direction string) error {
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}
	m, err := newMigrator(dsn, PhaseTenant, schema)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()
	return run(m, direction)
}

// Baseline records the given version in the phase's history table without
// running any SQL. Used after syncing a database that already has the tables
// but no migration history (the fake-initial path). schema is ignored for the
// shared phase.
func Baseline(dsn string, phase Phase, schema string, version uint) error {
	m, err := newMigrator(dsn, phase, schema)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()
	return m.Force(int(version))
}

// LatestVersion returns the highest migration version in the embedded tree
// for the phase. Returns 0 with no error when the tree is empty.
func LatestVersion(phase Phase) (uint, error) {
	_, tree, dir, err := sourceDriver(phase)
	if err != nil {
		return 0, err
	}
	entries, err := fs.ReadDir(tree, dir)
	if err != nil {
		return 0, err
	}
	var latest uint64
	for _, e := range entries {
		name := e.Name()
		idx := strings.Index(name, "_")
		if idx <= 0 {
			continue
		}
		v, err := strconv.ParseUint(name[:idx], 10, 64)
		if err != nil {
			continue
		}
		if v > latest {
			latest = v
		}
	}
	return uint(latest), nil
}
