// Package diagnose classifies the state of the application database before a
// deploy. Classification is done by introspecting migration history tables
// and pg_catalog directly; it never writes and never creates history tables.
package diagnose

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"zentoerp/deployctl/internal/db"
	dbmigrate "zentoerp/deployctl/internal/db/migrate"
)

// Status is one of the six database states a deploy can start from.
type Status string

const (
	// StatusUnreachable means the database cannot be connected to or pinged.
	StatusUnreachable Status = "unreachable"
	// StatusEmpty means the public schema has no user tables: a fresh database.
	StatusEmpty Status = "empty"
	// StatusUnmigrated means tables exist but there is no migration history,
	// typically a database restored from a production dump. Needs a baseline.
	StatusUnmigrated Status = "unmigrated"
	// StatusBehind means history exists and at least one phase has pending migrations.
	StatusBehind Status = "behind"
	// StatusDirty means a previous migration failed mid-flight and left the
	// dirty flag set. Requires operator intervention (or --force-dirty).
	StatusDirty Status = "dirty"
	// StatusReady means shared and all tenant schemas are at the latest version.
	StatusReady Status = "ready"
)

// TenantState describes one tenant schema's migration position.
type TenantState struct {
	Schema     string
	HasSchema  bool
	HasHistory bool
	Version    uint
	Dirty      bool
}

// Pending reports whether the tenant schema needs the tenant migration phase.
func (t TenantState) Pending(latest uint) bool {
	return !t.HasSchema || !t.HasHistory || t.Version < latest
}

// Facts are the raw observations Collect gathers; Classify turns them into a Report.
type Facts struct {
	SharedTables  int
	SharedHistory bool
	SharedVersion uint
	SharedDirty   bool
	SharedLatest  uint
	TenantLatest  uint
	Tenants       []TenantState
}

// Report is the result of a diagnosis.
type Report struct {
	Status         Status
	SharedVersion  uint
	SharedLatest   uint
	TenantLatest   uint
	PendingTenants []string
	DirtySchemas   []string
	Err            error
}

// Classify maps observed facts to one of the six statuses.
// Dirty wins over everything else: migrating a dirty database would fail anyway.
func Classify(f Facts) Report {
	r := Report{
		SharedVersion: f.SharedVersion,
		SharedLatest:  f.SharedLatest,
		TenantLatest:  f.TenantLatest,
	}

	if f.SharedDirty {
		r.DirtySchemas = append(r.DirtySchemas, "public")
	}
	for _, t := range f.Tenants {
		if t.Dirty {
			r.DirtySchemas = append(r.DirtySchemas, t.Schema)
		}
		if t.Pending(f.TenantLatest) {
			r.PendingTenants = append(r.PendingTenants, t.Schema)
		}
	}

	switch {
	case len(r.DirtySchemas) > 0:
		r.Status = StatusDirty
	case f.SharedTables == 0:
		r.Status = StatusEmpty
	case !f.SharedHistory:
		r.Status = StatusUnmigrated
	case f.SharedVersion < f.SharedLatest || len(r.PendingTenants) > 0:
		r.Status = StatusBehind
	default:
		r.Status = StatusReady
	}
	return r
}

// Collect gathers migration facts from the database. Read-only.
func Collect(ctx context.Context, conn *sql.DB) (Facts, error) {
	var f Facts

	var err error
	f.SharedLatest, err = dbmigrate.LatestVersion(dbmigrate.PhaseShared)
	if err != nil {
		return f, fmt.Errorf("shared latest: %w", err)
	}
	f.TenantLatest, err = dbmigrate.LatestVersion(dbmigrate.PhaseTenant)
	if err != nil {
		return f, fmt.Errorf("tenant latest: %w", err)
	}

	err = conn.QueryRowContext(ctx, `
		SELECT count(*) FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'`).Scan(&f.SharedTables)
	if err != nil {
		return f, fmt.Errorf("count public tables: %w", err)
	}

	f.SharedHistory, err = historyExists(ctx, conn, "public")
	if err != nil {
		return f, err
	}
	if f.SharedHistory {
		f.SharedVersion, f.SharedDirty, err = historyRow(ctx, conn, "public")
		if err != nil {
			return f, err
		}
	}

	schemas, err := registeredSchemas(ctx, conn)
	if err != nil {
		return f, err
	}
	for _, schema := range schemas {
		st := TenantState{Schema: schema}
		st.HasSchema, err = schemaExists(ctx, conn, schema)
		if err != nil {
			return f, err
		}
		if st.HasSchema {
			st.HasHistory, err = historyExists(ctx, conn, schema)
			if err != nil {
				return f, err
			}
		}
		if st.HasHistory {
			st.Version, st.Dirty, err = historyRow(ctx, conn, schema)
			if err != nil {
				return f, err
			}
		}
		f.Tenants = append(f.Tenants, st)
	}
	return f, nil
}

// Run opens the database, collects facts and classifies them. A connection
// failure yields StatusUnreachable with Err set rather than an error return,
// so callers can treat unreachable as one of the six states.
func Run(ctx context.Context, dsn string) Report {
	conn, err := db.Open(dsn)
	if err != nil {
		return Report{Status: StatusUnreachable, Err: err}
	}
	defer conn.Close()

	facts, err := Collect(ctx, conn)
	if err != nil {
		return Report{Status: StatusUnreachable, Err: err}
	}
	return Classify(facts)
}

// registeredSchemas lists tenant schemas from the tenants registry table.
// A database without the registry (empty or unmigrated) has no tenant schemas to consult.
func registeredSchemas(ctx context.Context, conn *sql.DB) ([]string, error) {
	exists, err := tableExists(ctx, conn, "public", "tenants")
	if err != nil || !exists {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, `
		SELECT schema_name FROM tenants
		WHERE schema_name <> 'public' ORDER BY schema_name`)
	if err != nil {
		return nil, fmt.Errorf("list tenant schemas: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func schemaExists(ctx context.Context, conn *sql.DB, schema string) (bool, error) {
	var ok bool
	err := conn.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`, schema).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("schema %s: %w", schema, err)
	}
	return ok, nil
}

func tableExists(ctx context.Context, conn *sql.DB, schema, table string) (bool, error) {
	var ok bool
	err := conn.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2)`, schema, table).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("table %s.%s: %w", schema, table, err)
	}
	return ok, nil
}

func historyExists(ctx context.Context, conn *sql.DB, schema string) (bool, error) {
	return tableExists(ctx, conn, schema, "schema_migrations")
}

// historyRow reads the single golang-migrate history row for a schema.
// An existing but empty history table reads as version 0, clean.
func historyRow(ctx context.Context, conn *sql.DB, schema string) (uint, bool, error) {
	q := fmt.Sprintf(`SELECT version, dirty FROM %s.schema_migrations LIMIT 1`, quoteIdent(schema))
	var version int64
	var dirty bool
	err := conn.QueryRowContext(ctx, q).Scan(&version, &dirty)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("history %s: %w", schema, err)
	}
	if version < 0 {
		version = 0
	}
	return uint(version), dirty, nil
}

// quoteIdent quotes a Postgres identifier. Schema names come from our own
// registry, but tenants are named after customer input, so quote anyway.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
