package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	dbmigrate "zentoerp/deployctl/internal/db/migrate"
	"zentoerp/deployctl/internal/tenant/domain"
	"zentoerp/deployctl/internal/tenant/repository"
)

var (
	migrateDirection string
	migratePhase     string
	migrateSchema    string
	migrateBaseline  int
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations for one phase",
	Long: `Applies embedded migrations. The shared phase manages the public schema;
the tenant phase is applied per tenant schema, each schema keeping its own
schema_migrations table. Without --schema, the tenant phase runs for every
registered tenant.

--baseline N records version N in the history table without running SQL,
for databases restored from a dump that already has the tables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var phase dbmigrate.Phase
		switch migratePhase {
		case "shared":
			phase = dbmigrate.PhaseShared
		case "tenant":
			phase = dbmigrate.PhaseTenant
		default:
			return fmt.Errorf("--phase must be shared or tenant, got %q", migratePhase)
		}

		if migrateBaseline >= 0 {
			if phase == dbmigrate.PhaseTenant && migrateSchema == "" {
				return fmt.Errorf("--baseline on the tenant phase requires --schema")
			}
			if err := dbmigrate.Baseline(cfg.DatabaseURL, phase, migrateSchema, uint(migrateBaseline)); err != nil {
				return err
			}
			logger.Info("baseline recorded",
				zap.String("phase", string(phase)),
				zap.String("schema", migrateSchema),
				zap.Int("version", migrateBaseline))
			return nil
		}

		if phase == dbmigrate.PhaseShared {
			if err := dbmigrate.RunShared(cfg.DatabaseURL, migrateDirection); err != nil {
				return err
			}
			logger.Info("shared migrations applied", zap.String("direction", migrateDirection))
			return nil
		}

		if migrateSchema != "" {
			if err := dbmigrate.RunTenant(cfg.DatabaseURL, migrateSchema, migrateDirection); err != nil {
				return err
			}
			logger.Info("tenant migrations applied",
				zap.String("schema", migrateSchema),
				zap.String("direction", migrateDirection))
			return nil
		}

		// No schema given: migrate every registered tenant.
		conn, err := openDB()
		if err != nil {
			return err
		}
		defer conn.Close()
		tenants, err := repository.NewPostgresRepository(conn).List(ctx)
		if err != nil {
			return err
		}
		migrated := 0
		for _, t := range tenants {
			if t.SchemaName == domain.PublicSchema {
				continue
			}
			if err := dbmigrate.RunTenant(cfg.DatabaseURL, t.SchemaName, migrateDirection); err != nil {
				return fmt.Errorf("tenant %s: %w", t.SchemaName, err)
			}
			migrated++
		}
		logger.Info("tenant migrations applied",
			zap.Int("schemas", migrated),
			zap.String("direction", migrateDirection))
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDirection, "direction", "up", "migration direction: up or down")
	migrateCmd.Flags().StringVar(&migratePhase, "phase", "shared", "migration phase: shared or tenant")
	migrateCmd.Flags().StringVar(&migrateSchema, "schema", "", "tenant schema (tenant phase; empty = all registered tenants)")
	migrateCmd.Flags().IntVar(&migrateBaseline, "baseline", -1, "record this version without running SQL")
	rootCmd.AddCommand(migrateCmd)
}
