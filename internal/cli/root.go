// Package cli implements the deployctl command tree.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"zentoerp/deployctl/internal/config"
	"zentoerp/deployctl/internal/db"
)

var (
	verbose bool

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "deployctl",
	Short: "Deployment control for the Zento multi-tenant CRM",
	Long: `deployctl diagnoses the application database, runs phased migrations
(shared schema, then one pass per tenant schema), collects static assets,
keeps tenant domains consistent and probes application health.

Configuration comes from the environment and an optional .env file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = newLogger(verbose)
		if err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug-level logging")
}

// newLogger builds a console logger; verbose lowers the level to debug.
func newLogger(verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if !verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return zcfg.Build()
}

// openDB connects to the configured database, failing with a hint when
// DATABASE_URL is missing.
func openDB() (*sql.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	return db.Open(cfg.DatabaseURL)
}

// Execute runs the command tree and returns the process exit code.
// SIGINT/SIGTERM cancel the command context so in-flight steps stop cleanly.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "deployctl: %v\n", err)
		return 1
	}
	return 0
}
