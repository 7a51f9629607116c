package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zentoerp/deployctl/internal/cache"
	"zentoerp/deployctl/internal/tenant/repository"
	"zentoerp/deployctl/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run production readiness checks",
	Long: `Checks configuration, database, cache, static assets and tenant domains.
Errors fail the command; warnings are printed but do not.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openDB()
		if err != nil {
			// The database check reports this; the remaining checks still run.
			logger.Warn("database connection failed", zap.Error(err))
		} else {
			defer conn.Close()
		}
		var repo repository.Repository
		if conn != nil {
			repo = repository.NewPostgresRepository(conn)
		}

		v := verify.NewVerifier(cfg, conn, repo, cache.NewChecker(cfg.RedisURL), afero.NewOsFs())
		report := v.Run(cmd.Context())

		for _, e := range report.Errors {
			fmt.Printf("ERROR    %s\n", e)
		}
		for _, w := range report.Warnings {
			fmt.Printf("WARNING  %s\n", w)
		}
		fmt.Println(report.Summary())

		if report.Fatal() {
			return errors.New("verification failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
