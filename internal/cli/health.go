package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"zentoerp/deployctl/internal/health"
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Probe the application health endpoint",
	Long: `GETs HEALTH_URL until it reports {"status":"healthy"} or the attempt
budget (HEALTH_ATTEMPTS) runs out, with exponential backoff between tries.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prober := health.NewProber(cfg.HealthURL, cfg.HealthAttempts, logger)
		resp, err := prober.Probe(cmd.Context())
		if err != nil {
			return err
		}
		if resp != nil && resp.Environment != "" {
			fmt.Printf("healthy (environment %s)\n", resp.Environment)
		} else {
			fmt.Println("healthy")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
}
