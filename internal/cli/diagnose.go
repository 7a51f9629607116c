package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"zentoerp/deployctl/internal/diagnose"
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Classify the database state",
	Long: `Inspects the database read-only and reports one of six states:
unreachable, empty, unmigrated, behind, dirty or ready.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		report := diagnose.Run(cmd.Context(), cfg.DatabaseURL)
		if report.Status == diagnose.StatusUnreachable {
			return fmt.Errorf("database unreachable: %v", report.Err)
		}

		fmt.Printf("status:  %s\n", report.Status)
		fmt.Printf("shared:  version %d of %d\n", report.SharedVersion, report.SharedLatest)
		if len(report.PendingTenants) > 0 {
			fmt.Printf("pending: %s\n", strings.Join(report.PendingTenants, ", "))
		}
		if len(report.DirtySchemas) > 0 {
			fmt.Printf("dirty:   %s\n", strings.Join(report.DirtySchemas, ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(diagnoseCmd)
}
