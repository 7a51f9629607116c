package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"zentoerp/deployctl/internal/audit/repository"
)

var historyLimit int32

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent deploy runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openDB()
		if err != nil {
			return err
		}
		defer conn.Close()

		runs, err := repository.NewPostgresRepository(conn).ListRecent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("no deploy runs recorded")
			return nil
		}
		for _, run := range runs {
			took := "-"
			if run.FinishedAt != nil {
				took = run.FinishedAt.Sub(run.StartedAt).Round(10 * time.Millisecond).String()
			}
			fmt.Printf("%s  %-9s %-12s %-8s %d step(s)  by %s\n",
				run.StartedAt.Format("2006-01-02 15:04:05"),
				run.Status, run.Environment, took, len(run.Steps), run.TriggeredBy)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int32Var(&historyLimit, "limit", 20, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}
