package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zentoerp/deployctl/internal/deploy"
	"zentoerp/deployctl/internal/telemetry"
	"zentoerp/deployctl/internal/telemetry/otel"
	"zentoerp/deployctl/internal/telemetry/producer"
)

var (
	deploySkipStatic  bool
	deploySkipHealth  bool
	deployForceDirty  bool
	deployOnly        []string
	deployTriggeredBy string
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Run the full deployment sequence",
	Long: `Runs every deploy step in order: verify-config, wait-db, diagnose,
migrate-shared, migrate-tenants, collect-static, check-cache, ensure-domains
and health. Warnings are reported but do not fail the deploy; the first fatal
step stops it and the exit code is 1.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		for _, name := range deployOnly {
			if !validStepName(name) {
				return fmt.Errorf("unknown step %q for --only (valid: %v)", name, deploy.StepNames())
			}
		}

		providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "deployctl", cfg.OTLPInsecure)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		providers.SetGlobal()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = providers.Shutdown(shutdownCtx)
		}()

		var emitter telemetry.Emitter = telemetry.NopEmitter{}
		kafkaProducer, err := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.KafkaTopic)
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		if kafkaProducer != nil {
			emitter = kafkaProducer
			defer func() {
				if err := kafkaProducer.Close(); err != nil {
					logger.Warn("close kafka producer", zap.Error(err))
				}
			}()
		}

		opts := deploy.Options{
			SkipStatic:  deploySkipStatic,
			SkipHealth:  deploySkipHealth,
			ForceDirty:  deployForceDirty,
			Only:        deployOnly,
			TriggeredBy: triggeredBy(),
		}
		o := deploy.NewOrchestrator(cfg, logger, afero.NewOsFs(), emitter)
		res := o.Run(ctx, opts)

		fmt.Printf("deploy %s (%s)\n", res.Status(), res.RunID)
		for _, s := range res.Steps {
			line := fmt.Sprintf("  %-16s %s", s.Name, s.Outcome)
			if s.Detail != "" {
				line += "  " + s.Detail
			}
			fmt.Println(line)
		}
		if res.Failed() {
			return errors.New("deploy failed")
		}
		return nil
	},
}

func validStepName(name string) bool {
	for _, s := range deploy.StepNames() {
		if s == name {
			return true
		}
	}
	return false
}

// triggeredBy resolves who started the deploy for the audit trail:
// explicit flag, then CI identity, then the OS user.
func triggeredBy() string {
	if deployTriggeredBy != "" {
		return deployTriggeredBy
	}
	if actor := os.Getenv("CI_ACTOR"); actor != "" {
		return actor
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}

func init() {
	deployCmd.Flags().BoolVar(&deploySkipStatic, "skip-static", false, "skip static asset collection")
	deployCmd.Flags().BoolVar(&deploySkipHealth, "skip-health", false, "skip the final health probe")
	deployCmd.Flags().BoolVar(&deployForceDirty, "force-dirty", false, "migrate even when a schema's migration history is dirty")
	deployCmd.Flags().StringSliceVar(&deployOnly, "only", nil, "run only the named steps (wait-db always runs)")
	deployCmd.Flags().StringVar(&deployTriggeredBy, "triggered-by", "", "who or what started this deploy (recorded in the audit trail)")
	rootCmd.AddCommand(deployCmd)
}
