package cli

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"zentoerp/deployctl/internal/staticassets"
)

var collectStaticCmd = &cobra.Command{
	Use:   "collect-static",
	Short: "Collect static assets into STATIC_ROOT",
	Long: `Copies assets from STATIC_SOURCE_DIRS into STATIC_ROOT under both their
logical path and a content-hashed name, and writes the staticfiles.json
manifest. Earlier source directories shadow later ones.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		collector := staticassets.NewCollector(
			afero.NewOsFs(), cfg.StaticSourceList(), cfg.StaticRoot, logger)
		res, err := collector.Collect(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("copied %d file(s), %d shadowed, manifest written to %s/%s\n",
			res.Copied, res.Skipped, cfg.StaticRoot, staticassets.ManifestName)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(collectStaticCmd)
}
