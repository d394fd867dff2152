package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sellerdata/ingest-cli/internal/importer"
)

var (
	apiImportType     string
	apiImportDomain   string
	apiImportTestMode bool
	apiImportLimit    int
)

var apiImportCmd = &cobra.Command{
	Use:   "apiimport <input>",
	Short: "Import from the remote catalog by category id, ASIN, or URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		batchID, err := env.APIDriver.ImportFromInput(ctx, importer.APIImportRequest{
			Input:    args[0],
			Type:     importer.InputKind(apiImportType),
			Domain:   apiImportDomain,
			TestMode: apiImportTestMode || cfg.TestMode,
			Limit:    apiImportLimit,
		})
		if err != nil {
			return err
		}

		zap.L().Info("api import finished", zap.Int64("batch_id", batchID))
		return nil
	},
}

func init() {
	apiImportCmd.Flags().StringVar(&apiImportType, "type", "", "input type: category or asin (default: recognize)")
	apiImportCmd.Flags().StringVar(&apiImportDomain, "domain", "", "marketplace domain (default from config)")
	apiImportCmd.Flags().BoolVar(&apiImportTestMode, "test-mode", false, "synthesize data instead of calling the remote catalog")
	apiImportCmd.Flags().IntVar(&apiImportLimit, "limit", 0, "truncate the listing to this many items (0 = no limit)")
	rootCmd.AddCommand(apiImportCmd)
}
