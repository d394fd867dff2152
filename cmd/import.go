package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sellerdata/ingest-cli/internal/importcfg"
	"github.com/sellerdata/ingest-cli/internal/importer"
	"github.com/sellerdata/ingest-cli/internal/model"
)

var (
	importStrategy  string
	importSheetName string
	importOnMissing string
	importAliases   string
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a spreadsheet into a new batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}

		strategy, ok := model.ParseStrategy(importStrategy)
		if !ok {
			return eris.Errorf("invalid strategy %q", importStrategy)
		}

		overrides := importcfg.Overrides{
			SheetName:         importSheetName,
			OnMissingRequired: importcfg.MissingPolicy(importOnMissing),
		}
		if importAliases != "" {
			if err := json.Unmarshal([]byte(importAliases), &overrides.ColumnAliases); err != nil {
				return eris.Wrap(err, "parse column aliases")
			}
		}

		batch, err := env.FileDriver.HandleUpload(ctx, importer.UploadRequest{
			Filename:  filepath.Base(args[0]),
			Data:      data,
			Strategy:  strategy,
			Overrides: overrides,
		})
		if err != nil && batch == nil {
			return err
		}

		zap.L().Info("import finished",
			zap.Int64("batch_id", batch.ID),
			zap.String("status", string(batch.Status)),
			zap.Int("total", batch.TotalRows),
			zap.Int("success", batch.SuccessRows),
			zap.Int("failed", batch.FailedRows),
			zap.Int("skipped", batch.SkippedRows),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importStrategy, "strategy", "append", "import strategy: overwrite, append, update-only")
	importCmd.Flags().StringVar(&importSheetName, "sheet", "", "worksheet name override")
	importCmd.Flags().StringVar(&importOnMissing, "on-missing-required", "", "policy for rows missing required fields: skip or abort")
	importCmd.Flags().StringVar(&importAliases, "column-aliases", "", "extra column aliases as a JSON object")
	rootCmd.AddCommand(importCmd)
}
