package main

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var extractFields []string

var extractCmd = &cobra.Command{
	Use:   "extract <batch-id>",
	Short: "Run LLM feature extraction over a batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		batchID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("invalid batch id %q", args[0])
		}
		if len(extractFields) == 0 {
			return eris.New("at least one --field is required")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Extractor.ExtractBatchFeatures(ctx, batchID, extractFields)
		if err != nil {
			return err
		}

		zap.L().Info("extraction finished",
			zap.Int64("run_id", run.ID),
			zap.Int("total", run.Stats.Total),
			zap.Int("success", run.Stats.Success),
			zap.Int("failed", run.Stats.Failed),
			zap.Int("total_tokens", run.Stats.TotalTokens),
			zap.Float64("total_cost", run.Stats.TotalCost),
			zap.Float64("duration_seconds", run.Stats.DurationSeconds),
		)
		return nil
	},
}

func init() {
	extractCmd.Flags().StringSliceVar(&extractFields, "field", nil, "target field to extract (repeatable)")
	rootCmd.AddCommand(extractCmd)
}
