package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sellerdata/ingest-cli/internal/model"
	"github.com/sellerdata/ingest-cli/internal/store"
)

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "Inspect import batches",
}

var (
	batchesStatus   string
	batchesASIN     string
	batchesPage     int
	batchesPageSize int
)

var batchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List import batches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		batches, total, err := st.ListBatches(ctx, store.BatchFilter{
			Status:   batchesStatus,
			ASIN:     batchesASIN,
			Page:     batchesPage,
			PageSize: batchesPageSize,
		})
		if err != nil {
			return eris.Wrap(err, "batches list")
		}

		if len(batches) == 0 {
			fmt.Fprintln(os.Stderr, "No batches found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tTOTAL\tSUCCESS\tFAILED\tAI\tCREATED\tFILENAME")
		for _, b := range batches {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\t%s\t%s\t%s\n",
				b.ID, b.SourceType, b.Status, b.TotalRows, b.SuccessRows, b.FailedRows,
				b.AIStatus, b.CreatedAt.Format("2006-01-02 15:04"), b.Filename)
		}
		w.Flush()
		fmt.Printf("\n%d of %d batches\n", len(batches), total)
		return nil
	},
}

var batchesShowCmd = &cobra.Command{
	Use:   "show <batch-id>",
	Short: "Show full details of a batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("invalid batch id %q", args[0])
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		batch, err := st.GetBatch(ctx, id)
		if err != nil {
			return eris.Wrap(err, "batches show")
		}
		runs, err := st.ListExtractionRuns(ctx, id)
		if err != nil {
			return eris.Wrap(err, "batches show runs")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Batch *model.ImportBatch    `json:"batch"`
			Runs  []model.ExtractionRun `json:"runs,omitempty"`
		}{batch, runs})
	},
}

func init() {
	batchesListCmd.Flags().StringVar(&batchesStatus, "status", "", "filter by status (legacy aliases accepted)")
	batchesListCmd.Flags().StringVar(&batchesASIN, "asin", "", "filter to batches containing an ASIN")
	batchesListCmd.Flags().IntVar(&batchesPage, "page", 1, "page number (1-indexed)")
	batchesListCmd.Flags().IntVar(&batchesPageSize, "page-size", 20, "page size (max 200)")
	batchesCmd.AddCommand(batchesListCmd)
	batchesCmd.AddCommand(batchesShowCmd)
	rootCmd.AddCommand(batchesCmd)
}
