package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sellerdata/ingest-cli/internal/store"
)

var (
	productsBatchID   int64
	productsASIN      string
	productsStatus    string
	productsCategory  string
	productsSortBy    string
	productsSortOrder string
	productsPage      int
	productsPageSize  int
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List product records",
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

		filter := store.ProductFilter{
			ASIN:      productsASIN,
			Status:    productsStatus,
			Category:  productsCategory,
			SortBy:    store.ProductSortKey(productsSortBy),
			SortOrder: productsSortOrder,
			Page:      productsPage,
			PageSize:  productsPageSize,
		}
		if productsBatchID > 0 {
			filter.BatchID = &productsBatchID
		}

		records, total, err := st.ListProducts(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "products list")
		}

		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No products found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ASIN\tBATCH\tSTATUS\tPRICE\tRATING\tAI\tTITLE")
		for _, r := range records {
			price := "-"
			if r.Price != nil {
				price = fmt.Sprintf("%.2f %s", *r.Price, r.Currency)
			}
			rating := "-"
			if r.Rating != nil {
				rating = fmt.Sprintf("%.1f", *r.Rating)
			}
			title := r.Title
			if len(title) > 50 {
				title = title[:47] + "..."
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
				r.ASIN, r.BatchID, r.ValidationStatus, price, rating, r.AIStatus, title)
		}
		w.Flush()
		fmt.Printf("\n%d of %d products\n", len(records), total)
		return nil
	},
}

func init() {
	productsCmd.Flags().Int64Var(&productsBatchID, "batch", 0, "filter by batch id")
	productsCmd.Flags().StringVar(&productsASIN, "asin", "", "filter by ASIN")
	productsCmd.Flags().StringVar(&productsStatus, "status", "", "filter by validation status")
	productsCmd.Flags().StringVar(&productsCategory, "category", "", "filter by category")
	productsCmd.Flags().StringVar(&productsSortBy, "sort-by", "", "sort key: ingested_at, status, asin, batch_id, price, rating, sales_rank")
	productsCmd.Flags().StringVar(&productsSortOrder, "sort-order", "desc", "sort order: asc or desc")
	productsCmd.Flags().IntVar(&productsPage, "page", 1, "page number (1-indexed)")
	productsCmd.Flags().IntVar(&productsPageSize, "page-size", 20, "page size (max 200)")
	rootCmd.AddCommand(productsCmd)
}
