// Package store is the stateless persistence adapter around the relational
// backend. It encapsulates all SQL concerns; two implementations exist,
// sqlite (modernc) and postgres (pgx).
package store

import (
	"context"
	"time"

	"github.com/sellerdata/ingest-cli/internal/model"
)

// MaxPageSize caps every list operation.
const MaxPageSize = 200

// DefaultPageSize applies when the caller sends none.
const DefaultPageSize = 20

// BatchFilter specifies criteria for listing batches.
type BatchFilter struct {
	Status   string `json:"status,omitempty"` // accepts legacy aliases
	ASIN     string `json:"asin,omitempty"`   // batches containing the ASIN
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
}

// ProductSortKey names a sortable product column.
type ProductSortKey string

const (
	SortIngestedAt ProductSortKey = "ingested_at"
	SortStatus     ProductSortKey = "status"
	SortASIN       ProductSortKey = "asin"
	SortBatchID    ProductSortKey = "batch_id"
	SortPrice      ProductSortKey = "price"
	SortRating     ProductSortKey = "rating"
	SortSalesRank  ProductSortKey = "sales_rank"
)

// productSortColumns whitelists sort keys against SQL injection and maps
// them to stored columns.
var productSortColumns = map[ProductSortKey]string{
	SortIngestedAt: "ingested_at",
	SortStatus:     "validation_status",
	SortASIN:       "asin",
	SortBatchID:    "batch_id",
	SortPrice:      "price",
	SortRating:     "rating",
	SortSalesRank:  "sales_rank",
}

// Range bounds a numeric filter; nil ends are open.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// TimeRange bounds a time filter; nil ends are open.
type TimeRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// ProductFilter specifies criteria for listing product records.
type ProductFilter struct {
	BatchID   *int64         `json:"batch_id,omitempty"`
	ASIN      string         `json:"asin,omitempty"`
	Status    string         `json:"status,omitempty"` // validation status
	Category  string         `json:"category,omitempty"`
	Updated   TimeRange      `json:"updated,omitempty"`
	Price     Range          `json:"price,omitempty"`
	Rating    Range          `json:"rating,omitempty"`
	Reviews   Range          `json:"reviews,omitempty"`
	SalesRank Range          `json:"sales_rank,omitempty"`
	SortBy    ProductSortKey `json:"sort_by,omitempty"`
	SortOrder string         `json:"sort_order,omitempty"` // asc|desc
	Page      int            `json:"page,omitempty"`
	PageSize  int            `json:"page_size,omitempty"`
}

// Store defines the persistence interface for the ingest pipeline.
type Store interface {
	// Batches
	CreateBatch(ctx context.Context, b *model.ImportBatch) (*model.ImportBatch, error)
	GetBatch(ctx context.Context, id int64) (*model.ImportBatch, error)
	FindBatchByHash(ctx context.Context, fingerprint string) (*model.ImportBatch, error)
	UpdateBatchStatus(ctx context.Context, id int64, status model.BatchStatus, failureSummary map[string]any) error
	UpdateBatchStats(ctx context.Context, b *model.ImportBatch) error
	UpdateBatchProgress(ctx context.Context, id int64, p model.Progress) error
	UpdateBatchAI(ctx context.Context, id int64, status model.AIStatus, summary map[string]any) error
	DeleteBatch(ctx context.Context, id int64) error
	ListBatches(ctx context.Context, filter BatchFilter) ([]model.ImportBatch, int, error)

	// Product records
	CreateProductRecords(ctx context.Context, records []*model.ProductRecord) error
	GetProductsByBatch(ctx context.Context, batchID int64) ([]model.ProductRecord, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]model.ProductRecord, int, error)
	UpdateProductAI(ctx context.Context, id string, features map[string]any, status model.RecordAIStatus, aiError string) error
	ExistingASINs(ctx context.Context, asins []string) (map[string]bool, error)

	// Extraction runs
	CreateExtractionRun(ctx context.Context, run *model.ExtractionRun) (*model.ExtractionRun, error)
	UpdateExtractionRun(ctx context.Context, run *model.ExtractionRun) error
	ListExtractionRuns(ctx context.Context, batchID int64) ([]model.ExtractionRun, error)

	// System logs
	AppendSystemLog(ctx context.Context, entry *model.SystemLog) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// CanonicalBatchStatus maps legacy status aliases to the stored enum.
// Unknown values pass through unchanged so they simply match nothing.
func CanonicalBatchStatus(s string) string {
	switch s {
	case "success", "succeeded":
		return string(model.BatchStatusSucceeded)
	case "fail", "failed":
		return string(model.BatchStatusFailed)
	case "pending":
		return string(model.BatchStatusPending)
	case "running", "processing":
		return string(model.BatchStatusRunning)
	}
	return s
}

// clampPage normalizes 1-indexed pagination inputs.
func clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// sortClause builds the ORDER BY fragment for product listings.
func sortClause(key ProductSortKey, order string) string {
	col, ok := productSortColumns[key]
	if !ok {
		col = "ingested_at"
	}
	dir := "DESC"
	if order == "asc" {
		dir = "ASC"
	}
	// seq keeps ordering stable within equal sort values.
	return col + " " + dir + ", seq ASC"
}
