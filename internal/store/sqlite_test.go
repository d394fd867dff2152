package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellerdata/ingest-cli/internal/apperr"
	"github.com/sellerdata/ingest-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func seedBatch(t *testing.T, s *SQLiteStore, mutate func(*model.ImportBatch)) *model.ImportBatch {
	t.Helper()
	b := &model.ImportBatch{
		Filename:   "products.csv",
		SourceType: model.SourceFile,
		Strategy:   model.StrategyAppend,
	}
	if mutate != nil {
		mutate(b)
	}
	created, err := s.CreateBatch(context.Background(), b)
	require.NoError(t, err)
	return created
}

func seedRecords(t *testing.T, s *SQLiteStore, batchID int64, asins ...string) []*model.ProductRecord {
	t.Helper()
	records := make([]*model.ProductRecord, 0, len(asins))
	for _, asin := range asins {
		records = append(records, &model.ProductRecord{
			BatchID:           batchID,
			ASIN:              asin,
			Title:             "Product " + asin,
			RawPayload:        map[string]any{"asin": asin},
			NormalizedPayload: map[string]any{"asin": asin},
			DataSource:        model.SourceFile,
			ValidationStatus:  model.ValidationValid,
		})
	}
	require.NoError(t, s.CreateProductRecords(context.Background(), records))
	return records
}

func TestCreateAndGetBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := seedBatch(t, s, func(b *model.ImportBatch) {
		b.FileHash = "abc123"
		b.CreatedBy = "tester"
	})
	assert.NotZero(t, b.ID)
	assert.Equal(t, model.BatchStatusPending, b.Status)
	assert.Equal(t, model.AIStatusNone, b.AIStatus)

	got, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "products.csv", got.Filename)
	assert.Equal(t, "abc123", got.FileHash)
	assert.Equal(t, "tester", got.CreatedBy)
	assert.Equal(t, model.StrategyAppend, got.Strategy)
}

func TestGetBatch_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetBatch(context.Background(), 9999)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestFindBatchByHash_SucceededOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	failed := seedBatch(t, s, func(b *model.ImportBatch) { b.FileHash = "deadbeef" })
	require.NoError(t, s.UpdateBatchStatus(ctx, failed.ID, model.BatchStatusFailed, nil))

	// A failed batch with the same hash does not count as a duplicate.
	got, err := s.FindBatchByHash(ctx, "deadbeef")
	require.NoError(t, err)
	assert.Nil(t, got)

	ok := seedBatch(t, s, func(b *model.ImportBatch) { b.FileHash = "deadbeef" })
	require.NoError(t, s.UpdateBatchStatus(ctx, ok.ID, model.BatchStatusSucceeded, nil))

	got, err = s.FindBatchByHash(ctx, "deadbeef")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ok.ID, got.ID)
}

func TestUpdateBatchStatus_TerminalSetsFinishedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := seedBatch(t, s, nil)
	require.NoError(t, s.UpdateBatchStatus(ctx, b.ID, model.BatchStatusRunning, nil))

	got, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusRunning, got.Status)
	assert.NotNil(t, got.StartedAt)
	assert.Nil(t, got.FinishedAt)

	summary := map[string]any{"error": "boom"}
	require.NoError(t, s.UpdateBatchStatus(ctx, b.ID, model.BatchStatusFailed, summary))

	got, err = s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, got.Status)
	assert.NotNil(t, got.FinishedAt)
	assert.Equal(t, "boom", got.FailureSummary["error"])
}

func TestUpdateBatchStatus_MissingBatch(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateBatchStatus(context.Background(), 404, model.BatchStatusFailed, nil)
	require.Error(t, err)
}

func TestUpdateBatchStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := seedBatch(t, s, nil)
	now := time.Now().UTC()
	b.Status = model.BatchStatusSucceeded
	b.TotalRows = 10
	b.SuccessRows = 8
	b.FailedRows = 1
	b.SkippedRows = 1
	b.ColumnsSeen = []string{"asin", "title"}
	b.Progress = &model.Progress{Phase: model.PhaseCompleted, Message: "done"}
	b.FinishedAt = &now
	require.NoError(t, s.UpdateBatchStats(ctx, b))

	got, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.TotalRows)
	assert.Equal(t, 8, got.SuccessRows)
	assert.Equal(t, []string{"asin", "title"}, got.ColumnsSeen)
	require.NotNil(t, got.Progress)
	assert.Equal(t, model.PhaseCompleted, got.Progress.Phase)
	assert.NotNil(t, got.FinishedAt)
}

func TestUpdateBatchProgress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := seedBatch(t, s, nil)
	require.NoError(t, s.UpdateBatchProgress(ctx, b.ID, model.Progress{
		Phase:   model.PhaseFetchingDetails,
		Message: "group 2/5",
	}))

	got, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Progress)
	assert.Equal(t, model.PhaseFetchingDetails, got.Progress.Phase)
	assert.Equal(t, "group 2/5", got.Progress.Message)
}

func TestUpdateBatchAI_KeepsSummaryWhenNil(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := seedBatch(t, s, nil)
	require.NoError(t, s.UpdateBatchAI(ctx, b.ID, model.AIStatusCompleted, map[string]any{"success": float64(3)}))

	// A later status flip without a summary must not wipe the stored one.
	require.NoError(t, s.UpdateBatchAI(ctx, b.ID, model.AIStatusProcessing, nil))

	got, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AIStatusProcessing, got.AIStatus)
	assert.Equal(t, float64(3), got.AISummary["success"])
}

func TestDeleteBatch_CascadesToRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := seedBatch(t, s, nil)
	seedRecords(t, s, b.ID, "B01ABCDEF2", "B01ABCDEF3")

	require.NoError(t, s.DeleteBatch(ctx, b.ID))

	_, err := s.GetBatch(ctx, b.ID)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	records, err := s.GetProductsByBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestListBatches_FilterAndPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b := seedBatch(t, s, nil)
		require.NoError(t, s.UpdateBatchStatus(ctx, b.ID, model.BatchStatusSucceeded, nil))
	}
	seedBatch(t, s, nil) // stays pending

	// Legacy alias "success" resolves to the stored status.
	batches, total, err := s.ListBatches(ctx, BatchFilter{Status: "success"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, batches, 3)

	batches, total, err = s.ListBatches(ctx, BatchFilter{Status: "succeeded", Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, batches, 1)

	// Newest first.
	batches, _, err = s.ListBatches(ctx, BatchFilter{})
	require.NoError(t, err)
	require.Len(t, batches, 4)
	assert.Greater(t, batches[0].ID, batches[3].ID)
}

func TestListBatches_ByASIN(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b1 := seedBatch(t, s, nil)
	seedRecords(t, s, b1.ID, "B01ABCDEF2")
	b2 := seedBatch(t, s, nil)
	seedRecords(t, s, b2.ID, "B01ABCDEF3")

	batches, total, err := s.ListBatches(ctx, BatchFilter{ASIN: "b01abcdef2"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, batches, 1)
	assert.Equal(t, b1.ID, batches[0].ID)
}

func TestCreateProductRecords_PreservesOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := seedBatch(t, s, nil)
	seedRecords(t, s, b.ID, "B01ABCDEF4", "B01ABCDEF2", "B01ABCDEF3")

	records, err := s.GetProductsByBatch(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "B01ABCDEF4", records[0].ASIN)
	assert.Equal(t, "B01ABCDEF2", records[1].ASIN)
	assert.Equal(t, "B01ABCDEF3", records[2].ASIN)
	assert.NotEmpty(t, records[0].ID)
	assert.Equal(t, model.RecordAIPending, records[0].AIStatus)
}

func TestCreateProductRecords_Empty(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateProductRecords(context.Background(), nil))
}

func TestCreateProductRecords_EmptyPayloads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := seedBatch(t, s, nil)
	records := []*model.ProductRecord{
		{BatchID: b.ID, ASIN: "B01ABCDEF2", Title: "x", RawPayload: map[string]any{}, DataSource: model.SourceFile, ValidationStatus: model.ValidationValid},
		{BatchID: b.ID, ASIN: "B01ABCDEF3", Title: "y", DataSource: model.SourceFile, ValidationStatus: model.ValidationValid},
	}

	// The payload columns are NOT NULL; empty or nil maps must still insert.
	require.NoError(t, s.CreateProductRecords(ctx, records))

	got, err := s.GetProductsByBatch(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Empty(t, got[0].RawPayload)
	assert.Empty(t, got[0].NormalizedPayload)
}

func TestCreateProductRecords_DuplicateASINInBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := seedBatch(t, s, nil)
	records := []*model.ProductRecord{
		{BatchID: b.ID, ASIN: "B01ABCDEF2", Title: "x", RawPayload: map[string]any{}, NormalizedPayload: map[string]any{}, DataSource: model.SourceFile, ValidationStatus: model.ValidationValid},
		{BatchID: b.ID, ASIN: "B01ABCDEF2", Title: "y", RawPayload: map[string]any{}, NormalizedPayload: map[string]any{}, DataSource: model.SourceFile, ValidationStatus: model.ValidationValid},
	}

	err := s.CreateProductRecords(ctx, records)
	require.Error(t, err)

	// The transaction rolls back as a whole.
	got, err := s.GetProductsByBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListProducts_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := seedBatch(t, s, nil)
	price1, price2 := 9.99, 149.0
	rating := 4.5
	require.NoError(t, s.CreateProductRecords(ctx, []*model.ProductRecord{
		{BatchID: b.ID, ASIN: "B01ABCDEF2", Title: "Cheap", Price: &price1, Rating: &rating, Category: "Home", RawPayload: map[string]any{}, NormalizedPayload: map[string]any{}, DataSource: model.SourceFile, ValidationStatus: model.ValidationValid},
		{BatchID: b.ID, ASIN: "B01ABCDEF3", Title: "Pricey", Price: &price2, Category: "Electronics", RawPayload: map[string]any{}, NormalizedPayload: map[string]any{}, DataSource: model.SourceFile, ValidationStatus: model.ValidationWarning},
	}))

	min := 100.0
	records, total, err := s.ListProducts(ctx, ProductFilter{Price: Range{Min: &min}})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, "B01ABCDEF3", records[0].ASIN)

	records, total, err = s.ListProducts(ctx, ProductFilter{Status: "warning"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "B01ABCDEF3", records[0].ASIN)

	records, _, err = s.ListProducts(ctx, ProductFilter{Category: "Home"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "B01ABCDEF2", records[0].ASIN)

	records, _, err = s.ListProducts(ctx, ProductFilter{ASIN: "b01abcdef2"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "B01ABCDEF2", records[0].ASIN)
}

func TestListProducts_SortByPriceAsc(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := seedBatch(t, s, nil)
	p1, p2, p3 := 30.0, 10.0, 20.0
	require.NoError(t, s.CreateProductRecords(ctx, []*model.ProductRecord{
		{BatchID: b.ID, ASIN: "B01ABCDEF2", Title: "a", Price: &p1, RawPayload: map[string]any{}, NormalizedPayload: map[string]any{}, DataSource: model.SourceFile, ValidationStatus: model.ValidationValid},
		{BatchID: b.ID, ASIN: "B01ABCDEF3", Title: "b", Price: &p2, RawPayload: map[string]any{}, NormalizedPayload: map[string]any{}, DataSource: model.SourceFile, ValidationStatus: model.ValidationValid},
		{BatchID: b.ID, ASIN: "B01ABCDEF4", Title: "c", Price: &p3, RawPayload: map[string]any{}, NormalizedPayload: map[string]any{}, DataSource: model.SourceFile, ValidationStatus: model.ValidationValid},
	}))

	records, _, err := s.ListProducts(ctx, ProductFilter{SortBy: SortPrice, SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 10.0, *records[0].Price)
	assert.Equal(t, 20.0, *records[1].Price)
	assert.Equal(t, 30.0, *records[2].Price)
}

func TestUpdateProductAI(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := seedBatch(t, s, nil)
	records := seedRecords(t, s, b.ID, "B01ABCDEF2")

	features := map[string]any{"material": "wood", "_usage": map[string]any{"total_tokens": float64(42)}}
	require.NoError(t, s.UpdateProductAI(ctx, records[0].ID, features, model.RecordAISuccess, ""))

	got, err := s.GetProductsByBatch(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.RecordAISuccess, got[0].AIStatus)
	assert.Equal(t, "wood", got[0].AIFeatures["material"])

	require.NoError(t, s.UpdateProductAI(ctx, records[0].ID, nil, model.RecordAIFailed, "llm timeout"))
	got, err = s.GetProductsByBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecordAIFailed, got[0].AIStatus)
	assert.Equal(t, "llm timeout", got[0].AIError)
}

func TestExistingASINs_SucceededBatchesOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	done := seedBatch(t, s, nil)
	seedRecords(t, s, done.ID, "B01ABCDEF2")
	require.NoError(t, s.UpdateBatchStatus(ctx, done.ID, model.BatchStatusSucceeded, nil))

	pending := seedBatch(t, s, nil)
	seedRecords(t, s, pending.ID, "B01ABCDEF3")

	existing, err := s.ExistingASINs(ctx, []string{"b01abcdef2", "B01ABCDEF3", "B01ABCDEF9"})
	require.NoError(t, err)
	assert.True(t, existing["B01ABCDEF2"])
	assert.False(t, existing["B01ABCDEF3"])
	assert.False(t, existing["B01ABCDEF9"])
}

func TestExistingASINs_EmptyInput(t *testing.T) {
	s := newTestStore(t)
	existing, err := s.ExistingASINs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestExtractionRuns_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := seedBatch(t, s, nil)

	first, err := s.CreateExtractionRun(ctx, &model.ExtractionRun{
		BatchID:      b.ID,
		TargetFields: []string{"material", "color"},
		Stats:        model.RunStats{Total: 2},
	})
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.Equal(t, model.RunStatusProcessing, first.Status)

	second, err := s.CreateExtractionRun(ctx, &model.ExtractionRun{
		BatchID:      b.ID,
		TargetFields: []string{"material"},
		Stats:        model.RunStats{Total: 2},
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	second.Status = model.RunStatusCompleted
	second.Stats = model.RunStats{Total: 2, Success: 2, TotalTokens: 840, TotalCost: 0.84}
	second.FinishedAt = &now
	require.NoError(t, s.UpdateExtractionRun(ctx, second))

	runs, err := s.ListExtractionRuns(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// Newest first.
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, model.RunStatusCompleted, runs[0].Status)
	assert.Equal(t, []string{"material"}, runs[0].TargetFields)
	assert.Equal(t, 2, runs[0].Stats.Success)
	assert.Equal(t, 840, runs[0].Stats.TotalTokens)
	assert.NotNil(t, runs[0].FinishedAt)
	assert.Equal(t, first.ID, runs[1].ID)
}

func TestAppendSystemLog_MasksSensitiveContext(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := &model.SystemLog{
		Level:    "info",
		Category: "import",
		Message:  "api import started",
		Context: map[string]any{
			"Authorization": "Bearer secret-token",
			"category_id":   "172282",
			"nested":        map[string]any{"api_key": "k-123", "domain": "US"},
		},
		TraceID: "trace-1",
	}
	require.NoError(t, s.AppendSystemLog(ctx, entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.Timestamp.IsZero())

	var contextJSON string
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT context FROM system_logs WHERE id = ?`, entry.ID).Scan(&contextJSON))
	assert.Contains(t, contextJSON, `"***"`)
	assert.NotContains(t, contextJSON, "secret-token")
	assert.NotContains(t, contextJSON, "k-123")
	assert.Contains(t, contextJSON, "172282")
}

func TestCanonicalBatchStatus(t *testing.T) {
	assert.Equal(t, "succeeded", CanonicalBatchStatus("success"))
	assert.Equal(t, "succeeded", CanonicalBatchStatus("succeeded"))
	assert.Equal(t, "failed", CanonicalBatchStatus("fail"))
	assert.Equal(t, "running", CanonicalBatchStatus("processing"))
	assert.Equal(t, "weird", CanonicalBatchStatus("weird"))
}

func TestClampPage(t *testing.T) {
	page, size := clampPage(0, 0)
	assert.Equal(t, 1, page)
	assert.Equal(t, DefaultPageSize, size)

	page, size = clampPage(3, 500)
	assert.Equal(t, 3, page)
	assert.Equal(t, MaxPageSize, size)
}
