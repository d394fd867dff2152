package importer

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellerdata/ingest-cli/internal/apperr"
	"github.com/sellerdata/ingest-cli/internal/importcfg"
	"github.com/sellerdata/ingest-cli/internal/model"
	"github.com/sellerdata/ingest-cli/internal/store"
	"github.com/sellerdata/ingest-cli/pkg/catalog"
)

// fakeCatalog scripts remote responses for driver tests.
type fakeCatalog struct {
	listing      []catalog.CategoryItem
	details      map[string]map[string]any
	categoryErr  error
	productErr   error
	productCalls []string
}

func (f *fakeCatalog) CategoryRequest(ctx context.Context, nodeID, domain string) (*catalog.CategoryResponse, error) {
	if f.categoryErr != nil {
		return nil, f.categoryErr
	}
	return &catalog.CategoryResponse{CategoryName: "Fixture", Items: f.listing}, nil
}

func (f *fakeCatalog) ProductRequest(ctx context.Context, asins string, trend bool, domain string) (*catalog.ProductResponse, error) {
	f.productCalls = append(f.productCalls, asins)
	if f.productErr != nil {
		return nil, f.productErr
	}
	resp := &catalog.ProductResponse{}
	for _, asin := range splitASINs(asins) {
		if d, ok := f.details[asin]; ok {
			resp.Items = append(resp.Items, d)
		}
	}
	return resp, nil
}

func (f *fakeCatalog) Quota() catalog.QuotaInfo { return catalog.QuotaInfo{} }

func splitASINs(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func newAPIDriver(f *fixture, remote catalog.Client) *APIDriver {
	d := NewAPIDriver(f.store, f.files, remote, importcfg.Default(), "US")
	d.backoff = 0
	return d
}

func TestAPIImport_TestMode(t *testing.T) {
	f := newFixture(t)
	d := newAPIDriver(f, nil)
	ctx := context.Background()

	batchID, err := d.ImportFromInput(ctx, APIImportRequest{
		Input:    "172282",
		Type:     InputCategory,
		TestMode: true,
	})
	require.NoError(t, err)

	batch, err := f.store.GetBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusSucceeded, batch.Status)
	assert.Equal(t, model.SourceAPI, batch.SourceType)
	assert.Equal(t, 10, batch.TotalRows)
	assert.Equal(t, 10, batch.SuccessRows)
	assert.Equal(t, 0, batch.FailedRows)
	require.NotNil(t, batch.Progress)
	assert.Equal(t, model.PhaseCompleted, batch.Progress.Phase)

	records, err := f.store.GetProductsByBatch(ctx, batchID)
	require.NoError(t, err)
	require.Len(t, records, 10)
	for i, rec := range records {
		assert.Equal(t, fmt.Sprintf("B0TEST%04d", i+1), rec.ASIN)
		require.NotNil(t, rec.Price)
		assert.Equal(t, 99.99, *rec.Price)
		require.NotNil(t, rec.Rating)
		assert.Equal(t, 4.5, *rec.Rating)
		assert.Equal(t, "USD", rec.Currency)
		assert.Equal(t, model.SourceAPI, rec.DataSource)
	}

	// The workbook artifact lands under api_imports/.
	assert.Contains(t, batch.StoragePath, "api_import_172282_")
	_, err = os.Stat(f.files.Abs(batch.StoragePath))
	assert.NoError(t, err)
}

func TestAPIImport_TestModeASINInput(t *testing.T) {
	f := newFixture(t)
	d := newAPIDriver(f, nil)
	ctx := context.Background()

	batchID, err := d.ImportFromInput(ctx, APIImportRequest{
		Input:    "B01ABCDEF2",
		TestMode: true,
	})
	require.NoError(t, err)

	batch, err := f.store.GetBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusSucceeded, batch.Status)
	// ASIN inputs resolve to the sentinel category in test mode.
	assert.Contains(t, batch.StoragePath, "api_import_0000000000_")
}

func TestAPIImport_Limit(t *testing.T) {
	f := newFixture(t)
	d := newAPIDriver(f, nil)
	ctx := context.Background()

	batchID, err := d.ImportFromInput(ctx, APIImportRequest{
		Input:    "172282",
		Type:     InputCategory,
		TestMode: true,
		Limit:    3,
	})
	require.NoError(t, err)

	batch, err := f.store.GetBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, 3, batch.SuccessRows)
}

func TestAPIImport_GroupsDetailCalls(t *testing.T) {
	f := newFixture(t)

	remote := &fakeCatalog{details: map[string]map[string]any{}}
	for i := 0; i < 12; i++ {
		asin := fmt.Sprintf("B0LIVE%04d", i+1)
		remote.listing = append(remote.listing, catalog.CategoryItem{ASIN: asin, Rank: i + 1})
		remote.details[asin] = map[string]any{
			"asin": asin, "title": "Item " + asin, "price": "10.00", "currency": "USD",
		}
	}

	d := newAPIDriver(f, remote)
	ctx := context.Background()

	batchID, err := d.ImportFromInput(ctx, APIImportRequest{Input: "1722828011"})
	require.NoError(t, err)

	// Twelve ASINs split into a full group of ten and a remainder of two.
	require.Len(t, remote.productCalls, 2)
	assert.Len(t, splitASINs(remote.productCalls[0]), 10)
	assert.Len(t, splitASINs(remote.productCalls[1]), 2)

	batch, err := f.store.GetBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusSucceeded, batch.Status)
	assert.Equal(t, 12, batch.SuccessRows)
}

func TestAPIImport_PerRecordFailuresStillSucceed(t *testing.T) {
	f := newFixture(t)

	remote := &fakeCatalog{
		listing: []catalog.CategoryItem{
			{ASIN: "B0LIVE0001", Rank: 1},
			{ASIN: "B0LIVE0002", Rank: 2},
		},
		details: map[string]map[string]any{
			"B0LIVE0001": {"asin": "B0LIVE0001", "title": "Good", "currency": "USD"},
			"B0LIVE0002": {"title": "No ASIN payload"},
		},
	}

	d := newAPIDriver(f, remote)
	ctx := context.Background()

	batchID, err := d.ImportFromInput(ctx, APIImportRequest{Input: "1722828011"})
	require.NoError(t, err)

	batch, err := f.store.GetBatch(ctx, batchID)
	require.NoError(t, err)
	// API batches with per-record failures still succeed.
	assert.Equal(t, model.BatchStatusSucceeded, batch.Status)
	assert.Equal(t, 2, batch.TotalRows)
	assert.Equal(t, 1, batch.SuccessRows)
	assert.Equal(t, 1, batch.FailedRows)
	assert.Equal(t, 0, batch.SkippedRows)
	require.NotNil(t, batch.FailureSummary)
}

func TestAPIImport_DuplicateDetailsCountedAsSkipped(t *testing.T) {
	f := newFixture(t)

	remote := &fakeCatalog{
		listing: []catalog.CategoryItem{
			{ASIN: "B0LIVE0001", Rank: 1},
			{ASIN: "B0LIVE0001", Rank: 2},
		},
		details: map[string]map[string]any{
			"B0LIVE0001": {"asin": "B0LIVE0001", "title": "Good", "currency": "USD"},
		},
	}

	d := newAPIDriver(f, remote)
	ctx := context.Background()

	batchID, err := d.ImportFromInput(ctx, APIImportRequest{Input: "1722828011"})
	require.NoError(t, err)

	batch, err := f.store.GetBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.TotalRows)
	assert.Equal(t, 1, batch.SuccessRows)
	assert.Equal(t, 1, batch.SkippedRows)
	assert.Equal(t, batch.TotalRows, batch.SuccessRows+batch.FailedRows+batch.SkippedRows)
}

func TestAPIImport_RemoteFailureFailsBatch(t *testing.T) {
	f := newFixture(t)

	remote := &fakeCatalog{
		categoryErr: &catalog.RemoteError{Code: 4290, Message: "quota exhausted"},
	}
	d := newAPIDriver(f, remote)
	ctx := context.Background()

	created, process, err := d.Begin(ctx, APIImportRequest{Input: "1722828011"})
	require.NoError(t, err)

	err = process(ctx)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeRemote, apperr.CodeOf(err))
	assert.Contains(t, err.Error(), "quota exhausted")

	batch, gerr := f.store.GetBatch(ctx, created.ID)
	require.NoError(t, gerr)
	assert.Equal(t, model.BatchStatusFailed, batch.Status)
	assert.Equal(t, "REMOTE_ERROR", batch.FailureSummary["code"])
}

func TestAPIImport_UnrecognizedInput(t *testing.T) {
	f := newFixture(t)
	d := newAPIDriver(f, nil)

	_, err := d.ImportFromInput(context.Background(), APIImportRequest{Input: "gibberish"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeUnrecognizedInput, apperr.CodeOf(err))

	// Recognition fails before any batch row exists.
	_, total, err := f.store.ListBatches(context.Background(), store.BatchFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}
