package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sellerdata/ingest-cli/internal/apperr"
	"github.com/sellerdata/ingest-cli/internal/importcfg"
	"github.com/sellerdata/ingest-cli/internal/model"
	"github.com/sellerdata/ingest-cli/internal/normalize"
	"github.com/sellerdata/ingest-cli/internal/storage"
	"github.com/sellerdata/ingest-cli/internal/store"
	"github.com/sellerdata/ingest-cli/pkg/catalog"
)

const (
	// detailGroupSize caps ASINs per detail call.
	detailGroupSize = 10
	// testModeListSize is the synthetic listing length before truncation.
	testModeListSize = 100
	// testModeLimit caps inserted rows in test mode.
	testModeLimit = 10
)

// APIDriver ingests a batch from the remote catalog.
type APIDriver struct {
	store   store.Store
	files   *storage.Manager
	remote  catalog.Client
	base    importcfg.Options
	domain  string
	backoff time.Duration // inter-group delay between detail calls
}

// NewAPIDriver wires the API import driver. remote may be nil only when every
// request runs in test mode.
func NewAPIDriver(st store.Store, files *storage.Manager, remote catalog.Client, base importcfg.Options, defaultDomain string) *APIDriver {
	return &APIDriver{
		store:   st,
		files:   files,
		remote:  remote,
		base:    base,
		domain:  defaultDomain,
		backoff: time.Second,
	}
}

// APIImportRequest is one API-import invocation.
type APIImportRequest struct {
	Input     string
	Type      InputKind // optional; empty means recognize
	Domain    string
	TestMode  bool
	Limit     int
	CreatedBy string
}

// ImportFromInput resolves the input to a category, fetches its best-seller
// listing and details, persists the records, and generates the workbook
// artifact. It returns the id of the created batch.
func (d *APIDriver) ImportFromInput(ctx context.Context, req APIImportRequest) (int64, error) {
	batch, process, err := d.Begin(ctx, req)
	if err != nil {
		return 0, err
	}
	return batch.ID, process(ctx)
}

// Begin validates the input and creates the running batch, returning the
// processing step separately so callers can run it in the background.
func (d *APIDriver) Begin(ctx context.Context, req APIImportRequest) (*model.ImportBatch, func(ctx context.Context) error, error) {
	kind, value, err := RecognizeInput(req.Input, req.Type)
	if err != nil {
		return nil, nil, err
	}
	domain := req.Domain
	if domain == "" {
		domain = d.domain
	}

	batch, err := d.store.CreateBatch(ctx, &model.ImportBatch{
		Filename:   req.Input,
		SourceType: model.SourceAPI,
		Strategy:   model.StrategyAppend,
		Status:     model.BatchStatusPending,
		CreatedBy:  req.CreatedBy,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := d.store.UpdateBatchStatus(ctx, batch.ID, model.BatchStatusRunning, nil); err != nil {
		return nil, nil, err
	}
	batch.Status = model.BatchStatusRunning

	process := func(ctx context.Context) error {
		if err := d.run(ctx, batch, kind, value, domain, req); err != nil {
			d.failBatch(ctx, batch, err)
			return err
		}
		return nil
	}
	return batch, process, nil
}

func (d *APIDriver) run(ctx context.Context, batch *model.ImportBatch, kind InputKind, value, domain string, req APIImportRequest) error {
	d.progress(ctx, batch.ID, model.PhasePreparing, "resolving input")

	categoryID, err := d.resolveCategory(ctx, kind, value, domain, req.TestMode)
	if err != nil {
		return err
	}

	d.progress(ctx, batch.ID, model.PhaseFetchingList, "fetching best-seller listing")
	asins, err := d.fetchList(ctx, categoryID, domain, req.TestMode)
	if err != nil {
		return err
	}

	if req.Limit > 0 && req.Limit < len(asins) {
		asins = asins[:req.Limit]
	}
	if req.TestMode && len(asins) > testModeLimit {
		asins = asins[:testModeLimit]
	}

	d.progress(ctx, batch.ID, model.PhaseFetchingDetails, fmt.Sprintf("fetching %d product details", len(asins)))
	details, err := d.fetchDetails(ctx, asins, categoryID, domain, req.TestMode)
	if err != nil {
		return err
	}

	d.progress(ctx, batch.ID, model.PhaseSaving, "persisting records")
	records, failures, skipped := d.normalizeDetails(batch.ID, details)
	if len(records) > 0 {
		if err := d.store.CreateProductRecords(ctx, records); err != nil {
			return err
		}
	}

	d.progress(ctx, batch.ID, model.PhaseGeneratingExcel, "generating workbook")
	artifact, err := d.files.WriteAPIExport(categoryID, records, time.Now())
	if err != nil {
		return err
	}

	batch.StoragePath = artifact
	batch.TotalRows = len(details)
	batch.SuccessRows = len(records)
	batch.FailedRows = len(failures)
	batch.SkippedRows = skipped
	if len(failures) > 0 {
		batch.FailureSummary = map[string]any{
			"failed_rows": len(failures),
			"failures":    failures,
		}
	}
	// An API batch with per-record failures still succeeds; only batch-level
	// errors fail it.
	batch.Status = model.BatchStatusSucceeded
	now := time.Now().UTC()
	batch.FinishedAt = &now
	batch.Progress = &model.Progress{Phase: model.PhaseCompleted, Message: "completed"}

	if err := d.store.UpdateBatchStats(ctx, batch); err != nil {
		return err
	}
	d.audit(ctx, batch, categoryID)
	return nil
}

// resolveCategory turns an ASIN input into its category node via one product
// fetch; category inputs pass through.
func (d *APIDriver) resolveCategory(ctx context.Context, kind InputKind, value, domain string, testMode bool) (string, error) {
	if kind == InputCategory {
		return value, nil
	}
	if testMode {
		return "0000000000", nil
	}

	resp, err := d.remote.ProductRequest(ctx, value, false, domain)
	if err != nil {
		return "", remoteErr(err)
	}
	if len(resp.Items) == 0 {
		return "", apperr.Newf(apperr.CodeRemote, "no product data for asin %s", value)
	}
	if node, ok := resp.Items[0]["category_node"].(string); ok && node != "" {
		return node, nil
	}
	return "", apperr.Newf(apperr.CodeRemote, "product %s carries no category node", value)
}

func (d *APIDriver) fetchList(ctx context.Context, categoryID, domain string, testMode bool) ([]string, error) {
	if testMode {
		asins := make([]string, testModeListSize)
		for i := range asins {
			asins[i] = fmt.Sprintf("B0TEST%04d", i+1)
		}
		return asins, nil
	}

	resp, err := d.remote.CategoryRequest(ctx, categoryID, domain)
	if err != nil {
		return nil, remoteErr(err)
	}
	asins := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ASIN != "" {
			asins = append(asins, item.ASIN)
		}
	}
	return asins, nil
}

// fetchDetails issues one detail call per group of at most ten ASINs with a
// fixed sleep between groups.
func (d *APIDriver) fetchDetails(ctx context.Context, asins []string, categoryID, domain string, testMode bool) ([]map[string]any, error) {
	var details []map[string]any
	for start := 0; start < len(asins); start += detailGroupSize {
		end := start + detailGroupSize
		if end > len(asins) {
			end = len(asins)
		}
		group := asins[start:end]

		if start > 0 {
			timer := time.NewTimer(d.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		if testMode {
			for _, asin := range group {
				details = append(details, syntheticDetail(asin, categoryID))
			}
			continue
		}

		resp, err := d.remote.ProductRequest(ctx, strings.Join(group, ","), true, domain)
		if err != nil {
			return nil, remoteErr(err)
		}
		details = append(details, resp.Items...)
	}
	return details, nil
}

// syntheticDetail is the deterministic test-mode payload.
func syntheticDetail(asin, categoryID string) map[string]any {
	return map[string]any{
		"asin":     asin,
		"title":    "Test Product " + asin,
		"price":    "99.99",
		"rating":   "4.5",
		"currency": "USD",
		"category": categoryID,
		"reviews":  "100",
	}
}

// normalizeDetails converts detail payloads to records; payloads that fail
// normalization become per-record failures, duplicate ASINs count as skipped.
func (d *APIDriver) normalizeDetails(batchID int64, details []map[string]any) ([]*model.ProductRecord, []model.FailedRow, int) {
	var records []*model.ProductRecord
	var failures []model.FailedRow
	var skipped int
	seen := make(map[string]bool)

	for i, detail := range details {
		rec := normalize.Normalize(detail, model.SourceAPI, d.base)
		if rec.ASIN == "" || rec.ValidationStatus == model.ValidationError {
			reason := "normalization failed"
			if msg, ok := firstMessage(rec.ValidationMessages); ok {
				reason = msg
			}
			failures = append(failures, model.FailedRow{
				RowNumber: i + 1,
				ASIN:      rec.ASIN,
				Reason:    reason,
				RawValues: marshalRaw(detail),
			})
			continue
		}
		if seen[rec.ASIN] {
			skipped++
			continue
		}
		seen[rec.ASIN] = true
		rec.BatchID = batchID
		records = append(records, rec)
	}
	return records, failures, skipped
}

func (d *APIDriver) progress(ctx context.Context, batchID int64, phase model.ImportPhase, message string) {
	if err := d.store.UpdateBatchProgress(ctx, batchID, model.Progress{Phase: phase, Message: message}); err != nil {
		zap.L().Warn("update batch progress", zap.Int64("batch_id", batchID), zap.Error(err))
	}
}

func (d *APIDriver) failBatch(ctx context.Context, batch *model.ImportBatch, cause error) {
	summary := map[string]any{
		"error": cause.Error(),
		"code":  string(apperr.CodeOf(cause)),
	}
	if err := d.store.UpdateBatchStatus(ctx, batch.ID, model.BatchStatusFailed, summary); err != nil {
		zap.L().Error("mark batch failed", zap.Int64("batch_id", batch.ID), zap.Error(err))
	}
	batch.Status = model.BatchStatusFailed
	batch.FailureSummary = summary
}

func (d *APIDriver) audit(ctx context.Context, batch *model.ImportBatch, categoryID string) {
	zap.L().Info("api import finished",
		zap.Int64("batch_id", batch.ID),
		zap.String("category", categoryID),
		zap.Int("total", batch.TotalRows),
		zap.Int("success", batch.SuccessRows),
		zap.Int("failed", batch.FailedRows),
	)
	entry := &model.SystemLog{
		Level:    "info",
		Category: "api_import",
		Message:  "api import finished",
		Context: map[string]any{
			"batch_id": batch.ID,
			"category": categoryID,
			"total":    batch.TotalRows,
			"success":  batch.SuccessRows,
			"failed":   batch.FailedRows,
		},
	}
	if err := d.store.AppendSystemLog(ctx, entry); err != nil {
		zap.L().Warn("append system log", zap.Error(err))
	}
}

// remoteErr maps client failures onto the REMOTE_ERROR code, preserving the
// remote message.
func remoteErr(err error) error {
	var re *catalog.RemoteError
	if errors.As(err, &re) {
		return apperr.Wrap(err, apperr.CodeRemote, re.Message)
	}
	return apperr.Wrap(err, apperr.CodeRemote, "remote catalog request failed")
}

func firstMessage(messages map[string]string) (string, bool) {
	for _, field := range model.CanonicalFields {
		if msg, ok := messages[field]; ok {
			return msg, true
		}
	}
	for _, msg := range messages {
		return msg, true
	}
	return "", false
}
