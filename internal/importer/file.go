// Package importer contains the two ingestion drivers: file uploads and the
// remote catalog API. Both produce ImportBatch rows with identical
// persistence guarantees.
package importer

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/sellerdata/ingest-cli/internal/apperr"
	"github.com/sellerdata/ingest-cli/internal/importcfg"
	"github.com/sellerdata/ingest-cli/internal/model"
	"github.com/sellerdata/ingest-cli/internal/normalize"
	"github.com/sellerdata/ingest-cli/internal/reader"
	"github.com/sellerdata/ingest-cli/internal/storage"
	"github.com/sellerdata/ingest-cli/internal/store"
)

// FileDriver ingests one uploaded spreadsheet into a batch.
type FileDriver struct {
	store store.Store
	files *storage.Manager
	base  importcfg.Options
}

// NewFileDriver wires the file import driver.
func NewFileDriver(st store.Store, files *storage.Manager, base importcfg.Options) *FileDriver {
	return &FileDriver{store: st, files: files, base: base}
}

// UploadRequest carries one upload and its call-site options.
type UploadRequest struct {
	Filename  string
	Data      []byte
	Strategy  model.ImportStrategy
	Overrides importcfg.Overrides
	CreatedBy string
}

// missingRequiredReason is the per-row failure reason recorded when a
// required field is absent. The wording is load-bearing: operator tooling
// matches on it.
const missingRequiredReason = "缺少必填字段: %s"

// HandleUpload runs the full file ingestion algorithm and returns the
// terminal batch. A duplicate fingerprint is rejected before any batch row
// exists.
func (d *FileDriver) HandleUpload(ctx context.Context, req UploadRequest) (*model.ImportBatch, error) {
	if len(req.Data) == 0 {
		return nil, apperr.New(apperr.CodeValidation, "missing file")
	}
	if req.Strategy == "" {
		req.Strategy = model.StrategyAppend
	}

	fingerprint := storage.Fingerprint(req.Data)
	if prior, err := d.store.FindBatchByHash(ctx, fingerprint); err != nil {
		return nil, err
	} else if prior != nil {
		return nil, apperr.Newf(apperr.CodeDuplicateFile, "file already imported by batch %d", prior.ID).
			WithDetails(map[string]any{"batch_id": prior.ID})
	}

	storagePath, err := d.files.SaveUpload(req.Data, req.Filename)
	if err != nil {
		return nil, err
	}

	batch, err := d.store.CreateBatch(ctx, &model.ImportBatch{
		Filename:    req.Filename,
		StoragePath: storagePath,
		SourceType:  model.SourceFile,
		Strategy:    req.Strategy,
		Status:      model.BatchStatusPending,
		FileHash:    fingerprint,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		return nil, err
	}
	if err := d.store.UpdateBatchStatus(ctx, batch.ID, model.BatchStatusRunning, nil); err != nil {
		return nil, err
	}
	batch.Status = model.BatchStatusRunning

	result, err := reader.Read(req.Data, req.Filename, d.base.Merge(req.Overrides).SheetName)
	if err != nil {
		d.failBatch(ctx, batch, err)
		return batch, err
	}

	opts := d.base.Merge(req.Overrides)
	outcome, err := d.ingestRows(ctx, batch, result, opts)
	if err != nil {
		d.failBatch(ctx, batch, err)
		return batch, err
	}

	if err := d.finishBatch(ctx, batch, result, outcome); err != nil {
		return batch, err
	}
	d.audit(ctx, batch)
	return batch, nil
}

// rowOutcome accumulates per-row results of one ingestion pass.
type rowOutcome struct {
	records  []*model.ProductRecord
	failures []model.FailedRow
	total    int
	skipped  int
}

// ingestRows normalizes every data row and applies the import strategy.
// Abort policy failures surface as errors; skip policy failures accumulate.
func (d *FileDriver) ingestRows(ctx context.Context, batch *model.ImportBatch, result *reader.Result, opts importcfg.Options) (*rowOutcome, error) {
	out := &rowOutcome{}

	var existing map[string]bool
	if batch.Strategy == model.StrategyUpdateOnly {
		asins := collectASINs(result, opts)
		var err error
		existing, err = d.store.ExistingASINs(ctx, asins)
		if err != nil {
			return nil, err
		}
	}

	// Position of each buffered record by ASIN, for overwrite dedup.
	byASIN := make(map[string]int)

	// total counts every non-empty data row, so at the end
	// total == success + failed + skipped.
	for i, row := range result.Rows {
		if reader.RowIsEmpty(row) {
			continue
		}
		out.total++
		rowNumber := i + 1

		raw := rowToMap(result.Header, row)
		rec := normalize.Normalize(raw, model.SourceFile, opts)

		if missing := missingRequired(rec, opts.RequiredFields); missing != "" {
			reason := apperr.Newf(apperr.CodeMissingRequired, missingRequiredReason, missing)
			if opts.OnMissingRequired == importcfg.MissingAbort {
				return nil, reason
			}
			out.failures = append(out.failures, model.FailedRow{
				RowNumber: rowNumber,
				ASIN:      rec.ASIN,
				Reason:    reason.Message,
				RawValues: marshalRaw(raw),
			})
			continue
		}

		rec.BatchID = batch.ID

		switch batch.Strategy {
		case model.StrategyUpdateOnly:
			if !existing[rec.ASIN] {
				out.skipped++
				continue
			}
			fallthrough
		case model.StrategyAppend:
			if _, seen := byASIN[rec.ASIN]; seen {
				// First occurrence wins; later in-file duplicates are skipped.
				out.skipped++
				continue
			}
		case model.StrategyOverwrite:
			if pos, seen := byASIN[rec.ASIN]; seen {
				// Last occurrence wins; the replaced occurrence counts as skipped.
				out.records[pos] = rec
				out.skipped++
				continue
			}
		}

		byASIN[rec.ASIN] = len(out.records)
		out.records = append(out.records, rec)
	}

	if len(out.records) > 0 {
		if err := d.store.CreateProductRecords(ctx, out.records); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// finishBatch writes the failure artifact and the terminal batch row. Any
// row failure makes the whole batch failed.
func (d *FileDriver) finishBatch(ctx context.Context, batch *model.ImportBatch, result *reader.Result, out *rowOutcome) error {
	if len(out.failures) > 0 {
		artifact, err := d.files.WriteFailureCSV(batch.ID, out.failures)
		if err != nil {
			return err
		}
		batch.FailureSummary = map[string]any{
			"failed_rows": len(out.failures),
			"artifact":    artifact,
			"failures":    out.failures,
		}
	}

	batch.TotalRows = out.total
	batch.SuccessRows = len(out.records)
	batch.FailedRows = len(out.failures)
	batch.SkippedRows = out.skipped
	batch.ColumnsSeen = nonEmptyColumns(result.Header)

	batch.Status = model.BatchStatusSucceeded
	if len(out.failures) > 0 {
		batch.Status = model.BatchStatusFailed
	}
	now := time.Now().UTC()
	batch.FinishedAt = &now

	return d.store.UpdateBatchStats(ctx, batch)
}

// failBatch records a terminal failure caused by a batch-level error.
func (d *FileDriver) failBatch(ctx context.Context, batch *model.ImportBatch, cause error) {
	summary := map[string]any{"error": cause.Error()}
	if code := apperr.CodeOf(cause); code != "" {
		summary["code"] = string(code)
	}
	if err := d.store.UpdateBatchStatus(ctx, batch.ID, model.BatchStatusFailed, summary); err != nil {
		zap.L().Error("mark batch failed", zap.Int64("batch_id", batch.ID), zap.Error(err))
	}
	batch.Status = model.BatchStatusFailed
	batch.FailureSummary = summary
	d.audit(ctx, batch)
}

func (d *FileDriver) audit(ctx context.Context, batch *model.ImportBatch) {
	zap.L().Info("file import finished",
		zap.Int64("batch_id", batch.ID),
		zap.String("filename", batch.Filename),
		zap.String("status", string(batch.Status)),
		zap.Int("total", batch.TotalRows),
		zap.Int("success", batch.SuccessRows),
		zap.Int("failed", batch.FailedRows),
		zap.Int("skipped", batch.SkippedRows),
	)
	entry := &model.SystemLog{
		Level:    "info",
		Category: "import",
		Message:  "file import finished",
		Context: map[string]any{
			"batch_id": batch.ID,
			"filename": batch.Filename,
			"status":   string(batch.Status),
			"total":    batch.TotalRows,
			"success":  batch.SuccessRows,
			"failed":   batch.FailedRows,
		},
	}
	if err := d.store.AppendSystemLog(ctx, entry); err != nil {
		zap.L().Warn("append system log", zap.Error(err))
	}
}

// rowToMap zips header names with cells, ignoring unnamed columns.
func rowToMap(header []string, row []string) map[string]any {
	m := make(map[string]any, len(header))
	for i, name := range header {
		if name == "" || i >= len(row) {
			continue
		}
		m[name] = row[i]
	}
	return m
}

// missingRequired returns the first required field absent from the
// normalized payload, in configuration order.
func missingRequired(rec *model.ProductRecord, required []string) string {
	for _, field := range required {
		if _, ok := rec.NormalizedPayload[field]; !ok {
			return field
		}
	}
	return ""
}

// collectASINs pre-scans rows for the update_only existence check.
func collectASINs(result *reader.Result, opts importcfg.Options) []string {
	var asins []string
	for _, row := range result.Rows {
		if reader.RowIsEmpty(row) {
			continue
		}
		rec := normalize.Normalize(rowToMap(result.Header, row), model.SourceFile, opts)
		if rec.ASIN != "" {
			asins = append(asins, rec.ASIN)
		}
	}
	return asins
}

func nonEmptyColumns(header []string) []string {
	out := make([]string, 0, len(header))
	for _, h := range header {
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

func marshalRaw(raw map[string]any) string {
	b, err := json.Marshal(raw)
	if err != nil {
		return "{}"
	}
	return string(b)
}
