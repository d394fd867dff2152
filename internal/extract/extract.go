// Package extract runs LLM feature extraction over a batch's records,
// producing an auditable ExtractionRun.
package extract

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/sellerdata/ingest-cli/internal/apperr"
	"github.com/sellerdata/ingest-cli/internal/model"
	"github.com/sellerdata/ingest-cli/internal/resilience"
	"github.com/sellerdata/ingest-cli/internal/store"
	"github.com/sellerdata/ingest-cli/pkg/llm"
)

// Options tunes per-call behavior of the driver.
type Options struct {
	// CallTimeout bounds each LLM request. Default 60s.
	CallTimeout time.Duration
	// MaxAttempts is the total attempts per record. Default 3.
	MaxAttempts int
	// BackoffBase is the first retry delay. Default 1s.
	BackoffBase time.Duration
	// CostPer1K is the dollar rate used for run cost accounting.
	CostPer1K float64
}

func (o Options) withDefaults() Options {
	if o.CallTimeout <= 0 {
		o.CallTimeout = 60 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	return o
}

// Driver enriches batch records with LLM-extracted attributes.
type Driver struct {
	store store.Store
	llm   llm.Client
	opts  Options
}

// NewDriver wires the extraction driver.
func NewDriver(st store.Store, client llm.Client, opts Options) *Driver {
	return &Driver{store: st, llm: client, opts: opts.withDefaults()}
}

// ExtractBatchFeatures runs one extraction pass over every record of the
// batch, sequentially, and records the run. The run always reaches
// completed, even when every record fails; only setup errors (missing batch,
// storage failures) surface as errors.
func (d *Driver) ExtractBatchFeatures(ctx context.Context, batchID int64, targetFields []string) (*model.ExtractionRun, error) {
	if len(targetFields) == 0 {
		return nil, apperr.New(apperr.CodeValidation, "target_fields must not be empty")
	}
	if _, err := d.store.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}

	records, err := d.store.GetProductsByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	run, err := d.store.CreateExtractionRun(ctx, &model.ExtractionRun{
		BatchID:      batchID,
		Status:       model.RunStatusProcessing,
		TargetFields: targetFields,
	})
	if err != nil {
		return nil, err
	}
	if err := d.store.UpdateBatchAI(ctx, batchID, model.AIStatusProcessing, nil); err != nil {
		return nil, err
	}

	started := time.Now()
	var usage llm.Usage
	stats := model.RunStats{Total: len(records)}

	for i := range records {
		rec := &records[i]
		features, callUsage, err := d.extractRecord(ctx, rec, targetFields)
		usage.InputTokens += callUsage.InputTokens
		usage.OutputTokens += callUsage.OutputTokens

		if err != nil {
			stats.Failed++
			if uerr := d.store.UpdateProductAI(ctx, rec.ID, nil, model.RecordAIFailed, err.Error()); uerr != nil {
				zap.L().Error("record ai failure", zap.String("record_id", rec.ID), zap.Error(uerr))
			}
			continue
		}

		stats.Success++
		if uerr := d.store.UpdateProductAI(ctx, rec.ID, features, model.RecordAISuccess, ""); uerr != nil {
			zap.L().Error("record ai update", zap.String("record_id", rec.ID), zap.Error(uerr))
		}
	}

	stats.InputTokens = int(usage.InputTokens)
	stats.OutputTokens = int(usage.OutputTokens)
	stats.TotalTokens = int(usage.Total())
	stats.TotalCost = usage.Cost(d.opts.CostPer1K)
	stats.DurationSeconds = time.Since(started).Seconds()

	now := time.Now().UTC()
	run.Status = model.RunStatusCompleted
	run.Stats = stats
	run.FinishedAt = &now
	if err := d.store.UpdateExtractionRun(ctx, run); err != nil {
		return nil, err
	}

	batchAI := model.AIStatusCompleted
	if stats.Total > 0 && stats.Success == 0 {
		batchAI = model.AIStatusFailed
	}
	summary := map[string]any{
		"total":        stats.Total,
		"success":      stats.Success,
		"failed":       stats.Failed,
		"total_tokens": stats.TotalTokens,
		"total_cost":   stats.TotalCost,
	}
	if err := d.store.UpdateBatchAI(ctx, batchID, batchAI, summary); err != nil {
		return nil, err
	}

	zap.L().Info("extraction run finished",
		zap.Int64("run_id", run.ID),
		zap.Int64("batch_id", batchID),
		zap.Int("total", stats.Total),
		zap.Int("success", stats.Success),
		zap.Int("failed", stats.Failed),
		zap.Int("total_tokens", stats.TotalTokens),
		zap.Float64("total_cost", stats.TotalCost),
	)
	return run, nil
}

// extractRecord performs the bounded, retried LLM call for one record and
// merges the _usage sub-object into the returned features.
func (d *Driver) extractRecord(ctx context.Context, rec *model.ProductRecord, fields []string) (map[string]any, llm.Usage, error) {
	payload, err := json.Marshal(rec.RawPayload)
	if err != nil {
		return nil, llm.Usage{}, apperr.Wrap(err, apperr.CodeLLM, "record payload is not serializable")
	}

	var total llm.Usage
	cfg := resilience.RetryConfig{
		MaxAttempts:    d.opts.MaxAttempts,
		InitialBackoff: d.opts.BackoffBase,
		OnRetry:        resilience.RetryLogger("llm", "extract"),
	}

	features, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (map[string]any, error) {
		callCtx, cancel := context.WithTimeout(ctx, d.opts.CallTimeout)
		defer cancel()

		out, usage, err := d.llm.Extract(callCtx, string(payload), fields)
		total.InputTokens += usage.InputTokens
		total.OutputTokens += usage.OutputTokens
		return out, err
	})
	if err != nil {
		return nil, total, err
	}

	features["_usage"] = map[string]any{
		"input_tokens":  total.InputTokens,
		"output_tokens": total.OutputTokens,
		"total_tokens":  total.Total(),
	}
	return features, total, nil
}
