package extract

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellerdata/ingest-cli/internal/apperr"
	"github.com/sellerdata/ingest-cli/internal/model"
	"github.com/sellerdata/ingest-cli/internal/resilience"
	"github.com/sellerdata/ingest-cli/internal/store"
	"github.com/sellerdata/ingest-cli/pkg/llm"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func seedBatch(t *testing.T, s *store.SQLiteStore, asins ...string) *model.ImportBatch {
	t.Helper()
	ctx := context.Background()
	batch, err := s.CreateBatch(ctx, &model.ImportBatch{
		Filename:   "products.csv",
		SourceType: model.SourceFile,
		Strategy:   model.StrategyAppend,
	})
	require.NoError(t, err)

	records := make([]*model.ProductRecord, 0, len(asins))
	for _, asin := range asins {
		records = append(records, &model.ProductRecord{
			BatchID:           batch.ID,
			ASIN:              asin,
			Title:             "Product " + asin,
			RawPayload:        map[string]any{"asin": asin, "title": "Product " + asin},
			NormalizedPayload: map[string]any{"asin": asin},
			DataSource:        model.SourceFile,
			ValidationStatus:  model.ValidationValid,
		})
	}
	require.NoError(t, s.CreateProductRecords(ctx, records))
	return batch
}

func fastOpts() Options {
	return Options{
		CallTimeout: time.Second,
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		CostPer1K:   0.01,
	}
}

func TestExtractBatchFeatures_PartialFailure(t *testing.T) {
	s := newTestStore(t)
	batch := seedBatch(t, s, "B01ABCDEF2", "B01ABCDEF3", "B01ABCDEF4")
	ctx := context.Background()

	mock := &llm.MockClient{Responses: []llm.MockResponse{
		{Features: map[string]any{"material": "wood"}, Usage: llm.Usage{InputTokens: 100, OutputTokens: 50}},
		{Err: apperr.New(apperr.CodeLLM, "model returned no JSON object")},
		{Features: map[string]any{"material": "steel"}, Usage: llm.Usage{InputTokens: 100, OutputTokens: 50}},
	}}

	run, err := NewDriver(s, mock, fastOpts()).ExtractBatchFeatures(ctx, batch.ID, []string{"material"})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, 3, run.Stats.Total)
	assert.Equal(t, 2, run.Stats.Success)
	assert.Equal(t, 1, run.Stats.Failed)
	assert.Equal(t, 300, run.Stats.TotalTokens)
	assert.InDelta(t, 0.003, run.Stats.TotalCost, 1e-9)
	assert.NotNil(t, run.FinishedAt)

	// A malformed response is not retried; three records, three calls.
	assert.Len(t, mock.Calls, 3)
	assert.Equal(t, []string{"material"}, mock.Calls[0].Fields)

	records, err := s.GetProductsByBatch(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, model.RecordAISuccess, records[0].AIStatus)
	assert.Equal(t, "wood", records[0].AIFeatures["material"])
	usage, ok := records[0].AIFeatures["_usage"].(map[string]any)
	require.True(t, ok, "usage accounting is merged into the features")
	assert.Equal(t, float64(150), usage["total_tokens"])

	assert.Equal(t, model.RecordAIFailed, records[1].AIStatus)
	assert.Contains(t, records[1].AIError, "no JSON object")
	assert.Nil(t, records[1].AIFeatures)

	assert.Equal(t, model.RecordAISuccess, records[2].AIStatus)

	// A partial failure still completes the batch.
	got, err := s.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AIStatusCompleted, got.AIStatus)
	assert.Equal(t, float64(2), got.AISummary["success"])
	assert.Equal(t, float64(1), got.AISummary["failed"])
}

func TestExtractBatchFeatures_TransientRetries(t *testing.T) {
	s := newTestStore(t)
	batch := seedBatch(t, s, "B01ABCDEF2")
	ctx := context.Background()

	mock := &llm.MockClient{Responses: []llm.MockResponse{
		{Err: resilience.NewTransientError(apperr.New(apperr.CodeLLM, "overloaded"), 529), Usage: llm.Usage{InputTokens: 10}},
		{Err: resilience.NewTransientError(apperr.New(apperr.CodeLLM, "overloaded"), 529), Usage: llm.Usage{InputTokens: 10}},
		{Features: map[string]any{"color": "red"}, Usage: llm.Usage{InputTokens: 100, OutputTokens: 40}},
	}}

	run, err := NewDriver(s, mock, fastOpts()).ExtractBatchFeatures(ctx, batch.ID, []string{"color"})
	require.NoError(t, err)

	// Two transient failures then success: exactly three invocations.
	assert.Len(t, mock.Calls, 3)
	assert.Equal(t, 1, run.Stats.Success)
	assert.Equal(t, 0, run.Stats.Failed)

	// Tokens burned on failed attempts still count.
	assert.Equal(t, 120, run.Stats.InputTokens)
	assert.Equal(t, 40, run.Stats.OutputTokens)

	records, err := s.GetProductsByBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, "red", records[0].AIFeatures["color"])
}

func TestExtractBatchFeatures_RetriesExhausted(t *testing.T) {
	s := newTestStore(t)
	batch := seedBatch(t, s, "B01ABCDEF2")
	ctx := context.Background()

	mock := &llm.MockClient{Responses: []llm.MockResponse{
		{Err: resilience.NewTransientError(apperr.New(apperr.CodeLLM, "overloaded"), 529)},
	}}

	run, err := NewDriver(s, mock, fastOpts()).ExtractBatchFeatures(ctx, batch.ID, []string{"color"})
	require.NoError(t, err)

	assert.Len(t, mock.Calls, 3, "attempts are capped")
	assert.Equal(t, model.RunStatusCompleted, run.Status, "the run itself completes")
	assert.Equal(t, 1, run.Stats.Failed)

	// Every record failing flips the batch AI status to failed.
	got, err := s.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AIStatusFailed, got.AIStatus)
}

func TestExtractBatchFeatures_EmptyBatchCompletes(t *testing.T) {
	s := newTestStore(t)
	batch := seedBatch(t, s) // no records
	ctx := context.Background()

	run, err := NewDriver(s, &llm.MockClient{}, fastOpts()).ExtractBatchFeatures(ctx, batch.ID, []string{"color"})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, 0, run.Stats.Total)

	got, err := s.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AIStatusCompleted, got.AIStatus)
}

func TestExtractBatchFeatures_Validation(t *testing.T) {
	s := newTestStore(t)
	d := NewDriver(s, &llm.MockClient{}, fastOpts())
	ctx := context.Background()

	_, err := d.ExtractBatchFeatures(ctx, 1, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, err = d.ExtractBatchFeatures(ctx, 404, []string{"color"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestExtractBatchFeatures_RunsAccumulate(t *testing.T) {
	s := newTestStore(t)
	batch := seedBatch(t, s, "B01ABCDEF2")
	ctx := context.Background()
	d := NewDriver(s, &llm.MockClient{Responses: []llm.MockResponse{
		{Features: map[string]any{"color": "red"}},
	}}, fastOpts())

	_, err := d.ExtractBatchFeatures(ctx, batch.ID, []string{"color"})
	require.NoError(t, err)
	_, err = d.ExtractBatchFeatures(ctx, batch.ID, []string{"color", "material"})
	require.NoError(t, err)

	runs, err := s.ListExtractionRuns(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, []string{"color", "material"}, runs[0].TargetFields)
}
