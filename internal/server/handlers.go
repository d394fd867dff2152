package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sellerdata/ingest-cli/internal/apperr"
	"github.com/sellerdata/ingest-cli/internal/importcfg"
	"github.com/sellerdata/ingest-cli/internal/importer"
	"github.com/sellerdata/ingest-cli/internal/model"
	"github.com/sellerdata/ingest-cli/internal/store"
	"github.com/sellerdata/ingest-cli/internal/worker"
)

const maxUploadBytes = 64 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, r, apperr.New(apperr.CodeValidation, "invalid multipart body"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, apperr.New(apperr.CodeValidation, "missing file"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, apperr.Wrap(err, apperr.CodeValidation, "unreadable upload"))
		return
	}

	strategy := model.StrategyAppend
	if raw := r.FormValue("importStrategy"); raw != "" {
		parsed, ok := model.ParseStrategy(raw)
		if !ok {
			writeError(w, r, apperr.Newf(apperr.CodeValidation, "invalid strategy %q", raw))
			return
		}
		strategy = parsed
	}

	overrides := importcfg.Overrides{SheetName: r.FormValue("sheetName")}
	if raw := r.FormValue("onMissingRequired"); raw != "" {
		policy := importcfg.MissingPolicy(raw)
		if policy != importcfg.MissingSkip && policy != importcfg.MissingAbort {
			writeError(w, r, apperr.Newf(apperr.CodeValidation, "invalid onMissingRequired %q", raw))
			return
		}
		overrides.OnMissingRequired = policy
	}
	if raw := r.FormValue("columnAliases"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &overrides.ColumnAliases); err != nil {
			writeError(w, r, apperr.New(apperr.CodeValidation, "columnAliases must be a JSON object"))
			return
		}
	}

	batch, err := s.fileDriver.HandleUpload(r.Context(), importer.UploadRequest{
		Filename:  header.Filename,
		Data:      data,
		Strategy:  strategy,
		Overrides: overrides,
		CreatedBy: r.FormValue("createdBy"),
	})
	if err != nil && batch == nil {
		writeError(w, r, err)
		return
	}
	// A terminal failed batch is still the created resource; its failure
	// summary carries the row-level story.
	writeJSON(w, http.StatusCreated, batch)
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := pagination(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	batches, total, err := s.store.ListBatches(r.Context(), store.BatchFilter{
		Status:   r.URL.Query().Get("status"),
		ASIN:     r.URL.Query().Get("asin"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if batches == nil {
		batches = []model.ImportBatch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":     batches,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	id, err := batchID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	batch, err := s.store.GetBatch(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var failedRows any
	if batch.FailureSummary != nil {
		failedRows = batch.FailureSummary["failures"]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"batch":       batch,
		"failed_rows": failedRows,
	})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	id, err := batchID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.store.GetBatch(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	var req struct {
		TargetFields []string `json:"target_fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apperr.New(apperr.CodeValidation, "invalid request body"))
		return
	}
	if len(req.TargetFields) == 0 {
		writeError(w, r, apperr.New(apperr.CodeValidation, "target_fields must not be empty"))
		return
	}

	ok := s.executor.Enqueue(worker.Job{
		Name: "extract",
		Run: func(ctx context.Context) error {
			_, err := s.extractor.ExtractBatchFeatures(ctx, id, req.TargetFields)
			return err
		},
	})
	if !ok {
		writeError(w, r, apperr.New(apperr.CodeInternal, "worker queue is full"))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id": id,
		"status":   "accepted",
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	id, err := batchID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.store.GetBatch(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	runs, err := s.store.ListExtractionRuns(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.ExtractionRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": runs})
}

func (s *Server) handleAPIImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input    string `json:"input"`
		Type     string `json:"type"`
		Domain   string `json:"domain"`
		TestMode bool   `json:"test_mode"`
		Limit    int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apperr.New(apperr.CodeValidation, "invalid request body"))
		return
	}

	batch, process, err := s.apiDriver.Begin(r.Context(), importer.APIImportRequest{
		Input:    req.Input,
		Type:     importer.InputKind(req.Type),
		Domain:   req.Domain,
		TestMode: req.TestMode,
		Limit:    req.Limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if ok := s.executor.Enqueue(worker.Job{Name: "api-import", Run: process}); !ok {
		writeError(w, r, apperr.New(apperr.CodeInternal, "worker queue is full"))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id": batch.ID,
		"status":   "accepted",
	})
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := pagination(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	filter := store.ProductFilter{
		ASIN:      q.Get("asin"),
		Status:    q.Get("status"),
		Category:  q.Get("category"),
		SortBy:    store.ProductSortKey(q.Get("sortBy")),
		SortOrder: q.Get("sortOrder"),
		Page:      page,
		PageSize:  pageSize,
	}

	if raw := q.Get("batchId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, apperr.New(apperr.CodeValidation, "batchId must be an integer"))
			return
		}
		filter.BatchID = &id
	}

	ranges := []struct {
		dest   *store.Range
		minKey string
		maxKey string
	}{
		{&filter.Price, "priceMin", "priceMax"},
		{&filter.Rating, "ratingMin", "ratingMax"},
		{&filter.Reviews, "reviewsMin", "reviewsMax"},
		{&filter.SalesRank, "rankMin", "rankMax"},
	}
	for _, rng := range ranges {
		if rng.dest.Min, err = floatParam(q.Get(rng.minKey), rng.minKey); err != nil {
			writeError(w, r, err)
			return
		}
		if rng.dest.Max, err = floatParam(q.Get(rng.maxKey), rng.maxKey); err != nil {
			writeError(w, r, err)
			return
		}
	}

	if filter.Updated.From, err = timeParam(q.Get("updatedFrom"), "updatedFrom"); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.Updated.To, err = timeParam(q.Get("updatedTo"), "updatedTo"); err != nil {
		writeError(w, r, err)
		return
	}

	records, total, err := s.store.ListProducts(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if records == nil {
		records = []model.ProductRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":     records,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// pagination parses the shared page/pageSize parameters; an oversized
// pageSize is rejected, not clamped.
func pagination(r *http.Request) (int, int, error) {
	page := 1
	pageSize := store.DefaultPageSize

	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return 0, 0, apperr.New(apperr.CodeValidation, "page must be a positive integer")
		}
		page = n
	}
	if raw := r.URL.Query().Get("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return 0, 0, apperr.New(apperr.CodeValidation, "pageSize must be a positive integer")
		}
		if n > store.MaxPageSize {
			return 0, 0, apperr.Newf(apperr.CodeValidation, "pageSize must not exceed %d", store.MaxPageSize)
		}
		pageSize = n
	}
	return page, pageSize, nil
}

func batchID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, apperr.New(apperr.CodeValidation, "batch id must be an integer")
	}
	return id, nil
}

func floatParam(raw, name string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apperr.Newf(apperr.CodeValidation, "%s must be a number", name)
	}
	return &f, nil
}

func timeParam(raw, name string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperr.Newf(apperr.CodeValidation, "%s must be RFC3339", name)
	}
	return &t, nil
}
