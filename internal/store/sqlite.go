package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sellerdata/ingest-cli/internal/apperr"
	"github.com/sellerdata/ingest-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS import_batches (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	filename        TEXT NOT NULL,
	storage_path    TEXT NOT NULL DEFAULT '',
	source_type     TEXT NOT NULL,
	strategy        TEXT NOT NULL DEFAULT 'append',
	status          TEXT NOT NULL DEFAULT 'pending',
	total_rows      INTEGER NOT NULL DEFAULT 0,
	success_rows    INTEGER NOT NULL DEFAULT 0,
	failed_rows     INTEGER NOT NULL DEFAULT 0,
	skipped_rows    INTEGER NOT NULL DEFAULT 0,
	file_hash       TEXT,
	failure_summary TEXT,
	columns_seen    TEXT,
	progress        TEXT,
	ai_status       TEXT NOT NULL DEFAULT 'none',
	ai_summary      TEXT,
	created_by      TEXT,
	started_at      DATETIME,
	finished_at     DATETIME,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS product_records (
	id                  TEXT PRIMARY KEY,
	batch_id            INTEGER NOT NULL REFERENCES import_batches(id) ON DELETE CASCADE,
	seq                 INTEGER NOT NULL DEFAULT 0,
	asin                TEXT NOT NULL,
	title               TEXT NOT NULL DEFAULT '',
	category            TEXT,
	price               REAL,
	currency            TEXT,
	sales_rank          INTEGER,
	reviews             INTEGER,
	rating              REAL,
	raw_payload         TEXT NOT NULL,
	normalized_payload  TEXT NOT NULL,
	extended_data       TEXT,
	data_source         TEXT NOT NULL,
	validation_status   TEXT NOT NULL DEFAULT 'valid',
	validation_messages TEXT,
	ai_features         TEXT,
	ai_status           TEXT NOT NULL DEFAULT 'pending',
	ai_error            TEXT,
	ingested_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(batch_id, asin)
);

CREATE TABLE IF NOT EXISTS extraction_runs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_id      INTEGER NOT NULL REFERENCES import_batches(id) ON DELETE CASCADE,
	status        TEXT NOT NULL DEFAULT 'processing',
	target_fields TEXT NOT NULL,
	stats         TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at   DATETIME
);

CREATE TABLE IF NOT EXISTS system_logs (
	id        TEXT PRIMARY KEY,
	timestamp DATETIME NOT NULL,
	level     TEXT NOT NULL,
	category  TEXT NOT NULL,
	message   TEXT NOT NULL,
	context   TEXT,
	trace_id  TEXT
);

CREATE INDEX IF NOT EXISTS idx_batches_status ON import_batches(status);
CREATE INDEX IF NOT EXISTS idx_batches_file_hash ON import_batches(file_hash);
CREATE INDEX IF NOT EXISTS idx_products_batch_id ON product_records(batch_id);
CREATE INDEX IF NOT EXISTS idx_products_asin ON product_records(asin);
CREATE INDEX IF NOT EXISTS idx_runs_batch_id ON extraction_runs(batch_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const batchColumns = `id, filename, storage_path, source_type, strategy, status,
	total_rows, success_rows, failed_rows, skipped_rows, file_hash,
	failure_summary, columns_seen, progress, ai_status, ai_summary,
	created_by, started_at, finished_at, created_at, updated_at`

func (s *SQLiteStore) CreateBatch(ctx context.Context, b *model.ImportBatch) (*model.ImportBatch, error) {
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	if b.Status == "" {
		b.Status = model.BatchStatusPending
	}
	if b.AIStatus == "" {
		b.AIStatus = model.AIStatusNone
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO import_batches
		 (filename, storage_path, source_type, strategy, status, file_hash, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Filename, b.StoragePath, string(b.SourceType), string(b.Strategy), string(b.Status),
		nullString(b.FileHash), nullString(b.CreatedBy), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert batch")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: batch id")
	}
	b.ID = id
	return b, nil
}

func (s *SQLiteStore) GetBatch(ctx context.Context, id int64) (*model.ImportBatch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM import_batches WHERE id = ?`, id)
	b, err := scanBatch(row)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.CodeNotFound, "batch %d not found", id)
	}
	return b, err
}

func (s *SQLiteStore) FindBatchByHash(ctx context.Context, fingerprint string) (*model.ImportBatch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM import_batches
		 WHERE file_hash = ? AND status = ?
		 ORDER BY created_at DESC LIMIT 1`,
		fingerprint, string(model.BatchStatusSucceeded))
	b, err := scanBatch(row)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (s *SQLiteStore) UpdateBatchStatus(ctx context.Context, id int64, status model.BatchStatus, failureSummary map[string]any) error {
	now := time.Now().UTC()
	var finished any
	if status.Terminal() {
		finished = now
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE import_batches SET status = ?, failure_summary = ?,
		 started_at = COALESCE(started_at, ?), finished_at = COALESCE(?, finished_at), updated_at = ?
		 WHERE id = ?`,
		string(status), marshalJSON(failureSummary), now, finished, now, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update batch status %d", id)
	}
	return checkRowsAffected(res, "batch")
}

func (s *SQLiteStore) UpdateBatchStats(ctx context.Context, b *model.ImportBatch) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE import_batches SET status = ?, storage_path = ?, total_rows = ?, success_rows = ?,
		 failed_rows = ?, skipped_rows = ?, failure_summary = ?, columns_seen = ?, progress = ?,
		 finished_at = ?, updated_at = ?
		 WHERE id = ?`,
		string(b.Status), b.StoragePath, b.TotalRows, b.SuccessRows,
		b.FailedRows, b.SkippedRows, marshalJSON(b.FailureSummary), marshalJSON(b.ColumnsSeen),
		marshalJSON(b.Progress), timeOrNil(b.FinishedAt), now, b.ID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update batch stats %d", b.ID)
	}
	return checkRowsAffected(res, "batch")
}

func (s *SQLiteStore) UpdateBatchProgress(ctx context.Context, id int64, p model.Progress) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE import_batches SET progress = ?, updated_at = ? WHERE id = ?`,
		marshalJSON(p), time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update batch progress %d", id)
	}
	return checkRowsAffected(res, "batch")
}

func (s *SQLiteStore) UpdateBatchAI(ctx context.Context, id int64, status model.AIStatus, summary map[string]any) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE import_batches SET ai_status = ?, ai_summary = COALESCE(?, ai_summary), updated_at = ? WHERE id = ?`,
		string(status), marshalJSON(summary), time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update batch ai %d", id)
	}
	return checkRowsAffected(res, "batch")
}

func (s *SQLiteStore) DeleteBatch(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM import_batches WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete batch %d", id)
	}
	return checkRowsAffected(res, "batch")
}

func (s *SQLiteStore) ListBatches(ctx context.Context, filter BatchFilter) ([]model.ImportBatch, int, error) {
	where := ` WHERE 1=1`
	var args []any

	if filter.Status != "" {
		where += ` AND status = ?`
		args = append(args, CanonicalBatchStatus(filter.Status))
	}
	if filter.ASIN != "" {
		where += ` AND id IN (SELECT batch_id FROM product_records WHERE asin = ?)`
		args = append(args, strings.ToUpper(filter.ASIN))
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM import_batches`+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count batches")
	}

	page, pageSize := clampPage(filter.Page, filter.PageSize)
	query := `SELECT ` + batchColumns + ` FROM import_batches` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: list batches")
	}
	defer rows.Close()

	var batches []model.ImportBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, 0, err
		}
		batches = append(batches, *b)
	}
	return batches, total, eris.Wrap(rows.Err(), "sqlite: list batches iterate")
}

const productColumns = `id, batch_id, asin, title, category, price, currency,
	sales_rank, reviews, rating, raw_payload, normalized_payload, extended_data,
	data_source, validation_status, validation_messages, ai_features, ai_status,
	ai_error, ingested_at, updated_at`

func (s *SQLiteStore) CreateProductRecords(ctx context.Context, records []*model.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert records")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO product_records
		 (id, batch_id, seq, asin, title, category, price, currency, sales_rank, reviews, rating,
		  raw_payload, normalized_payload, extended_data, data_source, validation_status,
		  validation_messages, ai_status, ingested_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert record")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for seq, r := range records {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		r.IngestedAt = now
		r.UpdatedAt = now
		if r.AIStatus == "" {
			r.AIStatus = model.RecordAIPending
		}
		_, err := stmt.ExecContext(ctx,
			r.ID, r.BatchID, seq, r.ASIN, r.Title, nullString(r.Category),
			floatOrNil(r.Price), nullString(r.Currency), intOrNil(r.SalesRank),
			intOrNil(r.Reviews), floatOrNil(r.Rating),
			marshalJSONObject(r.RawPayload), marshalJSONObject(r.NormalizedPayload), marshalJSON(r.ExtendedData),
			string(r.DataSource), string(r.ValidationStatus), marshalJSON(r.ValidationMessages),
			string(r.AIStatus), now, now)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert record %s", r.ASIN)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit insert records")
}

func (s *SQLiteStore) GetProductsByBatch(ctx context.Context, batchID int64) ([]model.ProductRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM product_records WHERE batch_id = ? ORDER BY seq ASC`, batchID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: products for batch %d", batchID)
	}
	defer rows.Close()

	var records []model.ProductRecord
	for rows.Next() {
		r, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: products iterate")
}

func (s *SQLiteStore) ListProducts(ctx context.Context, filter ProductFilter) ([]model.ProductRecord, int, error) {
	where := ` WHERE 1=1`
	var args []any

	if filter.BatchID != nil {
		where += ` AND batch_id = ?`
		args = append(args, *filter.BatchID)
	}
	if filter.ASIN != "" {
		where += ` AND asin = ?`
		args = append(args, strings.ToUpper(filter.ASIN))
	}
	if filter.Status != "" {
		where += ` AND validation_status = ?`
		args = append(args, filter.Status)
	}
	if filter.Category != "" {
		where += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if filter.Updated.From != nil {
		where += ` AND updated_at >= ?`
		args = append(args, filter.Updated.From.UTC())
	}
	if filter.Updated.To != nil {
		where += ` AND updated_at <= ?`
		args = append(args, filter.Updated.To.UTC())
	}
	for _, rf := range []struct {
		col string
		r   Range
	}{
		{"price", filter.Price},
		{"rating", filter.Rating},
		{"reviews", filter.Reviews},
		{"sales_rank", filter.SalesRank},
	} {
		if rf.r.Min != nil {
			where += ` AND ` + rf.col + ` >= ?`
			args = append(args, *rf.r.Min)
		}
		if rf.r.Max != nil {
			where += ` AND ` + rf.col + ` <= ?`
			args = append(args, *rf.r.Max)
		}
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM product_records`+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count products")
	}

	page, pageSize := clampPage(filter.Page, filter.PageSize)
	query := `SELECT ` + productColumns + ` FROM product_records` + where +
		` ORDER BY ` + sortClause(filter.SortBy, filter.SortOrder) + ` LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: list products")
	}
	defer rows.Close()

	var records []model.ProductRecord
	for rows.Next() {
		r, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, *r)
	}
	return records, total, eris.Wrap(rows.Err(), "sqlite: list products iterate")
}

func (s *SQLiteStore) UpdateProductAI(ctx context.Context, id string, features map[string]any, status model.RecordAIStatus, aiError string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE product_records SET ai_features = ?, ai_status = ?, ai_error = ?, updated_at = ? WHERE id = ?`,
		marshalJSON(features), string(status), nullString(aiError), time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update product ai %s", id)
	}
	return checkRowsAffected(res, "product record")
}

func (s *SQLiteStore) ExistingASINs(ctx context.Context, asins []string) (map[string]bool, error) {
	out := make(map[string]bool, len(asins))
	if len(asins) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(asins)), ",")
	args := make([]any, len(asins))
	for i, a := range asins {
		args[i] = strings.ToUpper(a)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT pr.asin FROM product_records pr
		 JOIN import_batches b ON b.id = pr.batch_id
		 WHERE b.status = 'succeeded' AND pr.asin IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: existing asins")
	}
	defer rows.Close()

	for rows.Next() {
		var asin string
		if err := rows.Scan(&asin); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan asin")
		}
		out[asin] = true
	}
	return out, eris.Wrap(rows.Err(), "sqlite: existing asins iterate")
}

func (s *SQLiteStore) CreateExtractionRun(ctx context.Context, run *model.ExtractionRun) (*model.ExtractionRun, error) {
	now := time.Now().UTC()
	run.CreatedAt = now
	if run.Status == "" {
		run.Status = model.RunStatusProcessing
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO extraction_runs (batch_id, status, target_fields, stats, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		run.BatchID, string(run.Status), marshalJSON(run.TargetFields), marshalJSON(run.Stats), now)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert extraction run for batch %d", run.BatchID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: extraction run id")
	}
	run.ID = id
	return run, nil
}

func (s *SQLiteStore) UpdateExtractionRun(ctx context.Context, run *model.ExtractionRun) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_runs SET status = ?, stats = ?, finished_at = ? WHERE id = ?`,
		string(run.Status), marshalJSON(run.Stats), timeOrNil(run.FinishedAt), run.ID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update extraction run %d", run.ID)
	}
	return checkRowsAffected(res, "extraction run")
}

func (s *SQLiteStore) ListExtractionRuns(ctx context.Context, batchID int64) ([]model.ExtractionRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, batch_id, status, target_fields, stats, created_at, finished_at
		 FROM extraction_runs WHERE batch_id = ? ORDER BY created_at DESC, id DESC`, batchID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list runs for batch %d", batchID)
	}
	defer rows.Close()

	var runs []model.ExtractionRun
	for rows.Next() {
		var run model.ExtractionRun
		var status, fieldsJSON, statsJSON string
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.BatchID, &status, &fieldsJSON, &statsJSON, &run.CreatedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan extraction run")
		}
		run.Status = model.RunStatus(status)
		unmarshalJSON(fieldsJSON, &run.TargetFields)
		unmarshalJSON(statsJSON, &run.Stats)
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) AppendSystemLog(ctx context.Context, entry *model.SystemLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO system_logs (id, timestamp, level, category, message, context, trace_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp, entry.Level, entry.Category, entry.Message,
		marshalJSON(model.MaskContext(entry.Context)), nullString(entry.TraceID))
	return eris.Wrap(err, "sqlite: append system log")
}

// helpers

func checkRowsAffected(res sql.Result, entity string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found", entity)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanBatch(row scannable) (*model.ImportBatch, error) {
	var b model.ImportBatch
	var sourceType, strategy, status, aiStatus string
	var fileHash, failureJSON, columnsJSON, progressJSON, aiSummaryJSON, createdBy sql.NullString
	var started, finished sql.NullTime

	err := row.Scan(&b.ID, &b.Filename, &b.StoragePath, &sourceType, &strategy, &status,
		&b.TotalRows, &b.SuccessRows, &b.FailedRows, &b.SkippedRows, &fileHash,
		&failureJSON, &columnsJSON, &progressJSON, &aiStatus, &aiSummaryJSON,
		&createdBy, &started, &finished, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "store: scan batch")
	}

	b.SourceType = model.DataSource(sourceType)
	b.Strategy = model.ImportStrategy(strategy)
	b.Status = model.BatchStatus(status)
	b.AIStatus = model.AIStatus(aiStatus)
	b.FileHash = fileHash.String
	b.CreatedBy = createdBy.String
	if failureJSON.Valid {
		unmarshalJSON(failureJSON.String, &b.FailureSummary)
	}
	if columnsJSON.Valid {
		unmarshalJSON(columnsJSON.String, &b.ColumnsSeen)
	}
	if progressJSON.Valid {
		var p model.Progress
		unmarshalJSON(progressJSON.String, &p)
		if p.Phase != "" {
			b.Progress = &p
		}
	}
	if aiSummaryJSON.Valid {
		unmarshalJSON(aiSummaryJSON.String, &b.AISummary)
	}
	if started.Valid {
		t := started.Time
		b.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time
		b.FinishedAt = &t
	}
	return &b, nil
}

func scanProduct(row scannable) (*model.ProductRecord, error) {
	var r model.ProductRecord
	var category, currency, aiError sql.NullString
	var price, rating sql.NullFloat64
	var salesRank, reviews sql.NullInt64
	var rawJSON, normalizedJSON string
	var extendedJSON, messagesJSON, featuresJSON sql.NullString
	var dataSource, validationStatus, aiStatus string

	err := row.Scan(&r.ID, &r.BatchID, &r.ASIN, &r.Title, &category, &price, &currency,
		&salesRank, &reviews, &rating, &rawJSON, &normalizedJSON, &extendedJSON,
		&dataSource, &validationStatus, &messagesJSON, &featuresJSON, &aiStatus,
		&aiError, &r.IngestedAt, &r.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "store: scan product")
	}

	r.Category = category.String
	r.Currency = currency.String
	r.AIError = aiError.String
	if price.Valid {
		v := price.Float64
		r.Price = &v
	}
	if rating.Valid {
		v := rating.Float64
		r.Rating = &v
	}
	if salesRank.Valid {
		v := int(salesRank.Int64)
		r.SalesRank = &v
	}
	if reviews.Valid {
		v := int(reviews.Int64)
		r.Reviews = &v
	}
	unmarshalJSON(rawJSON, &r.RawPayload)
	unmarshalJSON(normalizedJSON, &r.NormalizedPayload)
	if extendedJSON.Valid {
		unmarshalJSON(extendedJSON.String, &r.ExtendedData)
	}
	if messagesJSON.Valid {
		unmarshalJSON(messagesJSON.String, &r.ValidationMessages)
	}
	if featuresJSON.Valid {
		unmarshalJSON(featuresJSON.String, &r.AIFeatures)
	}
	r.DataSource = model.DataSource(dataSource)
	r.ValidationStatus = model.ValidationStatus(validationStatus)
	r.AIStatus = model.RecordAIStatus(aiStatus)
	return &r, nil
}

// marshalJSON renders v as a JSON string, or nil for empty values so the
// column stays NULL.
func marshalJSON(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		if len(t) == 0 {
			return nil
		}
	case map[string]string:
		if len(t) == 0 {
			return nil
		}
	case []string:
		if len(t) == 0 {
			return nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(data)
}

// marshalJSONObject serializes a map for a NOT NULL object column: an empty
// or nil map still produces {}.
func marshalJSONObject(v map[string]any) any {
	if len(v) == 0 {
		return "{}"
	}
	return marshalJSON(v)
}

func unmarshalJSON(s string, dest any) {
	if s == "" {
		return
	}
	_ = json.Unmarshal([]byte(s), dest)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func floatOrNil(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func intOrNil(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
