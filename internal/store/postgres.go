package store

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sellerdata/ingest-cli/internal/apperr"
	"github.com/sellerdata/ingest-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it in
// tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool (used by tests with pgxmock).
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS import_batches (
	id              BIGSERIAL PRIMARY KEY,
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
	failure_summary JSONB,
	columns_seen    JSONB,
	progress        JSONB,
	ai_status       TEXT NOT NULL DEFAULT 'none',
	ai_summary      JSONB,
	created_by      TEXT,
	started_at      TIMESTAMPTZ,
	finished_at     TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS product_records (
	id                  TEXT PRIMARY KEY,
	batch_id            BIGINT NOT NULL REFERENCES import_batches(id) ON DELETE CASCADE,
	seq                 INTEGER NOT NULL DEFAULT 0,
	asin                TEXT NOT NULL,
	title               TEXT NOT NULL DEFAULT '',
	category            TEXT,
	price               DOUBLE PRECISION,
	currency            TEXT,
	sales_rank          INTEGER,
	reviews             INTEGER,
	rating              DOUBLE PRECISION,
	raw_payload         JSONB NOT NULL,
	normalized_payload  JSONB NOT NULL,
	extended_data       JSONB,
	data_source         TEXT NOT NULL,
	validation_status   TEXT NOT NULL DEFAULT 'valid',
	validation_messages JSONB,
	ai_features         JSONB,
	ai_status           TEXT NOT NULL DEFAULT 'pending',
	ai_error            TEXT,
	ingested_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(batch_id, asin)
);

CREATE TABLE IF NOT EXISTS extraction_runs (
	id            BIGSERIAL PRIMARY KEY,
	batch_id      BIGINT NOT NULL REFERENCES import_batches(id) ON DELETE CASCADE,
	status        TEXT NOT NULL DEFAULT 'processing',
	target_fields JSONB NOT NULL,
	stats         JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS system_logs (
	id        TEXT PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	level     TEXT NOT NULL,
	category  TEXT NOT NULL,
	message   TEXT NOT NULL,
	context   JSONB,
	trace_id  TEXT
);

CREATE INDEX IF NOT EXISTS idx_batches_status ON import_batches(status);
CREATE INDEX IF NOT EXISTS idx_batches_file_hash ON import_batches(file_hash);
CREATE INDEX IF NOT EXISTS idx_products_batch_id ON product_records(batch_id);
CREATE INDEX IF NOT EXISTS idx_products_asin ON product_records(asin);
CREATE INDEX IF NOT EXISTS idx_runs_batch_id ON extraction_runs(batch_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateBatch(ctx context.Context, b *model.ImportBatch) (*model.ImportBatch, error) {
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	if b.Status == "" {
		b.Status = model.BatchStatusPending
	}
	if b.AIStatus == "" {
		b.AIStatus = model.AIStatusNone
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO import_batches
		 (filename, storage_path, source_type, strategy, status, file_hash, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		b.Filename, b.StoragePath, string(b.SourceType), string(b.Strategy), string(b.Status),
		nullString(b.FileHash), nullString(b.CreatedBy), now, now,
	).Scan(&b.ID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert batch")
	}
	return b, nil
}

func (s *PostgresStore) GetBatch(ctx context.Context, id int64) (*model.ImportBatch, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM import_batches WHERE id = $1`, id)
	b, err := scanBatch(row)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Newf(apperr.CodeNotFound, "batch %d not found", id)
	}
	return b, err
}

func (s *PostgresStore) FindBatchByHash(ctx context.Context, fingerprint string) (*model.ImportBatch, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM import_batches
		 WHERE file_hash = $1 AND status = $2
		 ORDER BY created_at DESC LIMIT 1`,
		fingerprint, string(model.BatchStatusSucceeded))
	b, err := scanBatch(row)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (s *PostgresStore) UpdateBatchStatus(ctx context.Context, id int64, status model.BatchStatus, failureSummary map[string]any) error {
	now := time.Now().UTC()
	var finished any
	if status.Terminal() {
		finished = now
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE import_batches SET status = $1, failure_summary = $2,
		 started_at = COALESCE(started_at, $3), finished_at = COALESCE($4, finished_at), updated_at = $5
		 WHERE id = $6`,
		string(status), marshalJSON(failureSummary), now, finished, now, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update batch status %d", id)
	}
	return checkTagAffected(tag, "batch")
}

func (s *PostgresStore) UpdateBatchStats(ctx context.Context, b *model.ImportBatch) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE import_batches SET status = $1, storage_path = $2, total_rows = $3, success_rows = $4,
		 failed_rows = $5, skipped_rows = $6, failure_summary = $7, columns_seen = $8, progress = $9,
		 finished_at = $10, updated_at = $11
		 WHERE id = $12`,
		string(b.Status), b.StoragePath, b.TotalRows, b.SuccessRows,
		b.FailedRows, b.SkippedRows, marshalJSON(b.FailureSummary), marshalJSON(b.ColumnsSeen),
		marshalJSON(b.Progress), timeOrNil(b.FinishedAt), now, b.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update batch stats %d", b.ID)
	}
	return checkTagAffected(tag, "batch")
}

func (s *PostgresStore) UpdateBatchProgress(ctx context.Context, id int64, p model.Progress) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE import_batches SET progress = $1, updated_at = $2 WHERE id = $3`,
		marshalJSON(p), time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update batch progress %d", id)
	}
	return checkTagAffected(tag, "batch")
}

func (s *PostgresStore) UpdateBatchAI(ctx context.Context, id int64, status model.AIStatus, summary map[string]any) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE import_batches SET ai_status = $1, ai_summary = COALESCE($2, ai_summary), updated_at = $3 WHERE id = $4`,
		string(status), marshalJSON(summary), time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update batch ai %d", id)
	}
	return checkTagAffected(tag, "batch")
}

func (s *PostgresStore) DeleteBatch(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM import_batches WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete batch %d", id)
	}
	return checkTagAffected(tag, "batch")
}

func (s *PostgresStore) ListBatches(ctx context.Context, filter BatchFilter) ([]model.ImportBatch, int, error) {
	where := ` WHERE 1=1`
	var args []any
	n := func() string { return placeholder(len(args)) }

	if filter.Status != "" {
		args = append(args, CanonicalBatchStatus(filter.Status))
		where += ` AND status = ` + n()
	}
	if filter.ASIN != "" {
		args = append(args, strings.ToUpper(filter.ASIN))
		where += ` AND id IN (SELECT batch_id FROM product_records WHERE asin = ` + n() + `)`
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM import_batches`+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count batches")
	}

	page, pageSize := clampPage(filter.Page, filter.PageSize)
	args = append(args, pageSize)
	limitPh := placeholder(len(args))
	args = append(args, (page-1)*pageSize)
	offsetPh := placeholder(len(args))

	rows, err := s.pool.Query(ctx,
		`SELECT `+batchColumns+` FROM import_batches`+where+
			` ORDER BY created_at DESC, id DESC LIMIT `+limitPh+` OFFSET `+offsetPh, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: list batches")
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
	return batches, total, eris.Wrap(rows.Err(), "postgres: list batches iterate")
}

// productInsertColumns is the COPY column list for bulk record insertion.
var productInsertColumns = []string{
	"id", "batch_id", "seq", "asin", "title", "category", "price", "currency",
	"sales_rank", "reviews", "rating", "raw_payload", "normalized_payload",
	"extended_data", "data_source", "validation_status", "validation_messages",
	"ai_status", "ingested_at", "updated_at",
}

func (s *PostgresStore) CreateProductRecords(ctx context.Context, records []*model.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, len(records))
	for seq, r := range records {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		r.IngestedAt = now
		r.UpdatedAt = now
		if r.AIStatus == "" {
			r.AIStatus = model.RecordAIPending
		}
		rows[seq] = []any{
			r.ID, r.BatchID, seq, r.ASIN, r.Title, nullString(r.Category),
			floatOrNil(r.Price), nullString(r.Currency), intOrNil(r.SalesRank),
			intOrNil(r.Reviews), floatOrNil(r.Rating),
			marshalJSONObject(r.RawPayload), marshalJSONObject(r.NormalizedPayload), marshalJSON(r.ExtendedData),
			string(r.DataSource), string(r.ValidationStatus), marshalJSON(r.ValidationMessages),
			string(r.AIStatus), now, now,
		}
	}

	_, err := s.pool.CopyFrom(ctx, pgx.Identifier{"product_records"}, productInsertColumns, pgx.CopyFromRows(rows))
	return eris.Wrap(err, "postgres: COPY product_records")
}

func (s *PostgresStore) GetProductsByBatch(ctx context.Context, batchID int64) ([]model.ProductRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+productColumns+` FROM product_records WHERE batch_id = $1 ORDER BY seq ASC`, batchID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: products for batch %d", batchID)
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
	return records, eris.Wrap(rows.Err(), "postgres: products iterate")
}

func (s *PostgresStore) ListProducts(ctx context.Context, filter ProductFilter) ([]model.ProductRecord, int, error) {
	where := ` WHERE 1=1`
	var args []any
	n := func() string { return placeholder(len(args)) }

	if filter.BatchID != nil {
		args = append(args, *filter.BatchID)
		where += ` AND batch_id = ` + n()
	}
	if filter.ASIN != "" {
		args = append(args, strings.ToUpper(filter.ASIN))
		where += ` AND asin = ` + n()
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += ` AND validation_status = ` + n()
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where += ` AND category = ` + n()
	}
	if filter.Updated.From != nil {
		args = append(args, filter.Updated.From.UTC())
		where += ` AND updated_at >= ` + n()
	}
	if filter.Updated.To != nil {
		args = append(args, filter.Updated.To.UTC())
		where += ` AND updated_at <= ` + n()
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
			args = append(args, *rf.r.Min)
			where += ` AND ` + rf.col + ` >= ` + n()
		}
		if rf.r.Max != nil {
			args = append(args, *rf.r.Max)
			where += ` AND ` + rf.col + ` <= ` + n()
		}
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM product_records`+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count products")
	}

	page, pageSize := clampPage(filter.Page, filter.PageSize)
	args = append(args, pageSize)
	limitPh := placeholder(len(args))
	args = append(args, (page-1)*pageSize)
	offsetPh := placeholder(len(args))

	rows, err := s.pool.Query(ctx,
		`SELECT `+productColumns+` FROM product_records`+where+
			` ORDER BY `+sortClause(filter.SortBy, filter.SortOrder)+
			` LIMIT `+limitPh+` OFFSET `+offsetPh, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: list products")
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
	return records, total, eris.Wrap(rows.Err(), "postgres: list products iterate")
}

func (s *PostgresStore) UpdateProductAI(ctx context.Context, id string, features map[string]any, status model.RecordAIStatus, aiError string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE product_records SET ai_features = $1, ai_status = $2, ai_error = $3, updated_at = $4 WHERE id = $5`,
		marshalJSON(features), string(status), nullString(aiError), time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update product ai %s", id)
	}
	return checkTagAffected(tag, "product record")
}

func (s *PostgresStore) ExistingASINs(ctx context.Context, asins []string) (map[string]bool, error) {
	out := make(map[string]bool, len(asins))
	if len(asins) == 0 {
		return out, nil
	}

	upper := make([]string, len(asins))
	for i, a := range asins {
		upper[i] = strings.ToUpper(a)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT pr.asin FROM product_records pr
		 JOIN import_batches b ON b.id = pr.batch_id
		 WHERE b.status = 'succeeded' AND pr.asin = ANY($1)`, upper)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: existing asins")
	}
	defer rows.Close()

	for rows.Next() {
		var asin string
		if err := rows.Scan(&asin); err != nil {
			return nil, eris.Wrap(err, "postgres: scan asin")
		}
		out[asin] = true
	}
	return out, eris.Wrap(rows.Err(), "postgres: existing asins iterate")
}

func (s *PostgresStore) CreateExtractionRun(ctx context.Context, run *model.ExtractionRun) (*model.ExtractionRun, error) {
	now := time.Now().UTC()
	run.CreatedAt = now
	if run.Status == "" {
		run.Status = model.RunStatusProcessing
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO extraction_runs (batch_id, status, target_fields, stats, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		run.BatchID, string(run.Status), marshalJSON(run.TargetFields), marshalJSON(run.Stats), now,
	).Scan(&run.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert extraction run for batch %d", run.BatchID)
	}
	return run, nil
}

func (s *PostgresStore) UpdateExtractionRun(ctx context.Context, run *model.ExtractionRun) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_runs SET status = $1, stats = $2, finished_at = $3 WHERE id = $4`,
		string(run.Status), marshalJSON(run.Stats), timeOrNil(run.FinishedAt), run.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update extraction run %d", run.ID)
	}
	return checkTagAffected(tag, "extraction run")
}

func (s *PostgresStore) ListExtractionRuns(ctx context.Context, batchID int64) ([]model.ExtractionRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, batch_id, status, target_fields, stats, created_at, finished_at
		 FROM extraction_runs WHERE batch_id = $1 ORDER BY created_at DESC, id DESC`, batchID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list runs for batch %d", batchID)
	}
	defer rows.Close()

	var runs []model.ExtractionRun
	for rows.Next() {
		var run model.ExtractionRun
		var status, fieldsJSON, statsJSON string
		var finished *time.Time
		if err := rows.Scan(&run.ID, &run.BatchID, &status, &fieldsJSON, &statsJSON, &run.CreatedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "postgres: scan extraction run")
		}
		run.Status = model.RunStatus(status)
		unmarshalJSON(fieldsJSON, &run.TargetFields)
		unmarshalJSON(statsJSON, &run.Stats)
		run.FinishedAt = finished
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) AppendSystemLog(ctx context.Context, entry *model.SystemLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO system_logs (id, timestamp, level, category, message, context, trace_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.Timestamp, entry.Level, entry.Category, entry.Message,
		marshalJSON(model.MaskContext(entry.Context)), nullString(entry.TraceID))
	return eris.Wrap(err, "postgres: append system log")
}

// helpers

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func checkTagAffected(tag pgconn.CommandTag, entity string) error {
	if tag.RowsAffected() == 0 {
		return eris.Errorf("%s not found", entity)
	}
	return nil
}
