package model

import "time"

// BatchStatus represents the lifecycle state of an import batch.
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusSucceeded BatchStatus = "succeeded"
	BatchStatusFailed    BatchStatus = "failed"
)

// Terminal reports whether the status is a final state. Terminal batches are
// immutable except for the AI fields.
func (s BatchStatus) Terminal() bool {
	return s == BatchStatusSucceeded || s == BatchStatusFailed
}

// ImportStrategy controls how rows with recurring ASINs are persisted.
type ImportStrategy string

const (
	StrategyOverwrite  ImportStrategy = "overwrite"
	StrategyAppend     ImportStrategy = "append"
	StrategyUpdateOnly ImportStrategy = "update_only"
)

// ParseStrategy maps the wire spellings (including "update-only") to an
// ImportStrategy. Returns false for unknown values.
func ParseStrategy(s string) (ImportStrategy, bool) {
	switch s {
	case "overwrite":
		return StrategyOverwrite, true
	case "append":
		return StrategyAppend, true
	case "update_only", "update-only":
		return StrategyUpdateOnly, true
	}
	return "", false
}

// DataSource identifies where a batch's rows came from.
type DataSource string

const (
	SourceFile DataSource = "file"
	SourceAPI  DataSource = "api"
)

// AIStatus tracks extraction progress on a batch.
type AIStatus string

const (
	AIStatusNone       AIStatus = "none"
	AIStatusPending    AIStatus = "pending"
	AIStatusProcessing AIStatus = "processing"
	AIStatusCompleted  AIStatus = "completed"
	AIStatusFailed     AIStatus = "failed"
)

// ImportPhase is the advisory progress phase published by the API driver.
type ImportPhase string

const (
	PhasePreparing       ImportPhase = "preparing"
	PhaseFetchingList    ImportPhase = "fetching_list"
	PhaseFetchingDetails ImportPhase = "fetching_details"
	PhaseSaving          ImportPhase = "saving"
	PhaseGeneratingExcel ImportPhase = "generating_excel"
	PhaseCompleted       ImportPhase = "completed"
)

// Progress is the (phase, message) pair stored in batch metadata. Percentage
// is derived by callers from phase bounds and success/total; it is never
// stored.
type Progress struct {
	Phase   ImportPhase `json:"phase"`
	Message string      `json:"message"`
}

// ImportBatch is one ingestion operation and its accounting.
type ImportBatch struct {
	ID             int64          `json:"id"`
	Filename       string         `json:"filename"`
	StoragePath    string         `json:"storage_path"`
	SourceType     DataSource     `json:"source_type"`
	Strategy       ImportStrategy `json:"strategy"`
	Status         BatchStatus    `json:"status"`
	TotalRows      int            `json:"total_rows"`
	SuccessRows    int            `json:"success_rows"`
	FailedRows     int            `json:"failed_rows"`
	SkippedRows    int            `json:"skipped_rows"`
	FileHash       string         `json:"file_hash,omitempty"`
	FailureSummary map[string]any `json:"failure_summary,omitempty"`
	ColumnsSeen    []string       `json:"columns_seen,omitempty"`
	Progress       *Progress      `json:"progress,omitempty"`
	AIStatus       AIStatus       `json:"ai_status"`
	AISummary      map[string]any `json:"ai_summary,omitempty"`
	CreatedBy      string         `json:"created_by,omitempty"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// FailedRow is one entry in a batch's failure artifact.
type FailedRow struct {
	RowNumber int    `json:"rowNumber"`
	ASIN      string `json:"asin"`
	Reason    string `json:"reason"`
	RawValues string `json:"rawValues"`
}
