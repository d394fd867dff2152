package model

import "time"

// ValidationStatus classifies the outcome of record validation.
type ValidationStatus string

const (
	ValidationValid   ValidationStatus = "valid"
	ValidationWarning ValidationStatus = "warning"
	ValidationError   ValidationStatus = "error"
)

// RecordAIStatus tracks per-record extraction state.
type RecordAIStatus string

const (
	RecordAIPending RecordAIStatus = "pending"
	RecordAISuccess RecordAIStatus = "success"
	RecordAIFailed  RecordAIStatus = "failed"
)

// ProductRecord is the canonical product row produced by an import batch.
// RawPayload is byte-faithful to the source row; NormalizedPayload holds only
// canonical keys; everything else lands in ExtendedData.
type ProductRecord struct {
	ID                 string            `json:"id"`
	BatchID            int64             `json:"batch_id"`
	ASIN               string            `json:"asin"`
	Title              string            `json:"title"`
	Category           string            `json:"category,omitempty"`
	Price              *float64          `json:"price,omitempty"`
	Currency           string            `json:"currency,omitempty"`
	SalesRank          *int              `json:"sales_rank,omitempty"`
	Reviews            *int              `json:"reviews,omitempty"`
	Rating             *float64          `json:"rating,omitempty"`
	RawPayload         map[string]any    `json:"raw_payload"`
	NormalizedPayload  map[string]any    `json:"normalized_payload"`
	ExtendedData       map[string]any    `json:"extended_data,omitempty"`
	DataSource         DataSource        `json:"data_source"`
	ValidationStatus   ValidationStatus  `json:"validation_status"`
	ValidationMessages map[string]string `json:"validation_messages,omitempty"`
	AIFeatures         map[string]any    `json:"ai_features,omitempty"`
	AIStatus           RecordAIStatus    `json:"ai_status"`
	AIError            string            `json:"ai_error,omitempty"`
	IngestedAt         time.Time         `json:"ingested_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// CanonicalFields is the fixed set of core fields stored as first-class
// columns. NormalizedPayload keys are always a subset of this set.
var CanonicalFields = []string{
	"asin", "title", "category", "price", "currency", "sales_rank", "reviews", "rating",
}
