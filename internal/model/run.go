package model

import "time"

// RunStatus represents the state of an extraction run.
type RunStatus string

const (
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// TokenUsage tracks LLM token consumption.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates another usage into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Total returns combined input and output tokens.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// RunStats aggregates per-record results over one extraction run.
// Total always equals Success + Failed.
type RunStats struct {
	Total           int     `json:"total"`
	Success         int     `json:"success"`
	Failed          int     `json:"failed"`
	TotalTokens     int     `json:"total_tokens"`
	InputTokens     int     `json:"input_tokens"`
	OutputTokens    int     `json:"output_tokens"`
	TotalCost       float64 `json:"total_cost"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// ExtractionRun is the append-only audit row for one extraction invocation
// over a batch.
type ExtractionRun struct {
	ID           int64      `json:"id"`
	BatchID      int64      `json:"batch_id"`
	Status       RunStatus  `json:"status"`
	TargetFields []string   `json:"target_fields"`
	Stats        RunStats   `json:"stats"`
	CreatedAt    time.Time  `json:"created_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}
