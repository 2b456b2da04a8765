package models

import "time"

// Job lifecycle states.
const (
	JobQueued      = "queued"
	JobRunning     = "running"
	JobDone        = "done"
	JobWaitingUser = "waiting_user"
	JobFailed      = "failed"
	JobRetryable   = "retryable"
)

// Machine-readable reason codes attached to job transitions.
const (
	ReasonStandardSuccess     = "standard_success"
	ReasonPartialChunks       = "partial_extraction_chunks_failed"
	ReasonLowCompleteness     = "low_completeness"
	ReasonStructurallyInvalid = "structurally_invalid"
	ReasonRateLimit           = "rate_limit"
	ReasonHydrationFailed     = "hydration_failed"
	ReasonNoItems             = "no_budget_items_found"
	ReasonAIUnavailable       = "ai_temporarily_unavailable"
	ReasonOversizedText       = "oversized_text"
	ReasonMissingFile         = "missing_file"
	ReasonPersistenceError    = "persistence_error"
	ReasonTextTooShort        = "text_too_short"
)

// Source file roles. Synthetic summary documents are preferred over
// analytic detail documents when both are present.
const (
	FileRoleSynthetic = "synthetic"
	FileRoleAnalytic  = "analytic"
	FileRoleUnknown   = "unknown"
)

type Job struct {
	JobID        string     `json:"job_id"`
	Status       string     `json:"status"`
	CurrentStep  string     `json:"current_step,omitempty"`
	ReasonCode   string     `json:"reason_code,omitempty"`
	Message      string     `json:"message,omitempty"`
	Attempts     int        `json:"attempts"`
	LastError    string     `json:"last_error,omitempty"`
	HeartbeatAt  *time.Time `json:"heartbeat_at,omitempty"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
	DebugContext string     `json:"debug_context,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type SourceFile struct {
	FileID          string    `json:"file_id"`
	JobID           string    `json:"job_id"`
	Role            string    `json:"role"`
	Filename        string    `json:"filename"`
	ContentType     string    `json:"content_type,omitempty"`
	StoragePath     string    `json:"storage_path"`
	ExtractedText   *string   `json:"extracted_text,omitempty"`
	ExtractMethod   string    `json:"extract_method,omitempty"`
	PageCount       *int      `json:"page_count,omitempty"`
	ChunksTotal     int       `json:"chunks_total"`
	ChunksDone      int       `json:"chunks_done"`
	ItemsInserted   int       `json:"items_inserted"`
	DurationMS      int64     `json:"duration_ms"`
	LastError       string    `json:"last_error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type ExtractionItem struct {
	ItemID      string    `json:"item_id"`
	JobID       string    `json:"job_id"`
	FileID      string    `json:"file_id"`
	ChunkIndex  *int      `json:"chunk_index,omitempty"`
	Position    int       `json:"position"`
	Description string    `json:"description"`
	Unit        string    `json:"unit,omitempty"`
	Quantity    *float64  `json:"quantity,omitempty"`
	UnitPrice   *float64  `json:"unit_price,omitempty"`
	Total       *float64  `json:"total,omitempty"`
	Confidence  float64   `json:"confidence"`
	RawLine     string    `json:"raw_line,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ModelAttempt is one entry of the append-only attempt log kept on the
// extraction summary.
type ModelAttempt struct {
	Model     string    `json:"model"`
	Phase     string    `json:"phase"` // probe | chunk | repair | reprocess
	OK        bool      `json:"ok"`
	Status    string    `json:"status,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ExtractionSummary struct {
	JobID           string         `json:"job_id"`
	FileID          string         `json:"file_id"`
	Notes           string         `json:"notes,omitempty"`
	ItemCount       int            `json:"item_count"`
	ModelUsed       string         `json:"model_used,omitempty"`
	ModelCandidates []string       `json:"model_candidates,omitempty"`
	Attempts        []ModelAttempt `json:"attempts,omitempty"`
	Perf            map[string]any `json:"perf,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
