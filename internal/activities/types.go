package activities

import (
	"orcaflow/internal/extract"
	"orcaflow/internal/models"
)

type ClaimJobInput struct {
	JobID string `json:"job_id"`
}

type ClaimJobOutput struct {
	Job     models.Job `json:"job"`
	Claimed bool       `json:"claimed"`
}

type GetJobFileInput struct {
	JobID string `json:"job_id"`
}

type GetJobFileOutput struct {
	File models.SourceFile `json:"file"`
}

type FetchPDFTextInput struct {
	FileID      string `json:"file_id"`
	StoragePath string `json:"storage_path"`
}

type FetchPDFTextOutput struct {
	Text      string `json:"text"`
	PageCount int    `json:"page_count"`
}

type OCRTextInput struct {
	Filename    string `json:"filename"`
	StoragePath string `json:"storage_path"`
}

type OCRTextOutput struct {
	Text string `json:"text"`
}

type StoreFileTextInput struct {
	FileID    string `json:"file_id"`
	Text      string `json:"text"`
	Method    string `json:"method"`
	PageCount int    `json:"page_count"`
}

type StoreFileTextOutput struct {
	Text        string `json:"text"`
	StoredChars int    `json:"stored_chars"`
	Oversized   bool   `json:"oversized"`
	TooShort    bool   `json:"too_short"`
}

type ProbeModelsInput struct {
	Candidates []string `json:"candidates"`
}

type ProbeModelsOutput struct {
	BaseModel string                `json:"base_model"`
	Attempts  []models.ModelAttempt `json:"attempts"`
}

type PlanChunksInput struct {
	Text         string `json:"text"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
	BoundaryMode string `json:"boundary_mode"`
	MaxChunks    int    `json:"max_chunks"`
}

type PlanChunksOutput struct {
	Chunks []string `json:"chunks"`
}

type ExtractChunkInput struct {
	JobID      string `json:"job_id"`
	FileID     string `json:"file_id"`
	Model      string `json:"model"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
	Phase      string `json:"phase,omitempty"` // "" means first-line "chunk"; "reprocess" marks an escalated re-run
}

type ExtractChunkOutput struct {
	Items     []extract.Item        `json:"items"`
	Attempts  []models.ModelAttempt `json:"attempts"`
	Recovered bool                  `json:"recovered"`
}

type ExtractDirectPDFInput struct {
	JobID       string `json:"job_id"`
	FileID      string `json:"file_id"`
	Model       string `json:"model"`
	StoragePath string `json:"storage_path"`
	ContentType string `json:"content_type"`
	Phase       string `json:"phase"`
}

type PersistChunkItemsInput struct {
	JobID      string         `json:"job_id"`
	FileID     string         `json:"file_id"`
	ChunkIndex int            `json:"chunk_index"`
	Items      []extract.Item `json:"items"`
}

type PersistChunkItemsOutput struct {
	Inserted int `json:"inserted"`
}

type ReplaceFileItemsInput struct {
	JobID  string         `json:"job_id"`
	FileID string         `json:"file_id"`
	Items  []extract.Item `json:"items"`
}

type ReplaceFileItemsOutput struct {
	Inserted int `json:"inserted"`
}

type MergeFileItemsInput struct {
	JobID  string         `json:"job_id"`
	FileID string         `json:"file_id"`
	Items  []extract.Item `json:"items"`
}

type MergeFileItemsOutput struct {
	Added int `json:"added"`
	Total int `json:"total"`
}

type CountJobItemsInput struct {
	JobID string `json:"job_id"`
}

type CountJobItemsOutput struct {
	Count int `json:"count"`
}

type UpsertSummaryInput struct {
	Summary models.ExtractionSummary `json:"summary"`
}

type RecordModelAttemptsInput struct {
	JobID    string                `json:"job_id"`
	FileID   string                `json:"file_id"`
	Attempts []models.ModelAttempt `json:"attempts"`
}

type HydrateInput struct {
	JobID string `json:"job_id"`
}

type UpdateJobStatusInput struct {
	JobID          string `json:"job_id"`
	Status         string `json:"status"`
	Step           string `json:"step"`
	Reason         string `json:"reason"`
	Message        string `json:"message"`
	LastError      string `json:"last_error"`
	RetryAfterSecs int    `json:"retry_after_secs"`
}

type HeartbeatInput struct {
	JobID string `json:"job_id"`
	Step  string `json:"step"`
}

type SetDebugContextInput struct {
	JobID string         `json:"job_id"`
	Debug map[string]any `json:"debug"`
}

type UpdateFileProgressInput struct {
	FileID        string `json:"file_id"`
	ChunksTotal   int    `json:"chunks_total"`
	ChunksDone    int    `json:"chunks_done"`
	ItemsInserted int    `json:"items_inserted"`
	DurationMS    int64  `json:"duration_ms"`
	LastError     string `json:"last_error"`
}

type ListDueRetryJobsInput struct {
	Limit int `json:"limit"`
}

type ListDueRetryJobsOutput struct {
	JobIDs []string `json:"job_ids"`
}

type MarkStaleJobsInput struct {
	StaleAfterSecs int `json:"stale_after_secs"`
	Limit          int `json:"limit"`
}

type MarkStaleJobsOutput struct {
	Marked int `json:"marked"`
}
