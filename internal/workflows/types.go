package workflows

import "orcaflow/internal/models"

// ExtractionInput carries the job id plus the tunables the worker resolved
// from configuration at start time. Zero values fall back to the same
// defaults the config layer uses.
type ExtractionInput struct {
	JobID            string   `json:"job_id"`
	ModelCandidates  []string `json:"model_candidates"`
	ChunkSize        int      `json:"chunk_size"`
	ChunkOverlap     int      `json:"chunk_overlap"`
	BoundaryMode     string   `json:"boundary_mode"`
	MaxChunks        int      `json:"max_chunks"`
	ChunkConcurrency int      `json:"chunk_concurrency"`
	MinItemThreshold int      `json:"min_item_threshold"`
	ItemsPerPage     int      `json:"items_per_page"`
	MinExpectedItems int      `json:"min_expected_items"`
	RetryAfterSecs   int      `json:"retry_after_secs"`
}

type ExtractionResult struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason_code"`
	Message   string `json:"message"`
	ItemCount int    `json:"item_count"`
	ModelUsed string `json:"model_used"`
}

// JobProgress is the query-visible view of a running extraction.
type JobProgress struct {
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	CurrentStep  string `json:"current_step"`
	CascadeState string `json:"cascade_state"`
	Model        string `json:"model"`
	ChunksTotal  int    `json:"chunks_total"`
	ChunksDone   int    `json:"chunks_done"`
	ChunksFailed int    `json:"chunks_failed"`
	ItemsFound   int    `json:"items_found"`
	Reason       string `json:"reason_code,omitempty"`
}

// SweepInput configures the watchdog loop. Extraction is the template used
// for re-driven jobs; its JobID field is overwritten per job.
type SweepInput struct {
	BatchSize      int             `json:"batch_size"`
	IntervalSecs   int             `json:"interval_secs"`
	StaleAfterSecs int             `json:"stale_after_secs"`
	SweepsPerRun   int             `json:"sweeps_per_run"`
	Extraction     ExtractionInput `json:"extraction"`
}

// Cascade states for a single file, in attempt order.
const (
	CascadeNotStarted = "not_started"
	CascadeFullScan   = "full_scan_attempted"
	CascadePDFDirect  = "pdf_direct_attempted"
	CascadeOCR        = "ocr_attempted"
	CascadePDFCo      = "pdfco_attempted"
	CascadeConcluded  = "concluded"
)

var reasonMessages = map[string]string{
	models.ReasonStandardSuccess:     "extraction completed",
	models.ReasonPartialChunks:       "extraction completed but some chunks failed; results may be incomplete",
	models.ReasonLowCompleteness:     "extraction finished with fewer items than expected; manual review recommended",
	models.ReasonStructurallyInvalid: "extraction result is structurally implausible for this document; manual review required",
	models.ReasonRateLimit:           "AI provider rate limit reached; try again shortly",
	models.ReasonHydrationFailed:     "items extracted but budget hydration failed; manual intervention required",
	models.ReasonNoItems:             "no budget items could be extracted from this document",
	models.ReasonAIUnavailable:       "AI models temporarily unavailable; the job will be retried automatically",
	models.ReasonOversizedText:       "document text exceeds the processing budget; manual handling required",
	models.ReasonMissingFile:         "no usable source document found for this job",
	models.ReasonPersistenceError:    "failed to persist extracted items",
	models.ReasonTextTooShort:        "document produced too little text to extract from",
}

func reasonMessage(reason string) string {
	if m, ok := reasonMessages[reason]; ok {
		return m
	}
	return reason
}
