package workflows

import (
	"fmt"
	"strings"
	"time"

	"orcaflow/internal/activities"
	"orcaflow/internal/extract"
	"orcaflow/internal/models"
	"orcaflow/internal/providers"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const QueryGetJobStatus = "GetJobStatus"

// runState is the in-flight bookkeeping for one extraction run. It lives
// only in workflow memory; everything durable goes through activities.
type runState struct {
	input     ExtractionInput
	progress  *JobProgress
	file      models.SourceFile
	escModel  string
	pageCount int
	attempts  []models.ModelAttempt
	retries   map[string]int
	items     int
	hadText   bool
	startedAt time.Time
}

func ExtractionWorkflow(ctx workflow.Context, input ExtractionInput) (ExtractionResult, error) {
	applyInputDefaults(&input)
	progress := JobProgress{JobID: input.JobID, Status: models.JobRunning, CascadeState: CascadeNotStarted}
	if err := workflow.SetQueryHandler(ctx, QueryGetJobStatus, func() (JobProgress, error) {
		return progress, nil
	}); err != nil {
		return ExtractionResult{}, err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	// Model and OCR calls are retried by the workflow itself so throttle
	// waits stay visible in history; the activity layer must not stack its
	// own retries on top.
	aiCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	var claim activities.ClaimJobOutput
	if err := workflow.ExecuteActivity(ctx, "ClaimJobActivity", activities.ClaimJobInput{JobID: input.JobID}).Get(ctx, &claim); err != nil {
		return ExtractionResult{}, err
	}
	if !claim.Claimed {
		// Done jobs are a no-op; anything else means another run holds the
		// job. Either way, report current state without touching it.
		progress.Status = claim.Job.Status
		progress.Reason = claim.Job.ReasonCode
		return ExtractionResult{
			JobID:   input.JobID,
			Status:  claim.Job.Status,
			Reason:  claim.Job.ReasonCode,
			Message: claim.Job.Message,
		}, nil
	}

	st := &runState{
		input:     input,
		progress:  &progress,
		retries:   map[string]int{},
		startedAt: workflow.Now(ctx),
	}

	setStep(ctx, st, "select_file")
	var fileOut activities.GetJobFileOutput
	if err := workflow.ExecuteActivity(ctx, "GetJobFileActivity", activities.GetJobFileInput{JobID: input.JobID}).Get(ctx, &fileOut); err != nil {
		return finalize(ctx, st, models.JobWaitingUser, models.ReasonMissingFile, err.Error(), 0), nil
	}
	st.file = fileOut.File

	setStep(ctx, st, "probe_models")
	var probe activities.ProbeModelsOutput
	if err := workflow.ExecuteActivity(aiCtx, "ProbeModelsActivity", activities.ProbeModelsInput{Candidates: input.ModelCandidates}).Get(aiCtx, &probe); err != nil {
		return finalize(ctx, st, models.JobRetryable, models.ReasonAIUnavailable, err.Error(), input.RetryAfterSecs), nil
	}
	progress.Model = probe.BaseModel
	st.attempts = append(st.attempts, probe.Attempts...)
	st.escModel = escalationModel(input.ModelCandidates, probe.BaseModel)

	// Stage 1: chunked extraction over the embedded text layer.
	progress.CascadeState = CascadeFullScan
	setStep(ctx, st, "extract_text")
	text := ""
	var fetch activities.FetchPDFTextOutput
	fetchErr := workflow.ExecuteActivity(ctx, "FetchPDFTextActivity", activities.FetchPDFTextInput{
		FileID:      st.file.FileID,
		StoragePath: st.file.StoragePath,
	}).Get(ctx, &fetch)
	if fetchErr != nil {
		if isMissingFileError(fetchErr) {
			return finalize(ctx, st, models.JobWaitingUser, models.ReasonMissingFile, fetchErr.Error(), 0), nil
		}
		// No text layer is a normal cascade step, not a failure.
	} else {
		st.pageCount = fetch.PageCount
		stored, res, err := storeText(ctx, st, fetch.Text, "pdf_text", fetch.PageCount)
		if err != nil {
			return ExtractionResult{}, err
		}
		if res != nil {
			return *res, nil
		}
		if !stored.TooShort {
			text = stored.Text
			st.hadText = true
		}
	}

	if text != "" {
		setStep(ctx, st, "extract_chunks")
		_, throttled, perr, err := runChunkPass(ctx, aiCtx, st, text, true)
		if err != nil {
			return ExtractionResult{}, err
		}
		if perr != nil {
			return finalize(ctx, st, models.JobFailed, models.ReasonPersistenceError, perr.Error(), 0), nil
		}
		if throttled {
			return finalize(ctx, st, models.JobWaitingUser, models.ReasonRateLimit, "", input.RetryAfterSecs), nil
		}
	}

	// Stage 2: hand the PDF bytes straight to the model. Runs not only when
	// the full scan stayed under the item floor, but also when it produced
	// items that fail validation: a mangled text layer reads fine and
	// extracts badly, and re-reading the PDF itself recovers that case.
	if needsRecoveryPass(ctx, st) && isPDFDocument(st.file) {
		progress.CascadeState = CascadePDFDirect
		setStep(ctx, st, "pdf_direct")
		var direct activities.ExtractChunkOutput
		directErr, throttled := callModel(ctx, aiCtx, st, "direct", func() error {
			return workflow.ExecuteActivity(aiCtx, "ExtractDirectPDFActivity", activities.ExtractDirectPDFInput{
				JobID:       input.JobID,
				FileID:      st.file.FileID,
				Model:       progress.Model,
				StoragePath: st.file.StoragePath,
				ContentType: st.file.ContentType,
				Phase:       "reprocess",
			}).Get(aiCtx, &direct)
		})
		if throttled {
			return finalize(ctx, st, models.JobWaitingUser, models.ReasonRateLimit, "", input.RetryAfterSecs), nil
		}
		if directErr == nil {
			st.attempts = append(st.attempts, direct.Attempts...)
			if len(direct.Items) > 0 {
				if err := persistPassItems(ctx, st, direct.Items); err != nil {
					return finalize(ctx, st, models.JobFailed, models.ReasonPersistenceError, err.Error(), 0), nil
				}
			}
		}
	}

	// Stage 3: OCR service, augmenting what is already persisted.
	if st.items < input.MinItemThreshold {
		progress.CascadeState = CascadeOCR
		if res, err := runTextFallback(ctx, aiCtx, st, "ocr", "OCRTextActivity"); err != nil {
			return ExtractionResult{}, err
		} else if res != nil {
			return *res, nil
		}
	}

	// Stage 4: third-party conversion as the last resort.
	if st.items < input.MinItemThreshold {
		progress.CascadeState = CascadePDFCo
		if res, err := runTextFallback(ctx, aiCtx, st, "pdfco", "PDFCoTextActivity"); err != nil {
			return ExtractionResult{}, err
		} else if res != nil {
			return *res, nil
		}
	}
	progress.CascadeState = CascadeConcluded

	// The stored count is the ground truth for the verdict, not the
	// in-memory tally.
	setStep(ctx, st, "validate")
	var count activities.CountJobItemsOutput
	if err := workflow.ExecuteActivity(ctx, "CountJobItemsActivity", activities.CountJobItemsInput{JobID: input.JobID}).Get(ctx, &count); err != nil {
		return ExtractionResult{}, err
	}
	st.items = count.Count
	progress.ItemsFound = count.Count

	if count.Count == 0 {
		if !st.hadText {
			return finalize(ctx, st, models.JobWaitingUser, models.ReasonTextTooShort, "", 0), nil
		}
		placeholder := []extract.Item{extract.PlaceholderItem(models.ReasonNoItems)}
		var rep activities.ReplaceFileItemsOutput
		if err := workflow.ExecuteActivity(ctx, "ReplaceFileItemsActivity", activities.ReplaceFileItemsInput{
			JobID: input.JobID, FileID: st.file.FileID, Items: placeholder,
		}).Get(ctx, &rep); err != nil {
			return finalize(ctx, st, models.JobFailed, models.ReasonPersistenceError, err.Error(), 0), nil
		}
		st.items = rep.Inserted
		return finalize(ctx, st, models.JobWaitingUser, models.ReasonNoItems, "", 0), nil
	}

	elapsed := workflow.Now(ctx).Sub(st.startedAt)
	verdict := extract.Validate(count.Count, st.pageCount, elapsed, extract.Expectations{
		ItemsPerPage:     input.ItemsPerPage,
		MinExpectedItems: input.MinExpectedItems,
	})
	if verdict.StructurallyInvalid {
		return finalize(ctx, st, models.JobWaitingUser, models.ReasonStructurallyInvalid, "", 0), nil
	}
	if verdict.LowCompleteness {
		return finalize(ctx, st, models.JobWaitingUser, models.ReasonLowCompleteness, "", 0), nil
	}
	reason := models.ReasonStandardSuccess
	if st.progress.ChunksFailed > 0 {
		reason = models.ReasonPartialChunks
	}
	result := finalize(ctx, st, models.JobDone, reason, "", 0)

	// Hydration runs strictly after the final count is confirmed and the
	// job is marked done.
	setStep(ctx, st, "hydrate")
	if err := workflow.ExecuteActivity(ctx, "HydrateActivity", activities.HydrateInput{JobID: input.JobID}).Get(ctx, nil); err != nil {
		return finalize(ctx, st, models.JobWaitingUser, models.ReasonHydrationFailed, err.Error(), 0), nil
	}
	return result, nil
}

// runChunkPass plans chunks from text and extracts them. In the primary pass
// each chunk's rows are persisted as a checkpoint right after extraction;
// fallback passes collect rows and let the caller merge them. A second
// return of true means the provider throttled past the retry budget.
func runChunkPass(ctx, aiCtx workflow.Context, st *runState, text string, persistPerChunk bool) ([]extract.Item, bool, error, error) {
	var plan activities.PlanChunksOutput
	if err := workflow.ExecuteActivity(ctx, "PlanChunksActivity", activities.PlanChunksInput{
		Text:         text,
		ChunkSize:    st.input.ChunkSize,
		ChunkOverlap: st.input.ChunkOverlap,
		BoundaryMode: st.input.BoundaryMode,
		MaxChunks:    st.input.MaxChunks,
	}).Get(ctx, &plan); err != nil {
		return nil, false, nil, err
	}
	st.progress.ChunksTotal = len(plan.Chunks)
	st.progress.ChunksDone = 0

	var collected []extract.Item
	// Concurrent batch mode drops to sequential on the first failure or
	// throttle; sequential mode owns the throttle retry budget.
	degraded := st.input.ChunkConcurrency <= 1

	handleSuccess := func(idx int, out activities.ExtractChunkOutput) error {
		st.attempts = append(st.attempts, out.Attempts...)
		if persistPerChunk {
			var persisted activities.PersistChunkItemsOutput
			if err := workflow.ExecuteActivity(ctx, "PersistChunkItemsActivity", activities.PersistChunkItemsInput{
				JobID:      st.input.JobID,
				FileID:     st.file.FileID,
				ChunkIndex: idx,
				Items:      out.Items,
			}).Get(ctx, &persisted); err != nil {
				return err
			}
			st.items += persisted.Inserted
		} else {
			collected = append(collected, out.Items...)
		}
		st.progress.ChunksDone++
		st.progress.ItemsFound = st.items + len(collected)
		_ = workflow.ExecuteActivity(ctx, "UpdateFileProgressActivity", activities.UpdateFileProgressInput{
			FileID:        st.file.FileID,
			ChunksTotal:   st.progress.ChunksTotal,
			ChunksDone:    st.progress.ChunksDone,
			ItemsInserted: st.items,
			DurationMS:    workflow.Now(ctx).Sub(st.startedAt).Milliseconds(),
		}).Get(ctx, nil)
		setStep(ctx, st, fmt.Sprintf("chunk_%d_of_%d", st.progress.ChunksDone, st.progress.ChunksTotal))
		return nil
	}

	chunkInput := func(idx int) activities.ExtractChunkInput {
		return activities.ExtractChunkInput{
			JobID:      st.input.JobID,
			FileID:     st.file.FileID,
			Model:      st.progress.Model,
			ChunkIndex: idx,
			Text:       plan.Chunks[idx],
		}
	}

	i := 0
	for i < len(plan.Chunks) {
		if !degraded {
			width := st.input.ChunkConcurrency
			if rem := len(plan.Chunks) - i; width > rem {
				width = rem
			}
			futures := make([]workflow.Future, width)
			for k := 0; k < width; k++ {
				futures[k] = workflow.ExecuteActivity(aiCtx, "ExtractChunkActivity", chunkInput(i+k))
			}
			ok := 0
			var batchErr error
			for k := 0; k < width; k++ {
				var out activities.ExtractChunkOutput
				if batchErr = futures[k].Get(aiCtx, &out); batchErr != nil {
					break
				}
				if err := handleSuccess(i+k, out); err != nil {
					return collected, false, err, nil
				}
				ok++
			}
			if batchErr != nil {
				// Re-run the failed chunk (and everything after it)
				// sequentially; chunk persistence is idempotent so an
				// abandoned in-flight result cannot double-insert.
				degraded = true
				i += ok
				continue
			}
			i += width
			continue
		}

		var out activities.ExtractChunkOutput
		idx := i
		err, throttled := callModel(ctx, aiCtx, st, fmt.Sprintf("chunk-%d", idx), func() error {
			return workflow.ExecuteActivity(aiCtx, "ExtractChunkActivity", chunkInput(idx)).Get(aiCtx, &out)
		})
		if throttled {
			return collected, true, nil, nil
		}
		if err != nil {
			// Persistent failure on the base model: one escalation attempt on
			// the higher-capability candidate before the chunk counts as lost.
			if st.escModel != "" {
				escIn := chunkInput(idx)
				escIn.Model = st.escModel
				escIn.Phase = "reprocess"
				var escOut activities.ExtractChunkOutput
				escErr, escThrottled := callModel(ctx, aiCtx, st, fmt.Sprintf("chunk-%d-esc", idx), func() error {
					return workflow.ExecuteActivity(aiCtx, "ExtractChunkActivity", escIn).Get(aiCtx, &escOut)
				})
				if escThrottled {
					return collected, true, nil, nil
				}
				if escErr == nil {
					if err := handleSuccess(idx, escOut); err != nil {
						return collected, false, err, nil
					}
					i++
					continue
				}
			}
			st.progress.ChunksFailed++
			i++
			continue
		}
		if err := handleSuccess(idx, out); err != nil {
			return collected, false, err, nil
		}
		i++
	}
	return collected, false, nil, nil
}

// runTextFallback is one OCR-style cascade stage: acquire text through the
// named activity, store it, extract, and merge into whatever is persisted.
// A non-nil result means the workflow should return it immediately.
func runTextFallback(ctx, aiCtx workflow.Context, st *runState, method, activityName string) (*ExtractionResult, error) {
	setStep(ctx, st, method)
	var ocrOut activities.OCRTextOutput
	err := workflow.ExecuteActivity(aiCtx, activityName, activities.OCRTextInput{
		Filename:    st.file.Filename,
		StoragePath: st.file.StoragePath,
	}).Get(aiCtx, &ocrOut)
	if err != nil {
		// Unavailable or failing OCR just moves the cascade along.
		return nil, nil
	}
	stored, res, err := storeText(ctx, st, ocrOut.Text, method, 0)
	if err != nil {
		return nil, err
	}
	if res != nil {
		return res, nil
	}
	if stored.TooShort {
		return nil, nil
	}
	st.hadText = true

	items, throttled, perr, err := runChunkPass(ctx, aiCtx, st, stored.Text, false)
	if err != nil {
		return nil, err
	}
	if perr != nil {
		r := finalize(ctx, st, models.JobFailed, models.ReasonPersistenceError, perr.Error(), 0)
		return &r, nil
	}
	if throttled {
		r := finalize(ctx, st, models.JobWaitingUser, models.ReasonRateLimit, "", st.input.RetryAfterSecs)
		return &r, nil
	}
	if len(items) > 0 {
		if err := persistPassItems(ctx, st, items); err != nil {
			r := finalize(ctx, st, models.JobFailed, models.ReasonPersistenceError, err.Error(), 0)
			return &r, nil
		}
	}
	return nil, nil
}

// storeText persists acquired text under the stored-text budget. A non-nil
// result short-circuits the run (oversized documents go to manual review).
func storeText(ctx workflow.Context, st *runState, text, method string, pageCount int) (activities.StoreFileTextOutput, *ExtractionResult, error) {
	var stored activities.StoreFileTextOutput
	if err := workflow.ExecuteActivity(ctx, "StoreFileTextActivity", activities.StoreFileTextInput{
		FileID:    st.file.FileID,
		Text:      text,
		Method:    method,
		PageCount: pageCount,
	}).Get(ctx, &stored); err != nil {
		return stored, nil, err
	}
	if stored.Oversized {
		r := finalize(ctx, st, models.JobWaitingUser, models.ReasonOversizedText, "", 0)
		return stored, &r, nil
	}
	return stored, nil, nil
}

// persistPassItems merges a fallback pass into the persisted set, or
// replaces it outright when nothing was extracted before.
func persistPassItems(ctx workflow.Context, st *runState, items []extract.Item) error {
	if st.items > 0 {
		var merged activities.MergeFileItemsOutput
		if err := workflow.ExecuteActivity(ctx, "MergeFileItemsActivity", activities.MergeFileItemsInput{
			JobID: st.input.JobID, FileID: st.file.FileID, Items: items,
		}).Get(ctx, &merged); err != nil {
			return err
		}
		st.items = merged.Total
	} else {
		var replaced activities.ReplaceFileItemsOutput
		if err := workflow.ExecuteActivity(ctx, "ReplaceFileItemsActivity", activities.ReplaceFileItemsInput{
			JobID: st.input.JobID, FileID: st.file.FileID, Items: items,
		}).Get(ctx, &replaced); err != nil {
			return err
		}
		st.items = replaced.Inserted
	}
	st.progress.ItemsFound = st.items
	return nil
}

// callModel invokes one model-backed activity with the throttle budget:
// waits of 2s then 5s for rate or quota classifications, then reports the
// throttle so the caller can short-circuit the cascade. Non-throttle errors
// are returned as-is.
func callModel(ctx, aiCtx workflow.Context, st *runState, key string, call func() error) (error, bool) {
	for {
		err := call()
		if err == nil {
			return nil, false
		}
		if providers.IsThrottle(providers.ClassifyError(err)) {
			st.retries[key]++
			switch st.retries[key] {
			case 1:
				_ = workflow.Sleep(ctx, 2*time.Second)
				continue
			case 2:
				_ = workflow.Sleep(ctx, 5*time.Second)
				continue
			default:
				return err, true
			}
		}
		return err, false
	}
}

// finalize records the terminal (or parked) state: job row, summary,
// debug snapshot, and file progress. Summary and debug writes are best
// effort; losing them must not change the job outcome.
func finalize(ctx workflow.Context, st *runState, status, reason, lastErr string, retryAfterSecs int) ExtractionResult {
	message := reasonMessage(reason)
	st.progress.Status = status
	st.progress.Reason = reason

	_ = workflow.ExecuteActivity(ctx, "UpdateJobStatusActivity", activities.UpdateJobStatusInput{
		JobID:          st.input.JobID,
		Status:         status,
		Step:           st.progress.CurrentStep,
		Reason:         reason,
		Message:        message,
		LastError:      lastErr,
		RetryAfterSecs: retryAfterSecs,
	}).Get(ctx, nil)

	if st.file.FileID != "" {
		elapsed := workflow.Now(ctx).Sub(st.startedAt)
		_ = workflow.ExecuteActivity(ctx, "UpsertSummaryActivity", activities.UpsertSummaryInput{
			Summary: models.ExtractionSummary{
				JobID:           st.input.JobID,
				FileID:          st.file.FileID,
				Notes:           message,
				ItemCount:       st.items,
				ModelUsed:       st.progress.Model,
				ModelCandidates: st.input.ModelCandidates,
				Attempts:        st.attempts,
				Perf: map[string]any{
					"duration_ms":   elapsed.Milliseconds(),
					"chunks_total":  st.progress.ChunksTotal,
					"chunks_done":   st.progress.ChunksDone,
					"chunks_failed": st.progress.ChunksFailed,
					"cascade_state": st.progress.CascadeState,
				},
			},
		}).Get(ctx, nil)

		_ = workflow.ExecuteActivity(ctx, "UpdateFileProgressActivity", activities.UpdateFileProgressInput{
			FileID:        st.file.FileID,
			ChunksTotal:   st.progress.ChunksTotal,
			ChunksDone:    st.progress.ChunksDone,
			ItemsInserted: st.items,
			DurationMS:    elapsed.Milliseconds(),
			LastError:     lastErr,
		}).Get(ctx, nil)
	}

	_ = workflow.ExecuteActivity(ctx, "SetDebugContextActivity", activities.SetDebugContextInput{
		JobID: st.input.JobID,
		Debug: map[string]any{
			"status":        status,
			"reason_code":   reason,
			"cascade_state": st.progress.CascadeState,
			"model":         st.progress.Model,
			"chunks_total":  st.progress.ChunksTotal,
			"chunks_failed": st.progress.ChunksFailed,
			"items":         st.items,
			"page_count":    st.pageCount,
			"last_error":    lastErr,
		},
	}).Get(ctx, nil)

	return ExtractionResult{
		JobID:     st.input.JobID,
		Status:    status,
		Reason:    reason,
		Message:   message,
		ItemCount: st.items,
		ModelUsed: st.progress.Model,
	}
}

func setStep(ctx workflow.Context, st *runState, step string) {
	st.progress.CurrentStep = step
	_ = workflow.ExecuteActivity(ctx, "HeartbeatJobActivity", activities.HeartbeatInput{
		JobID: st.input.JobID,
		Step:  step,
	}).Get(ctx, nil)
}

func applyInputDefaults(in *ExtractionInput) {
	if in.ChunkSize <= 0 {
		in.ChunkSize = 12000
	}
	if in.ChunkOverlap <= 0 {
		in.ChunkOverlap = 500
	}
	if in.MaxChunks <= 0 {
		in.MaxChunks = 35
	}
	if in.MinItemThreshold <= 0 {
		in.MinItemThreshold = 3
	}
	if in.ItemsPerPage <= 0 {
		in.ItemsPerPage = 12
	}
	if in.MinExpectedItems <= 0 {
		in.MinExpectedItems = 30
	}
	if in.RetryAfterSecs <= 0 {
		in.RetryAfterSecs = 45
	}
}

// needsRecoveryPass decides whether the full scan's outcome warrants the
// direct-PDF stage: either the persisted items stayed under the floor, or
// they are numerous enough but fail validation against the page-derived
// expectation.
func needsRecoveryPass(ctx workflow.Context, st *runState) bool {
	if st.items < st.input.MinItemThreshold {
		return true
	}
	elapsed := workflow.Now(ctx).Sub(st.startedAt)
	v := extract.Validate(st.items, st.pageCount, elapsed, extract.Expectations{
		ItemsPerPage:     st.input.ItemsPerPage,
		MinExpectedItems: st.input.MinExpectedItems,
	})
	return !v.Trustworthy()
}

// escalationModel picks the candidate ranked directly after the base model.
// Ranking puts higher-capability models last, so this is the reserve used
// only when a chunk keeps failing on the base.
func escalationModel(candidates []string, base string) string {
	ranked := providers.RankModels(candidates)
	for i, m := range ranked {
		if m == base {
			if i+1 < len(ranked) {
				return ranked[i+1]
			}
			return ""
		}
	}
	return ""
}

func isPDFDocument(f models.SourceFile) bool {
	if strings.Contains(strings.ToLower(f.ContentType), "pdf") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(f.Filename), ".pdf")
}

func isMissingFileError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}
