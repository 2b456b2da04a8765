package activities

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"orcaflow/internal/config"
	"orcaflow/internal/docstore"
	"orcaflow/internal/extract"
	"orcaflow/internal/models"
	"orcaflow/internal/ocr"
	"orcaflow/internal/providers"
	"orcaflow/internal/storage"
	"orcaflow/internal/util"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
)

type Activities struct {
	cfg         config.Config
	jobRepo     *storage.JobRepo
	fileRepo    *storage.FileRepo
	itemRepo    *storage.ItemRepo
	summaryRepo *storage.SummaryRepo
	auditRepo   *storage.AuditRepo
	docs        docstore.Store
	model       providers.TextModel
	ocrClient   *ocr.Client
	pdfco       *ocr.PDFCoClient
	httpc       *http.Client
	log         *slog.Logger
}

func New(cfg config.Config, db *storage.DB, docs docstore.Store, model providers.TextModel) *Activities {
	return &Activities{
		cfg:         cfg,
		jobRepo:     storage.NewJobRepo(db),
		fileRepo:    storage.NewFileRepo(db),
		itemRepo:    storage.NewItemRepo(db),
		summaryRepo: storage.NewSummaryRepo(db),
		auditRepo:   storage.NewAuditRepo(db),
		docs:        docs,
		model:       model,
		ocrClient:   ocr.NewClient(cfg.OCRServiceURL),
		pdfco:       ocr.NewPDFCoClient(cfg.PDFCoAPIKey, cfg.PDFCoEndpoint),
		httpc:       &http.Client{Timeout: 30 * time.Second},
		log:         slog.Default().With("component", "activities"),
	}
}

func (a *Activities) ClaimJobActivity(ctx context.Context, in ClaimJobInput) (ClaimJobOutput, error) {
	staleAfter := time.Duration(a.cfg.StaleHeartbeatSecs) * time.Second
	job, claimed, err := a.jobRepo.ClaimJob(ctx, in.JobID, staleAfter)
	if err != nil {
		return ClaimJobOutput{}, err
	}
	if !claimed {
		job, err = a.jobRepo.GetJob(ctx, in.JobID)
		if err != nil {
			return ClaimJobOutput{}, err
		}
	}
	return ClaimJobOutput{Job: job, Claimed: claimed}, nil
}

// GetJobFileActivity picks the document to extract from: synthetic budget
// summaries win over analytic detail sheets.
func (a *Activities) GetJobFileActivity(ctx context.Context, in GetJobFileInput) (GetJobFileOutput, error) {
	files, err := a.fileRepo.ListFilesByJob(ctx, in.JobID)
	if err != nil {
		return GetJobFileOutput{}, err
	}
	if len(files) == 0 {
		return GetJobFileOutput{}, fmt.Errorf("job %s: %w", in.JobID, storage.ErrNoFiles)
	}
	return GetJobFileOutput{File: files[0]}, nil
}

// FetchPDFTextActivity extracts the embedded text layer page by page,
// joining pages with form feeds so downstream chunking can stay page-aware.
func (a *Activities) FetchPDFTextActivity(ctx context.Context, in FetchPDFTextInput) (FetchPDFTextOutput, error) {
	data, err := a.docs.Fetch(ctx, in.StoragePath)
	if err != nil {
		return FetchPDFTextOutput{}, fmt.Errorf("fetch document: %w", err)
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return FetchPDFTextOutput{}, fmt.Errorf("open pdf: %w", err)
	}
	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, strings.TrimSpace(text))
	}
	joined := strings.TrimSpace(strings.Join(pages, "\f"))
	if strings.TrimSpace(strings.ReplaceAll(joined, "\f", "")) == "" {
		return FetchPDFTextOutput{}, util.ErrNoExtractableText
	}
	return FetchPDFTextOutput{Text: joined, PageCount: r.NumPage()}, nil
}

func (a *Activities) OCRTextActivity(ctx context.Context, in OCRTextInput) (OCRTextOutput, error) {
	if !a.ocrClient.Configured() {
		return OCRTextOutput{}, fmt.Errorf("ocr service not configured")
	}
	data, err := a.docs.Fetch(ctx, in.StoragePath)
	if err != nil {
		return OCRTextOutput{}, fmt.Errorf("fetch document: %w", err)
	}
	text, err := a.ocrClient.Recognize(ctx, in.Filename, data)
	if err != nil {
		return OCRTextOutput{}, err
	}
	return OCRTextOutput{Text: text}, nil
}

func (a *Activities) PDFCoTextActivity(ctx context.Context, in OCRTextInput) (OCRTextOutput, error) {
	if !a.pdfco.Configured() {
		return OCRTextOutput{}, fmt.Errorf("pdf.co not configured")
	}
	data, err := a.docs.Fetch(ctx, in.StoragePath)
	if err != nil {
		return OCRTextOutput{}, fmt.Errorf("fetch document: %w", err)
	}
	text, err := a.pdfco.Convert(ctx, in.Filename, data)
	if err != nil {
		return OCRTextOutput{}, err
	}
	return OCRTextOutput{Text: text}, nil
}

// StoreFileTextActivity sanitizes and persists the acquired text, applying
// the stored-text budget. The returned text is the stored version; callers
// must chunk from it, not from the raw acquisition.
func (a *Activities) StoreFileTextActivity(ctx context.Context, in StoreFileTextInput) (StoreFileTextOutput, error) {
	text := util.SanitizeText(strings.TrimSpace(in.Text))
	out := StoreFileTextOutput{
		TooShort:  len(text) < a.cfg.MinOCRTextChars,
		Oversized: len(text) > a.cfg.MaxStoredTextChars,
	}
	if out.Oversized {
		text = util.TruncateChars(text, a.cfg.MaxStoredTextChars)
	}
	var pageCount *int
	if in.PageCount > 0 {
		pageCount = &in.PageCount
	}
	if err := a.fileRepo.UpdateFileText(ctx, in.FileID, text, in.Method, pageCount); err != nil {
		return StoreFileTextOutput{}, err
	}
	out.Text = text
	out.StoredChars = len(text)
	return out, nil
}

func (a *Activities) ProbeModelsActivity(ctx context.Context, in ProbeModelsInput) (ProbeModelsOutput, error) {
	result, err := providers.ProbeModels(ctx, a.model, in.Candidates)
	attempts := make([]models.ModelAttempt, 0, len(result.Attempts))
	for _, p := range result.Attempts {
		status := "ok"
		if !p.OK {
			status = "error"
		}
		attempts = append(attempts, models.ModelAttempt{
			Model: p.Model, Phase: "probe", OK: p.OK, Status: status, Error: p.Error, Timestamp: p.Timestamp,
		})
	}
	if err != nil {
		return ProbeModelsOutput{Attempts: attempts}, err
	}
	return ProbeModelsOutput{BaseModel: result.BaseModel, Attempts: attempts}, nil
}

func (a *Activities) PlanChunksActivity(ctx context.Context, in PlanChunksInput) (PlanChunksOutput, error) {
	_ = ctx
	if in.ChunkSize <= 0 {
		in.ChunkSize = a.cfg.ChunkSize
	}
	if in.ChunkOverlap < 0 || in.ChunkOverlap >= in.ChunkSize {
		in.ChunkOverlap = a.cfg.ChunkOverlap
	}
	if in.MaxChunks <= 0 {
		in.MaxChunks = a.cfg.MaxChunks
	}
	text := util.TruncateChars(in.Text, a.cfg.MaxModelInputChars)

	var chunks []string
	switch in.BoundaryMode {
	case "raw":
		chunks = util.ChunkText(text, in.ChunkSize, in.ChunkOverlap)
	case "page":
		pages := util.SplitPages(text)
		perChunk := 2
		if len(pages) > 0 {
			if avg := len(text) / len(pages); avg > 0 && in.ChunkSize/avg > perChunk {
				perChunk = in.ChunkSize / avg
			}
		}
		for _, pc := range util.ChunkPages(pages, perChunk) {
			chunks = append(chunks, pc.Text)
		}
	default:
		chunks = util.ChunkTextNewline(text, in.ChunkSize, in.ChunkOverlap)
	}
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, c)
		}
	}
	return PlanChunksOutput{Chunks: util.CapChunks(out, in.MaxChunks)}, nil
}

// ExtractChunkActivity runs the precise prompt against one chunk and, when
// the model answers with zero items, retries once with the aggressive
// recovery prompt before giving up on the chunk.
func (a *Activities) ExtractChunkActivity(ctx context.Context, in ExtractChunkInput) (ExtractChunkOutput, error) {
	out := ExtractChunkOutput{}
	phase := in.Phase
	if phase == "" {
		phase = "chunk"
	}

	items, recovered, err := a.generateItems(ctx, in.Model, extract.PrecisePrompt(in.Text))
	a.recordAttempt(ctx, in.JobID, in.FileID, &out.Attempts, in.Model, phase, err)
	if err != nil {
		return out, err
	}
	out.Recovered = recovered

	if len(items) == 0 {
		items, recovered, err = a.generateItems(ctx, in.Model, extract.RecoveryPrompt(in.Text))
		a.recordAttempt(ctx, in.JobID, in.FileID, &out.Attempts, in.Model, "repair", err)
		if err != nil {
			return out, err
		}
		out.Recovered = out.Recovered || recovered
	}
	out.Items = items
	return out, nil
}

// ExtractDirectPDFActivity sends the PDF bytes straight to the model,
// bypassing the text layer entirely.
func (a *Activities) ExtractDirectPDFActivity(ctx context.Context, in ExtractDirectPDFInput) (ExtractChunkOutput, error) {
	out := ExtractChunkOutput{}
	data, err := a.docs.Fetch(ctx, in.StoragePath)
	if err != nil {
		return out, fmt.Errorf("fetch document: %w", err)
	}
	phase := in.Phase
	if phase == "" {
		phase = "chunk"
	}
	resp, _, err := a.model.Generate(ctx, providers.GenerateRequest{
		Model:    in.Model,
		System:   extract.SystemInstruction,
		Prompt:   extract.DirectPDFPrompt(),
		Document: data,
		MimeType: in.ContentType,
		JSONOnly: true,
	})
	a.recordAttempt(ctx, in.JobID, in.FileID, &out.Attempts, in.Model, phase, err)
	if err != nil {
		return out, err
	}
	payload, recovered, err := extract.ParseLenient(resp.Text)
	if err != nil {
		return out, fmt.Errorf("parse direct pdf response: %w", err)
	}
	out.Items = payload.Items
	out.Recovered = recovered
	return out, nil
}

func (a *Activities) generateItems(ctx context.Context, model, prompt string) ([]extract.Item, bool, error) {
	resp, _, err := a.model.Generate(ctx, providers.GenerateRequest{
		Model:    model,
		System:   extract.SystemInstruction,
		Prompt:   prompt,
		JSONOnly: true,
	})
	if err != nil {
		return nil, false, err
	}
	payload, recovered, err := extract.ParseLenient(resp.Text)
	if err != nil {
		return nil, false, fmt.Errorf("parse model response: %w", err)
	}
	return payload.Items, recovered, nil
}

// recordAttempt appends to the in-memory attempt log and mirrors the call
// into the audit table. Audit failures never fail the extraction.
func (a *Activities) recordAttempt(ctx context.Context, jobID, fileID string, attempts *[]models.ModelAttempt, model, phase string, callErr error) {
	att := models.ModelAttempt{Model: model, Phase: phase, OK: callErr == nil, Status: "ok", Timestamp: time.Now().UTC()}
	errType := ""
	if callErr != nil {
		att.Status = "error"
		att.Error = callErr.Error()
		errType = string(providers.ClassifyError(callErr))
	}
	*attempts = append(*attempts, att)
	if err := a.auditRepo.Insert(ctx, storage.ModelCallRecord{
		JobID: jobID, FileID: fileID, Model: model, Phase: phase, Status: att.Status, ErrorType: errType,
	}); err != nil {
		a.log.Warn("model call audit insert failed", "job_id", jobID, "error", err)
	}
}

func (a *Activities) PersistChunkItemsActivity(ctx context.Context, in PersistChunkItemsInput) (PersistChunkItemsOutput, error) {
	idx := in.ChunkIndex
	rows := itemsToRows(in.JobID, in.FileID, &idx, in.Items)
	if err := a.itemRepo.ReplaceChunkItems(ctx, in.JobID, in.FileID, in.ChunkIndex, rows, a.cfg.InsertBatchSize); err != nil {
		return PersistChunkItemsOutput{}, err
	}
	return PersistChunkItemsOutput{Inserted: len(rows)}, nil
}

func (a *Activities) ReplaceFileItemsActivity(ctx context.Context, in ReplaceFileItemsInput) (ReplaceFileItemsOutput, error) {
	rows := itemsToRows(in.JobID, in.FileID, nil, in.Items)
	if err := a.itemRepo.ReplaceFileItems(ctx, in.JobID, in.FileID, rows, a.cfg.InsertBatchSize); err != nil {
		return ReplaceFileItemsOutput{}, err
	}
	return ReplaceFileItemsOutput{Inserted: len(rows)}, nil
}

// MergeFileItemsActivity augments the persisted set with a later pass,
// deduplicating on the normalized item key so re-extracted lines don't
// double up.
func (a *Activities) MergeFileItemsActivity(ctx context.Context, in MergeFileItemsInput) (MergeFileItemsOutput, error) {
	existing, err := a.itemRepo.ListItemsByFile(ctx, in.JobID, in.FileID)
	if err != nil {
		return MergeFileItemsOutput{}, err
	}
	current := make([]extract.Item, 0, len(existing))
	for _, it := range existing {
		current = append(current, extract.Item{
			Description: it.Description, Unit: it.Unit,
			Quantity: it.Quantity, UnitPrice: it.UnitPrice, Total: it.Total,
			Confidence: it.Confidence, RawLine: it.RawLine,
		})
	}
	merged, added, _ := extract.MergeAugment(current, in.Items)
	rows := itemsToRows(in.JobID, in.FileID, nil, merged)
	if err := a.itemRepo.ReplaceFileItems(ctx, in.JobID, in.FileID, rows, a.cfg.InsertBatchSize); err != nil {
		return MergeFileItemsOutput{}, err
	}
	return MergeFileItemsOutput{Added: added, Total: len(merged)}, nil
}

func (a *Activities) CountJobItemsActivity(ctx context.Context, in CountJobItemsInput) (CountJobItemsOutput, error) {
	n, err := a.itemRepo.CountItemsByJob(ctx, in.JobID)
	if err != nil {
		return CountJobItemsOutput{}, err
	}
	return CountJobItemsOutput{Count: n}, nil
}

func (a *Activities) UpsertSummaryActivity(ctx context.Context, in UpsertSummaryInput) error {
	return a.summaryRepo.UpsertSummary(ctx, in.Summary)
}

func (a *Activities) RecordModelAttemptsActivity(ctx context.Context, in RecordModelAttemptsInput) error {
	for _, att := range in.Attempts {
		errType := ""
		if !att.OK {
			errType = string(providers.ClassifyError(fmt.Errorf("%s", att.Error)))
		}
		if err := a.auditRepo.Insert(ctx, storage.ModelCallRecord{
			JobID: in.JobID, FileID: in.FileID, Model: att.Model, Phase: att.Phase, Status: att.Status, ErrorType: errType,
		}); err != nil {
			return err
		}
	}
	return nil
}

// HydrateActivity notifies the budget-hydration collaborator that the job's
// items are persisted and final.
func (a *Activities) HydrateActivity(ctx context.Context, in HydrateInput) error {
	if a.cfg.HydrationURL == "" {
		return nil
	}
	body, _ := json.Marshal(map[string]string{"job_id": in.JobID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.HydrationURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build hydration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("hydration call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("hydration returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

func (a *Activities) UpdateJobStatusActivity(ctx context.Context, in UpdateJobStatusInput) error {
	var nextRetry *time.Time
	if in.RetryAfterSecs > 0 {
		t := time.Now().UTC().Add(time.Duration(in.RetryAfterSecs) * time.Second)
		nextRetry = &t
	}
	return a.jobRepo.UpdateJobStatus(ctx, in.JobID, in.Status, in.Step, in.Reason, in.Message, in.LastError, nextRetry)
}

func (a *Activities) HeartbeatJobActivity(ctx context.Context, in HeartbeatInput) error {
	return a.jobRepo.Heartbeat(ctx, in.JobID, in.Step)
}

func (a *Activities) SetDebugContextActivity(ctx context.Context, in SetDebugContextInput) error {
	return a.jobRepo.SetDebugContext(ctx, in.JobID, util.SafeJSON(in.Debug))
}

func (a *Activities) UpdateFileProgressActivity(ctx context.Context, in UpdateFileProgressInput) error {
	return a.fileRepo.UpdateFileProgress(ctx, in.FileID, in.ChunksTotal, in.ChunksDone, in.ItemsInserted, in.DurationMS, in.LastError)
}

func (a *Activities) ListDueRetryJobsActivity(ctx context.Context, in ListDueRetryJobsInput) (ListDueRetryJobsOutput, error) {
	if in.Limit <= 0 {
		in.Limit = a.cfg.SweepBatchSize
	}
	jobs, err := a.jobRepo.ListDueRetryJobs(ctx, in.Limit)
	if err != nil {
		return ListDueRetryJobsOutput{}, err
	}
	out := ListDueRetryJobsOutput{JobIDs: make([]string, 0, len(jobs))}
	for _, j := range jobs {
		out.JobIDs = append(out.JobIDs, j.JobID)
	}
	return out, nil
}

func (a *Activities) MarkStaleJobsActivity(ctx context.Context, in MarkStaleJobsInput) (MarkStaleJobsOutput, error) {
	staleAfter := time.Duration(in.StaleAfterSecs) * time.Second
	if in.StaleAfterSecs <= 0 {
		staleAfter = time.Duration(a.cfg.StaleHeartbeatSecs) * time.Second
	}
	limit := in.Limit
	if limit <= 0 {
		limit = a.cfg.SweepBatchSize
	}
	n, err := a.jobRepo.MarkStaleRunning(ctx, staleAfter, limit)
	if err != nil {
		return MarkStaleJobsOutput{}, err
	}
	return MarkStaleJobsOutput{Marked: n}, nil
}

func itemsToRows(jobID, fileID string, chunkIndex *int, items []extract.Item) []models.ExtractionItem {
	rows := make([]models.ExtractionItem, 0, len(items))
	for _, it := range items {
		rows = append(rows, models.ExtractionItem{
			ItemID:      uuid.NewString(),
			JobID:       jobID,
			FileID:      fileID,
			ChunkIndex:  chunkIndex,
			Description: it.Description,
			Unit:        it.Unit,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Total:       it.Total,
			Confidence:  it.Confidence,
			RawLine:     it.RawLine,
		})
	}
	return rows
}
