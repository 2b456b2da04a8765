package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"orcaflow/internal/config"
	"orcaflow/internal/docstore"
	"orcaflow/internal/models"
	"orcaflow/internal/providers"
	"orcaflow/internal/storage"
	"orcaflow/internal/util"
	"orcaflow/internal/workflows"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
	"golang.org/x/sync/errgroup"
)

type Server struct {
	cfg         config.Config
	db          *storage.DB
	jobRepo     *storage.JobRepo
	fileRepo    *storage.FileRepo
	itemRepo    *storage.ItemRepo
	summaryRepo *storage.SummaryRepo
	docs        docstore.Store
	temporal    tclient.Client
}

func NewServer(cfg config.Config) *Server {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		panic(err)
	}
	docs, err := docstore.New(ctx, cfg)
	if err != nil {
		panic(err)
	}
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		panic(err)
	}
	return &Server{
		cfg:         cfg,
		db:          db,
		jobRepo:     storage.NewJobRepo(db),
		fileRepo:    storage.NewFileRepo(db),
		itemRepo:    storage.NewItemRepo(db),
		summaryRepo: storage.NewSummaryRepo(db),
		docs:        docs,
		temporal:    tc,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))
	r.Get("/healthz", s.handleHealthz)
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", s.handleCreateJob)
		r.Get("/{jobID}", s.handleGetJob)
		r.Get("/{jobID}/items", s.handleListItems)
		r.Post("/{jobID}/extract", s.handleExtract)
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleCreateJob registers a job and stores its source document. The job
// stays queued until extraction is invoked.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}
	fh, ok := firstFile(r.MultipartForm.File)
	if !ok {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no file provided"))
		return
	}
	src, err := fh.Open()
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("open upload: %w", err))
		return
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("read upload: %w", err))
		return
	}

	jobID := strings.TrimSpace(r.FormValue("job_id"))
	if jobID == "" {
		jobID = uuid.NewString()
	}
	filename := filepath.Base(fh.Filename)
	storagePath := util.SafeJoin("jobs/"+jobID, filename)
	contentType := fh.Header.Get("Content-Type")

	if err := s.docs.Put(r.Context(), storagePath, data, contentType); err != nil {
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("store document: %w", err))
		return
	}
	if err := s.jobRepo.CreateJob(r.Context(), jobID); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	// Content-addressed file id: re-uploading the same document is a no-op
	// thanks to CreateFile's conflict handling.
	file := models.SourceFile{
		FileID:      util.SHA256Hex(data),
		JobID:       jobID,
		Role:        detectRole(r.FormValue("role"), filename),
		Filename:    filename,
		ContentType: contentType,
		StoragePath: storagePath,
	}
	if err := s.fileRepo.CreateFile(r.Context(), file); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"job_id":  jobID,
		"file_id": file.FileID,
		"role":    file.Role,
		"status":  models.JobQueued,
	})
}

// handleExtract is the single idempotent entry point: done jobs are a
// no-op, running jobs report their current state, everything else starts
// (or restarts) the extraction workflow.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.jobRepo.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("job not found"))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if job.Status == models.JobDone {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":          true,
			"job_id":      jobID,
			"status":      job.Status,
			"reason_code": job.ReasonCode,
			"message":     job.Message,
		})
		return
	}

	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       "extract-" + jobID,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.ExtractionWorkflow, s.extractionInput(jobID))
	if err != nil {
		// A live run already owns this workflow id; report current state
		// instead of failing the caller.
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":          true,
			"job_id":      jobID,
			"status":      job.Status,
			"reason_code": job.ReasonCode,
			"message":     "extraction already in progress",
		})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"ok":          true,
		"job_id":      jobID,
		"status":      models.JobRunning,
		"workflow_id": we.GetID(),
		"run_id":      we.GetRunID(),
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.jobRepo.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("job not found"))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	out := map[string]any{"job": job}

	// Files/summary come from the ledger and progress from a live workflow
	// query against Temporal; both are best-effort and independent, so they
	// run concurrently.
	var (
		files   []models.SourceFile
		summary *models.ExtractionSummary
		prog    *workflows.JobProgress
	)
	var g errgroup.Group
	g.Go(func() error {
		fs, err := s.fileRepo.ListFilesByJob(r.Context(), jobID)
		if err != nil {
			return nil
		}
		// Extracted text can be large; the job view carries metadata only.
		for i := range fs {
			fs[i].ExtractedText = nil
		}
		files = fs
		if len(fs) > 0 {
			if sum, err := s.summaryRepo.GetSummary(r.Context(), jobID, fs[0].FileID); err == nil {
				summary = &sum
			}
		}
		return nil
	})
	g.Go(func() error {
		resp, err := s.temporal.QueryWorkflow(r.Context(), "extract-"+jobID, "", workflows.QueryGetJobStatus)
		if err != nil {
			return nil
		}
		var p workflows.JobProgress
		if err := resp.Get(&p); err == nil {
			prog = &p
		}
		return nil
	})
	_ = g.Wait()

	if files != nil {
		out["files"] = files
	}
	if summary != nil {
		out["summary"] = *summary
	}
	if prog != nil {
		out["progress"] = *prog
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	items, err := s.itemRepo.ListItemsByJob(r.Context(), jobID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "count": len(items), "items": items})
}

func (s *Server) extractionInput(jobID string) workflows.ExtractionInput {
	return workflows.ExtractionInput{
		JobID:            jobID,
		ModelCandidates:  providers.ParseModelList(s.cfg.ModelCandidates),
		ChunkSize:        s.cfg.ChunkSize,
		ChunkOverlap:     s.cfg.ChunkOverlap,
		BoundaryMode:     s.cfg.ChunkBoundaryMode,
		MaxChunks:        s.cfg.MaxChunks,
		ChunkConcurrency: s.cfg.ChunkConcurrency,
		MinItemThreshold: s.cfg.MinItemThreshold,
		ItemsPerPage:     s.cfg.ItemsPerPage,
		MinExpectedItems: s.cfg.MinExpectedItems,
		RetryAfterSecs:   s.cfg.RetryAfterSecs,
	}
}

// detectRole honors an explicit role field and falls back to the Brazilian
// budget naming convention in the filename.
func detectRole(explicit, filename string) string {
	switch strings.ToLower(strings.TrimSpace(explicit)) {
	case models.FileRoleSynthetic:
		return models.FileRoleSynthetic
	case models.FileRoleAnalytic:
		return models.FileRoleAnalytic
	}
	lower := strings.ToLower(filename)
	switch {
	case strings.Contains(lower, "sint"):
		return models.FileRoleSynthetic
	case strings.Contains(lower, "anal"):
		return models.FileRoleAnalytic
	}
	return models.FileRoleUnknown
}

func firstFile(m map[string][]*multipart.FileHeader) (*multipart.FileHeader, bool) {
	if v := m["file"]; len(v) > 0 {
		return v[0], true
	}
	for _, v := range m {
		if len(v) > 0 {
			return v[0], true
		}
	}
	return nil, false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	if status >= 500 {
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{Code: "OF-DB-5001", Message: "Database schema is not initialized. Run migrations and retry."}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{Code: "OF-DB-5002", Message: "Database connection is unavailable. Check local services and retry."}
		default:
			return apiError{Code: "OF-API-5000", Message: "Internal server error. Please retry or check service logs."}
		}
	}

	code := "OF-API-4000"
	msg := "Request failed."
	switch status {
	case http.StatusBadRequest:
		code = "OF-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case http.StatusNotFound:
		code = "OF-API-4004"
		msg = "Requested resource was not found."
	case http.StatusConflict:
		code = "OF-API-4009"
		msg = "Operation conflicts with current state. Retry after checking status."
	case http.StatusMethodNotAllowed:
		code = "OF-API-4005"
		msg = "This endpoint does not support the requested method."
	}
	switch {
	case strings.Contains(raw, "no file provided"):
		msg = "No document file was provided."
	case strings.Contains(raw, "job not found"):
		msg = "Job was not found."
	case strings.Contains(raw, "parse multipart"):
		msg = "Malformed multipart upload."
	}
	return apiError{Code: code, Message: msg}
}
