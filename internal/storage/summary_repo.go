package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"orcaflow/internal/models"
)

type SummaryRepo struct {
	db *DB
}

func NewSummaryRepo(db *DB) *SummaryRepo {
	return &SummaryRepo{db: db}
}

// UpsertSummary writes the per-file extraction header. When the full write
// fails (often an oversized attempts payload), it falls back to a reduced
// record so the run still leaves an auditable trace.
func (r *SummaryRepo) UpsertSummary(ctx context.Context, s models.ExtractionSummary) error {
	attempts, err := json.Marshal(s.Attempts)
	if err != nil {
		attempts = []byte("[]")
	}
	candidates, err := json.Marshal(s.ModelCandidates)
	if err != nil {
		candidates = []byte("[]")
	}
	perf, err := json.Marshal(s.Perf)
	if err != nil {
		perf = []byte("{}")
	}

	_, err = r.db.Pool.Exec(ctx, `
INSERT INTO extraction_summaries
  (job_id, file_id, notes, item_count, model_used, model_candidates, attempts, perf, updated_at)
VALUES ($1, $2, $3, $4, NULLIF($5,''), $6, $7, $8, NOW())
ON CONFLICT (job_id, file_id) DO UPDATE SET
  notes=EXCLUDED.notes, item_count=EXCLUDED.item_count, model_used=EXCLUDED.model_used,
  model_candidates=EXCLUDED.model_candidates, attempts=EXCLUDED.attempts, perf=EXCLUDED.perf,
  updated_at=NOW()`,
		s.JobID, s.FileID, s.Notes, s.ItemCount, s.ModelUsed, candidates, attempts, perf)
	if err == nil {
		return nil
	}

	_, rerr := r.db.Pool.Exec(ctx, `
INSERT INTO extraction_summaries (job_id, file_id, notes, item_count, model_used, updated_at)
VALUES ($1, $2, $3, $4, NULLIF($5,''), NOW())
ON CONFLICT (job_id, file_id) DO UPDATE SET
  notes=EXCLUDED.notes, item_count=EXCLUDED.item_count, model_used=EXCLUDED.model_used, updated_at=NOW()`,
		s.JobID, s.FileID, s.Notes, s.ItemCount, s.ModelUsed)
	if rerr != nil {
		return fmt.Errorf("upsert summary (full: %v): %w", err, rerr)
	}
	return nil
}

func (r *SummaryRepo) GetSummary(ctx context.Context, jobID, fileID string) (models.ExtractionSummary, error) {
	var s models.ExtractionSummary
	var candidates, attempts, perf []byte
	err := r.db.Pool.QueryRow(ctx, `
SELECT job_id, file_id, COALESCE(notes,''), item_count, COALESCE(model_used,''),
       COALESCE(model_candidates,'[]'), COALESCE(attempts,'[]'), COALESCE(perf,'{}'), updated_at
FROM extraction_summaries
WHERE job_id=$1 AND file_id=$2`, jobID, fileID).
		Scan(&s.JobID, &s.FileID, &s.Notes, &s.ItemCount, &s.ModelUsed, &candidates, &attempts, &perf, &s.UpdatedAt)
	if err != nil {
		return models.ExtractionSummary{}, fmt.Errorf("get summary: %w", err)
	}
	if err := json.Unmarshal(candidates, &s.ModelCandidates); err != nil {
		s.ModelCandidates = nil
	}
	if err := json.Unmarshal(attempts, &s.Attempts); err != nil {
		s.Attempts = nil
	}
	if err := json.Unmarshal(perf, &s.Perf); err != nil {
		s.Perf = nil
	}
	return s, nil
}
