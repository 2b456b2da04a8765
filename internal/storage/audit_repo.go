package storage

import (
	"context"
	"fmt"
)

// ModelCallRecord is one audited AI call. Rows are append-only; the
// per-summary attempt log is the condensed view, this table keeps everything.
type ModelCallRecord struct {
	CallID    string
	JobID     string
	FileID    string
	Model     string
	Phase     string // probe | chunk | repair | reprocess
	Status    string
	ErrorType string
}

type AuditRepo struct {
	db *DB
}

func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Insert(ctx context.Context, rec ModelCallRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO model_calls (call_id, job_id, file_id, model, phase, status, error_type)
VALUES (COALESCE(NULLIF($1,'')::uuid, gen_random_uuid()), $2, NULLIF($3,''), $4, $5, $6, NULLIF($7,''))`,
		rec.CallID, rec.JobID, rec.FileID, rec.Model, rec.Phase, rec.Status, rec.ErrorType)
	if err != nil {
		return fmt.Errorf("insert model call: %w", err)
	}
	return nil
}
