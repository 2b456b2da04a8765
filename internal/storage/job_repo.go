package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orcaflow/internal/models"

	"github.com/jackc/pgx/v5"
)

type JobRepo struct {
	db *DB
}

func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

const jobColumns = `job_id, status, COALESCE(current_step,''), COALESCE(reason_code,''), COALESCE(message,''),
       attempts, COALESCE(last_error,''), heartbeat_at, next_retry_at, COALESCE(debug_context,''), created_at, updated_at`

func scanJob(row pgx.Row) (models.Job, error) {
	var j models.Job
	err := row.Scan(&j.JobID, &j.Status, &j.CurrentStep, &j.ReasonCode, &j.Message,
		&j.Attempts, &j.LastError, &j.HeartbeatAt, &j.NextRetryAt, &j.DebugContext, &j.CreatedAt, &j.UpdatedAt)
	return j, err
}

func (r *JobRepo) CreateJob(ctx context.Context, jobID string) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO jobs (job_id, status)
VALUES ($1, 'queued')
ON CONFLICT (job_id) DO NOTHING`, jobID)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (r *JobRepo) GetJob(ctx context.Context, jobID string) (models.Job, error) {
	j, err := scanJob(r.db.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id=$1`, jobID))
	if err != nil {
		return models.Job{}, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// ClaimJob transitions a job to running with an optimistic status guard:
// only jobs in a claimable status, or running jobs whose heartbeat went
// stale, can be taken. Returns claimed=false when another run holds the job
// or the job is already done.
func (r *JobRepo) ClaimJob(ctx context.Context, jobID string, staleAfter time.Duration) (models.Job, bool, error) {
	row := r.db.Pool.QueryRow(ctx, `
UPDATE jobs
SET status='running', attempts=attempts+1, heartbeat_at=NOW(), next_retry_at=NULL, updated_at=NOW()
WHERE job_id=$1
  AND (status = ANY($2)
       OR (status='running' AND (heartbeat_at IS NULL OR heartbeat_at < NOW() - $3::interval)))
RETURNING `+jobColumns,
		jobID,
		[]string{models.JobQueued, models.JobRetryable, models.JobWaitingUser, models.JobFailed},
		fmt.Sprintf("%d seconds", int(staleAfter.Seconds())),
	)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, false, nil
	}
	if err != nil {
		return models.Job{}, false, fmt.Errorf("claim job: %w", err)
	}
	return j, true, nil
}

func (r *JobRepo) UpdateJobStatus(ctx context.Context, jobID, status, step, reason, message, lastError string, nextRetryAt *time.Time) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE jobs
SET status=$2, current_step=NULLIF($3,''), reason_code=NULLIF($4,''), message=NULLIF($5,''),
    last_error=NULLIF($6,''), next_retry_at=$7, heartbeat_at=NOW(), updated_at=NOW()
WHERE job_id=$1`, jobID, status, step, reason, message, lastError, nextRetryAt)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

func (r *JobRepo) Heartbeat(ctx context.Context, jobID, step string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE jobs SET current_step=NULLIF($2,''), heartbeat_at=NOW(), updated_at=NOW() WHERE job_id=$1`, jobID, step)
	if err != nil {
		return fmt.Errorf("heartbeat job: %w", err)
	}
	return nil
}

func (r *JobRepo) SetDebugContext(ctx context.Context, jobID, debug string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE jobs SET debug_context=$2, updated_at=NOW() WHERE job_id=$1`, jobID, debug)
	if err != nil {
		return fmt.Errorf("set job debug context: %w", err)
	}
	return nil
}

// ListDueRetryJobs returns retryable jobs whose backoff has elapsed.
func (r *JobRepo) ListDueRetryJobs(ctx context.Context, limit int) ([]models.Job, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT `+jobColumns+`
FROM jobs
WHERE status=$1 AND (next_retry_at IS NULL OR next_retry_at <= NOW())
ORDER BY updated_at ASC
LIMIT $2`, models.JobRetryable, limit)
	if err != nil {
		return nil, fmt.Errorf("list due retry jobs: %w", err)
	}
	defer rows.Close()
	out := make([]models.Job, 0, limit)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan retry job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// MarkStaleRunning flips running jobs with stale heartbeats to retryable so
// the sweep can re-drive them.
func (r *JobRepo) MarkStaleRunning(ctx context.Context, staleAfter time.Duration, limit int) (int, error) {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE jobs
SET status=$1, reason_code=$2, message='run stalled; rescheduled by watchdog', next_retry_at=NOW(), updated_at=NOW()
WHERE job_id IN (
  SELECT job_id FROM jobs
  WHERE status='running' AND heartbeat_at IS NOT NULL AND heartbeat_at < NOW() - $3::interval
  ORDER BY heartbeat_at ASC
  LIMIT $4
)`, models.JobRetryable, models.ReasonAIUnavailable, fmt.Sprintf("%d seconds", int(staleAfter.Seconds())), limit)
	if err != nil {
		return 0, fmt.Errorf("mark stale running jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
