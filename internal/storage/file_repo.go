package storage

import (
	"context"
	"errors"
	"fmt"

	"orcaflow/internal/models"

	"github.com/jackc/pgx/v5"
)

type FileRepo struct {
	db *DB
}

func NewFileRepo(db *DB) *FileRepo {
	return &FileRepo{db: db}
}

const fileColumns = `file_id, job_id, COALESCE(role,'unknown'), filename, COALESCE(content_type,''), storage_path,
       extracted_text, COALESCE(extract_method,''), page_count, chunks_total, chunks_done,
       items_inserted, duration_ms, COALESCE(last_error,''), created_at, updated_at`

func scanFile(row pgx.Row) (models.SourceFile, error) {
	var f models.SourceFile
	err := row.Scan(&f.FileID, &f.JobID, &f.Role, &f.Filename, &f.ContentType, &f.StoragePath,
		&f.ExtractedText, &f.ExtractMethod, &f.PageCount, &f.ChunksTotal, &f.ChunksDone,
		&f.ItemsInserted, &f.DurationMS, &f.LastError, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

func (r *FileRepo) CreateFile(ctx context.Context, f models.SourceFile) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO source_files (file_id, job_id, role, filename, content_type, storage_path)
VALUES ($1, $2, $3, $4, NULLIF($5,''), $6)
ON CONFLICT (file_id) DO NOTHING`,
		f.FileID, f.JobID, f.Role, f.Filename, f.ContentType, f.StoragePath)
	if err != nil {
		return fmt.Errorf("create source file: %w", err)
	}
	return nil
}

func (r *FileRepo) GetFile(ctx context.Context, fileID string) (models.SourceFile, error) {
	f, err := scanFile(r.db.Pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM source_files WHERE file_id=$1`, fileID))
	if err != nil {
		return models.SourceFile{}, fmt.Errorf("get source file: %w", err)
	}
	return f, nil
}

// ListFilesByJob returns the job's files with synthetic budgets first, so
// callers can take the preferred document by position.
func (r *FileRepo) ListFilesByJob(ctx context.Context, jobID string) ([]models.SourceFile, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT `+fileColumns+`
FROM source_files
WHERE job_id=$1
ORDER BY CASE role WHEN 'synthetic' THEN 0 WHEN 'analytic' THEN 1 ELSE 2 END, created_at ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list files by job: %w", err)
	}
	defer rows.Close()
	var out []models.SourceFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source file: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *FileRepo) UpdateFileText(ctx context.Context, fileID, text, method string, pageCount *int) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE source_files
SET extracted_text=$2, extract_method=$3, page_count=$4, updated_at=NOW()
WHERE file_id=$1`, fileID, text, method, pageCount)
	if err != nil {
		return fmt.Errorf("update file text: %w", err)
	}
	return nil
}

func (r *FileRepo) UpdateFileProgress(ctx context.Context, fileID string, chunksTotal, chunksDone, itemsInserted int, durationMS int64, lastError string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE source_files
SET chunks_total=$2, chunks_done=$3, items_inserted=$4, duration_ms=$5, last_error=NULLIF($6,''), updated_at=NOW()
WHERE file_id=$1`, fileID, chunksTotal, chunksDone, itemsInserted, durationMS, lastError)
	if err != nil {
		return fmt.Errorf("update file progress: %w", err)
	}
	return nil
}

var ErrNoFiles = errors.New("job has no source files")
