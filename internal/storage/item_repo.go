package storage

import (
	"context"
	"fmt"

	"orcaflow/internal/models"

	"github.com/jackc/pgx/v5"
)

type ItemRepo struct {
	db *DB
}

func NewItemRepo(db *DB) *ItemRepo {
	return &ItemRepo{db: db}
}

const itemInsertSQL = `
INSERT INTO extraction_items
  (item_id, job_id, file_id, chunk_index, position, description, unit, quantity, unit_price, total, confidence, raw_line)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7,''), $8, $9, $10, $11, NULLIF($12,''))`

// ReplaceChunkItems makes re-running a chunk idempotent: it deletes the
// chunk's previous rows and inserts the new ones inside one transaction,
// batching the inserts to keep round trips bounded.
func (r *ItemRepo) ReplaceChunkItems(ctx context.Context, jobID, fileID string, chunkIndex int, items []models.ExtractionItem, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 200
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace chunk items: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
DELETE FROM extraction_items WHERE job_id=$1 AND file_id=$2 AND chunk_index=$3`, jobID, fileID, chunkIndex)
	if err != nil {
		return fmt.Errorf("delete chunk items: %w", err)
	}

	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		batch := &pgx.Batch{}
		for i, it := range items[start:end] {
			batch.Queue(itemInsertSQL,
				it.ItemID, jobID, fileID, chunkIndex, start+i,
				it.Description, it.Unit, it.Quantity, it.UnitPrice, it.Total, it.Confidence, it.RawLine)
		}
		br := tx.SendBatch(ctx, batch)
		for range items[start:end] {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert chunk item: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close item batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace chunk items: %w", err)
	}
	return nil
}

// ReplaceFileItems swaps the file's entire item set, used after a
// whole-document pass (direct PDF or merged dedup result).
func (r *ItemRepo) ReplaceFileItems(ctx context.Context, jobID, fileID string, items []models.ExtractionItem, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 200
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace file items: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `DELETE FROM extraction_items WHERE job_id=$1 AND file_id=$2`, jobID, fileID)
	if err != nil {
		return fmt.Errorf("delete file items: %w", err)
	}

	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		batch := &pgx.Batch{}
		for i, it := range items[start:end] {
			batch.Queue(itemInsertSQL,
				it.ItemID, jobID, fileID, it.ChunkIndex, start+i,
				it.Description, it.Unit, it.Quantity, it.UnitPrice, it.Total, it.Confidence, it.RawLine)
		}
		br := tx.SendBatch(ctx, batch)
		for range items[start:end] {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert file item: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close item batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace file items: %w", err)
	}
	return nil
}

func (r *ItemRepo) DeleteJobItems(ctx context.Context, jobID string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM extraction_items WHERE job_id=$1`, jobID)
	if err != nil {
		return fmt.Errorf("delete job items: %w", err)
	}
	return nil
}

// CountItemsByJob is the persisted ground truth the validator reads; in-memory
// counters can drift from what actually committed.
func (r *ItemRepo) CountItemsByJob(ctx context.Context, jobID string) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM extraction_items WHERE job_id=$1`, jobID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count job items: %w", err)
	}
	return n, nil
}

func (r *ItemRepo) ListItemsByFile(ctx context.Context, jobID, fileID string) ([]models.ExtractionItem, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT item_id, job_id, file_id, chunk_index, position, description, COALESCE(unit,''),
       quantity, unit_price, total, confidence, COALESCE(raw_line,''), created_at
FROM extraction_items
WHERE job_id=$1 AND file_id=$2
ORDER BY chunk_index NULLS FIRST, position ASC`, jobID, fileID)
	if err != nil {
		return nil, fmt.Errorf("list items by file: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

func (r *ItemRepo) ListItemsByJob(ctx context.Context, jobID string) ([]models.ExtractionItem, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT item_id, job_id, file_id, chunk_index, position, description, COALESCE(unit,''),
       quantity, unit_price, total, confidence, COALESCE(raw_line,''), created_at
FROM extraction_items
WHERE job_id=$1
ORDER BY file_id, chunk_index NULLS FIRST, position ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list items by job: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

func scanItems(rows pgx.Rows) ([]models.ExtractionItem, error) {
	var out []models.ExtractionItem
	for rows.Next() {
		var it models.ExtractionItem
		err := rows.Scan(&it.ItemID, &it.JobID, &it.FileID, &it.ChunkIndex, &it.Position,
			&it.Description, &it.Unit, &it.Quantity, &it.UnitPrice, &it.Total,
			&it.Confidence, &it.RawLine, &it.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan extraction item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
