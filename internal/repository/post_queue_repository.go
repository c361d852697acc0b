package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/maheshrc27/crosspost/internal/models"
)

type PostQueueRepository interface {
	// Insert returns false when the submission already has a queue record.
	Insert(ctx context.Context, rec *models.PostQueueRecord) (bool, error)
	List(ctx context.Context) ([]*models.PostQueueRecord, error)
	MaxPosition(ctx context.Context) (int, error)
	// PopNext deletes and returns the lowest-position record whose submission
	// has no RUNNING post record. Concurrent callers never receive the same row.
	PopNext(ctx context.Context) (*models.PostQueueRecord, error)
	SetPositions(ctx context.Context, positions map[string]int) error
	DeleteBySubmission(ctx context.Context, submissionIDs []string) (int64, error)
}

const postQueueColumns = `id, submission_id, position, resume_mode, created_at`

type postQueueRepository struct {
	db *sql.DB
}

func NewPostQueueRepository(db *sql.DB) PostQueueRepository {
	return &postQueueRepository{db: db}
}

func (r *postQueueRepository) Insert(ctx context.Context, rec *models.PostQueueRecord) (bool, error) {
	query := `
		INSERT INTO post_queue (id, submission_id, position, resume_mode, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (submission_id) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query, rec.ID, rec.SubmissionID, rec.Position, rec.ResumeMode, rec.CreatedAt)
	if err != nil {
		slog.Info(err.Error())
		return false, fmt.Errorf("insert queue record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanQueueRecords(rows *sql.Rows) ([]*models.PostQueueRecord, error) {
	var records []*models.PostQueueRecord
	for rows.Next() {
		var q models.PostQueueRecord
		if err := rows.Scan(&q.ID, &q.SubmissionID, &q.Position, &q.ResumeMode, &q.CreatedAt); err != nil {
			slog.Info(err.Error())
			return nil, fmt.Errorf("scan queue record: %w", err)
		}
		records = append(records, &q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return records, nil
}

func (r *postQueueRepository) List(ctx context.Context) ([]*models.PostQueueRecord, error) {
	query := `SELECT ` + postQueueColumns + ` FROM post_queue ORDER BY position, created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("query queue: %w", err)
	}
	defer rows.Close()

	return scanQueueRecords(rows)
}

func (r *postQueueRepository) MaxPosition(ctx context.Context) (int, error) {
	var pos int
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), -1) FROM post_queue`).Scan(&pos); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return pos, nil
}

func (r *postQueueRepository) PopNext(ctx context.Context) (*models.PostQueueRecord, error) {
	query := `
		DELETE FROM post_queue
		WHERE id = (
			SELECT q.id FROM post_queue q
			WHERE NOT EXISTS (
				SELECT 1 FROM post_records p
				WHERE p.submission_id = q.submission_id AND p.state = $1
			)
			ORDER BY q.position, q.created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + postQueueColumns

	var q models.PostQueueRecord
	err := r.db.QueryRowContext(ctx, query, models.PostRecordRunning).Scan(&q.ID, &q.SubmissionID, &q.Position, &q.ResumeMode, &q.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, fmt.Errorf("pop queue record: %w", err)
	}
	return &q, nil
}

func (r *postQueueRepository) SetPositions(ctx context.Context, positions map[string]int) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	for id, pos := range positions {
		if _, err := tx.ExecContext(ctx, `UPDATE post_queue SET position = $1 WHERE id = $2`, pos, id); err != nil {
			slog.Info(err.Error())
			return fmt.Errorf("update position: %w", err)
		}
	}

	return tx.Commit()
}

func (r *postQueueRepository) DeleteBySubmission(ctx context.Context, submissionIDs []string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM post_queue WHERE submission_id = ANY($1)`, pq.Array(submissionIDs))
	if err != nil {
		slog.Info(err.Error())
		return 0, fmt.Errorf("delete queue records: %w", err)
	}
	return result.RowsAffected()
}
