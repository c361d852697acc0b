package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/crosspost/internal/models"
)

type PostRecordRepository interface {
	Create(ctx context.Context, rec *models.PostRecord) error
	GetByID(ctx context.Context, id string) (*models.PostRecord, error)
	LatestBySubmission(ctx context.Context, submissionID string) (*models.PostRecord, error)
	ListByState(ctx context.Context, state models.PostRecordState) ([]*models.PostRecord, error)
	Update(ctx context.Context, rec *models.PostRecord) error
	GetChild(ctx context.Context, id string) (*models.WebsitePostRecord, error)
	SaveChild(ctx context.Context, child *models.WebsitePostRecord) error
	HasRunning(ctx context.Context) (bool, error)
}

const postRecordColumns = `id, submission_id, state, resume_mode, created_at, completed_at`

const childColumns = `id, post_record_id, account_id, status, metadata, errors, completed_at, created_at`

type postRecordRepository struct {
	db *sql.DB
}

func NewPostRecordRepository(db *sql.DB) PostRecordRepository {
	return &postRecordRepository{db: db}
}

func (r *postRecordRepository) Create(ctx context.Context, rec *models.PostRecord) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO post_records (id, submission_id, state, resume_mode, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.ExecContext(ctx, query, rec.ID, rec.SubmissionID, rec.State, rec.ResumeMode, rec.CreatedAt, rec.CompletedAt); err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("insert post record: %w", err)
	}

	for _, child := range rec.Children {
		if err := saveChild(ctx, tx, child); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func scanPostRecord(row rowScanner) (*models.PostRecord, error) {
	var rec models.PostRecord
	var completed sql.NullTime
	if err := row.Scan(&rec.ID, &rec.SubmissionID, &rec.State, &rec.ResumeMode, &rec.CreatedAt, &completed); err != nil {
		return nil, err
	}
	if completed.Valid {
		t := completed.Time
		rec.CompletedAt = &t
	}
	return &rec, nil
}

func (r *postRecordRepository) GetByID(ctx context.Context, id string) (*models.PostRecord, error) {
	query := `SELECT ` + postRecordColumns + ` FROM post_records WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *postRecordRepository) LatestBySubmission(ctx context.Context, submissionID string) (*models.PostRecord, error) {
	query := `SELECT ` + postRecordColumns + ` FROM post_records WHERE submission_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`
	return r.getOne(ctx, query, submissionID)
}

func (r *postRecordRepository) getOne(ctx context.Context, query string, arg any) (*models.PostRecord, error) {
	rec, err := scanPostRecord(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, fmt.Errorf("query post record: %w", err)
	}

	if rec.Children, err = r.listChildren(ctx, rec.ID); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *postRecordRepository) ListByState(ctx context.Context, state models.PostRecordState) ([]*models.PostRecord, error) {
	query := `SELECT ` + postRecordColumns + ` FROM post_records WHERE state = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, state)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("query post records: %w", err)
	}
	defer rows.Close()

	var records []*models.PostRecord
	for rows.Next() {
		rec, err := scanPostRecord(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, fmt.Errorf("scan post record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	for _, rec := range records {
		if rec.Children, err = r.listChildren(ctx, rec.ID); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (r *postRecordRepository) Update(ctx context.Context, rec *models.PostRecord) error {
	query := `
		UPDATE post_records
		SET state = $1,
			resume_mode = $2,
			completed_at = $3
		WHERE id = $4
	`
	result, err := r.db.ExecContext(ctx, query, rec.State, rec.ResumeMode, rec.CompletedAt, rec.ID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("update post record %s: no rows affected", rec.ID)
	}
	return nil
}

func scanChild(row rowScanner) (*models.WebsitePostRecord, error) {
	var c models.WebsitePostRecord
	var metadata, errs []byte
	var completed sql.NullTime
	if err := row.Scan(&c.ID, &c.PostRecordID, &c.AccountID, &c.Status, &metadata, &errs, &completed, &c.CreatedAt); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &c.Errors); err != nil {
			return nil, fmt.Errorf("decode errors: %w", err)
		}
	}
	if completed.Valid {
		t := completed.Time
		c.CompletedAt = &t
	}
	return &c, nil
}

func (r *postRecordRepository) listChildren(ctx context.Context, postRecordID string) ([]*models.WebsitePostRecord, error) {
	query := `SELECT ` + childColumns + ` FROM website_post_records WHERE post_record_id = $1 ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, postRecordID)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("query website post records: %w", err)
	}
	defer rows.Close()

	var children []*models.WebsitePostRecord
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, fmt.Errorf("scan website post record: %w", err)
		}
		children = append(children, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return children, nil
}

func (r *postRecordRepository) GetChild(ctx context.Context, id string) (*models.WebsitePostRecord, error) {
	query := `SELECT ` + childColumns + ` FROM website_post_records WHERE id = $1`

	c, err := scanChild(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, fmt.Errorf("query website post record: %w", err)
	}
	return c, nil
}

func (r *postRecordRepository) SaveChild(ctx context.Context, child *models.WebsitePostRecord) error {
	return saveChild(ctx, r.db, child)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveChild(ctx context.Context, db execer, child *models.WebsitePostRecord) error {
	metadata, err := json.Marshal(child.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	errs, err := json.Marshal(child.Errors)
	if err != nil {
		return fmt.Errorf("encode errors: %w", err)
	}

	query := `
		INSERT INTO website_post_records (id, post_record_id, account_id, status, metadata, errors, completed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
			metadata = EXCLUDED.metadata,
			errors = EXCLUDED.errors,
			completed_at = EXCLUDED.completed_at
	`
	_, err = db.ExecContext(ctx, query, child.ID, child.PostRecordID, child.AccountID, child.Status,
		metadata, errs, child.CompletedAt, child.CreatedAt)
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("save website post record: %w", err)
	}
	return nil
}

func (r *postRecordRepository) HasRunning(ctx context.Context) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM post_records WHERE state = $1)`

	var running bool
	if err := r.db.QueryRowContext(ctx, query, models.PostRecordRunning).Scan(&running); err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return running, nil
}
