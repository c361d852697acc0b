package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/maheshrc27/crosspost/internal/models"
)

// SubmissionRepository is read-only to the posting engine except for the
// archive flag.
type SubmissionRepository interface {
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	SetArchived(ctx context.Context, id string, archived bool) error
}

type submissionRepository struct {
	db *sql.DB
}

func NewSubmissionRepository(db *sql.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	query := `SELECT id, submission_type, title, is_archived, scheduled_for, created_at, updated_at FROM submissions WHERE id = $1`

	var s models.Submission
	var scheduledFor sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.Type, &s.Title, &s.IsArchived, &scheduledFor, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, fmt.Errorf("query submission: %w", err)
	}
	if scheduledFor.Valid {
		t := scheduledFor.Time
		s.Schedule.ScheduledFor = &t
	}

	if s.Options, err = r.listOptions(ctx, id); err != nil {
		return nil, err
	}
	if s.Files, err = r.listFiles(ctx, id); err != nil {
		return nil, err
	}

	return &s, nil
}

func (r *submissionRepository) listOptions(ctx context.Context, submissionID string) ([]models.WebsiteOptions, error) {
	query := `SELECT id, submission_id, account_id, is_default, data, created_at
		FROM website_options WHERE submission_id = $1 ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, submissionID)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("query options: %w", err)
	}
	defer rows.Close()

	var options []models.WebsiteOptions
	for rows.Next() {
		var o models.WebsiteOptions
		var accountID sql.NullString
		var data []byte
		if err := rows.Scan(&o.ID, &o.SubmissionID, &accountID, &o.IsDefault, &data, &o.CreatedAt); err != nil {
			slog.Info(err.Error())
			return nil, fmt.Errorf("scan options: %w", err)
		}
		o.AccountID = accountID.String
		if len(data) > 0 {
			if err := json.Unmarshal(data, &o.Data); err != nil {
				return nil, fmt.Errorf("decode options %s: %w", o.ID, err)
			}
		}
		options = append(options, o)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return options, nil
}

func (r *submissionRepository) listFiles(ctx context.Context, submissionID string) ([]models.SubmissionFile, error) {
	query := `SELECT id, submission_id, file_name, mime_type, file_size, storage_key, display_order, ignored_accounts, created_at
		FROM submission_files WHERE submission_id = $1 ORDER BY display_order, id`

	rows, err := r.db.QueryContext(ctx, query, submissionID)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	var files []models.SubmissionFile
	for rows.Next() {
		var f models.SubmissionFile
		var ignored pq.StringArray
		if err := rows.Scan(&f.ID, &f.SubmissionID, &f.FileName, &f.MimeType, &f.Size, &f.StorageKey, &f.Order, &ignored, &f.CreatedAt); err != nil {
			slog.Info(err.Error())
			return nil, fmt.Errorf("scan files: %w", err)
		}
		f.IgnoredAccounts = ignored
		files = append(files, f)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return files, nil
}

func (r *submissionRepository) SetArchived(ctx context.Context, id string, archived bool) error {
	query := `
		UPDATE submissions
		SET is_archived = $1,
			updated_at = NOW()
		WHERE id = $2
	`
	_, err := r.db.ExecContext(ctx, query, archived, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
