package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/crosspost/internal/models"
)

// PostEventRepository is append-only: there is no update or delete.
type PostEventRepository interface {
	Append(ctx context.Context, ev *models.PostEvent) error
	ListByPostRecord(ctx context.Context, postRecordID string) ([]*models.PostEvent, error)
	ListBySubmission(ctx context.Context, submissionID string) ([]*models.PostEvent, error)
}

const postEventColumns = `id, post_record_id, submission_id, account_id, sequence, event_type,
	file_id, source_url, error, metadata, created_at`

type postEventRepository struct {
	db *sql.DB
}

func NewPostEventRepository(db *sql.DB) PostEventRepository {
	return &postEventRepository{db: db}
}

func (r *postEventRepository) Append(ctx context.Context, ev *models.PostEvent) error {
	args, err := appendEventArgs(ev)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO post_events (id, post_record_id, submission_id, account_id, sequence, event_type,
			file_id, source_url, error, metadata, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11)
	`
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("append post event: %w", err)
	}
	return nil
}

func appendEventArgs(ev *models.PostEvent) ([]any, error) {
	var errArg, metaArg any
	if ev.Error != nil {
		b, err := json.Marshal(ev.Error)
		if err != nil {
			return nil, fmt.Errorf("encode event error: %w", err)
		}
		errArg = string(b)
	}
	if ev.Metadata != nil {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode event metadata: %w", err)
		}
		metaArg = string(b)
	}

	// A nil []byte reaches lib/pq as an empty value, which jsonb rejects;
	// absent payloads must be an untyped nil to be sent as NULL.
	return []any{ev.ID, ev.PostRecordID, ev.SubmissionID, ev.AccountID, ev.Sequence,
		ev.EventType, ev.FileID, ev.SourceURL, errArg, metaArg, ev.CreatedAt}, nil
}

func (r *postEventRepository) ListByPostRecord(ctx context.Context, postRecordID string) ([]*models.PostEvent, error) {
	query := `SELECT ` + postEventColumns + ` FROM post_events WHERE post_record_id = $1 ORDER BY sequence`
	return r.list(ctx, query, postRecordID)
}

func (r *postEventRepository) ListBySubmission(ctx context.Context, submissionID string) ([]*models.PostEvent, error) {
	query := `SELECT ` + postEventColumns + ` FROM post_events WHERE submission_id = $1 ORDER BY created_at, sequence`
	return r.list(ctx, query, submissionID)
}

func (r *postEventRepository) list(ctx context.Context, query string, arg string) ([]*models.PostEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("query post events: %w", err)
	}
	defer rows.Close()

	var events []*models.PostEvent
	for rows.Next() {
		var ev models.PostEvent
		var accountID, fileID, sourceURL sql.NullString
		var errJSON, metaJSON []byte
		err := rows.Scan(&ev.ID, &ev.PostRecordID, &ev.SubmissionID, &accountID, &ev.Sequence, &ev.EventType,
			&fileID, &sourceURL, &errJSON, &metaJSON, &ev.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, fmt.Errorf("scan post event: %w", err)
		}
		ev.AccountID = accountID.String
		ev.FileID = fileID.String
		ev.SourceURL = sourceURL.String
		if len(errJSON) > 0 {
			ev.Error = &models.EventError{}
			if err := json.Unmarshal(errJSON, ev.Error); err != nil {
				return nil, fmt.Errorf("decode event error: %w", err)
			}
		}
		if len(metaJSON) > 0 {
			ev.Metadata = &models.EventMetadata{}
			if err := json.Unmarshal(metaJSON, ev.Metadata); err != nil {
				return nil, fmt.Errorf("decode event metadata: %w", err)
			}
		}
		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return events, nil
}
