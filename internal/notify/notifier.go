// Package notify delivers user-facing outcomes of finished posts.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

// AccountResult is the outcome of one account of a post.
type AccountResult struct {
	AccountID  string               `json:"account_id"`
	Name       string               `json:"name,omitempty"`
	Website    string               `json:"website,omitempty"`
	Status     models.AttemptStatus `json:"status"`
	SourceURLs []string             `json:"source_urls,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// Notification is emitted when a PostRecord reaches DONE or FAILED.
type Notification struct {
	Title        string                 `json:"title"`
	SubmissionID string                 `json:"submission_id"`
	PostRecordID string                 `json:"post_record_id"`
	State        models.PostRecordState `json:"state"`
	Accounts     []AccountResult        `json:"accounts"`
	ErrorSummary string                 `json:"error_summary,omitempty"`
	At           time.Time              `json:"at"`
}

type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, n Notification) error {
	attrs := []any{
		"submission_id", n.SubmissionID,
		"post_record_id", n.PostRecordID,
		"title", n.Title,
		"state", n.State,
		"accounts", len(n.Accounts),
	}
	if n.State == models.PostRecordDone {
		slog.Info("post finished", attrs...)
		return nil
	}
	slog.Warn("post failed", append(attrs, "errors", n.ErrorSummary)...)
	return nil
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
