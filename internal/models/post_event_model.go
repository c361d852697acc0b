package models

import "time"

type PostEventType string

const (
	EventPostStarted          PostEventType = "POST_STARTED"
	EventPostResumed          PostEventType = "POST_RESUMED"
	EventPostAttemptStarted   PostEventType = "POST_ATTEMPT_STARTED"
	EventFilePosted           PostEventType = "FILE_POSTED"
	EventFileFailed           PostEventType = "FILE_FAILED"
	EventPostAttemptCompleted PostEventType = "POST_ATTEMPT_COMPLETED"
	EventPostAttemptFailed    PostEventType = "POST_ATTEMPT_FAILED"
	EventPostCompleted        PostEventType = "POST_COMPLETED"
	EventPostFailed           PostEventType = "POST_FAILED"
	EventPostCancelled        PostEventType = "POST_CANCELLED"
)

type EventError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type FileSnapshot struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

func (f SubmissionFile) Snapshot() *FileSnapshot {
	return &FileSnapshot{
		ID:       f.ID,
		FileName: f.FileName,
		MimeType: f.MimeType,
		Size:     f.Size,
	}
}

type EventMetadata struct {
	Account       *AccountSnapshot `json:"account,omitempty"`
	File          *FileSnapshot    `json:"file,omitempty"`
	ResumeMode    ResumeMode       `json:"resume_mode,omitempty"`
	ResetProgress bool             `json:"reset_progress,omitempty"`
	BatchNumber   int              `json:"batch_number,omitempty"`
}

// PostEvent is an immutable ledger entry. Events without an AccountID belong to
// the PostRecord as a whole.
type PostEvent struct {
	ID           string         `db:"id" json:"id"`
	PostRecordID string         `db:"post_record_id" json:"post_record_id"`
	SubmissionID string         `db:"submission_id" json:"submission_id"`
	AccountID    string         `db:"account_id" json:"account_id,omitempty"`
	Sequence     int64          `db:"sequence" json:"sequence"`
	EventType    PostEventType  `db:"event_type" json:"event_type"`
	FileID       string         `db:"file_id" json:"file_id,omitempty"`
	SourceURL    string         `db:"source_url" json:"source_url,omitempty"`
	Error        *EventError    `db:"error" json:"error,omitempty"`
	Metadata     *EventMetadata `db:"metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}
