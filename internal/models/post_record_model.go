package models

import "time"

type PostRecordState string

const (
	PostRecordPending PostRecordState = "PENDING"
	PostRecordRunning PostRecordState = "RUNNING"
	PostRecordDone    PostRecordState = "DONE"
	PostRecordFailed  PostRecordState = "FAILED"
)

type ResumeMode string

const (
	ResumeModeNew           ResumeMode = "NEW"
	ResumeModeContinue      ResumeMode = "CONTINUE"
	ResumeModeContinueRetry ResumeMode = "CONTINUE_RETRY"
)

func (m ResumeMode) Valid() bool {
	switch m {
	case ResumeModeNew, ResumeModeContinue, ResumeModeContinueRetry:
		return true
	}
	return false
}

type AttemptStatus string

const (
	AttemptUnstarted  AttemptStatus = "UNSTARTED"
	AttemptAttempting AttemptStatus = "ATTEMPTING"
	AttemptSucceeded  AttemptStatus = "SUCCEEDED"
	AttemptFailed     AttemptStatus = "FAILED"
)

// Terminal reports whether the attempt has reached an outcome.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptSucceeded || s == AttemptFailed
}

type PostRecord struct {
	ID           string               `db:"id" json:"id"`
	SubmissionID string               `db:"submission_id" json:"submission_id"`
	State        PostRecordState      `db:"state" json:"state"`
	ResumeMode   ResumeMode           `db:"resume_mode" json:"resume_mode"`
	CreatedAt    time.Time            `db:"created_at" json:"created_at"`
	CompletedAt  *time.Time           `db:"completed_at" json:"completed_at,omitempty"`
	Children     []*WebsitePostRecord `db:"-" json:"children"`
}

// Child returns the WebsitePostRecord for the account, or nil.
func (r *PostRecord) Child(accountID string) *WebsitePostRecord {
	for _, c := range r.Children {
		if c.AccountID == accountID {
			return c
		}
	}
	return nil
}

type WebsitePostMetadata struct {
	PostedFiles     []string `json:"posted_files"`
	NextBatchNumber int      `json:"next_batch_number"`
	SourceURLs      []string `json:"source_urls,omitempty"`
}

type WebsiteError struct {
	FileID  string    `json:"file_id,omitempty"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// WebsitePostRecord is the per-account child of a PostRecord. Everything but
// the identity columns is a projection of the ledger.
type WebsitePostRecord struct {
	ID           string              `db:"id" json:"id"`
	PostRecordID string              `db:"post_record_id" json:"post_record_id"`
	AccountID    string              `db:"account_id" json:"account_id"`
	Status       AttemptStatus       `db:"status" json:"status"`
	Metadata     WebsitePostMetadata `db:"metadata" json:"metadata"`
	Errors       []WebsiteError      `db:"errors" json:"errors"`
	CompletedAt  *time.Time          `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time           `db:"created_at" json:"created_at"`
}

// HasPosted reports whether the file is already on the remote site.
func (w *WebsitePostRecord) HasPosted(fileID string) bool {
	for _, id := range w.Metadata.PostedFiles {
		if id == fileID {
			return true
		}
	}
	return false
}
