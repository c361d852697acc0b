package models

import "time"

type SubmissionType string

const (
	SubmissionTypeFile    SubmissionType = "FILE"
	SubmissionTypeMessage SubmissionType = "MESSAGE"
)

type Submission struct {
	ID         string           `db:"id" json:"id"`
	Type       SubmissionType   `db:"submission_type" json:"type"`
	Title      string           `db:"title" json:"title"`
	IsArchived bool             `db:"is_archived" json:"is_archived"`
	Schedule   Schedule         `db:"-" json:"schedule"`
	Options    []WebsiteOptions `db:"-" json:"options"`
	Files      []SubmissionFile `db:"-" json:"files"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

type Schedule struct {
	ScheduledFor *time.Time `db:"scheduled_for" json:"scheduled_for,omitempty"`
}

// WebsiteOptions holds the form data for one account of a submission. The
// record flagged IsDefault carries submission-wide fallback values and has no
// account.
type WebsiteOptions struct {
	ID           string         `db:"id" json:"id"`
	SubmissionID string         `db:"submission_id" json:"submission_id"`
	AccountID    string         `db:"account_id" json:"account_id,omitempty"`
	IsDefault    bool           `db:"is_default" json:"is_default"`
	Data         map[string]any `db:"data" json:"data"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

type SubmissionFile struct {
	ID              string    `db:"id" json:"id"`
	SubmissionID    string    `db:"submission_id" json:"submission_id"`
	FileName        string    `db:"file_name" json:"file_name"`
	MimeType        string    `db:"mime_type" json:"mime_type"`
	Size            int64     `db:"file_size" json:"size"`
	StorageKey      string    `db:"storage_key" json:"storage_key"`
	Order           int       `db:"display_order" json:"order"`
	IgnoredAccounts []string  `db:"ignored_accounts" json:"ignored_accounts,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// DefaultOptions returns the submission-wide default options record, if any.
func (s *Submission) DefaultOptions() *WebsiteOptions {
	for i := range s.Options {
		if s.Options[i].IsDefault {
			return &s.Options[i]
		}
	}
	return nil
}

// AccountOptions returns the non-default options, one per target account, in
// their stored order.
func (s *Submission) AccountOptions() []WebsiteOptions {
	var out []WebsiteOptions
	for _, o := range s.Options {
		if !o.IsDefault && o.AccountID != "" {
			out = append(out, o)
		}
	}
	return out
}

// MergedData overlays the account's own data on top of the default record.
func (s *Submission) MergedData(accountID string) map[string]any {
	merged := map[string]any{}
	if def := s.DefaultOptions(); def != nil {
		for k, v := range def.Data {
			merged[k] = v
		}
	}
	for _, o := range s.AccountOptions() {
		if o.AccountID != accountID {
			continue
		}
		for k, v := range o.Data {
			if v == nil {
				continue
			}
			if str, ok := v.(string); ok && str == "" {
				continue
			}
			merged[k] = v
		}
	}
	return merged
}

// IgnoredBy reports whether the file should not be sent to the account.
func (f SubmissionFile) IgnoredBy(accountID string) bool {
	for _, id := range f.IgnoredAccounts {
		if id == accountID {
			return true
		}
	}
	return false
}
