// Package records is the Post Record Manager. It turns a dequeued submission
// and its ledger history into a PostRecord whose children say which accounts
// still have work, and it records every outcome back into the ledger.
package records

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/crosspost/internal/apperr"
	"github.com/maheshrc27/crosspost/internal/ledger"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// FileOutcome is the result of posting one file to one account.
type FileOutcome struct {
	Posted      bool
	SourceURL   string
	BatchNumber int
	File        *models.FileSnapshot
	Err         error
}

// AttemptOutcome closes the attempt of one account.
type AttemptOutcome struct {
	SourceURL string
	Cancelled bool
	Err       error
}

type Manager struct {
	records     repository.PostRecordRepository
	submissions repository.SubmissionRepository
	accounts    repository.AccountRepository
	ledger      *ledger.Ledger
	now         func() time.Time
}

func NewManager(
	records repository.PostRecordRepository,
	submissions repository.SubmissionRepository,
	accounts repository.AccountRepository,
	l *ledger.Ledger) *Manager {
	return &Manager{
		records:     records,
		submissions: submissions,
		accounts:    accounts,
		ledger:      l,
		now:         time.Now,
	}
}

// Runnable returns the children that have an attempt in progress.
func Runnable(rec *models.PostRecord) []*models.WebsitePostRecord {
	var out []*models.WebsitePostRecord
	for _, c := range rec.Children {
		if c.Status == models.AttemptAttempting {
			out = append(out, c)
		}
	}
	return out
}

// BeginOrResume starts a new PostRecord for sub, or reopens its latest failed
// one according to mode. Every account that is about to run gets a
// POST_ATTEMPT_STARTED event; the returned record's ATTEMPTING children are
// the work to do.
func (m *Manager) BeginOrResume(ctx context.Context, sub *models.Submission, mode models.ResumeMode) (*models.PostRecord, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", apperr.ErrInvalidResumeMode, mode)
	}

	prior, err := m.records.LatestBySubmission(ctx, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("latest post record for %s: %w", sub.ID, err)
	}

	switch {
	case prior == nil, prior.State == models.PostRecordDone:
		return m.begin(ctx, sub)
	case prior.State == models.PostRecordRunning:
		return nil, &apperr.InternalConsistencyError{PostRecordID: prior.ID, Reason: "post record is already running"}
	default:
		return m.resume(ctx, sub, prior, mode)
	}
}

func (m *Manager) begin(ctx context.Context, sub *models.Submission) (*models.PostRecord, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("generate post record id: %w", err)
	}

	now := m.now().UTC()
	rec := &models.PostRecord{
		ID:           id,
		SubmissionID: sub.ID,
		State:        models.PostRecordRunning,
		ResumeMode:   models.ResumeModeNew,
		CreatedAt:    now,
	}
	for i, accountID := range targets(sub) {
		child, err := newChild(rec.ID, accountID, now.Add(time.Duration(i)*time.Microsecond))
		if err != nil {
			return nil, err
		}
		rec.Children = append(rec.Children, child)
	}
	if len(rec.Children) == 0 {
		return nil, &apperr.InternalConsistencyError{Reason: fmt.Sprintf("submission %s has no target accounts", sub.ID)}
	}

	if err := m.records.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create post record: %w", err)
	}

	err = m.ledger.Write(ctx, rec.ID, func(w *ledger.Writer) error {
		if err := w.Append(&models.PostEvent{
			SubmissionID: sub.ID,
			EventType:    models.EventPostStarted,
			Metadata:     &models.EventMetadata{ResumeMode: rec.ResumeMode},
		}); err != nil {
			return err
		}
		for _, child := range rec.Children {
			if err := m.startAttempt(ctx, w, rec, child.AccountID, false); err != nil {
				return err
			}
		}
		return m.project(ctx, w, rec)
	})
	if err != nil {
		m.abort(ctx, rec, err)
		return nil, err
	}

	slog.Info("post record started", "post_record_id", rec.ID, "submission_id", sub.ID, "accounts", len(rec.Children))
	return rec, nil
}

func (m *Manager) resume(ctx context.Context, sub *models.Submission, rec *models.PostRecord, mode models.ResumeMode) (*models.PostRecord, error) {
	err := m.ledger.Write(ctx, rec.ID, func(w *ledger.Writer) error {
		ledger.FoldRecord(rec, w.Events())

		now := m.now().UTC()
		for i, accountID := range targets(sub) {
			if rec.Child(accountID) != nil {
				continue
			}
			child, err := newChild(rec.ID, accountID, now.Add(time.Duration(i)*time.Microsecond))
			if err != nil {
				return err
			}
			if err := m.records.SaveChild(ctx, child); err != nil {
				return fmt.Errorf("add website post record: %w", err)
			}
			rec.Children = append(rec.Children, child)
		}

		rec.State = models.PostRecordRunning
		rec.ResumeMode = mode
		rec.CompletedAt = nil
		if err := m.records.Update(ctx, rec); err != nil {
			return fmt.Errorf("reopen post record: %w", err)
		}

		if err := w.Append(&models.PostEvent{
			SubmissionID: sub.ID,
			EventType:    models.EventPostResumed,
			Metadata:     &models.EventMetadata{ResumeMode: mode},
		}); err != nil {
			return err
		}

		scope := scopeOf(sub)
		for _, child := range rec.Children {
			if !scope[child.AccountID] {
				continue
			}
			run, reset := plan(child, mode)
			if !run {
				continue
			}
			if err := m.startAttempt(ctx, w, rec, child.AccountID, reset); err != nil {
				return err
			}
		}
		if err := m.project(ctx, w, rec); err != nil {
			return err
		}

		if len(Runnable(rec)) == 0 {
			return m.promote(ctx, w, rec, scope)
		}
		return nil
	})
	if err != nil {
		m.abort(ctx, rec, err)
		return nil, err
	}

	slog.Info("post record resumed", "post_record_id", rec.ID, "submission_id", sub.ID,
		"resume_mode", mode, "accounts", len(Runnable(rec)))
	return rec, nil
}

// abort closes a record whose start could not be written as FAILED, so the
// next dequeue resumes it instead of finding it RUNNING.
func (m *Manager) abort(ctx context.Context, rec *models.PostRecord, cause error) {
	completed := m.now().UTC()
	rec.State = models.PostRecordFailed
	rec.CompletedAt = &completed
	if err := m.records.Update(ctx, rec); err != nil {
		slog.Error("failed to close aborted post record", "post_record_id", rec.ID, "error", err)
		return
	}
	if err := m.ledger.Append(ctx, &models.PostEvent{
		PostRecordID: rec.ID,
		SubmissionID: rec.SubmissionID,
		EventType:    models.EventPostFailed,
		Error:        eventError(cause),
	}); err != nil {
		slog.Warn("failed to record aborted post record", "post_record_id", rec.ID, "error", err)
	}
	slog.Warn("post record aborted", "post_record_id", rec.ID, "submission_id", rec.SubmissionID, "error", cause)
}

// plan decides whether a child of a failed record runs again, and whether
// its progress is discarded first.
func plan(child *models.WebsitePostRecord, mode models.ResumeMode) (run, reset bool) {
	switch mode {
	case models.ResumeModeNew:
		return true, true
	case models.ResumeModeContinueRetry:
		if child.Status == models.AttemptSucceeded {
			return false, false
		}
		return true, true
	default:
		if child.Status == models.AttemptSucceeded {
			return false, false
		}
		return true, false
	}
}

func (m *Manager) startAttempt(ctx context.Context, w *ledger.Writer, rec *models.PostRecord, accountID string, reset bool) error {
	meta := &models.EventMetadata{ResumeMode: rec.ResumeMode, ResetProgress: reset}

	acc, err := m.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("get account %s: %w", accountID, err)
	}
	if acc != nil {
		meta.Account = acc.Snapshot()
	} else {
		meta.Account = &models.AccountSnapshot{ID: accountID}
	}

	return w.Append(&models.PostEvent{
		SubmissionID: rec.SubmissionID,
		AccountID:    accountID,
		EventType:    models.EventPostAttemptStarted,
		Metadata:     meta,
	})
}

// RecordFileOutcome appends FILE_POSTED or FILE_FAILED for one file. A file
// already posted for the child is not recorded again.
func (m *Manager) RecordFileOutcome(ctx context.Context, websitePostRecordID, fileID string, outcome FileOutcome) (*models.WebsitePostRecord, error) {
	child, rec, err := m.loadChild(ctx, websitePostRecordID)
	if err != nil {
		return nil, err
	}

	var out *models.WebsitePostRecord
	err = m.ledger.Write(ctx, rec.ID, func(w *ledger.Writer) error {
		current := ledger.Fold(child, w.Events())
		if outcome.Posted && current.HasPosted(fileID) {
			out = current
			return nil
		}
		if current.Status != models.AttemptAttempting {
			return &apperr.InternalConsistencyError{
				PostRecordID: rec.ID,
				Reason:       fmt.Sprintf("file outcome for account %s which is %s", child.AccountID, current.Status),
			}
		}

		ev := &models.PostEvent{
			SubmissionID: rec.SubmissionID,
			AccountID:    child.AccountID,
			FileID:       fileID,
			Metadata:     &models.EventMetadata{File: outcome.File, BatchNumber: outcome.BatchNumber},
		}
		if outcome.Posted {
			ev.EventType = models.EventFilePosted
			ev.SourceURL = outcome.SourceURL
		} else {
			ev.EventType = models.EventFileFailed
			ev.Error = eventError(outcome.Err)
		}
		if err := w.Append(ev); err != nil {
			return err
		}

		out = ledger.Fold(child, w.Events())
		return m.saveChild(ctx, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CompleteAttempt closes the attempt of one child. Once every child is
// terminal the PostRecord is promoted to DONE or FAILED. Completing an
// already terminal child is a no-op.
func (m *Manager) CompleteAttempt(ctx context.Context, websitePostRecordID string, outcome AttemptOutcome) (*models.PostRecord, error) {
	child, rec, err := m.loadChild(ctx, websitePostRecordID)
	if err != nil {
		return nil, err
	}
	scope, err := m.scope(ctx, rec)
	if err != nil {
		return nil, err
	}

	err = m.ledger.Write(ctx, rec.ID, func(w *ledger.Writer) error {
		ledger.FoldRecord(rec, w.Events())
		current := rec.Child(child.AccountID)

		switch current.Status {
		case models.AttemptSucceeded, models.AttemptFailed:
			return nil
		case models.AttemptUnstarted:
			return &apperr.InternalConsistencyError{
				PostRecordID: rec.ID,
				Reason:       fmt.Sprintf("completing account %s which never started", child.AccountID),
			}
		}

		ev := &models.PostEvent{
			SubmissionID: rec.SubmissionID,
			AccountID:    child.AccountID,
			SourceURL:    outcome.SourceURL,
		}
		switch {
		case outcome.Cancelled:
			ev.EventType = models.EventPostCancelled
			ev.Error = eventError(&apperr.CancellationError{SubmissionID: rec.SubmissionID})
		case outcome.Err != nil:
			ev.EventType = models.EventPostAttemptFailed
			ev.Error = eventError(outcome.Err)
		default:
			ev.EventType = models.EventPostAttemptCompleted
		}
		if err := w.Append(ev); err != nil {
			return err
		}

		ledger.FoldRecord(rec, w.Events())
		if err := m.saveChild(ctx, rec.Child(child.AccountID)); err != nil {
			return err
		}
		return m.promote(ctx, w, rec, scope)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// promote closes the record when every child in scope is terminal. Must run
// inside a ledger write of rec.
func (m *Manager) promote(ctx context.Context, w *ledger.Writer, rec *models.PostRecord, scope map[string]bool) error {
	succeeded, cancelled := true, false
	for _, c := range rec.Children {
		if scope != nil && !scope[c.AccountID] {
			continue
		}
		if !c.Status.Terminal() {
			return nil
		}
		if c.Status != models.AttemptSucceeded {
			succeeded = false
		}
		for _, e := range c.Errors {
			if e.Code == apperr.CodeCancelled {
				cancelled = true
			}
		}
	}

	ev := &models.PostEvent{SubmissionID: rec.SubmissionID}
	switch {
	case succeeded:
		rec.State = models.PostRecordDone
		ev.EventType = models.EventPostCompleted
	case cancelled:
		rec.State = models.PostRecordFailed
		ev.EventType = models.EventPostCancelled
		ev.Error = eventError(&apperr.CancellationError{SubmissionID: rec.SubmissionID})
	default:
		rec.State = models.PostRecordFailed
		ev.EventType = models.EventPostFailed
	}
	completed := m.now().UTC()
	rec.CompletedAt = &completed

	if err := m.records.Update(ctx, rec); err != nil {
		return fmt.Errorf("close post record: %w", err)
	}
	if err := w.Append(ev); err != nil {
		return err
	}

	slog.Info("post record finished", "post_record_id", rec.ID, "submission_id", rec.SubmissionID, "state", rec.State)
	return nil
}

// RecoverInterrupted closes records left RUNNING by a previous process. Their
// in-flight attempts are failed with the interrupted code so a later resume
// picks them up. It must run before any record is being driven.
func (m *Manager) RecoverInterrupted(ctx context.Context) (int, error) {
	running, err := m.records.ListByState(ctx, models.PostRecordRunning)
	if err != nil {
		return 0, fmt.Errorf("list running post records: %w", err)
	}

	for _, rec := range running {
		err := m.ledger.Write(ctx, rec.ID, func(w *ledger.Writer) error {
			ledger.FoldRecord(rec, w.Events())
			for _, c := range rec.Children {
				if c.Status != models.AttemptAttempting {
					continue
				}
				if err := w.Append(&models.PostEvent{
					SubmissionID: rec.SubmissionID,
					AccountID:    c.AccountID,
					EventType:    models.EventPostAttemptFailed,
					Error:        &models.EventError{Code: apperr.CodeInterrupted, Message: "posting was interrupted by a restart"},
				}); err != nil {
					return err
				}
			}
			if err := m.project(ctx, w, rec); err != nil {
				return err
			}

			// Children never started count as failed here; the next resume runs them.
			for _, c := range rec.Children {
				if c.Status == models.AttemptUnstarted {
					c.Status = models.AttemptFailed
				}
			}
			return m.promote(ctx, w, rec, nil)
		})
		if err != nil {
			return 0, fmt.Errorf("recover post record %s: %w", rec.ID, err)
		}
		slog.Warn("recovered interrupted post record", "post_record_id", rec.ID, "submission_id", rec.SubmissionID)
	}
	return len(running), nil
}

// Get returns the record with child state folded from the ledger.
func (m *Manager) Get(ctx context.Context, id string) (*models.PostRecord, error) {
	rec, err := m.records.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get post record %s: %w", id, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("post record %s: %w", id, apperr.ErrNotFound)
	}
	return m.folded(ctx, rec)
}

// LatestForSubmission returns the newest record of the submission, or nil.
func (m *Manager) LatestForSubmission(ctx context.Context, submissionID string) (*models.PostRecord, error) {
	rec, err := m.records.LatestBySubmission(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("latest post record for %s: %w", submissionID, err)
	}
	if rec == nil {
		return nil, nil
	}
	return m.folded(ctx, rec)
}

func (m *Manager) folded(ctx context.Context, rec *models.PostRecord) (*models.PostRecord, error) {
	events, err := m.ledger.ListByPostRecord(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	ledger.FoldRecord(rec, events)
	return rec, nil
}

func (m *Manager) loadChild(ctx context.Context, id string) (*models.WebsitePostRecord, *models.PostRecord, error) {
	child, err := m.records.GetChild(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get website post record %s: %w", id, err)
	}
	if child == nil {
		return nil, nil, fmt.Errorf("website post record %s: %w", id, apperr.ErrNotFound)
	}
	rec, err := m.records.GetByID(ctx, child.PostRecordID)
	if err != nil {
		return nil, nil, fmt.Errorf("get post record %s: %w", child.PostRecordID, err)
	}
	if rec == nil {
		return nil, nil, &apperr.InternalConsistencyError{PostRecordID: child.PostRecordID, Reason: "website post record without parent"}
	}
	return child, rec, nil
}

// scope returns the accounts the submission still targets, or nil when the
// submission is gone and every child counts.
func (m *Manager) scope(ctx context.Context, rec *models.PostRecord) (map[string]bool, error) {
	sub, err := m.submissions.GetByID(ctx, rec.SubmissionID)
	if err != nil {
		return nil, fmt.Errorf("get submission %s: %w", rec.SubmissionID, err)
	}
	if sub == nil {
		return nil, nil
	}
	return scopeOf(sub), nil
}

// project refolds every child and stores the projections.
func (m *Manager) project(ctx context.Context, w *ledger.Writer, rec *models.PostRecord) error {
	ledger.FoldRecord(rec, w.Events())
	for _, c := range rec.Children {
		if err := m.saveChild(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) saveChild(ctx context.Context, child *models.WebsitePostRecord) error {
	if err := m.records.SaveChild(ctx, child); err != nil {
		return fmt.Errorf("save website post record %s: %w", child.ID, err)
	}
	return nil
}

func newChild(postRecordID, accountID string, createdAt time.Time) (*models.WebsitePostRecord, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("generate website post record id: %w", err)
	}
	return &models.WebsitePostRecord{
		ID:           id,
		PostRecordID: postRecordID,
		AccountID:    accountID,
		Status:       models.AttemptUnstarted,
		Metadata:     models.WebsitePostMetadata{PostedFiles: []string{}},
		Errors:       []models.WebsiteError{},
		CreatedAt:    createdAt,
	}, nil
}

func targets(sub *models.Submission) []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range sub.AccountOptions() {
		if seen[o.AccountID] {
			continue
		}
		seen[o.AccountID] = true
		out = append(out, o.AccountID)
	}
	return out
}

func scopeOf(sub *models.Submission) map[string]bool {
	scope := make(map[string]bool)
	for _, id := range targets(sub) {
		scope[id] = true
	}
	return scope
}

func eventError(err error) *models.EventError {
	if err == nil {
		return &models.EventError{Code: apperr.CodeUnknown, Message: "unknown failure"}
	}
	return &models.EventError{Code: apperr.Code(err), Message: err.Error()}
}
