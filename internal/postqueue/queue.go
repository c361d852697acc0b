// Package postqueue is the ordered, durable list of submissions waiting to be
// posted.
package postqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/apperr"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Validator rejects submissions that cannot be posted.
type Validator interface {
	Validate(ctx context.Context, sub *models.Submission) error
}

type Queue struct {
	repo        repository.PostQueueRepository
	submissions repository.SubmissionRepository
	records     repository.PostRecordRepository
	validator   Validator
	cancels     *Cancellations
	now         func() time.Time

	// mu serialises every read-modify-write of queue positions and the pop.
	mu sync.Mutex
}

func New(
	repo repository.PostQueueRepository,
	submissions repository.SubmissionRepository,
	records repository.PostRecordRepository,
	validator Validator,
	cancels *Cancellations) *Queue {
	return &Queue{
		repo:        repo,
		submissions: submissions,
		records:     records,
		validator:   validator,
		cancels:     cancels,
		now:         time.Now,
	}
}

// Enqueue validates every submission first and enqueues none of them if any
// is invalid. Submissions already in the queue are skipped. The returned ids
// are those of the newly created queue records, in the given order.
func (q *Queue) Enqueue(ctx context.Context, submissionIDs []string, mode models.ResumeMode) ([]string, error) {
	if mode == "" {
		mode = models.ResumeModeContinue
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", apperr.ErrInvalidResumeMode, mode)
	}

	var ordered []string
	seen := make(map[string]bool)
	for _, id := range submissionIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		sub, err := q.submissions.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get submission %s: %w", id, err)
		}
		if sub == nil {
			return nil, fmt.Errorf("submission %s: %w", id, apperr.ErrNotFound)
		}
		if err := q.validator.Validate(ctx, sub); err != nil {
			return nil, err
		}
		ordered = append(ordered, id)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	last, err := q.repo.MaxPosition(ctx)
	if err != nil {
		return nil, fmt.Errorf("read queue position: %w", err)
	}

	var queueIDs []string
	for _, id := range ordered {
		qid, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("generate queue id: %w", err)
		}
		rec := &models.PostQueueRecord{
			ID:           qid,
			SubmissionID: id,
			Position:     last + 1,
			ResumeMode:   mode,
			CreatedAt:    q.now().UTC(),
		}
		inserted, err := q.repo.Insert(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("enqueue submission %s: %w", id, err)
		}
		if !inserted {
			slog.Info("submission already enqueued", "submission_id", id)
			continue
		}
		last++
		queueIDs = append(queueIDs, qid)
	}

	slog.Info("submissions enqueued", "count", len(queueIDs), "resume_mode", mode)
	return queueIDs, nil
}

// DequeueNext pops the first record whose submission is not being posted, or
// returns nil when there is none.
func (q *Queue) DequeueNext(ctx context.Context) (*models.PostQueueRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, err := q.repo.PopNext(ctx)
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	if rec != nil {
		q.cancels.Begin(rec.SubmissionID)
	}
	return rec, nil
}

// Reorder moves the given submissions to the front in the given order. The
// rest keep their relative order behind them. It fails with ErrQueueBusy
// while any post is running.
func (q *Queue) Reorder(ctx context.Context, submissionIDs []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	running, err := q.records.HasRunning(ctx)
	if err != nil {
		return fmt.Errorf("check running posts: %w", err)
	}
	if running {
		return apperr.ErrQueueBusy
	}

	current, err := q.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list queue: %w", err)
	}
	bySubmission := make(map[string]*models.PostQueueRecord, len(current))
	for _, rec := range current {
		bySubmission[rec.SubmissionID] = rec
	}

	positions := make(map[string]int, len(current))
	next := 0
	for _, id := range submissionIDs {
		rec, ok := bySubmission[id]
		if !ok {
			continue
		}
		if _, done := positions[rec.ID]; done {
			continue
		}
		positions[rec.ID] = next
		next++
	}
	for _, rec := range current {
		if _, done := positions[rec.ID]; done {
			continue
		}
		positions[rec.ID] = next
		next++
	}

	if err := q.repo.SetPositions(ctx, positions); err != nil {
		return fmt.Errorf("reorder queue: %w", err)
	}
	return nil
}

// Cancel removes the submissions from the queue and asks any dequeued or
// running post of theirs to stop at its next checkpoint. Submissions that are
// neither queued nor running are left alone. It returns how many queue
// records were removed.
func (q *Queue) Cancel(ctx context.Context, submissionIDs []string) (int64, error) {
	q.mu.Lock()
	removed, err := q.repo.DeleteBySubmission(ctx, submissionIDs)
	if err != nil {
		q.mu.Unlock()
		return 0, fmt.Errorf("remove from queue: %w", err)
	}
	// Under the lock a submission is either still queued or already marked
	// active by DequeueNext.
	var pending []string
	for _, id := range submissionIDs {
		if q.cancels.Active(id) {
			q.cancels.Request(id)
			slog.Info("cancellation requested for dequeued post", "submission_id", id)
			continue
		}
		pending = append(pending, id)
	}
	q.mu.Unlock()

	for _, id := range pending {
		rec, err := q.records.LatestBySubmission(ctx, id)
		if err != nil {
			return removed, fmt.Errorf("latest post record for %s: %w", id, err)
		}
		if rec != nil && rec.State == models.PostRecordRunning {
			q.cancels.Request(id)
			slog.Info("cancellation requested for running post", "submission_id", id, "post_record_id", rec.ID)
		}
	}
	return removed, nil
}

func (q *Queue) List(ctx context.Context) ([]*models.PostQueueRecord, error) {
	return q.repo.List(ctx)
}

func (q *Queue) Cancellations() *Cancellations {
	return q.cancels
}
