package postqueue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/crosspost/internal/apperr"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rejectValidator struct {
	invalid map[string]bool
}

func (v rejectValidator) Validate(ctx context.Context, sub *models.Submission) error {
	if v.invalid[sub.ID] {
		return &apperr.ValidationError{SubmissionID: sub.ID, Problems: []string{"no website options"}}
	}
	return nil
}

func newQueue(t *testing.T, ids ...string) (*Queue, *memory.Store) {
	t.Helper()
	store := memory.New()
	for _, id := range ids {
		store.PutSubmission(&models.Submission{ID: id, Type: models.SubmissionTypeMessage})
	}
	q := New(store.Queue(), store.Submissions(), store.Records(), rejectValidator{invalid: map[string]bool{"bad": true}}, NewCancellations())

	clock := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}
	return q, store
}

func submissionOrder(t *testing.T, q *Queue) []string {
	t.Helper()
	recs, err := q.List(context.Background())
	require.NoError(t, err)
	var out []string
	for _, r := range recs {
		out = append(out, r.SubmissionID)
	}
	return out
}

func TestEnqueue(t *testing.T) {
	ctx := context.Background()

	t.Run("keeps order and defaults to continue", func(t *testing.T) {
		q, _ := newQueue(t, "s1", "s2", "s3")
		ids, err := q.Enqueue(ctx, []string{"s2", "s1", "s3"}, "")
		require.NoError(t, err)
		assert.Len(t, ids, 3)
		assert.Equal(t, []string{"s2", "s1", "s3"}, submissionOrder(t, q))

		recs, err := q.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.ResumeModeContinue, recs[0].ResumeMode)
	})

	t.Run("skips submissions already enqueued", func(t *testing.T) {
		q, _ := newQueue(t, "s1", "s2")
		_, err := q.Enqueue(ctx, []string{"s1"}, models.ResumeModeNew)
		require.NoError(t, err)

		ids, err := q.Enqueue(ctx, []string{"s1", "s2", "s2"}, models.ResumeModeNew)
		require.NoError(t, err)
		assert.Len(t, ids, 1)
		assert.Equal(t, []string{"s1", "s2"}, submissionOrder(t, q))
	})

	t.Run("invalid submission enqueues nothing", func(t *testing.T) {
		q, store := newQueue(t, "s1")
		store.PutSubmission(&models.Submission{ID: "bad"})

		_, err := q.Enqueue(ctx, []string{"s1", "bad"}, models.ResumeModeNew)
		var verr *apperr.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "bad", verr.SubmissionID)
		assert.Empty(t, submissionOrder(t, q))
	})

	t.Run("unknown submission", func(t *testing.T) {
		q, _ := newQueue(t)
		_, err := q.Enqueue(ctx, []string{"ghost"}, models.ResumeModeNew)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("invalid resume mode", func(t *testing.T) {
		q, _ := newQueue(t, "s1")
		_, err := q.Enqueue(ctx, []string{"s1"}, models.ResumeMode("LATER"))
		assert.ErrorIs(t, err, apperr.ErrInvalidResumeMode)
	})
}

func TestDequeueNext(t *testing.T) {
	ctx := context.Background()

	t.Run("fifo then empty", func(t *testing.T) {
		q, _ := newQueue(t, "s1", "s2")
		_, err := q.Enqueue(ctx, []string{"s1", "s2"}, models.ResumeModeNew)
		require.NoError(t, err)

		first, err := q.DequeueNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, "s1", first.SubmissionID)

		second, err := q.DequeueNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, "s2", second.SubmissionID)

		empty, err := q.DequeueNext(ctx)
		require.NoError(t, err)
		assert.Nil(t, empty)
	})

	t.Run("skips submissions being posted", func(t *testing.T) {
		q, store := newQueue(t, "s1", "s2")
		require.NoError(t, store.Records().Create(ctx, &models.PostRecord{ID: "pr1", SubmissionID: "s1", State: models.PostRecordRunning}))
		_, err := q.Enqueue(ctx, []string{"s1", "s2"}, models.ResumeModeNew)
		require.NoError(t, err)

		rec, err := q.DequeueNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, "s2", rec.SubmissionID)
		assert.Equal(t, []string{"s1"}, submissionOrder(t, q))
	})

	t.Run("concurrent callers never share a record", func(t *testing.T) {
		var ids []string
		for i := 0; i < 40; i++ {
			ids = append(ids, fmt.Sprintf("s%02d", i))
		}
		q, _ := newQueue(t, ids...)
		_, err := q.Enqueue(ctx, ids, models.ResumeModeNew)
		require.NoError(t, err)

		var (
			mu   sync.Mutex
			seen = make(map[string]int)
			wg   sync.WaitGroup
		)
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					rec, err := q.DequeueNext(ctx)
					if !assert.NoError(t, err) || rec == nil {
						return
					}
					mu.Lock()
					seen[rec.ID]++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Len(t, seen, 40)
		for _, n := range seen {
			assert.Equal(t, 1, n)
		}
	})
}

func TestReorder(t *testing.T) {
	ctx := context.Background()

	t.Run("moves listed submissions to the front", func(t *testing.T) {
		q, store := newQueue(t, "s1", "s2", "s3", "s4")
		_, err := q.Enqueue(ctx, []string{"s1", "s2", "s3", "s4"}, models.ResumeModeNew)
		require.NoError(t, err)

		require.NoError(t, q.Reorder(ctx, []string{"s3", "ghost", "s1"}))
		assert.Equal(t, []string{"s3", "s1", "s2", "s4"}, submissionOrder(t, q))

		sub, err := store.Submissions().GetByID(ctx, "s3")
		require.NoError(t, err)
		assert.Equal(t, models.SubmissionTypeMessage, sub.Type)

		rec, err := q.DequeueNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, "s3", rec.SubmissionID)
	})

	t.Run("refused while a post is running", func(t *testing.T) {
		q, store := newQueue(t, "s1", "s2")
		_, err := q.Enqueue(ctx, []string{"s1", "s2"}, models.ResumeModeNew)
		require.NoError(t, err)
		require.NoError(t, store.Records().Create(ctx, &models.PostRecord{ID: "pr9", SubmissionID: "other", State: models.PostRecordRunning}))

		assert.ErrorIs(t, q.Reorder(ctx, []string{"s2", "s1"}), apperr.ErrQueueBusy)
		assert.Equal(t, []string{"s1", "s2"}, submissionOrder(t, q))
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("removes queued submissions", func(t *testing.T) {
		q, _ := newQueue(t, "s1", "s2")
		_, err := q.Enqueue(ctx, []string{"s1", "s2"}, models.ResumeModeNew)
		require.NoError(t, err)

		removed, err := q.Cancel(ctx, []string{"s1"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
		assert.Equal(t, []string{"s2"}, submissionOrder(t, q))
		assert.False(t, q.Cancellations().Requested("s1"))
	})

	t.Run("flags a running submission", func(t *testing.T) {
		q, store := newQueue(t, "s1")
		require.NoError(t, store.Records().Create(ctx, &models.PostRecord{ID: "pr1", SubmissionID: "s1", State: models.PostRecordRunning, CreatedAt: time.Now()}))

		removed, err := q.Cancel(ctx, []string{"s1"})
		require.NoError(t, err)
		assert.Zero(t, removed)
		assert.True(t, q.Cancellations().Requested("s1"))
		assert.True(t, q.Cancellations().Signal("s1").Cancelled())
	})

	t.Run("flags a dequeued submission before its record exists", func(t *testing.T) {
		q, _ := newQueue(t, "s1")
		_, err := q.Enqueue(ctx, []string{"s1"}, models.ResumeModeNew)
		require.NoError(t, err)

		item, err := q.DequeueNext(ctx)
		require.NoError(t, err)
		require.NotNil(t, item)
		assert.True(t, q.Cancellations().Active("s1"))

		removed, err := q.Cancel(ctx, []string{"s1"})
		require.NoError(t, err)
		assert.Zero(t, removed)
		assert.True(t, q.Cancellations().Requested("s1"))

		q.Cancellations().Finish("s1")
		assert.False(t, q.Cancellations().Active("s1"))
		assert.False(t, q.Cancellations().Requested("s1"))
	})

	t.Run("done submission is a no-op", func(t *testing.T) {
		q, store := newQueue(t, "s1")
		done := time.Now()
		require.NoError(t, store.Records().Create(ctx, &models.PostRecord{ID: "pr1", SubmissionID: "s1", State: models.PostRecordDone, CreatedAt: done, CompletedAt: &done}))

		removed, err := q.Cancel(ctx, []string{"s1"})
		require.NoError(t, err)
		assert.Zero(t, removed)
		assert.False(t, q.Cancellations().Requested("s1"))

		rec, err := store.Records().GetByID(ctx, "pr1")
		require.NoError(t, err)
		assert.Equal(t, models.PostRecordDone, rec.State)
	})
}

func TestCancellations(t *testing.T) {
	c := NewCancellations()
	sig := c.Signal("s1")
	assert.False(t, sig.Cancelled())

	c.Request("s1")
	assert.True(t, sig.Cancelled())
	assert.False(t, c.Requested("s2"))

	c.Finish("s1")
	assert.False(t, sig.Cancelled())

	c.Request("s2")
	c.Begin("s2")
	assert.False(t, c.Requested("s2"), "a request left from an earlier run is dropped")
	assert.True(t, c.Active("s2"))
}
