package memory

import (
	"context"
	"testing"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SubmissionsAreCopied(t *testing.T) {
	s := New()
	ctx := context.Background()
	sub := &models.Submission{ID: "s1", Files: []models.SubmissionFile{{ID: "f1", IgnoredAccounts: []string{"a"}}}}
	s.PutSubmission(sub)

	sub.Files[0].IgnoredAccounts[0] = "mutated"
	got, err := s.Submissions().GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Files[0].IgnoredAccounts[0])

	require.NoError(t, s.Submissions().SetArchived(ctx, "s1", true))
	got, err = s.Submissions().GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, got.IsArchived)

	missing, err := s.Submissions().GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_Queue(t *testing.T) {
	s := New()
	ctx := context.Background()
	q := s.Queue()
	now := time.Now()

	inserted, err := q.Insert(ctx, &models.PostQueueRecord{ID: "q1", SubmissionID: "s1", Position: 0, CreatedAt: now})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = q.Insert(ctx, &models.PostQueueRecord{ID: "q2", SubmissionID: "s1", Position: 1, CreatedAt: now})
	require.NoError(t, err)
	assert.False(t, inserted)

	_, err = q.Insert(ctx, &models.PostQueueRecord{ID: "q3", SubmissionID: "s2", Position: 1, CreatedAt: now})
	require.NoError(t, err)

	max, err := q.MaxPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, max)

	require.NoError(t, s.Records().Create(ctx, &models.PostRecord{ID: "pr1", SubmissionID: "s1", State: models.PostRecordRunning}))
	next, err := q.PopNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "q3", next.ID)

	next, err = q.PopNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)

	n, err := q.DeleteBySubmission(ctx, []string{"s1", "s9"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	max, err = q.MaxPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, -1, max)
}

func TestStore_Events(t *testing.T) {
	s := New()
	ctx := context.Background()
	ev := s.Events()

	require.NoError(t, ev.Append(ctx, &models.PostEvent{ID: "e2", PostRecordID: "pr1", Sequence: 2}))
	require.NoError(t, ev.Append(ctx, &models.PostEvent{ID: "e1", PostRecordID: "pr1", Sequence: 1}))
	assert.Error(t, ev.Append(ctx, &models.PostEvent{ID: "e1", PostRecordID: "pr2", Sequence: 1}))
	assert.Error(t, ev.Append(ctx, &models.PostEvent{ID: "e3", PostRecordID: "pr1", Sequence: 2}))

	list, err := ev.ListByPostRecord(ctx, "pr1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "e1", list[0].ID)
	assert.Equal(t, int64(2), list[1].Sequence)
}

func TestStore_RecordChildren(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	rec := &models.PostRecord{ID: "pr1", SubmissionID: "s1", State: models.PostRecordRunning, CreatedAt: now, Children: []*models.WebsitePostRecord{
		{ID: "w2", PostRecordID: "pr1", AccountID: "b", CreatedAt: now.Add(time.Microsecond)},
		{ID: "w1", PostRecordID: "pr1", AccountID: "a", CreatedAt: now},
	}}
	require.NoError(t, s.Records().Create(ctx, rec))
	assert.Error(t, s.Records().Create(ctx, rec))

	got, err := s.Records().GetByID(ctx, "pr1")
	require.NoError(t, err)
	require.Len(t, got.Children, 2)
	assert.Equal(t, "a", got.Children[0].AccountID)

	running, err := s.Records().HasRunning(ctx)
	require.NoError(t, err)
	assert.True(t, running)

	got.State = models.PostRecordFailed
	require.NoError(t, s.Records().Update(ctx, got))
	running, err = s.Records().HasRunning(ctx)
	require.NoError(t, err)
	assert.False(t, running)

	assert.Error(t, s.Records().SaveChild(ctx, &models.WebsitePostRecord{ID: "w9", PostRecordID: "missing"}))
}
