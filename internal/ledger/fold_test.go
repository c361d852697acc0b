package ledger

import (
	"testing"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type eventLog struct {
	events []*models.PostEvent
}

func (l *eventLog) add(account string, typ models.PostEventType, opts ...func(*models.PostEvent)) {
	ev := &models.PostEvent{
		ID:           "e" + string(rune('a'+len(l.events))),
		PostRecordID: "pr1",
		AccountID:    account,
		Sequence:     int64(len(l.events) + 1),
		EventType:    typ,
		CreatedAt:    t0.Add(time.Duration(len(l.events)) * time.Second),
	}
	for _, o := range opts {
		o(ev)
	}
	l.events = append(l.events, ev)
}

func file(id string, batch int) func(*models.PostEvent) {
	return func(ev *models.PostEvent) {
		ev.FileID = id
		ev.Metadata = &models.EventMetadata{BatchNumber: batch}
	}
}

func failure(code, msg string) func(*models.PostEvent) {
	return func(ev *models.PostEvent) { ev.Error = &models.EventError{Code: code, Message: msg} }
}

func reset(ev *models.PostEvent) { ev.Metadata = &models.EventMetadata{ResetProgress: true} }

var base = &models.WebsitePostRecord{ID: "w1", PostRecordID: "pr1", AccountID: "acc-a"}

func TestFold_NoEvents(t *testing.T) {
	w := Fold(base, nil)

	assert.Equal(t, models.AttemptUnstarted, w.Status)
	assert.Empty(t, w.Metadata.PostedFiles)
	assert.Nil(t, w.CompletedAt)
}

func TestFold_SuccessfulAttempt(t *testing.T) {
	var log eventLog
	log.add("acc-a", models.EventPostAttemptStarted)
	log.add("acc-a", models.EventFilePosted, file("f1", 0))
	log.add("acc-b", models.EventFilePosted, file("other", 0))
	log.add("acc-a", models.EventFilePosted, file("f2", 1), func(ev *models.PostEvent) { ev.SourceURL = "https://x/1" })
	log.add("acc-a", models.EventPostAttemptCompleted)

	w := Fold(base, log.events)

	assert.Equal(t, models.AttemptSucceeded, w.Status)
	assert.Equal(t, []string{"f1", "f2"}, w.Metadata.PostedFiles)
	assert.Equal(t, 2, w.Metadata.NextBatchNumber)
	assert.Equal(t, []string{"https://x/1"}, w.Metadata.SourceURLs)
	assert.Equal(t, t0.Add(4*time.Second), *w.CompletedAt)
}

func TestFold_IsDeterministic(t *testing.T) {
	var log eventLog
	log.add("acc-a", models.EventPostAttemptStarted)
	log.add("acc-a", models.EventFilePosted, file("f1", 0))
	log.add("acc-a", models.EventFileFailed, file("f2", 1), failure("adapter", "502"))
	log.add("acc-a", models.EventPostAttemptFailed, failure("adapter", "502"))

	first := Fold(base, log.events)
	second := Fold(base, log.events)
	assert.Equal(t, first, second)

	shuffled := []*models.PostEvent{log.events[3], log.events[1], log.events[0], log.events[2]}
	assert.Equal(t, first, Fold(base, shuffled))
}

func TestFold_DuplicateFilePostedIsIdempotent(t *testing.T) {
	var log eventLog
	log.add("acc-a", models.EventPostAttemptStarted)
	log.add("acc-a", models.EventFilePosted, file("f1", 0))
	log.add("acc-a", models.EventFilePosted, file("f1", 0))

	w := Fold(base, log.events)
	assert.Equal(t, []string{"f1"}, w.Metadata.PostedFiles)
	assert.Equal(t, 1, w.Metadata.NextBatchNumber)
}

func TestFold_PostedFilesMonotonicUntilReset(t *testing.T) {
	var log eventLog
	log.add("acc-a", models.EventPostAttemptStarted)
	log.add("acc-a", models.EventFilePosted, file("f1", 0))
	log.add("acc-a", models.EventPostAttemptFailed, failure("adapter", "boom"))
	log.add("acc-a", models.EventPostAttemptStarted)
	log.add("acc-a", models.EventFilePosted, file("f2", 1))

	prev := 0
	for i := range log.events {
		n := len(Fold(base, log.events[:i+1]).Metadata.PostedFiles)
		assert.GreaterOrEqual(t, n, prev)
		prev = n
	}

	log.add("acc-a", models.EventPostAttemptFailed, failure("adapter", "boom"))
	log.add("acc-a", models.EventPostAttemptStarted, reset)

	w := Fold(base, log.events)
	assert.Empty(t, w.Metadata.PostedFiles)
	assert.Equal(t, 0, w.Metadata.NextBatchNumber)
	assert.Equal(t, models.AttemptAttempting, w.Status)
}

func TestFold_FailureAndRestartClearsCurrentErrors(t *testing.T) {
	var log eventLog
	log.add("acc-a", models.EventPostAttemptStarted)
	log.add("acc-a", models.EventFileFailed, file("f1", 0), failure("timeout", "deadline"))
	log.add("acc-a", models.EventPostAttemptFailed, failure("timeout", "deadline"))

	failed := Fold(base, log.events)
	assert.Equal(t, models.AttemptFailed, failed.Status)
	assert.Len(t, failed.Errors, 2)
	assert.Equal(t, "f1", failed.Errors[0].FileID)

	log.add("acc-a", models.EventPostAttemptStarted)
	restarted := Fold(base, log.events)
	assert.Equal(t, models.AttemptAttempting, restarted.Status)
	assert.Empty(t, restarted.Errors)
}

func TestFold_Cancelled(t *testing.T) {
	var log eventLog
	log.add("acc-a", models.EventPostAttemptStarted)
	log.add("acc-a", models.EventFilePosted, file("f1", 0))
	log.add("acc-a", models.EventPostCancelled, failure("cancelled", "stopped"))

	w := Fold(base, log.events)
	assert.Equal(t, models.AttemptFailed, w.Status)
	assert.Equal(t, []string{"f1"}, w.Metadata.PostedFiles)
	assert.Equal(t, "cancelled", w.Errors[0].Code)
}

func TestFoldRecord(t *testing.T) {
	var log eventLog
	log.add("acc-a", models.EventPostAttemptStarted)
	log.add("acc-b", models.EventPostAttemptStarted)
	log.add("acc-a", models.EventPostAttemptCompleted)

	rec := &models.PostRecord{ID: "pr1", Children: []*models.WebsitePostRecord{
		{ID: "w1", PostRecordID: "pr1", AccountID: "acc-a"},
		{ID: "w2", PostRecordID: "pr1", AccountID: "acc-b"},
	}}
	FoldRecord(rec, log.events)

	assert.Equal(t, models.AttemptSucceeded, rec.Children[0].Status)
	assert.Equal(t, models.AttemptAttempting, rec.Children[1].Status)
}
