package ledger

import (
	"sort"

	"github.com/maheshrc27/crosspost/internal/models"
)

// Fold derives the state of one WebsitePostRecord from the events of its
// PostRecord. Only the identity fields of base are read. The result depends on
// nothing but its inputs, and a FILE_POSTED seen twice for the same file is
// counted once.
func Fold(base *models.WebsitePostRecord, events []*models.PostEvent) *models.WebsitePostRecord {
	out := &models.WebsitePostRecord{
		ID:           base.ID,
		PostRecordID: base.PostRecordID,
		AccountID:    base.AccountID,
		CreatedAt:    base.CreatedAt,
		Status:       models.AttemptUnstarted,
		Metadata:     models.WebsitePostMetadata{PostedFiles: []string{}},
		Errors:       []models.WebsiteError{},
	}

	for _, ev := range ordered(events) {
		if ev.AccountID != base.AccountID || ev.PostRecordID != base.PostRecordID {
			continue
		}
		apply(out, ev)
	}
	return out
}

// FoldRecord refolds every child of rec in place.
func FoldRecord(rec *models.PostRecord, events []*models.PostEvent) {
	for i, child := range rec.Children {
		rec.Children[i] = Fold(child, events)
	}
}

func apply(w *models.WebsitePostRecord, ev *models.PostEvent) {
	switch ev.EventType {
	case models.EventPostAttemptStarted:
		w.Status = models.AttemptAttempting
		w.Errors = []models.WebsiteError{}
		w.CompletedAt = nil
		if ev.Metadata != nil && ev.Metadata.ResetProgress {
			w.Metadata = models.WebsitePostMetadata{PostedFiles: []string{}}
		}

	case models.EventFilePosted:
		if ev.FileID == "" || w.HasPosted(ev.FileID) {
			return
		}
		w.Metadata.PostedFiles = append(w.Metadata.PostedFiles, ev.FileID)
		batch := 0
		if ev.Metadata != nil {
			batch = ev.Metadata.BatchNumber
		}
		if batch+1 > w.Metadata.NextBatchNumber {
			w.Metadata.NextBatchNumber = batch + 1
		}
		addSourceURL(w, ev.SourceURL)

	case models.EventFileFailed:
		w.Errors = append(w.Errors, toWebsiteError(ev))

	case models.EventPostAttemptCompleted:
		w.Status = models.AttemptSucceeded
		at := ev.CreatedAt
		w.CompletedAt = &at
		addSourceURL(w, ev.SourceURL)

	case models.EventPostAttemptFailed, models.EventPostCancelled:
		w.Status = models.AttemptFailed
		if ev.Error != nil {
			w.Errors = append(w.Errors, toWebsiteError(ev))
		}
	}
}

func toWebsiteError(ev *models.PostEvent) models.WebsiteError {
	we := models.WebsiteError{FileID: ev.FileID, At: ev.CreatedAt}
	if ev.Error != nil {
		we.Code = ev.Error.Code
		we.Message = ev.Error.Message
	}
	return we
}

func addSourceURL(w *models.WebsitePostRecord, url string) {
	if url == "" {
		return
	}
	for _, u := range w.Metadata.SourceURLs {
		if u == url {
			return
		}
	}
	w.Metadata.SourceURLs = append(w.Metadata.SourceURLs, url)
}

func ordered(events []*models.PostEvent) []*models.PostEvent {
	out := append([]*models.PostEvent(nil), events...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}
