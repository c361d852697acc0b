package memory

import (
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copySubmission(sub *models.Submission) *models.Submission {
	c := *sub
	c.Schedule.ScheduledFor = copyTime(sub.Schedule.ScheduledFor)
	c.Options = make([]models.WebsiteOptions, len(sub.Options))
	for i, o := range sub.Options {
		oc := o
		oc.Data = make(map[string]any, len(o.Data))
		for k, v := range o.Data {
			oc.Data[k] = v
		}
		c.Options[i] = oc
	}
	c.Files = make([]models.SubmissionFile, len(sub.Files))
	for i, f := range sub.Files {
		fc := f
		fc.IgnoredAccounts = append([]string(nil), f.IgnoredAccounts...)
		c.Files[i] = fc
	}
	return &c
}

func copyChild(w *models.WebsitePostRecord) *models.WebsitePostRecord {
	c := *w
	c.Metadata.PostedFiles = append([]string(nil), w.Metadata.PostedFiles...)
	c.Metadata.SourceURLs = append([]string(nil), w.Metadata.SourceURLs...)
	c.Errors = append([]models.WebsiteError(nil), w.Errors...)
	c.CompletedAt = copyTime(w.CompletedAt)
	return &c
}

func copyEvent(ev *models.PostEvent) *models.PostEvent {
	c := *ev
	if ev.Error != nil {
		e := *ev.Error
		c.Error = &e
	}
	if ev.Metadata != nil {
		m := *ev.Metadata
		if m.Account != nil {
			a := *m.Account
			m.Account = &a
		}
		if m.File != nil {
			f := *m.File
			m.File = &f
		}
		c.Metadata = &m
	}
	return &c
}
