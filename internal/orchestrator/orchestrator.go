// Package orchestrator drives queued submissions through their per-account
// posting attempts.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/accounts"
	"github.com/maheshrc27/crosspost/internal/apperr"
	"github.com/maheshrc27/crosspost/internal/ledger"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/notify"
	"github.com/maheshrc27/crosspost/internal/postqueue"
	"github.com/maheshrc27/crosspost/internal/records"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/website"
)

type Config struct {
	PollInterval            time.Duration
	DefaultPostTimeout      time.Duration
	DefaultWaitBetweenPosts time.Duration

	// ParallelAccounts lets accounts of one submission post at the same time
	// when every adapter involved is ConcurrentSafe.
	ParallelAccounts    bool
	MaxParallelAccounts int
}

type Deps struct {
	Queue       *postqueue.Queue
	Records     *records.Manager
	Ledger      *ledger.Ledger
	Submissions repository.SubmissionRepository
	Directory   *accounts.Directory
	Registry    *website.Registry
	Files       website.FileOpener
	Notifier    notify.Notifier
}

type Orchestrator struct {
	cfg Config
	Deps

	throttle *throttle
	now      func() time.Time

	// running makes ProcessNext non re-entrant.
	running sync.Mutex
}

// job is one account of the current attempt, resolved to its adapter.
type job struct {
	child   *models.WebsitePostRecord
	account *models.Account
	adapter website.Adapter
}

func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.DefaultPostTimeout <= 0 {
		cfg.DefaultPostTimeout = 5 * time.Minute
	}
	if cfg.MaxParallelAccounts < 1 {
		cfg.MaxParallelAccounts = 1
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.LogNotifier{}
	}
	return &Orchestrator{
		cfg:      cfg,
		Deps:     deps,
		throttle: newThrottle(),
		now:      time.Now,
	}
}

// Subscribe streams every ledger append, including PostRecord transitions.
func (o *Orchestrator) Subscribe(buffer int) (<-chan models.PostEvent, func()) {
	return o.Ledger.Subscribe(buffer)
}

// Run recovers posts interrupted by a previous shutdown, then drains the queue
// on every tick until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	recovered, err := o.Records.RecoverInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("recover interrupted posts: %w", err)
	}
	if recovered > 0 {
		slog.Warn("interrupted posts marked as failed", "count", recovered)
	}

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	slog.Info("orchestrator started", "poll_interval", o.cfg.PollInterval, "parallel_accounts", o.cfg.ParallelAccounts)
	for {
		o.drain(ctx)

		select {
		case <-ctx.Done():
			slog.Info("orchestrator stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) drain(ctx context.Context) {
	for ctx.Err() == nil {
		processed, err := o.ProcessNext(ctx)
		if err != nil {
			slog.Error("failed to process submission", "error", err)
		}
		if !processed {
			return
		}
	}
}

// ProcessNext posts the next queued submission. It reports false when the
// queue is empty or another call is already processing.
func (o *Orchestrator) ProcessNext(ctx context.Context) (bool, error) {
	if !o.running.TryLock() {
		return false, nil
	}
	defer o.running.Unlock()

	item, err := o.Queue.DequeueNext(ctx)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}

	defer o.Queue.Cancellations().Finish(item.SubmissionID)

	log := slog.With("submission_id", item.SubmissionID, "queue_id", item.ID)
	if err := o.process(ctx, item, log); err != nil {
		if apperr.IsInternal(err) {
			log.Error("posting halted", "error", err)
		}
		return true, fmt.Errorf("process submission %s: %w", item.SubmissionID, err)
	}
	return true, nil
}

func (o *Orchestrator) process(ctx context.Context, item *models.PostQueueRecord, log *slog.Logger) error {
	sub, err := o.Submissions.GetByID(ctx, item.SubmissionID)
	if err != nil {
		return fmt.Errorf("get submission: %w", err)
	}
	if sub == nil {
		log.Warn("dequeued submission no longer exists")
		return nil
	}

	rec, err := o.Records.BeginOrResume(ctx, sub, item.ResumeMode)
	if err != nil {
		return err
	}
	log = log.With("post_record_id", rec.ID)

	if rec.State == models.PostRecordRunning {
		if err := o.runAttempt(ctx, sub, rec, log); err != nil {
			o.abandon(ctx, sub, rec, err, log)
			return err
		}
	}

	final, err := o.Records.Get(ctx, rec.ID)
	if err != nil {
		return err
	}
	return o.finish(ctx, sub, final, log)
}

func (o *Orchestrator) runAttempt(ctx context.Context, sub *models.Submission, rec *models.PostRecord, log *slog.Logger) error {
	jobs, err := o.resolve(ctx, rec, log)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return nil
	}

	if !o.parallel(jobs) {
		for _, j := range jobs {
			if err := o.attempt(ctx, sub, j, log); err != nil {
				return err
			}
		}
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
		sem  = make(chan struct{}, o.cfg.MaxParallelAccounts)
	)
	for _, j := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(j job) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := o.attempt(ctx, sub, j, log); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(j)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (o *Orchestrator) parallel(jobs []job) bool {
	if !o.cfg.ParallelAccounts || o.cfg.MaxParallelAccounts < 2 || len(jobs) < 2 {
		return false
	}
	for _, j := range jobs {
		if !j.adapter.Capabilities().ConcurrentSafe {
			return false
		}
	}
	return true
}

// resolve looks up account and adapter of every runnable child. Children that
// cannot be resolved are failed on the spot.
func (o *Orchestrator) resolve(ctx context.Context, rec *models.PostRecord, log *slog.Logger) ([]job, error) {
	var jobs []job
	for _, child := range records.Runnable(rec) {
		acc, err := o.Directory.Get(ctx, child.AccountID)
		if errors.Is(err, apperr.ErrNotFound) {
			log.Warn("account no longer exists", "account_id", child.AccountID)
			if err := o.complete(ctx, child, records.AttemptOutcome{
				Err: &apperr.AccountNotReadyError{AccountID: child.AccountID, Reason: "account no longer exists"},
			}); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		adapter, err := o.Registry.Get(acc.Website)
		if err != nil {
			log.Warn("no adapter for account", "account_id", acc.ID, "website", acc.Website)
			if err := o.complete(ctx, child, records.AttemptOutcome{
				Err: &apperr.AdapterError{Website: acc.Website, Op: "resolve adapter", Err: err},
			}); err != nil {
				return nil, err
			}
			continue
		}
		jobs = append(jobs, job{child: child, account: acc, adapter: adapter})
	}
	return jobs, nil
}

// attempt runs one account to a terminal outcome. Only failures of the
// engine itself are returned; adapter and account problems are recorded.
func (o *Orchestrator) attempt(ctx context.Context, sub *models.Submission, j job, log *slog.Logger) (err error) {
	log = log.With("account_id", j.account.ID, "website", j.account.Website)

	defer func() {
		if r := recover(); r != nil {
			log.Error("attempt panicked", "panic", r, "stack", string(debug.Stack()))
			err = o.complete(ctx, j.child, records.AttemptOutcome{
				Err: &apperr.PanicError{Website: j.account.Website, Value: r},
			})
		}
	}()

	unlock := o.throttle.lock(j.account.ID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	signal := o.Queue.Cancellations().Signal(sub.ID)
	if signal.Cancelled() {
		log.Info("attempt cancelled before start")
		return o.complete(ctx, j.child, records.AttemptOutcome{Cancelled: true})
	}

	caps := j.adapter.Capabilities()
	if err := o.checkLogin(ctx, j, caps); err != nil {
		log.Warn("account not ready", "error", err)
		return o.complete(ctx, j.child, records.AttemptOutcome{Err: err})
	}

	switch sub.Type {
	case models.SubmissionTypeFile:
		return o.postFiles(ctx, sub, j, caps, signal, log)
	case models.SubmissionTypeMessage:
		return o.postMessage(ctx, sub, j, caps, signal, log)
	}
	return o.complete(ctx, j.child, records.AttemptOutcome{
		Err: &apperr.ValidationError{SubmissionID: sub.ID, Problems: []string{fmt.Sprintf("unknown submission type %q", sub.Type)}},
	})
}

func (o *Orchestrator) checkLogin(ctx context.Context, j job, caps website.Capabilities) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout(caps))
	defer cancel()

	_, err := o.Directory.Ready(cctx, j.account, j.adapter)
	return err
}

func (o *Orchestrator) postFiles(ctx context.Context, sub *models.Submission, j job, caps website.Capabilities, signal postqueue.Signal, log *slog.Logger) error {
	var pending []models.SubmissionFile
	for _, f := range website.FilesFor(sub, j.account.ID, caps) {
		if !j.child.HasPosted(f.ID) {
			pending = append(pending, f)
		}
	}

	batchNumber := j.child.Metadata.NextBatchNumber
	var sourceURL string
	for _, batch := range website.Batches(pending, caps) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if signal.Cancelled() {
			log.Info("attempt cancelled between batches", "batch", batchNumber)
			return o.complete(ctx, j.child, records.AttemptOutcome{Cancelled: true})
		}
		if err := o.throttle.wait(ctx, j.account.ID, o.gap(caps)); err != nil {
			return err
		}

		files := make([]website.PostFile, len(batch))
		for i, f := range batch {
			files[i] = website.PostFile{SubmissionFile: f}
		}
		data := website.FilePostData{
			Submission:  sub,
			Account:     j.account,
			Options:     sub.MergedData(j.account.ID),
			Files:       files,
			BatchNumber: batchNumber,
			Opener:      o.Files,
		}
		res, err := o.call(ctx, j, "post file", caps, func(cctx context.Context) (*website.PostResult, error) {
			return j.adapter.OnPostFileSubmission(cctx, data, signal)
		})
		o.throttle.posted(j.account.ID, o.gap(caps))

		if err != nil {
			log.Warn("batch failed", "batch", batchNumber, "files", len(batch), "error", err)
			for _, f := range batch {
				if _, rerr := o.Records.RecordFileOutcome(context.WithoutCancel(ctx), j.child.ID, f.ID, records.FileOutcome{
					BatchNumber: batchNumber,
					File:        f.Snapshot(),
					Err:         err,
				}); rerr != nil {
					return rerr
				}
			}
			return o.complete(ctx, j.child, records.AttemptOutcome{Err: err})
		}

		for _, f := range batch {
			if _, rerr := o.Records.RecordFileOutcome(context.WithoutCancel(ctx), j.child.ID, f.ID, records.FileOutcome{
				Posted:      true,
				SourceURL:   res.SourceURL,
				BatchNumber: batchNumber,
				File:        f.Snapshot(),
			}); rerr != nil {
				return rerr
			}
		}
		sourceURL = res.SourceURL
		batchNumber++
	}

	log.Info("account posted", "files", len(pending))
	return o.complete(ctx, j.child, records.AttemptOutcome{SourceURL: sourceURL})
}

func (o *Orchestrator) postMessage(ctx context.Context, sub *models.Submission, j job, caps website.Capabilities, signal postqueue.Signal, log *slog.Logger) error {
	if err := o.throttle.wait(ctx, j.account.ID, o.gap(caps)); err != nil {
		return err
	}
	if signal.Cancelled() {
		return o.complete(ctx, j.child, records.AttemptOutcome{Cancelled: true})
	}

	data := website.MessagePostData{
		Submission: sub,
		Account:    j.account,
		Options:    sub.MergedData(j.account.ID),
	}
	res, err := o.call(ctx, j, "post message", caps, func(cctx context.Context) (*website.PostResult, error) {
		return j.adapter.OnPostMessageSubmission(cctx, data, signal)
	})
	o.throttle.posted(j.account.ID, o.gap(caps))

	if err != nil {
		log.Warn("message failed", "error", err)
		return o.complete(ctx, j.child, records.AttemptOutcome{Err: err})
	}
	log.Info("account posted")
	return o.complete(ctx, j.child, records.AttemptOutcome{SourceURL: res.SourceURL})
}

// call runs one adapter request. The request is detached from ctx so a
// shutdown never aborts a post already sent; only the adapter timeout bounds it.
func (o *Orchestrator) call(ctx context.Context, j job, op string, caps website.Capabilities, fn func(context.Context) (*website.PostResult, error)) (*website.PostResult, error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout(caps))
	defer cancel()

	type result struct {
		res *website.PostResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("adapter panicked", "website", j.account.Website, "account_id", j.account.ID, "panic", r, "stack", string(debug.Stack()))
				done <- result{err: &apperr.PanicError{Website: j.account.Website, Value: r}}
			}
		}()
		res, err := fn(cctx)
		done <- result{res: res, err: err}
	}()

	select {
	case r := <-done:
		var panicked *apperr.PanicError
		switch {
		case errors.As(r.err, &panicked):
			return nil, r.err
		case r.err != nil:
			return nil, &apperr.AdapterError{
				Website: j.account.Website,
				Op:      op,
				Timeout: errors.Is(r.err, context.DeadlineExceeded),
				Err:     r.err,
			}
		case r.res == nil:
			return &website.PostResult{}, nil
		}
		return r.res, nil
	case <-cctx.Done():
		return nil, &apperr.AdapterError{Website: j.account.Website, Op: op, Timeout: true, Err: cctx.Err()}
	}
}

// complete records the attempt outcome. Outcomes are written even while
// shutting down so nothing already posted is lost.
func (o *Orchestrator) complete(ctx context.Context, child *models.WebsitePostRecord, outcome records.AttemptOutcome) error {
	_, err := o.Records.CompleteAttempt(context.WithoutCancel(ctx), child.ID, outcome)
	return err
}

// abandon fails every attempt still open after the engine itself failed, so
// the record does not stay RUNNING. On shutdown it does nothing and leaves the
// record to recovery at the next start.
func (o *Orchestrator) abandon(ctx context.Context, sub *models.Submission, rec *models.PostRecord, cause error, log *slog.Logger) {
	if ctx.Err() != nil {
		return
	}
	current, err := o.Records.Get(ctx, rec.ID)
	if err != nil {
		log.Error("failed to load post record to abandon", "error", err)
		return
	}

	var internal *apperr.InternalConsistencyError
	if !errors.As(cause, &internal) {
		internal = &apperr.InternalConsistencyError{PostRecordID: rec.ID, Reason: cause.Error()}
	}
	for _, child := range records.Runnable(current) {
		if err := o.complete(ctx, child, records.AttemptOutcome{Err: internal}); err != nil {
			log.Error("failed to abandon attempt", "account_id", child.AccountID, "error", err)
			return
		}
	}

	final, err := o.Records.Get(ctx, rec.ID)
	if err != nil {
		log.Error("failed to reload abandoned post record", "error", err)
		return
	}
	if err := o.finish(ctx, sub, final, log); err != nil {
		log.Error("failed to finish abandoned post record", "error", err)
	}
}

func (o *Orchestrator) finish(ctx context.Context, sub *models.Submission, rec *models.PostRecord, log *slog.Logger) error {
	switch rec.State {
	case models.PostRecordDone:
		if err := o.Submissions.SetArchived(ctx, sub.ID, true); err != nil {
			log.Error("failed to archive submission", "error", err)
		}
	case models.PostRecordFailed:
	default:
		return &apperr.InternalConsistencyError{
			PostRecordID: rec.ID,
			Reason:       fmt.Sprintf("post record is %s after every attempt finished", rec.State),
		}
	}

	if err := o.Notifier.Send(ctx, o.notification(ctx, sub, rec)); err != nil {
		log.Warn("failed to send notification", "error", err)
	}
	return nil
}

func (o *Orchestrator) notification(ctx context.Context, sub *models.Submission, rec *models.PostRecord) notify.Notification {
	n := notify.Notification{
		Title:        sub.Title,
		SubmissionID: sub.ID,
		PostRecordID: rec.ID,
		State:        rec.State,
		At:           o.now().UTC(),
	}

	var summary []string
	for _, child := range rec.Children {
		result := notify.AccountResult{
			AccountID:  child.AccountID,
			Status:     child.Status,
			SourceURLs: child.Metadata.SourceURLs,
		}
		if acc, err := o.Directory.Get(ctx, child.AccountID); err == nil {
			result.Name = acc.Name
			result.Website = acc.Website
		}
		if k := len(child.Errors); k > 0 && child.Status == models.AttemptFailed {
			result.Error = child.Errors[k-1].Message
			label := result.Name
			if label == "" {
				label = child.AccountID
			}
			summary = append(summary, fmt.Sprintf("%s: %s", label, result.Error))
		}
		n.Accounts = append(n.Accounts, result)
	}
	n.ErrorSummary = strings.Join(summary, "; ")
	return n
}

func (o *Orchestrator) timeout(caps website.Capabilities) time.Duration {
	if caps.PostTimeout > 0 {
		return caps.PostTimeout
	}
	return o.cfg.DefaultPostTimeout
}

func (o *Orchestrator) gap(caps website.Capabilities) time.Duration {
	if caps.WaitBetweenPosts > 0 {
		return caps.WaitBetweenPosts
	}
	return o.cfg.DefaultWaitBetweenPosts
}
