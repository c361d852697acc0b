// Package ledger is the append-only PostEvent log. It is the single source of
// truth for what has happened; WebsitePostRecord state is always derived from
// it with Fold.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type Ledger struct {
	repo repository.PostEventRepository
	now  func() time.Time

	locksMu sync.Mutex
	locks   map[string]*recordLock

	subsMu sync.RWMutex
	subs   map[int]chan models.PostEvent
	nextID int
}

type recordLock struct {
	mu   sync.Mutex
	refs int
}

func New(repo repository.PostEventRepository) *Ledger {
	return &Ledger{
		repo:  repo,
		now:   time.Now,
		locks: make(map[string]*recordLock),
		subs:  make(map[int]chan models.PostEvent),
	}
}

// Writer appends to a single PostRecord while its lock is held.
type Writer struct {
	l            *Ledger
	ctx          context.Context
	postRecordID string
	events       []*models.PostEvent
	appended     []models.PostEvent
}

// Write runs fn holding the lock of postRecordID. Appends made through the
// Writer are published to subscribers after fn returns.
func (l *Ledger) Write(ctx context.Context, postRecordID string, fn func(w *Writer) error) error {
	unlock := l.lock(postRecordID)

	events, err := l.repo.ListByPostRecord(ctx, postRecordID)
	if err != nil {
		unlock()
		return fmt.Errorf("load events for %s: %w", postRecordID, err)
	}

	w := &Writer{l: l, ctx: ctx, postRecordID: postRecordID, events: events}
	err = fn(w)
	unlock()

	for _, ev := range w.appended {
		l.publish(ev)
	}
	return err
}

// Events returns every event of the record, including those appended by this writer.
func (w *Writer) Events() []*models.PostEvent {
	return w.events
}

func (w *Writer) Append(ev *models.PostEvent) error {
	if ev.PostRecordID == "" {
		ev.PostRecordID = w.postRecordID
	}
	if ev.PostRecordID != w.postRecordID {
		return fmt.Errorf("append: event for %s written under lock of %s", ev.PostRecordID, w.postRecordID)
	}

	id, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("generate event id: %w", err)
	}
	ev.ID = id

	var last int64
	if n := len(w.events); n > 0 {
		last = w.events[n-1].Sequence
	}
	ev.Sequence = last + 1
	ev.CreatedAt = w.l.now().UTC()

	if err := w.l.repo.Append(w.ctx, ev); err != nil {
		return err
	}

	w.events = append(w.events, ev)
	w.appended = append(w.appended, *ev)
	return nil
}

// Append writes a single event under the record lock.
func (l *Ledger) Append(ctx context.Context, ev *models.PostEvent) error {
	return l.Write(ctx, ev.PostRecordID, func(w *Writer) error {
		return w.Append(ev)
	})
}

func (l *Ledger) ListByPostRecord(ctx context.Context, postRecordID string) ([]*models.PostEvent, error) {
	return l.repo.ListByPostRecord(ctx, postRecordID)
}

// GetPostHistory returns every event ever recorded for the submission, across
// all of its PostRecords, ordered by creation time.
func (l *Ledger) GetPostHistory(ctx context.Context, submissionID string) ([]*models.PostEvent, error) {
	events, err := l.repo.ListBySubmission(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("post history for %s: %w", submissionID, err)
	}
	return events, nil
}

// Subscribe delivers every appended event. Slow subscribers lose events
// rather than block writers; cancel releases the channel.
func (l *Ledger) Subscribe(buffer int) (<-chan models.PostEvent, func()) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()

	id := l.nextID
	l.nextID++
	ch := make(chan models.PostEvent, buffer)
	l.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.subsMu.Lock()
			defer l.subsMu.Unlock()
			delete(l.subs, id)
			close(ch)
		})
	}
}

func (l *Ledger) publish(ev models.PostEvent) {
	l.subsMu.RLock()
	defer l.subsMu.RUnlock()

	for id, ch := range l.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("ledger subscriber is full, dropping event", "subscriber", id, "event_type", ev.EventType)
		}
	}
}

func (l *Ledger) lock(postRecordID string) func() {
	l.locksMu.Lock()
	rl, ok := l.locks[postRecordID]
	if !ok {
		rl = &recordLock{}
		l.locks[postRecordID] = rl
	}
	rl.refs++
	l.locksMu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.locksMu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, postRecordID)
		}
		l.locksMu.Unlock()
	}
}
