// Package memory implements every repository interface in process memory.
// Values are copied on the way in and out so callers never share state with
// the store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
)

// Store holds all tables behind one lock. Each repository interface is served
// by a view type because several interfaces share method names.
type Store struct {
	mu          sync.RWMutex
	submissions map[string]*models.Submission
	accounts    map[string]*models.Account
	records     map[string]*models.PostRecord
	children    map[string]*models.WebsitePostRecord
	events      []*models.PostEvent
	queue       map[string]*models.PostQueueRecord
}

var (
	_ repository.SubmissionRepository = submissionView{}
	_ repository.AccountRepository    = accountView{}
	_ repository.PostRecordRepository = recordView{}
	_ repository.PostEventRepository  = eventView{}
	_ repository.PostQueueRepository  = queueView{}
)

func New() *Store {
	return &Store{
		submissions: make(map[string]*models.Submission),
		accounts:    make(map[string]*models.Account),
		records:     make(map[string]*models.PostRecord),
		children:    make(map[string]*models.WebsitePostRecord),
		queue:       make(map[string]*models.PostQueueRecord),
	}
}

func (s *Store) Submissions() repository.SubmissionRepository { return submissionView{s} }
func (s *Store) Accounts() repository.AccountRepository       { return accountView{s} }
func (s *Store) Records() repository.PostRecordRepository     { return recordView{s} }
func (s *Store) Events() repository.PostEventRepository       { return eventView{s} }
func (s *Store) Queue() repository.PostQueueRepository        { return queueView{s} }

// PutSubmission seeds or replaces a submission.
func (s *Store) PutSubmission(sub *models.Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[sub.ID] = copySubmission(sub)
}

// PutAccount seeds or replaces an account.
func (s *Store) PutAccount(acc *models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *acc
	s.accounts[acc.ID] = &c
}

func (s *Store) DeleteSubmission(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.submissions, id)
}

func (s *Store) DeleteAccount(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, id)
}

// === Submissions ===

type submissionView struct{ s *Store }

func (v submissionView) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	sub, ok := v.s.submissions[id]
	if !ok {
		return nil, nil
	}
	return copySubmission(sub), nil
}

func (v submissionView) SetArchived(ctx context.Context, id string, archived bool) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	sub, ok := v.s.submissions[id]
	if !ok {
		return fmt.Errorf("submission %s not found", id)
	}
	sub.IsArchived = archived
	sub.UpdatedAt = time.Now().UTC()
	return nil
}

// === Accounts ===

type accountView struct{ s *Store }

func (v accountView) GetByID(ctx context.Context, id string) (*models.Account, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	acc, ok := v.s.accounts[id]
	if !ok {
		return nil, nil
	}
	c := *acc
	return &c, nil
}

func (v accountView) List(ctx context.Context) ([]*models.Account, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	out := make([]*models.Account, 0, len(v.s.accounts))
	for _, acc := range v.s.accounts {
		c := *acc
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v accountView) UpdateLoginState(ctx context.Context, id string, state models.LoginState) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	acc, ok := v.s.accounts[id]
	if !ok {
		return fmt.Errorf("account %s not found", id)
	}
	acc.LoginState = state
	return nil
}

func (v accountView) SetToken(ctx context.Context, id string, oldAccessToken string, next *models.Account) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	acc, ok := v.s.accounts[id]
	if !ok || acc.AccessToken != oldAccessToken {
		return fmt.Errorf("set token for account %s: token changed concurrently", id)
	}
	if next.AccessToken != "" {
		acc.AccessToken = next.AccessToken
	}
	if next.RefreshToken != "" {
		acc.RefreshToken = next.RefreshToken
	}
	if !next.TokenExpiresAt.IsZero() {
		acc.TokenExpiresAt = next.TokenExpiresAt
	}
	return nil
}

// === Post records ===

type recordView struct{ s *Store }

func (v recordView) Create(ctx context.Context, rec *models.PostRecord) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	if _, ok := v.s.records[rec.ID]; ok {
		return fmt.Errorf("post record %s already exists", rec.ID)
	}
	stored := *rec
	stored.Children = nil
	v.s.records[rec.ID] = &stored
	for _, c := range rec.Children {
		v.s.children[c.ID] = copyChild(c)
	}
	return nil
}

func (v recordView) GetByID(ctx context.Context, id string) (*models.PostRecord, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	rec, ok := v.s.records[id]
	if !ok {
		return nil, nil
	}
	return v.s.assemble(rec), nil
}

func (v recordView) LatestBySubmission(ctx context.Context, submissionID string) (*models.PostRecord, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	var latest *models.PostRecord
	for _, rec := range v.s.records {
		if rec.SubmissionID != submissionID {
			continue
		}
		if latest == nil || rec.CreatedAt.After(latest.CreatedAt) ||
			(rec.CreatedAt.Equal(latest.CreatedAt) && rec.ID > latest.ID) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, nil
	}
	return v.s.assemble(latest), nil
}

func (v recordView) ListByState(ctx context.Context, state models.PostRecordState) ([]*models.PostRecord, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	var out []*models.PostRecord
	for _, rec := range v.s.records {
		if rec.State == state {
			out = append(out, v.s.assemble(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (v recordView) Update(ctx context.Context, rec *models.PostRecord) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	stored, ok := v.s.records[rec.ID]
	if !ok {
		return fmt.Errorf("update post record %s: no rows affected", rec.ID)
	}
	stored.State = rec.State
	stored.ResumeMode = rec.ResumeMode
	stored.CompletedAt = copyTime(rec.CompletedAt)
	return nil
}

func (v recordView) GetChild(ctx context.Context, id string) (*models.WebsitePostRecord, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	c, ok := v.s.children[id]
	if !ok {
		return nil, nil
	}
	return copyChild(c), nil
}

func (v recordView) SaveChild(ctx context.Context, child *models.WebsitePostRecord) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	if _, ok := v.s.records[child.PostRecordID]; !ok {
		return fmt.Errorf("save website post record: post record %s not found", child.PostRecordID)
	}
	v.s.children[child.ID] = copyChild(child)
	return nil
}

func (v recordView) HasRunning(ctx context.Context) (bool, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	for _, rec := range v.s.records {
		if rec.State == models.PostRecordRunning {
			return true, nil
		}
	}
	return false, nil
}

// assemble must be called with the lock held.
func (s *Store) assemble(rec *models.PostRecord) *models.PostRecord {
	out := *rec
	out.CompletedAt = copyTime(rec.CompletedAt)
	out.Children = nil
	for _, c := range s.children {
		if c.PostRecordID == rec.ID {
			out.Children = append(out.Children, copyChild(c))
		}
	}
	sort.Slice(out.Children, func(i, j int) bool {
		a, b := out.Children[i], out.Children[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return &out
}

// === Post events ===

type eventView struct{ s *Store }

func (v eventView) Append(ctx context.Context, ev *models.PostEvent) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	for _, existing := range v.s.events {
		if existing.ID == ev.ID {
			return fmt.Errorf("append post event: duplicate id %s", ev.ID)
		}
		if existing.PostRecordID == ev.PostRecordID && existing.Sequence == ev.Sequence {
			return fmt.Errorf("append post event: duplicate sequence %d for %s", ev.Sequence, ev.PostRecordID)
		}
	}
	v.s.events = append(v.s.events, copyEvent(ev))
	return nil
}

func (v eventView) ListByPostRecord(ctx context.Context, postRecordID string) ([]*models.PostEvent, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	var out []*models.PostEvent
	for _, ev := range v.s.events {
		if ev.PostRecordID == postRecordID {
			out = append(out, copyEvent(ev))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (v eventView) ListBySubmission(ctx context.Context, submissionID string) ([]*models.PostEvent, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	var out []*models.PostEvent
	for _, ev := range v.s.events {
		if ev.SubmissionID == submissionID {
			out = append(out, copyEvent(ev))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// === Post queue ===

type queueView struct{ s *Store }

func (v queueView) Insert(ctx context.Context, rec *models.PostQueueRecord) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	for _, q := range v.s.queue {
		if q.SubmissionID == rec.SubmissionID {
			return false, nil
		}
	}
	c := *rec
	v.s.queue[rec.ID] = &c
	return true, nil
}

func (v queueView) List(ctx context.Context) ([]*models.PostQueueRecord, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.sortedQueue(), nil
}

func (v queueView) MaxPosition(ctx context.Context) (int, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	max := -1
	for _, q := range v.s.queue {
		if q.Position > max {
			max = q.Position
		}
	}
	return max, nil
}

func (v queueView) PopNext(ctx context.Context) (*models.PostQueueRecord, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	running := make(map[string]bool)
	for _, rec := range v.s.records {
		if rec.State == models.PostRecordRunning {
			running[rec.SubmissionID] = true
		}
	}

	for _, q := range v.s.sortedQueue() {
		if running[q.SubmissionID] {
			continue
		}
		delete(v.s.queue, q.ID)
		return q, nil
	}
	return nil, nil
}

func (v queueView) SetPositions(ctx context.Context, positions map[string]int) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	for id, pos := range positions {
		if q, ok := v.s.queue[id]; ok {
			q.Position = pos
		}
	}
	return nil
}

func (v queueView) DeleteBySubmission(ctx context.Context, submissionIDs []string) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	wanted := make(map[string]bool, len(submissionIDs))
	for _, id := range submissionIDs {
		wanted[id] = true
	}

	var n int64
	for id, q := range v.s.queue {
		if wanted[q.SubmissionID] {
			delete(v.s.queue, id)
			n++
		}
	}
	return n, nil
}

// sortedQueue must be called with the lock held.
func (s *Store) sortedQueue() []*models.PostQueueRecord {
	out := make([]*models.PostQueueRecord, 0, len(s.queue))
	for _, q := range s.queue {
		c := *q
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position == out[j].Position {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Position < out[j].Position
	})
	return out
}
