package orchestrator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// throttle keeps the per-account posting gap and serialises work per account.
type throttle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	locks    map[string]*sync.Mutex
}

func newThrottle() *throttle {
	return &throttle{
		limiters: make(map[string]*rate.Limiter),
		locks:    make(map[string]*sync.Mutex),
	}
}

// lock serialises postings to one account.
func (t *throttle) lock(accountID string) func() {
	t.mu.Lock()
	l, ok := t.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[accountID] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// wait blocks until the account's cool-down has passed.
func (t *throttle) wait(ctx context.Context, accountID string, gap time.Duration) error {
	if gap <= 0 {
		return ctx.Err()
	}
	t.mu.Lock()
	limiter, ok := t.limiters[accountID]
	t.mu.Unlock()
	if !ok {
		return ctx.Err()
	}
	return limiter.Wait(ctx)
}

// posted starts the account's cool-down. The gap runs from the end of a post,
// so every post replaces the limiter with one whose only token is spent now.
func (t *throttle) posted(accountID string, gap time.Duration) {
	if gap <= 0 {
		return
	}
	limiter := rate.NewLimiter(rate.Every(gap), 1)
	limiter.ReserveN(time.Now(), 1)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.limiters[accountID] = limiter
}
