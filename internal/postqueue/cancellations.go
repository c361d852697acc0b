package postqueue

import "sync"

// Cancellations holds the cooperative stop requests for running submissions.
// The queue sets them and the orchestrator polls them at its checkpoints.
// A submission is active from the moment it is dequeued until Finish.
type Cancellations struct {
	mu     sync.RWMutex
	flags  map[string]struct{}
	active map[string]struct{}
}

func NewCancellations() *Cancellations {
	return &Cancellations{flags: make(map[string]struct{}), active: make(map[string]struct{})}
}

// Begin marks the submission active and drops any stale request for it.
func (c *Cancellations) Begin(submissionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.flags, submissionID)
	c.active[submissionID] = struct{}{}
}

// Finish ends the active span of the submission and its request.
func (c *Cancellations) Finish(submissionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.flags, submissionID)
	delete(c.active, submissionID)
}

func (c *Cancellations) Active(submissionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.active[submissionID]
	return ok
}

func (c *Cancellations) Request(submissionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flags[submissionID] = struct{}{}
}

func (c *Cancellations) Requested(submissionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.flags[submissionID]
	return ok
}

// Signal is the website.CancelSignal of one submission.
func (c *Cancellations) Signal(submissionID string) Signal {
	return Signal{c: c, submissionID: submissionID}
}

type Signal struct {
	c            *Cancellations
	submissionID string
}

func (s Signal) Cancelled() bool {
	return s.c.Requested(s.submissionID)
}
