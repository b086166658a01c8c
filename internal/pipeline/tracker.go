package pipeline

import (
	"context"
	"sync"
	"time"
)

// Status is the outcome of the most recent run.
type Status struct {
	Summary    *Summary  `json:"summary,omitempty"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
	// ConsecutiveFailures counts failed runs since the last success.
	ConsecutiveFailures int `json:"consecutive_failures"`
}

// Tracker remembers the last run for the status server.
type Tracker struct {
	mu     sync.RWMutex
	status Status
	seen   bool
}

// Record stores the outcome of a run and returns the updated status.
func (t *Tracker) Record(sum Summary, err error) Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seen = true
	t.status.FinishedAt = time.Now()
	t.status.Summary = &sum
	if err != nil {
		t.status.Error = err.Error()
		t.status.ConsecutiveFailures++
	} else {
		t.status.Error = ""
		t.status.ConsecutiveFailures = 0
	}
	return t.status
}

// Last returns the last recorded status and false if no run finished yet.
func (t *Tracker) Last() (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status, t.seen
}

// Tracked wraps r so every run is recorded in t.
func (t *Tracker) Tracked(r *Runner) func(ctx context.Context) (Status, error) {
	return func(ctx context.Context) (Status, error) {
		sum, err := r.Run(ctx)
		return t.Record(sum, err), err
	}
}
