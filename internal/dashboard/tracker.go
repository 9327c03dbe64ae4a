package dashboard

import (
	"context"
	"sync"

	"applogs/internal/monitoring"
)

// Tracker enforces last-request-wins for one consumer. Each Begin supersedes
// and cancels the previous request, and only the newest ticket may commit.
type Tracker struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// Ticket identifies one request started by a Tracker.
type Ticket struct {
	tracker *Tracker
	gen     uint64
}

// Begin starts a new request derived from ctx, cancelling the one in flight.
func (t *Tracker) Begin(ctx context.Context) (context.Context, *Ticket) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
	t.gen++
	ctx, t.cancel = context.WithCancel(ctx)
	return ctx, &Ticket{tracker: t, gen: t.gen}
}

// Stop cancels the request in flight, if any. Later commits are dropped.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.gen++
}

// Do runs fn under the tracker lock without starting a new request, so fn
// never interleaves with a Commit and the request in flight keeps running.
func (t *Tracker) Do(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn()
}

// Current reports whether no newer request has begun.
func (tk *Ticket) Current() bool {
	tk.tracker.mu.Lock()
	defer tk.tracker.mu.Unlock()
	return tk.gen == tk.tracker.gen
}

// Commit runs fn if the ticket is still the newest one and reports whether
// it did. fn runs under the tracker lock, so a concurrent Begin waits for it.
func (tk *Ticket) Commit(fn func()) bool {
	tk.tracker.mu.Lock()
	defer tk.tracker.mu.Unlock()
	if tk.gen != tk.tracker.gen {
		monitoring.StaleResultsDropped.Inc()
		return false
	}
	fn()
	return true
}
