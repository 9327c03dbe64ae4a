package dashboard

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerNewestTicketWins(t *testing.T) {
	var tr Tracker

	ctx1, first := tr.Begin(context.Background())
	ctx2, second := tr.Begin(context.Background())

	assert.ErrorIs(t, ctx1.Err(), context.Canceled)
	assert.NoError(t, ctx2.Err())

	var committed []string
	// the abandoned request finishes late
	assert.False(t, first.Commit(func() { committed = append(committed, "first") }))
	assert.True(t, second.Commit(func() { committed = append(committed, "second") }))
	assert.Equal(t, []string{"second"}, committed)

	assert.False(t, first.Current())
	assert.True(t, second.Current())
}

func TestTrackerStop(t *testing.T) {
	var tr Tracker
	ctx, tk := tr.Begin(context.Background())
	tr.Stop()

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.False(t, tk.Commit(func() { t.Fatal("stale commit ran") }))
	tr.Stop()
}

func TestTrackerParentCancellation(t *testing.T) {
	var tr Tracker
	parent, cancel := context.WithCancel(context.Background())
	ctx, _ := tr.Begin(parent)
	cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestTrackerConcurrentCommitsOnlyLatest(t *testing.T) {
	var tr Tracker
	tickets := make([]*Ticket, 50)
	for i := range tickets {
		_, tickets[i] = tr.Begin(context.Background())
	}

	var (
		mu        sync.Mutex
		committed []int
		wg        sync.WaitGroup
	)
	for i, tk := range tickets {
		wg.Add(1)
		go func(i int, tk *Ticket) {
			defer wg.Done()
			tk.Commit(func() {
				mu.Lock()
				committed = append(committed, i)
				mu.Unlock()
			})
		}(i, tk)
	}
	wg.Wait()

	assert.Equal(t, []int{49}, committed)
}

func TestTrackerDoKeepsRequestInFlight(t *testing.T) {
	var tr Tracker

	ctx, ticket := tr.Begin(context.Background())
	ran := false
	tr.Do(func() { ran = true })

	assert.True(t, ran)
	assert.NoError(t, ctx.Err())
	assert.True(t, ticket.Current())
	assert.True(t, ticket.Commit(func() {}))
}
