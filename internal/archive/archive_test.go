package archive

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"applogs/internal/config"
	"applogs/internal/models"
)

type fakeSink struct {
	mu      sync.Mutex
	batches [][]models.LogRecord
	err     error
	calls   chan int
}

func newFakeSink() *fakeSink {
	return &fakeSink{calls: make(chan int, 100)}
}

func (f *fakeSink) InsertLogs(_ context.Context, logs []models.LogRecord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		f.calls <- 0
		return 0, f.err
	}
	cp := append([]models.LogRecord(nil), logs...)
	f.batches = append(f.batches, cp)
	f.calls <- len(cp)
	return len(cp), nil
}

func (f *fakeSink) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func records(n int) []models.LogRecord {
	out := make([]models.LogRecord, n)
	for i := range out {
		out[i] = models.LogRecord{ID: int64(i + 1), Timestamp: models.NewTimestamp(time.Now())}
	}
	return out
}

func waitCall(t *testing.T, sink *fakeSink) int {
	t.Helper()
	select {
	case n := <-sink.calls:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for archive write")
		return 0
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	a := New(newFakeSink(), config.ArchiveConfig{}, zerolog.Nop())
	def := config.DefaultConfig().Archive
	assert.Equal(t, def.BatchSize, a.cfg.BatchSize)
	assert.Equal(t, def.BatchTimeout, a.cfg.BatchTimeout)
	assert.Equal(t, def.WorkerCount, a.cfg.WorkerCount)
	assert.Equal(t, def.QueueSize, cap(a.queue))
}

func TestFlushOnBatchSize(t *testing.T) {
	sink := newFakeSink()
	a := New(sink, config.ArchiveConfig{BatchSize: 3, BatchTimeout: time.Hour, QueueSize: 10, WorkerCount: 1}, zerolog.Nop())
	a.Start(context.Background())
	defer a.Stop()

	assert.Equal(t, 3, a.Offer(records(3)))
	assert.Equal(t, 3, waitCall(t, sink))
}

func TestFlushOnTimeout(t *testing.T) {
	sink := newFakeSink()
	a := New(sink, config.ArchiveConfig{BatchSize: 100, BatchTimeout: 20 * time.Millisecond, QueueSize: 10, WorkerCount: 1}, zerolog.Nop())
	a.Start(context.Background())
	defer a.Stop()

	a.Offer(records(2))
	assert.Equal(t, 2, waitCall(t, sink))
}

func TestStopFlushesPending(t *testing.T) {
	sink := newFakeSink()
	a := New(sink, config.ArchiveConfig{BatchSize: 100, BatchTimeout: time.Hour, QueueSize: 10, WorkerCount: 2}, zerolog.Nop())
	a.Start(context.Background())

	a.Offer(records(5))
	a.Stop()

	assert.Equal(t, 5, sink.total())
}

func TestOfferDropsWhenQueueFull(t *testing.T) {
	sink := newFakeSink()
	a := New(sink, config.ArchiveConfig{BatchSize: 10, BatchTimeout: time.Hour, QueueSize: 4, WorkerCount: 1}, zerolog.Nop())

	// not started: nothing drains the queue
	assert.Equal(t, 4, a.Offer(records(6)))
	assert.Equal(t, 0, a.Offer(records(1)))

	a.Start(context.Background())
	a.Stop()
	assert.Equal(t, 4, sink.total())
}

func TestWriteErrorDoesNotStopWorker(t *testing.T) {
	sink := newFakeSink()
	sink.err = errors.New("clickhouse down")
	a := New(sink, config.ArchiveConfig{BatchSize: 1, BatchTimeout: time.Hour, QueueSize: 10, WorkerCount: 1}, zerolog.Nop())
	a.Start(context.Background())
	defer a.Stop()

	a.Offer(records(1))
	waitCall(t, sink)

	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()

	a.Offer(records(1))
	assert.Equal(t, 1, waitCall(t, sink))
}

func TestStartStopIdempotent(t *testing.T) {
	a := New(newFakeSink(), config.ArchiveConfig{WorkerCount: 1}, zerolog.Nop())
	a.Stop()
	a.Start(context.Background())
	a.Start(context.Background())
	a.Stop()
	a.Stop()
}

func TestLoggerKeepsCallerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).With().Str("component", "archive").Logger()
	a := New(newFakeSink(), config.ArchiveConfig{WorkerCount: 1}, logger)
	a.Start(context.Background())
	a.Stop()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	for _, line := range lines {
		assert.Equal(t, 1, strings.Count(line, `"component"`), line)
	}
}

func TestNilArchiverOffer(t *testing.T) {
	var a *Archiver
	require.NotPanics(t, func() { a.Offer(records(1)) })
}
