// Package archive mirrors log records fetched from the API into ClickHouse.
//
// Records are queued without blocking the caller and written in batches by a
// small pool of workers. A batch is flushed when it reaches the configured
// size, when the batch timeout elapses, and once more on shutdown.
package archive

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"applogs/internal/config"
	"applogs/internal/models"
	"applogs/internal/monitoring"
)

const finalFlushTimeout = 10 * time.Second

// Sink persists a batch and reports how many rows it stored.
type Sink interface {
	InsertLogs(ctx context.Context, logs []models.LogRecord) (int, error)
}

// Archiver queues records and writes them to a Sink in batches.
type Archiver struct {
	sink   Sink
	cfg    config.ArchiveConfig
	queue  chan models.LogRecord
	logger zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates an Archiver. Zero-valued settings fall back to the defaults.
func New(sink Sink, cfg config.ArchiveConfig, logger zerolog.Logger) *Archiver {
	def := config.DefaultConfig().Archive
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = def.BatchTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = def.WorkerCount
	}
	return &Archiver{
		sink:   sink,
		cfg:    cfg,
		queue:  make(chan models.LogRecord, cfg.QueueSize),
		logger: logger,
	}
}

// Offer queues records for archiving and returns how many were accepted.
// It never blocks; records that do not fit in the queue are dropped.
func (a *Archiver) Offer(records []models.LogRecord) int {
	if a == nil {
		return 0
	}
	accepted := 0
	for _, r := range records {
		select {
		case a.queue <- r:
			accepted++
		default:
			dropped := len(records) - accepted
			monitoring.ArchiveRows.WithLabelValues("dropped").Add(float64(dropped))
			a.logger.Warn().Int("dropped", dropped).Msg("archive queue full")
			monitoring.ArchiveQueueSize.Set(float64(len(a.queue)))
			return accepted
		}
	}
	monitoring.ArchiveQueueSize.Set(float64(len(a.queue)))
	return accepted
}

// Start launches the batch workers. Calling Start twice is a no-op.
func (a *Archiver) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return
	}
	ctx, a.cancel = context.WithCancel(ctx)
	a.started = true

	for i := 0; i < a.cfg.WorkerCount; i++ {
		a.wg.Add(1)
		go a.process(ctx, i)
	}
	a.logger.Info().
		Int("workers", a.cfg.WorkerCount).
		Int("batch_size", a.cfg.BatchSize).
		Dur("batch_timeout", a.cfg.BatchTimeout).
		Msg("archive started")
}

// Stop flushes pending records and waits for the workers to exit.
func (a *Archiver) Stop() {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return
	}
	a.cancel()
	a.started = false
	a.mu.Unlock()

	a.wg.Wait()
	a.logger.Info().Msg("archive stopped")
}

func (a *Archiver) process(ctx context.Context, worker int) {
	defer a.wg.Done()
	batch := make([]models.LogRecord, 0, a.cfg.BatchSize)
	ticker := time.NewTicker(a.cfg.BatchTimeout)
	defer ticker.Stop()

	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		a.write(ctx, worker, batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// drain what is already queued, then flush with a fresh deadline
		drain:
			for {
				select {
				case r := <-a.queue:
					batch = append(batch, r)
					if len(batch) >= a.cfg.BatchSize {
						a.finalFlush(worker, batch)
						batch = batch[:0]
					}
				default:
					break drain
				}
			}
			a.finalFlush(worker, batch)
			monitoring.ArchiveQueueSize.Set(float64(len(a.queue)))
			return
		case r := <-a.queue:
			batch = append(batch, r)
			if len(batch) >= a.cfg.BatchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}

func (a *Archiver) finalFlush(worker int, batch []models.LogRecord) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
	defer cancel()
	a.write(ctx, worker, batch)
}

func (a *Archiver) write(ctx context.Context, worker int, batch []models.LogRecord) {
	batchID := uuid.NewString()
	start := time.Now()

	n, err := a.sink.InsertLogs(ctx, batch)
	monitoring.ArchiveWriteDuration.Observe(time.Since(start).Seconds())
	monitoring.ArchiveBatchSize.Observe(float64(len(batch)))
	monitoring.ArchiveQueueSize.Set(float64(len(a.queue)))

	if err != nil {
		monitoring.ArchiveRows.WithLabelValues("error").Add(float64(len(batch)))
		a.logger.Error().Err(err).
			Str("batch_id", batchID).
			Int("worker", worker).
			Int("records", len(batch)).
			Msg("archive write failed")
		return
	}

	monitoring.ArchiveRows.WithLabelValues("success").Add(float64(n))
	if skipped := len(batch) - n; skipped > 0 {
		monitoring.ArchiveRows.WithLabelValues("skipped").Add(float64(skipped))
	}
	a.logger.Debug().
		Str("batch_id", batchID).
		Int("worker", worker).
		Int("rows", n).
		Dur("took", time.Since(start)).
		Msg("archive batch written")
}
