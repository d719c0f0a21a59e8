package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/datapulse-live/internal/connection"
)

// Config holds recorder batching settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: time.Second,
		BufferSize:    1000,
	}
}

// Metrics tracks recorder activity.
type Metrics struct {
	Recorded int64
	Inserts  int64
	Dropped  int64
	Errors   int64
	Flushes  int64
}

// Recorder batches job statuses into a Store.
type Recorder struct {
	cfg    Config
	store  Store
	logger *slog.Logger

	queue *Queue[Row]

	// Batching
	batch   []Row
	batchMu sync.Mutex

	// Lifecycle
	ctx          context.Context
	cancel       context.CancelFunc
	consumerDone chan struct{}
	flusherDone  chan struct{}

	metrics Metrics
}

// NewRecorder creates a new Recorder.
func NewRecorder(cfg Config, store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	initial := cfg.BatchSize
	if initial > cfg.BufferSize {
		initial = cfg.BufferSize
	}
	return &Recorder{
		cfg:    cfg,
		store:  store,
		logger: logger.With("component", "history"),
		queue:  NewQueue[Row](initial, cfg.BufferSize),
		batch:  make([]Row, 0, cfg.BatchSize),
	}
}

// Record queues a delivered job status. It never blocks; when the queue is
// full the oldest queued status is dropped. It matches connection.StatusFunc
// so it can be added to connection.Observers directly.
func (r *Recorder) Record(js connection.JobStatus) {
	row := Row{
		WorkspaceID: js.WorkspaceID,
		Status:      string(js.Status),
		Error:       js.Error,
		ReceivedAt:  js.ReceivedAt,
	}

	dropped := r.queue.Push(row)

	r.batchMu.Lock()
	r.metrics.Recorded++
	if dropped {
		r.metrics.Dropped++
	}
	r.batchMu.Unlock()

	if dropped {
		r.logger.Warn("history queue full, dropped oldest status")
	}
}

// Start begins consuming queued statuses and flushing batches.
func (r *Recorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.consumerDone = make(chan struct{})
	r.flusherDone = make(chan struct{})

	go r.consumeLoop()
	go r.flushLoop()

	r.logger.Info("history recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop drains the queue, stops the loops and writes the final batch using
// ctx. Statuses recorded after Stop are ignored.
func (r *Recorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping history recorder")

	r.queue.Close()

	if r.cancel == nil {
		return nil
	}

	select {
	case <-r.consumerDone:
	case <-ctx.Done():
		r.logger.Warn("history recorder drain timed out")
	}

	r.cancel()

	select {
	case <-r.flusherDone:
	case <-ctx.Done():
	}

	// Final flush
	r.flush(ctx)

	r.logger.Info("history recorder stopped")
	return nil
}

// Stats returns current metrics.
func (r *Recorder) Stats() Metrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.metrics
}

func (r *Recorder) consumeLoop() {
	defer close(r.consumerDone)

	for {
		row, ok := r.queue.Pop()
		if !ok {
			return
		}
		r.handleRow(row)
	}
}

func (r *Recorder) flushLoop() {
	defer close(r.flusherDone)

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.flush(r.ctx)
		}
	}
}

func (r *Recorder) handleRow(row Row) {
	r.batchMu.Lock()
	r.batch = append(r.batch, row)
	shouldFlush := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if shouldFlush {
		r.flush(r.ctx)
	}
}

// flush writes the current batch to the store.
func (r *Recorder) flush(ctx context.Context) {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := r.batch
	r.batch = make([]Row, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()

	if err := r.store.Insert(ctx, batch); err != nil {
		r.logger.Error("batch insert failed", "error", err, "count", len(batch))
		r.batchMu.Lock()
		r.metrics.Errors++
		r.batchMu.Unlock()
		return
	}

	r.batchMu.Lock()
	r.metrics.Inserts += int64(len(batch))
	r.metrics.Flushes++
	r.batchMu.Unlock()

	r.logger.Debug("flushed job statuses",
		"count", len(batch),
		"duration", time.Since(start),
	)
}
