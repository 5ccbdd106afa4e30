package common

import (
	"context"
	stdliberrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/pkg/errors"
)

// ---------------------------------------------------------------------------
// Sentinel Errors
// ---------------------------------------------------------------------------

var (
	ErrAccumulatorClosed = stdliberrors.New("batch accumulator is closed")
)

// ---------------------------------------------------------------------------
// Items
// ---------------------------------------------------------------------------

// BatchItem is one buffered unit of work. The accumulator owns it until the
// flush that hands it to the callback.
type BatchItem[T any] struct {
	Payload    T
	EnqueuedAt time.Time
	SourceID   string
}

// FlushFunc receives a flushed batch. A returned error is logged; the batch
// is not re-queued.
type FlushFunc[T any] func(ctx context.Context, batch []BatchItem[T]) error

// AccumulatorStatus is a point-in-time view of an accumulator.
type AccumulatorStatus struct {
	Name              string        `json:"name"`
	BatchSize         int           `json:"batch_size"`
	FlushTimeout      time.Duration `json:"flush_timeout"`
	CurrentBufferSize int           `json:"current_buffer_size"`
	BufferFillPercent float64       `json:"buffer_fill_percent"`
	TimerArmed        bool          `json:"timer_armed"`
	FlushCount        int64         `json:"flush_count"`
	FlushedItems      int64         `json:"flushed_items"`
	FailedFlushes     int64         `json:"failed_flushes"`
	Closed            bool          `json:"closed"`
}

// FlushTriggerClose marks the final flush performed by Close.
const FlushTriggerClose = "close"

// ---------------------------------------------------------------------------
// AccumulatorOption functional options
// ---------------------------------------------------------------------------

type accumulatorConfig struct {
	name    string
	logger  logging.Logger
	metrics EngineMetrics
	now     func() time.Time
}

// AccumulatorOption configures a BatchAccumulator.
type AccumulatorOption func(*accumulatorConfig)

// WithAccumulatorName labels log lines and metrics.
func WithAccumulatorName(name string) AccumulatorOption {
	return func(c *accumulatorConfig) {
		if name != "" {
			c.name = name
		}
	}
}

// WithAccumulatorLogger injects a logger.
func WithAccumulatorLogger(l logging.Logger) AccumulatorOption {
	return func(c *accumulatorConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithAccumulatorMetrics injects a metrics collector.
func WithAccumulatorMetrics(m EngineMetrics) AccumulatorOption {
	return func(c *accumulatorConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithAccumulatorClock overrides the EnqueuedAt clock.
func WithAccumulatorClock(now func() time.Time) AccumulatorOption {
	return func(c *accumulatorConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// ---------------------------------------------------------------------------
// BatchAccumulator
// ---------------------------------------------------------------------------

// BatchAccumulator buffers items and hands them to a callback either when
// batchSize items are buffered or flushTimeout after the first unflushed
// item arrived, whichever comes first.
//
// A single mutex guards append, size check, timer cancellation and buffer
// hand-off. The timeout timer is armed only on the empty to non-empty
// transition. Every hand-off bumps a generation counter, so a timer that
// fires after its buffer was already flushed does nothing.
type BatchAccumulator[T any] struct {
	batchSize    int
	flushTimeout time.Duration
	callback     FlushFunc[T]
	cfg          *accumulatorConfig

	mu         sync.Mutex
	buffer     []BatchItem[T]
	timer      *time.Timer
	generation uint64
	closed     bool

	flushCount    int64
	flushedItems  int64
	failedFlushes int64

	inflight sync.WaitGroup
}

// NewBatchAccumulator creates an accumulator. A flushTimeout of zero disables
// the timer so only size and explicit flushes deliver.
func NewBatchAccumulator[T any](batchSize int, flushTimeout time.Duration, callback FlushFunc[T], opts ...AccumulatorOption) (*BatchAccumulator[T], error) {
	if batchSize < 1 {
		return nil, errors.InvalidParam("batch size must be at least 1")
	}
	if flushTimeout < 0 {
		return nil, errors.InvalidParam("flush timeout must not be negative")
	}
	if callback == nil {
		return nil, errors.InvalidParam("flush callback must not be nil")
	}
	cfg := &accumulatorConfig{
		name:    "batch",
		logger:  logging.NewNopLogger(),
		metrics: NewNoopEngineMetrics(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(cfg)
	}
	cfg.logger = cfg.logger.With(logging.String("accumulator", cfg.name))

	return &BatchAccumulator[T]{
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		callback:     callback,
		cfg:          cfg,
		buffer:       make([]BatchItem[T], 0, batchSize),
	}, nil
}

// Add buffers payload. When the buffer reaches batchSize the flush runs
// synchronously on the caller's goroutine before Add returns.
func (a *BatchAccumulator[T]) Add(ctx context.Context, payload T, sourceID string) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrAccumulatorClosed
	}

	wasEmpty := len(a.buffer) == 0
	a.buffer = append(a.buffer, BatchItem[T]{
		Payload:    payload,
		EnqueuedAt: a.cfg.now(),
		SourceID:   sourceID,
	})

	if len(a.buffer) >= a.batchSize {
		batch := a.takeLocked()
		a.mu.Unlock()
		a.deliver(ctx, batch, FlushTriggerSize)
		return nil
	}

	if wasEmpty {
		a.armTimerLocked()
	}
	a.mu.Unlock()
	return nil
}

// Flush hands whatever is buffered to the callback. It returns the callback
// error, which is also logged.
func (a *BatchAccumulator[T]) Flush(ctx context.Context) error {
	a.mu.Lock()
	batch := a.takeLocked()
	a.mu.Unlock()
	return a.deliver(ctx, batch, FlushTriggerManual)
}

// Close rejects further adds, flushes the remainder and waits for in-flight
// callbacks or ctx expiry. Close is idempotent.
func (a *BatchAccumulator[T]) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	batch := a.takeLocked()
	a.mu.Unlock()

	flushErr := a.deliver(ctx, batch, FlushTriggerClose)

	done := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return flushErr
	case <-ctx.Done():
		return fmt.Errorf("close timed out: %w", ctx.Err())
	}
}

// Len returns the number of buffered items.
func (a *BatchAccumulator[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffer)
}

// Status reports buffer occupancy and flush counters.
func (a *BatchAccumulator[T]) Status() AccumulatorStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.buffer)
	return AccumulatorStatus{
		Name:              a.cfg.name,
		BatchSize:         a.batchSize,
		FlushTimeout:      a.flushTimeout,
		CurrentBufferSize: n,
		BufferFillPercent: float64(n) / float64(a.batchSize) * 100,
		TimerArmed:        a.timer != nil,
		FlushCount:        a.flushCount,
		FlushedItems:      a.flushedItems,
		FailedFlushes:     a.failedFlushes,
		Closed:            a.closed,
	}
}

// ---------------------------------------------------------------------------
// internals (callers hold a.mu where the name says Locked)
// ---------------------------------------------------------------------------

func (a *BatchAccumulator[T]) armTimerLocked() {
	if a.flushTimeout <= 0 || a.timer != nil {
		return
	}
	gen := a.generation
	a.timer = time.AfterFunc(a.flushTimeout, func() { a.onTimer(gen) })
}

// cancelTimerLocked is safe to call any number of times.
func (a *BatchAccumulator[T]) cancelTimerLocked() {
	if a.timer == nil {
		return
	}
	a.timer.Stop()
	a.timer = nil
}

// takeLocked detaches the buffer and registers the batch as in flight.
func (a *BatchAccumulator[T]) takeLocked() []BatchItem[T] {
	a.cancelTimerLocked()
	a.generation++
	if len(a.buffer) == 0 {
		return nil
	}
	batch := a.buffer
	a.buffer = make([]BatchItem[T], 0, a.batchSize)
	a.inflight.Add(1)
	return batch
}

func (a *BatchAccumulator[T]) onTimer(gen uint64) {
	a.mu.Lock()
	if gen != a.generation {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	batch := a.takeLocked()
	a.mu.Unlock()
	a.deliver(context.Background(), batch, FlushTriggerTimeout)
}

func (a *BatchAccumulator[T]) deliver(ctx context.Context, batch []BatchItem[T], trigger string) (err error) {
	if len(batch) == 0 {
		return nil
	}
	defer a.inflight.Done()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrCodeInternal, "flush callback panicked: %v", r)
		}
		failed := err != nil
		a.mu.Lock()
		a.flushCount++
		a.flushedItems += int64(len(batch))
		if failed {
			a.failedFlushes++
		}
		a.mu.Unlock()

		durationMs := float64(time.Since(start).Microseconds()) / 1000.0
		a.cfg.metrics.RecordBatchFlush(ctx, &FlushMetricParams{
			Accumulator: a.cfg.name,
			Trigger:     trigger,
			Size:        len(batch),
			DurationMs:  durationMs,
			Failed:      failed,
		})
		if failed {
			a.cfg.logger.WithError(err).Error("batch flush callback failed",
				logging.String("trigger", trigger),
				logging.Int("size", len(batch)))
			return
		}
		a.cfg.logger.Debug("batch flushed",
			logging.String("trigger", trigger),
			logging.Int("size", len(batch)),
			logging.Float64("duration_ms", durationMs))
	}()

	return a.callback(ctx, batch)
}

//Personal.AI order the ending
