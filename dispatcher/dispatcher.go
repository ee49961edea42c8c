package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JohnPlummer/batch-scorer/scorer"
)

// DefaultQueueSize is the capacity of the dispatch queue when none is configured
const DefaultQueueSize = 1024

var (
	// ErrStopped is returned for work submitted to, or left queued in, a stopped dispatcher
	ErrStopped = errors.New("dispatcher stopped")

	// ErrAlreadyRunning is returned when a second worker loop is started
	ErrAlreadyRunning = errors.New("dispatcher worker already running")
)

// State is the observable state of the batch worker
type State int32

const (
	StateIdle State = iota
	StateWaiting
	StateScoring
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateScoring:
		return "scoring"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithQueueSize sets the dispatch queue capacity
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithScoringOptions sets the options passed to every backend call
func WithScoringOptions(opts ...scorer.ScoringOption) Option {
	return func(d *Dispatcher) {
		d.scoringOpts = opts
	}
}

// WithBackendTimeout bounds each backend call; zero means no limit
func WithBackendTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.backendTimeout = timeout
	}
}

// WithMetrics sets the recorder used for queue metrics
func WithMetrics(metrics *scorer.MetricsRecorder) Option {
	return func(d *Dispatcher) {
		d.metrics = metrics
	}
}

// Dispatcher funnels work items from many concurrent callers through a single
// worker that owns the scoring backend. Items are scored one at a time in
// arrival order and each caller only ever reads its own result channel.
type Dispatcher struct {
	backend        scorer.Scorer
	queue          chan *WorkItem
	queueSize      int
	scoringOpts    []scorer.ScoringOption
	backendTimeout time.Duration
	metrics        *scorer.MetricsRecorder

	// mu orders enqueues against the transition to stopped
	mu      sync.RWMutex
	stopped bool

	running   atomic.Bool
	state     atomic.Int32
	processed atomic.Uint64
	failed    atomic.Uint64
}

// New creates a dispatcher around backend. The worker is not started.
func New(backend scorer.Scorer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		backend:   backend,
		queueSize: DefaultQueueSize,
		metrics:   scorer.NewMetricsRecorder(false),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.queue = make(chan *WorkItem, d.queueSize)
	return d
}

// Start runs the worker loop in a new goroutine until ctx is cancelled
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Batch worker exited", "error", err)
		}
	}()
}

// Run is the batch worker loop. It blocks until ctx is cancelled, lets the
// item being scored finish, then fails any work still queued with ErrStopped.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	if d.isStopped() {
		return ErrStopped
	}

	slog.Info("Batch worker started", "queue_size", d.queueSize)

	for {
		d.setState(StateWaiting)

		select {
		case <-ctx.Done():
			d.stop()
			slog.Info("Batch worker stopped",
				"processed", d.processed.Load(),
				"failed", d.failed.Load())
			return ctx.Err()

		case item := <-d.queue:
			d.metrics.RecordQueuedRequests(-1)
			d.metrics.RecordQueueWait(time.Since(item.Enqueued).Seconds())

			// select picks randomly when both cases are ready
			if ctx.Err() != nil {
				item.fail(ErrStopped)
				continue
			}

			d.setState(StateScoring)
			d.process(ctx, item)
		}
	}
}

// Enqueue hands texts to the worker and returns the work item whose result
// channel the caller must read. It never blocks.
func (d *Dispatcher) Enqueue(texts []string) (*WorkItem, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		d.metrics.RecordRejected("stopped")
		return nil, ErrStopped
	}

	item := newWorkItem(texts)
	select {
	case d.queue <- item:
		d.metrics.RecordQueuedRequests(1)
		return item, nil
	default:
		d.metrics.RecordRejected("queue_full")
		return nil, ErrQueueOverflow
	}
}

// Submit enqueues texts and waits for one result per text, in input order.
// An empty batch returns immediately without reaching the worker.
func (d *Dispatcher) Submit(ctx context.Context, texts []string) ([]scorer.Result, error) {
	if len(texts) == 0 {
		return []scorer.Result{}, nil
	}

	item, err := d.Enqueue(texts)
	if err != nil {
		return nil, err
	}

	d.metrics.RecordInflightRequests(1)
	defer d.metrics.RecordInflightRequests(-1)

	return item.Collect(ctx)
}

// State returns the current worker state
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// QueueDepth returns the number of work items waiting for the worker
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

// QueueCapacity returns the dispatch queue capacity
func (d *Dispatcher) QueueCapacity() int {
	return cap(d.queue)
}

// Processed returns the number of work items scored successfully
func (d *Dispatcher) Processed() uint64 {
	return d.processed.Load()
}

// Failed returns the number of work items whose backend call failed
func (d *Dispatcher) Failed() uint64 {
	return d.failed.Load()
}

func (d *Dispatcher) process(ctx context.Context, item *WorkItem) {
	start := time.Now()

	results, err := d.score(ctx, item)
	if err == nil && len(results) != len(item.Texts) {
		err = fmt.Errorf("%w: expected %d results, received %d",
			scorer.ErrResultMismatch, len(item.Texts), len(results))
	}

	if err != nil {
		d.failed.Add(1)
		slog.Error("Scoring backend failed",
			"item_id", item.ID,
			"texts", len(item.Texts),
			"duration", time.Since(start),
			"error", err)
		item.fail(&BackendError{ItemID: item.ID, Cause: err})
		return
	}

	item.deliver(results)
	d.processed.Add(1)

	slog.Debug("Work item scored",
		"item_id", item.ID,
		"texts", len(item.Texts),
		"duration", time.Since(start))
}

// score makes exactly one backend call and converts a panic into an error so
// the loop survives a misbehaving backend
func (d *Dispatcher) score(ctx context.Context, item *WorkItem) (results []scorer.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend panic: %v", r)
		}
	}()

	// the in-flight item finishes even when the worker is stopping
	ctx = context.WithoutCancel(ctx)
	if d.backendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.backendTimeout)
		defer cancel()
	}

	return d.backend.ScoreTexts(ctx, item.Texts, d.scoringOpts...)
}

func (d *Dispatcher) setState(s State) {
	d.state.Store(int32(s))
}

func (d *Dispatcher) isStopped() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stopped
}

// stop rejects new work and fails everything still queued
func (d *Dispatcher) stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	d.setState(StateStopped)

	for {
		select {
		case item := <-d.queue:
			d.metrics.RecordQueuedRequests(-1)
			item.fail(ErrStopped)
		default:
			return
		}
	}
}
