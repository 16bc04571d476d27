package core

// queue.go runs secondary effects (account provisioning and the like) off the
// import path in bounded batches, pausing between batches so the backing
// service is never hit by more than one batch at a time.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultEffectBatchSize is the most jobs that run at once.
	DefaultEffectBatchSize = 50

	// DefaultEffectBatchDelay is the pause between consecutive batches.
	DefaultEffectBatchDelay = 100 * time.Millisecond
)

// EffectJob is deferred, failure-tolerant work.
type EffectJob func(ctx context.Context) error

// EffectFuture resolves once its job has run.
type EffectFuture struct {
	name string
	done chan struct{}
	err  error
}

func newEffectFuture(name string) *EffectFuture {
	return &EffectFuture{name: name, done: make(chan struct{})}
}

func (f *EffectFuture) resolve(err error) {
	f.err = err
	close(f.done)
}

// Name returns the label the job was enqueued with.
func (f *EffectFuture) Name() string { return f.name }

// Done is closed when the job has finished.
func (f *EffectFuture) Done() <-chan struct{} { return f.done }

// Err returns the job's error, or nil if it succeeded or is still pending.
func (f *EffectFuture) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the job finishes or ctx ends.
func (f *EffectFuture) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type queuedEffect struct {
	name   string
	job    EffectJob
	future *EffectFuture
}

// EffectQueue is a FIFO of effect jobs drained by at most one goroutine.
type EffectQueue struct {
	batchSize int
	delay     time.Duration
	log       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	pending  []queuedEffect
	draining bool
	closed   bool
	idle     chan struct{}
}

// QueueOption configures NewEffectQueue.
type QueueOption func(*EffectQueue)

// WithBatchSize sets how many jobs run concurrently per batch.
func WithBatchSize(n int) QueueOption {
	return func(q *EffectQueue) {
		if n > 0 {
			q.batchSize = n
		}
	}
}

// WithBatchDelay sets the pause between batches.
func WithBatchDelay(d time.Duration) QueueOption {
	return func(q *EffectQueue) {
		if d >= 0 {
			q.delay = d
		}
	}
}

// WithQueueLogger sets the logger used for job failures.
func WithQueueLogger(log *slog.Logger) QueueOption {
	return func(q *EffectQueue) {
		q.log = log
	}
}

func NewEffectQueue(opts ...QueueOption) *EffectQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &EffectQueue{
		batchSize: DefaultEffectBatchSize,
		delay:     DefaultEffectBatchDelay,
		log:       slog.Default(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue schedules job and returns immediately. The job never runs on the
// caller's goroutine. After Close the returned future fails with
// ErrQueueClosed.
func (q *EffectQueue) Enqueue(name string, job EffectJob) *EffectFuture {
	f := newEffectFuture(name)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		f.resolve(fmt.Errorf("%w: %s", ErrQueueClosed, name))
		return f
	}

	q.pending = append(q.pending, queuedEffect{name: name, job: job, future: f})
	if !q.draining {
		q.draining = true
		q.idle = make(chan struct{})
		go q.drain(q.idle)
	}
	return f
}

// Pending returns the number of jobs not yet started.
func (q *EffectQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *EffectQueue) drain(idle chan struct{}) {
	defer close(idle)

	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		n := min(q.batchSize, len(q.pending))
		batch := make([]queuedEffect, n)
		copy(batch, q.pending)
		q.pending = append(q.pending[:0], q.pending[n:]...)
		q.mu.Unlock()

		q.runBatch(batch)

		if q.delay > 0 {
			timer := time.NewTimer(q.delay)
			select {
			case <-timer.C:
			case <-q.ctx.Done():
				timer.Stop()
			}
		}
	}
}

// runBatch runs every job of batch concurrently and waits for all of them.
// A failing job never cancels its siblings.
func (q *EffectQueue) runBatch(batch []queuedEffect) {
	var g errgroup.Group
	g.SetLimit(q.batchSize)
	for _, item := range batch {
		g.Go(func() error {
			item.future.resolve(q.run(item))
			return nil
		})
	}
	_ = g.Wait()
}

func (q *EffectQueue) run(item queuedEffect) (err error) {
	effectsInFlight.Inc()
	defer func() {
		effectsInFlight.Dec()
		if err != nil {
			recordEffect("failed")
			q.log.Warn("secondary effect failed", "effect", item.name, "error", err)
			return
		}
		recordEffect("succeeded")
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("effect %s panicked: %v", item.name, r)
		}
	}()

	return item.job(q.ctx)
}

// Wait blocks until the queue is empty and no batch is running.
func (q *EffectQueue) Wait(ctx context.Context) error {
	for {
		q.mu.Lock()
		if !q.draining {
			q.mu.Unlock()
			return nil
		}
		idle := q.idle
		q.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops accepting jobs and waits for queued ones to finish. If ctx
// ends first, running jobs see their context cancelled.
func (q *EffectQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	err := q.Wait(ctx)
	q.cancel()
	return err
}
