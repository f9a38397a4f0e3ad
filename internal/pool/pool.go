// Package pool is the execution facility the error generator fans work out
// to: a fixed set of workers executing submitted tasks and reporting
// completions in whatever order they finish. It owns no retry or admission
// policy; callers decide what a failed outcome means.
package pool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/YaoYu9404/swot-simulator/internal/logging"
)

// Task is one unit of computation.
type Task func(ctx context.Context) (any, error)

// Outcome reports one completed submission.
type Outcome struct {
	ID      string
	Name    string
	Value   any
	Err     error
	Elapsed time.Duration
}

// Observer receives task lifecycle notifications, typically backed by the
// observability collector.
type Observer interface {
	TaskQueued(delta int)
	TaskStarted(name string)
	TaskFinished(name, outcome string, elapsed time.Duration)
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger attaches a logger for task failures.
func WithLogger(l logging.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.log = l
		}
	}
}

// WithObserver attaches a lifecycle observer.
func WithObserver(o Observer) Option {
	return func(p *Pool) { p.obs = o }
}

// WithTaskTimeout bounds the execution time of every submitted task. Zero
// means no bound.
func WithTaskTimeout(d time.Duration) Option {
	return func(p *Pool) { p.timeout = d }
}

// Pool executes submitted tasks on a fixed number of workers.
type Pool struct {
	jobs    chan job
	wg      sync.WaitGroup
	log     logging.Logger
	obs     Observer
	timeout time.Duration

	closeOnce sync.Once
}

type job struct {
	batch *Batch
	id    string
	name  string
	fn    Task
}

// New starts a pool with the given worker count; non-positive counts default
// to the number of CPUs.
func New(workers int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{
		jobs: make(chan job, workers*2),
		log:  logging.Noop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Close stops accepting submissions and waits for running tasks to finish.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		p.run(j)
	}
}

func (p *Pool) run(j job) {
	if p.obs != nil {
		p.obs.TaskQueued(-1)
	}

	b := j.batch
	if err := b.ctx.Err(); err != nil {
		b.deliver(Outcome{ID: j.id, Name: j.name, Err: err})
		return
	}

	ctx := b.ctx
	cancel := func() {}
	if p.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
	}
	defer cancel()

	if p.obs != nil {
		p.obs.TaskStarted(j.name)
	}
	start := time.Now()
	value, err := runTask(ctx, j.fn)
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		p.log.Debug(b.ctx, "task failed",
			logging.String("task", j.name),
			logging.String("id", j.id),
			logging.Err(err))
	}
	if p.obs != nil {
		p.obs.TaskFinished(j.name, outcome, elapsed)
	}

	b.deliver(Outcome{ID: j.id, Name: j.name, Value: value, Err: err, Elapsed: elapsed})
}

// runTask converts a panicking task into a failed outcome; one bad
// computation must not take down the pool.
func runTask(ctx context.Context, fn Task) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// Batch is one fan-out of related submissions. Completions arrive on a single
// stream in finish order; Cancel aborts every submission that has not started
// and signals cancellation to those running.
type Batch struct {
	pool   *Pool
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Outcome
	pending int
	sealed  bool

	outcomes chan Outcome
}

// NewBatch opens a batch bound to ctx. Cancelling ctx cancels the batch.
func (p *Pool) NewBatch(ctx context.Context) *Batch {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	b := &Batch{
		pool:     p,
		ctx:      ctx,
		cancel:   cancel,
		outcomes: make(chan Outcome),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Submit enqueues one task and returns its submission ID. Submit must not be
// called after Completed.
func (b *Batch) Submit(name string, fn Task) string {
	b.mu.Lock()
	if b.sealed {
		b.mu.Unlock()
		panic("pool: Submit after Completed")
	}
	b.pending++
	b.mu.Unlock()

	id := uuid.NewString()
	if b.pool.obs != nil {
		b.pool.obs.TaskQueued(1)
	}

	j := job{batch: b, id: id, name: name, fn: fn}
	select {
	case b.pool.jobs <- j:
	case <-b.ctx.Done():
		// The queue is saturated and the batch is already cancelled;
		// report the cancellation without occupying a worker.
		if b.pool.obs != nil {
			b.pool.obs.TaskQueued(-1)
		}
		b.deliver(Outcome{ID: id, Name: name, Err: b.ctx.Err()})
	}
	return id
}

// Completed seals the batch and returns the completion stream. The channel
// closes once every submission has reported, so callers can drain with range.
// The caller must drain the stream to completion.
func (b *Batch) Completed() <-chan Outcome {
	b.mu.Lock()
	if !b.sealed {
		b.sealed = true
		go b.stream()
	}
	b.mu.Unlock()
	return b.outcomes
}

// Cancel aborts the batch. Outstanding submissions complete with the
// cancellation error; the stream still reports every submission exactly once.
func (b *Batch) Cancel() { b.cancel() }

// deliver records one outcome without blocking: the caller may hold a worker,
// and a worker parked on an unread stream would wedge the pool once the job
// queue fills behind it. The stream goroutine forwards queued outcomes.
func (b *Batch) deliver(o Outcome) {
	b.mu.Lock()
	b.queue = append(b.queue, o)
	b.pending--
	b.mu.Unlock()
	b.cond.Signal()
}

// stream forwards queued outcomes to the completion channel and closes it
// once every submission has reported.
func (b *Batch) stream() {
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && b.pending > 0 {
			b.cond.Wait()
		}
		if len(b.queue) == 0 {
			b.mu.Unlock()
			close(b.outcomes)
			b.cancel()
			return
		}
		o := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()
		b.outcomes <- o
	}
}
