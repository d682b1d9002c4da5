// Package writequeue serializes every mutation of the event store through
// a single worker so that concurrent bursts of tab events never race on a
// read-modify-write of the log.
package writequeue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/runnerr0/tablog/internal/event"
)

// DefaultCapacity bounds the number of pending tasks.
const DefaultCapacity = 1024

var (
	// ErrQueueFull is returned when the queue is at capacity and holds no
	// task that may be dropped.
	ErrQueueFull = errors.New("write queue full")

	// ErrQueueStopped is returned for work submitted after Close.
	ErrQueueStopped = errors.New("write queue stopped")

	// ErrDropped resolves a pending append evicted under backpressure.
	ErrDropped = errors.New("write dropped under backpressure")
)

// Appender is the store operation behind EnqueueAppend.
type Appender interface {
	Append(ctx context.Context, e event.TabEvent, maxEntries int) error
}

// Pending is the handle for a queued task.
type Pending struct {
	done chan struct{}
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) resolve(err error) {
	p.err = err
	close(p.done)
}

// Done is closed once the task has run, been dropped or been abandoned.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the task finishes and returns its error.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type task struct {
	name      string
	droppable bool
	run       func(ctx context.Context) error
	pending   *Pending
}

// Stats is a point-in-time view of queue activity.
type Stats struct {
	Depth     int   `json:"depth"`
	Capacity  int   `json:"capacity"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// Queue runs tasks one at a time in submission order.
type Queue struct {
	store    Appender
	logger   zerolog.Logger
	capacity int

	mu      sync.Mutex
	pending []*task
	active  bool
	closed  bool
	started bool

	wake chan struct{}
	done chan struct{}

	completed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// New creates a Queue. Call Start to begin processing.
func New(store Appender, capacity int, logger zerolog.Logger) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		store:    store,
		logger:   logger,
		capacity: capacity,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start launches the worker. The worker exits when ctx is canceled or
// after Close has drained the queue.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	go q.run(ctx)
}

// EnqueueAppend schedules an append of e. Appends of non-closed events may
// be dropped under backpressure; closed events never are.
func (q *Queue) EnqueueAppend(e event.TabEvent, maxEntries int) (*Pending, error) {
	return q.enqueue(&task{
		name:      "append " + string(e.Kind),
		droppable: e.Kind != event.KindClosed,
		run: func(ctx context.Context) error {
			return q.store.Append(ctx, e, maxEntries)
		},
	})
}

// EnqueueMaintenance schedules fn behind all previously queued work.
func (q *Queue) EnqueueMaintenance(name string, fn func(ctx context.Context) error) (*Pending, error) {
	return q.enqueue(&task{name: name, run: fn})
}

// Flush waits until everything queued before the call has run.
func (q *Queue) Flush(ctx context.Context) error {
	p, err := q.EnqueueMaintenance("flush", func(context.Context) error { return nil })
	if err != nil {
		return err
	}
	return p.Wait(ctx)
}

func (q *Queue) enqueue(t *task) (*Pending, error) {
	t.pending = newPending()

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueStopped
	}
	if len(q.pending) >= q.capacity && !q.dropOldestLocked() {
		return nil, ErrQueueFull
	}
	q.pending = append(q.pending, t)

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return t.pending, nil
}

// dropOldestLocked evicts the oldest droppable pending task.
func (q *Queue) dropOldestLocked() bool {
	for i, t := range q.pending {
		if !t.droppable {
			continue
		}
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		q.dropped.Add(1)
		q.logger.Warn().Str("task", t.name).Int("depth", len(q.pending)).Msg("write queue full, dropping oldest pending append")
		t.pending.resolve(ErrDropped)
		return true
	}
	return false
}

func (q *Queue) next() (*task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		q.active = false
		return nil, q.closed
	}
	t := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.active = true
	return t, q.closed
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)

	for {
		if err := ctx.Err(); err != nil {
			q.abandon(err)
			return
		}

		t, closed := q.next()
		if t == nil {
			if closed {
				return
			}
			select {
			case <-q.wake:
			case <-ctx.Done():
			}
			continue
		}
		q.execute(ctx, t)
	}
}

func (q *Queue) execute(ctx context.Context, t *task) {
	err := q.safeRun(ctx, t)
	if err != nil {
		q.failed.Add(1)
		q.logger.Error().Err(err).Str("task", t.name).Msg("write queue task failed")
	} else {
		q.completed.Add(1)
	}

	q.mu.Lock()
	q.active = false
	q.mu.Unlock()

	t.pending.resolve(err)
}

func (q *Queue) safeRun(ctx context.Context, t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().Interface("panic", r).Str("stack_trace", string(debug.Stack())).Str("task", t.name).Msg("PANIC in write queue task")
			err = fmt.Errorf("task %s panicked: %v", t.name, r)
		}
	}()
	return t.run(ctx)
}

// abandon resolves every pending task with err.
func (q *Queue) abandon(err error) {
	q.mu.Lock()
	rest := q.pending
	q.pending = nil
	q.active = false
	q.mu.Unlock()

	for _, t := range rest {
		t.pending.resolve(err)
	}
}

// Close stops intake, lets the worker drain what is already queued and
// waits for it to exit. Without a started worker, pending tasks resolve
// with ErrQueueStopped.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	started := q.started
	q.mu.Unlock()

	if !started {
		q.abandon(ErrQueueStopped)
		return nil
	}

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
	return nil
}

// Depth returns queued plus in-flight tasks.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	if q.active {
		n++
	}
	return n
}

// Stats returns the current counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Depth:     q.Depth(),
		Capacity:  q.capacity,
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
	}
}
