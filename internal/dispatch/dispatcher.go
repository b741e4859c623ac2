// Package dispatch runs backend calls on a bounded pool of worker goroutines,
// decoupled from the goroutine that asked for them.
//
// Work is split into lanes by resource class. The read lane runs read-mostly
// queries concurrently, each with its own short-lived backend handle. The mutating
// lane has exactly one worker, so writes, hooks and remote transfers are serialized
// without a global lock. Each lane has a bounded queue; a full queue is reported to
// the caller immediately instead of growing.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	gderrors "gitdeck.dev/gitdeck/internal/errors"
	"gitdeck.dev/gitdeck/internal/metrics"
)

// DefaultQueueSize is the per-lane queue bound used when none is configured
const DefaultQueueSize = 64

// MaxDefaultWorkers caps the read lane when sized from the CPU count
const MaxDefaultWorkers = 8

// Class selects the lane a task runs on
type Class int

const (
	// ClassRead tasks may run concurrently with each other
	ClassRead Class = iota
	// ClassMutating tasks never overlap with other mutating tasks
	ClassMutating
)

func (c Class) String() string {
	if c == ClassMutating {
		return "mutating"
	}
	return "read"
}

// Task is one unit of work. Run executes on a worker goroutine and may block.
// Done receives Run's outcome on the same goroutine; it must not block for long.
type Task struct {
	Name  string
	Class Class
	Run   func(ctx context.Context) (any, error)
	Done  func(payload any, err error)
}

// Config sizes the lanes
type Config struct {
	// Workers is the read lane concurrency. Zero means min(NumCPU, MaxDefaultWorkers).
	Workers int
	// QueueSize bounds the read lane queue. Zero means DefaultQueueSize.
	QueueSize int
	// MutatingQueueSize bounds the mutating lane queue. Zero means DefaultQueueSize.
	MutatingQueueSize int
}

// DefaultWorkers returns the read lane size derived from the available cores
func DefaultWorkers() int {
	n := runtime.NumCPU()
	if n > MaxDefaultWorkers {
		n = MaxDefaultWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// LaneStats is a snapshot of one lane
type LaneStats struct {
	Class     Class
	Workers   int
	Queued    int
	Active    int
	MaxActive int
	Completed uint64
	Panicked  uint64
}

type lane struct {
	class   Class
	workers int
	queue   chan Task

	active    atomic.Int64
	maxActive atomic.Int64
	completed atomic.Uint64
	panicked  atomic.Uint64
}

// Dispatcher owns the worker goroutines of every lane
type Dispatcher struct {
	lanes   map[Class]*lane
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	running bool
	stopped atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// New creates a dispatcher. Workers are not started until Start is called; tasks
// submitted before that wait in their lane queue.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.MutatingQueueSize <= 0 {
		cfg.MutatingQueueSize = DefaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		lanes: map[Class]*lane{
			ClassRead: {
				class:   ClassRead,
				workers: cfg.Workers,
				queue:   make(chan Task, cfg.QueueSize),
			},
			ClassMutating: {
				class:   ClassMutating,
				workers: 1,
				queue:   make(chan Task, cfg.MutatingQueueSize),
			},
		},
		logger:     logger,
		metrics:    m,
		stopCh:     make(chan struct{}),
		baseCtx:    ctx,
		cancelBase: cancel,
	}
}

// Start launches the worker goroutines. It returns immediately.
func (d *Dispatcher) Start(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped.Load() {
		return gderrors.ErrDispatcherStopped
	}
	if d.running {
		return nil
	}
	d.running = true

	for _, l := range d.lanes {
		d.logger.Debug("dispatcher lane starting",
			slog.String("lane", l.class.String()),
			slog.Int("workers", l.workers),
			slog.Int("queue", cap(l.queue)),
		)
		for range l.workers {
			d.wg.Add(1)
			go d.workerLoop(l)
		}
	}
	return nil
}

// Stop signals all workers to stop after their current task and waits for them.
// Tasks still queued are completed with ErrDispatcherStopped. If ctx expires first,
// the context handed to running tasks is cancelled.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped.Load() {
		d.mu.Unlock()
		return nil
	}
	d.stopped.Store(true)
	wasRunning := d.running
	d.running = false
	d.mu.Unlock()

	close(d.stopCh)

	if wasRunning {
		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			d.logger.Warn("dispatcher shutdown timed out, cancelling running jobs")
			d.cancelBase()
			<-done
		}
	}
	d.cancelBase()

	for _, l := range d.lanes {
		d.drain(l)
	}
	return nil
}

// Submit enqueues t on its lane without blocking. It returns ErrQueueFull when the
// lane queue is at capacity and ErrDispatcherStopped after Stop.
func (d *Dispatcher) Submit(t Task) error {
	if t.Run == nil {
		return fmt.Errorf("task %q has no run function", t.Name)
	}
	l, ok := d.lanes[t.Class]
	if !ok {
		return fmt.Errorf("unknown task class %d", t.Class)
	}

	// Holding the read lock keeps Stop from draining between the check and the send.
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped.Load() {
		return gderrors.ErrDispatcherStopped
	}

	select {
	case l.queue <- t:
		return nil
	default:
		d.metrics.ObserveQueueFull(l.class.String())
		return gderrors.ErrQueueFull
	}
}

// Stats returns a snapshot of every lane
func (d *Dispatcher) Stats() map[Class]LaneStats {
	out := make(map[Class]LaneStats, len(d.lanes))
	for class, l := range d.lanes {
		out[class] = LaneStats{
			Class:     class,
			Workers:   l.workers,
			Queued:    len(l.queue),
			Active:    int(l.active.Load()),
			MaxActive: int(l.maxActive.Load()),
			Completed: l.completed.Load(),
			Panicked:  l.panicked.Load(),
		}
	}
	return out
}

func (d *Dispatcher) workerLoop(l *lane) {
	defer d.wg.Done()

	for {
		// Prefer stopping over picking up more work.
		select {
		case <-d.stopCh:
			return
		default:
		}

		select {
		case <-d.stopCh:
			return
		case t := <-l.queue:
			d.execute(l, t)
		}
	}
}

func (d *Dispatcher) execute(l *lane, t Task) {
	active := l.active.Add(1)
	for {
		peak := l.maxActive.Load()
		if active <= peak || l.maxActive.CompareAndSwap(peak, active) {
			break
		}
	}

	payload, err := d.run(l, t)
	l.active.Add(-1)
	l.completed.Add(1)

	d.deliver(t, payload, err)
}

// run executes the task closure, converting a panic into a PanicError so the
// worker goroutine survives.
func (d *Dispatcher) run(l *lane, t Task) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			l.panicked.Add(1)
			d.metrics.ObservePanic(l.class.String())
			d.logger.Error("job panicked",
				slog.String("job", t.Name),
				slog.String("lane", l.class.String()),
				slog.Any("panic", r),
				slog.String("stack", stack),
			)
			payload = nil
			err = gderrors.NewPanicError(t.Name, r, stack)
		}
	}()
	return t.Run(d.baseCtx)
}

func (d *Dispatcher) deliver(t Task, payload any, err error) {
	if t.Done == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("job completion handler panicked",
				slog.String("job", t.Name),
				slog.Any("panic", r),
			)
		}
	}()
	t.Done(payload, err)
}

func (d *Dispatcher) drain(l *lane) {
	for {
		select {
		case t := <-l.queue:
			d.deliver(t, nil, gderrors.ErrDispatcherStopped)
		default:
			return
		}
	}
}
