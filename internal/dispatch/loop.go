// Package dispatch provides the execution context on which presentation state changes.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	// ErrStopped is returned when the loop no longer accepts or runs tasks.
	ErrStopped = errors.New("dispatch loop stopped")
	// ErrRunning is returned when Run is called while the loop is already running.
	ErrRunning = errors.New("dispatch loop already running")
)

// Loop runs posted tasks one at a time, in post order, on the goroutine calling Run.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	log *slog.Logger
}

type options struct {
	logger *slog.Logger
}

// Options represents an optional function to override Loop default values.
type Options func(*options)

// WithLogger sets the logger of the loop.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}

// New returns a loop ready to accept tasks. Tasks only run once Run is called.
func New(args ...Options) *Loop {
	opts := options{
		logger: slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		log:  opts.logger,
	}
}

// Post enqueues fn without blocking. It returns false if the loop is stopped, in which case fn never runs.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Run executes posted tasks until Stop is called or ctx is done.
// Only one Run may be active at a time.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)

	l.log.Debug("Dispatch loop running")
	for {
		select {
		case <-ctx.Done():
			l.log.Debug("Dispatch loop context done")
			return ctx.Err()
		case <-l.done:
			l.log.Debug("Dispatch loop stopped")
			return nil
		case <-l.wake:
		}

		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			fn()
		}
	}
}

// Do posts fn and waits for it to have run.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	if !l.Post(func() {
		defer close(ran)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case <-ran:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Stop stops the loop. Pending tasks are dropped and later posts are refused.
// It is safe to call Stop several times, from any goroutine, including from a task.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.stopped = true
		dropped := len(l.queue)
		l.queue = nil
		l.mu.Unlock()

		close(l.done)
		l.log.Debug("Dispatch loop stopping", "dropped_tasks", dropped)
	})
}

// Done is closed once the loop is stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped || len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}
