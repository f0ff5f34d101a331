package ffibridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrLoopStopped is returned by Post after the loop is stopped.
var ErrLoopStopped = errors.New("ffibridge: event loop stopped")

// loopJob is a queued job. discard runs instead of run when the loop stops
// before the job is executed.
type loopJob struct {
	run     func(*Env)
	discard func()
}

// EventLoop runs jobs on the goroutine that owns the runtime. Jobs are
// posted from any goroutine and executed in order, each inside its own
// local scope.
type EventLoop struct {
	vm   *VM
	jobs chan loopJob

	stop     chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
}

func newEventLoop(vm *VM, size int) *EventLoop {
	if size <= 0 {
		size = 1
	}
	return &EventLoop{
		vm:   vm,
		jobs: make(chan loopJob, size),
		stop: make(chan struct{}),
	}
}

// Post queues job. It blocks while the queue is full and fails once the
// loop is stopped.
func (l *EventLoop) Post(job func(*Env)) error {
	return l.post(loopJob{run: job})
}

// PostDiscardable is Post with a hook that runs if the loop stops before
// job does. Exactly one of job and discard runs for an accepted job.
func (l *EventLoop) PostDiscardable(job func(*Env), discard func()) error {
	return l.post(loopJob{run: job, discard: discard})
}

func (l *EventLoop) post(j loopJob) error {
	select {
	case <-l.stop:
		return ErrLoopStopped
	default:
	}
	select {
	case l.jobs <- j:
		// A send racing with Stop can land after Stop drained the queue.
		select {
		case <-l.stop:
			l.discardQueued()
		default:
		}
		return nil
	case <-l.stop:
		return ErrLoopStopped
	}
}

// Run makes the calling goroutine the loop's owner and executes posted jobs
// until ctx is done or the loop is stopped. Only one Run may be active.
func (l *EventLoop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return newError(ThreadStateError, "run event loop").detail("loop already running").build()
	}
	defer l.running.Store(false)

	a, err := l.vm.Attach()
	if err != nil {
		return err
	}
	defer a.Close()
	Logger().Debug("event loop running", goroutineFields()...)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop:
			return nil
		case job := <-l.jobs:
			l.run(a.Env, job.run)
		}
	}
}

// RunPending executes the jobs queued so far on env and reports how many
// ran. Hosts that drive their own loop call it between turns.
func (l *EventLoop) RunPending(env *Env) int {
	n := 0
	for {
		select {
		case job := <-l.jobs:
			l.run(env, job.run)
			n++
		default:
			return n
		}
	}
}

func (l *EventLoop) run(env *Env, job func(*Env)) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("event loop job panicked", goroutineFields(zap.Any("panic", r))...)
		}
	}()
	err := env.WithLocalScope(l.vm.opts.localCapacity, func() error {
		job(env)
		return nil
	})
	if err != nil {
		Logger().Error("event loop job failed", goroutineFields(zap.Error(err))...)
	}
}

// Stop ends Run and rejects further posts. Jobs still queued are not run;
// their discard hooks run on the calling goroutine.
func (l *EventLoop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
		n := l.discardQueued()
		Logger().Debug("event loop stopped", zap.Int("discarded", n))
	})
}

func (l *EventLoop) discardQueued() int {
	n := 0
	for {
		select {
		case job := <-l.jobs:
			n++
			if job.discard == nil {
				continue
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						Logger().Error("event loop discard hook panicked", zap.Any("panic", r))
					}
				}()
				job.discard()
			}()
		default:
			return n
		}
	}
}
