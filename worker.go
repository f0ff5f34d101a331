package ffibridge

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// The worker runs fire-and-forget jobs off the caller's goroutine. It is
// started on first use and lives for the rest of the process. At most
// capacity jobs run at once; the rest wait in submission order.
var worker struct {
	mu       sync.Mutex
	once     sync.Once
	started  bool
	capacity int64

	jobs chan func()
	sem  *semaphore.Weighted
}

const defaultWorkerCapacity = 1

// SetWorkerCapacity sets how many spawned jobs may run concurrently. It
// reports false, leaving the capacity unchanged, once the worker has
// started.
func SetWorkerCapacity(n int64) bool {
	worker.mu.Lock()
	defer worker.mu.Unlock()
	if worker.started || n <= 0 {
		return false
	}
	worker.capacity = n
	return true
}

func startWorker() {
	worker.mu.Lock()
	worker.started = true
	capacity := worker.capacity
	worker.mu.Unlock()
	if capacity <= 0 {
		capacity = defaultWorkerCapacity
	}

	worker.sem = semaphore.NewWeighted(capacity)
	worker.jobs = make(chan func(), 64)
	Logger().Debug("worker started", zap.Int64("capacity", capacity))

	go func() {
		ctx := context.Background()
		for job := range worker.jobs {
			if err := worker.sem.Acquire(ctx, 1); err != nil {
				Logger().Error("worker acquire failed", zap.Error(err))
				continue
			}
			go func() {
				defer worker.sem.Release(1)
				runJob(job)
			}()
		}
	}()
}

// runJob keeps a panicking job from taking the worker down.
func runJob(job func()) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("spawned job panicked", goroutineFields(zap.Any("panic", r))...)
		}
	}()
	job()
}

// spawn queues job on the worker. It blocks only while the queue is full.
func spawn(job func()) {
	worker.once.Do(startWorker)
	worker.jobs <- job
}
