// Package parallel runs per-node work of one rank on a bounded set of
// goroutines.
package parallel

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
)

var (
	// ErrTooManyWorkers is returned when the worker count exceeds the maximum allowed.
	ErrTooManyWorkers = errors.New("worker count exceeds maximum")
	// ErrTaskPanic wraps a panic recovered from a submitted task.
	ErrTaskPanic = errors.New("task panicked")
)

// MaxWorkers is the maximum number of workers allowed in a pool.
const MaxWorkers = math.MaxInt / 2

// WorkerPool manages a pool of worker goroutines
type WorkerPool struct {
	workers   int
	taskQueue chan func()
	wg        sync.WaitGroup
	once      sync.Once
	mu        sync.RWMutex // Protects taskQueue from concurrent close during send
	closed    bool         // Protected by mu

	errMu sync.Mutex
	err   error
}

// NewWorkerPool creates a new worker pool with specified number of workers.
// Zero or negative counts use one worker per CPU.
func NewWorkerPool(workers int) (*WorkerPool, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	// Prevent overflow in buffer size calculation
	if workers > MaxWorkers {
		return nil, fmt.Errorf("%w: %d exceeds %d", ErrTooManyWorkers, workers, MaxWorkers)
	}

	pool := &WorkerPool{
		workers:   workers,
		taskQueue: make(chan func(), workers*2),
	}

	for i := 0; i < pool.workers; i++ {
		pool.wg.Add(1)
		go pool.worker()
	}
	return pool, nil
}

// Workers returns the number of worker goroutines
func (wp *WorkerPool) Workers() int { return wp.workers }

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for task := range wp.taskQueue {
		wp.run(task)
	}
}

func (wp *WorkerPool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			wp.setErr(fmt.Errorf("%w: %v", ErrTaskPanic, r))
		}
	}()
	task()
}

func (wp *WorkerPool) setErr(err error) {
	wp.errMu.Lock()
	defer wp.errMu.Unlock()
	if wp.err == nil {
		wp.err = err
	}
}

// Submit adds a task to the worker pool.
// Returns false if the pool is closed.
func (wp *WorkerPool) Submit(task func()) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.closed {
		return false
	}
	wp.taskQueue <- task
	return true
}

// Close stops accepting tasks and waits for the queued ones to finish
func (wp *WorkerPool) Close() {
	wp.once.Do(func() {
		wp.mu.Lock()
		wp.closed = true
		close(wp.taskQueue)
		wp.mu.Unlock()
	})
	wp.wg.Wait()
}

// Wait closes the pool and returns the first recovered task panic, if any
func (wp *WorkerPool) Wait() error {
	wp.Close()
	wp.errMu.Lock()
	defer wp.errMu.Unlock()
	return wp.err
}

// ForEachChunk splits [0, n) into contiguous chunks of at most chunk
// indices and calls fn(lo, hi) for each on a pool of the given size. It
// returns the first error returned by fn or recovered from a panic.
func ForEachChunk(workers, n, chunk int, fn func(lo, hi int) error) error {
	if n <= 0 {
		return nil
	}
	if chunk <= 0 {
		chunk = 1
	}

	pool, err := NewWorkerPool(workers)
	if err != nil {
		return err
	}

	var (
		mu       sync.Mutex
		firstErr error
	)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		pool.Submit(func() {
			if err := fn(lo, hi); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		})
	}

	if err := pool.Wait(); err != nil {
		return err
	}
	return firstErr
}
