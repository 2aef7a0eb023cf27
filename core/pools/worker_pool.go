package pools

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the number of tasks that may wait for a worker
const DefaultQueueSize = 8192

var (
	ErrQueueFull  = errors.New("worker queue saturated")
	ErrPoolClosed = errors.New("worker pool closed")
)

// Task represents a unit of work
type Task func()

// WorkerPool is a fixed set of workers fed by one bounded queue.
// Each worker is pinned to its own OS thread, so at most numWorkers tasks
// run at once no matter how many goroutines submit.
type WorkerPool struct {
	numWorkers int
	tasks      chan Task

	mu       sync.RWMutex
	closed   bool
	dropping atomic.Bool
	wg       sync.WaitGroup

	// Statistics
	stats struct {
		tasksSubmitted atomic.Uint64
		tasksCompleted atomic.Uint64
		tasksRejected  atomic.Uint64
		tasksDropped   atomic.Uint64
	}
}

// NewWorkerPool creates and starts a pool. Non-positive arguments select
// runtime.NumCPU() workers and DefaultQueueSize.
func NewWorkerPool(numWorkers, queueSize int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	pool := &WorkerPool{
		numWorkers: numWorkers,
		tasks:      make(chan Task, queueSize),
	}

	pool.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go pool.worker()
	}

	return pool
}

// Submit queues a task without blocking. It fails with ErrQueueFull when every
// queue slot is taken and with ErrPoolClosed after Close.
func (p *WorkerPool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	// Counted before the send so a fast worker never completes an uncounted task
	p.stats.tasksSubmitted.Add(1)
	select {
	case p.tasks <- task:
		return nil
	default:
		p.stats.tasksSubmitted.Add(^uint64(0))
		p.stats.tasksRejected.Add(1)
		return ErrQueueFull
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for task := range p.tasks {
		if p.dropping.Load() {
			p.stats.tasksDropped.Add(1)
			continue
		}
		task()
		p.stats.tasksCompleted.Add(1)
	}
}

// Close stops accepting tasks and waits for queued ones to finish
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}

// Abort stops accepting tasks and discards the queued ones. It waits only for
// tasks a worker had already started.
func (p *WorkerPool) Abort() {
	p.dropping.Store(true)
	p.Close()
}

// Stats returns pool statistics
func (p *WorkerPool) Stats() WorkerPoolStats {
	completed := p.stats.tasksCompleted.Load()
	dropped := p.stats.tasksDropped.Load()
	submitted := p.stats.tasksSubmitted.Load()
	if submitted < completed+dropped {
		submitted = completed + dropped
	}
	return WorkerPoolStats{
		NumWorkers:     p.numWorkers,
		QueueSize:      cap(p.tasks),
		TasksSubmitted: submitted,
		TasksCompleted: completed,
		TasksPending:   submitted - completed - dropped,
		TasksRejected:  p.stats.tasksRejected.Load(),
		TasksDropped:   dropped,
	}
}

// WorkerPoolStats contains pool statistics
type WorkerPoolStats struct {
	NumWorkers     int
	QueueSize      int
	TasksSubmitted uint64
	TasksCompleted uint64
	TasksPending   uint64
	TasksRejected  uint64
	// TasksDropped counts queued tasks discarded by Abort
	TasksDropped uint64
}
