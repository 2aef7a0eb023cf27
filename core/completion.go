package core

import (
	"sync"
	"time"
)

// Completion is the finished result of a dispatched request. Workers and
// timers build one and push it; only the reactor reads it.
type Completion struct {
	FD     int
	ConnID uint64
	Route  string

	// Response is the fully encoded response
	Response []byte
	// Close asks the reactor to close the connection after writing
	Close bool

	DoneAt time.Time
}

// Waker interrupts the reactor's readiness wait
type Waker interface {
	Wake() error
}

// CompletionQueue is a multi-producer, single-consumer hand-off into the
// reactor. Push may be called from any goroutine; Drain only from the reactor.
type CompletionQueue struct {
	mu    sync.Mutex
	items []Completion
	waker Waker
}

// NewCompletionQueue creates a queue that wakes w after every push
func NewCompletionQueue(w Waker) *CompletionQueue {
	return &CompletionQueue{
		items: make([]Completion, 0, 64),
		waker: w,
	}
}

// Push enqueues a completion and wakes the reactor
func (q *CompletionQueue) Push(c Completion) {
	q.mu.Lock()
	q.items = append(q.items, c)
	q.mu.Unlock()

	if q.waker != nil {
		q.waker.Wake()
	}
}

// Drain returns every queued completion in push order. spare, usually the
// slice returned by the previous Drain, becomes the queue's next buffer, so
// the caller must be done with it.
func (q *CompletionQueue) Drain(spare []Completion) []Completion {
	clear(spare)

	q.mu.Lock()
	items := q.items
	q.items = spare[:0]
	q.mu.Unlock()

	return items
}

// Len returns the number of queued completions
func (q *CompletionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
