// Package timer runs delayed callbacks from a single goroutine.
//
// Pending delays live in a min-heap ordered by deadline; one time.Timer is
// re-armed for the earliest entry, so any number of outstanding delays costs
// one goroutine and one runtime timer.
package timer

import (
	"container/heap"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var ErrClosed = errors.New("scheduler closed")

type entry struct {
	at  time.Time
	seq uint64
	fn  func()
}

type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = entry{}
	*h = old[:n-1]
	return e
}

// Scheduler executes callbacks after a delay. Callbacks run one at a time on
// the scheduler goroutine and should return quickly.
type Scheduler struct {
	mu      sync.Mutex
	entries entryHeap
	seq     uint64
	closed  bool

	wake chan struct{}
	done chan struct{}

	fired atomic.Uint64
}

// NewScheduler creates a scheduler and starts its goroutine
func NewScheduler() *Scheduler {
	s := &Scheduler{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

// Schedule arranges for fn to run once d has elapsed. Entries with equal
// deadlines run in the order they were scheduled.
func (s *Scheduler) Schedule(d time.Duration, fn func()) error {
	if d < 0 {
		d = 0
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.seq++
	heap.Push(&s.entries, entry{at: time.Now().Add(d), seq: s.seq, fn: fn})
	earliest := s.entries[0].seq == s.seq
	s.mu.Unlock()

	// Only a new head changes when the goroutine must wake up
	if earliest {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// Pending returns the number of callbacks not yet run
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Fired returns the number of callbacks run so far
func (s *Scheduler) Fired() uint64 {
	return s.fired.Load()
}

// Close stops the scheduler. Callbacks still pending are dropped.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.entries = nil
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)

	t := time.NewTimer(time.Hour)
	defer t.Stop()

	var due []func()
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}

		now := time.Now()
		due = due[:0]
		for len(s.entries) > 0 && !s.entries[0].at.After(now) {
			due = append(due, heap.Pop(&s.entries).(entry).fn)
		}

		wait := time.Hour
		if len(s.entries) > 0 {
			wait = s.entries[0].at.Sub(now)
		}
		s.mu.Unlock()

		for i, fn := range due {
			fn()
			due[i] = nil
			s.fired.Add(1)
		}
		if len(due) > 0 {
			// Callbacks took time; recompute before sleeping
			continue
		}

		t.Reset(wait)
		select {
		case <-t.C:
		case <-s.wake:
		}
	}
}
