package core

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingWaker struct {
	wakes atomic.Int64
}

func (w *countingWaker) Wake() error {
	w.wakes.Add(1)
	return nil
}

func TestCompletionQueue_PushDrainOrder(t *testing.T) {
	w := &countingWaker{}
	q := NewCompletionQueue(w)

	for i := 0; i < 5; i++ {
		q.Push(Completion{FD: i, ConnID: uint64(i + 100)})
	}
	assert.Equal(t, 5, q.Len())
	assert.EqualValues(t, 5, w.wakes.Load())

	items := q.Drain(nil)
	require.Len(t, items, 5)
	for i, c := range items {
		assert.Equal(t, i, c.FD)
		assert.EqualValues(t, i+100, c.ConnID)
	}
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Drain(nil))
}

func TestCompletionQueue_SpareReuse(t *testing.T) {
	q := NewCompletionQueue(nil)

	q.Push(Completion{FD: 1, Response: []byte("a")})
	first := q.Drain(nil)
	require.Len(t, first, 1)

	q.Push(Completion{FD: 2})
	second := q.Drain(first)
	require.Len(t, second, 1)
	assert.Equal(t, 2, second[0].FD)

	// The spare was cleared before becoming the queue's buffer
	assert.Nil(t, first[0].Response)
}

func TestCompletionQueue_ConcurrentProducers(t *testing.T) {
	w := &countingWaker{}
	q := NewCompletionQueue(w)

	const producers, perProducer = 8, 500
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(Completion{FD: p, ConnID: uint64(i)})
			}
		}(p)
	}

	seen := make(map[int]uint64)
	var spare []Completion
	total := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	drain := func() {
		spare = q.Drain(spare)
		for _, c := range spare {
			// Each producer's completions arrive in push order
			if next, ok := seen[c.FD]; ok {
				assert.Equal(t, next, c.ConnID)
			} else {
				assert.Zero(t, c.ConnID)
			}
			seen[c.FD] = c.ConnID + 1
			total++
		}
	}

	for {
		select {
		case <-done:
			drain()
			assert.Equal(t, producers*perProducer, total)
			assert.EqualValues(t, producers*perProducer, w.wakes.Load())
			return
		default:
			drain()
		}
	}
}
