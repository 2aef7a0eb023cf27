package pools

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_Basic(t *testing.T) {
	pool := NewWorkerPool(4, 0)
	defer pool.Close()

	var counter atomic.Int64
	for i := 0; i < 100; i++ {
		require.NoError(t, pool.Submit(func() {
			counter.Add(1)
		}))
	}

	require.Eventually(t, func() bool {
		return pool.Stats().TasksCompleted == 100
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(100), counter.Load())

	stats := pool.Stats()
	assert.Equal(t, 4, stats.NumWorkers)
	assert.Equal(t, DefaultQueueSize, stats.QueueSize)
	assert.Equal(t, uint64(100), stats.TasksSubmitted)
	assert.Zero(t, stats.TasksPending)
	assert.Zero(t, stats.TasksRejected)
}

func TestWorkerPool_RejectsWhenSaturated(t *testing.T) {
	pool := NewWorkerPool(1, 2)
	defer pool.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.Submit(func() {
		close(started)
		<-release
	}))
	<-started

	// The single worker is busy; two tasks fit in the queue, the third does not.
	require.NoError(t, pool.Submit(func() {}))
	require.NoError(t, pool.Submit(func() {}))
	assert.ErrorIs(t, pool.Submit(func() {}), ErrQueueFull)
	assert.Equal(t, uint64(1), pool.Stats().TasksRejected)

	close(release)
	require.Eventually(t, func() bool {
		return pool.Stats().TasksCompleted == 3
	}, 5*time.Second, 5*time.Millisecond)
	assert.NoError(t, pool.Submit(func() {}))
}

func TestWorkerPool_BoundedConcurrency(t *testing.T) {
	pool := NewWorkerPool(3, 64)
	defer pool.Close()

	var running, peak atomic.Int64
	for i := 0; i < 30; i++ {
		require.NoError(t, pool.Submit(func() {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			running.Add(-1)
		}))
	}

	require.Eventually(t, func() bool {
		return pool.Stats().TasksCompleted == 30
	}, 5*time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, peak.Load(), int64(3))
}

func TestWorkerPool_Close(t *testing.T) {
	pool := NewWorkerPool(2, 16)

	var counter atomic.Int64
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(func() { counter.Add(1) }))
	}

	pool.Close()
	assert.Equal(t, int64(10), counter.Load(), "queued tasks finish before Close returns")
	assert.ErrorIs(t, pool.Submit(func() {}), ErrPoolClosed)

	// second close is a no-op
	pool.Close()
}

func TestWorkerPool_AbortDropsQueued(t *testing.T) {
	pool := NewWorkerPool(1, 16)

	release := make(chan struct{})
	started := make(chan struct{})
	var ran atomic.Int64
	require.NoError(t, pool.Submit(func() {
		close(started)
		<-release
		ran.Add(1)
	}))
	<-started

	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(func() {
			time.Sleep(time.Second)
			ran.Add(1)
		}))
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	begin := time.Now()
	pool.Abort()
	assert.Less(t, time.Since(begin), 500*time.Millisecond)
	assert.Equal(t, int64(1), ran.Load(), "only the running task finishes")

	stats := pool.Stats()
	assert.Equal(t, uint64(6), stats.TasksSubmitted)
	assert.Equal(t, uint64(1), stats.TasksCompleted)
	assert.Equal(t, uint64(5), stats.TasksDropped)
	assert.Zero(t, stats.TasksPending)
	assert.ErrorIs(t, pool.Submit(func() {}), ErrPoolClosed)

	pool.Abort()
}

func TestWorkerPool_Defaults(t *testing.T) {
	pool := NewWorkerPool(0, 0)
	defer pool.Close()

	stats := pool.Stats()
	assert.Positive(t, stats.NumWorkers)
	assert.Equal(t, DefaultQueueSize, stats.QueueSize)
}

func BenchmarkWorkerPool_Submit(b *testing.B) {
	pool := NewWorkerPool(8, 1<<16)
	defer pool.Close()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			for pool.Submit(func() { _ = 1 + 1 }) != nil {
			}
		}
	})
}
