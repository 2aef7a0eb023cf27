package pools

import (
	"sync"
	"sync/atomic"
)

// ConnectionPool recycles per-connection state objects
type ConnectionPool struct {
	pool sync.Pool
	gets atomic.Uint64
	puts atomic.Uint64
	news atomic.Uint64
}

// ConnectionPoolable defines the interface for poolable connection objects
type ConnectionPoolable interface {
	Reset()
	SetFD(fd int)
}

// NewConnectionPool creates a new connection pool
func NewConnectionPool(newFunc func() ConnectionPoolable) *ConnectionPool {
	cp := &ConnectionPool{}
	cp.pool.New = func() any {
		cp.news.Add(1)
		return newFunc()
	}
	return cp
}

// Get retrieves a connection bound to fd
func (cp *ConnectionPool) Get(fd int) ConnectionPoolable {
	cp.gets.Add(1)
	c := cp.pool.Get().(ConnectionPoolable)
	c.SetFD(fd)
	return c
}

// Put resets a connection and returns it to the pool
func (cp *ConnectionPool) Put(c ConnectionPoolable) {
	c.Reset()
	cp.puts.Add(1)
	cp.pool.Put(c)
}

// Stats returns pool statistics; hitRate is the share of gets served without allocating
func (cp *ConnectionPool) Stats() (gets, puts uint64, hitRate float64) {
	g := cp.gets.Load()
	p := cp.puts.Load()

	if g > 0 {
		n := cp.news.Load()
		if n > g {
			n = g
		}
		hitRate = float64(g-n) / float64(g)
	}

	return g, p, hitRate
}
