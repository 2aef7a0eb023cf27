package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// Monitor records per-route latency and connection lifecycle counters.
// Recording is lock-free after the first sample for a name; snapshots may be
// taken from any goroutine.
type Monitor struct {
	routes sync.Map // route name -> *RouteMetrics
	closes sync.Map // reason -> *atomic.Uint64

	accepted atomic.Uint64
	open     atomic.Int64
}

// RouteMetrics stores per-route metrics
type RouteMetrics struct {
	Name           string
	Count          atomic.Uint64
	TotalDuration  atomic.Uint64
	MinDuration    atomic.Uint64
	MaxDuration    atomic.Uint64
	latencyBuckets [10]atomic.Uint64
}

// RouteStats is a point-in-time copy of RouteMetrics
type RouteStats struct {
	Name    string
	Count   uint64
	Min     time.Duration
	Max     time.Duration
	Avg     time.Duration
	Buckets [10]uint64
}

// BucketBounds are the upper bounds of the latency buckets; the last is open
var BucketBounds = [9]time.Duration{
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	5 * time.Second,
	10 * time.Second,
}

// NewMonitor creates a monitor
func NewMonitor() *Monitor {
	return &Monitor{}
}

// RecordRequest records the time a request took from dispatch to response ready
func (m *Monitor) RecordRequest(route string, duration time.Duration) {
	val, ok := m.routes.Load(route)
	if !ok {
		val, _ = m.routes.LoadOrStore(route, &RouteMetrics{Name: route})
	}
	metrics := val.(*RouteMetrics)

	d := uint64(duration.Nanoseconds())
	metrics.Count.Add(1)
	metrics.TotalDuration.Add(d)
	updateMinMax(metrics, d)
	metrics.latencyBuckets[bucket(duration)].Add(1)
}

func updateMinMax(m *RouteMetrics, d uint64) {
	for {
		min := m.MinDuration.Load()
		if (min != 0 && d >= min) || m.MinDuration.CompareAndSwap(min, d) {
			break
		}
	}
	for {
		max := m.MaxDuration.Load()
		if d <= max || m.MaxDuration.CompareAndSwap(max, d) {
			break
		}
	}
}

func bucket(d time.Duration) int {
	for i, bound := range BucketBounds {
		if d < bound {
			return i
		}
	}
	return len(BucketBounds)
}

// Route returns a snapshot of one route's metrics
func (m *Monitor) Route(name string) (RouteStats, bool) {
	val, ok := m.routes.Load(name)
	if !ok {
		return RouteStats{}, false
	}
	return snapshot(val.(*RouteMetrics)), true
}

// Routes returns snapshots of every route seen so far
func (m *Monitor) Routes() []RouteStats {
	var out []RouteStats
	m.routes.Range(func(_, value any) bool {
		out = append(out, snapshot(value.(*RouteMetrics)))
		return true
	})
	return out
}

func snapshot(rm *RouteMetrics) RouteStats {
	s := RouteStats{
		Name:  rm.Name,
		Count: rm.Count.Load(),
		Min:   time.Duration(rm.MinDuration.Load()),
		Max:   time.Duration(rm.MaxDuration.Load()),
	}
	if s.Count > 0 {
		s.Avg = time.Duration(rm.TotalDuration.Load() / s.Count)
	}
	for i := range rm.latencyBuckets {
		s.Buckets[i] = rm.latencyBuckets[i].Load()
	}
	return s
}

// RecordAccept counts a newly accepted connection
func (m *Monitor) RecordAccept() {
	m.accepted.Add(1)
	m.open.Add(1)
}

// RecordClose counts a closed connection under the given reason
func (m *Monitor) RecordClose(reason string) {
	m.open.Add(-1)
	val, ok := m.closes.Load(reason)
	if !ok {
		val, _ = m.closes.LoadOrStore(reason, new(atomic.Uint64))
	}
	val.(*atomic.Uint64).Add(1)
}

// Accepted returns the number of connections accepted
func (m *Monitor) Accepted() uint64 {
	return m.accepted.Load()
}

// Open returns the number of connections currently open
func (m *Monitor) Open() int64 {
	return m.open.Load()
}

// Closes returns how many connections were closed for reason
func (m *Monitor) Closes(reason string) uint64 {
	val, ok := m.closes.Load(reason)
	if !ok {
		return 0
	}
	return val.(*atomic.Uint64).Load()
}

// CloseReasons returns all close counters by reason
func (m *Monitor) CloseReasons() map[string]uint64 {
	out := make(map[string]uint64)
	m.closes.Range(func(key, value any) bool {
		out[key.(string)] = value.(*atomic.Uint64).Load()
		return true
	})
	return out
}
