package observability

import (
	"runtime"
	"time"

	"go.uber.org/zap/zapcore"
)

// RuntimeStats is a snapshot of heap, GC and goroutine counters
type RuntimeStats struct {
	NumGC        uint32
	PauseTotal   time.Duration
	LastPause    time.Duration
	HeapAlloc    uint64
	TotalAlloc   uint64
	Sys          uint64
	NumGoroutine int
}

// ReadRuntime returns the current runtime statistics. It stops the world
// briefly; call it at shutdown or on demand, not per request.
func ReadRuntime() RuntimeStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	rs := RuntimeStats{
		NumGC:        ms.NumGC,
		PauseTotal:   time.Duration(ms.PauseTotalNs),
		HeapAlloc:    ms.HeapAlloc,
		TotalAlloc:   ms.TotalAlloc,
		Sys:          ms.Sys,
		NumGoroutine: runtime.NumGoroutine(),
	}
	if ms.NumGC > 0 {
		rs.LastPause = time.Duration(ms.PauseNs[(ms.NumGC+255)%256])
	}
	return rs
}

// MarshalLogObject implements zapcore.ObjectMarshaler
func (rs RuntimeStats) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint32("num_gc", rs.NumGC)
	enc.AddDuration("gc_pause_total", rs.PauseTotal)
	enc.AddDuration("gc_pause_last", rs.LastPause)
	enc.AddUint64("heap_alloc", rs.HeapAlloc)
	enc.AddUint64("total_alloc", rs.TotalAlloc)
	enc.AddUint64("sys", rs.Sys)
	enc.AddInt("goroutines", rs.NumGoroutine)
	return nil
}
