package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/searchktools/concbench/core/pools"
)

// Stats is a snapshot of the reactor's executors and connections
type Stats struct {
	Accepted     uint64              `json:"accepted"`
	Open         int64               `json:"open"`
	Closes       map[string]uint64   `json:"closes"`
	Workers      WorkerStats         `json:"workers"`
	PendingDelay int                 `json:"pending_delays"`
	FiredDelay   uint64              `json:"fired_delays"`
	Completions  int                 `json:"queued_completions"`
	Connection   ConnectionPoolStats `json:"connection_pool"`
	// OversizeBuffers counts response buffers allocated past the largest pool tier
	OversizeBuffers uint64 `json:"oversize_buffers"`
}

type WorkerStats struct {
	Workers   int    `json:"workers"`
	QueueSize int    `json:"queue_size"`
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Pending   uint64 `json:"pending"`
	Rejected  uint64 `json:"rejected"`
	Dropped   uint64 `json:"dropped"`
}

type ConnectionPoolStats struct {
	Gets    uint64  `json:"gets"`
	Puts    uint64  `json:"puts"`
	HitRate float64 `json:"hit_rate"`
}

func workerStats(s pools.WorkerPoolStats) WorkerStats {
	return WorkerStats{
		Workers:   s.NumWorkers,
		QueueSize: s.QueueSize,
		Submitted: s.TasksSubmitted,
		Completed: s.TasksCompleted,
		Pending:   s.TasksPending,
		Rejected:  s.TasksRejected,
		Dropped:   s.TasksDropped,
	}
}

// Stats returns a snapshot; safe to call from any goroutine
func (e *Engine) Stats() Stats {
	gets, puts, hitRate := e.connPool.Stats()
	return Stats{
		Accepted:     e.monitor.Accepted(),
		Open:         e.monitor.Open(),
		Closes:       e.monitor.CloseReasons(),
		Workers:      workerStats(e.workers.Stats()),
		PendingDelay: e.timers.Pending(),
		FiredDelay:   e.timers.Fired(),
		Completions:  e.queue.Len(),
		Connection: ConnectionPoolStats{
			Gets:    gets,
			Puts:    puts,
			HitRate: hitRate,
		},
		OversizeBuffers: e.bytePool.Oversize(),
	}
}

// JSON returns the snapshot as indented JSON
func (s Stats) JSON() string {
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}

// Text returns the snapshot as human-readable text
func (s Stats) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, `Reactor Statistics
==================

Connections:
  Accepted: %d
  Open:     %d

Workers (%d, queue %d):
  Submitted: %d
  Completed: %d
  Pending:   %d
  Rejected:  %d
  Dropped:   %d

Delays:
  Pending: %d
  Fired:   %d

Connection Pool:
  Gets:     %d
  Puts:     %d
  Hit Rate: %.2f%%
  Oversize Buffers: %d
`,
		s.Accepted, s.Open,
		s.Workers.Workers, s.Workers.QueueSize,
		s.Workers.Submitted, s.Workers.Completed, s.Workers.Pending, s.Workers.Rejected, s.Workers.Dropped,
		s.PendingDelay, s.FiredDelay,
		s.Connection.Gets, s.Connection.Puts, s.Connection.HitRate*100,
		s.OversizeBuffers,
	)

	if len(s.Closes) > 0 {
		b.WriteString("\nClose Reasons:\n")
		for _, reason := range sortedKeys(s.Closes) {
			fmt.Fprintf(&b, "  %-18s %d\n", reason+":", s.Closes[reason])
		}
	}
	return b.String()
}

// MarshalLogObject implements zapcore.ObjectMarshaler
func (s Stats) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint64("accepted", s.Accepted)
	enc.AddInt64("open", s.Open)
	enc.AddUint64("tasks_completed", s.Workers.Completed)
	enc.AddUint64("tasks_rejected", s.Workers.Rejected)
	enc.AddInt("pending_delays", s.PendingDelay)
	return enc.AddObject("closes", zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
		for _, reason := range sortedKeys(s.Closes) {
			enc.AddUint64(reason, s.Closes[reason])
		}
		return nil
	}))
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
