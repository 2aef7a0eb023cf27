package core

import (
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/searchktools/concbench/config"
	"github.com/searchktools/concbench/core/http"
	"github.com/searchktools/concbench/core/observability"
	"github.com/searchktools/concbench/core/poller"
	"github.com/searchktools/concbench/core/pools"
	"github.com/searchktools/concbench/core/router"
	"github.com/searchktools/concbench/core/timer"
)

var (
	ErrEngineRunning       = errors.New("engine already serving")
	ErrEngineClosed        = errors.New("engine closed")
	ErrUnsupportedListener = errors.New("listener does not expose a file descriptor")
)

// Engine is a single-threaded reactor. One goroutine, locked to its OS thread,
// owns the poller, the connection table and every socket read and write.
// CPU work runs on the worker pool and delays on the scheduler; both report
// back only through the completion queue.
type Engine struct {
	cfg    *config.Config
	logger *zap.Logger

	router   *router.Router
	poller   poller.Poller
	workers  *pools.WorkerPool
	timers   *timer.Scheduler
	queue    *CompletionQueue
	bytePool *pools.BytePool
	connPool *pools.ConnectionPool
	monitor  *observability.Monitor

	// Owned by the reactor goroutine
	connections map[int]*Connection
	nextID      uint64
	drained     []Completion

	running     atomic.Bool
	stopped     atomic.Bool
	done        chan struct{}
	closeOnce   sync.Once
	releaseOnce sync.Once
}

// NewEngine creates a reactor engine; a nil logger discards output
func NewEngine(cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.New(config.VariantReactor)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p, err := poller.NewPoller()
	if err != nil {
		return nil, fmt.Errorf("create poller: %w", err)
	}

	e := &Engine{
		cfg:         cfg,
		logger:      logger,
		router:      router.New(cfg.MaxEchoBytes),
		poller:      p,
		workers:     pools.NewWorkerPool(cfg.Threads, cfg.QueueSize),
		timers:      timer.NewScheduler(),
		queue:       NewCompletionQueue(p),
		bytePool:    pools.NewBytePool(),
		monitor:     observability.NewMonitor(),
		connections: make(map[int]*Connection, 1024),
		done:        make(chan struct{}),
	}
	e.connPool = pools.NewConnectionPool(func() pools.ConnectionPoolable {
		return newConnection(cfg.MaxHeaderBytes, cfg.MaxBodyBytes)
	})

	stats := e.workers.Stats()
	logger.Info("reactor initialized",
		zap.Int("workers", stats.NumWorkers),
		zap.Int("worker_queue", stats.QueueSize),
		zap.Duration("idle_timeout", cfg.IdleTimeout),
		zap.Duration("poll_timeout", cfg.PollTimeout),
	)

	return e, nil
}

// Monitor returns the engine's latency and connection monitor
func (e *Engine) Monitor() *observability.Monitor {
	return e.monitor
}

// Run listens on addr and serves until Close
func (e *Engine) Run(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	return e.Serve(ln)
}

type fileListener interface {
	File() (*os.File, error)
}

// Serve runs the reactor on ln until Close is called. The engine accepts on a
// duplicate of ln's descriptor; the caller still owns ln.
func (e *Engine) Serve(ln net.Listener) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrEngineRunning
	}
	defer close(e.done)
	defer e.release()

	if e.stopped.Load() {
		return ErrEngineClosed
	}

	fl, ok := ln.(fileListener)
	if !ok {
		return ErrUnsupportedListener
	}
	lnFile, err := fl.File()
	if err != nil {
		return err
	}
	defer lnFile.Close()

	lfd := int(lnFile.Fd())
	if err := unix.SetNonblock(lfd, true); err != nil {
		return err
	}
	if err := e.poller.Add(lfd, poller.InterestRead); err != nil {
		return err
	}
	defer e.poller.Remove(lfd)

	e.logger.Info("reactor listening", zap.Stringer("addr", ln.Addr()))
	return e.loop(lfd)
}

// Close stops the reactor, closes every connection and waits for Serve to
// return. CPU work still queued for a worker is discarded; work a worker has
// already started runs to completion.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.stopped.Store(true)
		if e.running.Load() {
			e.poller.Wake()
			<-e.done
			return
		}
		e.release()
	})
	return nil
}

func (e *Engine) release() {
	e.releaseOnce.Do(func() {
		e.workers.Abort()
		e.timers.Close()
		e.poller.Close()
	})
}

func (e *Engine) loop(lfd int) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	timeout := int(e.cfg.PollTimeout / time.Millisecond)
	if timeout <= 0 {
		timeout = 100
	}

	for !e.stopped.Load() {
		events, err := e.poller.Wait(timeout)
		if err != nil {
			e.logger.Error("poller wait failed", zap.Error(err))
			e.closeAll()
			return fmt.Errorf("poller wait: %w", err)
		}

		now := time.Now()
		e.drainCompletions()

		// Accept last: a descriptor closed earlier in this tick may be reused
		// by accept, and must not receive the stale events still in the batch.
		acceptReady := false
		for _, ev := range events {
			if ev.Fd == lfd {
				acceptReady = true
				continue
			}
			e.handleEvent(ev, now)
		}
		if acceptReady {
			e.acceptConnections(lfd, now)
		}

		e.sweepIdle(time.Now())
	}

	e.closeAll()
	return nil
}

// acceptConnections accepts pending connections up to maxAcceptPerTick
func (e *Engine) acceptConnections(lfd int, now time.Time) {
	for i := 0; i < maxAcceptPerTick; i++ {
		nfd, err := accept(lfd)
		if err != nil {
			if !isTemporary(err) {
				e.logger.Warn("accept failed", zap.Error(err))
			}
			return
		}

		e.nextID++
		c := e.connPool.Get(nfd).(*Connection)
		c.id = e.nextID
		c.readBuf = e.bytePool.Get(e.cfg.ReadBufferSize)
		c.lastActive = now

		if err := e.poller.Add(nfd, poller.InterestRead); err != nil {
			e.logger.Warn("register connection failed",
				zap.Int("fd", nfd),
				zap.String("reason", observability.CloseRegisterFailed),
				zap.Error(err),
			)
			unix.Close(nfd)
			e.bytePool.Put(c.readBuf)
			e.connPool.Put(c)
			continue
		}
		c.interest = poller.InterestRead

		e.connections[nfd] = c
		e.monitor.RecordAccept()
	}
}

func (e *Engine) handleEvent(ev poller.Event, now time.Time) {
	c, ok := e.connections[ev.Fd]
	if !ok {
		return
	}
	id := c.id

	if ev.Readable {
		e.onReadable(c, now)
	}
	if ev.Writable && c.id == id {
		e.onWritable(c, now)
	}
	if ev.Closed && c.id == id && c.phase != PhaseClosed {
		e.closeConnection(c, observability.CloseIOError)
	}
}

// onReadable reads once and advances the parse. Nothing is read while a
// request is in flight or its response is pending.
func (e *Engine) onReadable(c *Connection, now time.Time) {
	if c.phase != PhaseReadingHeaders || c.inFlight {
		return
	}

	n, err := unix.Read(c.fd, c.readBuf)
	if err != nil {
		if isTemporary(err) {
			return
		}
		e.closeConnection(c, observability.CloseIOError)
		return
	}
	if n == 0 {
		if c.scanner.InBody() {
			e.logger.Debug("peer closed mid-body", zap.Uint64("conn", c.id), zap.Error(http.ErrTruncatedBody))
			e.closeConnection(c, observability.CloseTruncatedBody)
			return
		}
		e.closeConnection(c, observability.CloseEOF)
		return
	}

	c.lastActive = now
	c.buffered = c.readBuf[:n]
	e.advance(c, now)
}

// advance feeds buffered bytes to the scanner until a request completes
func (e *Engine) advance(c *Connection, now time.Time) {
	for len(c.buffered) > 0 && c.phase == PhaseReadingHeaders {
		n, req, err := c.scanner.Feed(c.buffered)
		c.buffered = c.buffered[n:]
		if err != nil {
			e.closeConnection(c, observability.ScanFailureReason(err))
			return
		}
		if req != nil {
			c.request = req
			c.phase = PhaseHeadersDone
			e.dispatch(c, now)
		}
	}
}

// dispatch classifies the parsed request and hands it to the matching executor
func (e *Engine) dispatch(c *Connection, now time.Time) {
	if c.inFlight || c.phase != PhaseHeadersDone {
		return
	}

	req := c.request
	route := e.router.Route(req.Path, req.Query)

	c.inFlight = true
	c.phase = PhaseDispatched
	c.route = route.Name
	c.dispatchedAt = now
	if !req.KeepAlive() {
		c.closeAfter = observability.CloseRequested
	}

	fd, id, keepAlive := c.fd, c.id, c.closeAfter == ""

	var err error
	switch route.Kind {
	case router.KindImmediate:
		e.applyCompletion(c, Completion{
			FD:       fd,
			ConnID:   id,
			Route:    route.Name,
			Response: e.encode(http.StatusOK, route.Body, !keepAlive),
			DoneAt:   now,
		})
		return

	case router.KindCPU:
		err = e.workers.Submit(func() {
			router.Burn(route.CPU)
			e.complete(fd, id, route, keepAlive)
		})

	case router.KindDelay:
		err = e.timers.Schedule(route.Delay, func() {
			e.complete(fd, id, route, keepAlive)
		})

	case router.KindCPUThenDelay:
		err = e.workers.Submit(func() {
			router.Burn(route.CPU)
			// The delay only starts counting once the burn is done
			if err := e.timers.Schedule(route.Delay, func() {
				e.complete(fd, id, route, keepAlive)
			}); err != nil {
				e.logger.Debug("delay not scheduled", zap.Uint64("conn", id), zap.Error(err))
			}
		})
	}

	if err != nil {
		e.logger.Debug("dispatch rejected",
			zap.Uint64("conn", id),
			zap.String("route", route.Name),
			zap.Error(err),
		)
		c.closeAfter = observability.CloseSaturated
		e.applyCompletion(c, Completion{
			FD:       fd,
			ConnID:   id,
			Route:    route.Name,
			Response: e.encode(http.StatusServiceUnavailable, nil, true),
			Close:    true,
			DoneAt:   now,
		})
		return
	}

	e.setInterest(c, poller.InterestNone)
}

// complete runs on a worker or the scheduler goroutine. It only builds an
// immutable record; the reactor applies it.
func (e *Engine) complete(fd int, id uint64, route router.Route, keepAlive bool) {
	e.queue.Push(Completion{
		FD:       fd,
		ConnID:   id,
		Route:    route.Name,
		Response: e.encode(http.StatusOK, route.Body, !keepAlive),
		DoneAt:   time.Now(),
	})
}

func (e *Engine) encode(status int, body []byte, closeConn bool) []byte {
	resp := http.Response{Status: status, Body: body, Close: closeConn}
	return resp.AppendTo(e.bytePool.Get(resp.Size())[:0])
}

// drainCompletions applies every queued completion to its connection.
// Completions for connections that closed meanwhile are dropped.
func (e *Engine) drainCompletions() {
	e.drained = e.queue.Drain(e.drained)
	for _, comp := range e.drained {
		c, ok := e.connections[comp.FD]
		if !ok || c.id != comp.ConnID || !c.inFlight {
			e.bytePool.Put(comp.Response)
			continue
		}
		e.applyCompletion(c, comp)
	}
}

// applyCompletion stores the response and arms the connection for writing
func (e *Engine) applyCompletion(c *Connection, comp Completion) {
	c.inFlight = false
	c.out = comp.Response
	c.written = 0
	c.phase = PhaseResponseReady
	if comp.Close && c.closeAfter == "" {
		c.closeAfter = observability.CloseRequested
	}
	e.monitor.RecordRequest(c.route, comp.DoneAt.Sub(c.dispatchedAt))

	if !e.setInterest(c, poller.InterestWrite) {
		return
	}
	c.phase = PhaseWriting
}

// onWritable writes as much of the pending response as the socket takes
func (e *Engine) onWritable(c *Connection, now time.Time) {
	if c.phase != PhaseWriting {
		return
	}

	n, err := unix.Write(c.fd, c.out[c.written:])
	if err != nil {
		if isTemporary(err) {
			return
		}
		e.closeConnection(c, observability.CloseIOError)
		return
	}

	c.written += n
	c.lastActive = now
	if c.written < len(c.out) {
		return
	}

	e.bytePool.Put(c.out)
	c.out = nil

	if c.closeAfter != "" {
		e.closeConnection(c, c.closeAfter)
		return
	}

	c.resetRequest()
	c.phase = PhaseReadingHeaders

	// Bytes of the next request may already be buffered; level-triggered
	// readiness will not report them again.
	e.advance(c, now)
	if c.phase == PhaseReadingHeaders {
		e.setInterest(c, poller.InterestRead)
	}
}

// setInterest switches the connection's readiness interest, closing it on failure
func (e *Engine) setInterest(c *Connection, interest poller.Interest) bool {
	if c.interest == interest {
		return true
	}
	if err := e.poller.Modify(c.fd, interest); err != nil {
		e.logger.Debug("modify interest failed", zap.Int("fd", c.fd), zap.Error(err))
		e.closeConnection(c, observability.CloseIOError)
		return false
	}
	c.interest = interest
	return true
}

// sweepIdle closes connections without activity for longer than the idle timeout
func (e *Engine) sweepIdle(now time.Time) {
	for _, c := range e.connections {
		if c.idle(now, e.cfg.IdleTimeout) {
			e.closeConnection(c, observability.CloseIdle)
		}
	}
}

func (e *Engine) closeAll() {
	for _, c := range e.connections {
		e.closeConnection(c, observability.CloseShutdown)
	}
}

// closeConnection closes and cleans up a connection
func (e *Engine) closeConnection(c *Connection, reason string) {
	fd := c.fd
	if fd < 0 {
		return
	}

	// 1. Stop receiving events, then close the fd
	delete(e.connections, fd)
	e.poller.Remove(fd)
	e.monitor.RecordClose(reason)
	unix.Close(fd)

	e.logger.Debug("connection closed",
		zap.Int("fd", fd),
		zap.Uint64("conn", c.id),
		zap.Stringer("phase", c.phase),
		zap.String("reason", reason),
	)

	// 2. Return buffers and the connection itself
	if c.out != nil {
		e.bytePool.Put(c.out)
	}
	if c.readBuf != nil {
		e.bytePool.Put(c.readBuf)
	}
	e.connPool.Put(c)
}
