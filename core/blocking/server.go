// Package blocking implements the thread-per-connection servers the reactor is
// measured against. The single server handles one connection at a time on the
// accepting goroutine; the pooled server hands each connection to a fixed set
// of workers. Both block on socket reads and writes and share request
// scanning, routing and response encoding with the reactor.
package blocking

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/searchktools/concbench/config"
	"github.com/searchktools/concbench/core/http"
	"github.com/searchktools/concbench/core/observability"
	"github.com/searchktools/concbench/core/pools"
	"github.com/searchktools/concbench/core/router"
)

var ErrServerClosed = errors.New("blocking: server closed")

// Mode selects how accepted connections are handled
type Mode int

const (
	ModeSingle Mode = iota
	ModePooled
)

func (m Mode) String() string {
	if m == ModePooled {
		return "pooled"
	}
	return "single"
}

// Server is a blocking HTTP/1.1 server
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	mode   Mode

	router   *router.Router
	workers  *pools.WorkerPool
	bytePool *pools.BytePool
	monitor  *observability.Monitor

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	quit     chan struct{}
	active   sync.WaitGroup
}

// NewSingle creates a server that handles connections one after another
func NewSingle(cfg *config.Config, logger *zap.Logger) *Server {
	return newServer(cfg, logger, ModeSingle)
}

// NewPooled creates a server that runs each connection on one of cfg.Threads
// workers; up to cfg.QueueSize further connections wait for a free worker
func NewPooled(cfg *config.Config, logger *zap.Logger) *Server {
	return newServer(cfg, logger, ModePooled)
}

func newServer(cfg *config.Config, logger *zap.Logger, mode Mode) *Server {
	if cfg == nil {
		cfg = config.New(config.VariantSingle)
		if mode == ModePooled {
			cfg = config.New(config.VariantPooled)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		mode:     mode,
		router:   router.New(cfg.MaxEchoBytes),
		bytePool: pools.NewBytePool(),
		monitor:  observability.NewMonitor(),
		conns:    make(map[net.Conn]struct{}),
		quit:     make(chan struct{}),
	}
	if mode == ModePooled {
		s.workers = pools.NewWorkerPool(cfg.Threads, cfg.QueueSize)
	}
	return s
}

// Monitor returns the server's latency and connection monitor
func (s *Server) Monitor() *observability.Monitor {
	return s.monitor
}

// Workers returns the pooled server's worker statistics; zero for the single server
func (s *Server) Workers() pools.WorkerPoolStats {
	if s.workers == nil {
		return pools.WorkerPoolStats{}
	}
	return s.workers.Stats()
}

// Serve accepts connections on ln until Close. Close also closes ln.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	fields := []zap.Field{zap.String("mode", s.mode.String()), zap.Stringer("addr", ln.Addr())}
	if s.workers != nil {
		fields = append(fields, zap.Int("workers", s.workers.Stats().NumWorkers))
	}
	s.logger.Info("blocking server listening", fields...)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.monitor.RecordAccept()

		if !s.track(conn) {
			conn.Close()
			s.monitor.RecordClose(observability.CloseShutdown)
			return nil
		}

		switch s.mode {
		case ModeSingle:
			s.handle(conn)
		case ModePooled:
			if err := s.workers.Submit(func() { s.handle(conn) }); err != nil {
				s.reject(conn, err)
			}
		}
	}
}

// Close stops accepting, closes every open connection and waits for their
// handlers. Requests sleeping in a delay are abandoned.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.quit)
	ln := s.listener
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		if err = ln.Close(); errors.Is(err, net.ErrClosed) {
			err = nil
		}
	}
	for _, c := range conns {
		c.Close()
	}

	s.active.Wait()
	if s.workers != nil {
		s.workers.Close()
	}
	return err
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.active.Add(1)
	return true
}

func (s *Server) finish(conn net.Conn, reason string) {
	conn.Close()

	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()

	s.monitor.RecordClose(reason)
	s.logger.Debug("connection closed",
		zap.Stringer("remote", conn.RemoteAddr()),
		zap.String("reason", reason),
	)
	s.active.Done()
}

// reject answers a connection the worker queue could not take
func (s *Server) reject(conn net.Conn, err error) {
	s.logger.Debug("connection rejected", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))

	resp := http.Response{Status: http.StatusServiceUnavailable, Close: true}
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	conn.Write(resp.Encode())
	s.finish(conn, observability.CloseSaturated)
}

// handle serves keep-alive requests on conn until it closes
func (s *Server) handle(conn net.Conn) {
	reason := observability.CloseIOError
	defer func() { s.finish(conn, reason) }()

	scanner := http.NewScanner(s.cfg.MaxHeaderBytes, s.cfg.MaxBodyBytes)
	buf := s.bytePool.Get(s.cfg.ReadBufferSize)
	defer s.bytePool.Put(buf)

	var pending []byte
	for {
		req, failure := s.readRequest(conn, scanner, buf, &pending)
		if req == nil {
			reason = failure
			return
		}

		route := s.router.Route(req.Path, req.Query)
		start := time.Now()
		if !s.execute(route) {
			reason = observability.CloseShutdown
			return
		}

		resp := http.Response{Status: http.StatusOK, Body: route.Body, Close: !req.KeepAlive()}
		s.monitor.RecordRequest(route.Name, time.Since(start))

		out := resp.AppendTo(s.bytePool.Get(resp.Size())[:0])
		_, err := conn.Write(out)
		s.bytePool.Put(out)
		if err != nil {
			reason = s.failureReason(err, observability.CloseIOError)
			return
		}
		if resp.Close {
			reason = observability.CloseRequested
			return
		}
	}
}

// readRequest blocks until the next full request is scanned. Bytes left over
// from an earlier read are consumed before reading the socket again.
func (s *Server) readRequest(conn net.Conn, scanner *http.Scanner, buf []byte, pending *[]byte) (*http.Request, string) {
	for {
		if len(*pending) == 0 {
			conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
			n, err := conn.Read(buf)
			if n == 0 {
				if errors.Is(err, io.EOF) {
					if scanner.InBody() {
						return nil, observability.CloseTruncatedBody
					}
					return nil, observability.CloseEOF
				}
				return nil, s.failureReason(err, observability.CloseIOError)
			}
			*pending = buf[:n]
		}

		n, req, err := scanner.Feed(*pending)
		*pending = (*pending)[n:]
		if err != nil {
			return nil, observability.ScanFailureReason(err)
		}
		if req != nil {
			return req, ""
		}
	}
}

func (s *Server) failureReason(err error, fallback string) string {
	switch {
	case s.isClosed():
		return observability.CloseShutdown
	case errors.Is(err, os.ErrDeadlineExceeded):
		return observability.CloseIdle
	}
	return fallback
}

// execute runs the route's work on the calling goroutine. It reports false if
// the server closed during a delay.
func (s *Server) execute(route router.Route) bool {
	switch route.Kind {
	case router.KindCPU:
		router.Burn(route.CPU)
	case router.KindDelay:
		return s.sleep(route.Delay)
	case router.KindCPUThenDelay:
		router.Burn(route.CPU)
		return s.sleep(route.Delay)
	}
	return true
}

func (s *Server) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-s.quit:
		return false
	}
}
