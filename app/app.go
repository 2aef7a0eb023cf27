package app

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/searchktools/concbench/config"
	"github.com/searchktools/concbench/core"
	"github.com/searchktools/concbench/core/blocking"
	"github.com/searchktools/concbench/core/observability"
)

// Server is implemented by the reactor engine and the blocking servers
type Server interface {
	Serve(ln net.Listener) error
	Close() error
	Monitor() *observability.Monitor
}

// App runs one server variant until its context is cancelled
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	server Server
}

// New creates the server for cfg.Variant
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("variant", string(cfg.Variant)))

	var server Server
	switch cfg.Variant {
	case config.VariantReactor:
		engine, err := core.NewEngine(cfg, logger)
		if err != nil {
			return nil, err
		}
		server = engine
	case config.VariantSingle:
		server = blocking.NewSingle(cfg, logger)
	case config.VariantPooled:
		server = blocking.NewPooled(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown variant %q", cfg.Variant)
	}

	return &App{cfg: cfg, logger: logger, server: server}, nil
}

// Server returns the underlying server
func (a *App) Server() Server {
	return a.server
}

// Run listens on the configured port and serves until ctx is done
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		a.server.Close()
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done or the server fails
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()

		a.logger.Info("shutting down")
		return a.server.Close()
	})
	g.Go(func() error {
		a.logger.Info("started", zap.Stringer("addr", ln.Addr()))
		return a.server.Serve(ln)
	})

	err := g.Wait()
	a.logStats()

	if err == nil || errors.Is(err, core.ErrEngineClosed) || errors.Is(err, blocking.ErrServerClosed) {
		return nil
	}
	a.logger.Error("server encountered unexpected error", zap.Error(err))
	return err
}

func (a *App) logStats() {
	if engine, ok := a.server.(*core.Engine); ok {
		a.logger.Info("reactor stats", zap.Object("stats", engine.Stats()))
	}

	m := a.server.Monitor()
	for _, rs := range m.Routes() {
		a.logger.Info("route stats",
			zap.String("route", rs.Name),
			zap.Uint64("count", rs.Count),
			zap.Duration("min", rs.Min),
			zap.Duration("avg", rs.Avg),
			zap.Duration("max", rs.Max),
		)
	}
	a.logger.Info("connection stats",
		zap.Uint64("accepted", m.Accepted()),
		zap.Any("closes", m.CloseReasons()),
	)
	a.logger.Info("runtime stats", zap.Object("runtime", observability.ReadRuntime()))
}
