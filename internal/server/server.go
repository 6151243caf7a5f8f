package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"batchrpc/internal/batch"
	"batchrpc/internal/cache"
	"batchrpc/internal/config"
	"batchrpc/internal/transport"
)

const shutdownTimeout = 30 * time.Second

// Server wires the batch processor, the method dispatcher and the transports
type Server struct {
	cfg        *config.Config
	cache      cache.Cache
	dispatcher *Dispatcher
	processor  *batch.Processor
	adapter    *transport.Adapter
	logger     zerolog.Logger
}

// New creates a new Server with the built-in methods and MCP tools registered
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	var resultCache cache.Cache
	if cfg.IsCacheEnabled() {
		var err error
		resultCache, err = cache.NewMemoryCache(cfg.Cache.Size, cfg.Cache.GetTTLDuration())
		if err != nil {
			return nil, fmt.Errorf("failed to create cache: %w", err)
		}
		logger.Info().
			Int("size", cfg.Cache.Size).
			Int("ttl", cfg.Cache.TTL).
			Msg("cache enabled")
	} else {
		resultCache = cache.NewNoopCache()
		logger.Info().Msg("cache disabled")
	}

	dispatcher := NewDispatcher(resultCache, logger)
	RegisterBuiltins(dispatcher)
	DefaultTools(cfg.Name, cfg.Version).Register(dispatcher)

	batchCfg := batchConfig(cfg.Batching)
	processor := batch.NewProcessor(batchCfg, logger)
	logger.Info().
		Int("maxBatchSize", batchCfg.MaxBatchSize).
		Bool("parallel", batchCfg.Parallel).
		Int64("timeoutMs", batchCfg.Timeout.Milliseconds()).
		Msg("batching configured")

	return &Server{
		cfg:        cfg,
		cache:      resultCache,
		dispatcher: dispatcher,
		processor:  processor,
		adapter:    transport.NewAdapter(processor, dispatcher, logger),
		logger:     logger,
	}, nil
}

func batchConfig(c *config.BatchingConfig) batch.Config {
	if c == nil {
		return batch.Config{}
	}
	return batch.Config{
		MaxBatchSize: c.GetMaxBatchSize(),
		Parallel:     c.Parallel,
		Timeout:      c.GetTimeoutDuration(),
	}
}

// Dispatcher returns the method dispatcher for registering extra methods
func (s *Server) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// HTTPHandler returns the JSON-RPC over HTTP handler
func (s *Server) HTTPHandler() http.Handler {
	return transport.NewHTTPHandler(s.adapter, s.cfg.MaxBodySize, s.logger)
}

// WebSocketHandler returns the JSON-RPC over WebSocket handler
func (s *Server) WebSocketHandler() http.Handler {
	return transport.NewWebSocketHandler(s.adapter, s.logger)
}

// Run serves HTTP and WebSocket until ctx is done or a listener fails,
// then shuts both listeners down.
func (s *Server) Run(ctx context.Context) error {
	defer s.cache.Close()

	httpAddr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.HTTPPort))
	wsAddr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.WSPort))

	httpLn, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return fmt.Errorf("HTTP listen: %w", err)
	}
	wsLn, err := net.Listen("tcp", wsAddr)
	if err != nil {
		httpLn.Close()
		return fmt.Errorf("WebSocket listen: %w", err)
	}

	return s.serve(ctx, httpLn, wsLn)
}

func (s *Server) serve(ctx context.Context, httpLn, wsLn net.Listener) error {
	httpServer := &http.Server{
		Handler:     s.HTTPHandler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	// WriteTimeout would cut hijacked WebSocket connections
	wsServer := &http.Server{
		Handler:     s.WebSocketHandler(),
		IdleTimeout: 120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info().Str("addr", httpLn.Addr().String()).Msg("starting HTTP server")
		if err := httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.logger.Info().Str("addr", wsLn.Addr().String()).Msg("starting WebSocket server")
		if err := wsServer.Serve(wsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("WebSocket server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
		}
		// hijacked connections are not tracked by Shutdown
		if err := wsServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("WebSocket server shutdown: %w", err))
		}
		if err := errors.Join(errs...); err != nil {
			return err
		}

		s.logger.Info().Msg("server stopped")
		return nil
	})

	return g.Wait()
}

// ServeStdio exchanges newline-delimited messages over in and out until
// in reaches EOF or ctx is done.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	defer s.cache.Close()

	t := transport.NewStdio(in, out, s.logger)
	s.adapter.Attach(t)
	defer t.Close()

	s.logger.Info().Msg("serving on stdio")
	return t.Run(ctx)
}
