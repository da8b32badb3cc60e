// Package server provides a local HTTP endpoint serving records from a catalog, to develop against.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ubuntu/recordfeed/internal/api"
	"github.com/ubuntu/recordfeed/internal/metrics"
	"github.com/ubuntu/recordfeed/internal/model"
	"golang.org/x/time/rate"
)

// Provider is the record source of the server, reloaded when its backing file changes.
type Provider interface {
	api.RecordAPI
	Load() error
	Watch(context.Context) (<-chan struct{}, <-chan error, error)
}

// StaticConfig holds the static configuration for the server.
type StaticConfig struct {
	// Prefix is the path records are served under, like /records.
	Prefix string

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	MaxHeaderBytes int

	// RateLimit is the number of requests per second allowed per client address, and RateBurst the burst size.
	// Requests are not limited when RateLimit is 0.
	RateLimit float64
	RateBurst int

	ListenHost string
	ListenPort int
}

// Server is the stub remote HTTP server.
type Server struct {
	httpServer *http.Server
	provider   Provider

	addr net.Addr
	mu   sync.RWMutex

	// This context is used to interrupt any action.
	// It must be the parent of gracefulCtx.
	ctx    context.Context
	cancel context.CancelFunc

	// This context is canceled to start a graceful shutdown.
	gracefulCtx    context.Context
	gracefulCancel context.CancelFunc

	// limiter is nil when requests are not rate limited.
	limiter *ipLimiter

	log *slog.Logger
}

type options struct {
	keys     model.KeyMap
	registry prometheus.Registerer
	logger   *slog.Logger
}

// Options represents an optional function to override Server default values.
type Options func(*options)

// WithKeyMap sets the wire keys of served records and accepted filters.
func WithKeyMap(km model.KeyMap) Options {
	return func(o *options) {
		o.keys = km
	}
}

// WithRegistry sets where request metrics are registered. Requests are not instrumented without it.
func WithRegistry(reg prometheus.Registerer) Options {
	return func(o *options) {
		o.registry = reg
	}
}

// WithLogger sets the logger of the server.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}

// New loads the provider and returns a server for it.
func New(ctx context.Context, provider Provider, sc StaticConfig, args ...Options) (*Server, error) {
	opts := options{
		logger: slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	if err := provider.Load(); err != nil {
		return nil, fmt.Errorf("failed to load records: %v", err)
	}

	prefix := "/" + strings.Trim(sc.Prefix, "/")
	if prefix == "/" {
		return nil, fmt.Errorf("invalid records prefix %q", sc.Prefix)
	}

	ctx, cancel := context.WithCancel(ctx)
	gCtx, gCancel := context.WithCancel(ctx)

	s := &Server{
		provider: provider,
		ctx:      ctx,
		cancel:   cancel,

		gracefulCtx:    gCtx,
		gracefulCancel: gCancel,

		log: opts.logger,
	}

	h := newHandlers(provider, opts.keys, opts.logger)
	var mw *metrics.Middleware
	monitor := func(_ string, handler http.Handler) http.Handler { return handler }
	if opts.registry != nil {
		mw = metrics.New(opts.registry)
		monitor = func(name string, handler http.Handler) http.Handler { return mw.Monitor(name, handler) }
	}

	mux := http.NewServeMux()
	mux.Handle("GET "+prefix+"/{id}", monitor("record", http.HandlerFunc(h.record)))
	mux.Handle("GET "+prefix, monitor("records", http.HandlerFunc(h.records)))
	mux.Handle("GET /version", monitor("version", http.HandlerFunc(version)))

	var handler http.Handler = mux
	if sc.RequestTimeout > 0 {
		handler = http.TimeoutHandler(handler, sc.RequestTimeout, "")
	}
	if sc.RateLimit > 0 {
		s.limiter = newIPLimiter(rate.Limit(sc.RateLimit), max(sc.RateBurst, 1), limiterIdleTTL)
		s.limiter.log = opts.logger
		if mw != nil {
			s.limiter.rejected = mw.Rejections("rate_limit")
		}
		handler = s.limiter.middleware(handler)
	}

	s.httpServer = &http.Server{
		Addr:           net.JoinHostPort(sc.ListenHost, strconv.Itoa(sc.ListenPort)),
		ReadTimeout:    sc.ReadTimeout,
		WriteTimeout:   sc.WriteTimeout,
		Handler:        handler,
		MaxHeaderBytes: sc.MaxHeaderBytes,
	}

	return s, nil
}

// Run serves until Quit is called or the provider watcher fails.
func (s *Server) Run() error {
	// already asked to quit?
	select {
	case <-s.gracefulCtx.Done():
		return errors.New("server is already shutting down")
	default:
	}

	// Stopped once Run returns.
	_, watchErr, err := s.provider.Watch(s.ctx)
	if err != nil {
		return fmt.Errorf("failed to start watching records: %v", err)
	}

	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.cancel()
		return err
	}
	s.mu.Lock()
	s.addr = listener.Addr()
	s.mu.Unlock()
	s.log.Info("Starting server", "addr", listener.Addr().String())

	if s.limiter != nil {
		go s.limiter.sweep(s.ctx, limiterSweepInterval)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-s.gracefulCtx.Done():
		if s.ctx.Err() != nil {
			// Forced quit or canceled parent: nothing to wait for.
			_ = s.httpServer.Close()
			return nil
		}
		s.log.Info("Graceful shutdown initiated")
		// The parent context unblocks Shutdown when a forced quit follows.
		if err := s.httpServer.Shutdown(s.ctx); err != nil {
			if s.ctx.Err() != nil {
				s.log.Info("Graceful shutdown interrupted by a forced quit")
				_ = s.httpServer.Close()
				return nil
			}
			s.log.Error("Graceful shutdown failed", "error", err)
			s.cancel()
			return err
		}
		s.log.Info("Server shut down gracefully")
		s.cancel()
		return nil

	case err := <-serverErr:
		if err != nil {
			s.log.Error("Server encountered error", "error", err)
		}
		s.cancel()
		return err

	case err, ok := <-watchErr:
		if !ok {
			// Forced quit: the watcher stopped with the context.
			_ = s.httpServer.Close()
			return nil
		}
		s.log.Error("Records watcher encountered unrecoverable error", "error", err)
		errC := s.httpServer.Close()
		s.cancel()
		return errors.Join(err, errC)
	}
}

// Quit shuts the server down, gracefully unless force is set.
func (s *Server) Quit(force bool) {
	if force {
		s.httpServer.Close()
		s.cancel()
	} else {
		s.gracefulCancel()
	}
	s.log.Info("Server quit", "force", force)
}

// Addr returns the address the server listens on, or an empty string before it listens.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}
