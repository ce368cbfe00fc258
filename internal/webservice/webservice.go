// Package webservice provides the HTTP server that receives sales-event
// webhooks and exposes version and metrics endpoints.
package webservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dhelos/saleshook/internal/webservice/handlers"
	"github.com/dhelos/saleshook/internal/webservice/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is a struct that holds the HTTP server and its configuration.
type Server struct {
	httpServer *http.Server
	cm         dConfigManager

	// This context is used to interrupt any action.
	// It must be the parent of gracefulCtx.
	ctx    context.Context
	cancel context.CancelFunc

	// This context waits until in-flight requests finish.
	gracefulCtx    context.Context
	gracefulCancel context.CancelFunc

	mu   sync.RWMutex
	addr net.Addr
}

// StaticConfig holds the static configuration for the server.
type StaticConfig struct {
	StateFile string

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	MaxHeaderBytes int
	MaxBodyBytes   int

	ListenHost string
	ListenPort int
}

type dConfigManager interface {
	handlers.ConfigManager

	Load() error
	Watch(context.Context) (<-chan struct{}, <-chan error, error)
}

// New creates a new Server instance for the given state manager and
// ingestion pipeline.
func New(ctx context.Context, cm dConfigManager, pipe handlers.Ingester, sc StaticConfig) (*Server, error) {
	if err := cm.Load(); err != nil {
		return nil, fmt.Errorf("failed to load state file: %v", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	gCtx, gCancel := context.WithCancel(ctx)

	s := Server{
		cm:     cm,
		ctx:    ctx,
		cancel: cancel,

		gracefulCtx:    gCtx,
		gracefulCancel: gCancel}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mw := metrics.New(registry)

	salesHandler := handlers.NewSales(cm, pipe, int64(sc.MaxBodyBytes))
	mux := http.NewServeMux()
	// The sales handler does its own method check so the webhook sender gets
	// a JSON body back on a 405.
	mux.Handle("/sales", mw.Monitor("sales", salesHandler))
	mux.Handle("GET /version", http.HandlerFunc(handlers.Version))
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", sc.ListenHost, sc.ListenPort),
		ReadTimeout:    sc.ReadTimeout,
		WriteTimeout:   sc.WriteTimeout,
		Handler:        http.TimeoutHandler(mux, sc.RequestTimeout, ""),
		MaxHeaderBytes: sc.MaxHeaderBytes,
	}

	return &s, nil
}

// Run starts the HTTP server and listens for incoming requests.
func (s *Server) Run() error {
	slog.Info("Starting server", "addr", s.httpServer.Addr)

	// already asked to quit?
	select {
	case <-s.gracefulCtx.Done():
		return errors.New("server is already shutting down")
	default:
	}

	_, watchErr, err := s.cm.Watch(s.gracefulCtx)
	if err != nil {
		return fmt.Errorf("failed to start watching state file: %v", err)
	}

	lis, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to listen on %s: %v", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.addr = lis.Addr()
	s.mu.Unlock()

	serverErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-s.gracefulCtx.Done():
		slog.Info("Graceful shutdown initiated")
		// use parent ctx so if you call s.cancel() elsewhere it unblocks Shutdown immediately
		if err := s.httpServer.Shutdown(s.ctx); err != nil {
			slog.Error("Graceful shutdown failed", "err", err)
			return err
		}
		slog.Info("Server shut down gracefully")
		// now kill everything else (watchers, handlers, etc.)
		s.cancel()
		return nil

	case err := <-serverErr:
		if err != nil {
			slog.Error("Server encountered error", "err", err)
			s.cancel()
			return err
		}
		// unlikely: Serve returned nil
		s.cancel()
		return nil
	case err := <-watchErr:
		if err != nil {
			slog.Error("State file watcher encountered unrecoverable error", "err", err)
		}
		errC := s.httpServer.Close()
		s.cancel()

		return errors.Join(err, errC)
	}
}

// Quit shuts down the HTTP server gracefully.
func (s *Server) Quit(force bool) {
	defer s.cancel()

	if force {
		s.httpServer.Close()
		s.cancel()
	} else {
		s.gracefulCancel()
	}
	slog.Info("Server quit")
}
