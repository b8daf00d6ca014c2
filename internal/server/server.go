// Package server exposes the combat core over the network: a websocket
// event stream, read-only debug endpoints and a gRPC health service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/hexline/hexline-server-go/internal/config"
)

// Server runs the HTTP and gRPC listeners.
type Server struct {
	cfg    config.ServerConfig
	logger *zap.Logger

	hub    *Hub
	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

// New wires the hub and debug endpoints behind one HTTP server and creates
// the gRPC server.
func New(cfg config.ServerConfig, hub *Hub, dbg *Debug, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("GET /events", hub)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if dbg != nil {
		dbg.Register(mux)
	}
	gs, hs := NewGRPCServer(logger)
	return &Server{
		cfg:    cfg,
		logger: logger,
		hub:    hub,
		http:   &http.Server{Addr: cfg.HTTPAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		grpc:   gs,
		health: hs,
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.GRPCAddress)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", s.cfg.GRPCAddress, err)
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	errCh := make(chan error, 2)
	go func() {
		s.logger.Info("starting gRPC server", zap.String("address", s.cfg.GRPCAddress))
		if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()
	go func() {
		s.logger.Info("starting HTTP server", zap.String("address", s.cfg.HTTPAddress))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http serve: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	s.logger.Info("shutting down servers")
	s.health.Shutdown()
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("http shutdown: %w", err)
	}
	s.grpc.GracefulStop()
	return runErr
}
