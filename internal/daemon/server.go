package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/realtime"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// listenUnix binds a Unix domain socket readable only by the owner,
// replacing a stale socket file left by a crashed daemon.
func listenUnix(socketPath string) (net.Listener, error) {
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return listener, nil
}

// Server manages the gRPC server lifecycle for a session daemon.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer creates a gRPC server bound to the session's Unix domain socket.
func NewServer(p Params, logger *zap.Logger, svc *api.StorageService) (*Server, error) {
	socketPath := p.socketPath()
	listener, err := listenUnix(socketPath)
	if err != nil {
		return nil, err
	}

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(logCalls(logger)))
	api.Register(srv, svc)

	return &Server{
		grpcServer: srv,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// Start begins serving gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *Server) Stop(_ context.Context) {
	s.logger.Info("gRPC server stopping")
	s.grpcServer.GracefulStop()
	_ = os.Remove(s.socketPath)
}

func logCalls(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("elapsed", time.Since(start)),
		}
		if err != nil {
			logger.Warn("rpc failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("rpc", fields...)
		}
		return resp, err
	}
}

// RealtimeServer serves the change feed over WebSocket on the session's
// realtime socket.
type RealtimeServer struct {
	feed       *realtime.Server
	httpServer *http.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewRealtimeServer binds the realtime socket.
func NewRealtimeServer(p Params, logger *zap.Logger, feed *realtime.Server) (*RealtimeServer, error) {
	socketPath := p.realtimeSocketPath()
	listener, err := listenUnix(socketPath)
	if err != nil {
		return nil, err
	}
	return &RealtimeServer{
		feed: feed,
		httpServer: &http.Server{
			Handler:           feed.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// Start serves WebSocket upgrades. Blocks until stopped.
func (s *RealtimeServer) Start() error {
	s.logger.Info("realtime server starting", zap.String("socket", s.socketPath))
	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop disconnects subscribers, shuts the HTTP server down and removes the
// socket file.
func (s *RealtimeServer) Stop(ctx context.Context) {
	s.logger.Info("realtime server stopping")
	// Hijacked WebSocket connections are not tracked by http.Server, so the
	// feed has to release them before Shutdown can finish.
	s.feed.Shutdown()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("realtime shutdown", zap.Error(err))
	}
	_ = os.Remove(s.socketPath)
}
