package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/k8s-ai-assistant/expert-engine/internal/config"
	"github.com/k8s-ai-assistant/expert-engine/internal/grpc/expertv1"
)

// Server owns the gRPC server, its listener and the health service.
type Server struct {
	cfg    config.ServerConfig
	grpc   *grpc.Server
	lis    net.Listener
	health *health.Server
	logger *slog.Logger
}

// NewServer listens on cfg.Address and registers service.
func NewServer(cfg config.ServerConfig, service expertv1.ExpertEngineServer, logger *slog.Logger, opts ...grpc.ServerOption) (*Server, error) {
	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Address, err)
	}
	return NewServerOnListener(cfg, lis, service, logger, opts...), nil
}

// NewServerOnListener builds the server around an existing listener, such as
// an in-memory bufconn listener in tests. Requests pass through Prometheus
// instrumentation, then panic recovery, then request logging.
func NewServerOnListener(cfg config.ServerConfig, lis net.Listener, service expertv1.ExpertEngineServer, logger *slog.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	grpc_prometheus.EnableHandlingTimeHistogram()

	s := &Server{cfg: cfg, lis: lis, health: health.NewServer(), logger: logger}
	serverOpts := append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpc_prometheus.UnaryServerInterceptor,
			s.recoverUnary,
			s.logUnary,
		),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}, opts...)
	s.grpc = grpc.NewServer(serverOpts...)

	expertv1.RegisterExpertEngineServer(s.grpc, service)
	grpc_prometheus.Register(s.grpc)

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(expertv1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	// No reflection service: messages use the JSON codec and carry no
	// protobuf descriptors for reflection clients to describe.
	healthpb.RegisterHealthServer(s.grpc, s.health)
	return s
}

// recoverUnary turns a handler panic into codes.Internal so one bad request
// cannot take the engine down.
func (s *Server) recoverUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in gRPC handler",
				slog.String("method", info.FullMethod),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			resp, err = nil, status.Error(codes.Internal, "internal error")
		}
	}()
	return handler(ctx, req)
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug("gRPC request",
		slog.String("method", info.FullMethod),
		slog.String("code", status.Code(err).String()),
		slog.Duration("duration", time.Since(start)),
	)
	return resp, err
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	if s.grpc == nil || s.lis == nil {
		return fmt.Errorf("server not initialised")
	}
	return s.grpc.Serve(s.lis)
}

// Shutdown reports NOT_SERVING to health checks, then drains in-flight
// requests until ctx expires and stops hard.
func (s *Server) Shutdown(ctx context.Context) {
	if s.grpc == nil {
		return
	}
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		s.grpc.Stop()
	case <-stopped:
	}
}

// Address returns the bound listener address.
func (s *Server) Address() string {
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

// GracefulTimeout returns the configured drain period.
func (s *Server) GracefulTimeout() time.Duration {
	return s.cfg.GracefulTimeout
}
