package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/nemanja-m/gotransform/internal/coordinator/core"
	"github.com/nemanja-m/gotransform/internal/shared/config"
	"github.com/nemanja-m/gotransform/internal/shared/logging"
	"github.com/nemanja-m/gotransform/internal/shared/rpc"
)

type Server struct {
	addr       string
	grpcServer *grpc.Server
	logger     logging.Logger
}

func NewServer(cfg config.GRPCConfig, tasks core.TaskService, logger logging.Logger) *Server {
	grpcServer := grpc.NewServer(
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             cfg.KeepaliveMinTime,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(loggingInterceptor(logger)),
	)

	rpc.RegisterCoordinatorServer(grpcServer, NewCoordinatorService(tasks, cfg.PullWait, logger))

	if cfg.EnableReflection {
		reflection.Register(grpcServer)
	}

	return &Server{
		addr:       cfg.Addr,
		grpcServer: grpcServer,
		logger:     logger,
	}
}

// Listen binds the configured address without serving it.
func (s *Server) Listen() (net.Listener, error) {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return lis, nil
}

func (s *Server) Start() error {
	lis, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC server listening", "addr", lis.Addr().String())
	return s.grpcServer.Serve(lis)
}

// Stop waits for in-flight calls, which includes parked pulls, and falls
// back to a hard stop after timeout.
func (s *Server) Stop(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.grpcServer.Stop()
	}
}

func loggingInterceptor(logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Warn("gRPC call failed",
				"method", info.FullMethod,
				"duration_ms", time.Since(start).Milliseconds(),
				"error", err,
			)
		}
		return resp, err
	}
}
