package utilities

import (
	"context"
	"errors"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// RegisterHealthServer registers the gRPC health check service and reports
// SERVING for the overall server and for each named service. The returned
// server lets callers flip the status during shutdown.
func RegisterHealthServer(grpcServer *grpc.Server, services ...string) *health.Server {
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	for _, service := range services {
		healthServer.SetServingStatus(service, grpc_health_v1.HealthCheckResponse_SERVING)
	}
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	return healthServer
}

// HealthProbeServer exposes only the grpc.health.v1.Health service so
// orchestrators can probe a process whose API is plain HTTP.
type HealthProbeServer struct {
	server *grpc.Server
	health *health.Server
	logger *zerolog.Logger
}

func NewHealthProbeServer(logger *zerolog.Logger, services ...string) *HealthProbeServer {
	server := grpc.NewServer()
	return &HealthProbeServer{
		server: server,
		health: RegisterHealthServer(server, services...),
		logger: logger,
	}
}

// Serve blocks until lis is closed or Stop is called.
func (s *HealthProbeServer) Serve(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server listening")
	if err := s.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Shutdown marks every service NOT_SERVING and then drains the server. If
// ctx expires first the server is stopped forcefully.
func (s *HealthProbeServer) Shutdown(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.server.Stop()
		<-done
	}
}
