package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"fundimart.org/internal/obs"
)

type readinessChecker interface {
	Check(ctx context.Context) error
}

// GRPCServer publishes the readiness probe through grpc.health.v1.
type GRPCServer struct {
	health    *health.Server
	readiness readinessChecker
	version   string
}

// NewGRPCServer creates the health service wrapper. Status starts NOT_SERVING
// until the first Refresh.
func NewGRPCServer(r readinessChecker, version string) *GRPCServer {
	s := &GRPCServer{
		health:    health.NewServer(),
		readiness: r,
		version:   version,
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.health.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Register installs health and reflection on srv.
func (s *GRPCServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.health)
	reflection.Register(srv)
}

// Refresh runs the readiness probe once and publishes the result.
func (s *GRPCServer) Refresh(ctx context.Context) error {
	status := healthpb.HealthCheckResponse_SERVING
	err := s.readiness.Check(ctx)
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(serviceName, status)
	obs.SetReady(err == nil)
	return err
}

// Run refreshes readiness every interval until ctx is done.
func (s *GRPCServer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		probeCtx, cancel := context.WithTimeout(ctx, interval)
		if err := s.Refresh(probeCtx); err != nil {
			obs.Logger().Warn().Err(err).Str("version", s.version).Msg("readiness probe failed")
		}
		cancel()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Shutdown marks every service NOT_SERVING so clients drain before the listener closes.
func (s *GRPCServer) Shutdown() {
	s.health.Shutdown()
}
