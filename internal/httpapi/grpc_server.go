package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"guildhall.org/internal/obs"
)

// RegistryService is the service name reported on the gRPC health endpoint
// alongside the overall "" status.
const RegistryService = "guildhall.Registry"

const probeTimeout = 2 * time.Second

// GRPCServer exposes the standard gRPC health service, driven by the same
// readiness probe as /readyz, plus server reflection.
type GRPCServer struct {
	*grpc.Server

	health    *health.Server
	readiness readinessChecker
}

// NewGRPCServer registers health and reflection on a fresh grpc.Server.
// Both statuses start NOT_SERVING until the first probe.
func NewGRPCServer(r readinessChecker, opts ...grpc.ServerOption) *GRPCServer {
	s := &GRPCServer{
		Server:    grpc.NewServer(opts...),
		health:    health.NewServer(),
		readiness: r,
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.health.SetServingStatus(RegistryService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s.Server, s.health)
	reflection.Register(s.Server)
	return s
}

// Probe runs the readiness check once and publishes the result.
func (s *GRPCServer) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	ok := true
	if s.readiness != nil {
		if err := s.readiness.Check(ctx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			ok = false
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(RegistryService, status)
	obs.SetReady(ok)
	return ok
}

// Watch probes every interval until ctx ends, then marks the server as
// shutting down.
func (s *GRPCServer) Watch(ctx context.Context, interval time.Duration) {
	s.Probe(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}
