package grpcserver

import (
	"context"
	"log/slog"
	"time"

	"github.com/inkhouse/inkbook/libs/grpcx"
	"github.com/inkhouse/inkbook/libs/runtime"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name other services probe.
const ServiceName = "inkbook.booking"

// Server is booking-service's gRPC endpoint. It only carries grpc.health.v1;
// the serving status tracks the readiness checks.
type Server struct {
	*grpcx.Server
	checks   []runtime.ReadyCheck
	interval time.Duration
	logger   *slog.Logger
}

func New(logger *slog.Logger, interval time.Duration, checks ...runtime.ReadyCheck) *Server {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s := &Server{
		Server:   grpcx.NewServer(logger),
		checks:   checks,
		interval: interval,
		logger:   logger,
	}
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

func (s *Server) Run(ctx context.Context, addr string) error {
	go s.watch(ctx)
	return s.Server.Run(ctx, addr)
}

func (s *Server) watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	last := healthpb.HealthCheckResponse_UNKNOWN
	for {
		last = s.refresh(ctx, last)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// refresh runs the checks once and publishes the result.
func (s *Server) refresh(ctx context.Context, last healthpb.HealthCheckResponse_ServingStatus) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	failures := runtime.RunChecks(ctx, s.checks)
	if len(failures) > 0 {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	if status != last {
		s.logger.Info("grpc health status changed", "status", status.String(), "failures", failures)
		s.setStatus(status)
	}
	return status
}

func (s *Server) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.Health.SetServingStatus("", status)
	s.Health.SetServingStatus(ServiceName, status)
}
