package grpcserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/inkhouse/inkbook/libs/runtime"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func status(t *testing.T, s *Server) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := s.Health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	return resp.GetStatus()
}

func TestHealthFollowsChecks(t *testing.T) {
	dbErr := errors.New("db down")
	s := New(slog.New(slog.NewTextHandler(io.Discard, nil)), 0, runtime.ReadyCheck{
		Name:  "postgres",
		Check: func(context.Context) error { return dbErr },
	})
	if got := status(t, s); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before the first check, got %s", got)
	}

	last := s.refresh(context.Background(), healthpb.HealthCheckResponse_UNKNOWN)
	if last != healthpb.HealthCheckResponse_NOT_SERVING || status(t, s) != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("failing check must report NOT_SERVING")
	}

	dbErr = nil
	last = s.refresh(context.Background(), last)
	if last != healthpb.HealthCheckResponse_SERVING || status(t, s) != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("passing check must report SERVING")
	}
}
