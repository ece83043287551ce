package grpcx

import (
	"errors"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// ClientConfig describes an internal upstream such as booking-service.
type ClientConfig struct {
	Addr string
	// CallTimeout applies to unary calls whose context has no deadline.
	CallTimeout time.Duration
	// Credentials replaces the plaintext transport used inside the cluster.
	Credentials credentials.TransportCredentials
}

// Dial returns a lazily connecting client; connection errors surface on the
// first call, so a missing upstream shows up as a failing readiness probe
// rather than a crash at startup.
func Dial(cfg ClientConfig, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	if cfg.Addr == "" {
		return nil, errors.New("grpc dial: empty address")
	}
	creds := cfg.Credentials
	if creds == nil {
		creds = insecure.NewCredentials()
	}
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithChainUnaryInterceptor(
			UnaryClientRequestIDInterceptor(),
			UnaryClientTimeoutInterceptor(cfg.CallTimeout),
		),
	}, extra...)
	return grpc.NewClient(cfg.Addr, opts...)
}
