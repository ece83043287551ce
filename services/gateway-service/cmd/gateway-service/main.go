package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/inkhouse/inkbook/libs/auth"
	"github.com/inkhouse/inkbook/libs/config"
	"github.com/inkhouse/inkbook/libs/grpcx"
	"github.com/inkhouse/inkbook/libs/httpx"
	otelx "github.com/inkhouse/inkbook/libs/otel"
	"github.com/inkhouse/inkbook/libs/runtime"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		fmt.Fprintln(os.Stderr, "dotenv:", err)
		os.Exit(1)
	}
	service := config.String("SERVICE_NAME", "gateway-service")
	logger := runtime.NewLogger(service)
	if err := run(service, logger); err != nil {
		logger.Error("gateway-service exited", "err", err)
		os.Exit(1)
	}
}

func run(service string, logger *slog.Logger) error {
	port, err := config.Port("PORT", "8080")
	if err != nil {
		return err
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	defer otelx.Start(ctx, service, logger)()

	secret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		return err
	}
	authURL, err := url.Parse(config.String("AUTH_URL", "http://auth-service:8081"))
	if err != nil {
		return fmt.Errorf("AUTH_URL: %w", err)
	}
	bookingURL, err := url.Parse(config.String("BOOKING_URL", "http://booking-service:8083"))
	if err != nil {
		return fmt.Errorf("BOOKING_URL: %w", err)
	}
	bodyLimit, err := config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)
	if err != nil {
		return err
	}
	requestTimeout, err := config.Duration("REQUEST_TIMEOUT", 10*time.Second)
	if err != nil {
		return err
	}
	limitPerMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	if err != nil {
		return err
	}

	var checks []runtime.ReadyCheck
	if addr := config.String("BOOKING_GRPC_ADDR", "booking-service:9083"); addr != "" {
		conn, err := grpcx.Dial(grpcx.ClientConfig{Addr: addr, CallTimeout: 2 * time.Second})
		if err != nil {
			return fmt.Errorf("dial booking grpc: %w", err)
		}
		defer func() { _ = conn.Close() }()
		checks = append(checks, runtime.ReadyCheck{
			Name:  "booking",
			Check: grpcx.HealthCheck(conn, config.String("BOOKING_GRPC_SERVICE", "inkbook.booking")),
		})
	}

	var rateLimitMW httpx.Middleware
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		redisDB, err := config.Int("REDIS_DB", 0)
		if err != nil {
			return err
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer func() { _ = rdb.Close() }()
		checks = append(checks, runtime.ReadyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	registerRoutes(mux, routeConfig{
		AuthURL:    authURL,
		BookingURL: bookingURL,
		Signer:     auth.NewHS256Signer(secret, config.String("JWT_ISSUER", "inkbook")),
		Transport:  otelhttp.NewTransport(http.DefaultTransport),
		Logger:     logger,
	})

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.DefaultCORSPolicy(config.List("CORS_ALLOWED_ORIGINS"))),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(bodyLimit)),
		httpx.WithTimeout(requestTimeout),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "gateway")

	runtime.Serve(ctx, &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}, logger)
	return nil
}
