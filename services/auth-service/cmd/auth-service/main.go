package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/inkhouse/inkbook/libs/auth"
	"github.com/inkhouse/inkbook/libs/config"
	"github.com/inkhouse/inkbook/libs/db"
	"github.com/inkhouse/inkbook/libs/httpx"
	"github.com/inkhouse/inkbook/libs/kafkax"
	otelx "github.com/inkhouse/inkbook/libs/otel"
	"github.com/inkhouse/inkbook/libs/outbox"
	"github.com/inkhouse/inkbook/libs/runtime"
	"github.com/inkhouse/inkbook/services/auth-service/internal/accounts"
	"github.com/inkhouse/inkbook/services/auth-service/internal/audit"
	"github.com/inkhouse/inkbook/services/auth-service/internal/handlers"
	"github.com/inkhouse/inkbook/services/auth-service/internal/sessions"
	"github.com/inkhouse/inkbook/services/auth-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		fmt.Fprintln(os.Stderr, "dotenv:", err)
		os.Exit(1)
	}
	service := config.String("SERVICE_NAME", "auth-service")
	logger := runtime.NewLogger(service)
	if err := run(service, logger); err != nil {
		logger.Error("auth-service exited", "err", err)
		os.Exit(1)
	}
}

func run(service string, logger *slog.Logger) error {
	port, err := config.Port("PORT", "8081")
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
	signer := auth.NewHS256Signer(secret, config.String("JWT_ISSUER", "inkbook"))
	accessTTL, err := config.Duration("ACCESS_TOKEN_TTL", time.Hour)
	if err != nil {
		return err
	}
	refreshTTL, err := config.Duration("REFRESH_TOKEN_TTL", 30*24*time.Hour)
	if err != nil {
		return err
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return err
	}
	pool, err := db.Open(ctx, dbURL, db.DefaultPoolOptions())
	if err != nil {
		return fmt.Errorf("db connection failed: %w", err)
	}
	defer pool.Close()

	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	userRepo := storage.NewUserRepository(pool)
	auditRepo := audit.NewRepository(pool)
	outboxRepo := outbox.NewRepository()

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	svc := accounts.NewService(accounts.Deps{
		Users:     userRepo,
		Registrar: storage.NewRegistrar(pool, userRepo, auditRepo, outboxRepo),
		Refresh:   sessions.NewRefreshRepository(pool),
		Audit:     auditRepo,
		Signer:    signer,
		Logger:    logger,
		Config:    accounts.Config{AccessTTL: accessTTL, RefreshTTL: refreshTTL},
	})

	if email, password := config.String("ADMIN_EMAIL", ""), config.String("ADMIN_PASSWORD", ""); email != "" && password != "" {
		created, err := svc.BootstrapAdmin(ctx, email, password)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		if created {
			logger.Info("bootstrap admin created", "email", email)
		}
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handlers.NewAuthHandler(svc, signer, logger).Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(64<<10),
	)
	handler = otelhttp.NewHandler(handler, "auth")

	runtime.Serve(ctx, &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}, logger)
	return nil
}
