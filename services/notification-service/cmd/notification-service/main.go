package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/inkhouse/inkbook/libs/config"
	"github.com/inkhouse/inkbook/libs/db"
	"github.com/inkhouse/inkbook/libs/httpx"
	"github.com/inkhouse/inkbook/libs/inbox"
	"github.com/inkhouse/inkbook/libs/kafkax"
	otelx "github.com/inkhouse/inkbook/libs/otel"
	"github.com/inkhouse/inkbook/libs/runtime"
	"github.com/inkhouse/inkbook/services/notification-service/internal/email"
	"github.com/inkhouse/inkbook/services/notification-service/internal/notifier"
	"github.com/inkhouse/inkbook/services/notification-service/internal/render"
	"github.com/inkhouse/inkbook/services/notification-service/internal/sms"
	"github.com/inkhouse/inkbook/services/notification-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		fmt.Fprintln(os.Stderr, "dotenv:", err)
		os.Exit(1)
	}
	service := config.String("SERVICE_NAME", "notification-service")
	logger := runtime.NewLogger(service)
	if err := run(service, logger); err != nil {
		logger.Error("notification-service exited", "err", err)
		os.Exit(1)
	}
}

func run(service string, logger *slog.Logger) error {
	port, err := config.Port("PORT", "8085")
	if err != nil {
		return err
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	defer otelx.Start(ctx, service, logger)()

	loc, err := time.LoadLocation(config.String("SCHEDULE_TIMEZONE", "UTC"))
	if err != nil {
		return fmt.Errorf("SCHEDULE_TIMEZONE: %w", err)
	}
	renderer, err := render.New(config.String("STUDIO_NAME", "Inkhouse"), loc)
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

	reg := prometheus.NewRegistry()
	deliveries, err := notifier.NewDeliveryCounter(reg)
	if err != nil {
		return err
	}

	emailSender := newEmailSender(logger)
	smsSender := newSMSSender()
	logger.Info("notification providers", "email", emailSender.ProviderID(), "sms", smsSender.ProviderID())

	n := notifier.New(notifier.Deps{
		Email:      emailSender,
		SMS:        smsSender,
		Renderer:   renderer,
		Store:      storage.NewRepository(pool),
		AdminEmail: config.String("STUDIO_ADMIN_EMAIL", ""),
		Logger:     logger,
		Deliveries: deliveries,
	})

	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	topics := config.List("KAFKA_CONSUME_TOPICS")
	if len(topics) == 0 {
		topics = render.Topics()
	}
	if len(brokers) > 0 {
		eventConsumer := kafkax.NewConsumer(logger, inbox.NewRepository(pool), kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
			Topics:  topics,
		}, n.Handle)
		go eventConsumer.Run(ctx)
	} else {
		logger.Warn("event consumer disabled (no kafka brokers configured)")
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")

	runtime.Serve(ctx, &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}, logger)
	return nil
}

func newEmailSender(logger *slog.Logger) email.Sender {
	if key := config.String("SENDGRID_API_KEY", ""); key != "" {
		return email.NewSendGridSender(key,
			config.String("SENDGRID_FROM_EMAIL", "no-reply@inkbook.local"),
			config.String("SENDGRID_FROM_NAME", "Inkhouse"),
		)
	}
	if host := config.String("SMTP_HOST", ""); host != "" {
		return email.NewSMTPSender(host, config.String("SMTP_PORT", "1025"), config.String("SMTP_FROM", ""))
	}
	return email.NewLogSender(logger)
}

func newSMSSender() sms.Sender {
	if sid := config.String("TWILIO_ACCOUNT_SID", ""); sid != "" {
		return sms.NewTwilioSender(sid, config.String("TWILIO_AUTH_TOKEN", ""), config.String("TWILIO_FROM_NUMBER", ""))
	}
	if url := config.String("SMS_WEBHOOK_URL", ""); url != "" {
		return sms.NewWebhookSender(url, config.String("SMS_WEBHOOK_TOKEN", ""))
	}
	return sms.NewNoopSender()
}
