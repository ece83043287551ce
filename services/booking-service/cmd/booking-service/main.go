package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/inkhouse/inkbook/libs/config"
	"github.com/inkhouse/inkbook/libs/db"
	"github.com/inkhouse/inkbook/libs/httpx"
	"github.com/inkhouse/inkbook/libs/inbox"
	"github.com/inkhouse/inkbook/libs/kafkax"
	otelx "github.com/inkhouse/inkbook/libs/otel"
	"github.com/inkhouse/inkbook/libs/outbox"
	"github.com/inkhouse/inkbook/libs/runtime"
	"github.com/inkhouse/inkbook/services/booking-service/internal/booking"
	"github.com/inkhouse/inkbook/services/booking-service/internal/catalog"
	"github.com/inkhouse/inkbook/services/booking-service/internal/consumer"
	"github.com/inkhouse/inkbook/services/booking-service/internal/grpcserver"
	bookinghttp "github.com/inkhouse/inkbook/services/booking-service/internal/handlers"
	"github.com/inkhouse/inkbook/services/booking-service/internal/jobs"
	"github.com/inkhouse/inkbook/services/booking-service/internal/metrics"
	"github.com/inkhouse/inkbook/services/booking-service/internal/payments"
	"github.com/inkhouse/inkbook/services/booking-service/internal/roster"
	"github.com/inkhouse/inkbook/services/booking-service/internal/scheduling"
	"github.com/inkhouse/inkbook/services/booking-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		fmt.Fprintln(os.Stderr, "dotenv:", err)
		os.Exit(1)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	logger := runtime.NewLogger(service)
	if err := run(service, logger); err != nil {
		logger.Error("booking-service exited", "err", err)
		os.Exit(1)
	}
}

func run(service string, logger *slog.Logger) error {
	port, err := config.Port("PORT", "8083")
	if err != nil {
		return err
	}
	grpcPort, err := config.Port("GRPC_PORT", "9083")
	if err != nil {
		return err
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	defer otelx.Start(ctx, service, logger)()

	hours, err := loadHours()
	if err != nil {
		return err
	}
	cat, err := catalog.Load(config.String("CATALOG_FILE", ""))
	if err != nil {
		return err
	}
	if cat.Longest() > hours.Length() {
		return fmt.Errorf("catalog: longest service (%s) does not fit the studio day (%s)", cat.Longest(), hours.Length())
	}
	bookingCfg, err := loadBookingConfig()
	if err != nil {
		return err
	}
	stripeCfg, err := loadStripeConfig()
	if err != nil {
		return err
	}
	jobsCfg, err := loadJobsConfig()
	if err != nil {
		return err
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return err
	}
	poolOpts, err := loadPoolOptions()
	if err != nil {
		return err
	}
	pool, err := db.Open(ctx, dbURL, poolOpts)
	if err != nil {
		return fmt.Errorf("db connection failed: %w", err)
	}
	defer pool.Close()

	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.MustNew(reg)

	appts := storage.NewAppointmentRepository(pool)
	artists := storage.NewArtistRepository(pool)
	outboxRepo := outbox.NewRepository()
	uow := storage.NewUnitOfWork(pool, appts, outboxRepo)

	rosterTTL, err := config.Duration("ROSTER_CACHE_TTL", 30*time.Second)
	if err != nil {
		return err
	}
	rosterCache := roster.NewCache(artists, rosterTTL)

	calc := scheduling.NewCalculator(appts, hours, logger, m)
	resolver := scheduling.NewResolver(appts, hours)
	consistency := config.String("BOOKING_CONSISTENCY", booking.ConsistencyOptimistic)
	reserver, err := booking.NewReserver(consistency, uow, resolver)
	if err != nil {
		return err
	}

	deps := booking.Deps{
		Store:      appts,
		UoW:        uow,
		Roster:     rosterCache,
		Reserver:   reserver,
		Calculator: calc,
		Catalog:    cat,
		Metrics:    m,
		Logger:     logger,
		Config:     bookingCfg,
	}
	if stripeCfg.Enabled() {
		deps.Checkout = payments.NewStripeCheckout(stripeCfg)
	}
	svc := booking.NewService(deps)
	logger.Info("booking configured",
		"open", hours.Open.String(),
		"close", hours.Close.String(),
		"step", hours.Step,
		"timezone", hours.Location.String(),
		"consistency", consistency,
		"deposits", svc.DepositsEnabled(),
	)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
		OnPublish: m.OutboxPublished,
	})
	go outboxPublisher.Run(ctx)

	if len(brokers) > 0 {
		artistConsumer := kafkax.NewConsumer(logger, inbox.NewRepository(pool), kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "booking-service"),
			Topics:  []string{config.String("KAFKA_CONSUME_TOPIC", consumer.TopicUserRegistered)},
		}, consumer.NewArtists(artists, rosterCache, logger).Handle)
		go artistConsumer.Run(ctx)
	} else {
		logger.Warn("artist consumer disabled (no kafka brokers configured)")
	}

	scheduler, err := jobs.New(svc, jobsCfg, logger)
	if err != nil {
		return err
	}
	go scheduler.Run(ctx)

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}

	grpcSrv := grpcserver.New(logger, 5*time.Second, checks...)
	go func() {
		if err := grpcSrv.Run(ctx, ":"+grpcPort); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	api := bookinghttp.New(bookinghttp.Deps{
		Bookings:    svc,
		Artists:     artists,
		Roster:      rosterCache,
		Idempotency: storage.NewIdempotencyRepository(pool),
		Observer:    m,
		Webhook:     payments.NewWebhook(stripeCfg, svc, storage.NewPaymentEventRepository(pool), logger),
		Logger:      logger,
	})
	router := mux.NewRouter()
	api.Routes(router)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	router.NotFoundHandler = runtime.NewBaseMuxWithReady(checks...)

	var httpHandler http.Handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger}),
		handlers.PrintRecoveryStack(false),
	)(router)
	httpHandler = httpx.Chain(httpHandler,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")

	runtime.Serve(ctx, &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}, logger)
	return nil
}

type recoveryLogger struct{ logger *slog.Logger }

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("panic recovered", "detail", fmt.Sprint(v...))
}
