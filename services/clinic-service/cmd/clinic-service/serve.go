package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/clinicflow/libs/clock"
	libconfig "github.com/md-rashed-zaman/clinicflow/libs/config"
	"github.com/md-rashed-zaman/clinicflow/libs/db"
	"github.com/md-rashed-zaman/clinicflow/libs/grpcx"
	"github.com/md-rashed-zaman/clinicflow/libs/httpx"
	"github.com/md-rashed-zaman/clinicflow/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicflow/libs/otel"
	"github.com/md-rashed-zaman/clinicflow/libs/runtime"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/availability"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/booking"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/cancellation"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/config"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/consumer"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/fee"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/inbox"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/policy"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/queue"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/reminders"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

func serveCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, gRPC health server and background workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := libconfig.New(*envFile)
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := runtime.NewLogger(cfg.ServiceName, cfg.LogLevel)

			ctx, stop := runtime.SignalContext(logger)
			defer stop()

			otelCfg := otelx.ConfigFrom(v, cfg.ServiceName)
			otelCfg.Logger = logger
			otelShutdown, err := otelx.Setup(ctx, otelCfg)
			if err != nil {
				logger.Error("otel setup failed", "err", err)
			} else {
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = otelShutdown(shutdownCtx)
				}()
			}

			return runServer(ctx, cfg, logger)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{
		MaxConns:        int32(cfg.DBMaxConns),
		MinConns:        int32(cfg.DBMinConns),
		ApplicationName: cfg.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("db connection failed: %w", err)
	}
	defer pool.Close()

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	if cfg.KafkaEnabled() {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}

	loc := clock.Zone(cfg.ClinicUTCOffsetHours)
	clk := clock.System(loc)

	outboxRepo := outbox.NewRepository(pool)
	reminderRepo := reminders.NewRepository(pool)
	appointments := storage.NewAppointmentRepository(pool, reminderRepo, outboxRepo)
	rules := storage.NewRuleRepository(pool)
	queueRepo := storage.NewQueueRepository(pool)
	settingsRepo := storage.NewSettingsRepository(pool)

	defaults := policy.NewStaticProvider(policy.ParseReminderOffsets(cfg.ReminderOffsets, logger), cfg.DefaultServiceMinutes)
	settings := policy.NewStoreProvider(settingsRepo, defaults, logger)

	resolver := availability.NewResolver(rules)
	slots := availability.NewService(resolver, appointments)

	bookings := booking.NewService(booking.Options{
		Store:    appointments,
		Windows:  slots,
		Settings: settings,
		Events:   outboxRepo,
		Clock:    clk,
		Location: loc,
		Logger:   logger,
	})

	var counter queue.Counter
	switch cfg.QueueCounter {
	case config.CounterMemory:
		counter = queue.NewMemoryCounter()
	case config.CounterRedis:
		counter = queue.NewRedisCounter(rdb, cfg.ServiceName+":queue")
	default:
		counter = queueRepo
	}
	walkIns := queue.NewManager(queue.Options{
		Store:    queueRepo,
		Counter:  counter,
		Settings: settings,
		Events:   outboxRepo,
		Clock:    clk,
		Location: loc,
		Logger:   logger,
	})

	cancels := cancellation.NewEngine(cancellation.Options{
		Store:      appointments,
		Fees:       fee.NewPercentCalculator(int32(cfg.CurrencyMinorUnits)),
		Reminders:  reminders.NewCanceller(reminderRepo, outboxRepo),
		Clock:      clk,
		Location:   loc,
		FeeTimeout: cfg.FeeTimeout,
		Logger:     logger,
	})

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.Routes{
		Availability: handlers.NewAvailabilityHandler(slots, resolver, logger),
		Appointments: handlers.NewAppointmentHandler(bookings, cancels, logger),
		Queue:        handlers.NewQueueHandler(walkIns, logger),
		Settings:     handlers.NewSettingsHandler(settingsRepo, defaults, logger),
	}.Register(mux)

	middleware := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key", httpx.RequestIDHeader},
			ExposedHeaders: []string{httpx.RequestIDHeader, "Retry-After", "X-RateLimit-Remaining"},
			MaxAge:         10 * time.Minute,
		}),
	}
	if cfg.RateLimitPerMinute > 0 {
		var limiter httpx.Limiter = httpx.NewMemoryLimiter(cfg.RateLimitPerMinute, time.Minute)
		if rdb != nil {
			limiter = httpx.NewRedisLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, cfg.ServiceName+":rl")
		}
		middleware = append(middleware, httpx.RateLimit(limiter, logger, true))
	}
	middleware = append(middleware,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
	httpHandler := otelhttp.NewHandler(httpx.Chain(mux, middleware...), cfg.ServiceName)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv, health := grpcx.NewServer(cfg.ServiceName)
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("grpc health server starting", "addr", grpcLis.Addr().String())
		if err := grpcSrv.Serve(grpcLis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		grpcx.WatchReadiness(gctx, health, cfg.ServiceName, 10*time.Second, runtime.CheckAll(checks...))
		return nil
	})
	if cfg.ReconcileEvery > 0 {
		g.Go(func() error { cancels.RunReconciler(gctx, cfg.ReconcileEvery, 100); return nil })
	}

	if cfg.KafkaEnabled() {
		publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:    cfg.KafkaBrokers,
			PollEvery:  cfg.OutboxPollEvery,
			BatchSize:  cfg.OutboxBatchSize,
			MaxBackoff: cfg.OutboxMaxBackoff,
		})
		payments := consumer.NewPaymentHandler(pool, inbox.NewRepository(), appointments, logger)
		paymentConsumer := consumer.New(logger, consumer.Config{
			Brokers:     cfg.KafkaBrokers,
			GroupID:     cfg.KafkaGroupID,
			Topic:       cfg.KafkaPaymentTopic,
			MaxAttempts: cfg.KafkaMaxAttempts,
		}, payments.Handle)

		g.Go(func() error { publisher.Run(gctx); return nil })
		g.Go(func() error { paymentConsumer.Run(gctx); return nil })
	} else {
		logger.Warn("kafka disabled; outbox events stay unpublished and payment sync is off")
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "err", err)
		}
		grpcSrv.GracefulStop()
		logger.Info("servers stopped")
		return nil
	})

	return g.Wait()
}
