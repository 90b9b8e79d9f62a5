package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/md-rashed-zaman/apptbook/libs/config"
	"github.com/md-rashed-zaman/apptbook/libs/db"
	"github.com/md-rashed-zaman/apptbook/libs/httpx"
	"github.com/md-rashed-zaman/apptbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/apptbook/libs/otel"
	"github.com/md-rashed-zaman/apptbook/libs/runtime"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/followup"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = godotenv.Load(".env")

	service := config.String("SERVICE_NAME", "booking-service")
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))
	port, err := config.Port("PORT", "8083")
	if err != nil {
		runtime.Fatal(logger, "invalid config", err)
	}
	internalPort, err := config.Port("INTERNAL_PORT", "8084")
	if err != nil {
		runtime.Fatal(logger, "invalid config", err)
	}
	trustedProxies, err := httpx.ParseTrustedProxies(config.String("TRUSTED_PROXIES", ""))
	if err != nil {
		runtime.Fatal(logger, "invalid config", err)
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			_ = runtime.WithShutdownTimeout(5*time.Second, otelShutdown)
		}()
	}

	tzName := config.String("BUSINESS_TIMEZONE", "")
	loc, fellBack, err := availability.LoadLocation(tzName, availability.DefaultTimezone)
	if err != nil {
		runtime.Fatal(logger, "timezone setup failed", err)
	}
	if fellBack && tzName != "" {
		logger.Warn("invalid business timezone, using fallback", "configured", tzName, "timezone", loc.String())
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		runtime.Fatal(logger, "invalid config", err)
	}
	pool, err := db.Open(ctx, dbURL, db.PoolConfig{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		MinConns: int32(config.Int("DB_MIN_CONNS", 1)),
	})
	if err != nil {
		runtime.Fatal(logger, "db connection failed", err)
	}
	defer pool.Close()

	if config.Bool("DB_MIGRATE", true) {
		if err := storage.Migrate(ctx, pool); err != nil {
			runtime.Fatal(logger, "db migration failed", err)
		}
	}

	collector := metrics.New("apptbook_booking", prometheus.DefaultRegisterer)

	outboxRepo := outbox.NewRepository()
	bookingRepo := storage.NewBookingRepository(pool, outboxRepo)
	catalogRepo := storage.NewCatalogRepository(pool)
	engine := booking.NewEngine(bookingRepo, catalogRepo, loc, logger, booking.WithRecorder(collector))

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		Retention: config.Duration("OUTBOX_RETENTION", 7*24*time.Hour),
		Observer:  collector,
	})
	go publisher.Run(ctx)

	followupWorker := followup.NewWorker(storage.NewFollowupRepository(pool, outboxRepo), newNotifier(logger), followup.SettingsFromEnv(), logger, followup.WorkerConfig{
		Interval:  config.Duration("FOLLOWUP_INTERVAL", time.Minute),
		BatchSize: config.Int("FOLLOWUP_BATCH_SIZE", 50),
		Backoff:   config.Duration("FOLLOWUP_RETRY_BACKOFF", time.Hour),
		Observer:  collector,
	})
	go followupWorker.Run(ctx)

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if brokers := publisher.Brokers(); len(brokers) > 0 {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	limiter, limiterCheck, closeLimiter, err := newRateLimiter(
		config.String("REDIS_URL", ""),
		config.Int("PUBLIC_RATE_LIMIT_PER_MINUTE", 60),
	)
	if err != nil {
		runtime.Fatal(logger, "rate limiter setup failed", err)
	}
	defer closeLimiter()
	if limiterCheck != nil {
		checks = append(checks, *limiterCheck)
	}

	public := publicMiddleware(
		config.String("PUBLIC_CORS_ORIGINS", "*"),
		limiter,
		trustedProxies,
		config.Bool("RATE_LIMIT_FAIL_OPEN", true),
		logger,
	)

	handler := handlers.NewBookingHandler(engine, catalogRepo, logger)
	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", promhttp.Handler())
	handler.Register(mux, public)

	// Status changes come from staff tooling on the private network only.
	internalMux := http.NewServeMux()
	handler.RegisterInternal(internalMux)

	chain := func(h http.Handler, operation string) http.Handler {
		h = httpx.Chain(h,
			httpx.WithRequestID,
			httpx.WithRecover(logger),
			httpx.WithAccessLog(logger, collector.ObserveHTTP),
			httpx.WithBodyLimit(1<<20),
			httpx.WithTimeout(config.Duration("HTTP_HANDLER_TIMEOUT", 15*time.Second)),
		)
		return otelhttp.NewHandler(h, operation)
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           chain(mux, "booking"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	internalSrv := &http.Server{
		Addr:              net.JoinHostPort(config.String("INTERNAL_BIND_HOST", "127.0.0.1"), internalPort),
		Handler:           chain(internalMux, "booking-internal"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := startGrpcServer(ctx, logger); err != nil {
		runtime.Fatal(logger, "grpc server setup failed", err)
	}

	for _, s := range []*http.Server{srv, internalSrv} {
		go func(s *http.Server) {
			logger.Info("http server starting", "addr", s.Addr, "timezone", loc.String())
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "addr", s.Addr, "err", err)
			}
		}(s)
	}

	<-ctx.Done()
	if err := runtime.WithShutdownTimeout(10*time.Second, func(ctx context.Context) error {
		return errors.Join(srv.Shutdown(ctx), internalSrv.Shutdown(ctx))
	}); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
