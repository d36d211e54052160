package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/dentalbook/libs/config"
	"github.com/md-rashed-zaman/dentalbook/libs/db"
	"github.com/md-rashed-zaman/dentalbook/libs/grpcx"
	"github.com/md-rashed-zaman/dentalbook/libs/httpx"
	"github.com/md-rashed-zaman/dentalbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/dentalbook/libs/otel"
	"github.com/md-rashed-zaman/dentalbook/libs/runtime"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/catalog"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/inbox"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/scheduling"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := loadSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.Service, cfg.LogLevel)

	ctx, stop := runtime.SignalContext(context.Background())
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var readyChecks []runtime.ReadyCheck

	var cache redis.Cmdable
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
		cache = rdb
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	var (
		store    storage.Store
		recorder inbox.Recorder
		pool     *db.Pool
	)
	switch cfg.StoreDriver {
	case storeMemory:
		logger.Warn("using in-memory store; data and domain events are lost on restart")
		store = storage.NewMemoryStore()
		recorder = inbox.NewMemory()
	default:
		pool, err = db.Open(ctx, cfg.DatabaseURL, db.Options{MaxConns: int32(cfg.DBMaxConns)})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		store = storage.NewRepository(pool, outbox.NewRepository())
		recorder = inbox.NewRepository(pool)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	}

	durations := catalog.NewDurations(store, logger, catalog.Options{
		Redis:         cache,
		TTL:           cfg.DurationCacheTTL,
		OnCacheLookup: m.ObserveCacheLookup,
	})
	svc := scheduling.NewService(store, durations, m, logger, scheduling.Config{
		Location:            cfg.Location,
		DefaultSlotMinutes:  cfg.DefaultSlotMinutes,
		EnforceWorkingHours: cfg.EnforceWorkingHours,
	})

	if len(cfg.KafkaBrokers) > 0 {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
		startWorkers(ctx, cfg, logger, m, pool, store, recorder, durations)
	} else {
		logger.Warn("KAFKA_BROKERS not set; outbox publisher and catalog consumer disabled")
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	api := handlers.NewSchedulingHandler(svc, logger).Routes()
	mux.Handle("/api/", httpx.Chain(api,
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{AllowedOrigins: cfg.CORSOrigins, MaxAge: 10 * time.Minute}),
		rateLimit(ctx, cfg, logger, rdb),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(cfg.RequestTimeout),
	))
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv, health := grpcx.NewServer(logger)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		os.Exit(1)
	}
	health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	health.SetServingStatus(cfg.Service, healthpb.HealthCheckResponse_SERVING)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()
	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcSrv.GracefulStop()
	logger.Info("servers stopped")
}

// startWorkers runs the outbox publisher (Postgres only) and the catalog consumer.
func startWorkers(ctx context.Context, cfg settings, logger *slog.Logger, m *metrics.Metrics, pool *db.Pool,
	store storage.Store, recorder inbox.Recorder, durations *catalog.Durations) {
	if pool != nil {
		writer := kafkax.NewWriter(cfg.KafkaBrokers)
		publisher := outbox.NewPublisher(pool, outbox.NewRepository(), writer, logger, outbox.PublisherConfig{
			PollEvery: cfg.OutboxPollEvery,
			BatchSize: cfg.OutboxBatchSize,
			OnPublish: m.ObservePublished,
		})
		go func() {
			publisher.Run(ctx)
			_ = writer.Close()
		}()
	}

	if cfg.KafkaCatalogTopic == "" {
		return
	}
	events := catalog.NewEventHandler(store, durations, logger)
	c := consumer.New(logger, recorder, consumer.Config{
		Brokers: cfg.KafkaBrokers,
		GroupID: cfg.KafkaGroupID,
		Topic:   cfg.KafkaCatalogTopic,
		Observe: m.ObserveConsumed,
	}, events.Handle)
	go c.Run(ctx)
}

// rateLimit shares the budget across replicas through Redis when it is configured.
func rateLimit(ctx context.Context, cfg settings, logger *slog.Logger, rdb *redis.Client) httpx.Middleware {
	if cfg.RateLimitPerMinute <= 0 {
		return nil
	}
	if rdb != nil {
		return httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "ratelimit:"+cfg.Service).
			Middleware(logger, true)
	}

	rl := httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				rl.Sweep()
			}
		}
	}()
	return rl.Middleware()
}
