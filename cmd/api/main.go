package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"promotion-engine/internal/cache"
	"promotion-engine/internal/config"
	"promotion-engine/internal/database"
	"promotion-engine/internal/events"
	"promotion-engine/internal/features"
	"promotion-engine/internal/handler"
	"promotion-engine/internal/metrics"
	"promotion-engine/internal/middleware"
	"promotion-engine/internal/service"
	"promotion-engine/internal/tracing"
)

func main() {
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to a YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		zlog.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := setupLogger(cfg.Logging)
	zlog.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewDBWithOptions(cfg.Database.Path, database.Options{
		BusyTimeout: time.Duration(cfg.Database.BusyTimeoutMS) * time.Millisecond,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("failed to initialize database")
	}
	defer db.Close()

	tracer, err := tracing.InitTracing(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.JaegerEndpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: os.Getenv("ENVIRONMENT"),
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to flush traces")
		}
	}()

	shippingCache, closeCache := setupCache(ctx, cfg.Cache, logger)
	defer closeCache()

	flags := features.NewDefaultManager(cfg.Features)

	// The sink closes after the manager has drained its in-flight handlers.
	eventManager := events.NewManager(flags.IsEnabled(features.EventHooks), logger)
	if len(cfg.Events.KafkaBrokers) > 0 {
		sink := events.NewKafkaSink(events.NewKafkaWriter(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic))
		sink.Attach(eventManager)
		defer sink.Close()
		logger.Info().Strs("brokers", cfg.Events.KafkaBrokers).Str("topic", cfg.Events.KafkaTopic).Msg("publishing events to kafka")
	}
	defer eventManager.Shutdown()

	m := metrics.New()

	// Initialize service
	svc := service.NewService(db, service.Options{
		Cache:    shippingCache,
		CacheTTL: cfg.Cache.CacheTTL(),
		Events:   eventManager,
		Features: flags,
		Metrics:  m,
		Tracer:   tracer,
		Logger:   logger,
	})

	// Initialize handlers
	h := handler.NewHandlerWithOptions(svc, handler.NewHandlerOptions{
		MaxBodySize: cfg.Security.MaxRequestBodySize,
		Health:      func(ctx context.Context) error { return db.Ping() },
	})

	// Setup router
	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing(cfg.Tracing.ServiceName))
	}

	if cfg.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second, cfg.RateLimit.Burst)
		defer rateLimiter.Stop()
		r.Use(middleware.RateLimit(rateLimiter))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.Security.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h.RegisterRoutes(r)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Bool("tls", cfg.Server.EnableTLS).
			Str("database", cfg.Database.Path).
			Str("cache", cfg.Cache.Backend).
			Msg("starting server")

		if cfg.Server.EnableTLS {
			serverErr <- server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
			return
		}
		serverErr <- server.ListenAndServe()
	}()

	// Graceful shutdown
	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("error shutting down server")
		}
	}
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := zerolog.New(os.Stdout)
	if cfg.Pretty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return out.With().Timestamp().Str("service", "promotion-engine").Logger()
}

// setupCache builds the shipping area cache. A Redis backend that cannot be
// reached falls back to the in-memory cache.
func setupCache(ctx context.Context, cfg config.CacheConfig, logger zerolog.Logger) (cache.Cache, func()) {
	if cfg.Backend != "redis" {
		return cache.NewInMemoryCache(), func() {}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rc, err := cache.NewRedisCache(pingCtx, cache.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Prefix:   cfg.Prefix,
	})
	if err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, using in-memory cache")
		return cache.NewInMemoryCache(), func() {}
	}
	return rc, func() { rc.Close() }
}

func allowedOrigins(value string) []string {
	var origins []string
	for _, o := range strings.Split(value, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
