package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "gamecatalog/catalogservice/internal/api/http"
	"gamecatalog/catalogservice/internal/app"
	"gamecatalog/catalogservice/internal/discovery"
	"gamecatalog/catalogservice/internal/metrics"
	"gamecatalog/catalogservice/internal/providers/igdb"
	"gamecatalog/catalogservice/internal/search"
	"gamecatalog/catalogservice/internal/telemetry"
)

const serviceName = "catalog-service"

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("configuration error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), serviceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("authURL", cfg.AuthURL),
		slog.String("catalogURL", cfg.CatalogURL),
		slog.Bool("hasClientSecret", cfg.ClientSecret != ""),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.Float64("catalogRateLimit", cfg.CatalogRateLimit),
		slog.Bool("tokenSingleFlight", cfg.TokenSingleFlight),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Duration("cacheTTL", cfg.CacheTTL),
		slog.Bool("cacheDisabled", cfg.CacheDisabled),
	)

	tokenClient := &http.Client{Timeout: cfg.RequestTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	catalogHTTP := &http.Client{Timeout: cfg.RequestTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}

	credentials := igdb.NewCredentialCache(igdb.CredentialConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		AuthURL:      cfg.AuthURL,
		Client:       tokenClient,
		SingleFlight: cfg.TokenSingleFlight,
		Logger:       logger,
	})
	catalog := igdb.NewClient(igdb.Config{
		BaseURL:   cfg.CatalogURL,
		ClientID:  credentials.ClientID(),
		Tokens:    credentials,
		Client:    catalogHTTP,
		RateLimit: cfg.CatalogRateLimit,
		Logger:    logger,
	})

	searchService := search.NewService(catalog, search.WithLogger(logger))
	discoveryService := discovery.NewService(catalog, buildDiscoveryOptions(cfg, logger)...)

	handler := apihttp.NewServer(searchService,
		apihttp.WithLogger(logger),
		apihttp.WithDiscovery(discoveryService),
		apihttp.WithImageBaseURL(cfg.ImageURL),
		apihttp.WithDefaultCover(cfg.DefaultCoverImage),
		apihttp.WithRateLimit(cfg.HTTPRateLimit, cfg.HTTPRateBurst),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2*cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("catalog service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("timeout", cfg.RequestTimeout),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("catalog service stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildDiscoveryOptions(cfg app.Config, logger *slog.Logger) []discovery.ServiceOption {
	opts := []discovery.ServiceOption{discovery.WithLogger(logger)}

	if cfg.CacheDisabled {
		return append(opts, discovery.WithCacheDisabled(true))
	}
	if cfg.CacheTTL > 0 {
		opts = append(opts, discovery.WithCacheTTL(cfg.CacheTTL))
	}

	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return opts
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory cache only", slog.String("error", err.Error()))
		return opts
	}
	redisClient := redis.NewClient(redisOpts)
	backend := discovery.NewRedisCacheBackend(redisClient)
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := backend.Ping(pingCtx); err != nil {
		logger.Warn("redis not reachable, using in-memory cache only", slog.String("error", err.Error()))
		_ = redisClient.Close()
		return opts
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return append(opts, discovery.WithRedisCache(backend))
}
