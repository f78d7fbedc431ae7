package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/aviary-social/aviary/client"
	"github.com/aviary-social/aviary/internal/application"
	"github.com/aviary-social/aviary/internal/config"
	"github.com/aviary-social/aviary/internal/domain"
	"github.com/aviary-social/aviary/internal/infrastructure/database"
	"github.com/aviary-social/aviary/internal/infrastructure/gateway"
	"github.com/aviary-social/aviary/internal/infrastructure/repository"
	"github.com/aviary-social/aviary/internal/present/rest"
	"github.com/aviary-social/aviary/internal/present/rest/middleware"
	"github.com/aviary-social/aviary/internal/service"
	"github.com/aviary-social/aviary/internal/usecase"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	configPath := os.Getenv("AVIARY_CONFIG")
	if configPath == "" {
		configPath = "/etc/aviary/config.yaml"
	}
	conf, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.String("error", err.Error()))
		os.Exit(1)
	}

	db, err := database.NewPostgres(conf.Server.PostgresDsn)
	if err != nil {
		slog.Error("failed to connect database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := database.MigratePostgres(db); err != nil {
		slog.Error("failed to migrate database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configRepo := repository.NewConfigRepository(db)
	feedRepo := repository.NewFeedRepository(db)
	relationRepo := repository.NewRelationRepository(db)

	identity, plcDirectory := loadIdentity(ctx, configRepo)

	var mc *memcache.Client
	if conf.Server.MemcachedAddr != "" {
		mc = database.NewMemcached(conf.Server.MemcachedAddr)
	}
	resolver := client.New(plcDirectory, mc)

	var signalPublisher usecase.SignalPublisher
	if conf.Server.RedisAddr != "" {
		rdb := database.NewRedis(conf.Server.RedisAddr, conf.Server.RedisPassword, conf.Server.RedisDB)
		signalPublisher = service.NewSignalService(rdb)
	}

	authService := service.NewAuthService(identity, resolver)
	ingestUsecase := usecase.NewIngestUsecase(feedRepo, signalPublisher)
	feedUsecase := usecase.NewFeedUsecase(feedRepo)
	relationUsecase := usecase.NewRelationUsecase(relationRepo)

	if conf.Server.EnableTrace {
		cleanup, err := setupTraceProvider(ctx, conf.Server.TraceEndpoint)
		if err != nil {
			slog.Error("failed to setup trace provider", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer cleanup()
	}

	source := gateway.NewJetstreamGateway(conf.Jetstream.Endpoints)
	ingester := application.NewIngester(ingestUsecase, feedRepo, configRepo, source)
	ingesterDone := make(chan struct{})
	go func() {
		defer close(ingesterDone)
		if err := ingester.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("ingester stopped", slog.String("error", err.Error()))
			stop()
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Use(otelecho.Middleware("aviary"))
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	handler := rest.NewHandler(feedUsecase, relationUsecase, identity)
	handler.Routes(e, middleware.Auth(authService))

	go func() {
		if err := e.Start(conf.Server.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server stopped", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", slog.String("error", err.Error()))
	}
	<-ingesterDone
}

// loadIdentity reads the operator-provisioned identity from the durable
// config store. The service cannot answer for itself without these keys,
// so their absence is fatal.
func loadIdentity(ctx context.Context, configRepo *repository.ConfigRepository) (domain.ServiceIdentity, string) {
	required := func(key string) string {
		value, err := configRepo.Get(ctx, key)
		if err != nil || value == "" {
			slog.Error("missing required config key", slog.String("key", key))
			os.Exit(1)
		}
		return value
	}

	identity := domain.ServiceIdentity{
		ServiceDid:      required(domain.ConfigKeyServiceDid),
		PublisherDid:    required(domain.ConfigKeyPublisherDid),
		ServiceEndpoint: required(domain.ConfigKeyServiceEndpoint),
		FeedRkey:        domain.DefaultFeedRkey,
	}
	if rkey, err := configRepo.Get(ctx, domain.ConfigKeyFeedRkey); err == nil && rkey != "" {
		identity.FeedRkey = rkey
	}

	return identity, required(domain.ConfigKeyPlcDirectory)
}

func setupTraceProvider(ctx context.Context, endpoint string) (func(), error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String("aviary"),
		),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			slog.Error("trace provider shutdown failed", slog.String("error", err.Error()))
		}
	}, nil
}
