// Package main is the entry point for the storedesk server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/pitabwire/storedesk/internal/backend"
	"github.com/pitabwire/storedesk/internal/config"
	"github.com/pitabwire/storedesk/internal/observability"
	"github.com/pitabwire/storedesk/internal/pricing"
	"github.com/pitabwire/storedesk/internal/querycache"
	"github.com/pitabwire/storedesk/internal/resource"
	"github.com/pitabwire/storedesk/internal/transport"
	"github.com/pitabwire/storedesk/internal/views"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.StringP("config", "c", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "storedesk", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Commerce API client.
	api := backend.New(cfg.API,
		backend.WithLogger(logger.Named("backend")),
		backend.WithRecorder(metrics),
	)

	// Step 5: Query cache, optionally shared across instances over Redis.
	cacheOpts := []querycache.Option{
		querycache.WithLogger(logger.Named("querycache")),
		querycache.WithRecorder(metrics),
	}
	var broadcaster *querycache.RedisBroadcaster
	var redisClient *redis.Client
	if cfg.Invalidation.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Invalidation.Addr,
			Password: cfg.Invalidation.Password,
			DB:       cfg.Invalidation.DB,
		})
		broadcaster = querycache.NewRedisBroadcaster(redisClient,
			querycache.WithChannel(cfg.Invalidation.Channel),
			querycache.WithBroadcasterLogger(logger.Named("invalidation")),
		)
		cacheOpts = append(cacheOpts, querycache.WithPublisher(broadcaster))
	}

	cache, err := querycache.New(querycache.Config{
		Capacity:           cfg.Cache.Capacity,
		NumShards:          cfg.Cache.NumShards,
		TTL:                cfg.Cache.TTL,
		EvictionPercentage: cfg.Cache.EvictionPercentage,
	}, cacheOpts...)
	if err != nil {
		logger.Error("query cache initialization failed", zap.Error(err))
		return 1
	}

	// Step 6: Resources, views and pricing flows.
	services := resource.New(api, cache,
		resource.WithLogger(logger.Named("resource")),
		resource.WithRecorder(metrics),
	)
	pages := views.NewPageProvider(services)
	pricingFlows := pricing.NewService(services.Products, services.VendorPrices, services.VendorInventory, logger.Named("pricing"))

	// Step 7: Build HTTP router.
	readiness := observability.ReadinessChecks{CommerceAPI: api}
	if broadcaster != nil {
		readiness.InvalidationBus = observability.CheckFunc(broadcaster.Ping)
	}

	jwks := transport.NewKeySet(cfg.Identity, logger.Named("jwks"))
	router := transport.NewRouter(transport.Dependencies{
		Config:         cfg,
		Logger:         logger,
		Metrics:        metrics,
		Readiness:      readiness,
		Authenticate:   transport.VerifyBearer(cfg.Identity, jwks, logger),
		Views:          pages,
		CustomerGroups: services.CustomerGroups,
		VendorPrices:   services.VendorPrices,
		Inventory:      services.VendorInventory,
		Pricing:        pricingFlows,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 8: Start background tasks.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	if broadcaster != nil {
		go runInvalidationListener(bgCtx, broadcaster, cache, logger)
	}

	// Step 9: Start HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Strings("views", pages.IDs()),
		zap.Bool("shared_invalidation", broadcaster != nil),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	bgCancel()

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("redis close error", zap.Error(err))
		}
	}

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// runInvalidationListener keeps the cross-instance subscription alive,
// resubscribing with a growing delay after failures, until ctx ends.
func runInvalidationListener(ctx context.Context, b *querycache.RedisBroadcaster, cache *querycache.Client, logger *zap.Logger) {
	delay := time.Second
	for {
		err := b.Listen(ctx, cache, nil)
		if ctx.Err() != nil {
			return
		}
		logger.Warn("query invalidation listener stopped, resubscribing",
			zap.Error(err),
			zap.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, 30*time.Second)
	}
}
