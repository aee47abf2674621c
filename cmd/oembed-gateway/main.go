package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/embedworks/monocle/internal/cache"
	"github.com/embedworks/monocle/internal/common/config"
	"github.com/embedworks/monocle/internal/common/configtypes"
	"github.com/embedworks/monocle/internal/common/logger"
	"github.com/embedworks/monocle/internal/common/metricsserver"
	"github.com/embedworks/monocle/internal/common/redis"
	"github.com/embedworks/monocle/internal/consumer"
	"github.com/embedworks/monocle/internal/events"
	"github.com/embedworks/monocle/internal/gateway"
	"github.com/embedworks/monocle/internal/kv"
	"github.com/embedworks/monocle/internal/metrics"
	"github.com/embedworks/monocle/internal/provider"
	"github.com/embedworks/monocle/internal/refresh"
	"github.com/embedworks/monocle/internal/registry"
	"github.com/embedworks/monocle/internal/render"
	"github.com/embedworks/monocle/internal/store"
)

func main() {
	configPath := flag.String("c", "configs/oembed-gateway.yaml", "path to configuration file")
	testMode := flag.Bool("t", false, "test configuration and exit")
	flag.Parse()

	initialLogger, err := logger.NewDefaultLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	if *testMode {
		os.Exit(runConfigTest(*configPath))
	}

	initialLogger.Info("Starting OEmbed Gateway", zap.String("config_path", *configPath))

	cfg, err := config.LoadEngineConfig(*configPath, initialLogger.Logger)
	if err != nil {
		initialLogger.Fatal("Failed to load config", zap.Error(err))
	}

	dynamicLogger, err := logger.NewLoggerWithStartupOverride(cfg.Log)
	if err != nil {
		initialLogger.Fatal("Failed to create configured logger", zap.Error(err))
	}
	defer dynamicLogger.Sync()

	engLogger := dynamicLogger.Logger
	if cfg.EngineID != "" {
		engLogger = engLogger.With(zap.String("engine", cfg.EngineID))
	}

	redisClient, err := redis.NewClient(&cfg.Redis, engLogger)
	if err != nil {
		engLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	emitter, err := setupEvents(cfg.Events, cfg.EngineID, engLogger)
	if err != nil {
		engLogger.Fatal("Failed to initialize event emitters", zap.Error(err))
	}
	if emitter != nil {
		defer emitter.Close()
	}

	collector := metrics.NewCollector(cfg.Metrics.Namespace, engLogger)
	metricsServer, err := metricsserver.StartMetricsServer(
		cfg.Metrics.Enabled,
		cfg.Metrics.Listen,
		cfg.Metrics.Path,
		collector,
		engLogger,
	)
	if err != nil {
		engLogger.Fatal("Failed to start metrics server", zap.Error(err))
	}

	resourceCache := cache.New(kv.NewRedisBackend(redisClient), cache.Config{
		KeyPrefix:       cfg.Cache.KeyPrefix,
		Age:             cfg.Cache.Age.ToDuration(),
		Compression:     cfg.Cache.Compression,
		MinCompressSize: cfg.Cache.MinCompressSize,
	}, emitter, collector, engLogger)

	providerStore, storeCloser, err := setupStore(&cfg.Providers.Store, engLogger)
	if err != nil {
		engLogger.Fatal("Failed to initialize provider store", zap.Error(err))
	}
	if storeCloser != nil {
		defer storeCloser()
	}

	enqueuer := refresh.NewRedisEnqueuer(redisClient, cfg.Cache.KeyPrefix, cfg.Queue.Name, engLogger)
	freshness := provider.Freshness{
		MinTTL:     cfg.Resources.MinTTL.ToDuration(),
		DefaultTTL: cfg.Resources.DefaultTTL.ToDuration(),
	}

	factory := func(record store.Record) (provider.Provider, error) {
		return provider.NewExternal(record, resourceCache, enqueuer, freshness, collector, engLogger)
	}

	reg := registry.New(providerStore, factory, emitter, engLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg.EnsurePopulated(ctx)
	startStoreWatch(ctx, &cfg.Providers.Store, providerStore, reg, engLogger)

	urlize := cfg.Resources.ShouldUrlizeInvalid()
	renderer, err := render.New(render.Config{UrlizeInvalid: urlize}, engLogger)
	if err != nil {
		engLogger.Fatal("Failed to initialize renderer", zap.Error(err))
	}

	enricher := consumer.New(reg, renderer, emitter, collector, consumer.Config{}, engLogger)
	prefetcher := consumer.New(reg, renderer, emitter, collector, consumer.Config{
		SkipInternal: !cfg.Providers.CacheInternal,
	}, engLogger)

	publicServer := gateway.NewServer(reg, redisClient, collector, cfg.Server.Timeout.ToDuration(), engLogger)

	var internalServer *gateway.InternalServer
	if cfg.Internal.Listen != "" {
		internalServer = gateway.NewInternalServer(cfg.Internal.AuthKey, engLogger)
		gateway.NewInternalAPI(enricher, prefetcher, reg, engLogger).RegisterRoutes(internalServer)
		go func() {
			if err := internalServer.Start(cfg.Internal.Listen); err != nil {
				engLogger.Error("Internal server failed", zap.Error(err))
			}
		}()
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- publicServer.Start(cfg.Server.Listen)
	}()

	// Give the listener a moment to fail fast on a bad address.
	time.Sleep(100 * time.Millisecond)
	select {
	case err := <-serverErrors:
		engLogger.Fatal("Server failed to start", zap.Error(err))
	default:
	}

	engLogger.Info("OEmbed Gateway started",
		zap.String("listen", cfg.Server.Listen),
		zap.String("internal_listen", cfg.Internal.Listen),
		zap.String("queue", cfg.Queue.Name))

	dynamicLogger.SwitchToConfiguredLevel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		engLogger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serverErrors:
		engLogger.Error("Server error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if internalServer != nil {
		if err := internalServer.Shutdown(shutdownCtx); err != nil {
			engLogger.Error("Internal server shutdown failed", zap.Error(err))
		}
	}
	if err := publicServer.Shutdown(shutdownCtx); err != nil {
		engLogger.Error("Gateway shutdown failed", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.ShutdownWithContext(shutdownCtx); err != nil {
			engLogger.Error("Metrics server shutdown failed", zap.Error(err))
		}
	}

	engLogger.Info("OEmbed Gateway stopped")
}

// runConfigTest loads and validates the config, printing the outcome the
// way an init system expects.
func runConfigTest(path string) int {
	silent := zap.NewNop()
	if _, err := config.LoadEngineConfig(path, silent); err != nil {
		fmt.Fprintf(os.Stderr, "configuration test failed: %v\n", err)
		return 1
	}
	fmt.Println("OK")
	return 0
}

// setupEvents builds the configured event pipeline: file and ClickHouse
// sinks behind a non-blocking dispatcher, tagged with the engine ID.
// Returns nil when no sink is enabled.
func setupEvents(cfg *configtypes.EventsConfig, engineID string, logger *zap.Logger) (events.Emitter, error) {
	if cfg == nil {
		return nil, nil
	}

	var sinks []events.Emitter
	if cfg.File != nil && cfg.File.Enabled {
		fileEmitter, err := events.NewFileEmitter(*cfg.File, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fileEmitter)
	}
	if cfg.ClickHouse != nil && cfg.ClickHouse.Enabled {
		chEmitter, err := events.NewClickHouseEmitter(*cfg.ClickHouse, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, chEmitter)
	}
	if len(sinks) == 0 {
		return nil, nil
	}

	var sink events.Emitter = sinks[0]
	if len(sinks) > 1 {
		sink = events.NewMultiEmitter(sinks, logger)
	}

	dispatcher := events.NewDispatcher(sink, cfg.BufferSize, logger)
	if engineID == "" {
		return dispatcher, nil
	}
	return events.NewTagged(dispatcher, engineID), nil
}

// setupStore builds the external provider store. The returned closer
// releases store resources on shutdown.
func setupStore(cfg *configtypes.StoreConfig, logger *zap.Logger) (store.Store, func(), error) {
	switch cfg.Source {
	case configtypes.StoreSourceFile:
		fs := store.NewFileStore(cfg.File.Path, logger)
		return fs, func() { _ = fs.Close() }, nil
	case configtypes.StoreSourceMySQL:
		ss, err := store.NewSQLStore(cfg.MySQL, logger)
		if err != nil {
			return nil, nil, err
		}
		return ss, func() { _ = ss.Close() }, nil
	default:
		return nil, nil, nil
	}
}

// startStoreWatch keeps the registry in sync with store changes, when
// the backend supports watching and the config asks for it.
func startStoreWatch(ctx context.Context, cfg *configtypes.StoreConfig, providerStore store.Store, reg *registry.Registry, logger *zap.Logger) {
	if providerStore == nil {
		return
	}

	type watchable interface {
		Watch(ctx context.Context, onUpsert store.UpsertFunc, onRemove store.RemoveFunc) error
	}

	if cfg.Source == configtypes.StoreSourceFile && (cfg.File == nil || !cfg.File.Watch) {
		return
	}

	w, ok := providerStore.(watchable)
	if !ok {
		return
	}

	go func() {
		if err := w.Watch(ctx, reg.Upsert, reg.Remove); err != nil {
			logger.Error("Provider store watch failed", zap.Error(err))
		}
	}()
}
