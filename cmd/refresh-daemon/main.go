package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/embedworks/monocle/internal/cache"
	"github.com/embedworks/monocle/internal/common/config"
	"github.com/embedworks/monocle/internal/common/configtypes"
	"github.com/embedworks/monocle/internal/common/logger"
	"github.com/embedworks/monocle/internal/common/redis"
	"github.com/embedworks/monocle/internal/events"
	"github.com/embedworks/monocle/internal/kv"
	"github.com/embedworks/monocle/internal/refresh"
	"github.com/embedworks/monocle/internal/refreshd"
)

func main() {
	configPath := flag.String("c", "configs/refresh-daemon.yaml", "path to refresh-daemon configuration file")
	testMode := flag.Bool("t", false, "test configuration and exit")
	flag.Parse()

	initialLogger, err := logger.NewDefaultLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	if *testMode {
		os.Exit(runConfigTest(*configPath))
	}

	initialLogger.Info("Starting Refresh Daemon", zap.String("config_path", *configPath))

	daemonConfig, err := config.LoadDaemonConfig(*configPath, initialLogger.Logger)
	if err != nil {
		initialLogger.Fatal("Failed to load refresh-daemon config", zap.Error(err))
	}

	// The daemon reuses the gateway's cache, fetch and queue sections so
	// both services agree on keys and endpoints.
	engineConfig, err := config.LoadEngineConfig(
		resolveEngineConfigPath(*configPath, daemonConfig.EngineConfig),
		initialLogger.Logger,
	)
	if err != nil {
		initialLogger.Fatal("Failed to load engine config", zap.Error(err))
	}

	dynamicLogger, err := logger.NewLoggerWithStartupOverride(daemonConfig.Logging)
	if err != nil {
		initialLogger.Fatal("Failed to create configured logger", zap.Error(err))
	}
	defer dynamicLogger.Sync()

	zapLogger := dynamicLogger.With(zap.String("daemon_id", daemonConfig.DaemonID))

	redisClient, err := redis.NewClient(&daemonConfig.Redis, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	emitter, err := setupEvents(engineConfig.Events, daemonConfig.DaemonID, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize event emitters", zap.Error(err))
	}
	if emitter != nil {
		defer emitter.Close()
	}

	resourceCache := cache.New(kv.NewRedisBackend(redisClient), cache.Config{
		KeyPrefix:       engineConfig.Cache.KeyPrefix,
		Age:             engineConfig.Cache.Age.ToDuration(),
		Compression:     engineConfig.Cache.Compression,
		MinCompressSize: engineConfig.Cache.MinCompressSize,
	}, emitter, nil, zapLogger)

	fetcher := refresh.NewFetcher(fetcherConfig(&engineConfig.Fetch), resourceCache, emitter, nil, zapLogger)

	daemon, err := refreshd.New(
		daemonConfig,
		redisClient,
		fetcher,
		engineConfig.Cache.KeyPrefix,
		engineConfig.Queue.Name,
		zapLogger,
	)
	if err != nil {
		zapLogger.Fatal("Failed to create refresh daemon", zap.Error(err))
	}

	ctx := context.Background()
	if err := daemon.Start(ctx); err != nil {
		zapLogger.Fatal("Failed to start daemon components", zap.Error(err))
	}

	zapLogger.Info("Refresh daemon started",
		zap.String("daemon_id", daemonConfig.DaemonID),
		zap.String("queue", engineConfig.Queue.Name),
		zap.String("key_prefix", engineConfig.Cache.KeyPrefix))

	dynamicLogger.SwitchToConfiguredLevel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	zapLogger.Info("Shutdown signal received", zap.String("signal", sig.String()))

	if err := daemon.Shutdown(); err != nil {
		zapLogger.Error("Daemon shutdown failed", zap.Error(err))
	}

	zapLogger.Info("Refresh daemon stopped")
}

// resolveEngineConfigPath resolves the engine config reference relative
// to the daemon config's directory.
func resolveEngineConfigPath(daemonConfigPath, engineConfigPath string) string {
	if filepath.IsAbs(engineConfigPath) {
		return engineConfigPath
	}
	return filepath.Join(filepath.Dir(daemonConfigPath), engineConfigPath)
}

// fetcherConfig maps the engine fetch section onto the fetcher.
func fetcherConfig(cfg *configtypes.FetchConfig) refresh.FetcherConfig {
	out := refresh.FetcherConfig{
		Timeout:    cfg.Timeout.ToDuration(),
		MaxRetries: cfg.RetryCount(),
		RetryDelay: cfg.RetryDelay.ToDuration(),
		UserAgent:  cfg.UserAgent,
	}
	if cfg.RateLimit != nil {
		out.RequestsPerSecond = cfg.RateLimit.RPS
		out.Burst = cfg.RateLimit.Burst
	}
	return out
}

// runConfigTest loads and validates both config files, printing the
// outcome the way an init system expects.
func runConfigTest(path string) int {
	silent := zap.NewNop()
	daemonConfig, err := config.LoadDaemonConfig(path, silent)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration test failed: %v\n", err)
		return 1
	}
	if _, err := config.LoadEngineConfig(resolveEngineConfigPath(path, daemonConfig.EngineConfig), silent); err != nil {
		fmt.Fprintf(os.Stderr, "engine configuration test failed: %v\n", err)
		return 1
	}
	fmt.Println("OK")
	return 0
}

// setupEvents builds the engine-configured event pipeline for refresh
// outcome events. Returns nil when no sink is enabled.
func setupEvents(cfg *configtypes.EventsConfig, daemonID string, logger *zap.Logger) (events.Emitter, error) {
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
	if daemonID == "" {
		return dispatcher, nil
	}
	return events.NewTagged(dispatcher, daemonID), nil
}
