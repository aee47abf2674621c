// Package config loads and validates the engine and daemon YAML
// configuration files. Unknown keys are rejected; every tunable the
// engine understands has a default applied here and nowhere else.
package config

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/embedworks/monocle/internal/common/configtypes"
	"github.com/embedworks/monocle/internal/common/yamlutil"
)

// Type aliases so callers can import just this package
type (
	EngineConfig = configtypes.EngineConfig
	DaemonConfig = configtypes.DaemonConfig
)

// LoadEngineConfig loads the oembed-gateway configuration from a YAML file.
func LoadEngineConfig(path string, logger *zap.Logger) (*EngineConfig, error) {
	logger.Info("Loading engine configuration", zap.String("path", path))

	var cfg EngineConfig
	if err := yamlutil.UnmarshalFileStrict(path, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	applyEngineDefaults(&cfg)

	logger.Info("Engine configuration loaded",
		zap.String("server_listen", cfg.Server.Listen),
		zap.String("redis_addr", cfg.Redis.Addr),
		zap.String("cache_key_prefix", cfg.Cache.KeyPrefix),
		zap.String("provider_store", cfg.Providers.Store.Source))

	return &cfg, nil
}

// LoadDaemonConfig loads the refresh-daemon configuration from a YAML file.
func LoadDaemonConfig(path string, logger *zap.Logger) (*DaemonConfig, error) {
	logger.Info("Loading daemon configuration", zap.String("path", path))

	var cfg DaemonConfig
	if err := yamlutil.UnmarshalFileStrict(path, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	applyDaemonDefaults(&cfg)

	logger.Info("Daemon configuration loaded",
		zap.String("daemon_id", cfg.DaemonID),
		zap.String("engine_config", cfg.EngineConfig),
		zap.String("redis_addr", cfg.Redis.Addr))

	return &cfg, nil
}

// applyEngineDefaults fills unset engine settings with their defaults.
func applyEngineDefaults(cfg *EngineConfig) {
	applyLogDefaults(&cfg.Log)

	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = configtypes.DefaultCacheKeyPrefix
	}
	if cfg.Cache.Age == 0 {
		cfg.Cache.Age = configtypes.DefaultCacheAge
	}
	if cfg.Cache.Compression == "" {
		cfg.Cache.Compression = configtypes.CompressionSnappy
	}
	if cfg.Cache.MinCompressSize == 0 {
		cfg.Cache.MinCompressSize = configtypes.DefaultMinCompressSize
	}

	if cfg.Resources.MinTTL == 0 {
		cfg.Resources.MinTTL = configtypes.DefaultMinTTL
	}
	if cfg.Resources.DefaultTTL == 0 {
		cfg.Resources.DefaultTTL = configtypes.DefaultDefaultTTL
	}
	if len(cfg.Resources.DefaultDimensions) == 0 {
		cfg.Resources.DefaultDimensions = configtypes.DefaultDimensions()
	}

	if cfg.Providers.Store.Source == "" {
		cfg.Providers.Store.Source = configtypes.StoreSourceNone
	}
	if cfg.Providers.Store.MySQL != nil && cfg.Providers.Store.MySQL.PollInterval == 0 {
		cfg.Providers.Store.MySQL.PollInterval = configtypes.DefaultStorePoll
	}

	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = configtypes.DefaultUserAgent
	}
	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = configtypes.DefaultFetchTimeout
	}
	if cfg.Fetch.RetryDelay == 0 {
		cfg.Fetch.RetryDelay = configtypes.DefaultRetryDelay
	}

	if cfg.Queue.Name == "" {
		cfg.Queue.Name = configtypes.DefaultQueueName
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// applyDaemonDefaults fills unset daemon settings with their defaults.
func applyDaemonDefaults(cfg *DaemonConfig) {
	applyLogDefaults(&cfg.Logging)

	if cfg.Workers.PoolSize == "" {
		cfg.Workers.PoolSize = configtypes.PoolSizeAuto
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// applyLogDefaults enables console output when nothing is configured and
// fills format defaults.
func applyLogDefaults(log *configtypes.LogConfig) {
	if !log.Console.Enabled && !log.File.Enabled {
		log.Console.Enabled = true
	}
	if log.Console.Format == "" {
		log.Console.Format = configtypes.LogFormatConsole
	}
	if log.File.Format == "" {
		log.File.Format = configtypes.LogFormatText
	}
}
