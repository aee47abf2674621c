package configtypes

import (
	"fmt"
	"time"

	"github.com/embedworks/monocle/pkg/types"
)

// Engine setting defaults. Every tunable has a default so a minimal config
// file only needs listen addresses and a Redis address.
const (
	DefaultCacheKeyPrefix  = "MONOCLE"
	DefaultCacheAge        = types.Duration(30 * 24 * time.Hour)
	DefaultMinTTL          = types.Duration(time.Hour)
	DefaultDefaultTTL      = types.Duration(7 * 24 * time.Hour)
	DefaultFetchTimeout    = types.Duration(3 * time.Second)
	DefaultRetryDelay      = types.Duration(time.Second)
	DefaultMaxRetries      = 3
	DefaultQueueName       = "monocle"
	DefaultUserAgent       = "Mozilla/5.0"
	DefaultMinCompressSize = 1024
	DefaultStorePoll       = types.Duration(30 * time.Second)
)

// DefaultDimensions returns the built-in size ladder used by internal
// providers when a config does not override it: square steps from 100x100
// up to 900x900.
func DefaultDimensions() []types.Dimension {
	dims := make([]types.Dimension, 0, 9)
	for size := 100; size <= 900; size += 100 {
		dims = append(dims, types.Dimension{Width: size, Height: size})
	}
	return dims
}

// EngineConfig is the root configuration for the oembed-gateway service.
type EngineConfig struct {
	EngineID  string          `yaml:"engine_id,omitempty"`
	Server    ServerConfig    `yaml:"server"`
	Internal  InternalConfig  `yaml:"internal"`
	Redis     RedisConfig     `yaml:"redis"`
	Cache     CacheConfig     `yaml:"cache"`
	Resources ResourceConfig  `yaml:"resources"`
	Providers ProvidersConfig `yaml:"providers"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Queue     QueueConfig     `yaml:"queue"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Events    *EventsConfig   `yaml:"events,omitempty"`
}

// CacheConfig controls the resource cache layer. Age is the cache-level
// TTL for every entry, an upper bound independent of per-resource TTLs.
type CacheConfig struct {
	KeyPrefix       string         `yaml:"key_prefix"`
	Age             types.Duration `yaml:"age"`
	Compression     string         `yaml:"compression,omitempty"`
	MinCompressSize int            `yaml:"min_compress_size,omitempty"`
}

// ResourceConfig controls resource freshness and rendering behavior.
type ResourceConfig struct {
	MinTTL            types.Duration    `yaml:"min_ttl"`
	DefaultTTL        types.Duration    `yaml:"default_ttl"`
	UrlizeInvalid     *bool             `yaml:"urlize_invalid,omitempty"`
	CheckInternalSize bool              `yaml:"check_internal_size"`
	DefaultDimensions []types.Dimension `yaml:"default_dimensions,omitempty"`
}

// ShouldUrlizeInvalid reports whether invalid resources render as plain
// links (the default) or pass the URL through untouched.
func (r *ResourceConfig) ShouldUrlizeInvalid() bool {
	return r.UrlizeInvalid == nil || *r.UrlizeInvalid
}

// ProvidersConfig controls provider exposure and the configuration store
// external provider records are loaded from.
type ProvidersConfig struct {
	ExposeInternal *bool       `yaml:"expose_internal,omitempty"`
	CacheInternal  bool        `yaml:"cache_internal"`
	Store          StoreConfig `yaml:"store"`
}

// ShouldExposeInternal reports whether internal providers are visible on
// the public endpoint (default true).
func (p *ProvidersConfig) ShouldExposeInternal() bool {
	return p.ExposeInternal == nil || *p.ExposeInternal
}

// StoreConfig selects the external provider store backend.
type StoreConfig struct {
	Source string            `yaml:"source"`
	File   *FileStoreConfig  `yaml:"file,omitempty"`
	MySQL  *MySQLStoreConfig `yaml:"mysql,omitempty"`
}

type FileStoreConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

type MySQLStoreConfig struct {
	DSN          string         `yaml:"dsn"`
	PollInterval types.Duration `yaml:"poll_interval,omitempty"`
	MaxOpenConns int            `yaml:"max_open_conns,omitempty"`
}

// FetchConfig controls outbound HTTP to external provider endpoints.
type FetchConfig struct {
	UserAgent  string           `yaml:"user_agent,omitempty"`
	Timeout    types.Duration   `yaml:"timeout,omitempty"`
	RetryDelay types.Duration   `yaml:"retry_delay,omitempty"`
	MaxRetries *int             `yaml:"max_retries,omitempty"`
	RateLimit  *RateLimitConfig `yaml:"rate_limit,omitempty"`
	Breaker    *BreakerConfig   `yaml:"breaker,omitempty"`
}

// RetryCount returns the configured timeout retry budget, defaulting when
// unset. An explicit 0 disables retries.
func (f *FetchConfig) RetryCount() int {
	if f.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *f.MaxRetries
}

// RateLimitConfig caps outbound request rate across all providers.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// BreakerConfig configures the circuit breaker guarding each provider
// endpoint host.
type BreakerConfig struct {
	MaxFailures uint32         `yaml:"max_failures"`
	Interval    types.Duration `yaml:"interval"`
	Timeout     types.Duration `yaml:"timeout"`
}

// QueueConfig names the refresh task queue shared with the daemon.
type QueueConfig struct {
	Name string `yaml:"name,omitempty"`
}

// Validate checks an engine configuration. Fields with defaults may be
// empty here; defaults are applied by the loader after validation.
func (c *EngineConfig) Validate() error {
	if c == nil {
		return nil
	}

	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen must be specified")
	}
	if err := ValidateListenAddress(c.Server.Listen); err != nil {
		return fmt.Errorf("invalid server.listen: %w", err)
	}

	if c.Internal.Listen != "" {
		if err := ValidateListenAddress(c.Internal.Listen); err != nil {
			return fmt.Errorf("invalid internal.listen: %w", err)
		}
		if c.Internal.AuthKey == "" {
			return fmt.Errorf("internal.auth_key must be specified when internal.listen is set")
		}
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr must be specified")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("redis.db must be >= 0, got %d", c.Redis.DB)
	}

	if time.Duration(c.Cache.Age) < 0 {
		return fmt.Errorf("cache.age must be >= 0")
	}
	switch c.Cache.Compression {
	case "", CompressionNone, CompressionSnappy, CompressionLZ4:
	default:
		return fmt.Errorf("cache.compression must be one of: none, snappy, lz4, got '%s'", c.Cache.Compression)
	}

	if time.Duration(c.Resources.MinTTL) < 0 {
		return fmt.Errorf("resources.min_ttl must be >= 0")
	}
	if time.Duration(c.Resources.DefaultTTL) < 0 {
		return fmt.Errorf("resources.default_ttl must be >= 0")
	}
	for _, dim := range c.Resources.DefaultDimensions {
		if dim.Width <= 0 || dim.Height <= 0 {
			return fmt.Errorf("resources.default_dimensions entries must be positive, got %s", dim)
		}
	}

	switch c.Providers.Store.Source {
	case "", StoreSourceNone:
	case StoreSourceFile:
		if c.Providers.Store.File == nil || c.Providers.Store.File.Path == "" {
			return fmt.Errorf("providers.store.file.path must be specified for the file store")
		}
	case StoreSourceMySQL:
		if c.Providers.Store.MySQL == nil || c.Providers.Store.MySQL.DSN == "" {
			return fmt.Errorf("providers.store.mysql.dsn must be specified for the mysql store")
		}
	default:
		return fmt.Errorf("providers.store.source must be one of: none, file, mysql, got '%s'", c.Providers.Store.Source)
	}

	if time.Duration(c.Fetch.Timeout) < 0 {
		return fmt.Errorf("fetch.timeout must be >= 0")
	}
	if c.Fetch.MaxRetries != nil && *c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must be >= 0, got %d", *c.Fetch.MaxRetries)
	}
	if c.Fetch.RateLimit != nil && c.Fetch.RateLimit.RPS <= 0 {
		return fmt.Errorf("fetch.rate_limit.rps must be > 0")
	}

	if err := validateLogConfig("log", &c.Log); err != nil {
		return err
	}
	if err := validateMetricsConfig(&c.Metrics); err != nil {
		return err
	}

	return validatePortCollisions(c)
}

// validatePortCollisions rejects configs whose enabled listeners share a
// port.
func validatePortCollisions(c *EngineConfig) error {
	listens := map[string]string{"server.listen": c.Server.Listen}
	if c.Internal.Listen != "" {
		listens["internal.listen"] = c.Internal.Listen
	}
	if c.Metrics.Enabled {
		listens["metrics.listen"] = c.Metrics.Listen
	}

	seen := make(map[int]string)
	for name, listen := range listens {
		port, err := GetPortFromListen(listen)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if other, ok := seen[port]; ok {
			return fmt.Errorf("%s and %s use the same port %d", other, name, port)
		}
		seen[port] = name
	}
	return nil
}

func validateLogConfig(section string, log *LogConfig) error {
	validLevels := map[string]bool{
		LogLevelDebug: true,
		LogLevelInfo:  true,
		LogLevelWarn:  true,
		LogLevelError: true,
	}
	if log.Level != "" && !validLevels[log.Level] {
		return fmt.Errorf("%s.level must be one of: debug, info, warn, error, got '%s'", section, log.Level)
	}

	if log.Console.Enabled && log.Console.Format != "" &&
		log.Console.Format != LogFormatJSON && log.Console.Format != LogFormatConsole {
		return fmt.Errorf("%s.console.format must be 'json' or 'console', got '%s'", section, log.Console.Format)
	}

	if log.File.Enabled {
		if log.File.Path == "" {
			return fmt.Errorf("%s.file.path must be specified when file logging is enabled", section)
		}
		if log.File.Format != "" && log.File.Format != LogFormatJSON && log.File.Format != LogFormatText {
			return fmt.Errorf("%s.file.format must be 'json' or 'text', got '%s'", section, log.File.Format)
		}
		if log.File.Rotation.MaxSize < 0 || log.File.Rotation.MaxAge < 0 || log.File.Rotation.MaxBackups < 0 {
			return fmt.Errorf("%s.file.rotation values must be >= 0", section)
		}
	}

	return nil
}

func validateMetricsConfig(metrics *MetricsConfig) error {
	if !metrics.Enabled {
		return nil
	}
	if metrics.Listen == "" {
		return fmt.Errorf("metrics.listen must be specified when metrics are enabled")
	}
	if err := ValidateListenAddress(metrics.Listen); err != nil {
		return fmt.Errorf("invalid metrics.listen: %w", err)
	}
	return nil
}
