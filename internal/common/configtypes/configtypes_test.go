package configtypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedworks/monocle/pkg/types"
)

func validEngineConfig() *EngineConfig {
	return &EngineConfig{
		Server: ServerConfig{Listen: ":10080"},
		Redis:  RedisConfig{Addr: "localhost:6379"},
	}
}

func TestEngineConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*EngineConfig)
		expectedErr string
	}{
		{
			name:   "minimal config is valid",
			mutate: func(c *EngineConfig) {},
		},
		{
			name:        "missing server listen",
			mutate:      func(c *EngineConfig) { c.Server.Listen = "" },
			expectedErr: "server.listen",
		},
		{
			name:        "missing redis addr",
			mutate:      func(c *EngineConfig) { c.Redis.Addr = "" },
			expectedErr: "redis.addr",
		},
		{
			name:        "negative redis db",
			mutate:      func(c *EngineConfig) { c.Redis.DB = -1 },
			expectedErr: "redis.db",
		},
		{
			name: "internal listen without auth key",
			mutate: func(c *EngineConfig) {
				c.Internal.Listen = ":10081"
			},
			expectedErr: "internal.auth_key",
		},
		{
			name: "internal listen with auth key",
			mutate: func(c *EngineConfig) {
				c.Internal.Listen = ":10081"
				c.Internal.AuthKey = "secret"
			},
		},
		{
			name:        "unknown compression",
			mutate:      func(c *EngineConfig) { c.Cache.Compression = "zstd" },
			expectedErr: "cache.compression",
		},
		{
			name:        "zero dimension",
			mutate:      func(c *EngineConfig) { c.Resources.DefaultDimensions = []types.Dimension{{Width: 0, Height: 100}} },
			expectedErr: "default_dimensions",
		},
		{
			name:        "file store without path",
			mutate:      func(c *EngineConfig) { c.Providers.Store.Source = StoreSourceFile },
			expectedErr: "providers.store.file.path",
		},
		{
			name: "file store with path",
			mutate: func(c *EngineConfig) {
				c.Providers.Store.Source = StoreSourceFile
				c.Providers.Store.File = &FileStoreConfig{Path: "providers.yaml"}
			},
		},
		{
			name:        "mysql store without dsn",
			mutate:      func(c *EngineConfig) { c.Providers.Store.Source = StoreSourceMySQL },
			expectedErr: "providers.store.mysql.dsn",
		},
		{
			name:        "unknown store source",
			mutate:      func(c *EngineConfig) { c.Providers.Store.Source = "etcd" },
			expectedErr: "providers.store.source",
		},
		{
			name: "negative fetch retries",
			mutate: func(c *EngineConfig) {
				retries := -1
				c.Fetch.MaxRetries = &retries
			},
			expectedErr: "fetch.max_retries",
		},
		{
			name:        "rate limit without rps",
			mutate:      func(c *EngineConfig) { c.Fetch.RateLimit = &RateLimitConfig{Burst: 5} },
			expectedErr: "rate_limit.rps",
		},
		{
			name:        "invalid log level",
			mutate:      func(c *EngineConfig) { c.Log.Level = "verbose" },
			expectedErr: "log.level",
		},
		{
			name: "file logging without path",
			mutate: func(c *EngineConfig) {
				c.Log.File.Enabled = true
			},
			expectedErr: "log.file.path",
		},
		{
			name: "metrics enabled without listen",
			mutate: func(c *EngineConfig) {
				c.Metrics.Enabled = true
			},
			expectedErr: "metrics.listen",
		},
		{
			name: "metrics port collides with server",
			mutate: func(c *EngineConfig) {
				c.Metrics.Enabled = true
				c.Metrics.Listen = ":10080"
			},
			expectedErr: "same port",
		},
		{
			name: "internal port collides with server",
			mutate: func(c *EngineConfig) {
				c.Internal.Listen = ":10080"
				c.Internal.AuthKey = "secret"
			},
			expectedErr: "same port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validEngineConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.expectedErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

func validDaemonConfig() *DaemonConfig {
	return &DaemonConfig{
		EngineConfig: "/etc/monocle/engine.yaml",
		DaemonID:     "daemon-1",
		Redis:        RedisConfig{Addr: "localhost:6379"},
		Scheduler: SchedulerConfig{
			TickInterval:       types.Duration(time.Second),
			QueueCheckInterval: types.Duration(10 * time.Second),
		},
		InternalQueue: InternalQueueConfig{MaxSize: 1000, MaxRetries: 3},
	}
}

func TestDaemonConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*DaemonConfig)
		expectedErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *DaemonConfig) {},
		},
		{
			name:        "missing engine config path",
			mutate:      func(c *DaemonConfig) { c.EngineConfig = "" },
			expectedErr: "engine_config",
		},
		{
			name:        "missing daemon id",
			mutate:      func(c *DaemonConfig) { c.DaemonID = "" },
			expectedErr: "daemon_id",
		},
		{
			name:        "tick interval too small",
			mutate:      func(c *DaemonConfig) { c.Scheduler.TickInterval = types.Duration(50 * time.Millisecond) },
			expectedErr: "tick_interval",
		},
		{
			name: "check interval not a multiple of tick",
			mutate: func(c *DaemonConfig) {
				c.Scheduler.QueueCheckInterval = types.Duration(2500 * time.Millisecond)
			},
			expectedErr: "multiple of tick_interval",
		},
		{
			name:        "zero queue size",
			mutate:      func(c *DaemonConfig) { c.InternalQueue.MaxSize = 0 },
			expectedErr: "internal_queue.max_size",
		},
		{
			name:        "zero max retries",
			mutate:      func(c *DaemonConfig) { c.InternalQueue.MaxRetries = 0 },
			expectedErr: "internal_queue.max_retries",
		},
		{
			name:   "auto pool size",
			mutate: func(c *DaemonConfig) { c.Workers.PoolSize = "auto" },
		},
		{
			name:   "numeric pool size",
			mutate: func(c *DaemonConfig) { c.Workers.PoolSize = "16" },
		},
		{
			name:        "garbage pool size",
			mutate:      func(c *DaemonConfig) { c.Workers.PoolSize = "plenty" },
			expectedErr: "workers.pool_size",
		},
		{
			name:        "zero pool size",
			mutate:      func(c *DaemonConfig) { c.Workers.PoolSize = "0" },
			expectedErr: "workers.pool_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDaemonConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.expectedErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

func TestParseListenAddress(t *testing.T) {
	tests := []struct {
		name         string
		listen       string
		expectedHost string
		expectedPort int
		expectError  bool
	}{
		{"port only with colon", ":10080", "", 10080, false},
		{"bare port", "10080", "", 10080, false},
		{"all interfaces", "0.0.0.0:10080", "0.0.0.0", 10080, false},
		{"hostname", "localhost:10080", "localhost", 10080, false},
		{"empty", "", "", 0, true},
		{"garbage", "not-a-port", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, err := ParseListenAddress(tt.listen)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedHost, host)
			assert.Equal(t, tt.expectedPort, port)
		})
	}
}

func TestValidateListenAddress(t *testing.T) {
	assert.NoError(t, ValidateListenAddress(":10080"))
	assert.Error(t, ValidateListenAddress(""))
	assert.Error(t, ValidateListenAddress(":0"))
	assert.Error(t, ValidateListenAddress(":99999"))
}

func TestDefaultDimensions(t *testing.T) {
	dims := DefaultDimensions()
	require.Len(t, dims, 9)
	assert.Equal(t, types.Dimension{Width: 100, Height: 100}, dims[0])
	assert.Equal(t, types.Dimension{Width: 900, Height: 900}, dims[8])
}

func TestResourceConfig_ShouldUrlizeInvalid(t *testing.T) {
	var cfg ResourceConfig
	assert.True(t, cfg.ShouldUrlizeInvalid())

	disabled := false
	cfg.UrlizeInvalid = &disabled
	assert.False(t, cfg.ShouldUrlizeInvalid())
}

func TestProvidersConfig_ShouldExposeInternal(t *testing.T) {
	var cfg ProvidersConfig
	assert.True(t, cfg.ShouldExposeInternal())

	disabled := false
	cfg.ExposeInternal = &disabled
	assert.False(t, cfg.ShouldExposeInternal())
}

func TestFetchConfig_RetryCount(t *testing.T) {
	var cfg FetchConfig
	assert.Equal(t, DefaultMaxRetries, cfg.RetryCount())

	zero := 0
	cfg.MaxRetries = &zero
	assert.Equal(t, 0, cfg.RetryCount())
}
