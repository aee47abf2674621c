package configtypes

import (
	"github.com/embedworks/monocle/pkg/types"
)

// Log level constants
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Log format constants
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
	LogFormatText    = "text"
)

// Cache value compression algorithms
const (
	CompressionNone   = "none"
	CompressionSnappy = "snappy"
	CompressionLZ4    = "lz4"
)

// Provider store backends
const (
	StoreSourceNone  = "none"
	StoreSourceFile  = "file"
	StoreSourceMySQL = "mysql"
)

type ServerConfig struct {
	Listen  string         `yaml:"listen"`
	Timeout types.Duration `yaml:"timeout"`
}

// InternalConfig configures the internal server used by trusted callers
// (enrich/prefetch API, provider listing).
type InternalConfig struct {
	Listen  string `yaml:"listen"`
	AuthKey string `yaml:"auth_key"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LogConfig struct {
	Level   string           `yaml:"level"`
	Console ConsoleLogConfig `yaml:"console"`
	File    FileLogConfig    `yaml:"file"`
}

type ConsoleLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"`
	Level   string `yaml:"level,omitempty"`
}

type FileLogConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Path     string         `yaml:"path"`
	Format   string         `yaml:"format"`
	Level    string         `yaml:"level,omitempty"`
	Rotation RotationConfig `yaml:"rotation"`
}

type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`
	MaxAge     int  `yaml:"max_age"`
	MaxBackups int  `yaml:"max_backups"`
	Compress   bool `yaml:"compress"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// EventsConfig configures engine event emission (cache hits/misses,
// consume brackets, refresh outcomes, provider registry changes).
type EventsConfig struct {
	BufferSize int                    `yaml:"buffer_size,omitempty"`
	File       *EventFileConfig       `yaml:"file,omitempty"`
	ClickHouse *EventClickHouseConfig `yaml:"clickhouse,omitempty"`
}

// EventFileConfig configures file-based event logging
type EventFileConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Path     string         `yaml:"path"`
	Template string         `yaml:"template"`
	Rotation RotationConfig `yaml:"rotation"`
}

// EventClickHouseConfig configures the ClickHouse event sink
type EventClickHouseConfig struct {
	Enabled       bool           `yaml:"enabled"`
	Addrs         []string       `yaml:"addrs"`
	Database      string         `yaml:"database"`
	Table         string         `yaml:"table"`
	Username      string         `yaml:"username,omitempty"`
	Password      string         `yaml:"password,omitempty"`
	BatchSize     int            `yaml:"batch_size,omitempty"`
	FlushInterval types.Duration `yaml:"flush_interval,omitempty"`
}
