package configtypes

import (
	"fmt"
	"strconv"
	"time"

	"github.com/embedworks/monocle/pkg/types"
)

// PoolSizeAuto sizes the refresh worker pool from available memory.
const PoolSizeAuto = "auto"

// DaemonConfig is the root configuration for the refresh-daemon service.
type DaemonConfig struct {
	// EngineConfig points at the gateway config file; the daemon reuses its
	// cache, fetch and queue sections so both services agree on keys and
	// endpoints.
	EngineConfig  string              `yaml:"engine_config"`
	DaemonID      string              `yaml:"daemon_id"`
	Redis         RedisConfig         `yaml:"redis"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	InternalQueue InternalQueueConfig `yaml:"internal_queue"`
	Workers       WorkerConfig        `yaml:"workers"`
	Logging       LogConfig           `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// SchedulerConfig defines scheduler timing.
type SchedulerConfig struct {
	TickInterval       types.Duration `yaml:"tick_interval"`
	QueueCheckInterval types.Duration `yaml:"queue_check_interval"`
}

// InternalQueueConfig defines the in-process retry queue.
type InternalQueueConfig struct {
	MaxSize        int            `yaml:"max_size"`
	MaxRetries     int            `yaml:"max_retries"`
	RetryBaseDelay types.Duration `yaml:"retry_base_delay"`
}

// WorkerConfig sizes the refresh worker pool. PoolSize is a number or
// "auto".
type WorkerConfig struct {
	PoolSize string `yaml:"pool_size"`
}

// Validate validates refresh daemon configuration.
func (c *DaemonConfig) Validate() error {
	if c == nil {
		return nil
	}

	if c.EngineConfig == "" {
		return fmt.Errorf("engine_config must be specified")
	}
	if c.DaemonID == "" {
		return fmt.Errorf("daemon_id must be specified")
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr must be specified")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("redis.db must be >= 0, got %d", c.Redis.DB)
	}

	tickInterval := time.Duration(c.Scheduler.TickInterval)
	if tickInterval < 100*time.Millisecond {
		return fmt.Errorf("scheduler.tick_interval must be >= 100ms, got %v", tickInterval)
	}
	queueCheckInterval := time.Duration(c.Scheduler.QueueCheckInterval)
	if queueCheckInterval%tickInterval != 0 {
		return fmt.Errorf("scheduler.queue_check_interval (%v) must be a multiple of tick_interval (%v)", queueCheckInterval, tickInterval)
	}

	if c.InternalQueue.MaxSize <= 0 {
		return fmt.Errorf("internal_queue.max_size must be > 0, got %d", c.InternalQueue.MaxSize)
	}
	if c.InternalQueue.MaxRetries < 1 {
		return fmt.Errorf("internal_queue.max_retries must be >= 1, got %d", c.InternalQueue.MaxRetries)
	}

	if c.Workers.PoolSize != "" && c.Workers.PoolSize != PoolSizeAuto {
		size, err := strconv.Atoi(c.Workers.PoolSize)
		if err != nil || size < 1 {
			return fmt.Errorf("workers.pool_size must be a positive integer or 'auto', got '%s'", c.Workers.PoolSize)
		}
	}

	if err := validateLogConfig("logging", &c.Logging); err != nil {
		return err
	}
	if err := validateMetricsConfig(&c.Metrics); err != nil {
		return err
	}

	return nil
}
