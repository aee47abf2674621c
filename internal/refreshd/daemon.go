package refreshd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/embedworks/monocle/internal/common/configtypes"
	"github.com/embedworks/monocle/internal/common/metricsserver"
	"github.com/embedworks/monocle/internal/common/redis"
	"github.com/embedworks/monocle/internal/refreshd/metrics"
)

// DefaultQueueName is the refresh queue drained when the engine config
// does not name one.
const DefaultQueueName = "default"

// Daemon wires the queue reader, internal queue and worker pool into
// one scheduler loop.
type Daemon struct {
	cfg           *configtypes.DaemonConfig
	internalQueue *InternalQueue
	queueReader   *QueueReader
	pool          *WorkerPool
	collector     *metrics.Collector
	metricsServer *fasthttp.Server
	logger        *zap.Logger

	startTime    time.Time
	lastTickMu   sync.RWMutex
	lastTickTime time.Time

	schedulerCtx    context.Context
	schedulerCancel context.CancelFunc
}

// New builds the daemon. keyPrefix and queueName must match the
// gateway's cache settings so both sides address the same Redis queue.
func New(
	cfg *configtypes.DaemonConfig,
	redisClient *redis.Client,
	fetcher Refresher,
	keyPrefix, queueName string,
	logger *zap.Logger,
) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("daemon config is required")
	}
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if queueName == "" {
		queueName = DefaultQueueName
	}

	internalQueue := NewInternalQueue(cfg.InternalQueue.MaxSize)
	queueReader := NewQueueReader(redisClient, keyPrefix, queueName, internalQueue, logger)

	collector := metrics.NewCollector(cfg.Metrics.Namespace, logger)
	metricsServer, err := metricsserver.StartMetricsServer(
		cfg.Metrics.Enabled,
		cfg.Metrics.Listen,
		cfg.Metrics.Path,
		collector,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start metrics server: %w", err)
	}

	poolSize := ResolvePoolSize(cfg.Workers.PoolSize, logger)
	collector.SetWorkerPoolSize(poolSize)

	pool := NewWorkerPool(
		fetcher,
		internalQueue,
		collector,
		poolSize,
		cfg.InternalQueue.MaxRetries,
		cfg.InternalQueue.RetryBaseDelay.ToDuration(),
		logger,
	)

	return &Daemon{
		cfg:           cfg,
		internalQueue: internalQueue,
		queueReader:   queueReader,
		pool:          pool,
		collector:     collector,
		metricsServer: metricsServer,
		logger:        logger,
		startTime:     time.Now().UTC(),
	}, nil
}

// Start launches the workers and the scheduler loop.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Info("Starting refresh daemon",
		zap.String("daemon_id", d.cfg.DaemonID))

	d.schedulerCtx, d.schedulerCancel = context.WithCancel(ctx)
	d.pool.Start(d.schedulerCtx)
	go d.run(d.schedulerCtx)

	return nil
}

// run is the scheduler loop: every tick it dispatches ready work, and
// every queue-check interval it pulls due entries from Redis.
func (d *Daemon) run(ctx context.Context) {
	tickInterval := time.Duration(d.cfg.Scheduler.TickInterval)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	queueCheckTicks := int(time.Duration(d.cfg.Scheduler.QueueCheckInterval) / tickInterval)
	if queueCheckTicks < 1 {
		queueCheckTicks = 1
	}

	d.logger.Info("Scheduler started",
		zap.Duration("tick_interval", tickInterval),
		zap.Int("queue_check_ticks", queueCheckTicks))

	tickCount := 0
	for {
		select {
		case <-ticker.C:
			tickCount++
			now := time.Now().UTC()
			d.lastTickMu.Lock()
			d.lastTickTime = now
			d.lastTickMu.Unlock()

			if tickCount%queueCheckTicks == 0 {
				d.queueReader.PullDue(ctx)
				d.collector.SetQueueDepth("redis", d.queueReader.QueueDepth(ctx))
			}

			batch := d.internalQueue.Dequeue(d.pool.size * 2)
			if len(batch) > 0 {
				d.pool.Dispatch(batch)
			}
			d.collector.SetQueueDepth("internal", d.internalQueue.Size())

			if tickCount%10 == 0 && d.internalQueue.Size() > 0 {
				d.logger.Info("Scheduler status",
					zap.Int("tick", tickCount),
					zap.Int("internal_queue_size", d.internalQueue.Size()))
			}

		case <-ctx.Done():
			d.logger.Info("Scheduler shutdown requested")
			return
		}
	}
}

// Shutdown stops the scheduler, the workers and the metrics server.
func (d *Daemon) Shutdown() error {
	d.logger.Info("Shutting down refresh daemon")

	if d.schedulerCancel != nil {
		d.schedulerCancel()
	}
	d.pool.Wait()

	if d.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.ShutdownWithContext(ctx); err != nil {
			d.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	d.logger.Info("Refresh daemon shutdown complete")
	return nil
}

// Uptime reports how long the daemon has been running.
func (d *Daemon) Uptime() time.Duration {
	return time.Since(d.startTime)
}

// LastTick returns the time of the most recent scheduler tick.
func (d *Daemon) LastTick() time.Time {
	d.lastTickMu.RLock()
	defer d.lastTickMu.RUnlock()
	return d.lastTickTime
}
