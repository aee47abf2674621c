package refreshd

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"

	"github.com/embedworks/monocle/internal/common/configtypes"
	"github.com/embedworks/monocle/internal/refreshd/metrics"
)

// Refresher performs one refresh. Implemented by refresh.Fetcher.
type Refresher interface {
	Refresh(ctx context.Context, requestURL string) error
}

// ResolvePoolSize turns the pool_size setting into a worker count.
// "auto" or anything unparseable sizes from system memory.
func ResolvePoolSize(setting string, logger *zap.Logger) int {
	if setting != "" && setting != configtypes.PoolSizeAuto {
		if size, err := strconv.Atoi(setting); err == nil && size >= 1 {
			return size
		}
		logger.Warn("Invalid pool_size, falling back to auto",
			zap.String("pool_size", setting))
	}
	return autoPoolSize()
}

// autoPoolSize budgets 128MB of system memory per worker after a 1GB
// reserve. Workers are cheap HTTP clients, the clamp matters more than
// the formula.
func autoPoolSize() int {
	totalBytes := int64(8 * 1024 * 1024 * 1024)
	if v, err := mem.VirtualMemory(); err == nil {
		totalBytes = int64(v.Total)
	}

	reservedBytes := int64(1024 * 1024 * 1024)
	workerBytes := int64(128 * 1024 * 1024)
	size := int((totalBytes - reservedBytes) / workerBytes)

	if size < 2 {
		size = 2
	}
	if size > 64 {
		size = 64
	}
	return size
}

// WorkerPool runs refreshes concurrently and feeds failed entries back
// into the internal queue with exponential backoff.
type WorkerPool struct {
	fetcher        Refresher
	internalQueue  *InternalQueue
	collector      *metrics.Collector
	size           int
	maxRetries     int
	retryBaseDelay time.Duration
	logger         *zap.Logger

	tasks chan Entry
	wg    sync.WaitGroup
}

func NewWorkerPool(fetcher Refresher, internalQueue *InternalQueue, collector *metrics.Collector, size, maxRetries int, retryBaseDelay time.Duration, logger *zap.Logger) *WorkerPool {
	if retryBaseDelay <= 0 {
		retryBaseDelay = 5 * time.Second
	}
	return &WorkerPool{
		fetcher:        fetcher,
		internalQueue:  internalQueue,
		collector:      collector,
		size:           size,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		logger:         logger,
		tasks:          make(chan Entry, size*2),
	}
}

// Start launches the workers. They exit when ctx is canceled.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("Refresh workers started",
		zap.Int("pool_size", p.size))
}

// Dispatch hands entries to the workers without blocking. Entries that
// do not fit go back to the internal queue for the next tick.
func (p *WorkerPool) Dispatch(entries []Entry) {
	for i, entry := range entries {
		select {
		case p.tasks <- entry:
		default:
			for _, deferred := range entries[i:] {
				p.internalQueue.Enqueue(deferred)
			}
			return
		}
	}
}

// Wait blocks until all workers have exited.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case entry := <-p.tasks:
			p.process(ctx, entry)
		}
	}
}

func (p *WorkerPool) process(ctx context.Context, entry Entry) {
	now := time.Now().UTC()
	if !entry.NextRetryAfter.IsZero() && now.Before(entry.NextRetryAfter) {
		p.internalQueue.Enqueue(entry)
		return
	}

	taskID := uuid.NewString()
	start := time.Now()
	err := p.fetcher.Refresh(ctx, entry.RequestURL)
	elapsed := time.Since(start)

	if err == nil {
		p.collector.RecordRefresh("success", elapsed)
		p.logger.Debug("Refresh task completed",
			zap.String("task_id", taskID),
			zap.String("request_url", entry.RequestURL),
			zap.Duration("elapsed", elapsed))
		return
	}

	entry.RetryCount++
	entry.LastAttempt = now

	if entry.RetryCount >= p.maxRetries {
		p.collector.RecordRefresh("discarded", elapsed)
		p.logger.Error("Refresh failed after max retries, discarding",
			zap.String("task_id", taskID),
			zap.String("request_url", entry.RequestURL),
			zap.Int("retry_count", entry.RetryCount),
			zap.Error(err))
		return
	}

	// Backoff doubles per retry: base, 2x, 4x...
	delay := p.retryBaseDelay * (1 << (entry.RetryCount - 1))
	entry.NextRetryAfter = now.Add(delay)

	p.collector.RecordRefresh("retried", elapsed)
	if !p.internalQueue.Enqueue(entry) {
		p.logger.Error("Internal queue full, dropping retry",
			zap.String("request_url", entry.RequestURL))
		return
	}

	p.logger.Debug("Refresh failed, retry scheduled",
		zap.String("task_id", taskID),
		zap.String("request_url", entry.RequestURL),
		zap.Int("retry_count", entry.RetryCount),
		zap.Duration("retry_after", delay),
		zap.Error(err))
}
