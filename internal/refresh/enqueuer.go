// Package refresh brings cached resources back to fresh. The enqueuer
// schedules request URLs onto a shared Redis queue; the fetcher drains
// them by calling provider endpoints and rewriting the cache.
package refresh

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/embedworks/monocle/internal/common/redis"
)

// enqueueScript adds the request URL only when it is absent or already
// queued for later than the new due time. Scheduling the same URL twice
// within a window is a no-op, and an earlier due time always wins.
const enqueueScript = `
local existing = redis.call('ZSCORE', KEYS[1], ARGV[2])
if existing == false or tonumber(existing) > tonumber(ARGV[1]) then
	redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
	return 1
end
return 0
`

// RedisEnqueuer schedules refreshes onto a Redis sorted set scored by
// due time. Multiple gateway instances share one queue.
type RedisEnqueuer struct {
	client   *redis.Client
	queueKey string
	logger   *zap.Logger
}

// NewRedisEnqueuer builds an enqueuer for the named queue.
func NewRedisEnqueuer(client *redis.Client, keyPrefix, queueName string, logger *zap.Logger) *RedisEnqueuer {
	return &RedisEnqueuer{
		client:   client,
		queueKey: redis.QueueKey(keyPrefix, queueName),
		logger:   logger,
	}
}

// Schedule queues requestURL for an immediate refresh.
func (e *RedisEnqueuer) Schedule(ctx context.Context, requestURL string) error {
	return e.ScheduleAt(ctx, requestURL, time.Now().UTC())
}

// ScheduleAt queues requestURL to become due at the given time.
func (e *RedisEnqueuer) ScheduleAt(ctx context.Context, requestURL string, due time.Time) error {
	added, err := e.client.Eval(ctx, enqueueScript,
		[]string{e.queueKey}, due.Unix(), requestURL)
	if err != nil {
		return fmt.Errorf("failed to enqueue refresh for %s: %w", requestURL, err)
	}

	if n, ok := added.(int64); ok && n == 1 {
		e.logger.Debug("Refresh scheduled",
			zap.String("request_url", requestURL),
			zap.Time("due", due))
	}
	return nil
}

// NoopEnqueuer discards every schedule request. Used when no refresh
// daemon is deployed.
type NoopEnqueuer struct{}

func (NoopEnqueuer) Schedule(context.Context, string) error { return nil }
