package refreshd

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/embedworks/monocle/internal/common/redis"
)

// QueueReader moves due entries from the shared Redis queue into the
// daemon's internal queue. Multiple daemons may drain the same queue;
// the ZREM result decides which one owns an entry.
type QueueReader struct {
	redis         *redis.Client
	queueKey      string
	internalQueue *InternalQueue
	logger        *zap.Logger
}

func NewQueueReader(redisClient *redis.Client, keyPrefix, queueName string, internalQueue *InternalQueue, logger *zap.Logger) *QueueReader {
	return &QueueReader{
		redis:         redisClient,
		queueKey:      redis.QueueKey(keyPrefix, queueName),
		internalQueue: internalQueue,
		logger:        logger,
	}
}

// PullDue claims every entry due by now and enqueues it internally.
// When the internal queue fills up the remaining entries stay in Redis
// with their original due time. Returns the number claimed.
func (qr *QueueReader) PullDue(ctx context.Context) int {
	now := strconv.FormatInt(time.Now().UTC().Unix(), 10)

	due, err := qr.redis.ZRangeByScoreWithScores(ctx, qr.queueKey, "-inf", now)
	if err != nil {
		qr.logger.Error("Failed to read refresh queue",
			zap.String("key", qr.queueKey),
			zap.Error(err))
		return 0
	}

	pulled := 0
	for _, z := range due {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}

		removed, err := qr.redis.ZRem(ctx, qr.queueKey, member)
		if err != nil {
			qr.logger.Error("Failed to claim refresh entry",
				zap.String("request_url", member),
				zap.Error(err))
			continue
		}
		if removed == 0 {
			// Another daemon claimed it first.
			continue
		}

		entry := Entry{
			RequestURL: member,
			QueuedAt:   time.Now().UTC(),
		}
		if !qr.internalQueue.Enqueue(entry) {
			// Put it back with the original due time and stop, the
			// queue stays full for the rest of the batch too.
			if err := qr.redis.ZAdd(ctx, qr.queueKey, z.Score, member); err != nil {
				qr.logger.Error("Failed to return entry to refresh queue, entry lost",
					zap.String("request_url", member),
					zap.Error(err))
			}
			qr.logger.Warn("Internal queue full, deferring remaining due entries",
				zap.Int("pulled", pulled))
			break
		}
		pulled++
	}

	if pulled > 0 {
		qr.logger.Debug("Pulled due refresh entries",
			zap.Int("count", pulled))
	}
	return pulled
}

// QueueDepth returns the number of entries in the shared Redis queue.
func (qr *QueueReader) QueueDepth(ctx context.Context) int {
	depth, err := qr.redis.ZCard(ctx, qr.queueKey)
	if err != nil {
		qr.logger.Debug("Failed to read refresh queue depth", zap.Error(err))
		return 0
	}
	return int(depth)
}
