// Package cache stores OEmbed resources keyed by canonical request URL.
// Its contract is the prime-or-return protocol: concurrent consumers of
// an uncached URL all race one atomic Add, exactly one placeholder wins,
// and everyone else reads whatever is already there. That keeps the
// per-URL fetch fan-out at one no matter how many texts mention it.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/embedworks/monocle/internal/common/configtypes"
	"github.com/embedworks/monocle/internal/common/redis"
	"github.com/embedworks/monocle/internal/events"
	"github.com/embedworks/monocle/internal/kv"
	"github.com/embedworks/monocle/internal/metrics"
	"github.com/embedworks/monocle/pkg/oembed"
)

// Config carries the cache settings, usually copied from
// configtypes.CacheConfig at wiring time.
type Config struct {
	// KeyPrefix namespaces every key in the backing store.
	KeyPrefix string

	// Age is the storage TTL applied to every entry. It bounds how long
	// anything lives in the store, independent of resource freshness.
	Age time.Duration

	// Compression selects the value compression algorithm.
	Compression string

	// MinCompressSize is the smallest value worth compressing.
	MinCompressSize int
}

// Cache is the resource cache. The collector and emitter may be nil,
// which disables telemetry without changing behavior.
type Cache struct {
	backend   kv.Backend
	cfg       Config
	emitter   events.Emitter
	collector *metrics.Collector
	logger    *zap.Logger
}

// New builds a Cache on top of a kv backend.
func New(backend kv.Backend, cfg Config, emitter events.Emitter, collector *metrics.Collector, logger *zap.Logger) *Cache {
	return &Cache{
		backend:   backend,
		cfg:       cfg,
		emitter:   emitter,
		collector: collector,
		logger:    logger,
	}
}

// Key returns the store key for a canonical request URL.
func (c *Cache) Key(requestURL string) string {
	return redis.ResourceKey(c.cfg.KeyPrefix, Fingerprint(requestURL))
}

// Fingerprint hashes a request URL into the fixed-width form used in
// store keys.
func Fingerprint(requestURL string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(requestURL))
}

// GetOrPrime implements the priming protocol. It attempts an atomic add
// of primer under the request URL's key; if the add wins there was no
// entry and (primer, true) comes back - the caller now owns fetching the
// real data. If the add loses, the existing entry is returned with
// primed=false. An entry that expires between the add and the read, or
// that fails to decode, degrades to the primed outcome.
func (c *Cache) GetOrPrime(ctx context.Context, requestURL string, primer *oembed.Resource) (*oembed.Resource, bool, error) {
	key := c.Key(requestURL)

	encoded, err := c.encode(primer)
	if err != nil {
		return nil, false, err
	}

	added, err := c.backend.Add(ctx, key, encoded, c.cfg.Age)
	if err != nil {
		return nil, false, fmt.Errorf("cache add failed for %s: %w", key, err)
	}
	if added {
		c.emit(events.TypeCacheMiss, key, requestURL)
		return primer, true, nil
	}

	stored, found, err := c.backend.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("cache get failed for %s: %w", key, err)
	}
	if !found {
		// Entry expired between Add and Get. Treat as a won prime; the
		// placeholder write was lost but the caller refetches anyway.
		c.emit(events.TypeCacheMiss, key, requestURL)
		return primer, true, nil
	}

	res, err := c.decode(stored)
	if err != nil {
		c.logger.Warn("Discarding undecodable cache entry",
			zap.String("key", key),
			zap.Error(err))
		if err := c.Set(ctx, requestURL, primer); err != nil {
			return nil, false, err
		}
		c.emit(events.TypeCacheMiss, key, requestURL)
		return primer, true, nil
	}

	c.emit(events.TypeCacheHit, key, requestURL)
	return res, false, nil
}

// Get returns the cached resource for a request URL, or nil when absent.
func (c *Cache) Get(ctx context.Context, requestURL string) (*oembed.Resource, error) {
	key := c.Key(requestURL)

	stored, found, err := c.backend.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("cache get failed for %s: %w", key, err)
	}
	if !found {
		c.emit(events.TypeCacheMiss, key, requestURL)
		return nil, nil
	}

	res, err := c.decode(stored)
	if err != nil {
		c.logger.Warn("Discarding undecodable cache entry",
			zap.String("key", key),
			zap.Error(err))
		c.emit(events.TypeCacheMiss, key, requestURL)
		return nil, nil
	}

	c.emit(events.TypeCacheHit, key, requestURL)
	return res, nil
}

// Set writes a resource under the request URL's key unconditionally.
func (c *Cache) Set(ctx context.Context, requestURL string, res *oembed.Resource) error {
	key := c.Key(requestURL)

	encoded, err := c.encode(res)
	if err != nil {
		return err
	}

	if err := c.backend.Set(ctx, key, encoded, c.cfg.Age); err != nil {
		return fmt.Errorf("cache set failed for %s: %w", key, err)
	}
	return nil
}

// Delete removes the entry for a request URL.
func (c *Cache) Delete(ctx context.Context, requestURL string) error {
	key := c.Key(requestURL)
	if err := c.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("cache delete failed for %s: %w", key, err)
	}
	return nil
}

func (c *Cache) encode(res *oembed.Resource) ([]byte, error) {
	encoded, err := res.Encode()
	if err != nil {
		return nil, err
	}

	stored, algorithm, err := Compress(encoded, c.cfg.Compression, c.cfg.MinCompressSize)
	if err != nil {
		return nil, err
	}

	if algorithm != configtypes.CompressionNone {
		c.collector.RecordCompression(algorithm, len(encoded), len(stored)-1)
	}
	return stored, nil
}

func (c *Cache) decode(stored []byte) (*oembed.Resource, error) {
	decompressed, algorithm, err := Decompress(stored)
	if err != nil {
		c.collector.RecordDecompressionError(algorithm)
		return nil, err
	}
	return oembed.Decode(decompressed)
}

func (c *Cache) emit(eventType, key, requestURL string) {
	if c.emitter == nil {
		return
	}
	c.emitter.Emit(&events.Event{
		EventType:  eventType,
		Key:        key,
		RequestURL: requestURL,
		CreatedAt:  time.Now().UTC(),
	})
}
