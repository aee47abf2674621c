package provider

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/embedworks/monocle/internal/cache"
	"github.com/embedworks/monocle/internal/metrics"
	"github.com/embedworks/monocle/internal/store"
	"github.com/embedworks/monocle/pkg/oembed"
	"github.com/embedworks/monocle/pkg/urlglob"
)

// External proxies a remote OEmbed provider through the resource cache.
// GetResource never talks to the remote endpoint itself: a miss primes
// a placeholder and schedules a fetch, a stale hit re-dates the entry
// and schedules a refresh, and the caller always gets an answer
// immediately.
type External struct {
	record    store.Record
	matcher   *urlglob.Matcher
	cache     *cache.Cache
	enqueuer  Enqueuer
	freshness Freshness
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewExternal builds an External provider from a store record. The
// record must already be validated; the enqueuer and collector may be
// nil, which disables scheduling and metrics respectively.
func NewExternal(
	record store.Record,
	resourceCache *cache.Cache,
	enqueuer Enqueuer,
	freshness Freshness,
	collector *metrics.Collector,
	logger *zap.Logger,
) (*External, error) {
	matcher, err := urlglob.Compile(record.URLSchemes)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", record.Name, err)
	}

	return &External{
		record:    record,
		matcher:   matcher,
		cache:     resourceCache,
		enqueuer:  enqueuer,
		freshness: freshness,
		collector: collector,
		logger:    logger,
	}, nil
}

func (e *External) Name() string         { return e.record.Name }
func (e *External) ResourceType() string { return e.record.ResourceType }
func (e *External) Expose() bool         { return e.record.Expose }
func (e *External) IsInternal() bool     { return false }

// Record returns the store record this provider was built from.
func (e *External) Record() store.Record { return e.record }

// Match tests rawURL against the provider's URL schemes.
func (e *External) Match(rawURL string) bool {
	return e.matcher.Match(rawURL)
}

// GetResource implements the prime-or-return protocol on the cache.
func (e *External) GetResource(ctx context.Context, rawURL string, opts Options) (*oembed.Resource, error) {
	requestURL := RequestURL(e.record.APIEndpoint, rawURL, opts)
	primer := oembed.NewResource(rawURL)

	res, primed, err := e.cache.GetOrPrime(ctx, requestURL, primer)
	if err != nil {
		return nil, err
	}

	if primed {
		e.collector.RecordCacheMiss(e.record.Name)
		e.collector.RecordPlaceholderPrimed(e.record.Name)
		e.schedule(ctx, requestURL, "miss")
		return res, nil
	}

	e.collector.RecordCacheHit(e.record.Name)

	if res.IsStale(e.freshness.MinTTL, e.freshness.DefaultTTL) {
		e.collector.RecordStaleServed(e.record.Name)

		// Re-date before scheduling so only the first observer of a
		// stale entry enqueues a refresh per TTL window.
		res.Refresh()
		if err := e.cache.Set(ctx, requestURL, res); err != nil {
			e.logger.Warn("Failed to re-date stale resource",
				zap.String("provider", e.record.Name),
				zap.String("request_url", requestURL),
				zap.Error(err))
		}
		e.schedule(ctx, requestURL, "stale")
	}

	return res, nil
}

// schedule enqueues a refresh task. Scheduling failures are logged and
// swallowed: the consumer already has an answer, and a stale or
// placeholder resource serves until the next opportunity.
func (e *External) schedule(ctx context.Context, requestURL, reason string) {
	if e.enqueuer == nil {
		return
	}
	if err := e.enqueuer.Schedule(ctx, requestURL); err != nil {
		e.logger.Warn("Failed to schedule resource refresh",
			zap.String("provider", e.record.Name),
			zap.String("request_url", requestURL),
			zap.String("reason", reason),
			zap.Error(err))
		return
	}
	e.collector.RecordRefreshScheduled(reason)
}
