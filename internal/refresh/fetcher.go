package refresh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/embedworks/monocle/internal/cache"
	"github.com/embedworks/monocle/internal/events"
	"github.com/embedworks/monocle/internal/metrics"
	"github.com/embedworks/monocle/internal/provider"
	"github.com/embedworks/monocle/pkg/oembed"
)

const defaultUserAgent = "monocle-refresh/1.0"

// FetcherConfig tunes the outbound HTTP behavior. Zero values fall
// back to defaults.
type FetcherConfig struct {
	// Timeout bounds a single fetch attempt.
	Timeout time.Duration

	// MaxRetries is how many extra attempts a timed-out fetch gets.
	// Other failures are never retried.
	MaxRetries int

	// RetryDelay is slept between attempts.
	RetryDelay time.Duration

	// RequestsPerSecond and Burst rate-limit fetches per provider host.
	RequestsPerSecond float64
	Burst             int

	UserAgent string
}

func (c *FetcherConfig) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 10
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
}

// Fetcher resolves queued request URLs against provider endpoints and
// rewrites the cache with the response. Each provider host gets its own
// rate limiter and circuit breaker so one misbehaving endpoint cannot
// starve or fail the rest.
type Fetcher struct {
	cfg        FetcherConfig
	httpClient *fasthttp.Client
	cache      *cache.Cache
	emitter    events.Emitter
	collector  *metrics.Collector
	logger     *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

// NewFetcher builds a Fetcher. Emitter and collector may be nil.
func NewFetcher(cfg FetcherConfig, resourceCache *cache.Cache, emitter events.Emitter, collector *metrics.Collector, logger *zap.Logger) *Fetcher {
	cfg.applyDefaults()
	return &Fetcher{
		cfg: cfg,
		httpClient: &fasthttp.Client{
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: time.Minute,
		},
		cache:     resourceCache,
		emitter:   emitter,
		collector: collector,
		logger:    logger,
		limiters:  make(map[string]*rate.Limiter),
		breakers:  make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
}

// Refresh fetches requestURL, decodes the OEmbed response and stores it
// under the same request URL, replacing whatever placeholder or stale
// entry is there.
func (f *Fetcher) Refresh(ctx context.Context, requestURL string) error {
	host, err := hostOf(requestURL)
	if err != nil {
		return f.fail(requestURL, "", fmt.Errorf("invalid request url: %w", err))
	}

	if err := f.limiter(host).Wait(ctx); err != nil {
		return f.fail(requestURL, host, fmt.Errorf("rate limit wait aborted: %w", err))
	}

	start := time.Now()
	body, err := f.breaker(host).Execute(func() ([]byte, error) {
		return f.fetch(requestURL)
	})
	elapsed := time.Since(start)
	if err != nil {
		f.collector.RecordFetchDuration(host, "error", elapsed)
		return f.fail(requestURL, host, err)
	}
	f.collector.RecordFetchDuration(host, "success", elapsed)

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return f.fail(requestURL, host, fmt.Errorf("failed to decode oembed response: %w", err))
	}

	contentURL, err := provider.ContentURL(requestURL)
	if err != nil {
		return f.fail(requestURL, host, err)
	}

	res := oembed.NewResourceWithData(contentURL, data)
	if err := f.cache.Set(ctx, requestURL, res); err != nil {
		return f.fail(requestURL, host, fmt.Errorf("failed to store refreshed resource: %w", err))
	}

	f.emit(&events.Event{
		EventType:  events.TypeResourceRefreshed,
		URL:        contentURL,
		RequestURL: requestURL,
		Provider:   host,
		Elapsed:    elapsed.Seconds(),
		CreatedAt:  time.Now().UTC(),
	})
	f.logger.Debug("Resource refreshed",
		zap.String("request_url", requestURL),
		zap.Duration("elapsed", elapsed))
	return nil
}

// fetch performs the HTTP GET. Only timeouts are retried, a provider
// answering with an error answers the same way again.
func (f *Fetcher) fetch(requestURL string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(f.cfg.RetryDelay)
		}

		body, err := f.doRequest(requestURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isTimeout(err) {
			return nil, err
		}
		f.logger.Debug("Fetch attempt timed out",
			zap.String("request_url", requestURL),
			zap.Int("attempt", attempt+1))
	}

	return nil, fmt.Errorf("all fetch attempts timed out: %w", lastErr)
}

func (f *Fetcher) doRequest(requestURL string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(requestURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.SetUserAgent(f.cfg.UserAgent)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")

	if err := f.httpClient.DoTimeout(req, resp, f.cfg.Timeout); err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode())
	}

	// The response buffer is reused after release.
	return append([]byte(nil), resp.Body()...), nil
}

func (f *Fetcher) fail(requestURL, host string, err error) error {
	f.emit(&events.Event{
		EventType:    events.TypeRefreshFailed,
		RequestURL:   requestURL,
		Provider:     host,
		ErrorMessage: err.Error(),
		CreatedAt:    time.Now().UTC(),
	})
	f.logger.Warn("Refresh failed",
		zap.String("request_url", requestURL),
		zap.Error(err))
	return err
}

func (f *Fetcher) emit(e *events.Event) {
	if f.emitter == nil {
		return
	}
	f.emitter.Emit(e)
}

func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(f.cfg.RequestsPerSecond), f.cfg.Burst)
		f.limiters[host] = l
	}
	return l
}

func (f *Fetcher) breaker(host string) *gobreaker.CircuitBreaker[[]byte] {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.breakers[host]
	if !ok {
		b = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:    host,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				f.logger.Warn("Provider circuit state changed",
					zap.String("host", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		f.breakers[host] = b
	}
	return b
}

func hostOf(requestURL string) (string, error) {
	u, err := url.Parse(requestURL)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("no host in %s", requestURL)
	}
	return u.Host, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, fasthttp.ErrDialTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
