package provider

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/embedworks/monocle/internal/cache"
	"github.com/embedworks/monocle/internal/metrics"
	"github.com/embedworks/monocle/pkg/oembed"
	"github.com/embedworks/monocle/pkg/types"
	"github.com/embedworks/monocle/pkg/urlglob"
)

// DataSource exposes one application object's attributes to the
// resource builder. Attr returns the value for an OEmbed attribute name
// and whether the object provides it at all. A value may be a
// func() any thunk, which is invoked lazily so expensive attributes
// cost nothing unless a resource actually needs them.
type DataSource interface {
	Attr(name string) (any, bool)
}

// Resolver maps a content URL onto an application object.
type Resolver interface {
	GetObject(ctx context.Context, rawURL string) (DataSource, error)
}

// InternalConfig describes one internal provider.
type InternalConfig struct {
	Name         string
	ResourceType string
	Schemes      []string

	// Dimensions is the provider's allowed size grid; empty means any
	// size is producible.
	Dimensions []types.Dimension

	// DefaultWidth/DefaultHeight apply when the object supplies no
	// dimensions of its own.
	DefaultWidth  int
	DefaultHeight int

	// Expose controls visibility on the public OEmbed endpoint.
	Expose bool

	// CacheResources routes built resources through the shared cache.
	// Most internal providers skip it: building from a local object is
	// usually cheaper than a cache round trip.
	CacheResources bool

	// CheckSize snaps requested sizes onto the Dimensions grid.
	CheckSize bool
}

// Internal builds OEmbed resources from application objects via a
// Resolver, without any remote fetch.
type Internal struct {
	cfg       InternalConfig
	resolver  Resolver
	matcher   *urlglob.Matcher
	cache     *cache.Cache
	freshness Freshness
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewInternal validates the config and builds an Internal provider.
// The cache may be nil unless CacheResources is set.
func NewInternal(
	cfg InternalConfig,
	resolver Resolver,
	resourceCache *cache.Cache,
	freshness Freshness,
	collector *metrics.Collector,
	logger *zap.Logger,
) (*Internal, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("internal provider requires a name")
	}
	if !oembed.KnownType(cfg.ResourceType) {
		return nil, fmt.Errorf("internal provider %q has unknown resource type %q", cfg.Name, cfg.ResourceType)
	}
	if resolver == nil {
		return nil, fmt.Errorf("internal provider %q requires a resolver", cfg.Name)
	}
	if cfg.CacheResources && resourceCache == nil {
		return nil, fmt.Errorf("internal provider %q caches resources but has no cache", cfg.Name)
	}

	matcher, err := urlglob.Compile(cfg.Schemes)
	if err != nil {
		return nil, fmt.Errorf("internal provider %q: %w", cfg.Name, err)
	}

	return &Internal{
		cfg:       cfg,
		resolver:  resolver,
		matcher:   matcher,
		cache:     resourceCache,
		freshness: freshness,
		collector: collector,
		logger:    logger,
	}, nil
}

func (i *Internal) Name() string         { return i.cfg.Name }
func (i *Internal) ResourceType() string { return i.cfg.ResourceType }
func (i *Internal) Expose() bool         { return i.cfg.Expose }
func (i *Internal) IsInternal() bool     { return true }

// Match tests rawURL against the provider's URL schemes.
func (i *Internal) Match(rawURL string) bool {
	return i.matcher.Match(rawURL)
}

// CanResolve reports whether the provider can actually produce an
// object for rawURL. A scheme match is necessary but not sufficient:
// the URL may point at content that no longer exists.
func (i *Internal) CanResolve(ctx context.Context, rawURL string) bool {
	if !i.matcher.Match(rawURL) {
		return false
	}
	_, err := i.resolver.GetObject(ctx, rawURL)
	return err == nil
}

// GetResource resolves the object and builds its resource.
func (i *Internal) GetResource(ctx context.Context, rawURL string, opts Options) (*oembed.Resource, error) {
	if i.cfg.CacheResources {
		return i.getCached(ctx, rawURL, opts)
	}
	return i.build(ctx, rawURL, opts)
}

// getCached is the prime-or-return protocol for internal providers.
// The primer placeholder makes the build single-flight: concurrent
// misses see the placeholder and return it while the priming caller
// builds and writes the real resource.
func (i *Internal) getCached(ctx context.Context, rawURL string, opts Options) (*oembed.Resource, error) {
	// Internal providers have no API endpoint; a synthetic scheme keys
	// their cache entries.
	requestURL := RequestURL("internal://"+i.cfg.Name, rawURL, opts)

	cached, primed, err := i.cache.GetOrPrime(ctx, requestURL, oembed.NewResource(rawURL))
	if err != nil {
		i.logger.Warn("Internal provider cache read failed, building directly",
			zap.String("provider", i.cfg.Name),
			zap.Error(err))
		return i.build(ctx, rawURL, opts)
	}

	if !primed && !cached.IsStale(i.freshness.MinTTL, i.freshness.DefaultTTL) {
		i.collector.RecordCacheHit(i.cfg.Name)
		return cached, nil
	}

	i.collector.RecordCacheMiss(i.cfg.Name)

	res, err := i.build(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}
	if err := i.cache.Set(ctx, requestURL, res); err != nil {
		i.logger.Warn("Internal provider cache write failed",
			zap.String("provider", i.cfg.Name),
			zap.Error(err))
	}
	return res, nil
}

func (i *Internal) build(ctx context.Context, rawURL string, opts Options) (*oembed.Resource, error) {
	ds, err := i.resolver.GetObject(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotImplemented, rawURL, err)
	}

	data := map[string]any{
		"type":    i.cfg.ResourceType,
		"version": oembed.Version,
	}

	for _, attr := range oembed.RequiredAttrs[i.cfg.ResourceType] {
		if attr == "width" || attr == "height" {
			continue
		}
		value, ok := resolveAttr(ds, attr)
		if !ok {
			return nil, fmt.Errorf("%w: %s provides no %s", ErrNotImplemented, rawURL, attr)
		}
		data[attr] = value
	}

	if i.cfg.ResourceType != oembed.TypeLink {
		width, height, err := i.dimensions(ds, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNotImplemented, rawURL, err)
		}
		data["width"] = width
		data["height"] = height
	}

	for _, attr := range oembed.OptionalAttrs {
		if value, ok := resolveAttr(ds, attr); ok {
			data[attr] = value
		}
	}

	// Thumbnails follow the same allowed grid as the main dimensions.
	if i.cfg.CheckSize {
		if tw, twOK := intValue(data["thumbnail_width"]); twOK {
			if th, thOK := intValue(data["thumbnail_height"]); thOK {
				tw, th = i.checkSize("thumbnail", tw, th, opts)
				data["thumbnail_width"] = tw
				data["thumbnail_height"] = th
			}
		}
	}

	return oembed.NewResourceWithData(rawURL, data), nil
}

// dimensions picks the resource size: the object's own dimensions when
// it has them, the provider defaults otherwise, optionally snapped to
// the allowed grid.
func (i *Internal) dimensions(ds DataSource, opts Options) (int, int, error) {
	width := attrInt(ds, "width", i.cfg.DefaultWidth)
	height := attrInt(ds, "height", i.cfg.DefaultHeight)

	if i.cfg.CheckSize {
		width, height = i.checkSize("size", width, height, opts)
	}

	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("no usable dimensions")
	}
	return width, height, nil
}

// checkSize snaps a dimension pair onto the allowed grid and warns when
// the grid cannot honor the requested size.
func (i *Internal) checkSize(kind string, width, height int, opts Options) (int, int) {
	w, h := NearestAllowedSize(width, height, opts.MaxWidth, opts.MaxHeight, i.cfg.Dimensions)
	if w < width && h < height {
		i.logger.Warn("Allowed dimensions shrink the requested size",
			zap.String("provider", i.cfg.Name),
			zap.String("kind", kind),
			zap.Int("requested_width", width),
			zap.Int("requested_height", height),
			zap.Int("allowed_width", w),
			zap.Int("allowed_height", h))
	}
	return w, h
}

// resolveAttr reads one attribute, invoking thunks. A nil value counts
// as absent.
func resolveAttr(ds DataSource, name string) (any, bool) {
	value, ok := ds.Attr(name)
	if !ok {
		return nil, false
	}
	if thunk, isThunk := value.(func() any); isThunk {
		value = thunk()
	}
	if value == nil {
		return nil, false
	}
	return value, true
}

func attrInt(ds DataSource, name string, fallback int) int {
	value, ok := resolveAttr(ds, name)
	if !ok {
		return fallback
	}
	if n, ok := intValue(value); ok {
		return n
	}
	return fallback
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
