package provider

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/embedworks/monocle/internal/cache"
	"github.com/embedworks/monocle/internal/kv"
	"github.com/embedworks/monocle/pkg/oembed"
	"github.com/embedworks/monocle/pkg/types"
)

// mapSource is a DataSource backed by a plain map.
type mapSource map[string]any

func (m mapSource) Attr(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// mapResolver resolves URLs against a fixed set of objects.
type mapResolver struct {
	objects map[string]DataSource
	calls   atomic.Int64
}

func (r *mapResolver) GetObject(_ context.Context, rawURL string) (DataSource, error) {
	r.calls.Add(1)
	if ds, ok := r.objects[rawURL]; ok {
		return ds, nil
	}
	return nil, fmt.Errorf("no object for %s", rawURL)
}

func photoConfig() InternalConfig {
	return InternalConfig{
		Name:          "galleries",
		ResourceType:  "photo",
		Schemes:       []string{"https://app.example.com/gallery/*"},
		Dimensions:    []types.Dimension{{Width: 100, Height: 100}, {Width: 640, Height: 480}},
		DefaultWidth:  640,
		DefaultHeight: 480,
		Expose:        true,
		CheckSize:     true,
	}
}

func newInternalProvider(t *testing.T, cfg InternalConfig, resolver Resolver) *Internal {
	t.Helper()
	p, err := NewInternal(cfg, resolver, nil, defaultFreshness(), nil, zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestNewInternalValidation(t *testing.T) {
	resolver := &mapResolver{}

	testCases := []struct {
		name   string
		mutate func(*InternalConfig)
	}{
		{"missing name", func(c *InternalConfig) { c.Name = "" }},
		{"bad type", func(c *InternalConfig) { c.ResourceType = "slideshow" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := photoConfig()
			tc.mutate(&cfg)
			_, err := NewInternal(cfg, resolver, nil, defaultFreshness(), nil, zap.NewNop())
			assert.Error(t, err)
		})
	}

	t.Run("nil resolver", func(t *testing.T) {
		_, err := NewInternal(photoConfig(), nil, nil, defaultFreshness(), nil, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("caching without cache", func(t *testing.T) {
		cfg := photoConfig()
		cfg.CacheResources = true
		_, err := NewInternal(cfg, resolver, nil, defaultFreshness(), nil, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestInternalBuildsResource(t *testing.T) {
	url := "https://app.example.com/gallery/8"
	resolver := &mapResolver{objects: map[string]DataSource{
		url: mapSource{
			"url":    "https://cdn.example.com/gallery/8/cover.jpg",
			"width":  640,
			"height": 480,
			"title":  "Holiday",
		},
	}}
	p := newInternalProvider(t, photoConfig(), resolver)

	res, err := p.GetResource(context.Background(), url, Options{})
	require.NoError(t, err)

	assert.True(t, res.IsValid())
	assert.Equal(t, "photo", res.Type())
	assert.Equal(t, "1.0", res.Get("version"))
	assert.Equal(t, "https://cdn.example.com/gallery/8/cover.jpg", res.Get("url"))
	assert.Equal(t, 640, res.Get("width"))
	assert.Equal(t, 480, res.Get("height"))
	assert.Equal(t, "Holiday", res.Get("title"))
}

func TestInternalThunksInvokedLazily(t *testing.T) {
	url := "https://app.example.com/gallery/8"
	var thumbnailCalls atomic.Int64

	resolver := &mapResolver{objects: map[string]DataSource{
		url: mapSource{
			"url": func() any { return "https://cdn.example.com/gallery/8/cover.jpg" },
			"thumbnail_url": func() any {
				thumbnailCalls.Add(1)
				return "https://cdn.example.com/gallery/8/thumb.jpg"
			},
		},
	}}
	p := newInternalProvider(t, photoConfig(), resolver)

	res, err := p.GetResource(context.Background(), url, Options{})
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/gallery/8/cover.jpg", res.Get("url"))
	assert.Equal(t, "https://cdn.example.com/gallery/8/thumb.jpg", res.Get("thumbnail_url"))
	assert.Equal(t, int64(1), thumbnailCalls.Load())
}

func TestInternalMissingRequiredAttr(t *testing.T) {
	url := "https://app.example.com/gallery/8"
	resolver := &mapResolver{objects: map[string]DataSource{
		url: mapSource{"title": "No image here"},
	}}
	p := newInternalProvider(t, photoConfig(), resolver)

	_, err := p.GetResource(context.Background(), url, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestInternalUnresolvableURL(t *testing.T) {
	resolver := &mapResolver{objects: map[string]DataSource{}}
	p := newInternalProvider(t, photoConfig(), resolver)

	_, err := p.GetResource(context.Background(), "https://app.example.com/gallery/404", Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestInternalCanResolve(t *testing.T) {
	url := "https://app.example.com/gallery/8"
	resolver := &mapResolver{objects: map[string]DataSource{
		url: mapSource{"url": "x"},
	}}
	p := newInternalProvider(t, photoConfig(), resolver)
	ctx := context.Background()

	assert.True(t, p.CanResolve(ctx, url))
	assert.False(t, p.CanResolve(ctx, "https://app.example.com/gallery/404"))

	// Non-matching URLs never hit the resolver.
	before := resolver.calls.Load()
	assert.False(t, p.CanResolve(ctx, "https://other.example.com/x"))
	assert.Equal(t, before, resolver.calls.Load())
}

func TestInternalSizeSnapping(t *testing.T) {
	url := "https://app.example.com/gallery/8"
	resolver := &mapResolver{objects: map[string]DataSource{
		url: mapSource{"url": "https://cdn.example.com/8.jpg"},
	}}
	p := newInternalProvider(t, photoConfig(), resolver)

	// maxwidth 300 forces the 100x100 grid entry.
	res, err := p.GetResource(context.Background(), url, Options{MaxWidth: 300})
	require.NoError(t, err)
	assert.Equal(t, 100, res.Get("width"))
	assert.Equal(t, 100, res.Get("height"))
}

func TestInternalSizeSnappingWarnsWhenShrinking(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	url := "https://app.example.com/gallery/8"
	resolver := &mapResolver{objects: map[string]DataSource{
		url: mapSource{"url": "https://cdn.example.com/8.jpg", "width": 999, "height": 999},
	}}
	p, err := NewInternal(photoConfig(), resolver, nil, defaultFreshness(), nil, zap.New(core))
	require.NoError(t, err)

	res, err := p.GetResource(context.Background(), url, Options{})
	require.NoError(t, err)
	assert.Equal(t, 640, res.Get("width"))
	assert.Equal(t, 480, res.Get("height"))

	entries := logs.FilterMessage("Allowed dimensions shrink the requested size").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "size", entries[0].ContextMap()["kind"])
}

func TestInternalThumbnailSizeSnapping(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	url := "https://app.example.com/gallery/8"
	resolver := &mapResolver{objects: map[string]DataSource{
		url: mapSource{
			"url":              "https://cdn.example.com/8.jpg",
			"width":            640,
			"height":           480,
			"thumbnail_url":    "https://cdn.example.com/8-thumb.jpg",
			"thumbnail_width":  999,
			"thumbnail_height": 999,
		},
	}}
	p, err := NewInternal(photoConfig(), resolver, nil, defaultFreshness(), nil, zap.New(core))
	require.NoError(t, err)

	res, err := p.GetResource(context.Background(), url, Options{})
	require.NoError(t, err)
	assert.Equal(t, 640, res.Get("thumbnail_width"))
	assert.Equal(t, 480, res.Get("thumbnail_height"))

	entries := logs.FilterMessage("Allowed dimensions shrink the requested size").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "thumbnail", entries[0].ContextMap()["kind"])
}

func TestInternalLinkTypeNeedsNoDimensions(t *testing.T) {
	cfg := InternalConfig{
		Name:         "posts",
		ResourceType: "link",
		Schemes:      []string{"https://app.example.com/post/*"},
		Expose:       true,
	}
	url := "https://app.example.com/post/12"
	resolver := &mapResolver{objects: map[string]DataSource{
		url: mapSource{"title": "A post"},
	}}
	p := newInternalProvider(t, cfg, resolver)

	res, err := p.GetResource(context.Background(), url, Options{})
	require.NoError(t, err)
	assert.True(t, res.IsValid())
	assert.Nil(t, res.Get("width"))
}

func TestInternalCachedResources(t *testing.T) {
	cfg := photoConfig()
	cfg.CacheResources = true

	url := "https://app.example.com/gallery/8"
	resolver := &mapResolver{objects: map[string]DataSource{
		url: mapSource{"url": "https://cdn.example.com/8.jpg"},
	}}

	resourceCache := cache.New(kv.NewMemoryBackend(), cache.Config{
		KeyPrefix: "mncl",
		Age:       time.Hour,
	}, nil, nil, zap.NewNop())

	p, err := NewInternal(cfg, resolver, resourceCache, defaultFreshness(), nil, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = p.GetResource(ctx, url, Options{})
	require.NoError(t, err)
	first := resolver.calls.Load()

	_, err = p.GetResource(ctx, url, Options{})
	require.NoError(t, err)

	assert.Equal(t, first, resolver.calls.Load(), "second call should come from cache")
}

func TestInternalCachedConcurrentMissGetsPlaceholder(t *testing.T) {
	cfg := photoConfig()
	cfg.CacheResources = true

	url := "https://app.example.com/gallery/8"
	resolver := &mapResolver{objects: map[string]DataSource{
		url: mapSource{"url": "https://cdn.example.com/8.jpg"},
	}}

	resourceCache := cache.New(kv.NewMemoryBackend(), cache.Config{
		KeyPrefix: "mncl",
		Age:       time.Hour,
	}, nil, nil, zap.NewNop())

	p, err := NewInternal(cfg, resolver, resourceCache, defaultFreshness(), nil, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	// Another caller has already primed the entry and is still building.
	requestURL := RequestURL("internal://"+cfg.Name, url, Options{})
	_, primed, err := resourceCache.GetOrPrime(ctx, requestURL, oembed.NewResource(url))
	require.NoError(t, err)
	require.True(t, primed)

	res, err := p.GetResource(ctx, url, Options{})
	require.NoError(t, err)

	assert.False(t, res.IsValid(), "losing caller is served the placeholder")
	assert.Equal(t, int64(0), resolver.calls.Load(), "only the priming caller builds")
}
