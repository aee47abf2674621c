package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/embedworks/monocle/internal/common/httputil"
	"github.com/embedworks/monocle/internal/consumer"
	"github.com/embedworks/monocle/internal/provider"
	"github.com/embedworks/monocle/internal/registry"
)

// prefetchTimeout bounds a background prefetch run.
const prefetchTimeout = 2 * time.Minute

var errInvalidSize = errors.New("sizes entries must be a positive number or a [width, height] pair")

// InternalAPI implements the internal endpoint handlers on top of the
// consumer and the registry.
type InternalAPI struct {
	enricher   *consumer.Consumer
	prefetcher *consumer.Consumer
	registry   *registry.Registry
	logger     *zap.Logger
}

// NewInternalAPI builds the handlers. enricher serves /internal/enrich;
// prefetcher (usually configured to skip internal providers) serves
// /internal/prefetch.
func NewInternalAPI(enricher, prefetcher *consumer.Consumer, reg *registry.Registry, logger *zap.Logger) *InternalAPI {
	return &InternalAPI{
		enricher:   enricher,
		prefetcher: prefetcher,
		registry:   reg,
		logger:     logger,
	}
}

// RegisterRoutes attaches all internal endpoints to the server.
func (a *InternalAPI) RegisterRoutes(s *InternalServer) {
	s.RegisterHandler(fasthttp.MethodPost, PathEnrich, a.HandleEnrich)
	s.RegisterHandler(fasthttp.MethodPost, PathPrefetch, a.HandlePrefetch)
	s.RegisterHandler(fasthttp.MethodGet, PathProviders, a.HandleProviders)
}

// EnrichRequest carries plain text and/or HTML to enrich.
type EnrichRequest struct {
	Content   string `json:"content,omitempty"`
	HTML      string `json:"html,omitempty"`
	MaxWidth  int    `json:"maxwidth,omitempty"`
	MaxHeight int    `json:"maxheight,omitempty"`
}

// EnrichResponse mirrors the request with embeds substituted.
type EnrichResponse struct {
	Content string `json:"content,omitempty"`
	HTML    string `json:"html,omitempty"`
}

// HandleEnrich runs text and HTML enrichment synchronously.
func (a *InternalAPI) HandleEnrich(ctx *fasthttp.RequestCtx) {
	var req EnrichRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		httputil.JSONError(ctx, "invalid request body", fasthttp.StatusBadRequest)
		return
	}
	if req.Content == "" && req.HTML == "" {
		httputil.JSONError(ctx, "content or html is required", fasthttp.StatusBadRequest)
		return
	}

	opts := provider.Options{MaxWidth: req.MaxWidth, MaxHeight: req.MaxHeight}
	resp := EnrichResponse{}

	if req.Content != "" {
		resp.Content = a.enricher.Enrich(ctx, req.Content, opts)
	}
	if req.HTML != "" {
		enriched, err := a.enricher.Devour(ctx, req.HTML, opts)
		if err != nil {
			a.logger.Warn("HTML enrichment failed", zap.Error(err))
			httputil.JSONError(ctx, "failed to enrich html", fasthttp.StatusInternalServerError)
			return
		}
		resp.HTML = enriched
	}

	httputil.JSONData(ctx, resp, fasthttp.StatusOK)
}

// PrefetchRequest carries content to warm the cache for. Sizes entries
// are either a scalar number or a [width, height] pair.
type PrefetchRequest struct {
	Content string `json:"content,omitempty"`
	HTML    string `json:"html,omitempty"`
	Sizes   []any  `json:"sizes,omitempty"`
}

// HandlePrefetch starts a background prefetch and answers 202.
func (a *InternalAPI) HandlePrefetch(ctx *fasthttp.RequestCtx) {
	var req PrefetchRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		httputil.JSONError(ctx, "invalid request body", fasthttp.StatusBadRequest)
		return
	}
	if req.Content == "" && req.HTML == "" {
		httputil.JSONError(ctx, "content or html is required", fasthttp.StatusBadRequest)
		return
	}

	sizes, err := parseSizes(req.Sizes)
	if err != nil {
		httputil.JSONError(ctx, err.Error(), fasthttp.StatusBadRequest)
		return
	}

	// Fire and forget, the request context dies with the response.
	go func() {
		bg, cancel := context.WithTimeout(context.Background(), prefetchTimeout)
		defer cancel()
		if req.Content != "" {
			a.prefetcher.Prefetch(bg, req.Content, sizes)
		}
		if req.HTML != "" {
			a.prefetcher.Prefetch(bg, req.HTML, sizes)
		}
	}()

	httputil.JSONSuccess(ctx, "prefetch started", fasthttp.StatusAccepted)
}

// ProviderInfo is one registry entry in the providers listing.
type ProviderInfo struct {
	Name         string `json:"name"`
	ResourceType string `json:"resource_type"`
	Internal     bool   `json:"internal"`
	Expose       bool   `json:"expose"`
}

// HandleProviders dumps the current provider set for inspection.
func (a *InternalAPI) HandleProviders(ctx *fasthttp.RequestCtx) {
	providers := a.registry.Providers()
	infos := make([]ProviderInfo, 0, len(providers))
	for _, p := range providers {
		infos = append(infos, ProviderInfo{
			Name:         p.Name(),
			ResourceType: p.ResourceType(),
			Internal:     p.IsInternal(),
			Expose:       p.Expose(),
		})
	}
	httputil.JSONData(ctx, infos, fasthttp.StatusOK)
}

// parseSizes decodes the mixed scalar/pair size list.
func parseSizes(raw []any) ([]consumer.Size, error) {
	sizes := make([]consumer.Size, 0, len(raw))
	for _, entry := range raw {
		switch v := entry.(type) {
		case float64:
			if v <= 0 {
				return nil, errInvalidSize
			}
			sizes = append(sizes, consumer.Scalar(int(v)))
		case []any:
			if len(v) != 2 {
				return nil, errInvalidSize
			}
			w, wok := v[0].(float64)
			h, hok := v[1].(float64)
			if !wok || !hok || w <= 0 || h <= 0 {
				return nil, errInvalidSize
			}
			sizes = append(sizes, consumer.Pair(int(w), int(h)))
		default:
			return nil, errInvalidSize
		}
	}
	return sizes, nil
}
