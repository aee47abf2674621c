// Package gateway serves the public OEmbed endpoint and the
// authenticated internal API.
package gateway

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/embedworks/monocle/internal/common/httputil"
	"github.com/embedworks/monocle/internal/common/requestid"
	"github.com/embedworks/monocle/internal/metrics"
	"github.com/embedworks/monocle/internal/provider"
	"github.com/embedworks/monocle/internal/registry"
)

// jsonpCallback is the shape of an acceptable callback name. Anything
// else is rejected so the JSONP wrapper cannot inject script.
var jsonpCallback = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$.]*$`)

// HealthChecker reports backend liveness for /healthz.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server is the public gateway surface.
type Server struct {
	registry  *registry.Registry
	health    HealthChecker
	collector *metrics.Collector
	logger    *zap.Logger

	server  *fasthttp.Server
	timeout time.Duration
}

// NewServer builds the public server. health and collector may be nil.
func NewServer(reg *registry.Registry, health HealthChecker, collector *metrics.Collector, timeout time.Duration, logger *zap.Logger) *Server {
	return &Server{
		registry:  reg,
		health:    health,
		collector: collector,
		logger:    logger,
		timeout:   timeout,
	}
}

// Start begins serving on address. Blocks until Shutdown.
func (s *Server) Start(address string) error {
	s.server = &fasthttp.Server{
		Handler:      s.HandleRequest,
		Name:         "Monocle-Gateway",
		ReadTimeout:  s.timeout,
		WriteTimeout: s.timeout,
	}

	s.logger.Info("Gateway server starting",
		zap.String("listen", address))
	return s.server.ListenAndServe(address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("Shutting down gateway server")
	return s.server.ShutdownWithContext(ctx)
}

// HandleRequest routes public requests.
func (s *Server) HandleRequest(ctx *fasthttp.RequestCtx) {
	requestID := requestid.Generate(string(ctx.Request.Header.Peek("X-Request-ID")))
	ctx.Response.Header.Set("X-Request-ID", requestID)

	switch string(ctx.Path()) {
	case "/oembed":
		s.handleOEmbed(ctx, requestID)
	case "/healthz":
		s.handleHealthz(ctx)
	default:
		httputil.JSONError(ctx, "not found", fasthttp.StatusNotFound)
	}
}

// handleOEmbed implements the OEmbed provider endpoint: resolve the
// content URL through the registry and answer with the resource
// payload. Placeholders and incomplete resources answer 404, the caller
// retries after the refresh pipeline has done its work.
func (s *Server) handleOEmbed(ctx *fasthttp.RequestCtx, requestID string) {
	start := time.Now()
	status := fasthttp.StatusOK
	defer func() {
		s.collector.RecordRequest("/oembed", strconv.Itoa(status), time.Since(start))
	}()
	s.collector.IncActiveRequests()
	defer s.collector.DecActiveRequests()

	logger := s.logger.With(zap.String("request_id", requestID))

	if !ctx.IsGet() {
		status = fasthttp.StatusMethodNotAllowed
		httputil.JSONError(ctx, "method not allowed", status)
		return
	}

	args := ctx.QueryArgs()

	rawURL := string(args.Peek("url"))
	if rawURL == "" {
		status = fasthttp.StatusBadRequest
		httputil.JSONError(ctx, "url parameter is required", status)
		return
	}

	if format := string(args.Peek("format")); format != "" && format != "json" {
		status = fasthttp.StatusNotImplemented
		httputil.JSONError(ctx, "only json format is implemented", status)
		return
	}

	opts := provider.Options{
		MaxWidth:  positiveInt(args.Peek("maxwidth")),
		MaxHeight: positiveInt(args.Peek("maxheight")),
	}

	p := s.registry.Match(ctx, rawURL)
	if p == nil || !p.Expose() {
		status = fasthttp.StatusNotFound
		httputil.JSONError(ctx, "no provider for url", status)
		return
	}

	res, err := p.GetResource(ctx, rawURL, opts)
	if err != nil {
		if errors.Is(err, provider.ErrNotImplemented) {
			status = fasthttp.StatusNotFound
			httputil.JSONError(ctx, "resource not embeddable", status)
			return
		}
		logger.Error("Failed to resolve resource",
			zap.String("url", rawURL),
			zap.String("provider", p.Name()),
			zap.Error(err))
		status = fasthttp.StatusInternalServerError
		httputil.JSONError(ctx, "internal error", status)
		return
	}

	if !res.IsValid() {
		// Typically a freshly primed placeholder.
		status = fasthttp.StatusNotFound
		httputil.JSONError(ctx, "resource not available yet", status)
		return
	}

	payload, err := res.Payload()
	if err != nil {
		logger.Error("Failed to serialize resource",
			zap.String("url", rawURL),
			zap.Error(err))
		status = fasthttp.StatusInternalServerError
		httputil.JSONError(ctx, "internal error", status)
		return
	}

	s.collector.RecordEmbed(res.Type())

	if callback := string(args.Peek("callback")); callback != "" {
		if !jsonpCallback.MatchString(callback) {
			status = fasthttp.StatusBadRequest
			httputil.JSONError(ctx, "invalid callback name", status)
			return
		}
		httputil.JSONP(ctx, callback, payload, fasthttp.StatusOK)
		return
	}

	httputil.RawJSON(ctx, payload, fasthttp.StatusOK)
}

func (s *Server) handleHealthz(ctx *fasthttp.RequestCtx) {
	if s.health != nil {
		if err := s.health.HealthCheck(ctx); err != nil {
			ctx.Response.Header.Set("Content-Type", "text/plain")
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			ctx.SetBodyString("cache backend unavailable")
			return
		}
	}
	ctx.Response.Header.Set("Content-Type", "text/plain")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBodyString("OK")
}

// positiveInt parses a size constraint. Anything non-numeric or not
// positive is dropped rather than rejected.
func positiveInt(raw []byte) int {
	if len(raw) == 0 {
		return 0
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
