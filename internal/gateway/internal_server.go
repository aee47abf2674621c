package gateway

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/embedworks/monocle/internal/common/httputil"
)

// Internal endpoint paths.
const (
	PathEnrich    = "/internal/enrich"
	PathPrefetch  = "/internal/prefetch"
	PathProviders = "/internal/providers"
)

// InternalServer handles trusted application-to-gateway requests,
// authenticated with the shared X-Internal-Auth key.
type InternalServer struct {
	authKey   []byte
	routes    map[string]map[string]fasthttp.RequestHandler // method -> path -> handler
	server    *fasthttp.Server
	listener  net.Listener
	address   string
	logger    *zap.Logger
	startTime time.Time
}

// NewInternalServer creates the internal HTTP server. Handlers are
// attached with RegisterHandler before Start.
func NewInternalServer(authKey string, logger *zap.Logger) *InternalServer {
	return &InternalServer{
		authKey:   []byte(authKey),
		routes:    make(map[string]map[string]fasthttp.RequestHandler),
		logger:    logger,
		startTime: time.Now().UTC(),
	}
}

// RegisterHandler registers a handler for a method and path.
func (s *InternalServer) RegisterHandler(method, path string, handler fasthttp.RequestHandler) {
	if s.routes[method] == nil {
		s.routes[method] = make(map[string]fasthttp.RequestHandler)
	}

	if _, exists := s.routes[method][path]; exists {
		s.logger.Warn("Overwriting existing handler registration",
			zap.String("method", method),
			zap.String("path", path))
	}

	s.routes[method][path] = handler
	s.logger.Debug("Registered internal handler",
		zap.String("method", method),
		zap.String("path", path))
}

// Start begins accepting requests on address. Blocks until Shutdown.
func (s *InternalServer) Start(address string) error {
	s.address = address

	s.server = &fasthttp.Server{
		Handler: s.Handler(),
		Name:    "Monocle-Internal",
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.listener = listener

	s.logger.Info("Internal server started",
		zap.String("address", address))

	return s.server.Serve(listener)
}

// Shutdown gracefully stops the internal server.
func (s *InternalServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("Shutting down internal server")
	return s.server.ShutdownWithContext(ctx)
}

// Handler returns the fasthttp request handler.
func (s *InternalServer) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if !s.authenticate(ctx) {
			return
		}

		method := string(ctx.Method())
		path := string(ctx.Path())

		if methodRoutes, ok := s.routes[method]; ok {
			if handler, ok := methodRoutes[path]; ok {
				handler(ctx)
				return
			}
		}

		// 405 when the path exists under another method.
		for _, methodRoutes := range s.routes {
			if _, ok := methodRoutes[path]; ok {
				httputil.JSONError(ctx, "method not allowed", fasthttp.StatusMethodNotAllowed)
				return
			}
		}

		httputil.JSONError(ctx, "not found", fasthttp.StatusNotFound)
	}
}

// authenticate validates X-Internal-Auth in constant time.
func (s *InternalServer) authenticate(ctx *fasthttp.RequestCtx) bool {
	authHeader := ctx.Request.Header.Peek("X-Internal-Auth")

	if subtle.ConstantTimeCompare(authHeader, s.authKey) != 1 {
		s.logger.Warn("Rejected internal request",
			zap.String("remote_addr", ctx.RemoteAddr().String()),
			zap.String("path", string(ctx.Path())),
			zap.Bool("auth_header_present", len(authHeader) > 0))
		httputil.JSONError(ctx, "unauthorized", fasthttp.StatusUnauthorized)
		return false
	}

	return true
}

// Address returns the bound listen address.
func (s *InternalServer) Address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.address
}
