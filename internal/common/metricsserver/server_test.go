package metricsserver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

type mockMetricsHandler struct {
	called bool
}

func (m *mockMetricsHandler) ServeHTTP(ctx *fasthttp.RequestCtx) {
	m.called = true
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBodyString("# HELP test_metric A test metric\n# TYPE test_metric counter\ntest_metric 42\n")
}

func TestStartMetricsServerDisabled(t *testing.T) {
	handler := &mockMetricsHandler{}

	server, err := StartMetricsServer(false, ":10079", "/metrics", handler, zap.NewNop())

	require.NoError(t, err)
	assert.Nil(t, server, "Should return nil when metrics disabled")
	assert.False(t, handler.called)
}

func TestStartMetricsServerServesScrapes(t *testing.T) {
	handler := &mockMetricsHandler{}

	server, err := StartMetricsServer(true, ":19091", "/metrics", handler, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, server)

	time.Sleep(200 * time.Millisecond)

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.ShutdownWithContext(ctx)
	}()

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://localhost:19091/metrics")
	req.Header.SetMethod("GET")
	// Avoid keep-alive to prevent shutdown/read data race in fasthttp internals
	req.Header.SetConnectionClose()

	client := &fasthttp.Client{MaxIdleConnDuration: 0}
	err = client.Do(req, resp)

	require.NoError(t, err)
	assert.Equal(t, fasthttp.StatusOK, resp.StatusCode())
	assert.True(t, handler.called)
	assert.Contains(t, string(resp.Body()), "test_metric 42")

	time.Sleep(100 * time.Millisecond)
}

func TestMetricsHandlerCorrectPath(t *testing.T) {
	mockHandler := &mockMetricsHandler{}

	handler := createMetricsHandler("/metrics", mockHandler)

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/metrics")

	handler(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.True(t, mockHandler.called)
}

func TestMetricsHandlerWrongPath(t *testing.T) {
	mockHandler := &mockMetricsHandler{}

	handler := createMetricsHandler("/metrics", mockHandler)

	testCases := []struct {
		name string
		path string
	}{
		{"root path", "/"},
		{"oembed path", "/oembed"},
		{"health path", "/healthz"},
		{"wrong metrics path", "/metric"},
		{"nested path", "/metrics/detailed"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockHandler.called = false
			ctx := &fasthttp.RequestCtx{}
			ctx.Request.SetRequestURI(tc.path)

			handler(ctx)

			assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
			assert.Equal(t, "Not Found", string(ctx.Response.Body()))
			assert.False(t, mockHandler.called)
		})
	}
}

func TestMetricsServerConfiguration(t *testing.T) {
	handler := &mockMetricsHandler{}

	server, err := StartMetricsServer(true, ":19094", "/metrics", handler, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, server)

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.ShutdownWithContext(ctx)
	}()

	assert.Equal(t, "Monocle-Metrics", server.Name)
	assert.Equal(t, 10*time.Second, server.ReadTimeout)
	assert.Equal(t, 10*time.Second, server.WriteTimeout)
	assert.Equal(t, 1*1024, server.MaxRequestBodySize)
}
