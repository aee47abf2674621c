// Package httputil holds the response writers shared by the public and
// internal HTTP surfaces.
package httputil

import (
	json "github.com/goccy/go-json"
	"github.com/valyala/fasthttp"
)

// APIResponse is the unified envelope for internal API responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// JSONResponse sends a JSON response with the unified envelope.
func JSONResponse(ctx *fasthttp.RequestCtx, success bool, message string, data interface{}, statusCode int) {
	resp := APIResponse{
		Success: success,
		Message: message,
		Data:    data,
	}
	body, _ := json.Marshal(resp)
	ctx.SetStatusCode(statusCode)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// JSONError is a convenience wrapper for error responses.
func JSONError(ctx *fasthttp.RequestCtx, message string, statusCode int) {
	JSONResponse(ctx, false, message, nil, statusCode)
}

// JSONSuccess is a convenience wrapper for success responses with no data.
func JSONSuccess(ctx *fasthttp.RequestCtx, message string, statusCode int) {
	JSONResponse(ctx, true, message, nil, statusCode)
}

// JSONData is a convenience wrapper for success responses with data.
func JSONData(ctx *fasthttp.RequestCtx, data interface{}, statusCode int) {
	JSONResponse(ctx, true, "", data, statusCode)
}

// RawJSON sends a pre-serialized JSON payload as-is. The public oembed
// endpoint uses this; its payload shape is fixed by the OEmbed spec, not
// the internal envelope.
func RawJSON(ctx *fasthttp.RequestCtx, payload []byte, statusCode int) {
	ctx.SetStatusCode(statusCode)
	ctx.SetContentType("application/json")
	ctx.SetBody(payload)
}

// JSONP wraps a pre-serialized JSON payload in a callback invocation.
// The callback name must be validated by the caller.
func JSONP(ctx *fasthttp.RequestCtx, callback string, payload []byte, statusCode int) {
	body := make([]byte, 0, len(callback)+len(payload)+2)
	body = append(body, callback...)
	body = append(body, '(')
	body = append(body, payload...)
	body = append(body, ')')

	ctx.SetStatusCode(statusCode)
	ctx.SetContentType("application/javascript")
	ctx.SetBody(body)
}
