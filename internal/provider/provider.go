// Package provider implements the two kinds of OEmbed providers the
// engine consumes from: external ones, which proxy a remote provider's
// API endpoint through the resource cache, and internal ones, which
// build resources directly from application objects.
package provider

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/embedworks/monocle/pkg/oembed"
)

// ErrNotImplemented signals that a provider matched a URL but cannot
// produce a complete resource for it.
var ErrNotImplemented = errors.New("oembed resource not implemented for url")

// Options carries the consumer's size constraints for one request.
// Zero means unconstrained.
type Options struct {
	MaxWidth  int
	MaxHeight int
}

// Provider resolves content URLs into OEmbed resources.
type Provider interface {
	// Name identifies the provider in logs, metrics and events.
	Name() string

	// Match reports whether the provider claims rawURL.
	Match(rawURL string) bool

	// GetResource returns the resource for rawURL under the given size
	// constraints. The result may be a not-yet-populated placeholder
	// when the data is still being fetched.
	GetResource(ctx context.Context, rawURL string, opts Options) (*oembed.Resource, error)

	// ResourceType is the OEmbed type this provider produces.
	ResourceType() string

	// Expose reports whether the provider is served on the public
	// OEmbed endpoint.
	Expose() bool

	// IsInternal distinguishes internal providers from external ones.
	IsInternal() bool
}

// Enqueuer schedules an asynchronous refresh of a canonical request
// URL. Implemented by the refresh package; external providers only
// need this one method.
type Enqueuer interface {
	Schedule(ctx context.Context, requestURL string) error
}

// Freshness carries the TTL clamp applied to cached resources.
type Freshness struct {
	// MinTTL is the floor under provider-supplied cache_age values.
	MinTTL time.Duration

	// DefaultTTL applies when the provider sends no usable cache_age.
	DefaultTTL time.Duration
}

// RequestURL builds the canonical provider request URL for a content
// URL and options. JSON is the only response format ever requested.
// Parameters are sorted, so equal requests always produce the same
// cache key; zero dimensions are omitted.
func RequestURL(endpoint, contentURL string, opts Options) string {
	values := url.Values{}
	values.Set("url", contentURL)
	values.Set("format", "json")
	if opts.MaxWidth > 0 {
		values.Set("maxwidth", strconv.Itoa(opts.MaxWidth))
	}
	if opts.MaxHeight > 0 {
		values.Set("maxheight", strconv.Itoa(opts.MaxHeight))
	}

	separator := "?"
	if strings.Contains(endpoint, "?") {
		separator = "&"
	}
	return endpoint + separator + values.Encode()
}

// ContentURL extracts the content URL back out of a canonical request
// URL. Used by the refresh pipeline to know which resource a fetched
// response belongs to.
func ContentURL(requestURL string) (string, error) {
	parsed, err := url.Parse(requestURL)
	if err != nil {
		return "", err
	}
	content := parsed.Query().Get("url")
	if content == "" {
		return "", errors.New("request url carries no content url")
	}
	return content, nil
}
