package oembed

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Resource is a cached OEmbed response for a single content URL. Data holds
// the provider's response document as-is; CreatedAt is when this copy was
// produced and drives staleness.
type Resource struct {
	URL       string
	Data      map[string]any
	CreatedAt time.Time
}

// NewResource builds an empty resource for url, dated now. Empty resources
// act as cache placeholders while the real response is being fetched.
func NewResource(url string) *Resource {
	return NewResourceWithData(url, nil)
}

// NewResourceWithData builds a resource for url carrying a provider
// response document, dated now.
func NewResourceWithData(url string, data map[string]any) *Resource {
	return &Resource{
		URL:       url,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
}

// Type returns the resource's OEmbed type, or "" when absent.
func (r *Resource) Type() string {
	t, _ := r.Data["type"].(string)
	return t
}

// Get returns a single attribute from the response document.
func (r *Resource) Get(attr string) any {
	return r.Data[attr]
}

// TTL is how long this resource may be served before it counts as stale:
// the provider's cache_age when it parses as an integer, defaultTTL
// otherwise, never below minTTL. Providers send cache_age as a JSON number
// or as a numeric string; both are accepted.
func (r *Resource) TTL(minTTL, defaultTTL time.Duration) time.Duration {
	ttl := defaultTTL
	if sec, ok := cacheAgeSeconds(r.Data["cache_age"]); ok {
		ttl = time.Duration(sec) * time.Second
	}
	if ttl < minTTL {
		return minTTL
	}
	return ttl
}

// IsStale reports whether the resource has outlived its TTL.
func (r *Resource) IsStale(minTTL, defaultTTL time.Duration) bool {
	return time.Since(r.CreatedAt) > r.TTL(minTTL, defaultTTL)
}

// Refresh re-dates the resource to now, deferring the next refresh by a
// full TTL window.
func (r *Resource) Refresh() {
	r.CreatedAt = time.Now().UTC()
}

// IsValid reports whether the response document is complete enough to
// serve: non-empty, a known type, and every attribute that type requires
// present and non-empty.
func (r *Resource) IsValid() bool {
	if len(r.Data) == 0 {
		return false
	}
	required, ok := RequiredAttrs[r.Type()]
	if !ok {
		return false
	}
	for _, attr := range required {
		if !truthy(r.Data[attr]) {
			return false
		}
	}
	return true
}

// Payload serializes the response document alone, the shape the OEmbed
// endpoint returns to consumers.
func (r *Resource) Payload() ([]byte, error) {
	data, err := json.Marshal(r.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource payload for %s: %w", r.URL, err)
	}
	return data, nil
}

// envelope is the cache wire form: the document plus the bookkeeping the
// staleness check needs.
type envelope struct {
	URL       string         `json:"url"`
	CreatedAt time.Time      `json:"created_at"`
	Data      map[string]any `json:"data,omitempty"`
}

// Encode serializes the resource for cache storage.
func (r *Resource) Encode() ([]byte, error) {
	data, err := json.Marshal(envelope{URL: r.URL, CreatedAt: r.CreatedAt, Data: r.Data})
	if err != nil {
		return nil, fmt.Errorf("failed to encode resource for %s: %w", r.URL, err)
	}
	return data, nil
}

// Decode restores a resource from its cache wire form.
func Decode(data []byte) (*Resource, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode cached resource: %w", err)
	}
	if env.URL == "" {
		return nil, fmt.Errorf("decoded resource has no url")
	}
	return &Resource{URL: env.URL, Data: env.Data, CreatedAt: env.CreatedAt}, nil
}

// cacheAgeSeconds extracts a cache_age value in seconds. Accepts the JSON
// number and numeric string forms providers actually send.
func cacheAgeSeconds(v any) (int64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case float64:
		return int64(val), true
	case int:
		return int64(val), true
	case int64:
		return val, true
	case json.Number:
		sec, err := val.Int64()
		return sec, err == nil
	case string:
		sec, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		return sec, err == nil
	default:
		return 0, false
	}
}

// truthy mirrors the presence check applied to required attributes: zero
// values and empty containers do not satisfy a requirement.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	case json.Number:
		return val.String() != "" && val.String() != "0"
	case map[string]any:
		return len(val) > 0
	case []any:
		return len(val) > 0
	default:
		return true
	}
}
