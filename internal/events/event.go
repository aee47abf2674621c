// Package events carries the engine's operational event stream: cache
// outcomes, consume brackets, refresh results and provider registry
// changes. Sinks are pluggable; all of them are fire-and-forget.
package events

import "time"

// Event types emitted by the engine.
const (
	TypeCacheHit          = "cache_hit"
	TypeCacheMiss         = "cache_miss"
	TypePreConsume        = "pre_consume"
	TypePostConsume       = "post_consume"
	TypeProviderUpserted  = "provider_upserted"
	TypeProviderRemoved   = "provider_removed"
	TypeResourceRefreshed = "resource_refreshed"
	TypeRefreshFailed     = "refresh_failed"
)

// Event is one operational event. Fields that do not apply to a given
// type stay zero and render as "-" in file sinks.
type Event struct {
	// EventType is one of the Type* constants.
	EventType string `json:"event_type"`

	// Key is the cache key involved, when there is one.
	Key string `json:"key"`

	// URL is the subject URL (consumed text source, provider endpoint,
	// or matched link depending on the event type).
	URL string `json:"url"`

	// RequestURL is the canonical provider request URL for cache and
	// refresh events.
	RequestURL string `json:"request_url"`

	// Provider names the provider involved, when known.
	Provider string `json:"provider"`

	// ErrorMessage is set on failure events.
	ErrorMessage string `json:"error_message"`

	// Elapsed is the operation duration in seconds.
	Elapsed float64 `json:"elapsed"`

	CreatedAt time.Time `json:"created_at"`

	// EngineID identifies the emitting process instance.
	EngineID string `json:"engine_id"`
}
