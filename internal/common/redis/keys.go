package redis

import "strings"

// Key layout. Every key the engine writes lives under the configured
// prefix so several deployments can share one Redis.
//
//	<prefix>:resource:<fingerprint>   cached resource envelope
//	<prefix>:refreshq:<queue>         refresh queue (ZSET scored by ready time)
const (
	resourceKeySegment = "resource"
	queueKeySegment    = "refreshq"
)

// MakeKey joins a prefix and parts with ':'.
func MakeKey(prefix string, parts ...string) string {
	return prefix + ":" + strings.Join(parts, ":")
}

// ResourceKey builds the cache key for a resource fingerprint.
func ResourceKey(prefix, fingerprint string) string {
	return MakeKey(prefix, resourceKeySegment, fingerprint)
}

// QueueKey builds the refresh queue key for a named queue.
func QueueKey(prefix, queue string) string {
	return MakeKey(prefix, queueKeySegment, queue)
}
