// Package oembed holds the OEmbed value types shared by providers, the
// resource cache and the serving endpoint: resource type tables, the
// Resource value object and its freshness rules.
package oembed

// Version is the only OEmbed protocol version this engine speaks.
const Version = "1.0"

// Resource type constants
const (
	TypeLink  = "link"
	TypePhoto = "photo"
	TypeRich  = "rich"
	TypeVideo = "video"
)

// Types lists the valid OEmbed resource types.
var Types = []string{TypeLink, TypePhoto, TypeRich, TypeVideo}

// RequiredAttrs maps a resource type to the attributes the OEmbed spec
// requires for it. Link resources require nothing beyond type/version.
var RequiredAttrs = map[string][]string{
	TypeLink:  {},
	TypePhoto: {"url", "width", "height"},
	TypeRich:  {"html", "width", "height"},
	TypeVideo: {"html", "width", "height"},
}

// OptionalAttrs lists the attributes the OEmbed spec treats as optional
// for every resource type.
var OptionalAttrs = []string{
	"title", "author_name", "author_url", "cache_age", "provider_name",
	"provider_url", "thumbnail_url", "thumbnail_width", "thumbnail_height",
}

// KnownType reports whether t is a valid OEmbed resource type.
func KnownType(t string) bool {
	_, ok := RequiredAttrs[t]
	return ok
}
