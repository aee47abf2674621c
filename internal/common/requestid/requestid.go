// Package requestid produces the request identifiers attached to every
// gateway response. Callers may supply their own ID; it is sanitized and
// prefixed with random characters so collisions between callers cannot
// forge each other's trace lines.
package requestid

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// MaxRequestIDLength caps the total length at UUID size.
	MaxRequestIDLength = 36
	// PrefixLength is the length of the random prefix.
	PrefixLength = 5
	// MaxCustomIDLength is what remains for the sanitized custom part:
	// 36 total - 5 prefix - 1 hyphen.
	MaxCustomIDLength = MaxRequestIDLength - PrefixLength - 1
)

var (
	invalidChars    = regexp.MustCompile(`[^a-zA-Z0-9-]+`)
	repeatedHyphens = regexp.MustCompile(`-+`)
)

// Generate builds a request ID. A non-empty customID (typically the
// inbound X-Request-ID header) is sanitized to [a-zA-Z0-9-] and prefixed
// with 5 random characters; an empty or fully-stripped customID falls
// back to a plain UUID.
func Generate(customID string) string {
	sanitized := strings.ReplaceAll(customID, " ", "-")
	sanitized = invalidChars.ReplaceAllString(sanitized, "")
	sanitized = repeatedHyphens.ReplaceAllString(sanitized, "-")
	sanitized = strings.Trim(sanitized, "-")

	if sanitized == "" {
		return uuid.New().String()
	}

	if len(sanitized) > MaxCustomIDLength {
		sanitized = sanitized[:MaxCustomIDLength]
	}

	return randomPrefix() + "-" + sanitized
}

// randomPrefix returns 5 random hex characters.
func randomPrefix() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return uuid.New().String()[:PrefixLength]
	}
	return hex.EncodeToString(bytes)[:PrefixLength]
}
