// Package urlglob compiles provider URL schemes into matchers.
//
// Scheme Matching Behavior:
//
//   - Literal characters: case-insensitive, matched from the start of the
//     URL ("http://example.com/a" matches "HTTP://example.com/a/b")
//
//   - Wildcard (*): matches any run of characters, as little as possible
//     ("http://*.youtube.com/watch*" matches "http://www.youtube.com/watch?v=x")
//
//   - Dots and every other regexp metacharacter are literal
//
// A matcher compiled from an empty scheme list matches nothing.
package urlglob

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// overbroadNetloc rejects scheme hosts that would claim a whole TLD:
// a bare "*", "*.<2-3 letter tld>" or the "*.<2>.<2>" country form.
var overbroadNetloc = regexp.MustCompile(`(?i)^\*(\.[a-z]{2,3}|\.[a-z]{2}\.[a-z]{2})?$`)

// Matcher matches URLs against a provider's compiled scheme set.
type Matcher struct {
	schemes []string
	re      *regexp.Regexp // nil when the scheme list is empty
}

// Compile builds a single grouped matcher from a provider's URL schemes.
// Schemes are plain strings where only * is special; everything else is
// escaped before compilation.
func Compile(schemes []string) (*Matcher, error) {
	m := &Matcher{schemes: schemes}
	if len(schemes) == 0 {
		return m, nil
	}

	alternatives := make([]string, 0, len(schemes))
	for _, scheme := range schemes {
		quoted := regexp.QuoteMeta(scheme)
		alternatives = append(alternatives, strings.ReplaceAll(quoted, `\*`, `.*?`))
	}

	re, err := regexp.Compile(`(?i)^(?:` + strings.Join(alternatives, `|`) + `)`)
	if err != nil {
		return nil, fmt.Errorf("invalid url scheme set %v: %w", schemes, err)
	}
	m.re = re

	return m, nil
}

// Match tests whether rawURL matches any of the compiled schemes.
func (m *Matcher) Match(rawURL string) bool {
	if m == nil || m.re == nil {
		return false
	}
	return m.re.MatchString(rawURL)
}

// Schemes returns the scheme strings the matcher was compiled from.
func (m *Matcher) Schemes() []string {
	if m == nil {
		return nil
	}
	return m.schemes
}

// ValidateScheme checks that a URL scheme string is specific enough to
// register: it needs an explicit http/https scheme and must not wildcard
// an entire top-level domain.
func ValidateScheme(scheme string) error {
	parsed, err := url.Parse(scheme)
	if err != nil {
		return fmt.Errorf("invalid url scheme %q: %w", scheme, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("url scheme %q must start with http:// or https://", scheme)
	}
	if host := parsed.Host; host == "" || overbroadNetloc.MatchString(host) {
		return fmt.Errorf("url scheme %q is too broad", scheme)
	}
	return nil
}

// ValidateEndpoint checks a provider API endpoint. OEmbed endpoints are
// plain http; https endpoints are rejected outright.
func ValidateEndpoint(endpoint string) error {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid api endpoint %q: %w", endpoint, err)
	}
	if parsed.Scheme == "https" {
		return fmt.Errorf("api endpoint %q must not use https", endpoint)
	}
	if parsed.Scheme != "http" || parsed.Host == "" {
		return fmt.Errorf("api endpoint %q must be an absolute http url", endpoint)
	}
	return nil
}
