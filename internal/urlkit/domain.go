package urlkit

import (
	"net/url"
	"strings"
)

// ExtractDomain returns the lowercase host of a URL, without the port.
// Returns "" when the URL has no host.
func ExtractDomain(u *url.URL) string {
	return strings.ToLower(u.Hostname())
}

// MatchesWildcard reports whether candidate matches a domain pattern.
//
// Two pattern forms are supported:
//   - exact: "example.com" matches only "example.com"
//   - wildcard: "*.example.com" matches "example.com" itself and any
//     subdomain, dot-anchored ("myexample.com" does not match)
func MatchesWildcard(pattern, candidate string) bool {
	if base, ok := strings.CutPrefix(pattern, "*."); ok {
		return candidate == base || strings.HasSuffix(candidate, "."+base)
	}
	return candidate == pattern
}
