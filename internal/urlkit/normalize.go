package urlkit

import (
	"net/url"
	"sort"
	"strings"
)

// trackingParams are query parameter keys removed during normalization.
// Any key with the utm_ prefix is removed as well.
var trackingParams = map[string]struct{}{
	"fbclid": {},
	"gclid":  {},
	"mc_eid": {},
	"ref":    {},
	"source": {},
}

// Normalize canonicalizes a URL string.
//
// Steps, in order:
//  1. Parse; reject malformed input
//  2. Reject schemes other than http/https
//  3. Lowercase the host
//  4. Strip a leading www. prefix
//  5. Normalize the path: collapse slash runs, resolve . and .. segments
//     (.. at root is absorbed), drop the trailing slash except for root,
//     empty path becomes /
//  6. Drop the fragment
//  7. Drop tracking query parameters
//  8. Sort surviving query parameters by key
//  9. Drop the ? when no parameters survive
func Normalize(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, ErrMalformedURL
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrInvalidScheme
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, ErrMissingDomain
	}
	host = strings.TrimPrefix(host, "www.")
	if port := u.Port(); port != "" {
		host = host + ":" + port
	}
	u.Host = host
	u.User = nil

	u.Path = normalizePath(u.Path)
	u.RawPath = ""

	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		u.RawQuery = filterAndSortQuery(u.Query())
	}
	u.ForceQuery = false

	return u, nil
}

// normalizePath collapses slash runs, resolves dot segments, and trims the
// trailing slash (except for root).
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}

	segments := strings.Split(path, "/")
	normalized := make([]string, 0, len(segments))

	for _, segment := range segments {
		switch segment {
		case "", ".":
			continue
		case "..":
			if len(normalized) > 0 {
				normalized = normalized[:len(normalized)-1]
			}
		default:
			normalized = append(normalized, segment)
		}
	}

	if len(normalized) == 0 {
		return "/"
	}

	return "/" + strings.Join(normalized, "/")
}

// filterAndSortQuery drops tracking parameters and rebuilds the query
// string with keys in lexicographic order. Returns "" when nothing survives.
func filterAndSortQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if isTrackingParam(key) {
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		for _, value := range values[key] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(value))
		}
	}
	return b.String()
}

func isTrackingParam(key string) bool {
	if _, ok := trackingParams[key]; ok {
		return true
	}
	return strings.HasPrefix(key, "utm_")
}
