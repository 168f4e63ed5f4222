package urlkit

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func normalize(t *testing.T, raw string) string {
	t.Helper()
	u, err := Normalize(raw)
	require.NoError(t, err)
	return u.String()
}

func TestNormalizeKeepsHTTPScheme(t *testing.T) {
	assert.Equal(t, "http://example.com/page", normalize(t, "http://example.com/page"))
}

func TestNormalizeRemovesWWW(t *testing.T) {
	assert.Equal(t, "https://example.com/", normalize(t, "https://www.example.com/"))
}

func TestNormalizeRemovesTrailingSlash(t *testing.T) {
	assert.Equal(t, "https://example.com/page", normalize(t, "https://example.com/page/"))
}

func TestNormalizeKeepsRootSlash(t *testing.T) {
	assert.Equal(t, "https://example.com/", normalize(t, "https://example.com/"))
}

func TestNormalizeEmptyPathBecomesRoot(t *testing.T) {
	assert.Equal(t, "https://example.com/", normalize(t, "https://example.com"))
}

func TestNormalizeRemovesFragment(t *testing.T) {
	assert.Equal(t, "https://example.com/page", normalize(t, "https://example.com/page#section"))
}

func TestNormalizeLowercasesDomain(t *testing.T) {
	assert.Equal(t, "https://example.com/Page", normalize(t, "https://EXAMPLE.COM/Page"))
}

func TestNormalizeKeepsPort(t *testing.T) {
	assert.Equal(t, "https://example.com:8443/page", normalize(t, "https://EXAMPLE.com:8443/page"))
}

func TestNormalizeCollapsesMultipleSlashes(t *testing.T) {
	assert.Equal(t, "https://example.com/path/to/page", normalize(t, "https://example.com///path//to///page"))
}

func TestNormalizeResolvesDotSegments(t *testing.T) {
	assert.Equal(t, "https://example.com/b/c", normalize(t, "https://example.com/a/../b/./c"))
}

func TestNormalizeParentDirectoryAtRootIsAbsorbed(t *testing.T) {
	assert.Equal(t, "https://example.com/page", normalize(t, "https://example.com/../page"))
}

func TestNormalizeRemovesTrackingParams(t *testing.T) {
	assert.Equal(t, "https://example.com/page", normalize(t, "https://example.com/page?utm_source=twitter"))
}

func TestNormalizeAllTrackingParams(t *testing.T) {
	params := []string{
		"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
		"fbclid", "gclid", "mc_eid", "ref", "source",
	}
	for _, param := range params {
		raw := "https://example.com/page?" + param + "=value"
		assert.Equal(t, "https://example.com/page", normalize(t, raw), "failed to remove %s", param)
	}
}

func TestNormalizeCustomUtmParam(t *testing.T) {
	assert.Equal(t, "https://example.com/page", normalize(t, "https://example.com/page?utm_custom=value"))
}

func TestNormalizeSortsQueryParams(t *testing.T) {
	assert.Equal(t, "https://example.com/page?a=1&b=2", normalize(t, "https://example.com/page?b=2&a=1"))
}

func TestNormalizeMixedQueryParams(t *testing.T) {
	got := normalize(t, "https://example.com/page?keep=yes&utm_medium=email&another=value&fbclid=123")
	assert.Equal(t, "https://example.com/page?another=value&keep=yes", got)
}

func TestNormalizeComplex(t *testing.T) {
	got := normalize(t, "http://WWW.EXAMPLE.COM/a/../b/?utm_source=test#fragment")
	assert.Equal(t, "http://example.com/b", got)
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"https://WWW.Example.com//a/./b/../c/?z=1&a=2&utm_source=x#frag",
		"http://example.com",
		"https://example.com/page?b=2&a=1",
	}
	for _, input := range inputs {
		once := normalize(t, input)
		twice := normalize(t, once)
		assert.Equal(t, once, twice, "normalization of %q is not idempotent", input)
	}
}

func TestNormalizeRejectsInvalidScheme(t *testing.T) {
	_, err := Normalize("ftp://example.com/page")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidScheme))
}

func TestNormalizeRejectsMissingDomain(t *testing.T) {
	_, err := Normalize("https:///path-only")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingDomain))
}

func TestNormalizeRejectsMalformed(t *testing.T) {
	_, err := Normalize("https://exa mple.com/")
	require.Error(t, err)
}
