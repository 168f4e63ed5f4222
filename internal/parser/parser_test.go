package parser

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseURL(t *testing.T) *url.URL {
	t.Helper()
	u, err := url.Parse("https://example.com/page")
	require.NoError(t, err)
	return u
}

func parse(t *testing.T, body string) ParsedPage {
	t.Helper()
	parsed, err := Parse(body, baseURL(t))
	require.NoError(t, err)
	return parsed
}

func TestExtractTitle(t *testing.T) {
	parsed := parse(t, `<html><head><title>Test Page</title></head><body></body></html>`)
	assert.Equal(t, "Test Page", parsed.Title)
}

func TestExtractTitleTrimsWhitespace(t *testing.T) {
	parsed := parse(t, `<html><head><title>  Test Page  </title></head><body></body></html>`)
	assert.Equal(t, "Test Page", parsed.Title)
}

func TestNoTitle(t *testing.T) {
	parsed := parse(t, `<html><head></head><body></body></html>`)
	assert.Equal(t, "", parsed.Title)
}

func TestFirstTitleWins(t *testing.T) {
	parsed := parse(t, `<html><head><title>First</title><title>Second</title></head></html>`)
	assert.Equal(t, "First", parsed.Title)
}

func TestExtractAbsoluteLink(t *testing.T) {
	parsed := parse(t, `<html><body><a href="https://other.com/page">Link</a></body></html>`)
	assert.Equal(t, []string{"https://other.com/page"}, parsed.Links)
}

func TestExtractRelativeLinks(t *testing.T) {
	parsed := parse(t, `<html><body><a href="/other">Root</a><a href="other">Sibling</a></body></html>`)
	assert.Equal(t, []string{"https://example.com/other", "https://example.com/other"}, parsed.Links)
}

func TestSkipSpecialSchemes(t *testing.T) {
	parsed := parse(t, `<html><body>
		<a href="javascript:void(0)">JS</a>
		<a href="mailto:test@example.com">Mail</a>
		<a href="tel:+1234567890">Call</a>
		<a href="data:text/html,hello">Data</a>
	</body></html>`)
	assert.Empty(t, parsed.Links)
}

func TestSkipDownloadLinks(t *testing.T) {
	parsed := parse(t, `<html><body><a href="/file.pdf" download>Download</a></body></html>`)
	assert.Empty(t, parsed.Links)
}

func TestSkipFragmentOnlyLinks(t *testing.T) {
	parsed := parse(t, `<html><body><a href="#section">Jump</a></body></html>`)
	assert.Empty(t, parsed.Links)
}

func TestSkipEmptyHref(t *testing.T) {
	parsed := parse(t, `<html><body><a href="   ">Blank</a></body></html>`)
	assert.Empty(t, parsed.Links)
}

func TestNofollowLinksAreFollowed(t *testing.T) {
	parsed := parse(t, `<html><body><a href="/page2" rel="nofollow">Link</a></body></html>`)
	assert.Equal(t, []string{"https://example.com/page2"}, parsed.Links)
}

func TestExtractCanonicalLink(t *testing.T) {
	parsed := parse(t, `<html><head><link rel="canonical" href="https://example.com/canonical" /></head><body></body></html>`)
	assert.Contains(t, parsed.Links, "https://example.com/canonical")
}

func TestSkipStylesheetAndScript(t *testing.T) {
	parsed := parse(t, `<html><head>
		<link rel="stylesheet" href="/style.css">
		<script src="/app.js"></script>
	</head><body></body></html>`)
	assert.Empty(t, parsed.Links)
}

func TestMixedValidAndInvalidLinks(t *testing.T) {
	parsed := parse(t, `<html><body>
		<a href="/valid">Valid</a>
		<a href="javascript:alert('no')">Invalid</a>
		<a href="mailto:test@example.com">Invalid</a>
		<a href="/another-valid">Valid</a>
	</body></html>`)
	assert.Len(t, parsed.Links, 2)
}

func TestResolveTrimsHref(t *testing.T) {
	parsed := parse(t, `<html><body><a href=" /padded ">Link</a></body></html>`)
	require.Len(t, parsed.Links, 1)
	assert.Contains(t, parsed.Links[0], "padded")
}
