package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

/*
HTML parser

Extracts the page title and outgoing links.

Link sources:
- <a href> elements, excluding those carrying a download attribute
- <link rel="canonical" href>

For each candidate href: trim; drop if empty, fragment-only, or using a
javascript:/mailto:/tel:/data: scheme; resolve against the base URL;
accept only resulting http/https absolute URLs. rel="nofollow" links
ARE followed.
*/

// ParsedPage is the extraction result for one HTML document.
type ParsedPage struct {
	// Title is the trimmed text of the first <title>; "" when absent.
	Title string
	// Links are absolute http/https URLs found on the page.
	Links []string
}

// Parse extracts the title and links from HTML body text.
func Parse(body string, baseURL *url.URL) (ParsedPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ParsedPage{}, err
	}

	parsed := ParsedPage{
		Title: extractTitle(doc),
	}

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		if _, download := sel.Attr("download"); download {
			return
		}
		href, _ := sel.Attr("href")
		if link, ok := resolveLink(href, baseURL); ok {
			parsed.Links = append(parsed.Links, link)
		}
	})

	doc.Find(`link[rel="canonical"][href]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if link, ok := resolveLink(href, baseURL); ok {
			parsed.Links = append(parsed.Links, link)
		}
	})

	return parsed, nil
}

func extractTitle(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// resolveLink turns an href into an absolute http/https URL, or reports
// that the href should be dropped.
func resolveLink(href string, baseURL *url.URL) (string, bool) {
	href = strings.TrimSpace(href)

	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}

	lower := strings.ToLower(href)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}

	resolved, err := baseURL.Parse(href)
	if err != nil {
		return "", false
	}

	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}

	return resolved.String(), true
}
