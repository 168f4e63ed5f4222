package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// maxRobotsSize bounds how much of a robots.txt body is read.
const maxRobotsSize = 500 * 1024

// fetchTimeout is the per-request ceiling for robots.txt fetches.
const fetchTimeout = 10 * time.Second

// Fetcher retrieves robots.txt files.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	logger     zerolog.Logger
}

// NewFetcher creates a Fetcher with its own short-timeout HTTP client.
func NewFetcher(userAgent string, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: fetchTimeout},
		userAgent:  userAgent,
		logger:     logger.With().Str("component", "robots").Logger(),
	}
}

// NewFetcherWithClient creates a Fetcher with a custom HTTP client.
// This is useful for testing.
func NewFetcherWithClient(userAgent string, httpClient *http.Client, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		httpClient: httpClient,
		userAgent:  userAgent,
		logger:     logger.With().Str("component", "robots").Logger(),
	}
}

// Fetch performs a GET against {scheme}://{domain}/robots.txt and parses
// the result. Any non-success outcome (4xx, 5xx, network error, timeout)
// degrades to an allow-all rule set; fetching robots.txt never fails.
func (f *Fetcher) Fetch(ctx context.Context, scheme, domain string) *Rules {
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", scheme, domain)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		f.logger.Debug().Str("url", robotsURL).Err(err).Msg("failed to build robots.txt request, allowing all")
		return AllowAll()
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/plain,*/*")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.Debug().Str("url", robotsURL).Err(err).Msg("failed to fetch robots.txt, allowing all")
		return AllowAll()
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.Debug().Str("url", robotsURL).Int("status", resp.StatusCode).Msg("robots.txt not available, allowing all")
		return AllowAll()
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		f.logger.Debug().Str("url", robotsURL).Err(err).Msg("failed to read robots.txt body, allowing all")
		return AllowAll()
	}

	f.logger.Debug().Str("url", robotsURL).Int("bytes", len(body)).Msg("fetched robots.txt")
	return Parse(string(body))
}
