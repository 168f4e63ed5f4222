package state

import (
	"time"

	"github.com/SiliconLion/sumi/internal/config"
)

// CachedRobots holds the raw robots.txt content for a domain together
// with its wall-clock fetch time. Both survive a restart.
type CachedRobots struct {
	Content   string
	FetchedAt time.Time
}

// RobotsTTL is how long a cached robots.txt stays fresh.
const RobotsTTL = 24 * time.Hour

// IsStale reports whether the cached robots.txt is older than RobotsTTL.
func (c *CachedRobots) IsStale() bool {
	return time.Since(c.FetchedAt) > RobotsTTL
}

// DomainState tracks per-domain pacing, request budget, and the cached
// robots.txt handle.
//
// LastRequestTime uses the process monotonic clock and is never
// persisted; it resets on resume, so the first request after a restart
// always passes the delay check. Robots freshness uses wall-clock time
// and is persisted.
type DomainState struct {
	// Number of requests made to this domain in the current run.
	RequestCount int

	// When the last request was issued. Zero means never.
	LastRequestTime time.Time

	// Whether the domain returned HTTP 429. Sticky within the run.
	RateLimited bool

	// Cached robots.txt, if fetched.
	Robots *CachedRobots

	// Crawl-delay parsed from robots.txt for our user agent. Zero when
	// robots.txt declares none.
	CrawlDelay time.Duration
}

// NewDomainState creates a DomainState with zero counters.
func NewDomainState() *DomainState {
	return &DomainState{}
}

// EffectiveDelay is the enforced gap between requests to this domain:
// max(config minimum-time-on-page, robots crawl-delay).
func (d *DomainState) EffectiveDelay(cfg config.Crawler) time.Duration {
	min := cfg.MinDelay()
	if d.CrawlDelay > min {
		return d.CrawlDelay
	}
	return min
}

// CanRequest reports whether a request may be issued now. All of the
// following must hold: the domain is not rate limited, the request
// budget is not exhausted, and the effective delay has elapsed since
// the last request.
func (d *DomainState) CanRequest(cfg config.Crawler, now time.Time) bool {
	if d.RateLimited {
		return false
	}

	if d.RequestCount >= cfg.MaxDomainRequests {
		return false
	}

	if !d.LastRequestTime.IsZero() {
		if now.Sub(d.LastRequestTime) < d.EffectiveDelay(cfg) {
			return false
		}
	}

	return true
}

// RecordRequest increments the request count and stamps the request time.
func (d *DomainState) RecordRequest(now time.Time) {
	d.RequestCount++
	d.LastRequestTime = now
}

// MarkRateLimited sets the sticky rate-limited flag.
func (d *DomainState) MarkRateLimited() {
	d.RateLimited = true
}

// ClearRateLimit resets the rate-limited flag.
func (d *DomainState) ClearRateLimit() {
	d.RateLimited = false
}

// HasExceededLimit reports whether the per-domain request budget is spent.
func (d *DomainState) HasExceededLimit(cfg config.Crawler) bool {
	return d.RequestCount >= cfg.MaxDomainRequests
}

// RequestsRemaining returns how many requests the budget still allows.
func (d *DomainState) RequestsRemaining(cfg config.Crawler) int {
	remaining := cfg.MaxDomainRequests - d.RequestCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TimeUntilNextRequest returns the remaining wait before the pacing gate
// opens, or false when a request may go out now.
func (d *DomainState) TimeUntilNextRequest(cfg config.Crawler, now time.Time) (time.Duration, bool) {
	if d.LastRequestTime.IsZero() {
		return 0, false
	}
	elapsed := now.Sub(d.LastRequestTime)
	delay := d.EffectiveDelay(cfg)
	if elapsed < delay {
		return delay - elapsed, true
	}
	return 0, false
}

// IsRobotsStale reports whether robots.txt must be (re)fetched.
func (d *DomainState) IsRobotsStale() bool {
	if d.Robots == nil {
		return true
	}
	return d.Robots.IsStale()
}

// UpdateRobots replaces the cached robots.txt content, stamping the
// fetch time with the wall clock.
func (d *DomainState) UpdateRobots(content string, crawlDelay time.Duration) {
	d.Robots = &CachedRobots{
		Content:   content,
		FetchedAt: time.Now(),
	}
	d.CrawlDelay = crawlDelay
}
