package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/SiliconLion/sumi/internal/config"
)

func testCrawlerConfig() config.Crawler {
	return config.Crawler{
		MaxDepth:               3,
		MaxConcurrentPagesOpen: 10,
		MinimumTimeOnPage:      1000,
		MaxDomainRequests:      100,
	}
}

func TestNewDomainState(t *testing.T) {
	ds := NewDomainState()
	assert.Equal(t, 0, ds.RequestCount)
	assert.True(t, ds.LastRequestTime.IsZero())
	assert.False(t, ds.RateLimited)
	assert.Nil(t, ds.Robots)
}

func TestCanRequestInitially(t *testing.T) {
	ds := NewDomainState()
	assert.True(t, ds.CanRequest(testCrawlerConfig(), time.Now()))
}

func TestCannotRequestWhenRateLimited(t *testing.T) {
	ds := NewDomainState()
	ds.MarkRateLimited()
	assert.False(t, ds.CanRequest(testCrawlerConfig(), time.Now()))
}

func TestCannotRequestWhenLimitReached(t *testing.T) {
	ds := NewDomainState()
	ds.RequestCount = 100
	assert.False(t, ds.CanRequest(testCrawlerConfig(), time.Now()))
}

func TestCannotRequestTooSoon(t *testing.T) {
	ds := NewDomainState()
	now := time.Now()
	ds.LastRequestTime = now

	cfg := testCrawlerConfig()

	assert.False(t, ds.CanRequest(cfg, now))
	assert.False(t, ds.CanRequest(cfg, now.Add(500*time.Millisecond)))
	assert.True(t, ds.CanRequest(cfg, now.Add(1100*time.Millisecond)))
}

func TestRecordRequest(t *testing.T) {
	ds := NewDomainState()
	now := time.Now()

	ds.RecordRequest(now)
	assert.Equal(t, 1, ds.RequestCount)
	assert.Equal(t, now, ds.LastRequestTime)

	ds.RecordRequest(now.Add(time.Second))
	assert.Equal(t, 2, ds.RequestCount)
}

func TestClearRateLimit(t *testing.T) {
	ds := NewDomainState()
	ds.MarkRateLimited()
	assert.True(t, ds.RateLimited)
	ds.ClearRateLimit()
	assert.False(t, ds.RateLimited)
}

func TestRequestsRemaining(t *testing.T) {
	cfg := testCrawlerConfig()
	ds := NewDomainState()
	assert.Equal(t, 100, ds.RequestsRemaining(cfg))

	ds.RequestCount = 60
	assert.Equal(t, 40, ds.RequestsRemaining(cfg))
	assert.False(t, ds.HasExceededLimit(cfg))

	ds.RequestCount = 100
	assert.Equal(t, 0, ds.RequestsRemaining(cfg))
	assert.True(t, ds.HasExceededLimit(cfg))

	ds.RequestCount = 120
	assert.Equal(t, 0, ds.RequestsRemaining(cfg))
}

func TestTimeUntilNextRequest(t *testing.T) {
	cfg := testCrawlerConfig()
	ds := NewDomainState()
	now := time.Now()

	_, waiting := ds.TimeUntilNextRequest(cfg, now)
	assert.False(t, waiting)

	ds.LastRequestTime = now
	remaining, waiting := ds.TimeUntilNextRequest(cfg, now.Add(400*time.Millisecond))
	assert.True(t, waiting)
	assert.Equal(t, 600*time.Millisecond, remaining)

	_, waiting = ds.TimeUntilNextRequest(cfg, now.Add(1100*time.Millisecond))
	assert.False(t, waiting)
}

func TestEffectiveDelayUsesConfigMinimum(t *testing.T) {
	ds := NewDomainState()
	assert.Equal(t, time.Second, ds.EffectiveDelay(testCrawlerConfig()))
}

func TestEffectiveDelayPrefersLargerCrawlDelay(t *testing.T) {
	ds := NewDomainState()
	ds.CrawlDelay = 5 * time.Second
	assert.Equal(t, 5*time.Second, ds.EffectiveDelay(testCrawlerConfig()))

	ds.CrawlDelay = 500 * time.Millisecond
	assert.Equal(t, time.Second, ds.EffectiveDelay(testCrawlerConfig()))
}

func TestCrawlDelayGatesCanRequest(t *testing.T) {
	cfg := testCrawlerConfig()
	ds := NewDomainState()
	ds.CrawlDelay = 5 * time.Second
	now := time.Now()
	ds.LastRequestTime = now

	assert.False(t, ds.CanRequest(cfg, now.Add(2*time.Second)))
	assert.True(t, ds.CanRequest(cfg, now.Add(6*time.Second)))
}

func TestRobotsStaleness(t *testing.T) {
	ds := NewDomainState()
	assert.True(t, ds.IsRobotsStale())

	ds.UpdateRobots("User-agent: *\nDisallow: /admin", 0)
	assert.False(t, ds.IsRobotsStale())
	assert.Equal(t, "User-agent: *\nDisallow: /admin", ds.Robots.Content)

	ds.Robots.FetchedAt = time.Now().Add(-25 * time.Hour)
	assert.True(t, ds.IsRobotsStale())

	ds.Robots.FetchedAt = time.Now().Add(-23 * time.Hour)
	assert.False(t, ds.IsRobotsStale())
}
