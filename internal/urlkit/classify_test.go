package urlkit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SiliconLion/sumi/internal/config"
)

func classifierConfig() *config.Config {
	return &config.Config{
		Quality: []config.QualityEntry{
			{Domain: "quality.test", Seeds: []string{"https://quality.test/"}},
			{Domain: "*.docs.test", Seeds: []string{"https://docs.test/"}},
		},
		Blacklist: []config.DomainEntry{
			{Domain: "*.tracker.test"},
			{Domain: "bad.test"},
		},
		Stub: []config.DomainEntry{
			{Domain: "*.cdn.test"},
		},
	}
}

func TestClassifyQuality(t *testing.T) {
	cfg := classifierConfig()
	assert.Equal(t, Quality, Classify("quality.test", cfg))
	assert.Equal(t, Quality, Classify("docs.test", cfg))
	assert.Equal(t, Quality, Classify("api.docs.test", cfg))
}

func TestClassifyBlacklisted(t *testing.T) {
	cfg := classifierConfig()
	assert.Equal(t, Blacklisted, Classify("bad.test", cfg))
	assert.Equal(t, Blacklisted, Classify("tracker.test", cfg))
	assert.Equal(t, Blacklisted, Classify("pixel.tracker.test", cfg))
}

func TestClassifyStubbed(t *testing.T) {
	cfg := classifierConfig()
	assert.Equal(t, Stubbed, Classify("cdn.test", cfg))
	assert.Equal(t, Stubbed, Classify("img.cdn.test", cfg))
}

func TestClassifyDiscoveredByDefault(t *testing.T) {
	cfg := classifierConfig()
	assert.Equal(t, Discovered, Classify("unknown.test", cfg))
}

// Blacklist wins over stub and quality no matter what other lists a
// domain appears in.
func TestClassifyPriorityBlacklistFirst(t *testing.T) {
	cfg := &config.Config{
		Quality:   []config.QualityEntry{{Domain: "contested.test"}},
		Blacklist: []config.DomainEntry{{Domain: "contested.test"}},
		Stub:      []config.DomainEntry{{Domain: "contested.test"}},
	}
	assert.Equal(t, Blacklisted, Classify("contested.test", cfg))

	cfg.Blacklist = nil
	assert.Equal(t, Stubbed, Classify("contested.test", cfg))

	cfg.Stub = nil
	assert.Equal(t, Quality, Classify("contested.test", cfg))
}

func TestClassificationPredicates(t *testing.T) {
	assert.True(t, Quality.ShouldCrawl())
	assert.True(t, Discovered.ShouldCrawl())
	assert.False(t, Blacklisted.ShouldCrawl())
	assert.False(t, Stubbed.ShouldCrawl())

	assert.True(t, Blacklisted.IsTerminal())
	assert.True(t, Stubbed.IsTerminal())
	assert.False(t, Quality.IsTerminal())
	assert.False(t, Discovered.IsTerminal())
}
