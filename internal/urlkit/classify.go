package urlkit

import "github.com/SiliconLion/sumi/internal/config"

// Classification buckets every observed domain into one of four roles.
type Classification string

const (
	// Quality domains are configured crawl origins.
	Quality Classification = "quality"
	// Blacklisted domains are recorded as referrer evidence only.
	Blacklisted Classification = "blacklisted"
	// Stubbed domains are recorded as edges but never fetched.
	Stubbed Classification = "stubbed"
	// Discovered domains were found during the crawl.
	Discovered Classification = "discovered"
)

// ShouldCrawl reports whether pages on this domain may be fetched.
func (c Classification) ShouldCrawl() bool {
	return c == Quality || c == Discovered
}

// IsTerminal reports whether the domain is terminal-at-the-edge:
// the referrer is recorded but the target is never visited.
func (c Classification) IsTerminal() bool {
	return c == Blacklisted || c == Stubbed
}

// Classify matches a lowercased domain against the config's three lists.
// Priority: blacklist > stub > quality > discovered.
func Classify(domain string, cfg *config.Config) Classification {
	for _, entry := range cfg.Blacklist {
		if MatchesWildcard(entry.Domain, domain) {
			return Blacklisted
		}
	}

	for _, entry := range cfg.Stub {
		if MatchesWildcard(entry.Domain, domain) {
			return Stubbed
		}
	}

	for _, entry := range cfg.Quality {
		if MatchesWildcard(entry.Domain, domain) {
			return Quality
		}
	}

	return Discovered
}
