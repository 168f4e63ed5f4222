package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"lukechampine.com/blake3"
)

// Config is the full crawler configuration, decoded from a TOML file.
type Config struct {
	Crawler   Crawler        `toml:"crawler"`
	UserAgent UserAgent      `toml:"user-agent"`
	Output    Output         `toml:"output"`
	Quality   []QualityEntry `toml:"quality"`
	Blacklist []DomainEntry  `toml:"blacklist"`
	Stub      []DomainEntry  `toml:"stub"`
}

// Crawler holds crawl limits and politeness settings.
type Crawler struct {
	// Maximum number of hyperlink hops from a seed URL.
	MaxDepth int `toml:"max-depth"`
	// Maximum number of fetch pipelines in flight at once.
	MaxConcurrentPagesOpen int `toml:"max-concurrent-pages-open"`
	// Minimum time between requests to the same domain, in milliseconds.
	MinimumTimeOnPage int64 `toml:"minimum-time-on-page"`
	// Maximum number of requests per domain in a single run.
	MaxDomainRequests int `toml:"max-domain-requests"`
}

// MinDelay returns the minimum inter-request delay as a Duration.
func (c Crawler) MinDelay() time.Duration {
	return time.Duration(c.MinimumTimeOnPage) * time.Millisecond
}

// UserAgent identifies the crawler to the sites it visits.
type UserAgent struct {
	CrawlerName    string `toml:"crawler-name"`
	CrawlerVersion string `toml:"crawler-version"`
	ContactURL     string `toml:"contact-url"`
	ContactEmail   string `toml:"contact-email"`
}

// String renders the on-the-wire User-Agent header value.
// Format: "{name}/{version} (+{contact_url}; {contact_email})"
func (u UserAgent) String() string {
	return fmt.Sprintf("%s/%s (+%s; %s)", u.CrawlerName, u.CrawlerVersion, u.ContactURL, u.ContactEmail)
}

// Output holds result destinations.
type Output struct {
	DatabasePath string `toml:"database-path"`
	SummaryPath  string `toml:"summary-path"`
}

// QualityEntry is a quality domain pattern with its seed URLs.
type QualityEntry struct {
	Domain string   `toml:"domain"`
	Seeds  []string `toml:"seeds"`
}

// DomainEntry is a bare domain pattern used by the blacklist and stub lists.
type DomainEntry struct {
	Domain string `toml:"domain"`
}

// Load reads, parses, and validates the TOML configuration at path.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}

	var cfg Config
	if err := toml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Hash computes the BLAKE3 hash of the configuration file content,
// hex encoded. Used to detect config drift between runs.
func Hash(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	sum := blake3.Sum256(content)
	return hex.EncodeToString(sum[:]), nil
}

// LoadWithHash loads a configuration and returns both the config and its hash.
func LoadWithHash(path string) (*Config, string, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, "", err
	}
	hash, err := Hash(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, hash, nil
}
