package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the whole configuration against the documented bounds.
// It returns the first violation found, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := c.Crawler.validate(); err != nil {
		return err
	}
	if err := c.UserAgent.validate(); err != nil {
		return err
	}
	if err := c.Output.validate(); err != nil {
		return err
	}
	for _, entry := range c.Quality {
		if err := validateDomainPattern(entry.Domain); err != nil {
			return err
		}
		if len(entry.Seeds) == 0 {
			return fmt.Errorf("%w: quality domain %q must have at least one seed URL", ErrInvalidConfig, entry.Domain)
		}
		for _, seed := range entry.Seeds {
			u, err := url.Parse(seed)
			if err != nil {
				return fmt.Errorf("%w: invalid seed URL %q: %s", ErrInvalidConfig, seed, err.Error())
			}
			if u.Scheme != "https" {
				return fmt.Errorf("%w: seed URL %q must use the https scheme", ErrInvalidConfig, seed)
			}
		}
	}
	for _, entry := range c.Blacklist {
		if err := validateDomainPattern(entry.Domain); err != nil {
			return err
		}
	}
	for _, entry := range c.Stub {
		if err := validateDomainPattern(entry.Domain); err != nil {
			return err
		}
	}
	return nil
}

func (c Crawler) validate() error {
	if c.MaxConcurrentPagesOpen < 1 || c.MaxConcurrentPagesOpen > 100 {
		return fmt.Errorf("%w: max-concurrent-pages-open must be between 1 and 100, got %d", ErrInvalidConfig, c.MaxConcurrentPagesOpen)
	}
	if c.MinimumTimeOnPage < 100 {
		return fmt.Errorf("%w: minimum-time-on-page must be >= 100ms, got %dms", ErrInvalidConfig, c.MinimumTimeOnPage)
	}
	if c.MaxDomainRequests < 1 {
		return fmt.Errorf("%w: max-domain-requests must be >= 1, got %d", ErrInvalidConfig, c.MaxDomainRequests)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("%w: max-depth must be >= 0, got %d", ErrInvalidConfig, c.MaxDepth)
	}
	return nil
}

func (u UserAgent) validate() error {
	if u.CrawlerName == "" {
		return fmt.Errorf("%w: crawler-name cannot be empty", ErrInvalidConfig)
	}
	for _, r := range u.CrawlerName {
		if !isAlphanumeric(r) && r != '-' {
			return fmt.Errorf("%w: crawler-name must contain only alphanumeric characters and hyphens, got %q", ErrInvalidConfig, u.CrawlerName)
		}
	}
	if u.CrawlerVersion == "" {
		return fmt.Errorf("%w: crawler-version cannot be empty", ErrInvalidConfig)
	}
	parsed, err := url.Parse(u.ContactURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%w: invalid contact-url %q", ErrInvalidConfig, u.ContactURL)
	}
	if err := validateEmail(u.ContactEmail); err != nil {
		return err
	}
	return nil
}

func (o Output) validate() error {
	if o.DatabasePath == "" {
		return fmt.Errorf("%w: database-path cannot be empty", ErrInvalidConfig)
	}
	if o.SummaryPath == "" {
		return fmt.Errorf("%w: summary-path cannot be empty", ErrInvalidConfig)
	}
	return nil
}

// validateEmail performs basic shape checks: a local part, an @, and a
// domain containing a dot.
func validateEmail(email string) error {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return fmt.Errorf("%w: invalid contact-email %q", ErrInvalidConfig, email)
	}
	domain := email[at+1:]
	if !strings.Contains(domain, ".") {
		return fmt.Errorf("%w: contact-email domain %q must contain a dot", ErrInvalidConfig, domain)
	}
	return nil
}

func validateDomainPattern(pattern string) error {
	candidate := strings.TrimPrefix(pattern, "*.")
	if candidate == "" {
		return fmt.Errorf("%w: empty domain pattern", ErrInvalidConfig)
	}
	if strings.ContainsAny(candidate, " /\\") {
		return fmt.Errorf("%w: invalid domain pattern %q", ErrInvalidConfig, pattern)
	}
	return nil
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
