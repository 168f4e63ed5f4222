package robots

import (
	"strconv"
	"strings"
	"time"

	"github.com/temoto/robotstxt"
)

/*
Robots subsystem

Responsibilities:
- Fetch robots.txt per domain with a short timeout
- Parse content into a queryable rule set
- Answer allow/deny for a path and user agent
- Extract the crawl-delay for a user agent

Any fetch failure (404, network error, timeout) degrades to an
allow-all rule set. The caller owns caching; see state.CachedRobots.
*/

// Rules answers allow/deny and crawl-delay queries for one domain's
// robots.txt content.
type Rules struct {
	content  string
	allowAll bool
	data     *robotstxt.RobotsData
}

// Parse builds a Rules from raw robots.txt content. Content that the
// matcher cannot parse degrades to allow-all.
func Parse(content string) *Rules {
	if strings.TrimSpace(content) == "" {
		return AllowAll()
	}
	data, err := robotstxt.FromString(content)
	if err != nil {
		return &Rules{content: content, allowAll: true}
	}
	return &Rules{content: content, data: data}
}

// AllowAll returns a permissive rule set, used when robots.txt cannot
// be fetched or is empty.
func AllowAll() *Rules {
	return &Rules{allowAll: true}
}

// Content returns the raw robots.txt content ("" for allow-all).
func (r *Rules) Content() string {
	return r.content
}

// IsAllowed reports whether the given path may be fetched by the given
// user agent, following the most-specific-user-agent rule.
func (r *Rules) IsAllowed(path, userAgent string) bool {
	if r.allowAll || r.data == nil {
		return true
	}
	group := r.data.FindGroup(userAgent)
	if group == nil {
		return true
	}
	return group.Test(path)
}

// CrawlDelay returns the crawl-delay in effect for the given user agent.
//
// A group accumulates successive User-agent lines and terminates once a
// Crawl-delay directive is attributed to it. Decimal second values are
// accepted. A delay declared for a specific agent takes precedence over
// one declared for *. Agent matching is case-insensitive. The second
// return value is false when no matching delay exists.
func (r *Rules) CrawlDelay(userAgent string) (time.Duration, bool) {
	if r.allowAll || r.content == "" {
		return 0, false
	}

	normalizedAgent := strings.ToLower(userAgent)

	var currentAgents []string
	var wildcardDelay *time.Duration
	var agentDelay *time.Duration

	for _, line := range strings.Split(r.content, "\n") {
		if idx := strings.Index(line, "#"); idx != -1 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			currentAgents = append(currentAgents, strings.ToLower(value))
		case "crawl-delay":
			seconds, err := strconv.ParseFloat(value, 64)
			if err == nil && matchesAnyAgent(currentAgents, normalizedAgent) {
				delay := time.Duration(seconds * float64(time.Second))
				if containsWildcard(currentAgents) {
					wildcardDelay = &delay
				} else {
					agentDelay = &delay
				}
			}
			// A crawl-delay terminates its group; the next User-agent
			// line starts a new one.
			currentAgents = nil
		}
	}

	if agentDelay != nil {
		return *agentDelay, true
	}
	if wildcardDelay != nil {
		return *wildcardDelay, true
	}
	return 0, false
}

func matchesAnyAgent(agents []string, normalizedAgent string) bool {
	for _, agent := range agents {
		if agent == "*" || strings.Contains(normalizedAgent, agent) {
			return true
		}
	}
	return false
}

func containsWildcard(agents []string) bool {
	for _, agent := range agents {
		if agent == "*" {
			return true
		}
	}
	return false
}
