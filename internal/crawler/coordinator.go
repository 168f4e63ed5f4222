package crawler

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/SiliconLion/sumi/internal/config"
	"github.com/SiliconLion/sumi/internal/fetcher"
	"github.com/SiliconLion/sumi/internal/parser"
	"github.com/SiliconLion/sumi/internal/robots"
	"github.com/SiliconLion/sumi/internal/scheduler"
	"github.com/SiliconLion/sumi/internal/state"
	"github.com/SiliconLion/sumi/internal/storage"
	"github.com/SiliconLion/sumi/internal/urlkit"
)

/*
Coordinator

Owns the run lifecycle and drives every per-URL pipeline:

	scheduler -> robots check -> fetch -> parse -> classify targets ->
	storage writes -> new frontier entries -> scheduler

The coordinator is the exclusive mutator of both the storage handle and
the scheduler. Per-URL failures are converted to terminal page states
and never abort the crawl; storage failures on run metadata, frontier,
or domain states are fatal.
*/

const (
	progressLogInterval = 10
	domainSaveInterval  = 50
	priorityQuality     = 0
	priorityDiscovered  = 10
)

// Coordinator wires the engine together for one crawl run.
type Coordinator struct {
	cfg           *config.Config
	store         storage.Store
	sched         *scheduler.Scheduler
	client        *fetcher.Client
	robotsFetcher *robots.Fetcher
	runID         int64
	userAgent     string
	logger        zerolog.Logger
}

// New opens storage, resolves the run to create or resume, loads the
// frontier and domain states, and builds the HTTP client.
//
// Run resolution: a new run is created when fresh is requested, no
// prior run exists, or the latest run is terminal; otherwise the
// latest Running run is resumed. Fresh additionally clears the
// persisted frontier.
func New(cfg *config.Config, configHash string, fresh bool, logger zerolog.Logger) (*Coordinator, error) {
	store, err := storage.Open(cfg.Output.DatabasePath)
	if err != nil {
		return nil, err
	}

	userAgent := cfg.UserAgent.String()
	client := fetcher.NewClient(cfg.UserAgent, logger)
	robotsFetcher := robots.NewFetcher(userAgent, logger)

	return NewWithDeps(cfg, configHash, fresh, store, client, robotsFetcher, logger)
}

// NewWithDeps creates a Coordinator with injected dependencies.
// This is useful for testing against mock servers and in-memory storage.
func NewWithDeps(
	cfg *config.Config,
	configHash string,
	fresh bool,
	store storage.Store,
	client *fetcher.Client,
	robotsFetcher *robots.Fetcher,
	logger zerolog.Logger,
) (*Coordinator, error) {
	logger = logger.With().Str("component", "coordinator").Logger()

	c := &Coordinator{
		cfg:           cfg,
		store:         store,
		client:        client,
		robotsFetcher: robotsFetcher,
		userAgent:     client.UserAgent(),
		logger:        logger,
	}

	latest, err := store.GetLatestRun()
	if err != nil {
		return nil, err
	}

	resumed := false
	switch {
	case !fresh && latest != nil && latest.Status == storage.RunRunning:
		c.runID = latest.ID
		resumed = true
		logger.Info().Int64("run_id", c.runID).Msg("resuming interrupted run")
	default:
		if fresh {
			if err := store.ClearFrontier(); err != nil {
				return nil, err
			}
		}
		c.runID, err = store.CreateRun(configHash)
		if err != nil {
			return nil, err
		}
		logger.Info().Int64("run_id", c.runID).Msg("starting new run")
	}

	if resumed {
		if err := c.requeueInterrupted(); err != nil {
			return nil, err
		}
	}

	entries, err := store.LoadFrontier()
	if err != nil {
		return nil, err
	}

	var frontier []scheduler.QueuedURL
	if len(entries) == 0 && !resumed {
		frontier, err = c.seedFrontier()
		if err != nil {
			return nil, err
		}
	} else {
		logger.Info().Int("entries", len(entries)).Msg("loading frontier")
		for _, entry := range entries {
			page, err := store.GetPage(entry.PageID)
			if err != nil {
				return nil, err
			}
			frontier = append(frontier, scheduler.QueuedURL{
				URL:      page.URL,
				Domain:   page.Domain,
				Priority: entry.Priority,
				PageID:   entry.PageID,
			})
		}
	}

	domainStates, err := store.LoadDomainStates()
	if err != nil {
		return nil, err
	}
	// The pacing clock is gone after a restart, but cached robots
	// content survives; recover each domain's crawl-delay from it.
	for _, ds := range domainStates {
		if ds.Robots == nil {
			continue
		}
		if delay, ok := robots.Parse(ds.Robots.Content).CrawlDelay(c.userAgent); ok {
			ds.CrawlDelay = delay
		}
	}

	c.sched = scheduler.New(cfg.Crawler, frontier, domainStates, logger)

	return c, nil
}

// Close releases the storage handle.
func (c *Coordinator) Close() error {
	return c.store.Close()
}

// RunID returns the id of the run this coordinator drives.
func (c *Coordinator) RunID() int64 {
	return c.runID
}

// Scheduler exposes the scheduler for test configuration.
func (c *Coordinator) Scheduler() *scheduler.Scheduler {
	return c.sched
}

// requeueInterrupted moves pages a crashed run left in Fetching back
// into the frontier.
func (c *Coordinator) requeueInterrupted() error {
	interrupted, err := c.store.GetInterruptedPages()
	if err != nil {
		return err
	}
	for _, page := range interrupted {
		c.logger.Info().Str("url", page.URL).Msg("re-queueing interrupted page")
		if err := c.store.UpdatePageState(page.ID, state.Queued, storage.PageUpdate{}); err != nil {
			return err
		}
		priority := priorityFor(urlkit.Classify(page.Domain, c.cfg))
		if err := c.store.AddToFrontier(page.ID, priority); err != nil {
			return err
		}
	}
	return nil
}

// seedFrontier inserts each quality seed at depth 0 with priority 0.
func (c *Coordinator) seedFrontier() ([]scheduler.QueuedURL, error) {
	c.logger.Info().Msg("seeding frontier with quality domain seeds")

	var frontier []scheduler.QueuedURL
	for _, entry := range c.cfg.Quality {
		for _, seed := range entry.Seeds {
			normalized, err := urlkit.Normalize(seed)
			if err != nil {
				return nil, fmt.Errorf("invalid seed URL %q: %w", seed, err)
			}
			if normalized.Scheme == "http" {
				c.logger.Warn().Str("url", normalized.String()).Msg("seed uses plain http")
			}
			domain := urlkit.ExtractDomain(normalized)
			if domain == "" {
				return nil, fmt.Errorf("seed URL %q: %w", seed, urlkit.ErrMissingDomain)
			}

			pageID, err := c.store.InsertOrGetPage(normalized.String(), domain, c.runID)
			if err != nil {
				return nil, err
			}
			if err := c.store.UpsertDepth(pageID, entry.Domain, 0); err != nil {
				return nil, err
			}

			// A seed may already be terminal from an earlier run against
			// the same database; leave it be.
			page, err := c.store.GetPage(pageID)
			if err != nil {
				return nil, err
			}
			if page.State.IsTerminal() {
				continue
			}

			if err := c.store.AddToFrontier(pageID, priorityQuality); err != nil {
				return nil, err
			}
			if page.State == state.Discovered {
				if err := c.store.UpdatePageState(pageID, state.Queued, storage.PageUpdate{}); err != nil {
					return nil, err
				}
			}

			frontier = append(frontier, scheduler.QueuedURL{
				URL:      normalized.String(),
				Domain:   domain,
				Priority: priorityQuality,
				PageID:   pageID,
			})
		}
	}
	return frontier, nil
}

// Run drives the crawl loop until the frontier drains, then persists
// domain states and completes the run.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info().Int64("run_id", c.runID).Msg("starting crawl")

	pagesCrawled := 0
	startTime := time.Now()

	for {
		scheduled := c.sched.NextURL(ctx)
		if scheduled == nil {
			c.logger.Info().Msg("frontier is empty, crawl complete")
			break
		}

		if err := c.processURL(ctx, scheduled.URL); err != nil {
			c.logger.Error().Str("url", scheduled.URL.URL).Err(err).Msg("error processing URL")
		}
		scheduled.Release()

		// The page reached a terminal state (or will be re-queued on
		// resume via get_interrupted_pages); drop its persisted
		// frontier row so finished work is not re-dispatched.
		if err := c.store.RemoveFromFrontier(scheduled.URL.PageID); err != nil {
			return err
		}

		pagesCrawled++

		if pagesCrawled%progressLogInterval == 0 {
			elapsed := time.Since(startTime)
			rate := float64(pagesCrawled) / elapsed.Seconds()
			c.logger.Info().
				Int("pages_crawled", pagesCrawled).
				Int("frontier_size", c.sched.FrontierSize()).
				Float64("pages_per_sec", rate).
				Msg("progress")
		}
		if pagesCrawled%domainSaveInterval == 0 {
			if err := c.saveDomainStates(); err != nil {
				return err
			}
		}
	}

	if err := c.saveDomainStates(); err != nil {
		return err
	}
	if err := c.store.CompleteRun(c.runID); err != nil {
		return err
	}

	c.logger.Info().
		Int("pages_crawled", pagesCrawled).
		Dur("elapsed", time.Since(startTime)).
		Msg("crawl completed")

	return nil
}

// processURL runs the full pipeline for one dispatched URL. Failures
// land in the page's terminal state; the returned error reports only
// unexpected storage trouble, which the caller logs.
func (c *Coordinator) processURL(ctx context.Context, queued scheduler.QueuedURL) error {
	c.sched.RecordRequest(queued.Domain)

	if err := c.store.UpdatePageState(queued.PageID, state.Fetching, storage.PageUpdate{}); err != nil {
		return err
	}

	pageURL, err := url.Parse(queued.URL)
	if err != nil {
		return c.failPage(queued.PageID, state.Failed, fmt.Sprintf("unparseable URL: %v", err))
	}

	rules := c.robotsFor(ctx, pageURL.Scheme, pageURL.Host, queued.Domain)

	if !rules.IsAllowed(requestPath(pageURL), c.userAgent) {
		c.logger.Info().Str("url", queued.URL).Msg("disallowed by robots.txt")
		return c.failPage(queued.PageID, state.Failed, "Disallowed by robots.txt")
	}

	result := c.client.FetchURL(ctx, queued.URL)

	// A redirect may have landed on a terminal domain; re-classify the
	// final URL before treating the fetch as a success.
	if success, ok := result.(fetcher.Success); ok {
		if terminal := c.checkTerminalRedirect(success, queued); terminal != nil {
			result = *terminal
		}
	}

	switch res := result.(type) {
	case fetcher.Success:
		return c.processSuccess(queued, res)

	case fetcher.ContentMismatch:
		return c.store.UpdatePageState(queued.PageID, state.ContentMismatch, storage.PageUpdate{
			ContentType:  strPtr(res.ContentType),
			ErrorMessage: strPtr(fmt.Sprintf("expected HTML, got %s", res.ContentType)),
		})

	case fetcher.RedirectToTerminal:
		return c.failPage(queued.PageID, state.Failed, fmt.Sprintf("redirect to %s: %s", res.URL, res.Reason))

	case fetcher.HTTPError:
		if res.StatusCode == 429 {
			c.sched.MarkRateLimited(queued.Domain)
		}
		return c.store.UpdatePageState(queued.PageID, res.State, storage.PageUpdate{
			StatusCode:   intPtr(res.StatusCode),
			ErrorMessage: strPtr(fmt.Sprintf("HTTP %d", res.StatusCode)),
		})

	case fetcher.NetworkError:
		return c.failPage(queued.PageID, res.State, res.Message)

	case fetcher.RedirectError:
		return c.failPage(queued.PageID, state.Failed, res.Message)
	}

	return nil
}

func (c *Coordinator) processSuccess(queued scheduler.QueuedURL, res fetcher.Success) error {
	base, err := url.Parse(res.FinalURL)
	if err != nil {
		return c.failPage(queued.PageID, state.Failed, fmt.Sprintf("unparseable final URL: %v", err))
	}

	parsed, err := parser.Parse(res.Body, base)
	if err != nil {
		c.logger.Warn().Str("url", queued.URL).Err(err).Msg("failed to parse HTML")
		return c.store.UpdatePageState(queued.PageID, state.Failed, storage.PageUpdate{
			StatusCode:   intPtr(res.StatusCode),
			ContentType:  strPtr(res.ContentType),
			ErrorMessage: strPtr(fmt.Sprintf("parse error: %v", err)),
		})
	}

	update := storage.PageUpdate{
		StatusCode:  intPtr(res.StatusCode),
		ContentType: strPtr(res.ContentType),
	}
	if parsed.Title != "" {
		update.Title = strPtr(parsed.Title)
	}
	if res.LastModified != "" {
		update.LastModified = strPtr(res.LastModified)
	}
	if err := c.store.UpdatePageState(queued.PageID, state.Processed, update); err != nil {
		return err
	}

	c.handleDiscoveredLinks(queued.PageID, res.FinalURL, parsed.Links)
	return nil
}

// handleDiscoveredLinks classifies, records, and optionally enqueues
// every extracted href. Storage errors skip the offending link.
func (c *Coordinator) handleDiscoveredLinks(fromPageID int64, baseURL string, links []string) {
	sourceDepths, err := c.store.GetDepths(fromPageID)
	if err != nil {
		c.logger.Error().Int64("page_id", fromPageID).Err(err).Msg("failed to load source depths")
		return
	}

	for _, link := range links {
		normalized, err := urlkit.Normalize(link)
		if err != nil {
			continue
		}
		domain := urlkit.ExtractDomain(normalized)
		if domain == "" {
			continue
		}

		classification := urlkit.Classify(domain, c.cfg)

		switch classification {
		case urlkit.Blacklisted:
			if err := c.store.RecordBlacklisted(normalized.String(), baseURL, c.runID); err != nil {
				c.logger.Error().Str("url", normalized.String()).Err(err).Msg("failed to record blacklisted URL")
			}
			continue

		case urlkit.Stubbed:
			if err := c.store.RecordStubbed(normalized.String(), baseURL, c.runID); err != nil {
				c.logger.Error().Str("url", normalized.String()).Err(err).Msg("failed to record stubbed URL")
			}
			continue
		}

		toPageID, err := c.store.InsertOrGetPage(normalized.String(), domain, c.runID)
		if err != nil {
			c.logger.Error().Str("url", normalized.String()).Err(err).Msg("failed to insert page")
			continue
		}

		if err := c.store.InsertLink(fromPageID, toPageID, c.runID); err != nil {
			c.logger.Error().Int64("from", fromPageID).Int64("to", toPageID).Err(err).Msg("failed to insert link")
			continue
		}

		for _, depth := range sourceDepths {
			if err := c.store.UpsertDepth(toPageID, depth.QualityOrigin, depth.Depth+1); err != nil {
				c.logger.Error().Int64("page_id", toPageID).Err(err).Msg("failed to upsert depth")
			}
		}

		page, err := c.store.GetPage(toPageID)
		if err != nil {
			c.logger.Error().Int64("page_id", toPageID).Err(err).Msg("failed to load page")
			continue
		}
		if page.State != state.Discovered {
			continue
		}

		shouldCrawl, err := c.store.ShouldCrawl(toPageID, c.cfg.Crawler.MaxDepth)
		if err != nil {
			c.logger.Error().Int64("page_id", toPageID).Err(err).Msg("failed to check crawl depth")
			continue
		}
		if !shouldCrawl {
			if err := c.store.UpdatePageState(toPageID, state.DepthExceeded, storage.PageUpdate{
				ErrorMessage: strPtr("exceeds maximum crawl depth"),
			}); err != nil {
				c.logger.Error().Int64("page_id", toPageID).Err(err).Msg("failed to mark depth exceeded")
			}
			continue
		}

		if c.sched.DomainState(domain).HasExceededLimit(c.cfg.Crawler) {
			if err := c.store.UpdatePageState(toPageID, state.RequestLimitHit, storage.PageUpdate{
				ErrorMessage: strPtr("domain request limit reached"),
			}); err != nil {
				c.logger.Error().Int64("page_id", toPageID).Err(err).Msg("failed to mark request limit hit")
			}
			continue
		}

		priority := priorityFor(classification)
		if err := c.store.AddToFrontier(toPageID, priority); err != nil {
			c.logger.Error().Int64("page_id", toPageID).Err(err).Msg("failed to add to frontier")
			continue
		}
		if err := c.store.UpdatePageState(toPageID, state.Queued, storage.PageUpdate{}); err != nil {
			c.logger.Error().Int64("page_id", toPageID).Err(err).Msg("failed to mark queued")
			continue
		}
		c.sched.AddToFrontier(scheduler.QueuedURL{
			URL:      normalized.String(),
			Domain:   domain,
			Priority: priority,
			PageID:   toPageID,
		})
	}
}

// checkTerminalRedirect re-classifies the post-redirect URL. A final
// domain on the blacklist or stub list is recorded as referrer
// evidence and never crawled.
func (c *Coordinator) checkTerminalRedirect(res fetcher.Success, queued scheduler.QueuedURL) *fetcher.RedirectToTerminal {
	normalized, err := urlkit.Normalize(res.FinalURL)
	if err != nil {
		return nil
	}
	domain := urlkit.ExtractDomain(normalized)

	switch urlkit.Classify(domain, c.cfg) {
	case urlkit.Blacklisted:
		if err := c.store.RecordBlacklisted(normalized.String(), queued.URL, c.runID); err != nil {
			c.logger.Error().Str("url", normalized.String()).Err(err).Msg("failed to record blacklisted redirect")
		}
		return &fetcher.RedirectToTerminal{URL: normalized.String(), Reason: "blacklisted domain"}
	case urlkit.Stubbed:
		if err := c.store.RecordStubbed(normalized.String(), queued.URL, c.runID); err != nil {
			c.logger.Error().Str("url", normalized.String()).Err(err).Msg("failed to record stubbed redirect")
		}
		return &fetcher.RedirectToTerminal{URL: normalized.String(), Reason: "stubbed domain"}
	}
	return nil
}

// robotsFor returns the robots rules for a domain, fetching and caching
// them on the domain state when missing or stale. The fetch targets the
// page URL's host so a non-standard port is preserved.
func (c *Coordinator) robotsFor(ctx context.Context, scheme, host, domain string) *robots.Rules {
	ds := c.sched.DomainState(domain)

	if !ds.IsRobotsStale() {
		return robots.Parse(ds.Robots.Content)
	}

	c.logger.Debug().Str("domain", domain).Msg("fetching robots.txt")
	rules := c.robotsFetcher.Fetch(ctx, scheme, host)

	crawlDelay := time.Duration(0)
	if delay, ok := rules.CrawlDelay(c.userAgent); ok {
		crawlDelay = delay
	}
	ds.UpdateRobots(rules.Content(), crawlDelay)

	return rules
}

func (c *Coordinator) saveDomainStates() error {
	states := c.sched.AllDomainStates()
	if err := c.store.SaveDomainStates(states); err != nil {
		return err
	}
	c.logger.Debug().Int("domains", len(states)).Msg("saved domain states")
	return nil
}

func (c *Coordinator) failPage(pageID int64, st state.PageState, message string) error {
	return c.store.UpdatePageState(pageID, st, storage.PageUpdate{
		ErrorMessage: strPtr(message),
	})
}

func priorityFor(classification urlkit.Classification) int {
	if classification == urlkit.Quality {
		return priorityQuality
	}
	return priorityDiscovered
}

func requestPath(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
