package crawler_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SiliconLion/sumi/internal/config"
	"github.com/SiliconLion/sumi/internal/crawler"
	"github.com/SiliconLion/sumi/internal/fetcher"
	"github.com/SiliconLion/sumi/internal/robots"
	"github.com/SiliconLion/sumi/internal/state"
	"github.com/SiliconLion/sumi/internal/storage"
)

// countingMux wraps a mux and counts GET requests per path.
type countingMux struct {
	mu   sync.Mutex
	gets map[string]int
	mux  *http.ServeMux
}

func newCountingMux() *countingMux {
	return &countingMux{
		gets: make(map[string]int),
		mux:  http.NewServeMux(),
	}
}

func (c *countingMux) handle(pattern string, handler http.HandlerFunc) {
	c.mux.HandleFunc(pattern, handler)
}

func (c *countingMux) html(pattern, body string) {
	c.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(body))
	})
}

func (c *countingMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		c.mu.Lock()
		c.gets[r.URL.Path]++
		c.mu.Unlock()
	}
	c.mux.ServeHTTP(w, r)
}

func (c *countingMux) getCount(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gets[path]
}

func testConfig(serverURL string) *config.Config {
	u, _ := url.Parse(serverURL)
	return &config.Config{
		Crawler: config.Crawler{
			MaxDepth:               3,
			MaxConcurrentPagesOpen: 5,
			MinimumTimeOnPage:      100,
			MaxDomainRequests:      50,
		},
		UserAgent: config.UserAgent{
			CrawlerName:    "TestBot",
			CrawlerVersion: "1.0",
			ContactURL:     "https://bot.test/about",
			ContactEmail:   "bot@bot.test",
		},
		Output: config.Output{
			DatabasePath: ":memory:",
			SummaryPath:  "summary.md",
		},
		Quality: []config.QualityEntry{
			{Domain: u.Hostname(), Seeds: []string{serverURL + "/"}},
		},
	}
}

func newTestCoordinator(t *testing.T, cfg *config.Config, fresh bool, store storage.Store) *crawler.Coordinator {
	t.Helper()
	logger := zerolog.Nop()
	client := fetcher.NewClient(cfg.UserAgent, logger)
	robotsFetcher := robots.NewFetcher(cfg.UserAgent.String(), logger)
	coordinator, err := crawler.NewWithDeps(cfg, "test-hash", fresh, store, client, robotsFetcher, logger)
	require.NoError(t, err)
	return coordinator
}

func openStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func pageState(t *testing.T, store storage.Store, pageURL string) state.PageState {
	t.Helper()
	page, err := store.GetPageByURL(pageURL)
	require.NoError(t, err)
	require.NotNil(t, page, "page %s not found", pageURL)
	return page.State
}

func TestSeedOnlyCrawl(t *testing.T) {
	mux := newCountingMux()
	mux.html("/", `<html><head><title>Index</title></head><body>
		<a href="/a">A</a>
		<a href="/b">B</a>
	</body></html>`)
	mux.html("/a", `<html><head><title>Page A</title></head><body></body></html>`)
	mux.html("/b", `<html><head><title>Page B</title></head><body></body></html>`)
	mux.handle("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nAllow: /"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	store := openStore(t)
	coordinator := newTestCoordinator(t, cfg, true, store)

	require.NoError(t, coordinator.Run(context.Background()))

	origin := cfg.Quality[0].Domain
	wantDepths := map[string]int{
		server.URL + "/":  0,
		server.URL + "/a": 1,
		server.URL + "/b": 1,
	}
	for pageURL, wantDepth := range wantDepths {
		page, err := store.GetPageByURL(pageURL)
		require.NoError(t, err)
		require.NotNil(t, page, "page %s missing", pageURL)
		assert.Equal(t, state.Processed, page.State, "page %s", pageURL)

		depths, err := store.GetDepths(page.ID)
		require.NoError(t, err)
		require.Len(t, depths, 1)
		assert.Equal(t, origin, depths[0].QualityOrigin)
		assert.Equal(t, wantDepth, depths[0].Depth)
	}

	links, err := store.CountLinks()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, links, int64(2))

	run, err := store.GetRun(coordinator.RunID())
	require.NoError(t, err)
	assert.Equal(t, storage.RunCompleted, run.Status)

	index, err := store.GetPageByURL(server.URL + "/")
	require.NoError(t, err)
	require.NotNil(t, index.Title)
	assert.Equal(t, "Index", *index.Title)
}

func TestDepthLimit(t *testing.T) {
	mux := newCountingMux()
	mux.html("/", `<html><body><a href="/l1">L1</a></body></html>`)
	mux.html("/l1", `<html><body><a href="/l2">L2</a></body></html>`)
	mux.html("/l2", `<html><body><a href="/l3">L3</a></body></html>`)
	mux.html("/l3", `<html><body></body></html>`)
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Crawler.MaxDepth = 2
	store := openStore(t)
	coordinator := newTestCoordinator(t, cfg, true, store)

	require.NoError(t, coordinator.Run(context.Background()))

	assert.Equal(t, state.Processed, pageState(t, store, server.URL+"/"))
	assert.Equal(t, state.Processed, pageState(t, store, server.URL+"/l1"))
	assert.Equal(t, state.Processed, pageState(t, store, server.URL+"/l2"))
	assert.Equal(t, state.DepthExceeded, pageState(t, store, server.URL+"/l3"))

	assert.Equal(t, 0, mux.getCount("/l3"), "/l3 must never be fetched")
}

func TestRobotsDisallowedPath(t *testing.T) {
	mux := newCountingMux()
	mux.html("/", `<html><body>
		<a href="/allowed">OK</a>
		<a href="/admin">Admin</a>
	</body></html>`)
	mux.html("/allowed", `<html><body></body></html>`)
	mux.html("/admin", `<html><body></body></html>`)
	mux.handle("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /admin"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	store := openStore(t)
	coordinator := newTestCoordinator(t, cfg, true, store)

	require.NoError(t, coordinator.Run(context.Background()))

	assert.Equal(t, state.Processed, pageState(t, store, server.URL+"/allowed"))

	admin, err := store.GetPageByURL(server.URL + "/admin")
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.Equal(t, state.Failed, admin.State)
	require.NotNil(t, admin.ErrorMessage)
	assert.Contains(t, *admin.ErrorMessage, "robots.txt")

	assert.Equal(t, 0, mux.getCount("/admin"), "/admin must never receive a GET")
}

func TestContentTypeMismatch(t *testing.T) {
	mux := newCountingMux()
	mux.html("/", `<html><body><a href="/doc.pdf">PDF</a></body></html>`)
	mux.handle("/doc.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	store := openStore(t)
	coordinator := newTestCoordinator(t, cfg, true, store)

	require.NoError(t, coordinator.Run(context.Background()))

	pdf, err := store.GetPageByURL(server.URL + "/doc.pdf")
	require.NoError(t, err)
	require.NotNil(t, pdf)
	assert.Equal(t, state.ContentMismatch, pdf.State)
	require.NotNil(t, pdf.ContentType)
	assert.Equal(t, "application/pdf", *pdf.ContentType)

	// No children were enqueued from the mismatched page.
	outgoing, err := store.GetOutgoingLinks(pdf.ID)
	require.NoError(t, err)
	assert.Empty(t, outgoing)
}

func TestRateLimitedDomain(t *testing.T) {
	mux := newCountingMux()
	mux.handle("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	store := openStore(t)
	coordinator := newTestCoordinator(t, cfg, true, store)

	require.NoError(t, coordinator.Run(context.Background()))

	page, err := store.GetPageByURL(server.URL + "/")
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, state.RateLimited, page.State)

	assert.True(t, coordinator.Scheduler().DomainState(cfg.Quality[0].Domain).RateLimited)

	domains, err := store.GetRateLimitedDomains()
	require.NoError(t, err)
	assert.Contains(t, domains, cfg.Quality[0].Domain)
}

func TestBlacklistAndStubLinksAreRecordedNotCrawled(t *testing.T) {
	mux := newCountingMux()
	mux.html("/", `<html><body>
		<a href="https://bad.test/spam">Bad</a>
		<a href="https://cdn.test/asset">CDN</a>
		<a href="/ok">OK</a>
	</body></html>`)
	mux.html("/ok", `<html><body></body></html>`)
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Blacklist = []config.DomainEntry{{Domain: "*.bad.test"}}
	cfg.Stub = []config.DomainEntry{{Domain: "*.cdn.test"}}
	store := openStore(t)
	coordinator := newTestCoordinator(t, cfg, true, store)

	require.NoError(t, coordinator.Run(context.Background()))

	blacklisted, err := store.GetBlacklistedURLs()
	require.NoError(t, err)
	require.Len(t, blacklisted, 1)
	assert.Equal(t, "https://bad.test/spam", blacklisted[0].URL)

	stubbed, err := store.GetStubbedURLs()
	require.NoError(t, err)
	require.Len(t, stubbed, 1)
	assert.Equal(t, "https://cdn.test/asset", stubbed[0].URL)

	// Classification is enough; no page rows exist for either target.
	page, err := store.GetPageByURL("https://bad.test/spam")
	require.NoError(t, err)
	assert.Nil(t, page)
	page, err = store.GetPageByURL("https://cdn.test/asset")
	require.NoError(t, err)
	assert.Nil(t, page)

	assert.Equal(t, state.Processed, pageState(t, store, server.URL+"/ok"))
}

func TestRedirectToTerminalDomain(t *testing.T) {
	mux := newCountingMux()
	var serverURL string
	mux.html("/", `<html><body><a href="/go">Go</a></body></html>`)
	mux.handle("/go", func(w http.ResponseWriter, r *http.Request) {
		target := fmt.Sprintf("http://localhost:%s/landing", mustPort(serverURL))
		http.Redirect(w, r, target, http.StatusFound)
	})
	mux.html("/landing", `<html><body></body></html>`)
	server := httptest.NewServer(mux)
	defer server.Close()
	serverURL = server.URL

	cfg := testConfig(server.URL)
	cfg.Blacklist = []config.DomainEntry{{Domain: "localhost"}}
	store := openStore(t)
	coordinator := newTestCoordinator(t, cfg, true, store)

	require.NoError(t, coordinator.Run(context.Background()))

	goPage, err := store.GetPageByURL(server.URL + "/go")
	require.NoError(t, err)
	require.NotNil(t, goPage)
	assert.Equal(t, state.Failed, goPage.State)
	require.NotNil(t, goPage.ErrorMessage)
	assert.Contains(t, *goPage.ErrorMessage, "blacklisted")

	blacklisted, err := store.GetBlacklistedURLs()
	require.NoError(t, err)
	require.Len(t, blacklisted, 1)
	assert.Contains(t, blacklisted[0].URL, "localhost")
}

func TestResumeReusesRunningRun(t *testing.T) {
	mux := newCountingMux()
	mux.html("/done", `<html><body></body></html>`)
	mux.html("/pending", `<html><body></body></html>`)
	mux.html("/interrupted", `<html><body></body></html>`)
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	store := openStore(t)

	// Simulate a crashed run: one page processed, one still queued in
	// the frontier, one stranded mid-fetch.
	runID, err := store.CreateRun("test-hash")
	require.NoError(t, err)
	origin := cfg.Quality[0].Domain

	doneID, err := store.InsertOrGetPage(server.URL+"/done", origin, runID)
	require.NoError(t, err)
	require.NoError(t, store.UpsertDepth(doneID, origin, 0))
	require.NoError(t, store.UpdatePageState(doneID, state.Queued, storage.PageUpdate{}))
	require.NoError(t, store.UpdatePageState(doneID, state.Fetching, storage.PageUpdate{}))
	require.NoError(t, store.UpdatePageState(doneID, state.Processed, storage.PageUpdate{}))

	pendingID, err := store.InsertOrGetPage(server.URL+"/pending", origin, runID)
	require.NoError(t, err)
	require.NoError(t, store.UpsertDepth(pendingID, origin, 1))
	require.NoError(t, store.UpdatePageState(pendingID, state.Queued, storage.PageUpdate{}))
	require.NoError(t, store.AddToFrontier(pendingID, 0))

	interruptedID, err := store.InsertOrGetPage(server.URL+"/interrupted", origin, runID)
	require.NoError(t, err)
	require.NoError(t, store.UpsertDepth(interruptedID, origin, 1))
	require.NoError(t, store.UpdatePageState(interruptedID, state.Queued, storage.PageUpdate{}))
	require.NoError(t, store.UpdatePageState(interruptedID, state.Fetching, storage.PageUpdate{}))

	coordinator := newTestCoordinator(t, cfg, false, store)
	assert.Equal(t, runID, coordinator.RunID(), "resume must reuse the running run id")

	require.NoError(t, coordinator.Run(context.Background()))

	assert.Equal(t, state.Processed, pageState(t, store, server.URL+"/pending"))
	assert.Equal(t, state.Processed, pageState(t, store, server.URL+"/interrupted"))

	// The already-processed page was not re-fetched.
	assert.Equal(t, 0, mux.getCount("/done"))

	run, err := store.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunCompleted, run.Status)
}

func TestFreshAfterCompletedRunCreatesNewRun(t *testing.T) {
	mux := newCountingMux()
	mux.html("/", `<html><body></body></html>`)
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	store := openStore(t)

	first := newTestCoordinator(t, cfg, true, store)
	require.NoError(t, first.Run(context.Background()))

	second := newTestCoordinator(t, cfg, false, store)
	assert.NotEqual(t, first.RunID(), second.RunID(),
		"a terminal latest run must start a new run")
}

func mustPort(serverURL string) string {
	u, err := url.Parse(serverURL)
	if err != nil {
		panic(err)
	}
	return u.Port()
}
