package storage

import (
	"github.com/SiliconLion/sumi/internal/state"
)

/*
Storage contract

- All mutations are committed synchronously (WAL journal).
- Callers must serialize mutations through a single exclusive owner;
  readers may proceed against a read view.
- InsertOrGetPage, InsertLink, UpsertDepth, and AddToFrontier are
  idempotent so the pipeline can be retried without duplication.
*/

// Store is the durable graph, frontier, domain-state, and run store.
type Store interface {
	// ===== Runs =====

	// CreateRun opens a new run in the Running state.
	CreateRun(configHash string) (int64, error)
	// GetRun fetches a run by id.
	GetRun(runID int64) (*RunRecord, error)
	// GetLatestRun returns the most recent run, or nil when none exist.
	GetLatestRun() (*RunRecord, error)
	// UpdateRunStatus rewrites a run's status.
	UpdateRunStatus(runID int64, status RunStatus) error
	// CompleteRun marks a run Completed and stamps finished_at.
	CompleteRun(runID int64) error

	// ===== Pages =====

	// InsertOrGetPage inserts a page in the Discovered state, or returns
	// the existing id when the URL is already known.
	InsertOrGetPage(url, domain string, discoveredRun int64) (int64, error)
	// GetPage fetches a page by id.
	GetPage(pageID int64) (*PageRecord, error)
	// GetPageByURL fetches a page by URL, or nil when unknown.
	GetPageByURL(url string) (*PageRecord, error)
	// UpdatePageState transitions a page and stamps visited_at. Illegal
	// transitions return ErrInvalidTransition.
	UpdatePageState(pageID int64, st state.PageState, update PageUpdate) error
	// IncrementRetryCount bumps the page retry counter.
	IncrementRetryCount(pageID int64) error
	// GetPagesByState lists every page currently in the given state.
	GetPagesByState(st state.PageState) ([]PageRecord, error)
	// GetInterruptedPages lists pages left in Fetching by a crashed run.
	GetInterruptedPages() ([]PageRecord, error)

	// ===== Depths =====

	// UpsertDepth records a depth observation, keeping the minimum per
	// (page, origin) pair.
	UpsertDepth(pageID int64, qualityOrigin string, depth int) error
	// GetDepths lists all depth records for a page.
	GetDepths(pageID int64) ([]DepthRecord, error)
	// ShouldCrawl reports whether any depth record is within maxDepth.
	ShouldCrawl(pageID int64, maxDepth int) (bool, error)

	// ===== Links =====

	// InsertLink records a directed edge; duplicates are a no-op.
	InsertLink(fromPageID, toPageID, runID int64) error
	// GetOutgoingLinks lists edges leaving a page.
	GetOutgoingLinks(pageID int64) ([]LinkRecord, error)
	// GetIncomingLinks lists edges arriving at a page.
	GetIncomingLinks(pageID int64) ([]LinkRecord, error)
	// CountLinks returns the total edge count.
	CountLinks() (int64, error)

	// ===== Frontier =====

	// AddToFrontier upserts a frontier entry for a page.
	AddToFrontier(pageID int64, priority int) error
	// PopFromFrontier removes and returns the lowest-priority entry;
	// ok is false when the frontier is empty.
	PopFromFrontier() (pageID int64, ok bool, err error)
	// RemoveFromFrontier deletes the entry for a page, if present.
	RemoveFromFrontier(pageID int64) error
	// LoadFrontier returns every entry in priority order.
	LoadFrontier() ([]FrontierEntry, error)
	// ClearFrontier deletes all frontier rows.
	ClearFrontier() error

	// ===== Domain states =====

	// SaveDomainStates replaces the persisted set with the given map.
	// The pacing clock (LastRequestTime) is not persisted.
	SaveDomainStates(states map[string]*state.DomainState) error
	// LoadDomainStates reconstructs persisted domain states with a
	// zero LastRequestTime.
	LoadDomainStates() (map[string]*state.DomainState, error)
	// UpdateDomainState upserts a single domain state.
	UpdateDomainState(domain string, ds *state.DomainState) error

	// ===== Blacklist / stub evidence =====

	// RecordBlacklisted appends a blacklisted URL and referrer record.
	RecordBlacklisted(url, referrer string, runID int64) error
	// RecordStubbed appends a stubbed URL and referrer record.
	RecordStubbed(url, referrer string, runID int64) error
	// GetBlacklistedURLs lists blacklisted URLs with reference counts,
	// most referenced first.
	GetBlacklistedURLs() ([]URLRefCount, error)
	// GetStubbedURLs lists stubbed URLs with reference counts.
	GetStubbedURLs() ([]URLRefCount, error)

	// ===== Aggregates =====

	CountPagesByState(st state.PageState) (int64, error)
	CountTotalPages() (int64, error)
	CountUniqueDomains() (int64, error)
	// ErrorSummary maps each error state to its page count.
	ErrorSummary() (map[state.PageState]int64, error)
	// GetRateLimitedDomains lists domains flagged rate-limited.
	GetRateLimitedDomains() ([]string, error)
	// GetDepthBreakdown maps effective depth (minimum across origins)
	// to page count.
	GetDepthBreakdown() (map[int]int64, error)
	// GetDiscoveredDomains lists all observed domains, sorted.
	GetDiscoveredDomains() ([]string, error)

	Close() error
}
