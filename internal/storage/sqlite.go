package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/SiliconLion/sumi/internal/state"
)

// SqliteStore is the SQLite-backed Store implementation.
//
// A single connection serializes all access; the coordinator is the
// exclusive mutator by contract.
type SqliteStore struct {
	db *sql.DB
}

var _ Store = (*SqliteStore)(nil)

// Open creates or opens the database at path and applies the schema.
// Pass ":memory:" for an in-memory database (used by tests).
func Open(path string) (*SqliteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDatabase, err.Error())
	}
	db.SetMaxOpenConns(1)

	pragmas := `
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA foreign_keys = ON;
		PRAGMA temp_store = MEMORY;
	`
	if _, err := db.Exec(pragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s", ErrDatabase, err.Error())
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to initialize schema: %s", ErrDatabase, err.Error())
	}

	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

// ===== Runs =====

func (s *SqliteStore) CreateRun(configHash string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(
		"INSERT INTO runs (started_at, config_hash, status) VALUES (?, ?, ?)",
		now, configHash, string(RunRunning),
	)
	if err != nil {
		return 0, wrapDB(err)
	}
	return res.LastInsertId()
}

func (s *SqliteStore) GetRun(runID int64) (*RunRecord, error) {
	row := s.db.QueryRow(
		"SELECT id, started_at, finished_at, config_hash, status FROM runs WHERE id = ?",
		runID,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrRunNotFound, runID)
	}
	return run, err
}

func (s *SqliteStore) GetLatestRun() (*RunRecord, error) {
	row := s.db.QueryRow(
		"SELECT id, started_at, finished_at, config_hash, status FROM runs ORDER BY id DESC LIMIT 1",
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

func (s *SqliteStore) UpdateRunStatus(runID int64, status RunStatus) error {
	_, err := s.db.Exec("UPDATE runs SET status = ? WHERE id = ?", string(status), runID)
	return wrapDB(err)
}

func (s *SqliteStore) CompleteRun(runID int64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(
		"UPDATE runs SET status = ?, finished_at = ? WHERE id = ?",
		string(RunCompleted), now, runID,
	)
	return wrapDB(err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var run RunRecord
	var startedAt string
	var finishedAt sql.NullString
	var status string
	if err := row.Scan(&run.ID, &startedAt, &finishedAt, &run.ConfigHash, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, wrapDB(err)
	}
	run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	if finishedAt.Valid {
		t, _ := time.Parse(time.RFC3339, finishedAt.String)
		run.FinishedAt = &t
	}
	if parsed, ok := ParseRunStatus(status); ok {
		run.Status = parsed
	} else {
		run.Status = RunRunning
	}
	return &run, nil
}

// ===== Pages =====

func (s *SqliteStore) InsertOrGetPage(url, domain string, discoveredRun int64) (int64, error) {
	var existing int64
	err := s.db.QueryRow("SELECT id FROM pages WHERE url = ?", url).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, wrapDB(err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(
		"INSERT INTO pages (url, domain, state, discovered_at, discovered_run) VALUES (?, ?, ?, ?, ?)",
		url, domain, string(state.Discovered), now, discoveredRun,
	)
	if err != nil {
		return 0, wrapDB(err)
	}
	return res.LastInsertId()
}

const pageColumns = `id, url, domain, state, title, status_code, content_type, last_modified,
	visited_at, discovered_at, discovered_run, error_message, retry_count`

func (s *SqliteStore) GetPage(pageID int64) (*PageRecord, error) {
	row := s.db.QueryRow("SELECT "+pageColumns+" FROM pages WHERE id = ?", pageID)
	page, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrPageNotFound, pageID)
	}
	return page, err
}

func (s *SqliteStore) GetPageByURL(url string) (*PageRecord, error) {
	row := s.db.QueryRow("SELECT "+pageColumns+" FROM pages WHERE url = ?", url)
	page, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return page, err
}

func scanPage(row rowScanner) (*PageRecord, error) {
	var p PageRecord
	var st string
	var title, contentType, lastModified, visitedAt, errorMessage sql.NullString
	var statusCode sql.NullInt64
	var discoveredAt string
	err := row.Scan(
		&p.ID, &p.URL, &p.Domain, &st, &title, &statusCode, &contentType,
		&lastModified, &visitedAt, &discoveredAt, &p.DiscoveredRun,
		&errorMessage, &p.RetryCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, wrapDB(err)
	}
	if parsed, ok := state.ParsePageState(st); ok {
		p.State = parsed
	} else {
		p.State = state.Failed
	}
	if title.Valid {
		p.Title = &title.String
	}
	if statusCode.Valid {
		code := int(statusCode.Int64)
		p.StatusCode = &code
	}
	if contentType.Valid {
		p.ContentType = &contentType.String
	}
	if lastModified.Valid {
		p.LastModified = &lastModified.String
	}
	if visitedAt.Valid {
		t, _ := time.Parse(time.RFC3339, visitedAt.String)
		p.VisitedAt = &t
	}
	p.DiscoveredAt, _ = time.Parse(time.RFC3339, discoveredAt)
	if errorMessage.Valid {
		p.ErrorMessage = &errorMessage.String
	}
	return &p, nil
}

func (s *SqliteStore) UpdatePageState(pageID int64, st state.PageState, update PageUpdate) error {
	var current string
	err := s.db.QueryRow("SELECT state FROM pages WHERE id = ?", pageID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: id %d", ErrPageNotFound, pageID)
	}
	if err != nil {
		return wrapDB(err)
	}
	from, ok := state.ParsePageState(current)
	if !ok {
		return fmt.Errorf("%w: unknown stored state %q", ErrDatabase, current)
	}
	if !state.CanTransition(from, st) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, st)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.Exec(
		`UPDATE pages SET
			state = ?,
			visited_at = ?,
			title = COALESCE(?, title),
			status_code = COALESCE(?, status_code),
			content_type = COALESCE(?, content_type),
			last_modified = COALESCE(?, last_modified),
			error_message = COALESCE(?, error_message)
		WHERE id = ?`,
		string(st), now,
		nullString(update.Title),
		nullInt(update.StatusCode),
		nullString(update.ContentType),
		nullString(update.LastModified),
		nullString(update.ErrorMessage),
		pageID,
	)
	return wrapDB(err)
}

func (s *SqliteStore) IncrementRetryCount(pageID int64) error {
	_, err := s.db.Exec("UPDATE pages SET retry_count = retry_count + 1 WHERE id = ?", pageID)
	return wrapDB(err)
}

func (s *SqliteStore) GetPagesByState(st state.PageState) ([]PageRecord, error) {
	rows, err := s.db.Query("SELECT "+pageColumns+" FROM pages WHERE state = ? ORDER BY id", string(st))
	if err != nil {
		return nil, wrapDB(err)
	}
	defer rows.Close()

	var pages []PageRecord
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, *page)
	}
	return pages, wrapDB(rows.Err())
}

func (s *SqliteStore) GetInterruptedPages() ([]PageRecord, error) {
	return s.GetPagesByState(state.Fetching)
}

// ===== Depths =====

func (s *SqliteStore) UpsertDepth(pageID int64, qualityOrigin string, depth int) error {
	_, err := s.db.Exec(
		`INSERT INTO page_depths (page_id, quality_origin, depth) VALUES (?, ?, ?)
		ON CONFLICT(page_id, quality_origin) DO UPDATE SET depth = MIN(depth, excluded.depth)`,
		pageID, qualityOrigin, depth,
	)
	return wrapDB(err)
}

func (s *SqliteStore) GetDepths(pageID int64) ([]DepthRecord, error) {
	rows, err := s.db.Query(
		"SELECT page_id, quality_origin, depth FROM page_depths WHERE page_id = ? ORDER BY quality_origin",
		pageID,
	)
	if err != nil {
		return nil, wrapDB(err)
	}
	defer rows.Close()

	var depths []DepthRecord
	for rows.Next() {
		var d DepthRecord
		if err := rows.Scan(&d.PageID, &d.QualityOrigin, &d.Depth); err != nil {
			return nil, wrapDB(err)
		}
		depths = append(depths, d)
	}
	return depths, wrapDB(rows.Err())
}

func (s *SqliteStore) ShouldCrawl(pageID int64, maxDepth int) (bool, error) {
	var count int64
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM page_depths WHERE page_id = ? AND depth <= ?",
		pageID, maxDepth,
	).Scan(&count)
	if err != nil {
		return false, wrapDB(err)
	}
	return count > 0, nil
}

// ===== Links =====

func (s *SqliteStore) InsertLink(fromPageID, toPageID, runID int64) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO links (from_page_id, to_page_id, discovered_run) VALUES (?, ?, ?)",
		fromPageID, toPageID, runID,
	)
	return wrapDB(err)
}

func (s *SqliteStore) GetOutgoingLinks(pageID int64) ([]LinkRecord, error) {
	return s.queryLinks("SELECT from_page_id, to_page_id, discovered_run FROM links WHERE from_page_id = ? ORDER BY to_page_id", pageID)
}

func (s *SqliteStore) GetIncomingLinks(pageID int64) ([]LinkRecord, error) {
	return s.queryLinks("SELECT from_page_id, to_page_id, discovered_run FROM links WHERE to_page_id = ? ORDER BY from_page_id", pageID)
}

func (s *SqliteStore) queryLinks(query string, pageID int64) ([]LinkRecord, error) {
	rows, err := s.db.Query(query, pageID)
	if err != nil {
		return nil, wrapDB(err)
	}
	defer rows.Close()

	var links []LinkRecord
	for rows.Next() {
		var l LinkRecord
		if err := rows.Scan(&l.FromPageID, &l.ToPageID, &l.DiscoveredRun); err != nil {
			return nil, wrapDB(err)
		}
		links = append(links, l)
	}
	return links, wrapDB(rows.Err())
}

func (s *SqliteStore) CountLinks() (int64, error) {
	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM links").Scan(&count)
	return count, wrapDB(err)
}

// ===== Frontier =====

func (s *SqliteStore) AddToFrontier(pageID int64, priority int) error {
	_, err := s.db.Exec(
		`INSERT INTO frontier (page_id, priority) VALUES (?, ?)
		ON CONFLICT(page_id) DO UPDATE SET priority = excluded.priority`,
		pageID, priority,
	)
	return wrapDB(err)
}

func (s *SqliteStore) PopFromFrontier() (int64, bool, error) {
	var pageID int64
	err := s.db.QueryRow(
		"SELECT page_id FROM frontier ORDER BY priority ASC, page_id ASC LIMIT 1",
	).Scan(&pageID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrapDB(err)
	}
	if _, err := s.db.Exec("DELETE FROM frontier WHERE page_id = ?", pageID); err != nil {
		return 0, false, wrapDB(err)
	}
	return pageID, true, nil
}

func (s *SqliteStore) RemoveFromFrontier(pageID int64) error {
	_, err := s.db.Exec("DELETE FROM frontier WHERE page_id = ?", pageID)
	return wrapDB(err)
}

func (s *SqliteStore) LoadFrontier() ([]FrontierEntry, error) {
	rows, err := s.db.Query("SELECT page_id, priority FROM frontier ORDER BY priority ASC, page_id ASC")
	if err != nil {
		return nil, wrapDB(err)
	}
	defer rows.Close()

	var entries []FrontierEntry
	for rows.Next() {
		var e FrontierEntry
		if err := rows.Scan(&e.PageID, &e.Priority); err != nil {
			return nil, wrapDB(err)
		}
		entries = append(entries, e)
	}
	return entries, wrapDB(rows.Err())
}

func (s *SqliteStore) ClearFrontier() error {
	_, err := s.db.Exec("DELETE FROM frontier")
	return wrapDB(err)
}

// ===== Domain states =====

func (s *SqliteStore) SaveDomainStates(states map[string]*state.DomainState) error {
	tx, err := s.db.Begin()
	if err != nil {
		return wrapDB(err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM domain_states"); err != nil {
		return wrapDB(err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO domain_states
			(domain, request_count, rate_limited, robots_txt, robots_fetched_at, last_request_time)
		VALUES (?, ?, ?, ?, ?, NULL)`,
	)
	if err != nil {
		return wrapDB(err)
	}
	defer stmt.Close()

	for domain, ds := range states {
		var robotsTxt, robotsFetchedAt any
		if ds.Robots != nil {
			robotsTxt = ds.Robots.Content
			robotsFetchedAt = ds.Robots.FetchedAt.UTC().Format(time.RFC3339)
		}
		rateLimited := 0
		if ds.RateLimited {
			rateLimited = 1
		}
		if _, err := stmt.Exec(domain, ds.RequestCount, rateLimited, robotsTxt, robotsFetchedAt); err != nil {
			return wrapDB(err)
		}
	}

	return wrapDB(tx.Commit())
}

func (s *SqliteStore) LoadDomainStates() (map[string]*state.DomainState, error) {
	rows, err := s.db.Query(
		"SELECT domain, request_count, rate_limited, robots_txt, robots_fetched_at FROM domain_states",
	)
	if err != nil {
		return nil, wrapDB(err)
	}
	defer rows.Close()

	states := make(map[string]*state.DomainState)
	for rows.Next() {
		var domain string
		var requestCount, rateLimited int
		var robotsTxt, robotsFetchedAt sql.NullString
		if err := rows.Scan(&domain, &requestCount, &rateLimited, &robotsTxt, &robotsFetchedAt); err != nil {
			return nil, wrapDB(err)
		}
		ds := state.NewDomainState()
		ds.RequestCount = requestCount
		ds.RateLimited = rateLimited != 0
		if robotsTxt.Valid && robotsFetchedAt.Valid {
			fetchedAt, err := time.Parse(time.RFC3339, robotsFetchedAt.String)
			if err == nil {
				ds.Robots = &state.CachedRobots{
					Content:   robotsTxt.String,
					FetchedAt: fetchedAt,
				}
			}
		}
		states[domain] = ds
	}
	return states, wrapDB(rows.Err())
}

func (s *SqliteStore) UpdateDomainState(domain string, ds *state.DomainState) error {
	var robotsTxt, robotsFetchedAt any
	if ds.Robots != nil {
		robotsTxt = ds.Robots.Content
		robotsFetchedAt = ds.Robots.FetchedAt.UTC().Format(time.RFC3339)
	}
	rateLimited := 0
	if ds.RateLimited {
		rateLimited = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO domain_states
			(domain, request_count, rate_limited, robots_txt, robots_fetched_at, last_request_time)
		VALUES (?, ?, ?, ?, ?, NULL)
		ON CONFLICT(domain) DO UPDATE SET
			request_count = excluded.request_count,
			rate_limited = excluded.rate_limited,
			robots_txt = excluded.robots_txt,
			robots_fetched_at = excluded.robots_fetched_at`,
		domain, ds.RequestCount, rateLimited, robotsTxt, robotsFetchedAt,
	)
	return wrapDB(err)
}

// ===== Blacklist / stub evidence =====

func (s *SqliteStore) RecordBlacklisted(url, referrer string, runID int64) error {
	return s.recordEdge("blacklisted_urls", "blacklisted_referrers", "blacklisted_url", url, referrer, runID)
}

func (s *SqliteStore) RecordStubbed(url, referrer string, runID int64) error {
	return s.recordEdge("stubbed_urls", "stubbed_referrers", "stubbed_url", url, referrer, runID)
}

func (s *SqliteStore) recordEdge(urlTable, refTable, refColumn, url, referrer string, runID int64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := s.db.Begin()
	if err != nil {
		return wrapDB(err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		fmt.Sprintf("INSERT INTO %s (url, referrer, discovered_run, discovered_at) VALUES (?, ?, ?, ?)", urlTable),
		url, referrer, runID, now,
	); err != nil {
		return wrapDB(err)
	}
	if _, err := tx.Exec(
		fmt.Sprintf("INSERT INTO %s (%s, referrer_url, discovered_run) VALUES (?, ?, ?)", refTable, refColumn),
		url, referrer, runID,
	); err != nil {
		return wrapDB(err)
	}

	return wrapDB(tx.Commit())
}

func (s *SqliteStore) GetBlacklistedURLs() ([]URLRefCount, error) {
	return s.queryRefCounts("blacklisted_urls")
}

func (s *SqliteStore) GetStubbedURLs() ([]URLRefCount, error) {
	return s.queryRefCounts("stubbed_urls")
}

func (s *SqliteStore) queryRefCounts(table string) ([]URLRefCount, error) {
	rows, err := s.db.Query(
		fmt.Sprintf("SELECT url, COUNT(*) FROM %s GROUP BY url ORDER BY COUNT(*) DESC, url ASC", table),
	)
	if err != nil {
		return nil, wrapDB(err)
	}
	defer rows.Close()

	var counts []URLRefCount
	for rows.Next() {
		var c URLRefCount
		if err := rows.Scan(&c.URL, &c.Count); err != nil {
			return nil, wrapDB(err)
		}
		counts = append(counts, c)
	}
	return counts, wrapDB(rows.Err())
}

// ===== Aggregates =====

func (s *SqliteStore) CountPagesByState(st state.PageState) (int64, error) {
	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM pages WHERE state = ?", string(st)).Scan(&count)
	return count, wrapDB(err)
}

func (s *SqliteStore) CountTotalPages() (int64, error) {
	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM pages").Scan(&count)
	return count, wrapDB(err)
}

func (s *SqliteStore) CountUniqueDomains() (int64, error) {
	var count int64
	err := s.db.QueryRow("SELECT COUNT(DISTINCT domain) FROM pages").Scan(&count)
	return count, wrapDB(err)
}

func (s *SqliteStore) ErrorSummary() (map[state.PageState]int64, error) {
	summary := make(map[state.PageState]int64)
	for _, st := range state.AllStates() {
		if !st.IsError() {
			continue
		}
		count, err := s.CountPagesByState(st)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			summary[st] = count
		}
	}
	return summary, nil
}

func (s *SqliteStore) GetRateLimitedDomains() ([]string, error) {
	return s.queryStrings("SELECT domain FROM domain_states WHERE rate_limited = 1 ORDER BY domain")
}

func (s *SqliteStore) GetDepthBreakdown() (map[int]int64, error) {
	rows, err := s.db.Query(
		`SELECT effective_depth, COUNT(*) FROM
			(SELECT page_id, MIN(depth) AS effective_depth FROM page_depths GROUP BY page_id)
		GROUP BY effective_depth ORDER BY effective_depth`,
	)
	if err != nil {
		return nil, wrapDB(err)
	}
	defer rows.Close()

	breakdown := make(map[int]int64)
	for rows.Next() {
		var depth int
		var count int64
		if err := rows.Scan(&depth, &count); err != nil {
			return nil, wrapDB(err)
		}
		breakdown[depth] = count
	}
	return breakdown, wrapDB(rows.Err())
}

func (s *SqliteStore) GetDiscoveredDomains() ([]string, error) {
	return s.queryStrings("SELECT DISTINCT domain FROM pages ORDER BY domain")
}

func (s *SqliteStore) queryStrings(query string) ([]string, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, wrapDB(err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, wrapDB(err)
		}
		values = append(values, v)
	}
	return values, wrapDB(rows.Err())
}

// ===== Helpers =====

func wrapDB(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrDatabase, err.Error())
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}
