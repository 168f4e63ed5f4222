package storage

import (
	"time"

	"github.com/SiliconLion/sumi/internal/state"
)

// RunStatus is the lifecycle state of a crawl run. The string value
// doubles as the database representation.
type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunInterrupted RunStatus = "interrupted"
	RunFailed      RunStatus = "failed"
)

// IsTerminal reports whether the run will never be resumed.
func (s RunStatus) IsTerminal() bool {
	return s != RunRunning
}

// ParseRunStatus maps a database string back to a RunStatus.
func ParseRunStatus(s string) (RunStatus, bool) {
	switch RunStatus(s) {
	case RunRunning, RunCompleted, RunInterrupted, RunFailed:
		return RunStatus(s), true
	}
	return "", false
}

// RunRecord is one crawl run.
type RunRecord struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt *time.Time
	ConfigHash string
	Status     RunStatus
}

// PageRecord is one discovered page. Optional columns are pointers;
// nil means the column is NULL.
type PageRecord struct {
	ID            int64
	URL           string
	Domain        string
	State         state.PageState
	Title         *string
	StatusCode    *int
	ContentType   *string
	LastModified  *string
	VisitedAt     *time.Time
	DiscoveredAt  time.Time
	DiscoveredRun int64
	ErrorMessage  *string
	RetryCount    int
}

// PageUpdate carries the optional columns written alongside a state
// transition. Nil fields are left untouched.
type PageUpdate struct {
	Title        *string
	StatusCode   *int
	ContentType  *string
	LastModified *string
	ErrorMessage *string
}

// DepthRecord is the shortest observed path length from one quality
// origin to a page.
type DepthRecord struct {
	PageID        int64
	QualityOrigin string
	Depth         int
}

// LinkRecord is a directed edge in the page graph.
type LinkRecord struct {
	FromPageID    int64
	ToPageID      int64
	DiscoveredRun int64
}

// FrontierEntry is one persisted frontier row.
type FrontierEntry struct {
	PageID   int64
	Priority int
}

// URLRefCount pairs a URL with how many referrers pointed at it.
type URLRefCount struct {
	URL   string
	Count int
}
